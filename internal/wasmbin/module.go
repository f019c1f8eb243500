// Package wasmbin builds WebAssembly 1.0 binary modules on top of wagon's
// section model.
//
// It covers what the pseudo-kernel needs to emit: the link module that
// re-exports host functions next to data globals, and small guests used in
// tests. Function indices count imported functions first, so every import
// must be added before the first AddFunc.
package wasmbin

import (
	"bytes"
	"fmt"

	"github.com/go-interpreter/wagon/wasm"
	"github.com/go-interpreter/wagon/wasm/leb128"
	ops "github.com/go-interpreter/wagon/wasm/operators"
)

// ValType is a value type byte.
type ValType = wasm.ValueType

// Value types.
const (
	I32 = wasm.ValueTypeI32
	I64 = wasm.ValueTypeI64
)

// ExternKind tags imports and exports.
type ExternKind = wasm.External

// External kinds.
const (
	ExternFunc   = wasm.ExternalFunction
	ExternMemory = wasm.ExternalMemory
	ExternGlobal = wasm.ExternalGlobal
)

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

func (f FuncType) equal(o FuncType) bool {
	return sameValTypes(f.Params, o.Params) && sameValTypes(f.Results, o.Results)
}

func sameValTypes(a, b []ValType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Limits bounds a memory in pages. Max is only encoded when HasMax is set.
type Limits struct {
	Min    uint32
	Max    uint32
	HasMax bool
}

func (l Limits) resizable() wasm.ResizableLimits {
	if l.HasMax {
		return wasm.ResizableLimits{Flags: 1, Initial: l.Min, Maximum: l.Max}
	}
	return wasm.ResizableLimits{Initial: l.Min}
}

// GlobalType describes a global's value type and mutability.
type GlobalType struct {
	Val     ValType
	Mutable bool
}

func (g GlobalType) globalVar() wasm.GlobalVar {
	return wasm.GlobalVar{Type: g.Val, Mutable: g.Mutable}
}

// Func is a defined function. Body holds the instructions without the
// closing end opcode.
type Func struct {
	Type   uint32
	Locals []ValType
	Body   Code
}

// Module is a module under construction.
type Module struct {
	Types    []FuncType
	Imports  []wasm.ImportEntry
	Funcs    []Func
	Memories []Limits
	Globals  []wasm.GlobalEntry
	Exports  []wasm.ExportEntry
	Data     []wasm.DataSegment

	// Start is a function index to run at instantiation, when HasStart.
	Start    uint32
	HasStart bool
}

// TypeIndex returns the index of ft, adding it if it is new.
func (m *Module) TypeIndex(ft FuncType) uint32 {
	for i, t := range m.Types {
		if t.equal(ft) {
			return uint32(i) //nolint:gosec // G115: small tables
		}
	}
	m.Types = append(m.Types, ft)
	return uint32(len(m.Types) - 1) //nolint:gosec // G115: small tables
}

func (m *Module) countImports(kind ExternKind) uint32 {
	var n uint32
	for _, imp := range m.Imports {
		if imp.Type.Kind() == kind {
			n++
		}
	}
	return n
}

// ImportFunc adds a function import and returns its function index.
func (m *Module) ImportFunc(module, name string, ft FuncType) uint32 {
	idx := m.countImports(ExternFunc)
	m.Imports = append(m.Imports, wasm.ImportEntry{
		ModuleName: module,
		FieldName:  name,
		Type:       wasm.FuncImport{Type: m.TypeIndex(ft)},
	})
	return idx
}

// ImportMemory adds a memory import.
func (m *Module) ImportMemory(module, name string, limits Limits) {
	m.Imports = append(m.Imports, wasm.ImportEntry{
		ModuleName: module,
		FieldName:  name,
		Type:       wasm.MemoryImport{Type: wasm.Memory{Limits: limits.resizable()}},
	})
}

// ImportGlobal adds a global import and returns its global index.
func (m *Module) ImportGlobal(module, name string, gt GlobalType) uint32 {
	idx := m.countImports(ExternGlobal)
	m.Imports = append(m.Imports, wasm.ImportEntry{
		ModuleName: module,
		FieldName:  name,
		Type:       wasm.GlobalVarImport{Type: gt.globalVar()},
	})
	return idx
}

// AddFunc defines a function and returns its function index.
func (m *Module) AddFunc(ft FuncType, locals []ValType, body Code) uint32 {
	m.Funcs = append(m.Funcs, Func{Type: m.TypeIndex(ft), Locals: locals, Body: body})
	return m.countImports(ExternFunc) + uint32(len(m.Funcs)) - 1 //nolint:gosec // G115: small tables
}

// AddMemory defines a memory and returns its memory index.
func (m *Module) AddMemory(limits Limits) uint32 {
	m.Memories = append(m.Memories, limits)
	return m.countImports(ExternMemory) + uint32(len(m.Memories)) - 1 //nolint:gosec // G115: small tables
}

// AddGlobal defines a global with a constant initializer and returns its
// global index.
func (m *Module) AddGlobal(gt GlobalType, init int64) uint32 {
	m.Globals = append(m.Globals, wasm.GlobalEntry{Type: gt.globalVar(), Init: constExpr(gt.Val, init)})
	return m.countImports(ExternGlobal) + uint32(len(m.Globals)) - 1 //nolint:gosec // G115: small tables
}

// AddExport exports the entity at index under name.
func (m *Module) AddExport(name string, kind ExternKind, index uint32) {
	m.Exports = append(m.Exports, wasm.ExportEntry{FieldStr: name, Kind: kind, Index: index})
}

// AddData adds an active data segment for memory 0.
func (m *Module) AddData(offset int32, b []byte) {
	m.Data = append(m.Data, wasm.DataSegment{Offset: constExpr(I32, int64(offset)), Data: b})
}

// Encode produces the binary module. Sections are emitted in the order the
// binary format requires; empty ones are left out.
func (m *Module) Encode() ([]byte, error) {
	mod := &wasm.Module{Version: wasm.Version}

	if len(m.Types) > 0 {
		types := &wasm.SectionTypes{}
		for _, t := range m.Types {
			types.Entries = append(types.Entries, wasm.FunctionSig{
				Form:        wasm.TypeFunc,
				ParamTypes:  t.Params,
				ReturnTypes: t.Results,
			})
		}
		mod.Sections = append(mod.Sections, types)
	}
	if len(m.Imports) > 0 {
		mod.Sections = append(mod.Sections, &wasm.SectionImports{Entries: m.Imports})
	}
	if len(m.Funcs) > 0 {
		funcs := &wasm.SectionFunctions{}
		for _, f := range m.Funcs {
			funcs.Types = append(funcs.Types, f.Type)
		}
		mod.Sections = append(mod.Sections, funcs)
	}
	if len(m.Memories) > 0 {
		mems := &wasm.SectionMemories{}
		for _, l := range m.Memories {
			mems.Entries = append(mems.Entries, wasm.Memory{Limits: l.resizable()})
		}
		mod.Sections = append(mod.Sections, mems)
	}
	if len(m.Globals) > 0 {
		mod.Sections = append(mod.Sections, &wasm.SectionGlobals{Globals: m.Globals})
	}
	if len(m.Exports) > 0 {
		exports := &wasm.SectionExports{Entries: make(map[string]wasm.ExportEntry, len(m.Exports))}
		for _, e := range m.Exports {
			if _, dup := exports.Entries[e.FieldStr]; dup {
				return nil, wasm.DuplicateExportError(e.FieldStr)
			}
			exports.Entries[e.FieldStr] = e
			exports.Names = append(exports.Names, e.FieldStr)
		}
		mod.Sections = append(mod.Sections, exports)
	}
	if m.HasStart {
		mod.Sections = append(mod.Sections, &wasm.SectionStartFunction{Index: m.Start})
	}
	if len(m.Funcs) > 0 {
		code := &wasm.SectionCode{}
		for _, f := range m.Funcs {
			code.Bodies = append(code.Bodies, wasm.FunctionBody{Locals: localEntries(f.Locals), Code: f.Body})
		}
		mod.Sections = append(mod.Sections, code)
	}
	if len(m.Data) > 0 {
		mod.Sections = append(mod.Sections, &wasm.SectionData{Entries: m.Data})
	}

	var buf bytes.Buffer
	if err := wasm.EncodeModule(&buf, mod); err != nil {
		return nil, fmt.Errorf("failed to encode module: %w", err)
	}
	return buf.Bytes(), nil
}

// MustEncode is like Encode but panics if the module cannot be encoded.
// It is meant for fixed modules such as test guests.
func (m *Module) MustEncode() []byte {
	b, err := m.Encode()
	if err != nil {
		panic(err)
	}
	return b
}

// localEntries groups runs of the same local type.
func localEntries(locals []ValType) []wasm.LocalEntry {
	var out []wasm.LocalEntry
	for _, t := range locals {
		if n := len(out); n > 0 && out[n-1].Type == t {
			out[n-1].Count++
			continue
		}
		out = append(out, wasm.LocalEntry{Count: 1, Type: t})
	}
	return out
}

// constExpr is an initializer expression, closing end included.
func constExpr(t ValType, v int64) []byte {
	op := ops.I32Const
	if t == I64 {
		op = ops.I64Const
	}
	return append(leb128.AppendSleb128([]byte{op}, v), ops.End)
}
