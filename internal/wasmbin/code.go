package wasmbin

import (
	"github.com/go-interpreter/wagon/wasm/leb128"
	ops "github.com/go-interpreter/wagon/wasm/operators"
)

// i32Align is the natural alignment exponent of 32-bit memory accesses.
const i32Align = 2

// Code is an instruction sequence. Each method returns the extended
// sequence, so bodies read as chains:
//
//	wasmbin.Code{}.I32Const(1).I32Const(7).Call(exit).Drop()
type Code []byte

func (c Code) uleb(v uint32) Code { return leb128.AppendUleb128(c, uint64(v)) }

// Unreachable traps.
func (c Code) Unreachable() Code { return append(c, ops.Unreachable) }

// Return leaves the function.
func (c Code) Return() Code { return append(c, ops.Return) }

// Call calls the function at idx.
func (c Code) Call(idx uint32) Code { return append(c, ops.Call).uleb(idx) }

// Drop discards the top of the stack.
func (c Code) Drop() Code { return append(c, ops.Drop) }

// LocalGet pushes a local.
func (c Code) LocalGet(idx uint32) Code { return append(c, ops.GetLocal).uleb(idx) }

// GlobalGet pushes a global.
func (c Code) GlobalGet(idx uint32) Code { return append(c, ops.GetGlobal).uleb(idx) }

// I32Const pushes an i32 constant.
func (c Code) I32Const(v int32) Code { return leb128.AppendSleb128(append(c, ops.I32Const), int64(v)) }

// I64Const pushes an i64 constant.
func (c Code) I64Const(v int64) Code { return leb128.AppendSleb128(append(c, ops.I64Const), v) }

// I32Load loads from memory 0 at the address on the stack plus offset.
func (c Code) I32Load(offset uint32) Code { return append(c, ops.I32Load).uleb(i32Align).uleb(offset) }

// I32Store stores to memory 0; the stack holds the address then the value.
func (c Code) I32Store(offset uint32) Code {
	return append(c, ops.I32Store).uleb(i32Align).uleb(offset)
}

// MemorySize pushes the page count of memory 0.
func (c Code) MemorySize() Code { return append(c, ops.CurrentMemory, 0x00) }

// MemoryGrow grows memory 0 by the page count on the stack and pushes the
// previous page count, or -1.
func (c Code) MemoryGrow() Code { return append(c, ops.GrowMemory, 0x00) }
