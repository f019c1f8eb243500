package entities

// Manifest describes one guest run: the binary, the entry point, the files the
// guest may open and the emulation knobs.
type Manifest struct {
	// Guest is the path of the wasm binary, relative to the manifest.
	Guest string `json:"guest" yaml:"guest" validate:"required"`

	// Entry is the exported function to invoke. Defaults to "main", with
	// "_start" as fallback when the guest exports no "main".
	Entry string `json:"entry,omitempty" yaml:"entry,omitempty"`

	// Files is the complete set of blobs the guest can open.
	Files []FileSpec `json:"files,omitempty" yaml:"files,omitempty" validate:"omitempty,unique=Name,dive"`

	// Unimplemented lists imports that must fail loudly when called.
	Unimplemented []string `json:"unimplemented,omitempty" yaml:"unimplemented,omitempty" validate:"omitempty,dive,required"`

	// PID and TID are the identifiers reported by getpid and gettid.
	PID int32 `json:"pid,omitempty" yaml:"pid,omitempty" validate:"gte=0"`
	TID int32 `json:"tid,omitempty" yaml:"tid,omitempty" validate:"gte=0"`

	// ReadAdvance selects whether read moves the descriptor offset.
	// Nil means the default (advance).
	ReadAdvance *bool `json:"read_advance,omitempty" yaml:"read_advance,omitempty"`

	// AutoStub turns guest imports unknown to the registry into
	// unimplemented stubs instead of failing the link.
	AutoStub bool `json:"auto_stub,omitempty" yaml:"auto_stub,omitempty"`

	// Trace enables per-syscall diagnostics.
	Trace bool `json:"trace,omitempty" yaml:"trace,omitempty"`
}

// FileSpec binds a guest-visible file name to host content.
type FileSpec struct {
	// Name is the file name as the guest sees it, without the leading "/".
	Name string `json:"name" yaml:"name" validate:"required,excludes=/"`

	// Path is the host file holding the content, relative to the manifest.
	Path string `json:"path" yaml:"path" validate:"required"`

	// Compression is "" (none) or "zstd". Paths ending in ".zst" imply zstd.
	Compression string `json:"compression,omitempty" yaml:"compression,omitempty" validate:"omitempty,oneof=zstd none"`

	// Blake3 optionally pins the hex BLAKE3-256 digest of the decompressed content.
	Blake3 string `json:"blake3,omitempty" yaml:"blake3,omitempty" validate:"omitempty,hexadecimal,len=64"`
}
