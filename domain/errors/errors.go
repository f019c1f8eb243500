// Package errors provides the error taxonomy of the pseudo-kernel.
// Recoverable kinds are sentinels that map to negative errno results for the
// guest; signals (Terminate, NotImplemented) unwind the current invocation.
// All error types support error unwrapping via errors.As() and errors.Is().
package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/reglet-dev/pseudokernel/domain/entities"
)

// Recoverable error kinds. Handlers wrap these with %w; Errno maps them to the
// negative value returned to the guest.
var (
	ErrOutOfBounds       = stdErrors.New("memory access out of bounds")
	ErrNotFound          = stdErrors.New("no such file or directory")
	ErrInvalidDescriptor = stdErrors.New("bad file descriptor")
	ErrInvalidArgument   = stdErrors.New("invalid argument")
	ErrUnsupported       = stdErrors.New("operation not supported")
	ErrNoMemory          = stdErrors.New("cannot allocate memory")
	ErrNoSuchThread      = stdErrors.New("no such thread")
	ErrRange             = stdErrors.New("result out of range")
)

// Linux errno values as seen by a musl guest.
const (
	ESRCH   int32 = 3
	EBADF   int32 = 9
	ENOENT  int32 = 2
	ENOMEM  int32 = 12
	EFAULT  int32 = 14
	EINVAL  int32 = 22
	ERANGE  int32 = 34
	ENOTSUP int32 = 95
)

// Errno converts a recoverable error into the negative result a raw syscall
// returns. Unknown errors collapse to -1.
func Errno(err error) int32 {
	switch {
	case err == nil:
		return 0
	case stdErrors.Is(err, ErrOutOfBounds):
		return -EFAULT
	case stdErrors.Is(err, ErrNotFound):
		return -ENOENT
	case stdErrors.Is(err, ErrInvalidDescriptor):
		return -EBADF
	case stdErrors.Is(err, ErrInvalidArgument):
		return -EINVAL
	case stdErrors.Is(err, ErrUnsupported):
		return -ENOTSUP
	case stdErrors.Is(err, ErrNoMemory):
		return -ENOMEM
	case stdErrors.Is(err, ErrNoSuchThread):
		return -ESRCH
	case stdErrors.Is(err, ErrRange):
		return -ERANGE
	default:
		return -1
	}
}

// Signal marks errors that unwind the whole guest invocation instead of being
// returned to the guest as a number.
type Signal interface {
	error
	signal()
}

// IsSignal reports whether err carries a Signal anywhere in its chain.
func IsSignal(err error) bool {
	var s Signal
	return stdErrors.As(err, &s)
}

// AbortExitCode is reported for a guest that raised SIGABRT on itself.
const AbortExitCode = 134

// TerminateError is raised by exit, exit_group and a self-directed abort.
type TerminateError struct {
	Code  int32
	Abort bool
}

func (e *TerminateError) Error() string {
	if e.Abort {
		return "guest terminated: SIGABRT"
	}
	return fmt.Sprintf("guest terminated: exit(%d)", e.Code)
}

func (*TerminateError) signal() {}

// ToErrorDetail implements DetailedError.
func (e *TerminateError) ToErrorDetail() *entities.ErrorDetail {
	code := fmt.Sprintf("exit_%d", e.Code)
	if e.Abort {
		code = "abort"
	}
	return &entities.ErrorDetail{Message: e.Error(), Type: "terminate", Code: code}
}

// NotImplementedError is raised by an import the emulation deliberately
// never provides.
type NotImplementedError struct {
	Name string
}

func (e *NotImplementedError) Error() string {
	return fmt.Sprintf("not yet implemented: %s", e.Name)
}

func (*NotImplementedError) signal() {}

// ToErrorDetail implements DetailedError.
func (e *NotImplementedError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "not_implemented", Code: e.Name}
}

// MemoryError describes a failed guest memory access.
type MemoryError struct {
	Op     string
	Offset uint32
	Length uint32
	Size   uint32
}

func (e *MemoryError) Error() string {
	return fmt.Sprintf("%s of %d bytes at offset %d: %v (memory size %d)",
		e.Op, e.Length, e.Offset, ErrOutOfBounds, e.Size)
}

func (e *MemoryError) Unwrap() error {
	return ErrOutOfBounds
}

// ToErrorDetail implements DetailedError.
func (e *MemoryError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "memory", Code: "out_of_bounds", Errno: -EFAULT}
}

// LinkError reports guest imports the registry cannot satisfy.
type LinkError struct {
	Module  string
	Missing []string
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("unresolved imports from module %q: %v", e.Module, e.Missing)
}

// ToErrorDetail implements DetailedError.
func (e *LinkError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{
		Message: e.Error(),
		Type:    "link",
		Code:    "missing_import",
		Details: map[string]any{"missing": e.Missing},
	}
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Err   error
	Field string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config validation failed for field '%s': %v", e.Field, e.Err)
	}
	return fmt.Sprintf("config validation failed: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *ConfigError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "config", Code: e.Field}
}

// IntegrityError reports a file-set blob whose digest differs from the pinned one.
type IntegrityError struct {
	Name     string
	Expected string
	Actual   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("digest mismatch for %s: expected %s, got %s", e.Name, e.Expected, e.Actual)
}

// ToErrorDetail implements DetailedError.
func (e *IntegrityError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "config", Code: "digest_mismatch"}
}

// DetailedError is an interface for custom error types that can convert themselves
// to a structured ErrorDetail.
type DetailedError interface {
	error
	ToErrorDetail() *entities.ErrorDetail
}

// ToErrorDetail converts a Go error to our structured ErrorDetail. Recoverable
// sentinels keep the errno the guest would have been given.
func ToErrorDetail(err error) *entities.ErrorDetail {
	if err == nil {
		return nil
	}

	var de DetailedError
	if stdErrors.As(err, &de) {
		return de.ToErrorDetail()
	}

	detail := &entities.ErrorDetail{
		Message: err.Error(),
		Type:    "internal",
	}
	if errno := Errno(err); errno != -1 {
		detail.Errno = errno
	}
	if stdErrors.Is(err, ErrNotFound) {
		detail.Type = "vfs"
		detail.Code = "not_found"
	}
	return detail
}
