package entities

import (
	"log/slog"
	"sort"
)

// ErrorDetail is the structured form of a host failure, attached to log
// records so a run that ends in a link, memory or termination failure can be
// told apart without parsing the message.
// Types: "memory", "vfs", "link", "config", "terminate", "not_implemented", "internal"
type ErrorDetail struct {
	// Details holds extra fields, for example the missing import names.
	Details map[string]any `json:"details,omitempty"`

	Message string `json:"message"`
	Type    string `json:"type"`

	// Code is a machine-readable reason within Type.
	Code string `json:"code,omitempty"`

	// Errno is the negative result the guest would see for a recoverable
	// error, zero for signals and host failures.
	Errno int32 `json:"errno,omitempty"`
}

// LogValue renders the detail as a group. Message is omitted since the
// record already carries the error text.
func (e *ErrorDetail) LogValue() slog.Value {
	if e == nil {
		return slog.GroupValue()
	}
	attrs := []slog.Attr{slog.String("type", e.Type)}
	if e.Code != "" {
		attrs = append(attrs, slog.String("code", e.Code))
	}
	if e.Errno != 0 {
		attrs = append(attrs, slog.Int("errno", int(e.Errno)))
	}
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, e.Details[k]))
	}
	return slog.GroupValue(attrs...)
}
