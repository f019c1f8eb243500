package ports

// Stream identifies a guest output stream.
type Stream int

const (
	Stdout Stream = 1
	Stderr Stream = 2
)

func (s Stream) String() string {
	switch s {
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	default:
		return "unknown"
	}
}

// LineSink receives complete guest output lines, without the trailing newline.
type LineSink interface {
	WriteLine(stream Stream, line string) error
}

// LineSinkFunc adapts a function to LineSink.
type LineSinkFunc func(stream Stream, line string) error

// WriteLine implements LineSink.
func (f LineSinkFunc) WriteLine(stream Stream, line string) error {
	return f(stream, line)
}
