package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/reglet-dev/pseudokernel/domain/ports"
)

// WriterSink writes guest lines verbatim, one per line, to the writer of
// their stream.
type WriterSink struct {
	stdout io.Writer
	stderr io.Writer
}

// NewWriterSink routes guest stdout to stdout and guest stderr to stderr.
func NewWriterSink(stdout, stderr io.Writer) *WriterSink {
	return &WriterSink{stdout: stdout, stderr: stderr}
}

// WriteLine implements ports.LineSink.
func (s *WriterSink) WriteLine(stream ports.Stream, line string) error {
	w := s.stdout
	if stream == ports.Stderr {
		w = s.stderr
	}
	_, err := fmt.Fprintln(w, line)
	return err
}

// SlogSink records guest lines as log records with a "stream" attribute.
type SlogSink struct {
	logger *slog.Logger
	level  slog.Level
}

// NewSlogSink logs guest lines at info level.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return &SlogSink{logger: logger, level: slog.LevelInfo}
}

// WriteLine implements ports.LineSink.
func (s *SlogSink) WriteLine(stream ports.Stream, line string) error {
	s.logger.Log(context.Background(), s.level, line, "stream", stream.String())
	return nil
}

var (
	_ ports.LineSink = (*WriterSink)(nil)
	_ ports.LineSink = (*SlogSink)(nil)
)
