package log

import (
	"fmt"
	"io"
	"os"
)

// ConsoleOutput writes formatted entries to stdout, routing warnings and
// errors to stderr.
type ConsoleOutput struct{}

// NewConsoleOutput constructs a ConsoleOutput.
func NewConsoleOutput() *ConsoleOutput { return &ConsoleOutput{} }

func (c *ConsoleOutput) Write(entry *Entry, formatted []byte) error {
	w := io.Writer(os.Stdout)
	if entry.Level >= WarnLevel {
		w = os.Stderr
	}
	_, err := fmt.Fprintln(w, string(formatted))
	return err
}

func (c *ConsoleOutput) Close() error { return nil }

// WriterOutput writes formatted entries to an arbitrary io.Writer.
type WriterOutput struct {
	W io.Writer
}

func NewWriterOutput(w io.Writer) *WriterOutput { return &WriterOutput{W: w} }

func (o *WriterOutput) Write(entry *Entry, formatted []byte) error {
	_, err := fmt.Fprintln(o.W, string(formatted))
	return err
}

func (o *WriterOutput) Close() error { return nil }

// NullOutput discards all entries.
type NullOutput struct{}

func (NullOutput) Write(*Entry, []byte) error { return nil }
func (NullOutput) Close() error               { return nil }
