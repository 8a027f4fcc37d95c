package telemetry

import (
	"bufio"
	"os"
)

// FileSink appends formatted records to a plain text file, buffered and
// flushed explicitly by the writer.
type FileSink struct {
	file *os.File
	w    *bufio.Writer
}

// NewFileSink opens (creating/appending) path for writing.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	return &FileSink{file: f, w: bufio.NewWriter(f)}, nil
}

// Write appends one formatted record followed by a newline.
func (s *FileSink) Write(rec Record) error {
	_, err := s.w.WriteString(rec.Format() + "\n")
	return err
}

// Flush pushes buffered bytes to the underlying file.
func (s *FileSink) Flush() error {
	return s.w.Flush()
}

// Close flushes and closes the underlying file.
func (s *FileSink) Close() error {
	if err := s.Flush(); err != nil {
		return err
	}

	return s.file.Close()
}
