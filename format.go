package eel

import (
	"errors"
	"os"
)

var ErrUnknownFormat = errors.New("unknown file format")

// FormatWriter encodes rows of one schema into one physical file. The sink
// never inspects the encoded bytes. Implementations are not safe for
// concurrent use; the sink guarantees a single writing goroutine per
// FormatWriter.
type FormatWriter interface {
	Write(Row) error
	Close() error
}

// FormatFactory opens FormatWriters for a given file format.
type FormatFactory interface {
	// Extension returns the filename extension including the dot.
	Extension() string
	Open(fs Filesystem, path string, schema *Schema, perm os.FileMode, metadata map[string]string) (FormatWriter, error)
}

// RowSink is anything rows can be pushed into and closed once.
type RowSink interface {
	Write(Row) error
	Close() error
}
