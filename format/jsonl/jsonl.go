package formatjsonl

import (
	"encoding/json"
	"errors"
	"io"
	"os"

	eel "github.com/bjitd/eel-sdk"
)

// New returns a JSON-lines format delegate: one JSON object per row, keys in
// arbitrary order, column order materialized only in the schema.
func New() eel.FormatFactory {
	return &factory{}
}

type factory struct{}

func (f *factory) Extension() string {
	return ".jsonl"
}

func (f *factory) Open(fs eel.Filesystem, path string, schema *eel.Schema, perm os.FileMode, _ map[string]string) (eel.FormatWriter, error) {
	file, err := fs.CreateFile(path)
	if err != nil {
		return nil, errors.Join(errors.New("error creating data file: "), err)
	}

	return &jsonlWriter{
		schema: schema,
		file:   file,
		fs:     fs,
		path:   path,
		perm:   perm,
		enc:    json.NewEncoder(file),
	}, nil
}

type jsonlWriter struct {
	schema *eel.Schema
	file   io.WriteCloser
	fs     eel.Filesystem
	path   string
	perm   os.FileMode
	enc    *json.Encoder
}

func (w *jsonlWriter) Write(row eel.Row) error {
	doc := make(map[string]any, w.schema.Len())
	for i, f := range w.schema.Fields() {
		if err := eel.CheckValue(f, row.Value(i)); err != nil {
			return err
		}
		doc[f.Name] = row.Value(i)
	}

	return w.enc.Encode(doc)
}

func (w *jsonlWriter) Close() error {
	if err := w.file.Close(); err != nil {
		return err
	}

	return w.fs.SetPermission(w.path, w.perm)
}
