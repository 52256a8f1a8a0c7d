package formatparquet

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	eel "github.com/bjitd/eel-sdk"
	"github.com/thehivecorporation/log"
	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

// New returns the parquet format delegate. The on-disk column order is the
// schema's field order.
func New() eel.FormatFactory {
	return &factory{}
}

type factory struct{}

func (f *factory) Extension() string {
	return ".parquet"
}

func (f *factory) Open(fs eel.Filesystem, path string, schema *eel.Schema, perm os.FileMode, metadata map[string]string) (eel.FormatWriter, error) {
	file, err := fs.CreateFile(path)
	if err != nil {
		return nil, errors.Join(errors.New("error creating data file: "), err)
	}

	pw, err := writer.NewJSONWriter(jsonSchema(schema), writerfile.NewWriterFile(file), eel.PARQUET_NUMBER_OF_THREADS)
	if err != nil {
		file.Close()
		return nil, errors.Join(errors.New("error creating parquet writer: "), err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	if len(metadata) > 0 {
		// TODO: propagate metadata into the parquet footer key/value pairs
		log.Debugf("Ignoring %d metadata entries for '%s'", len(metadata), path)
	}

	return &parquetWriter{
		schema: schema,
		file:   file,
		fs:     fs,
		path:   path,
		perm:   perm,
		pw:     pw,
	}, nil
}

type parquetWriter struct {
	schema *eel.Schema
	file   io.WriteCloser
	fs     eel.Filesystem
	path   string
	perm   os.FileMode
	pw     *writer.JSONWriter
}

func (w *parquetWriter) Write(row eel.Row) error {
	doc := make(map[string]any, w.schema.Len())
	for i, f := range w.schema.Fields() {
		if err := eel.CheckValue(f, row.Value(i)); err != nil {
			return err
		}
		doc[f.Name] = row.Value(i)
	}

	encoded, err := json.Marshal(doc)
	if err != nil {
		return errors.Join(errors.New("error encoding row: "), err)
	}

	return w.pw.Write(string(encoded))
}

func (w *parquetWriter) Close() error {
	if err := w.pw.WriteStop(); err != nil {
		w.file.Close()
		return errors.Join(errors.New("error finishing parquet file: "), err)
	}

	if err := w.file.Close(); err != nil {
		return err
	}

	return w.fs.SetPermission(w.path, w.perm)
}

func fieldTag(f eel.Field) string {
	var t string
	switch f.Type {
	case eel.TypeBool:
		t = "type=BOOLEAN"
	case eel.TypeInt32:
		t = "type=INT32"
	case eel.TypeInt64:
		t = "type=INT64"
	case eel.TypeFloat64:
		t = "type=DOUBLE"
	case eel.TypeString:
		t = "type=BYTE_ARRAY, convertedtype=UTF8"
	}

	repetition := "REQUIRED"
	if f.Nullable {
		repetition = "OPTIONAL"
	}

	return fmt.Sprintf("name=%s, %s, repetitiontype=%s", f.Name, t, repetition)
}

func jsonSchema(schema *eel.Schema) string {
	fields := make([]string, 0, schema.Len())
	for _, f := range schema.Fields() {
		fields = append(fields, fmt.Sprintf(`{"Tag": "%s"}`, fieldTag(f)))
	}

	return fmt.Sprintf(`{"Tag": "name=parquet_go_root", "Fields": [%s]}`, strings.Join(fields, ", "))
}
