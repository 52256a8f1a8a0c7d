package eel

import (
	"errors"
	"fmt"
)

// Row is an ordered sequence of values conforming to a schema. Rows are
// created once per input record and never mutated afterwards.
type Row struct {
	schema *Schema
	values []any
}

func NewRow(schema *Schema, values ...any) Row {
	return Row{schema: schema, values: values}
}

func (r Row) Schema() *Schema {
	return r.schema
}

func (r Row) Values() []any {
	return r.values
}

func (r Row) Len() int {
	return len(r.values)
}

func (r Row) Value(i int) any {
	return r.values[i]
}

func (r Row) Get(name string) (any, error) {
	i, found := r.schema.IndexOf(name)
	if !found {
		return nil, errors.Join(fmt.Errorf("column '%s'", name), ErrFieldNotFound)
	}

	return r.values[i], nil
}

// CheckValue reports whether v is an acceptable value for f. Nil is accepted
// only for nullable fields.
func CheckValue(f Field, v any) error {
	if v == nil {
		if !f.Nullable {
			return fmt.Errorf("null value for non-nullable column '%s'", f.Name)
		}
		return nil
	}

	ok := false
	switch f.Type {
	case TypeBool:
		_, ok = v.(bool)
	case TypeInt32:
		_, ok = v.(int32)
	case TypeInt64:
		_, ok = v.(int64)
	case TypeFloat64:
		_, ok = v.(float64)
	case TypeString:
		_, ok = v.(string)
	}

	if !ok {
		return fmt.Errorf("value %v (%T) does not match column '%s' of type %s", v, v, f.Name, f.Type)
	}

	return nil
}
