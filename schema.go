package eel

import (
	"errors"
	"fmt"
	"strings"
)

type DataType int

const (
	TypeBool DataType = iota
	TypeInt32
	TypeInt64
	TypeFloat64
	TypeString
)

var DataTypeMap = map[DataType]string{
	TypeBool:    "bool",
	TypeInt32:   "int32",
	TypeInt64:   "int64",
	TypeFloat64: "float64",
	TypeString:  "string",
}

var ReverseDataTypeMap = map[string]DataType{
	"bool":    TypeBool,
	"int32":   TypeInt32,
	"int64":   TypeInt64,
	"float64": TypeFloat64,
	"string":  TypeString,
}

func (d DataType) String() string {
	return DataTypeMap[d]
}

var ErrFieldNotFound = errors.New("field not found in schema")

type Field struct {
	Name     string
	Type     DataType
	Nullable bool
}

// Schema is an ordered sequence of fields. Column order is significant: it
// defines the on-disk column order of every file written with it.
type Schema struct {
	fields []Field
	byName map[string]int
}

func NewSchema(fields ...Field) *Schema {
	s := &Schema{
		fields: fields,
		byName: make(map[string]int, len(fields)),
	}

	for i, f := range fields {
		s.byName[f.Name] = i
	}

	return s
}

func (s *Schema) Fields() []Field {
	return s.fields
}

func (s *Schema) Len() int {
	return len(s.fields)
}

func (s *Schema) Field(i int) Field {
	return s.fields[i]
}

func (s *Schema) IndexOf(name string) (int, bool) {
	i, found := s.byName[name]
	return i, found
}

func (s *Schema) FieldByName(name string) (Field, error) {
	i, found := s.byName[name]
	if !found {
		return Field{}, errors.Join(fmt.Errorf("field '%s'", name), ErrFieldNotFound)
	}

	return s.fields[i], nil
}

// Without returns a new schema with the named fields removed, preserving the
// relative order of the remaining fields.
func (s *Schema) Without(names ...string) *Schema {
	drop := make(map[string]struct{}, len(names))
	for _, n := range names {
		drop[n] = struct{}{}
	}

	kept := make([]Field, 0, len(s.fields))
	for _, f := range s.fields {
		if _, found := drop[f.Name]; found {
			continue
		}
		kept = append(kept, f)
	}

	return NewSchema(kept...)
}

func (s *Schema) Equals(other *Schema) bool {
	if s == other {
		return true
	}

	if other == nil || len(s.fields) != len(other.fields) {
		return false
	}

	for i, f := range s.fields {
		if f != other.fields[i] {
			return false
		}
	}

	return true
}

func (s *Schema) String() string {
	names := make([]string, 0, len(s.fields))
	for _, f := range s.fields {
		names = append(names, fmt.Sprintf("%s %s", f.Name, f.Type))
	}

	return strings.Join(names, ", ")
}
