package eel

import (
	"errors"
	"fmt"
)

var ErrSchemaMismatch = errors.New("row schema does not match projection source")

// Projection reorders and pads the values of an incoming row so that they
// match a target schema. Columns present in the source but absent from the
// target are dropped. Columns absent from the source are padded with null,
// which is only legal when the target field is nullable; that case is
// rejected here, at construction, never per row.
type Projection struct {
	source  *Schema
	target  *Schema
	mapping []int // target position -> source position, -1 pads null
	noop    bool
}

func NewProjection(source, target *Schema) (*Projection, error) {
	mapping := make([]int, target.Len())

	for i, f := range target.Fields() {
		idx, found := source.IndexOf(f.Name)
		if !found {
			if !f.Nullable {
				return nil, fmt.Errorf("non-nullable column '%s' is missing from the source schema", f.Name)
			}
			mapping[i] = -1
			continue
		}
		mapping[i] = idx
	}

	noop := source.Equals(target)
	if noop {
		for i, idx := range mapping {
			if i != idx {
				noop = false
				break
			}
		}
	}

	return &Projection{source: source, target: target, mapping: mapping, noop: noop}, nil
}

func (p *Projection) Target() *Schema {
	return p.target
}

// Apply projects row onto the target schema. A row already conforming to the
// target is returned untouched.
func (p *Projection) Apply(row Row) (Row, error) {
	if row.Schema() != p.source && !row.Schema().Equals(p.source) {
		return Row{}, errors.Join(fmt.Errorf("row schema [%s]", row.Schema()), ErrSchemaMismatch)
	}

	if p.noop {
		return row, nil
	}

	values := make([]any, len(p.mapping))
	for i, idx := range p.mapping {
		if idx == -1 {
			continue
		}
		values[i] = row.Value(idx)
	}

	return NewRow(p.target, values...), nil
}
