// Package container defines the hierarchical, named structure that is handed
// to a structured file writer.
//
// A container is a Struct whose fields are Variables: numeric arrays with
// explicit per-axis dimensions, numeric vectors, string scalars and nested
// structs. The on-disk encoding is owned by the encoder packages.
package container

import (
	"fmt"
)

// Kind identifies the concrete type of a Variable.
type Kind int

const (
	KindStruct Kind = iota
	KindArray
	KindVector
	KindIntVector
	KindString
)

// String returns a human-readable representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindStruct:
		return "struct"
	case KindArray:
		return "array"
	case KindVector:
		return "vector"
	case KindIntVector:
		return "int_vector"
	case KindString:
		return "string"
	default:
		return "unknown"
	}
}

// Variable is a named entry of a container.
// The set of implementations is closed: *Struct, *Array, *Vector,
// *IntVector and *String.
type Variable interface {
	VariableName() string
	Kind() Kind
	variable()
}

// Array is a multi-dimensional float64 array stored in row-major order of
// its leading axes. The product of Dims always equals len(Data).
type Array struct {
	Name string
	Dims []int
	Data []float64
}

// NewArray creates an array, checking that dims describe exactly len(data) values.
func NewArray(name string, dims []int, data []float64) (*Array, error) {
	if len(dims) == 0 {
		return nil, fmt.Errorf("array %q: no dimensions", name)
	}

	total := 1
	for i, d := range dims {
		if d < 0 {
			return nil, fmt.Errorf("array %q: negative dimension %d at axis %d", name, d, i)
		}
		total *= d
	}

	if total != len(data) {
		return nil, fmt.Errorf("array %q: dimensions %v describe %d values, got %d", name, dims, total, len(data))
	}

	return &Array{Name: name, Dims: dims, Data: data}, nil
}

func (a *Array) VariableName() string { return a.Name }
func (a *Array) Kind() Kind           { return KindArray }
func (a *Array) variable()            {}

// Vector is a one-dimensional float64 sequence.
type Vector struct {
	Name string
	Data []float64
}

func (v *Vector) VariableName() string { return v.Name }
func (v *Vector) Kind() Kind           { return KindVector }
func (v *Vector) variable()            {}

// IntVector is a one-dimensional integer sequence.
type IntVector struct {
	Name string
	Data []int
}

func (v *IntVector) VariableName() string { return v.Name }
func (v *IntVector) Kind() Kind           { return KindIntVector }
func (v *IntVector) variable()            {}

// String is a named string scalar.
type String struct {
	Name  string
	Value string
}

func (s *String) VariableName() string { return s.Name }
func (s *String) Kind() Kind           { return KindString }
func (s *String) variable()            {}

// Struct is an ordered, named aggregate of variables.
type Struct struct {
	Name   string
	Fields []Variable
}

// NewStruct creates a struct holding fields in the given order.
func NewStruct(name string, fields ...Variable) *Struct {
	return &Struct{Name: name, Fields: fields}
}

func (s *Struct) VariableName() string { return s.Name }
func (s *Struct) Kind() Kind           { return KindStruct }
func (s *Struct) variable()            {}

// Field returns the first field with the given name.
func (s *Struct) Field(name string) (Variable, bool) {
	for _, f := range s.Fields {
		if f.VariableName() == name {
			return f, true
		}
	}
	return nil, false
}

// Structs returns the nested struct fields, in order.
func (s *Struct) Structs() []*Struct {
	var out []*Struct
	for _, f := range s.Fields {
		if child, ok := f.(*Struct); ok {
			out = append(out, child)
		}
	}
	return out
}

// Channel is a flattened view of one channel entry, as built by the
// buffer manager: a struct with "data", "dimensions", "name" and
// "timestamps" fields.
type Channel struct {
	Name       string
	Dimensions []int
	Data       []float64
	Timestamps []float64
}

// Field names of a channel entry.
const (
	FieldData       = "data"
	FieldDimensions = "dimensions"
	FieldName       = "name"
	FieldTimestamps = "timestamps"
)

// NewChannelEntry builds the struct stored for one flushed channel.
// dims is [rows, cols, timesteps]; data holds the flattened samples.
func NewChannelEntry(name string, dims []int, data, timestamps []float64) (*Struct, error) {
	arr, err := NewArray(FieldData, dims, data)
	if err != nil {
		return nil, err
	}

	dimsCopy := make([]int, len(dims))
	copy(dimsCopy, dims)

	return NewStruct(name,
		arr,
		&IntVector{Name: FieldDimensions, Data: dimsCopy},
		&String{Name: FieldName, Value: name},
		&Vector{Name: FieldTimestamps, Data: timestamps},
	), nil
}

// AsChannel reads a channel entry back into its flattened view.
func AsChannel(s *Struct) (Channel, error) {
	ch := Channel{Name: s.Name}

	for _, f := range s.Fields {
		switch v := f.(type) {
		case *Array:
			if v.Name == FieldData {
				ch.Data = v.Data
			}
		case *IntVector:
			if v.Name == FieldDimensions {
				ch.Dimensions = v.Data
			}
		case *String:
			if v.Name == FieldName {
				ch.Name = v.Value
			}
		case *Vector:
			if v.Name == FieldTimestamps {
				ch.Timestamps = v.Data
			}
		}
	}

	if ch.Dimensions == nil {
		return Channel{}, fmt.Errorf("struct %q is not a channel entry: missing %q", s.Name, FieldDimensions)
	}
	return ch, nil
}

// Channels returns the channel entries nested directly in root.
func Channels(root *Struct) ([]Channel, error) {
	structs := root.Structs()
	out := make([]Channel, 0, len(structs))
	for _, s := range structs {
		ch, err := AsChannel(s)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, nil
}
