// Package tuple implements Fluent's tuple representation, its column
// schema, and the stable content hash every tuple carries.
//
// The original implementation carries the column types at compile time via
// a template parameter pack (see the design notes in SPEC_FULL.md). Go has
// no variadic type parameters, so a Tuple here is a runtime []any slice
// paired with a Schema that records each column's declared ColumnType; every
// collection and pipeline stage checks shape at construction time instead of
// at compile time.
package tuple

import (
	"fmt"
	"hash/fnv"
)

// ColumnType enumerates the primitive types the wire codec and the lineage
// sink understand.
type ColumnType int

const (
	String ColumnType = iota
	Bool
	Int64
	Float64
	// Address is a string-shaped type, but spec.md requires a channel's
	// first column to be address-typed; keeping it distinct lets
	// collection.Channel validate that invariant.
	Address
)

func (c ColumnType) String() string {
	switch c {
	case String:
		return "string"
	case Bool:
		return "bool"
	case Int64:
		return "int64"
	case Float64:
		return "float64"
	case Address:
		return "address"
	default:
		return "unknown"
	}
}

// Schema is a collection or pipeline stage's type-level column list,
// represented at run time.
type Schema struct {
	Names []string
	Types []ColumnType
}

// NewSchema builds a Schema, panicking if names and types are mismatched in
// length (a configuration mistake made at declaration time, not run time).
func NewSchema(names []string, types []ColumnType) Schema {
	if len(names) != len(types) {
		panic(fmt.Sprintf("tuple: schema name/type length mismatch: %d names, %d types", len(names), len(types)))
	}
	return Schema{Names: append([]string(nil), names...), Types: append([]ColumnType(nil), types...)}
}

// Arity returns the number of columns.
func (s Schema) Arity() int { return len(s.Types) }

// Concat returns the schema formed by appending other's columns after s's,
// used by cross and hash-join.
func (s Schema) Concat(other Schema) Schema {
	names := make([]string, 0, len(s.Names)+len(other.Names))
	types := make([]ColumnType, 0, len(s.Types)+len(other.Types))
	names = append(append(names, s.Names...), other.Names...)
	types = append(append(types, s.Types...), other.Types...)
	return Schema{Names: names, Types: types}
}

// Project returns the schema restricted to the given column indices, in
// order; it panics if an index is out of range, matching the "statically
// enforced" range check spec.md §4.2 asks of project.
func (s Schema) Project(indices ...int) Schema {
	names := make([]string, len(indices))
	types := make([]ColumnType, len(indices))
	for i, idx := range indices {
		if idx < 0 || idx >= len(s.Types) {
			panic(fmt.Sprintf("tuple: project index %d out of range for arity %d", idx, len(s.Types)))
		}
		names[i] = s.Names[idx]
		types[i] = s.Types[idx]
	}
	return Schema{Names: names, Types: types}
}

// Tuple is a fixed-arity record. Column values must match the owning
// Schema's declared types in both count and kind; callers that build tuples
// by hand (pipeline map functions) are responsible for that invariant.
type Tuple []any

// Clone returns a shallow copy of t, safe to store independently of the
// source slice's backing array.
func (t Tuple) Clone() Tuple {
	out := make(Tuple, len(t))
	copy(out, t)
	return out
}

// Project returns a new tuple restricted to the given column indices.
func (t Tuple) Project(indices ...int) Tuple {
	out := make(Tuple, len(indices))
	for i, idx := range indices {
		out[i] = t[idx]
	}
	return out
}

// Concat returns a new tuple formed by appending other's columns after t's.
func (t Tuple) Concat(other Tuple) Tuple {
	out := make(Tuple, 0, len(t)+len(other))
	out = append(out, t...)
	out = append(out, other...)
	return out
}

// Hash computes the stable 64-bit content hash of t. Equal tuples (by
// value, per column) always hash equally, satisfying spec.md §8 property 3.
func Hash(t Tuple) uint64 {
	h := fnv.New64a()
	for _, col := range t {
		writeColumn(h, col)
	}
	return h.Sum64()
}

func writeColumn(h interface{ Write([]byte) (int, error) }, col any) {
	switch v := col.(type) {
	case string:
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(v))
	case bool:
		_, _ = h.Write([]byte{1})
		if v {
			_, _ = h.Write([]byte{1})
		} else {
			_, _ = h.Write([]byte{0})
		}
	case int64:
		_, _ = h.Write([]byte{2})
		_, _ = h.Write([]byte(fmt.Sprintf("%d", v)))
	case int:
		_, _ = h.Write([]byte{2})
		_, _ = h.Write([]byte(fmt.Sprintf("%d", v)))
	case float64:
		_, _ = h.Write([]byte{3})
		_, _ = h.Write([]byte(fmt.Sprintf("%g", v)))
	default:
		_, _ = h.Write([]byte{4})
		_, _ = h.Write([]byte(fmt.Sprintf("%v", v)))
	}
}

// Equal reports whether t and other are equal by column value.
func Equal(t, other Tuple) bool {
	if len(t) != len(other) {
		return false
	}
	for i := range t {
		if fmt.Sprintf("%v", t[i]) != fmt.Sprintf("%v", other[i]) {
			return false
		}
	}
	return true
}

// Key returns a string suitable for use as a map key for t, used by
// collections that store tuples in a map keyed by value (spec.md §3
// invariant 1: a collection never holds two entries with the same value).
func Key(t Tuple) string {
	parts := make([]string, len(t))
	for i, c := range t {
		parts[i] = fmt.Sprintf("%T:%v", c, c)
	}
	return fmt.Sprintf("%v", parts)
}
