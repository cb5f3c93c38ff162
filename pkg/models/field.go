package models

import "encoding/json"

type fieldState uint8

const (
	fieldUnset fieldState = iota
	fieldSet
	fieldCleared
)

// Field is a tri-state value used by partial updates: unset (not mentioned),
// set to a value, or explicitly cleared. The zero Field is unset.
type Field[T any] struct {
	state fieldState
	value T
}

func Set[T any](v T) Field[T] {
	return Field[T]{state: fieldSet, value: v}
}

func Cleared[T any]() Field[T] {
	return Field[T]{state: fieldCleared}
}

// Present reports whether the field was mentioned at all (set or cleared).
func (f Field[T]) Present() bool { return f.state != fieldUnset }

func (f Field[T]) IsSet() bool { return f.state == fieldSet }

func (f Field[T]) IsCleared() bool { return f.state == fieldCleared }

// Value returns the set value. ok is false for unset and cleared fields.
func (f Field[T]) Value() (T, bool) {
	return f.value, f.state == fieldSet
}

// IsZero lets `omitzero` drop unset fields when encoding.
func (f Field[T]) IsZero() bool { return f.state == fieldUnset }

func (f Field[T]) MarshalJSON() ([]byte, error) {
	if f.state != fieldSet {
		return []byte("null"), nil
	}
	return json.Marshal(f.value)
}
