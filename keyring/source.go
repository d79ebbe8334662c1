package keyring

import (
	"reflect"
	"strings"

	"github.com/cockroachdb/errors"
)

// maxLazyDepth bounds nested Lazy sources
const maxLazyDepth = 8

type kind int

const (
	kindNone kind = iota
	kindSingle
	kindList
	kindIndexed
	kindLazy
)

// Source describes where values of a key class come from.
// The zero value is an empty source.
type Source[T any] struct {
	kind    kind
	single  T
	list    []T
	indexed map[int]T
	lazy    func() (Source[T], error)
}

// None returns an empty source
func None[T any]() Source[T] {
	return Source[T]{}
}

// Single returns a source with one value at index 0.
// A blank value resolves to an empty ring.
func Single[T any](v T) Source[T] {
	return Source[T]{kind: kindSingle, single: v}
}

// List returns a source with values at contiguous indices starting from 0
func List[T any](values ...T) Source[T] {
	return Source[T]{kind: kindList, list: values}
}

// Indexed returns a source with explicit indices
func Indexed[T any](m map[int]T) Source[T] {
	return Source[T]{kind: kindIndexed, indexed: m}
}

// Lazy returns a source produced by f on every resolution.
// f is called without locking, it must be safe for concurrent use.
func Lazy[T any](f func() (Source[T], error)) Source[T] {
	return Source[T]{kind: kindLazy, lazy: f}
}

// IsZero returns true if the source was never configured
func (s Source[T]) IsZero() bool {
	return s.kind == kindNone
}

// Resolve returns the ring described by the source
func (s Source[T]) Resolve() (Ring[T], error) {
	return s.resolve(0)
}

func (s Source[T]) resolve(depth int) (Ring[T], error) {
	switch s.kind {
	case kindSingle:
		if IsBlank(s.single) {
			return Ring[T]{}, nil
		}
		return Ring[T]{entries: map[int]T{0: s.single}}, nil

	case kindList:
		if len(s.list) == 0 {
			return Ring[T]{}, nil
		}
		m := make(map[int]T, len(s.list))
		for i, v := range s.list {
			m[i] = v
		}
		return Ring[T]{entries: m}, nil

	case kindIndexed:
		if len(s.indexed) == 0 {
			return Ring[T]{}, nil
		}
		m := make(map[int]T, len(s.indexed))
		for i, v := range s.indexed {
			if i < 0 {
				return Ring[T]{}, &InvalidKeyIndexError{Index: i}
			}
			m[i] = v
		}
		return Ring[T]{entries: m}, nil

	case kindLazy:
		if s.lazy == nil {
			return Ring[T]{}, nil
		}
		if depth >= maxLazyDepth {
			return Ring[T]{}, errors.Errorf("lazy source nested deeper than %d", maxLazyDepth)
		}
		next, err := s.lazy()
		if err != nil {
			return Ring[T]{}, errors.WithMessage(err, "unable to resolve lazy source")
		}
		return next.resolve(depth + 1)
	}
	return Ring[T]{}, nil
}

// IsBlank returns true for nil, empty or whitespace-only strings,
// empty slices and maps, and nil pointers or interfaces.
func IsBlank(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	case reflect.String:
		return strings.TrimSpace(rv.String()) == ""
	}
	return false
}
