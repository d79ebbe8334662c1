package keyring

import (
	"fmt"
	"sort"

	"github.com/cockroachdb/errors"
)

// ErrInvalidKeyIndex is matched by every InvalidKeyIndexError
var ErrInvalidKeyIndex = errors.New("invalid key index")

// InvalidKeyIndexError is returned when a key class has no value at the
// requested index. It indicates a deployment or configuration problem.
type InvalidKeyIndexError struct {
	// Class is the key class: secret_key, public_key, algorithm or audience
	Class string
	Index int
}

// Error implements error
func (e *InvalidKeyIndexError) Error() string {
	if e.Class == "" {
		return fmt.Sprintf("invalid key index: %d", e.Index)
	}
	return fmt.Sprintf("invalid key index: %s[%d]", e.Class, e.Index)
}

// Is allows errors.Is(err, ErrInvalidKeyIndex)
func (e *InvalidKeyIndexError) Is(target error) bool {
	return target == ErrInvalidKeyIndex
}

// IsInvalidKeyIndex returns true if err is caused by InvalidKeyIndexError
func IsInvalidKeyIndex(err error) bool {
	return errors.Is(err, ErrInvalidKeyIndex)
}

// Ring is a resolved mapping from key index to value.
// The zero value is an empty ring.
type Ring[T any] struct {
	entries map[int]T
}

// Len returns the number of entries
func (r Ring[T]) Len() int {
	return len(r.entries)
}

// Indices returns the indices in ascending order
func (r Ring[T]) Indices() []int {
	list := make([]int, 0, len(r.entries))
	for i := range r.entries {
		list = append(list, i)
	}
	sort.Ints(list)
	return list
}

// Get returns the value at index i
func (r Ring[T]) Get(i int) (T, bool) {
	v, ok := r.entries[i]
	return v, ok
}

// Lookup returns the value at index i,
// or InvalidKeyIndexError for the class if the index is not present.
func (r Ring[T]) Lookup(class string, i int) (T, error) {
	v, ok := r.entries[i]
	if !ok {
		return v, &InvalidKeyIndexError{Class: class, Index: i}
	}
	return v, nil
}

// Map returns a copy of the entries
func (r Ring[T]) Map() map[int]T {
	m := make(map[int]T, len(r.entries))
	for i, v := range r.entries {
		m[i] = v
	}
	return m
}

// Merge returns a new ring with entries of r overridden by entries of other
// at colliding indices. Neither r nor other is modified.
func (r Ring[T]) Merge(other Ring[T]) Ring[T] {
	m := r.Map()
	for i, v := range other.entries {
		m[i] = v
	}
	return Ring[T]{entries: m}
}

// Resolve is a shortcut for s.Resolve
func Resolve[T any](s Source[T]) (Ring[T], error) {
	return s.Resolve()
}
