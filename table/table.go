// File: table/table.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Order-preserving, compacting connection table keyed by socket handle.
// Not safe for concurrent mutation; callers serialize Append/RemoveAt/Clear.

package table

import (
	"iter"

	"github.com/momentics/uhttp/api"
)

const minCapacity = 4

// Keyed is implemented by records stored in a Table.
type Keyed interface {
	Handle() api.Handle
}

// Table is an owned, growable sequence of records with unique handles.
// Indices shift down on removal; only the handle is a stable reference.
type Table[T Keyed] struct {
	items []T
	limit int
}

// New creates an empty table. limit > 0 bounds the number of records.
func New[T Keyed](limit int) *Table[T] {
	if limit < 0 {
		limit = 0
	}
	return &Table[T]{limit: limit}
}

// Len returns the logical length.
func (t *Table[T]) Len() int { return len(t.items) }

// Cap returns the capacity of the backing storage.
func (t *Table[T]) Cap() int { return cap(t.items) }

// Limit returns the configured record limit, 0 when unbounded.
func (t *Table[T]) Limit() int { return t.limit }

// Append adds v at the end. On failure the table is unchanged.
func (t *Table[T]) Append(v T) error {
	h := v.Handle()
	if !h.Valid() {
		return api.NewError(api.ErrCodeInvalidArgument, "append record with invalid handle")
	}
	if t.limit > 0 && len(t.items) >= t.limit {
		return api.NewError(api.ErrCodeResourceExhausted, "connection table full").WithContext("limit", t.limit)
	}
	if t.FindByHandle(h) >= 0 {
		return api.NewError(api.ErrCodeAlreadyExists, "duplicate handle").WithContext("handle", h.String())
	}
	if len(t.items) == cap(t.items) {
		t.resize(max(minCapacity, 2*cap(t.items)))
	}
	t.items = append(t.items, v)
	return nil
}

// RemoveAt removes the record at index i, shifting later records down by one.
func (t *Table[T]) RemoveAt(i int) (T, error) {
	var zero T
	if i < 0 || i >= len(t.items) {
		return zero, api.NewError(api.ErrCodeInvalidArgument, "index out of range").
			WithContext("index", i).WithContext("len", len(t.items))
	}
	v := t.items[i]
	n := copy(t.items[i:], t.items[i+1:])
	t.items[i+n] = zero
	t.items = t.items[:i+n]

	// Shrinking only releases memory; visible content is already final.
	if c := cap(t.items); c > minCapacity && len(t.items) <= c/4 {
		t.resize(max(minCapacity, c/2))
	}
	return v, nil
}

// Clear releases backing storage. The table is immediately reusable.
func (t *Table[T]) Clear() {
	t.items = nil
}

// At returns the record at index i.
func (t *Table[T]) At(i int) (T, bool) {
	if i < 0 || i >= len(t.items) {
		var zero T
		return zero, false
	}
	return t.items[i], true
}

// FindByHandle returns the index of the record keyed by h, or -1.
func (t *Table[T]) FindByHandle(h api.Handle) int {
	for i, v := range t.items {
		if v.Handle() == h {
			return i
		}
	}
	return -1
}

// All iterates records in index order. The table must not be mutated
// during iteration; use Handles to snapshot keys for mutating passes.
func (t *Table[T]) All() iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		for i, v := range t.items {
			if !yield(i, v) {
				return
			}
		}
	}
}

// Handles returns a copy of the record keys in index order.
func (t *Table[T]) Handles() []api.Handle {
	out := make([]api.Handle, len(t.items))
	for i, v := range t.items {
		out[i] = v.Handle()
	}
	return out
}

func (t *Table[T]) resize(capacity int) {
	items := make([]T, len(t.items), capacity)
	copy(items, t.items)
	t.items = items
}
