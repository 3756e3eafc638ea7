package transcript

import (
	"fmt"
	"slices"
)

// Well-known annotation keys.
const (
	KeyPage  = "page"
	KeyScan  = "scan"
	KeyNotes = "notes"
)

// Annotations is an ordered key/value record attached to a page.
//
// Keys keep their first insertion position; setting an existing key replaces
// its value in place. Serialization follows this order, which makes
// round-trips reproducible.
//
// The zero value is an empty record ready to use.
type Annotations struct {
	keys   []string
	values map[string]Scalar
}

// NewAnnotations returns a record holding only the page key.
func NewAnnotations(pageID string) *Annotations {
	a := &Annotations{}
	a.Set(KeyPage, StringScalar(pageID))

	return a
}

// Set stores value under key.
func (a *Annotations) Set(key string, value Scalar) {
	if a.values == nil {
		a.values = make(map[string]Scalar)
	}

	if _, ok := a.values[key]; !ok {
		a.keys = append(a.keys, key)
	}

	a.values[key] = value
}

// Get returns the value stored under key.
func (a *Annotations) Get(key string) (Scalar, bool) {
	if a == nil {
		return Scalar{}, false
	}

	v, ok := a.values[key]

	return v, ok
}

// Delete removes key. Missing keys are ignored.
func (a *Annotations) Delete(key string) {
	if a == nil {
		return
	}

	if _, ok := a.values[key]; !ok {
		return
	}

	delete(a.values, key)
	a.keys = slices.DeleteFunc(a.keys, func(k string) bool { return k == key })
}

// Keys returns the keys in insertion order.
func (a *Annotations) Keys() []string {
	if a == nil {
		return nil
	}

	return slices.Clone(a.keys)
}

// Len returns the number of keys.
func (a *Annotations) Len() int {
	if a == nil {
		return 0
	}

	return len(a.keys)
}

// All calls yield for every entry in order; yield returning false stops.
func (a *Annotations) All(yield func(key string, value Scalar) bool) {
	if a == nil {
		return
	}

	for _, k := range a.keys {
		if !yield(k, a.values[k]) {
			return
		}
	}
}

// Clone returns a deep copy.
func (a *Annotations) Clone() *Annotations {
	out := &Annotations{}
	if a == nil {
		return out
	}

	out.keys = slices.Clone(a.keys)
	out.values = make(map[string]Scalar, len(a.values))

	for k, v := range a.values {
		out.values[k] = v
	}

	return out
}

// Equal reports whether both records hold the same entries in the same order.
func (a *Annotations) Equal(other *Annotations) bool {
	if a.Len() != other.Len() {
		return false
	}

	for i, k := range a.Keys() {
		if other.keys[i] != k || !a.values[k].Equal(other.values[k]) {
			return false
		}
	}

	return true
}

// PageID returns the page identifier: the text form of the "page" value.
//
// Returns [ErrMissingPageID] when the key is absent and [ErrInvalidPageID]
// when the value is not a non-empty string or an integer.
func (a *Annotations) PageID() (string, error) {
	v, ok := a.Get(KeyPage)
	if !ok {
		return "", ErrMissingPageID
	}

	return pageIDFromScalar(v)
}

// Scan returns the integer scan number, if present and well-typed.
func (a *Annotations) Scan() (int64, bool) {
	v, ok := a.Get(KeyScan)
	if !ok {
		return 0, false
	}

	n, err := v.AsInt()

	return n, err == nil
}

// Notes returns the free-text notes, if present and well-typed.
func (a *Annotations) Notes() (string, bool) {
	v, ok := a.Get(KeyNotes)
	if !ok {
		return "", false
	}

	s, err := v.AsString()

	return s, err == nil
}

// Map returns the entries as plain Go values, for JSON output.
func (a *Annotations) Map() map[string]any {
	out := make(map[string]any, a.Len())

	a.All(func(k string, v Scalar) bool {
		out[k] = v.native()

		return true
	})

	return out
}

func pageIDFromScalar(v Scalar) (string, error) {
	switch v.Kind() {
	case ScalarString:
		if v.Text() == "" {
			return "", fmt.Errorf("%w: empty string", ErrInvalidPageID)
		}

		return v.Text(), nil
	case ScalarInt:
		return v.Text(), nil
	default:
		return "", fmt.Errorf("%w: %s value %s", ErrInvalidPageID, v.Kind(), v)
	}
}
