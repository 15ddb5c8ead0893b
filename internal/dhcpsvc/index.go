package dhcpsvc

import "github.com/AdguardTeam/golibs/errors"

// index is an associative index of unique keys.  The removal of a value is
// guarded by an equality check and followed by a removal callback, so that the
// same index serves both the full removal and the fake one.
type index[K comparable, V any] struct {
	values map[K]V
}

// newIndex returns a new properly initialized *index.
func newIndex[K comparable, V any]() (idx *index[K, V]) {
	return &index[K, V]{
		values: map[K]V{},
	}
}

// insert adds v under k.  It returns [errors.ErrDuplicated] if k is already
// present.
func (idx *index[K, V]) insert(k K, v V) (err error) {
	if _, ok := idx.values[k]; ok {
		return errors.ErrDuplicated
	}

	idx.values[k] = v

	return nil
}

// find returns the value under k.
func (idx *index[K, V]) find(k K) (v V, ok bool) {
	v, ok = idx.values[k]

	return v, ok
}

// delete removes the value under k if equal returns true for it, and then
// calls onRemove with it, if onRemove is not nil.  equal must not be nil.
func (idx *index[K, V]) delete(k K, equal func(v V) (ok bool), onRemove func(v V)) (ok bool) {
	v, ok := idx.values[k]
	if !ok || !equal(v) {
		return false
	}

	delete(idx.values, k)
	if onRemove != nil {
		onRemove(v)
	}

	return true
}

// len returns the number of values in idx.
func (idx *index[K, V]) len() (n int) {
	return len(idx.values)
}
