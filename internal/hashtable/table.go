// Package hashtable provides the object index used by the cache policies.
//
// Policies only rely on Find, Insert and Delete, so the backing structure
// can change without touching eviction code.
package hashtable

// Table maps object ids to values. It is not safe for concurrent use; every
// cache instance owns its table.
type Table[V any] struct {
	m map[uint64]V
}

// New creates a table. hashPower is a sizing hint: the table is pre-sized
// for 1<<hashPower entries. Values outside [0, 30] are ignored.
func New[V any](hashPower int) *Table[V] {
	size := 0
	if hashPower > 0 && hashPower <= 30 {
		size = 1 << hashPower
	}
	return &Table[V]{m: make(map[uint64]V, size)}
}

// Find returns the value stored for id.
func (t *Table[V]) Find(id uint64) (V, bool) {
	v, ok := t.m[id]
	return v, ok
}

// Insert stores v for id, replacing any previous value.
func (t *Table[V]) Insert(id uint64, v V) {
	t.m[id] = v
}

// Delete removes id and reports whether it was present.
func (t *Table[V]) Delete(id uint64) bool {
	if _, ok := t.m[id]; !ok {
		return false
	}
	delete(t.m, id)
	return true
}

// Len returns the number of entries.
func (t *Table[V]) Len() int {
	return len(t.m)
}

// Range calls fn for every entry until fn returns false.
func (t *Table[V]) Range(fn func(id uint64, v V) bool) {
	for id, v := range t.m {
		if !fn(id, v) {
			return
		}
	}
}
