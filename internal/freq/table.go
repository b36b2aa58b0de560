// Package freq counts keys and ranks them.
//
// A Table is owned by exactly one goroutine. It has no lock; handing it to
// another goroutine while the owner still writes to it is a data race.
package freq

// Table maps a key to the number of times it has been counted.
type Table struct {
	counts map[string]uint64
	total  uint64
}

func NewTable() *Table {
	return &Table{counts: make(map[string]uint64)}
}

// Inc counts one more occurrence of key, inserting it at 1 if absent.
func (t *Table) Inc(key string) {
	t.counts[key]++
	t.total++
}

// Count returns the count for key, 0 if it was never counted.
func (t *Table) Count(key string) uint64 {
	return t.counts[key]
}

// Len returns the number of distinct keys.
func (t *Table) Len() int {
	return len(t.counts)
}

// Total returns the sum of all counts.
func (t *Table) Total() uint64 {
	return t.total
}

// Clear drops every key.
func (t *Table) Clear() {
	t.counts = make(map[string]uint64)
	t.total = 0
}
