// Package buffer holds review texts waiting for translation. It is the only
// structure the ingestion, dispatch and forwarding tasks share.
package buffer

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

// DefaultTrackedIDs bounds how many ids keep a retry counter at once.
const DefaultTrackedIDs = 1 << 16

// Item is one text keyed by its review id.
type Item struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// TranslationBuffer is a mutex-guarded map from review id to text. Writers
// Put, readers Take a batch, and failed items come back through Requeue.
// Every taken item stays outstanding until it is settled by Done, Requeue or
// Restore.
type TranslationBuffer struct {
	mu          sync.Mutex
	items       map[string]string
	out         int
	attempts    *lru.Cache
	maxAttempts int
}

// New creates a buffer that gives each id at most maxAttempts tries: the
// Requeue after the last failed try is refused. maxAttempts <= 0 disables
// the cap. trackedIDs bounds the retry bookkeeping; the least recently
// retried ids are forgotten first.
func New(maxAttempts, trackedIDs int) (*TranslationBuffer, error) {
	if trackedIDs <= 0 {
		trackedIDs = DefaultTrackedIDs
	}
	attempts, err := lru.New(trackedIDs)
	if err != nil {
		return nil, fmt.Errorf("creating retry tracker: %w", err)
	}
	return &TranslationBuffer{
		items:       make(map[string]string),
		attempts:    attempts,
		maxAttempts: maxAttempts,
	}, nil
}

// Put inserts or replaces the text for id.
func (b *TranslationBuffer) Put(id, text string) {
	b.mu.Lock()
	b.items[id] = text
	b.mu.Unlock()
}

// Take removes and returns up to n items. Which items are chosen is
// unspecified; the rest stay buffered.
func (b *TranslationBuffer) Take(n int) []Item {
	if n <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) < n {
		n = len(b.items)
	}
	batch := make([]Item, 0, n)
	for id, text := range b.items {
		if len(batch) == n {
			break
		}
		batch = append(batch, Item{ID: id, Text: text})
		delete(b.items, id)
	}
	b.out += len(batch)
	return batch
}

// Requeue returns a failed item to the buffer and reports whether it was
// accepted. It is refused once the id has used up its attempts. A newer text
// Put for the same id while the item was out is kept.
func (b *TranslationBuffer) Requeue(item Item) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.settle()
	n := 1
	if v, ok := b.attempts.Get(item.ID); ok {
		n = v.(int) + 1
	}
	if b.maxAttempts > 0 && n >= b.maxAttempts {
		b.attempts.Remove(item.ID)
		return false
	}
	b.attempts.Add(item.ID, n)
	if _, exists := b.items[item.ID]; !exists {
		b.items[item.ID] = item.Text
	}
	return true
}

// Restore puts back an item that was taken but never attempted. It does not
// count against the retry budget.
func (b *TranslationBuffer) Restore(item Item) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.settle()
	if _, exists := b.items[item.ID]; !exists {
		b.items[item.ID] = item.Text
	}
}

// Done forgets the retry history of id after it was handled successfully.
func (b *TranslationBuffer) Done(id string) {
	b.mu.Lock()
	b.settle()
	b.mu.Unlock()
	b.attempts.Remove(id)
}

// settle marks one taken item as no longer outstanding. b.mu must be held.
func (b *TranslationBuffer) settle() {
	if b.out > 0 {
		b.out--
	}
}

// Attempts returns how many times id has been requeued.
func (b *TranslationBuffer) Attempts(id string) int {
	if v, ok := b.attempts.Peek(id); ok {
		return v.(int)
	}
	return 0
}

// Len returns the number of buffered items.
func (b *TranslationBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Pending returns the buffered items plus the taken ones not yet settled.
// Zero means nothing is waiting and nothing is in flight.
func (b *TranslationBuffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items) + b.out
}
