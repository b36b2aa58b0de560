package freq

import (
	"fmt"
	"io"
	"sort"
)

// Entry is one ranked key.
type Entry struct {
	Key   string `json:"key"`
	Count uint64 `json:"count"`
}

// Ranking holds two views of the same top-K snapshot plus the size of the
// table it was taken from.
type Ranking struct {
	// ByCount is ordered by count descending, then key ascending.
	ByCount []Entry `json:"by_count"`
	// Alphabetical is the ByCount entries re-sorted by key.
	Alphabetical []Entry `json:"alphabetical"`
	Distinct     int     `json:"distinct"`
	Total        uint64  `json:"total"`
}

// Rank selects the k highest-count entries of t. Ties on count are broken by
// key so the result is identical across runs.
func Rank(t *Table, k int) Ranking {
	entries := make([]Entry, 0, len(t.counts))
	for key, count := range t.counts {
		entries = append(entries, Entry{Key: key, Count: count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Key < entries[j].Key
	})
	if k >= 0 && len(entries) > k {
		entries = entries[:k:k]
	}

	alpha := make([]Entry, len(entries))
	copy(alpha, entries)
	sort.Slice(alpha, func(i, j int) bool {
		return alpha[i].Key < alpha[j].Key
	})

	return Ranking{
		ByCount:      entries,
		Alphabetical: alpha,
		Distinct:     len(t.counts),
		Total:        t.total,
	}
}

// Write prints both views under title, one "Name: <key> Rating: <count>"
// line per entry.
func (r Ranking) Write(w io.Writer, title string) error {
	if _, err := fmt.Fprintf(w, "== %s by rating (%d of %d)\n", title, len(r.ByCount), r.Distinct); err != nil {
		return err
	}
	if err := writeEntries(w, r.ByCount); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "== %s alphabetical\n", title); err != nil {
		return err
	}
	return writeEntries(w, r.Alphabetical)
}

func writeEntries(w io.Writer, entries []Entry) error {
	for _, e := range entries {
		if _, err := fmt.Fprintf(w, "Name: %s Rating: %d\n", e.Key, e.Count); err != nil {
			return err
		}
	}
	return nil
}
