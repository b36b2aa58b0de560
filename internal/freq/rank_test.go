package freq_test

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/review-stats/internal/freq"
)

func fill(t *freq.Table, counts map[string]int) {
	for key, n := range counts {
		for i := 0; i < n; i++ {
			t.Inc(key)
		}
	}
}

func TestTable_IncAndTotals(t *testing.T) {
	tbl := freq.NewTable()
	fill(tbl, map[string]int{"a": 3, "b": 1})

	assert.Equal(t, uint64(3), tbl.Count("a"))
	assert.Equal(t, uint64(0), tbl.Count("missing"))
	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, uint64(4), tbl.Total())

	tbl.Clear()
	assert.Equal(t, 0, tbl.Len())
	assert.Equal(t, uint64(0), tbl.Total())
}

func TestRank_TieBreakByKey(t *testing.T) {
	tbl := freq.NewTable()
	fill(tbl, map[string]int{"pear": 2, "apple": 2, "fig": 5, "kiwi": 1, "date": 2})

	r := freq.Rank(tbl, 4)
	assert.Equal(t, []freq.Entry{
		{Key: "fig", Count: 5},
		{Key: "apple", Count: 2},
		{Key: "date", Count: 2},
		{Key: "pear", Count: 2},
	}, r.ByCount)
	assert.Equal(t, []freq.Entry{
		{Key: "apple", Count: 2},
		{Key: "date", Count: 2},
		{Key: "fig", Count: 5},
		{Key: "pear", Count: 2},
	}, r.Alphabetical)
	assert.Equal(t, 5, r.Distinct)
	assert.Equal(t, uint64(12), r.Total)
}

func TestRank_DeterministicAcrossRuns(t *testing.T) {
	counts := make(map[string]int)
	for i := 0; i < 500; i++ {
		counts[fmt.Sprintf("user-%03d", i)] = i % 7
	}
	var first []freq.Entry
	for run := 0; run < 10; run++ {
		tbl := freq.NewTable()
		fill(tbl, counts)
		r := freq.Rank(tbl, 100)
		require.Len(t, r.ByCount, 100)
		if first == nil {
			first = r.ByCount
			continue
		}
		assert.Equal(t, first, r.ByCount)
	}
}

func TestRank_FewerKeysThanK(t *testing.T) {
	tbl := freq.NewTable()
	fill(tbl, map[string]int{"only": 1})

	r := freq.Rank(tbl, 1000)
	assert.Len(t, r.ByCount, 1)
	assert.Len(t, freq.Rank(freq.NewTable(), 1000).ByCount, 0)
}

func TestRanking_Write(t *testing.T) {
	tbl := freq.NewTable()
	fill(tbl, map[string]int{"b": 2, "a": 1})

	var buf bytes.Buffer
	require.NoError(t, freq.Rank(tbl, 10).Write(&buf, "users"))
	assert.Equal(t,
		"== users by rating (2 of 2)\n"+
			"Name: b Rating: 2\n"+
			"Name: a Rating: 1\n"+
			"== users alphabetical\n"+
			"Name: a Rating: 1\n"+
			"Name: b Rating: 2\n",
		buf.String())
}
