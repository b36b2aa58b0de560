package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/review-stats/internal/buffer"
	"github.com/Adithya-Monish-Kumar-K/review-stats/internal/freq"
	"github.com/Adithya-Monish-Kumar-K/review-stats/internal/memory"
	"github.com/Adithya-Monish-Kumar-K/review-stats/internal/reviews"
	"github.com/Adithya-Monish-Kumar-K/review-stats/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/review-stats/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/review-stats/pkg/metrics"
)

type fakePressure struct {
	low   atomic.Bool
	waits atomic.Int32
}

func (f *fakePressure) Low() bool { return f.low.Load() }

func (f *fakePressure) Wait(ctx context.Context, timeout time.Duration) bool {
	f.waits.Add(1)
	return !f.low.Load()
}

type failingSource struct {
	after int
	n     int
}

func (s *failingSource) Next() (reviews.Record, error) {
	if s.n >= s.after {
		return reviews.Record{}, errors.New("read /data/Reviews.csv: input/output error")
	}
	s.n++
	return review(fmt.Sprint(s.n), "A1", "P1", "alice", "good"), nil
}

type malformedOnce struct {
	inner *reviews.SliceSource
	done  bool
}

func (s *malformedOnce) Next() (reviews.Record, error) {
	if !s.done {
		s.done = true
		return reviews.Record{}, fmt.Errorf("%w: line 2: wrong number of fields", reviews.ErrMalformed)
	}
	return s.inner.Next()
}

func review(id, user, product, name, text string) reviews.Record {
	return reviews.Record{
		ID:          id,
		ProductID:   product,
		UserID:      user,
		ProfileName: name,
		Score:       "5",
		Time:        "1303862400",
		Summary:     "summary",
		Text:        text,
	}
}

func testConfig() config.IngestConfig {
	return config.IngestConfig{
		TextLimit:     1000,
		ThrottleEvery: 1000,
		ThrottleDelay: time.Millisecond,
		TopK:          1000,
	}
}

func newBuffer(t *testing.T) *buffer.TranslationBuffer {
	t.Helper()
	b, err := buffer.New(5, 0)
	require.NoError(t, err)
	return b
}

func sum(r freq.Ranking) uint64 {
	var total uint64
	for _, e := range r.ByCount {
		total += e.Count
	}
	return total
}

func fiveWithTwoDuplicates() []reviews.Record {
	return []reviews.Record{
		review("1", "A1", "P1", "alice", "great coffee"),
		review("2", "A2", "P2", "bob", "bad tea"),
		review("3", "A3", "P1", "carol", "fine coffee"),
		review("4", "A2", "P2", "bob", "bad tea"),
		review("5", "A4", "P3", "dave", "nice mug"),
	}
}

func TestRun_DeduplicatesByContent(t *testing.T) {
	buf := newBuffer(t)
	task := NewTask(reviews.NewSliceSource(fiveWithTwoDuplicates()), buf, &fakePressure{}, testConfig(), metrics.NewUnregistered())

	res, err := task.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, res.Stats.Records)
	assert.Equal(t, 4, res.Stats.Unique)
	assert.Equal(t, 1, res.Stats.Duplicates)
	assert.Len(t, task.seen, 4)

	assert.Equal(t, uint64(4), sum(res.Users))
	assert.Equal(t, uint64(4), sum(res.Items))
	assert.Equal(t, uint64(4), res.Users.Total)
	assert.Equal(t, uint64(4), res.Items.Total)

	// duplicates are buffered before they are detected
	assert.Equal(t, 5, buf.Len())

	assert.Equal(t, []freq.Entry{{Key: "P1", Count: 2}, {Key: "P2", Count: 1}, {Key: "P3", Count: 1}}, res.Items.ByCount)
	assert.Equal(t, uint64(2), res.Words.ByCount[0].Count)
	assert.Equal(t, "coffee", res.Words.ByCount[0].Key)

	assert.Zero(t, task.users.Len(), "tables are cleared after ranking")
	assert.Zero(t, task.words.Len())
}

func TestRun_SkipDuplicateBuffering(t *testing.T) {
	buf := newBuffer(t)
	cfg := testConfig()
	cfg.SkipDuplicateBuffering = true
	task := NewTask(reviews.NewSliceSource(fiveWithTwoDuplicates()), buf, &fakePressure{}, cfg, metrics.NewUnregistered())

	res, err := task.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.Duplicates)
	assert.Equal(t, 4, buf.Len())
}

func TestRun_TruncatesBufferedText(t *testing.T) {
	buf := newBuffer(t)
	long := strings.Repeat("é", 1500)
	task := NewTask(reviews.NewSliceSource([]reviews.Record{review("1", "A1", "P1", "alice", long)}), buf, &fakePressure{}, testConfig(), metrics.NewUnregistered())

	_, err := task.Run(context.Background())
	require.NoError(t, err)

	items := buf.Take(1)
	require.Len(t, items, 1)
	assert.Equal(t, 1000, reviews.Length(items[0].Text))
}

func TestRun_ThrottlesOnBatchThreshold(t *testing.T) {
	records := make([]reviews.Record, 10)
	for i := range records {
		records[i] = review(fmt.Sprint(i), fmt.Sprint("A", i), "P1", "alice", fmt.Sprint("text ", i))
	}
	cfg := testConfig()
	cfg.ThrottleEvery = 3
	task := NewTask(reviews.NewSliceSource(records), newBuffer(t), &fakePressure{}, cfg, metrics.NewUnregistered())

	res, err := task.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Stats.Throttles)
}

func TestRun_DuplicatesDoNotAdvanceThrottle(t *testing.T) {
	a := review("1", "A1", "P1", "alice", "first")
	records := []reviews.Record{
		a,
		review("2", "A1", "P1", "alice", "first"),
		review("3", "A1", "P1", "alice", "first"),
		review("4", "A2", "P1", "bob", "second"),
		review("5", "A3", "P1", "carol", "third"),
	}
	cfg := testConfig()
	cfg.ThrottleEvery = 2
	task := NewTask(reviews.NewSliceSource(records), newBuffer(t), &fakePressure{}, cfg, metrics.NewUnregistered())

	res, err := task.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Stats.Duplicates)
	assert.Equal(t, 3, res.Stats.Unique)
	assert.Equal(t, 1, res.Stats.Throttles)
}

func TestRun_WaitsWhileMemoryLow(t *testing.T) {
	records := make([]reviews.Record, 20)
	for i := range records {
		records[i] = review(fmt.Sprint(i), fmt.Sprint("A", i), "P1", "alice", "text")
	}
	p := &fakePressure{}
	p.low.Store(true)
	task := NewTask(reviews.NewSliceSource(records), newBuffer(t), p, testConfig(), metrics.NewUnregistered())

	res, err := task.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(20), p.waits.Load())
	assert.Equal(t, 20, res.Stats.Throttles)
}

func TestRun_LowMemoryReducesThroughput(t *testing.T) {
	records := make([]reviews.Record, 10)
	for i := range records {
		records[i] = review(fmt.Sprint(i), fmt.Sprint("A", i), "P1", "alice", "text")
	}
	cfg := testConfig()
	cfg.ThrottleDelay = 20 * time.Millisecond

	sig := memory.NewSignal(1000)
	sig.Publish(10)
	task := NewTask(reviews.NewSliceSource(records), newBuffer(t), sig, cfg, metrics.NewUnregistered())

	start := time.Now()
	_, err := task.Run(context.Background())
	require.NoError(t, err)
	slow := time.Since(start)

	sig.Publish(5000)
	task = NewTask(reviews.NewSliceSource(records), newBuffer(t), sig, cfg, metrics.NewUnregistered())
	start = time.Now()
	_, err = task.Run(context.Background())
	require.NoError(t, err)
	fast := time.Since(start)

	assert.GreaterOrEqual(t, slow, 10*cfg.ThrottleDelay)
	assert.Less(t, fast, slow)
}

func TestRun_SourceFailureIsFatal(t *testing.T) {
	task := NewTask(&failingSource{after: 3}, newBuffer(t), &fakePressure{}, testConfig(), metrics.NewUnregistered())

	res, err := task.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrSourceIO)
	assert.True(t, apperrors.IsFatal(err))
	assert.Equal(t, 3, res.Stats.Records)
}

func TestRun_SkipsMalformedRows(t *testing.T) {
	src := &malformedOnce{inner: reviews.NewSliceSource(fiveWithTwoDuplicates())}
	task := NewTask(src, newBuffer(t), &fakePressure{}, testConfig(), metrics.NewUnregistered())

	res, err := task.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.Malformed)
	assert.Equal(t, 5, res.Stats.Records)
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	task := NewTask(reviews.NewSliceSource(fiveWithTwoDuplicates()), newBuffer(t), &fakePressure{}, testConfig(), metrics.NewUnregistered())

	_, err := task.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, io.EOF))
}
