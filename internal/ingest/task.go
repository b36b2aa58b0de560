// Package ingest consumes the review stream once, counting users, products
// and words while feeding review texts to the translation buffer.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/review-stats/internal/buffer"
	"github.com/Adithya-Monish-Kumar-K/review-stats/internal/freq"
	"github.com/Adithya-Monish-Kumar-K/review-stats/internal/reviews"
	"github.com/Adithya-Monish-Kumar-K/review-stats/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/review-stats/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/review-stats/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/review-stats/pkg/metrics"
)

// Pressure is the view of the memory signal the ingestion loop needs.
type Pressure interface {
	Low() bool
	Wait(ctx context.Context, timeout time.Duration) bool
}

// Stats counts what happened to the records read from the source.
type Stats struct {
	Records    int `json:"records"`
	Unique     int `json:"unique"`
	Duplicates int `json:"duplicates"`
	Malformed  int `json:"malformed"`
	Throttles  int `json:"throttles"`
}

// Result is produced once the source is exhausted.
type Result struct {
	Users freq.Ranking
	Items freq.Ranking
	Words freq.Ranking
	Stats Stats
}

// Task owns the dedup set and the three frequency tables. Nothing else reads
// or writes them, so they are not locked.
type Task struct {
	source   reviews.Source
	buf      *buffer.TranslationBuffer
	pressure Pressure
	cfg      config.IngestConfig
	metrics  *metrics.Metrics
	logger   *slog.Logger

	users *freq.Table
	items *freq.Table
	words *freq.Table
	seen  map[uint64]struct{}

	sinceThrottle int
	stats         Stats
}

func NewTask(source reviews.Source, buf *buffer.TranslationBuffer, pressure Pressure, cfg config.IngestConfig, m *metrics.Metrics) *Task {
	return &Task{
		source:   source,
		buf:      buf,
		pressure: pressure,
		cfg:      cfg,
		metrics:  m,
		logger:   logger.WithComponent("ingest"),
		users:    freq.NewTable(),
		items:    freq.NewTable(),
		words:    freq.NewTable(),
		seen:     make(map[uint64]struct{}),
	}
}

// Run reads the source to completion. Malformed rows are logged and skipped;
// any other read error is returned wrapped in ErrSourceIO. Rankings are taken
// and the tables cleared when the source reports io.EOF.
func (t *Task) Run(ctx context.Context) (Result, error) {
	t.logger.Info("ingestion started",
		"text_limit", t.cfg.TextLimit,
		"throttle_every", t.cfg.ThrottleEvery,
		"skip_duplicate_buffering", t.cfg.SkipDuplicateBuffering,
	)
	start := time.Now()

	for {
		if err := ctx.Err(); err != nil {
			return Result{Stats: t.stats}, err
		}

		rec, err := t.source.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, reviews.ErrMalformed) {
			t.stats.Malformed++
			t.metrics.MalformedRecords.Inc()
			t.logger.Warn("skipping malformed record", "error", err)
			continue
		}
		if err != nil {
			return Result{Stats: t.stats}, fmt.Errorf("%w: reading record %d: %w", apperrors.ErrSourceIO, t.stats.Records+1, err)
		}

		t.process(rec)

		if err := t.throttle(ctx); err != nil {
			return Result{Stats: t.stats}, err
		}
	}

	res := Result{
		Users: freq.Rank(t.users, t.cfg.TopK),
		Items: freq.Rank(t.items, t.cfg.TopK),
		Words: freq.Rank(t.words, t.cfg.TopK),
		Stats: t.stats,
	}
	t.users.Clear()
	t.items.Clear()
	t.words.Clear()

	t.logger.Info("ingestion complete",
		"records", t.stats.Records,
		"unique", t.stats.Unique,
		"duplicates", t.stats.Duplicates,
		"malformed", t.stats.Malformed,
		"throttles", t.stats.Throttles,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return res, nil
}

func (t *Task) process(rec reviews.Record) {
	t.stats.Records++

	hash := rec.ContentHash()
	_, dup := t.seen[hash]

	if !dup || !t.cfg.SkipDuplicateBuffering {
		t.buf.Put(rec.ID, reviews.Truncate(rec.Text, t.cfg.TextLimit))
		t.metrics.BufferedTexts.Set(float64(t.buf.Len()))
	}

	if dup {
		t.stats.Duplicates++
		t.metrics.DuplicateRecords.Inc()
		t.logger.Warn("duplicate record found", "id", rec.ID, "hash", hash)
		return
	}
	t.seen[hash] = struct{}{}
	t.stats.Unique++
	t.sinceThrottle++
	t.metrics.RecordsProcessed.Inc()

	t.users.Inc(rec.ProfileName)
	t.items.Inc(rec.ProductID)
	for _, w := range reviews.Words(rec.Text) {
		t.words.Inc(w)
	}
}

// throttle pauses after every ThrottleEvery records, and whenever memory is
// low. A low-memory pause ends as soon as the monitor reports relief.
func (t *Task) throttle(ctx context.Context) error {
	switch {
	case t.pressure != nil && t.pressure.Low():
		t.stats.Throttles++
		t.sinceThrottle = 0
		t.metrics.IngestThrottles.WithLabelValues("memory").Inc()
		t.logger.Warn("available memory low, pausing ingestion", "max_wait", t.cfg.ThrottleDelay)
		t.pressure.Wait(ctx, t.cfg.ThrottleDelay)
	case t.cfg.ThrottleEvery > 0 && t.sinceThrottle >= t.cfg.ThrottleEvery:
		t.stats.Throttles++
		t.sinceThrottle = 0
		t.metrics.IngestThrottles.WithLabelValues("batch").Inc()
		timer := time.NewTimer(t.cfg.ThrottleDelay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		}
	}
	return ctx.Err()
}
