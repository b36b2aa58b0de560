package translate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/review-stats/internal/buffer"
	"github.com/Adithya-Monish-Kumar-K/review-stats/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/review-stats/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/review-stats/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/review-stats/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/review-stats/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/review-stats/pkg/tracing"
)

// Translator turns one text into its translation.
type Translator interface {
	Translate(ctx context.Context, id, text string) (string, error)
}

// Outcome classifies how a single request resolved.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeStatus      Outcome = "status"
	OutcomeTransport   Outcome = "transport"
	OutcomeCancelled   Outcome = "cancelled"
	OutcomeCircuitOpen Outcome = "circuit_open"
	OutcomePanic       Outcome = "panic"
)

// BatchResult summarises one resolved batch.
type BatchResult struct {
	Size      int
	Outcomes  map[Outcome]int
	Requeued  int
	Dropped   int
	SinkFails int
	Duration  time.Duration
}

// Dispatcher drains the buffer in batches. Every request of a batch resolves
// before the next batch is taken.
type Dispatcher struct {
	buf        *buffer.TranslationBuffer
	translator Translator
	sink       Sink
	cfg        config.TranslateConfig
	metrics    *metrics.Metrics
	out        io.Writer
	logger     *slog.Logger

	printed atomic.Int64
}

// NewDispatcher wires the dispatcher. out receives the sampled
// "Id: ... Translation: ..." lines; pass io.Discard to silence them.
func NewDispatcher(buf *buffer.TranslationBuffer, translator Translator, sink Sink, cfg config.TranslateConfig, m *metrics.Metrics, out io.Writer) *Dispatcher {
	if sink == nil {
		sink = NewLogSink()
	}
	if out == nil {
		out = io.Discard
	}
	return &Dispatcher{
		buf:        buf,
		translator: translator,
		sink:       sink,
		cfg:        cfg,
		metrics:    m,
		out:        out,
		logger:     logger.WithComponent("translate-dispatcher"),
	}
}

// Run dispatches batches until ctx is cancelled, sleeping BatchDelay between
// batches. A failing batch is logged and the loop continues.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("translation dispatcher started",
		"batch_size", d.cfg.BatchSize,
		"batch_delay", d.cfg.BatchDelay,
		"request_timeout", d.cfg.RequestTimeout,
	)
	for {
		if _, err := d.safeDispatch(ctx); err != nil && ctx.Err() == nil {
			d.logger.Error("translation batch failed", "error", err)
		}
		timer := time.NewTimer(d.cfg.BatchDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			d.logger.Info("translation dispatcher stopped")
			return nil
		case <-timer.C:
		}
	}
}

func (d *Dispatcher) safeDispatch(ctx context.Context) (res BatchResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("batch panicked: %v", r)
			d.logger.Error("translation batch panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	return d.DispatchBatch(ctx)
}

// DispatchBatch takes up to BatchSize items, issues one request per item and
// waits until every request has resolved. Items that did not succeed are
// returned to the buffer unless their retry budget is spent.
func (d *Dispatcher) DispatchBatch(ctx context.Context) (BatchResult, error) {
	batch := d.buf.Take(d.cfg.BatchSize)
	res := BatchResult{Size: len(batch), Outcomes: make(map[Outcome]int)}
	if len(batch) == 0 {
		return res, nil
	}
	d.metrics.BufferedTexts.Set(float64(d.buf.Len()))

	ctx, span := tracing.StartSpan(ctx, "translation-batch", uuid.NewString())
	span.SetAttr("size", len(batch))
	start := time.Now()
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	wg.Add(len(batch))
	for _, item := range batch {
		go func(item buffer.Item) {
			defer wg.Done()
			outcome, requeued, dropped, sinkErr := d.resolve(ctx, item)
			mu.Lock()
			res.Outcomes[outcome]++
			if requeued {
				res.Requeued++
			}
			if dropped {
				res.Dropped++
			}
			if sinkErr {
				res.SinkFails++
			}
			mu.Unlock()
		}(item)
	}
	wg.Wait()

	res.Duration = time.Since(start)
	span.SetAttr("requeued", res.Requeued)
	span.End()
	span.Log(ctx, d.logger, 3)
	d.metrics.TranslationBatch.Observe(res.Duration.Seconds())
	d.metrics.BufferedTexts.Set(float64(d.buf.Len()))
	d.logger.Info("translation batch resolved",
		"size", res.Size,
		"succeeded", res.Outcomes[OutcomeSuccess],
		"requeued", res.Requeued,
		"dropped", res.Dropped,
		"duration", res.Duration.Round(time.Millisecond),
	)
	if res.Dropped > 0 {
		return res, fmt.Errorf("%w: %d texts dropped", apperrors.ErrRetryExhausted, res.Dropped)
	}
	return res, nil
}

// Idle reports whether the buffer is empty and every taken text has been
// settled. Both are read under the buffer lock in one step.
func (d *Dispatcher) Idle() bool {
	return d.buf.Pending() == 0
}

// resolve runs one request to completion. A panic counts as a failure so the
// item goes back to the buffer and the barrier still releases.
func (d *Dispatcher) resolve(ctx context.Context, item buffer.Item) (outcome Outcome, requeued, dropped, sinkFailed bool) {
	ctx, span := tracing.StartChildSpan(ctx, "translate")
	span.SetAttr("id", item.ID)
	settled := false
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("translation request panicked", "id", item.ID, "panic", r)
			if !settled {
				outcome = OutcomePanic
				requeued, dropped = d.requeue(item, outcome, fmt.Errorf("panic: %v", r))
			}
		}
		d.metrics.TranslationRequests.WithLabelValues(string(outcome)).Inc()
		span.SetAttr("outcome", string(outcome))
		span.End()
	}()

	translated, err := d.translator.Translate(ctx, item.ID, item.Text)
	if err != nil {
		outcome = classify(ctx, err)
		settled = true
		requeued, dropped = d.requeue(item, outcome, err)
		return outcome, requeued, dropped, false
	}

	outcome = OutcomeSuccess
	settled = true
	d.buf.Done(item.ID)
	if d.printed.Add(1) <= int64(d.cfg.PrintSample) {
		fmt.Fprintf(d.out, "Id: %s  Translation: %s\n", item.ID, translated)
	}
	if err := d.sink.Record(ctx, Translation{
		ID:           item.ID,
		Source:       item.Text,
		Text:         translated,
		TranslatedAt: time.Now().UTC(),
	}); err != nil {
		d.logger.Warn("failed to store translation", "id", item.ID, "error", err)
		sinkFailed = true
	}
	return OutcomeSuccess, false, false, sinkFailed
}

func (d *Dispatcher) requeue(item buffer.Item, outcome Outcome, cause error) (requeued, dropped bool) {
	if outcome == OutcomeCircuitOpen || outcome == OutcomeCancelled {
		// never reached the endpoint, so no attempt is charged
		d.buf.Restore(item)
		d.logger.Debug("translation request not sent, text restored", "id", item.ID, "outcome", outcome)
		return true, false
	}
	if d.buf.Requeue(item) {
		d.logger.Warn("translation request failed, text re-buffered",
			"id", item.ID,
			"outcome", outcome,
			"status", apperrors.StatusCode(cause),
			"attempts", d.buf.Attempts(item.ID),
			"error", cause,
		)
		return true, false
	}
	d.metrics.TranslationsDropped.Inc()
	d.logger.Error("translation retries exhausted, text dropped",
		"id", item.ID,
		"outcome", outcome,
		"error", cause,
	)
	return false, true
}

func classify(ctx context.Context, err error) Outcome {
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return OutcomeCircuitOpen
	case errors.Is(err, apperrors.ErrTranslationStatus):
		return OutcomeStatus
	case ctx.Err() != nil, errors.Is(err, context.Canceled):
		return OutcomeCancelled
	default:
		return OutcomeTransport
	}
}
