package forward

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Adithya-Monish-Kumar-K/review-stats/internal/buffer"
	"github.com/Adithya-Monish-Kumar-K/review-stats/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/review-stats/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/review-stats/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/review-stats/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/review-stats/pkg/resilience"
)

// Pressure is the view of the memory signal the forwarder honours.
type Pressure interface {
	Low() bool
	Wait(ctx context.Context, timeout time.Duration) bool
}

// Forwarder periodically takes a batch from the buffer and spreads it over
// the peers. Texts a peer could not accept go back to the buffer.
type Forwarder struct {
	buf      *buffer.TranslationBuffer
	peers    []Peer
	pressure Pressure
	cfg      config.ForwardConfig
	limiter  *rate.Limiter
	retry    resilience.RetryConfig
	metrics  *metrics.Metrics
	logger   *slog.Logger
	next     int
}

func NewForwarder(buf *buffer.TranslationBuffer, peers []Peer, pressure Pressure, cfg config.ForwardConfig, m *metrics.Metrics) *Forwarder {
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.BatchSize
	if burst <= 0 {
		burst = 1
	}
	return &Forwarder{
		buf:      buf,
		peers:    peers,
		pressure: pressure,
		cfg:      cfg,
		limiter:  rate.NewLimiter(limit, burst),
		retry: resilience.RetryConfig{
			MaxAttempts:  cfg.MaxAttempts,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     2 * time.Second,
		},
		metrics: m,
		logger:  logger.WithComponent("forwarder"),
	}
}

// Run forwards until ctx is cancelled. Peer failures are logged and retried
// on a later cycle; they never end the loop.
func (f *Forwarder) Run(ctx context.Context) error {
	peerNames := make([]string, len(f.peers))
	for i, p := range f.peers {
		peerNames[i] = p.Name()
	}
	f.logger.Info("forwarder started", "peers", peerNames, "batch_size", f.cfg.BatchSize)

	for {
		if ctx.Err() != nil {
			f.logger.Info("forwarder stopped")
			return nil
		}
		if f.pressure != nil && f.pressure.Low() {
			f.logger.Warn("available memory low, pausing forwarding")
			f.pressure.Wait(ctx, f.cfg.SendInterval)
			continue
		}
		if _, err := f.Forward(ctx); err != nil && ctx.Err() == nil {
			f.logger.Warn("forwarding cycle incomplete", "error", err)
		}

		timer := time.NewTimer(f.cfg.SendInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}
}

// Forward sends one batch and returns how many texts were delivered.
func (f *Forwarder) Forward(ctx context.Context) (int, error) {
	if len(f.peers) == 0 {
		return 0, nil
	}
	batch := f.buf.Take(f.cfg.BatchSize)
	if len(batch) == 0 {
		return 0, nil
	}
	f.metrics.BufferedTexts.Set(float64(f.buf.Len()))

	parts := f.partition(batch)
	delivered := make([]int, len(parts))

	var g errgroup.Group
	for i, items := range parts {
		i, items := i, items
		if len(items) == 0 {
			continue
		}
		peer := f.peers[i]
		g.Go(func() error {
			if err := f.send(ctx, peer, items); err != nil {
				return err
			}
			delivered[i] = len(items)
			return nil
		})
	}
	err := g.Wait()

	total := 0
	for _, n := range delivered {
		total += n
	}
	f.metrics.BufferedTexts.Set(float64(f.buf.Len()))
	return total, err
}

// partition deals batch out round-robin, starting one peer further on each
// call so small batches do not always land on the first peer.
func (f *Forwarder) partition(batch []buffer.Item) [][]buffer.Item {
	parts := make([][]buffer.Item, len(f.peers))
	for i, it := range batch {
		p := (f.next + i) % len(f.peers)
		parts[p] = append(parts[p], it)
	}
	f.next = (f.next + 1) % len(f.peers)
	return parts
}

func (f *Forwarder) send(ctx context.Context, peer Peer, items []buffer.Item) error {
	err := f.limiter.WaitN(ctx, len(items))
	if err == nil {
		err = resilience.Retry(ctx, "forward-"+peer.Name(), f.retry, func() error {
			return peer.Send(ctx, items)
		})
	}
	if err == nil {
		for _, it := range items {
			f.buf.Done(it.ID)
		}
		f.metrics.ForwardedTexts.WithLabelValues(peer.Name(), "sent").Add(float64(len(items)))
		f.logger.Debug("texts forwarded", "peer", peer.Name(), "count", len(items))
		return nil
	}

	dropped := 0
	for _, it := range items {
		if !f.buf.Requeue(it) {
			dropped++
			f.metrics.TranslationsDropped.Inc()
		}
	}
	f.metrics.ForwardedTexts.WithLabelValues(peer.Name(), "failed").Add(float64(len(items)))
	f.logger.Warn("peer unavailable, texts re-buffered",
		"peer", peer.Name(),
		"count", len(items),
		"dropped", dropped,
		"error", err,
	)
	return fmt.Errorf("%w: %s: %w", apperrors.ErrPeerUnavailable, peer.Name(), err)
}
