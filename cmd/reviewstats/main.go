package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/review-stats/internal/buffer"
	"github.com/Adithya-Monish-Kumar-K/review-stats/internal/forward"
	"github.com/Adithya-Monish-Kumar-K/review-stats/internal/freq"
	"github.com/Adithya-Monish-Kumar-K/review-stats/internal/ingest"
	"github.com/Adithya-Monish-Kumar-K/review-stats/internal/memory"
	"github.com/Adithya-Monish-Kumar-K/review-stats/internal/reviews"
	"github.com/Adithya-Monish-Kumar-K/review-stats/internal/translate"
	"github.com/Adithya-Monish-Kumar-K/review-stats/internal/workerpool"
	"github.com/Adithya-Monish-Kumar-K/review-stats/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/review-stats/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/review-stats/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/review-stats/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/review-stats/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/review-stats/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/review-stats/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/review-stats/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/review-stats/pkg/resilience"
)

const (
	modeMain = "main"
	modePeer = "peer"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	mode := flag.String("mode", modeMain, "run mode: main (ingest and translate) or peer (translate forwarded texts)")
	sourcePath := flag.String("source", "", "review CSV file, overrides source.path")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *sourcePath != "" {
		cfg.Source.Path = *sourcePath
	}
	if *mode != modeMain && *mode != modePeer {
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", *mode)
		os.Exit(1)
	}

	runID := uuid.NewString()
	logs, err := logger.Setup(cfg.Logging, runID, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer logs.Close()

	slog.Info("starting review stats", "mode", *mode, "log_file", logs.Path(), "workers", cfg.Pool.Workers)

	sampler, err := memory.NewProcSampler()
	if err != nil {
		logger.Fatal("memory sampler unavailable", "error", err)
		return
	}
	if err := memory.CheckCeiling(sampler, cfg.Memory.MaxTotalBytes); err != nil {
		logger.Fatal("startup memory check failed", "error", err)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	sig := memory.NewSignal(cfg.Memory.MinAvailableBytes)
	buf, err := buffer.New(cfg.Translate.MaxAttempts, buffer.DefaultTrackedIDs)
	if err != nil {
		logger.Fatal("failed to create translation buffer", "error", err)
		return
	}

	checker := health.NewChecker(health.DefaultCheckTimeout)
	checker.RegisterAdvisory("memory", func(ctx context.Context) health.ComponentHealth {
		if sig.Low() {
			return health.ComponentHealth{
				Status:  health.StatusDegraded,
				Message: fmt.Sprintf("available memory %d below %d", sig.Free(), sig.Threshold()),
			}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.RegisterAdvisory("buffer", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d texts buffered, %d pending", buf.Len(), buf.Pending()),
		}
	})

	var shutdownMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		shutdownMetrics = metrics.StartServer(cfg.Metrics.Port, checker.Routes())
	}

	// every task runs for the whole process, so each needs its own worker
	if needed := longRunningTasks(cfg, *mode); cfg.Pool.Workers < needed {
		logger.Fatal("worker pool too small for the enabled tasks", "workers", cfg.Pool.Workers, "needed", needed)
		return
	}
	pool := workerpool.New(ctx, cfg.Pool.Workers, cfg.Pool.QueueSize, m)
	submit(pool, workerpool.Task{
		Name: "memory-monitor",
		Run:  memory.NewMonitor(sampler, sig, cfg.Memory.SampleInterval, m).Run,
	})

	var dispatcher *translate.Dispatcher
	if cfg.Translate.Enabled {
		sink, closeSink := newSink(ctx, cfg, checker)
		defer closeSink()
		breaker := resilience.NewCircuitBreaker("translate", resilience.CircuitBreakerConfig{
			FailureThreshold:    cfg.Translate.BatchSize,
			ResetTimeout:        10 * time.Second,
			HalfOpenMaxRequests: 1,
			OnStateChange: func(name string, state resilience.State) {
				m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
			},
		})
		client := translate.NewClient(cfg.Translate, breaker)
		dispatcher = translate.NewDispatcher(buf, client, sink, cfg.Translate, m, os.Stdout)
		submit(pool, workerpool.Task{Name: "translate-dispatcher", Run: dispatcher.Run})
	}

	switch *mode {
	case modeMain:
		if cfg.Forward.Enabled {
			closePeers := startForwarder(pool, cfg, buf, sig, m)
			defer closePeers()
		}
		ingested := startIngestion(pool, cfg, buf, sig, m)
		select {
		case res := <-ingested:
			printRankings(os.Stdout, res)
			// both count texts a dispatcher batch or a forwarder share still holds
			switch {
			case dispatcher != nil:
				waitForDrain(ctx, dispatcher.Idle)
			case cfg.Forward.Enabled:
				waitForDrain(ctx, func() bool { return buf.Pending() == 0 })
			}
		case <-ctx.Done():
		}
	case modePeer:
		topic := forward.PeerTopic(cfg.Forward.Topic, cfg.Forward.Self)
		consumer := kafka.NewConsumer(cfg.Kafka, topic, forward.Handler(buf))
		submit(pool, workerpool.Task{Name: "forward-receiver", Run: consumer.Start})
		slog.Info("peer ready, consuming forwarded texts", "topic", topic, "group", cfg.Kafka.ConsumerGroup)
		<-ctx.Done()
	}

	slog.Info("shutting down", "buffered", buf.Len())
	pool.Cancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Pool.ShutdownTimeout)
	defer cancel()
	if err := pool.Shutdown(shutdownCtx); err != nil {
		slog.Error("worker pool did not stop cleanly", "error", err)
	}
	if shutdownMetrics != nil {
		if err := shutdownMetrics(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", "error", err)
		}
	}
	slog.Info("review stats stopped")
}

func longRunningTasks(cfg *config.Config, mode string) int {
	n := 2 // monitor plus ingest or receiver
	if cfg.Translate.Enabled {
		n++
	}
	if mode == modeMain && cfg.Forward.Enabled {
		n++
	}
	return n
}

func submit(pool *workerpool.Pool, task workerpool.Task) {
	if err := pool.Submit(task); err != nil {
		logger.Fatal("failed to submit task", "task", task.Name, "error", err)
	}
}

// startIngestion opens the source and queues the ingestion task. Source
// failures terminate the process.
func startIngestion(pool *workerpool.Pool, cfg *config.Config, buf *buffer.TranslationBuffer, sig *memory.Signal, m *metrics.Metrics) <-chan ingest.Result {
	src, closer, err := reviews.OpenCSV(cfg.Source.Path)
	if err != nil {
		logger.Fatal("failed to open review source", "path", cfg.Source.Path, "error", err)
		return nil
	}

	task := ingest.NewTask(src, buf, sig, cfg.Ingest, m)
	results := make(chan ingest.Result, 1)
	submit(pool, workerpool.Task{
		Name: "ingest",
		Run: func(ctx context.Context) error {
			defer closer.Close()
			res, err := task.Run(ctx)
			if err != nil {
				if apperrors.IsFatal(err) {
					logger.Fatal("ingestion failed", "path", cfg.Source.Path, "error", err)
				}
				return err
			}
			results <- res
			return nil
		},
	})
	return results
}

// startForwarder queues the forwarding task with one Kafka producer per peer
// and returns a func that closes the producers.
func startForwarder(pool *workerpool.Pool, cfg *config.Config, buf *buffer.TranslationBuffer, sig *memory.Signal, m *metrics.Metrics) func() {
	producers := make([]*kafka.Producer, 0, len(cfg.Forward.Peers))
	peers := make([]forward.Peer, 0, len(cfg.Forward.Peers))
	for _, name := range cfg.Forward.Peers {
		p := kafka.NewProducer(cfg.Kafka, forward.PeerTopic(cfg.Forward.Topic, name))
		producers = append(producers, p)
		peers = append(peers, forward.NewKafkaPeer(name, cfg.Forward.Self, p))
	}

	f := forward.NewForwarder(buf, peers, sig, cfg.Forward, m)
	submit(pool, workerpool.Task{Name: "forwarder", Run: f.Run})

	return func() {
		for _, p := range producers {
			if err := p.Close(); err != nil {
				slog.Warn("failed to close kafka producer", "error", err)
			}
		}
	}
}

// newSink builds the configured translation sink and registers a readiness
// check for its store. A store that cannot be reached at startup is fatal.
func newSink(ctx context.Context, cfg *config.Config, checker *health.Checker) (translate.Sink, func()) {
	switch cfg.Translate.Sink {
	case "redis":
		client, err := redis.NewClient(cfg.Redis)
		if err != nil {
			logger.Fatal("failed to connect to redis", "addr", cfg.Redis.Addr, "error", err)
			return nil, func() {}
		}
		checker.Register("redis", health.PingCheck(client))
		return translate.NewRedisSink(client, cfg.Redis.ResultTTL), func() { client.Close() }
	case "postgres":
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			logger.Fatal("failed to connect to postgres", "host", cfg.Postgres.Host, "error", err)
			return nil, func() {}
		}
		sink, err := translate.NewPostgresSink(ctx, db.DB)
		if err != nil {
			db.Close()
			logger.Fatal("failed to prepare translations table", "error", err)
			return nil, func() {}
		}
		checker.Register("postgres", health.PingCheck(db))
		return sink, func() { db.Close() }
	default:
		return translate.NewLogSink(), func() {}
	}
}

func printRankings(w io.Writer, res ingest.Result) {
	for _, r := range []struct {
		title   string
		ranking freq.Ranking
	}{
		{"Most active users", res.Users},
		{"Most commented food items", res.Items},
		{"Most used words", res.Words},
	} {
		if err := r.ranking.Write(w, r.title); err != nil {
			slog.Error("failed to print ranking", "title", r.title, "error", err)
		}
	}
}

// waitForDrain blocks until idle reports true or ctx ends.
func waitForDrain(ctx context.Context, idle func() bool) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for !idle() {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
	slog.Info("translation buffer drained")
}
