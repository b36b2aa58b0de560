package main

import (
	"bytes"
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/review-stats/internal/freq"
	"github.com/Adithya-Monish-Kumar-K/review-stats/internal/ingest"
	"github.com/Adithya-Monish-Kumar-K/review-stats/internal/translate"
	"github.com/Adithya-Monish-Kumar-K/review-stats/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/review-stats/pkg/health"
)

func TestPrintRankings_AllThreeTables(t *testing.T) {
	users := freq.NewTable()
	users.Inc("alice")
	users.Inc("alice")
	users.Inc("bob")

	var out bytes.Buffer
	printRankings(&out, ingest.Result{
		Users: freq.Rank(users, 10),
		Items: freq.Rank(freq.NewTable(), 10),
		Words: freq.Rank(freq.NewTable(), 10),
	})

	text := out.String()
	assert.Contains(t, text, "== Most active users by rating (2 of 2)")
	assert.Contains(t, text, "Name: alice Rating: 2")
	assert.Contains(t, text, "== Most commented food items")
	assert.Contains(t, text, "== Most used words alphabetical")
	assert.Equal(t, 6, strings.Count(text, "=="))
}

func TestLongRunningTasks(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, 3, longRunningTasks(cfg, modeMain))

	cfg.Forward.Enabled = true
	assert.Equal(t, 4, longRunningTasks(cfg, modeMain))
	assert.Equal(t, 3, longRunningTasks(cfg, modePeer))

	cfg.Translate.Enabled = false
	assert.Equal(t, 2, longRunningTasks(cfg, modePeer))
}

func TestWaitForDrain(t *testing.T) {
	var calls atomic.Int32
	start := time.Now()
	waitForDrain(context.Background(), func() bool { return calls.Add(1) > 1 })
	assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	waitForDrain(ctx, func() bool { return false })
}

func TestNewSink_RedisRegistersReadinessCheck(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &config.Config{
		Translate: config.TranslateConfig{Sink: "redis"},
		Redis:     config.RedisConfig{Addr: mr.Addr(), PoolSize: 1, ResultTTL: time.Minute},
	}
	checker := health.NewChecker(health.DefaultCheckTimeout)

	sink, closeSink := newSink(context.Background(), cfg, checker)
	defer closeSink()
	assert.IsType(t, &translate.RedisSink{}, sink)

	report := checker.Run(context.Background())
	require.Len(t, report.Checks, 1)
	assert.Equal(t, "redis", report.Checks[0].Name)
	assert.Equal(t, health.StatusUp, report.Status)

	mr.Close()
	assert.Equal(t, health.StatusDown, checker.Run(context.Background()).Status)
}

func TestNewSink_LogSinkHasNoStoreCheck(t *testing.T) {
	checker := health.NewChecker(0)
	sink, closeSink := newSink(context.Background(), &config.Config{Translate: config.TranslateConfig{Sink: "log"}}, checker)
	defer closeSink()
	assert.IsType(t, &translate.LogSink{}, sink)
	assert.Empty(t, checker.Run(context.Background()).Checks)
}
