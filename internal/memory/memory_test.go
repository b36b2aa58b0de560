package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/review-stats/internal/memory"
	apperrors "github.com/Adithya-Monish-Kumar-K/review-stats/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/review-stats/pkg/metrics"
)

type fakeSampler struct {
	mu        sync.Mutex
	total     uint64
	available []uint64
	err       error
}

func (f *fakeSampler) TotalBytes() (uint64, error) {
	return f.total, f.err
}

func (f *fakeSampler) AvailableBytes() (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	v := f.available[0]
	if len(f.available) > 1 {
		f.available = f.available[1:]
	}
	return v, nil
}

func TestSignal_PublishTransitions(t *testing.T) {
	s := memory.NewSignal(1000)
	assert.False(t, s.Low())

	assert.False(t, s.Publish(5000))
	assert.True(t, s.Publish(10))
	assert.True(t, s.Low())
	assert.Equal(t, uint64(10), s.Free())
	assert.False(t, s.Publish(20))
	assert.True(t, s.Publish(2000))
	assert.False(t, s.Low())
}

func TestSignal_WaitReturnsWhenRelieved(t *testing.T) {
	s := memory.NewSignal(1000)
	s.Publish(0)

	go func() {
		time.Sleep(20 * time.Millisecond)
		s.Publish(5000)
	}()

	start := time.Now()
	ok := s.Wait(context.Background(), 5*time.Second)
	assert.True(t, ok)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSignal_WaitTimesOut(t *testing.T) {
	s := memory.NewSignal(1000)
	s.Publish(0)
	assert.False(t, s.Wait(context.Background(), 10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, s.Wait(ctx, time.Hour))
}

func TestSignal_WaitImmediateWhenNormal(t *testing.T) {
	s := memory.NewSignal(1000)
	assert.True(t, s.Wait(context.Background(), time.Hour))
}

func TestMonitor_PublishesSamples(t *testing.T) {
	sampler := &fakeSampler{available: []uint64{10_000, 50, 50, 50}}
	sig := memory.NewSignal(1000)
	mon := memory.NewMonitor(sampler, sig, 5*time.Millisecond, metrics.NewUnregistered())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mon.Run(ctx) }()

	require.Eventually(t, sig.Low, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(50), sig.Free())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop after cancellation")
	}
}

func TestMonitor_SampleErrorKeepsPreviousValue(t *testing.T) {
	sampler := &fakeSampler{err: errors.New("no procfs")}
	sig := memory.NewSignal(1000)
	sig.Publish(7000)
	mon := memory.NewMonitor(sampler, sig, time.Millisecond, metrics.NewUnregistered())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.NoError(t, mon.Run(ctx))
	assert.Equal(t, uint64(7000), sig.Free())
}

func TestCheckCeiling(t *testing.T) {
	assert.NoError(t, memory.CheckCeiling(&fakeSampler{total: 2_000_000_000}, 4_000_000_000))
	assert.NoError(t, memory.CheckCeiling(&fakeSampler{total: 8_000_000_000}, 0))

	err := memory.CheckCeiling(&fakeSampler{total: 8_000_000_000}, 4_000_000_000)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrMemoryCeiling)
	assert.True(t, apperrors.IsFatal(err))
}
