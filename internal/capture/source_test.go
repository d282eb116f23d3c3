package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"netglobe/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu      sync.Mutex
	started []Mode
	batches []Batch
	failed  []error
}

func (r *recorder) CaptureStarted(m Mode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, m)
}

func (r *recorder) CaptureBatch(b Batch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, b)
}

func (r *recorder) CaptureFailed(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, err)
}

func (r *recorder) snapshot() ([]Mode, []Batch, []error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Mode(nil), r.started...), append([]Batch(nil), r.batches...), append([]error(nil), r.failed...)
}

func shell(script string) Strategy {
	return Strategy{Command: "sh", Args: []string{"-c", script}}
}

func testConfig() Config {
	return Config{
		PollInterval:     20 * time.Millisecond,
		ProbeTimeout:     time.Second,
		MaxStartAttempts: 3,
		RestartBaseDelay: 10 * time.Millisecond,
		Logger:           logging.Discard(),
	}
}

func TestSourceStreamBatches(t *testing.T) {
	cfg := testConfig()
	cfg.Stream = shell(`printf 'a,10.0.0.1:1->8.8.8.8:443\nb,10.0.0.1:2->1.1.1.1:443\n=======\n'; exec sleep 30`)
	cfg.Snapshot = shell(`exit 0`)

	rec := &recorder{}
	src := New(cfg, rec)
	require.NoError(t, src.Start(context.Background()))
	defer src.Stop()

	require.Eventually(t, func() bool {
		_, batches, _ := rec.snapshot()
		return len(batches) == 1
	}, 5*time.Second, 10*time.Millisecond)

	started, batches, failed := rec.snapshot()
	assert.Equal(t, []Mode{ModeStream}, started)
	assert.Empty(t, failed)
	assert.True(t, batches[0].Complete)
	assert.Equal(t, ModeStream, batches[0].Mode)
	assert.Len(t, batches[0].Lines, 2)
	assert.Equal(t, StateStreaming, src.State())
	assert.Equal(t, ModeStream, src.Mode())

	src.Stop()
	assert.Equal(t, StateStopped, src.State())
}

func TestSourceFallbackWhenToolMissing(t *testing.T) {
	cfg := testConfig()
	cfg.Stream = Strategy{Command: "netglobe-no-such-capture-tool"}
	cfg.Snapshot = shell(`printf 'x,10.0.0.1:1->8.8.8.8:443\n'`)

	rec := &recorder{}
	src := New(cfg, rec)
	require.NoError(t, src.Start(context.Background()))
	defer src.Stop()

	require.Eventually(t, func() bool {
		_, batches, _ := rec.snapshot()
		return len(batches) >= 2
	}, 5*time.Second, 10*time.Millisecond)

	started, batches, _ := rec.snapshot()
	assert.Equal(t, []Mode{ModeSnapshot}, started)
	assert.Equal(t, ModeSnapshot, batches[0].Mode)
	assert.Equal(t, []string{"x,10.0.0.1:1->8.8.8.8:443"}, batches[0].Lines)
	assert.Equal(t, StatePolling, src.State())
}

func TestSourceFallbackOnPermissionError(t *testing.T) {
	cfg := testConfig()
	cfg.Stream = shell(`echo "lsof: Permission denied" >&2; exit 1`)
	cfg.Snapshot = shell(`exit 0`)

	rec := &recorder{}
	src := New(cfg, rec)
	require.NoError(t, src.Start(context.Background()))
	defer src.Stop()

	require.Eventually(t, func() bool {
		started, _, _ := rec.snapshot()
		return len(started) == 1
	}, 5*time.Second, 10*time.Millisecond)

	started, _, failed := rec.snapshot()
	assert.Equal(t, ModeSnapshot, started[0])
	assert.Empty(t, failed)
}

func TestSourceFallbackWhenSilent(t *testing.T) {
	cfg := testConfig()
	cfg.ProbeTimeout = 100 * time.Millisecond
	cfg.Stream = shell(`exec sleep 30`)
	cfg.Snapshot = shell(`exit 0`)

	rec := &recorder{}
	src := New(cfg, rec)
	require.NoError(t, src.Start(context.Background()))
	defer src.Stop()

	require.Eventually(t, func() bool {
		started, _, _ := rec.snapshot()
		return len(started) == 1
	}, 5*time.Second, 10*time.Millisecond)

	started, _, _ := rec.snapshot()
	assert.Equal(t, ModeSnapshot, started[0])
}

func TestSourceSnapshotNoMatchesIsNotFailure(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = ModeSnapshot
	cfg.Snapshot = shell(`exit 1`)

	rec := &recorder{}
	src := New(cfg, rec)
	require.NoError(t, src.Start(context.Background()))
	defer src.Stop()

	require.Eventually(t, func() bool {
		_, batches, _ := rec.snapshot()
		return len(batches) >= 1
	}, 5*time.Second, 10*time.Millisecond)

	_, batches, failed := rec.snapshot()
	assert.Empty(t, failed)
	assert.Empty(t, batches[0].Lines)
	assert.True(t, batches[0].Complete)
}

func TestSourceRestartExhaustion(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = ModeStream
	cfg.Stream = shell(`echo partial; exit 1`)

	rec := &recorder{}
	src := New(cfg, rec)
	require.NoError(t, src.Start(context.Background()))

	select {
	case <-src.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("capture did not give up")
	}

	_, _, failed := rec.snapshot()
	require.Len(t, failed, 1)
	assert.True(t, errors.Is(failed[0], ErrCaptureUnavailable))
	assert.Equal(t, StateFailed, src.State())
}

func TestSourceBothStrategiesUnavailable(t *testing.T) {
	cfg := testConfig()
	cfg.Stream = Strategy{Command: "netglobe-no-such-stream"}
	cfg.Snapshot = Strategy{Command: "netglobe-no-such-snapshot"}

	rec := &recorder{}
	src := New(cfg, rec)
	require.NoError(t, src.Start(context.Background()))

	select {
	case <-src.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("capture did not fail")
	}

	_, _, failed := rec.snapshot()
	require.Len(t, failed, 1)
	assert.ErrorIs(t, failed[0], ErrCaptureUnavailable)
}

func TestSourceStartStopIdempotent(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = ModeSnapshot
	cfg.Snapshot = shell(`exit 0`)

	src := New(cfg, nil)
	assert.Equal(t, StateIdle, src.State())
	src.Stop()

	require.NoError(t, src.Start(context.Background()))
	require.NoError(t, src.Start(context.Background()))
	src.Stop()
	src.Stop()
	assert.Equal(t, StateStopped, src.State())
}

func TestBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	assert.Equal(t, base, backoff(base, 1))
	assert.Equal(t, 2*base, backoff(base, 2))
	assert.Equal(t, 4*base, backoff(base, 3))
	assert.Equal(t, base, backoff(base, 0))
}
