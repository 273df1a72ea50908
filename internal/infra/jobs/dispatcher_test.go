package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/vulnscan/internal/domain/scans"
)

type recordingRunner struct {
	mu   sync.Mutex
	seen map[domain.ScanID]int
	done chan domain.ScanID
}

func newRecordingRunner() *recordingRunner {
	return &recordingRunner{
		seen: make(map[domain.ScanID]int),
		done: make(chan domain.ScanID, 64),
	}
}

func (r *recordingRunner) Execute(ctx context.Context, id domain.ScanID) error {
	r.mu.Lock()
	r.seen[id]++
	r.mu.Unlock()
	r.done <- id
	return nil
}

func (r *recordingRunner) waitFor(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for job %d of %d", i+1, n)
		}
	}
}

type pendingStore struct {
	domain.Repository
	pending []*domain.Scan
}

func (s *pendingStore) ListPending(ctx context.Context) ([]*domain.Scan, error) {
	return s.pending, nil
}

func TestEnqueueExecutesJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := newRecordingRunner()
	d := NewDispatcher(runner, nil, 2, 0)
	d.Start(ctx)

	d.Enqueue("s1")
	runner.waitFor(t, 1)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Equal(t, 1, runner.seen["s1"])
}

func TestEnqueueManyJobsAllRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := newRecordingRunner()
	d := NewDispatcher(runner, nil, 4, 0)
	d.Start(ctx)

	ids := []domain.ScanID{"a", "b", "c", "d", "e", "f"}
	for _, id := range ids {
		d.Enqueue(id)
	}
	runner.waitFor(t, len(ids))

	runner.mu.Lock()
	defer runner.mu.Unlock()
	for _, id := range ids {
		assert.Equal(t, 1, runner.seen[id], "job %s", id)
	}
}

func TestSweepRequeuesPending(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := &pendingStore{pending: []*domain.Scan{
		{ID: "p1", Status: domain.StatusPending},
		{ID: "p2", Status: domain.StatusRunning},
	}}

	runner := newRecordingRunner()
	d := NewDispatcher(runner, store, 2, 0)
	d.Start(ctx)

	require.NoError(t, d.Sweep(ctx))
	runner.waitFor(t, 2)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Equal(t, 1, runner.seen["p1"])
	assert.Equal(t, 1, runner.seen["p2"])
}

func TestStartRunsInitialSweep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := &pendingStore{pending: []*domain.Scan{
		{ID: "stuck", Status: domain.StatusRunning},
	}}

	runner := newRecordingRunner()
	d := NewDispatcher(runner, store, 1, time.Hour)
	d.Start(ctx)

	runner.waitFor(t, 1)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Equal(t, 1, runner.seen["stuck"])
}

func TestWaitReturnsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	runner := newRecordingRunner()
	d := NewDispatcher(runner, nil, 2, 0)
	d.Start(ctx)

	cancel()

	done := make(chan struct{})
	go func() {
		d.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("workers did not stop after cancel")
	}
}
