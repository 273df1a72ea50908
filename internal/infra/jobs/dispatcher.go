package jobs

import (
	"context"
	"log"
	"sync"
	"time"

	domain "github.com/bryanwahyu/vulnscan/internal/domain/scans"
	"github.com/bryanwahyu/vulnscan/internal/middleware"
)

// Runner is the job body invoked once per enqueued scan.
type Runner interface {
	Execute(ctx context.Context, id domain.ScanID) error
}

// Dispatcher is an in-process job scheduler: a bounded worker pool draining a
// buffered queue. Every Enqueue leads to at least one Execute within the
// process lifetime; the recovery sweep requeues scans found in non-terminal
// states after a crash.
type Dispatcher struct {
	runner  Runner
	store   domain.Repository
	queue   chan domain.ScanID
	workers int

	sweepEvery time.Duration

	mu      sync.Mutex
	baseCtx context.Context
	wg      sync.WaitGroup
}

func NewDispatcher(runner Runner, store domain.Repository, workers int, sweepEvery time.Duration) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	return &Dispatcher{
		runner:     runner,
		store:      store,
		queue:      make(chan domain.ScanID, 256),
		workers:    workers,
		sweepEvery: sweepEvery,
	}
}

// Start launches the worker pool and the recovery sweep loop. Scans keep the
// context passed here, not the submitting request's context, so an HTTP
// disconnect never cancels a running scan.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	d.baseCtx = ctx
	d.mu.Unlock()

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
	if d.sweepEvery > 0 && d.store != nil {
		go d.sweepLoop(ctx)
	}
}

// Enqueue schedules orchestration for a scan. Never blocks the caller: on a
// full queue the job runs on its own goroutine instead.
func (d *Dispatcher) Enqueue(id domain.ScanID) {
	select {
	case d.queue <- id:
	default:
		go d.execute(id)
	}
}

// Sweep requeues every scan stuck in a non-terminal state. Terminal records
// are filtered by the store; redelivered ones are additionally no-oped by the
// orchestrator's own terminal check.
func (d *Dispatcher) Sweep(ctx context.Context) error {
	pending, err := d.store.ListPending(ctx)
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		log.Printf("recovery sweep: requeueing %d scans", len(pending))
	}
	for _, s := range pending {
		d.Enqueue(s.ID)
	}
	return nil
}

// Wait blocks until all workers have drained after context cancellation.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-d.queue:
			d.execute(id)
		}
	}
}

func (d *Dispatcher) execute(id domain.ScanID) {
	d.mu.Lock()
	ctx := d.baseCtx
	d.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	middleware.IncrementScansRunning()
	defer middleware.DecrementScansRunning()

	if err := d.runner.Execute(ctx, id); err != nil {
		middleware.IncrementScansFailed()
		log.Printf("scan job %s: %v", id, err)
	}
}

func (d *Dispatcher) sweepLoop(ctx context.Context) {
	if err := d.Sweep(ctx); err != nil {
		log.Printf("recovery sweep error: %v", err)
	}

	ticker := time.NewTicker(d.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.Sweep(ctx); err != nil {
				log.Printf("recovery sweep error: %v", err)
			}
		}
	}
}
