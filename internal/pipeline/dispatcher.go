// Package pipeline carries a fix from the ingestion boundary through
// resolution, rule evaluation and the side channels. Fixes for different
// vehicles run fully in parallel; within one vehicle's stream each fix is
// fully processed before the next begins.
package pipeline

import (
	"context"
	"sync"

	"github.com/chevastian666/sistrau-sub000/internal/domain"
	"github.com/chevastian666/sistrau-sub000/internal/metrics"
)

// Dispatcher runs one lightweight worker per vehicle id, each fed by a
// bounded queue. Back-pressure is drop-oldest: during a burst the newest
// fix wins, since only the latest position matters and rule evaluation on
// a stale fix buys nothing.
type Dispatcher struct {
	mu        sync.Mutex
	workers   map[string]*vehicleWorker
	queueSize int
	proc      *Processor

	ctx context.Context
	wg  sync.WaitGroup
}

type vehicleWorker struct {
	ch chan *domain.GPSFix
}

func NewDispatcher(ctx context.Context, proc *Processor, queueSize int) *Dispatcher {
	return &Dispatcher{
		workers:   make(map[string]*vehicleWorker),
		queueSize: queueSize,
		proc:      proc,
		ctx:       ctx,
	}
}

// Dispatch enqueues the fix on its vehicle's worker, spawning the worker on
// first sight of the vehicle.
func (d *Dispatcher) Dispatch(fix *domain.GPSFix) {
	d.mu.Lock()
	w, ok := d.workers[fix.VehicleID]
	if !ok {
		w = &vehicleWorker{ch: make(chan *domain.GPSFix, d.queueSize)}
		d.workers[fix.VehicleID] = w
		d.wg.Add(1)
		go d.run(w)
	}
	d.mu.Unlock()

	select {
	case w.ch <- fix:
		return
	default:
	}

	// Queue saturated: shed the oldest queued fix and try once more. The
	// second send can still lose a race with a concurrent producer for the
	// same vehicle; then the incoming fix is the one dropped.
	select {
	case <-w.ch:
		metrics.QueueDrops.Add(1)
	default:
	}
	select {
	case w.ch <- fix:
	default:
		metrics.QueueDrops.Add(1)
	}
}

func (d *Dispatcher) run(w *vehicleWorker) {
	defer d.wg.Done()
	for {
		select {
		case fix := <-w.ch:
			d.proc.Process(d.ctx, fix)
		case <-d.ctx.Done():
			d.drain(w)
			return
		}
	}
}

// drain processes the fixes already accepted into the queue before the
// worker exits, detached from the cancelled shutdown context so the side
// channels still go through.
func (d *Dispatcher) drain(w *vehicleWorker) {
	ctx := context.WithoutCancel(d.ctx)
	for {
		select {
		case fix := <-w.ch:
			d.proc.Process(ctx, fix)
		default:
			return
		}
	}
}

// Wait blocks until every worker has drained its queue after context
// cancellation.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
