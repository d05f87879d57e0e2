package events

import (
	"context"
	"sync"
	"time"

	"github.com/hackshop/fulfillment/internal/config"
	"github.com/hackshop/fulfillment/internal/obs"
)

// Dispatcher coordinates workers publishing queued events and scales the
// pool with the backlog.
type Dispatcher struct {
	cfg    config.Config
	q      *Queue
	pub    Publisher
	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	workerCancels []context.CancelFunc
}

// NewDispatcher constructs a Dispatcher with the given config, queue, and
// publisher.
func NewDispatcher(cfg config.Config, q *Queue, pub Publisher) *Dispatcher {
	return &Dispatcher{cfg: cfg, q: q, pub: pub}
}

// Start begins publishing and autoscaling in the background.
func (d *Dispatcher) Start(parent context.Context) {
	d.ctx, d.cancel = context.WithCancel(parent)
	d.q.Start(d.ctx, d.cfg.QueueHighWatermark)
	d.addWorkers(d.cfg.InitialWorkerCount)
	go d.scaler()
}

// Stop cancels background routines and stops workers.
func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.mu.Lock()
	for _, c := range d.workerCancels {
		c()
	}
	d.workerCancels = nil
	d.mu.Unlock()
}

// scaler adjusts worker count based on backlog and configuration.
func (d *Dispatcher) scaler() {
	t := time.NewTicker(d.cfg.ScaleInterval)
	defer t.Stop()
	idleTicks := 0
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-t.C:
			backlog := d.q.BacklogSize()
			wc := d.WorkerCount()
			if backlog > wc*d.cfg.ScaleUpBacklogPerWorker && wc < d.cfg.WorkerMax {
				d.addWorkers(1)
				idleTicks = 0
				continue
			}
			if backlog == 0 {
				idleTicks++
				if idleTicks >= d.cfg.ScaleDownIdleTicks && wc > d.cfg.WorkerMin {
					d.removeWorkers(1)
					idleTicks = 0
				}
			} else {
				idleTicks = 0
			}
		}
	}
}

// addWorkers spawns n workers.
func (d *Dispatcher) addWorkers(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := 0; i < n; i++ {
		wctx, cancel := context.WithCancel(d.ctx)
		d.workerCancels = append(d.workerCancels, cancel)
		go d.worker(wctx)
	}
	obs.Logger.Info("dispatch workers scaled", "worker_count", len(d.workerCancels))
}

// removeWorkers stops up to n workers.
func (d *Dispatcher) removeWorkers(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n > len(d.workerCancels) {
		n = len(d.workerCancels)
	}
	for i := 0; i < n; i++ {
		c := d.workerCancels[len(d.workerCancels)-1]
		d.workerCancels = d.workerCancels[:len(d.workerCancels)-1]
		c()
	}
	obs.Logger.Info("dispatch workers scaled", "worker_count", len(d.workerCancels))
}

// worker drains events from the queue and publishes them. Publish
// failures are logged and dropped; the order itself already committed.
func (d *Dispatcher) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.q.Out():
			if err := d.pub.Publish(ctx, ev); err != nil {
				obs.Logger.Warn("order_event_publish_failed",
					"order_id", ev.OrderID, "error", err.Error())
			}
			d.q.MarkProcessed()
		}
	}
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ev OrderPlaced) bool { return d.q.Enqueue(ev) }

// BacklogSize returns pending items in the queue.
func (d *Dispatcher) BacklogSize() int { return d.q.BacklogSize() }

// QueueDepth returns backlog plus buffered output items.
func (d *Dispatcher) QueueDepth() int { return d.q.QueueDepth() }

// WorkerCount returns the current number of workers.
func (d *Dispatcher) WorkerCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.workerCancels)
}

// IsShuttingDown reports whether new enqueues are rejected.
func (d *Dispatcher) IsShuttingDown() bool { return d.q.IsShuttingDown() }

// CloseIntake disallows future enqueues.
func (d *Dispatcher) CloseIntake() { d.q.CloseIntake() }

// QueueMetrics exposes the underlying queue metrics.
func (d *Dispatcher) QueueMetrics() (enq, proc uint64, backlog, depth int) {
	return d.q.Metrics()
}

// DrainUntil blocks until the queue is fully drained or context is done.
func (d *Dispatcher) DrainUntil(ctx context.Context) bool {
	for {
		enq, proc, backlog, depth := d.q.Metrics()
		if backlog == 0 && depth == 0 && enq == proc {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(50 * time.Millisecond):
		}
	}
}
