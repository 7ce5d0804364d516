package dtm

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Task is one unit of dispatch work, typically computing a compensation
// vector and sending it to the peers of an AS.
type Task func(ctx context.Context) error

type namedTask struct {
	name string
	run  Task
}

// Dispatcher runs submitted tasks on a fixed pool of workers. Each task gets
// its own timeout. A failed task is logged and dropped, never retried.
type Dispatcher struct {
	workers int
	timeout time.Duration
	metrics *Metrics
	tasks   chan namedTask

	mu      sync.RWMutex
	closed  bool
	started bool
	stop    context.CancelFunc
	done    <-chan struct{}
	group   *errgroup.Group
}

// NewDispatcher creates a dispatcher with workers goroutines and room for
// queueSize pending tasks.
func NewDispatcher(workers, queueSize int, timeout time.Duration, m *Metrics) *Dispatcher {
	if m == nil {
		m = NewMetrics(nil)
	}
	return &Dispatcher{
		workers: max(1, workers),
		timeout: timeout,
		metrics: m,
		tasks:   make(chan namedTask, max(0, queueSize)),
	}
}

// Start launches the workers. They stop when ctx is cancelled or, after
// draining the queue, when Close is called.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.started = true

	ctx, d.stop = context.WithCancel(ctx)
	d.done = ctx.Done()
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < d.workers; i++ {
		g.Go(func() error {
			d.work(gctx)
			return nil
		})
	}
	d.group = g
}

func (d *Dispatcher) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-d.tasks:
			if !ok {
				return
			}
			d.metrics.QueueDepth.Dec()
			d.run(ctx, t)
		}
	}
}

func (d *Dispatcher) run(ctx context.Context, t namedTask) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	if err := t.run(ctx); err != nil {
		d.metrics.TaskFailures.Inc()
		logrus.WithField("task", t.name).Errorf("dispatch task failed: %v", err)
	}
}

// Submit queues a task. It blocks only while the queue is full, returns
// ErrDispatcherNotStarted before Start and ErrDispatcherClosed once the
// dispatcher is closed or stopped.
func (d *Dispatcher) Submit(name string, t Task) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	if !d.started {
		return ErrDispatcherNotStarted
	}
	d.metrics.QueueDepth.Inc()
	select {
	case d.tasks <- namedTask{name: name, run: t}:
		return nil
	case <-d.done:
		d.metrics.QueueDepth.Dec()
		return ErrDispatcherClosed
	}
}

// Close stops accepting tasks, lets the workers drain the queue and waits
// for them to exit.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.tasks)
	g, stop := d.group, d.stop
	d.mu.Unlock()

	if g == nil {
		return nil
	}
	err := g.Wait()
	stop()
	return err
}
