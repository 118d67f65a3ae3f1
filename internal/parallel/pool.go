// Package parallel provides the scene-build thread pools of the render
// thread.
//
// Two pools exist per coordinator: a default-priority pool sized to
// GOMAXPROCS and a low-priority pool with half as many workers. They serve
// parallel scene building done outside composition; composition itself
// stays on the single render worker.
package parallel

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned when work is submitted to a closed pool.
var ErrClosed = errors.New("parallel: pool closed")

// Priority tells which of the two scene-build pools a Pool is.
type Priority uint8

const (
	// PriorityDefault is the regular scene-build pool.
	PriorityDefault Priority = iota

	// PriorityLow is the pool for background scene builds.
	PriorityLow
)

// String returns the priority name.
func (p Priority) String() string {
	if p == PriorityLow {
		return "low"
	}
	return "default"
}

// Pool is a pool of goroutines with per-worker queues and work stealing.
//
// Each worker primarily pulls from its own queue and steals from the others
// when it runs dry, which balances uneven build tasks.
//
// Pool is safe for concurrent use.
type Pool struct {
	name     string
	priority Priority
	workers  int

	queues []chan func()
	wg     sync.WaitGroup

	// sendMu is held shared by submitters for the duration of a send and
	// exclusively by Close between closing done and closing stop. Workers
	// exit on stop, so every accepted task runs.
	sendMu sync.RWMutex
	done   chan struct{}
	stop   chan struct{}

	running   atomic.Bool
	completed atomic.Uint64
}

// Workers computes the worker count for a pool. n > 0 is used as is.
// Otherwise the default pool gets GOMAXPROCS and the low-priority pool half
// of it, at least one.
func Workers(n int, priority Priority) int {
	if n > 0 {
		return n
	}
	n = runtime.GOMAXPROCS(0)
	if priority == PriorityLow {
		n = max(n/2, 1)
	}
	return n
}

// New starts a pool. See Workers for how workers is interpreted.
func New(name string, priority Priority, workers int) *Pool {
	workers = Workers(workers, priority)

	queueSize := max(workers*4, 8)
	p := &Pool{
		name:     name,
		priority: priority,
		workers:  workers,
		queues:   make([]chan func(), workers),
		done:     make(chan struct{}),
		stop:     make(chan struct{}),
	}
	for i := range workers {
		p.queues[i] = make(chan func(), queueSize)
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	own := p.queues[id]
	for {
		select {
		case <-p.stop:
			p.drain(own)
			return
		case fn := <-own:
			p.run(fn)
		default:
			if fn := p.steal(id); fn != nil {
				p.run(fn)
				continue
			}
			select {
			case <-p.stop:
				p.drain(own)
				return
			case fn := <-own:
				p.run(fn)
			}
		}
	}
}

func (p *Pool) run(fn func()) {
	if fn == nil {
		return
	}
	fn()
	p.completed.Add(1)
}

func (p *Pool) drain(q chan func()) {
	for {
		select {
		case fn := <-q:
			p.run(fn)
		default:
			return
		}
	}
}

func (p *Pool) steal(self int) func() {
	for i := range p.workers {
		if i == self {
			continue
		}
		select {
		case fn := <-p.queues[i]:
			return fn
		default:
		}
	}
	return nil
}

// Go queues fn on the worker with the shortest queue.
func (p *Pool) Go(fn func()) error {
	if fn == nil {
		return nil
	}
	p.sendMu.RLock()
	defer p.sendMu.RUnlock()
	if !p.running.Load() {
		return ErrClosed
	}
	idx := 0
	for i := 1; i < p.workers; i++ {
		if len(p.queues[i]) < len(p.queues[idx]) {
			idx = i
		}
	}
	select {
	case p.queues[idx] <- fn:
		return nil
	case <-p.done:
		return ErrClosed
	}
}

// Execute runs tasks across the workers and waits for all of them. The
// context passed to the tasks is canceled by the first failure; the first
// error is returned. Tasks that were never queued because the pool closed
// report ErrClosed.
func (p *Pool) Execute(ctx context.Context, tasks []func(context.Context) error) error {
	if len(tasks) == 0 {
		return nil
	}
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var (
		wg       sync.WaitGroup
		firstErr atomic.Pointer[error]
	)
	fail := func(err error) {
		if firstErr.CompareAndSwap(nil, &err) {
			cancel(err)
		}
	}

	p.sendMu.RLock()
	if !p.running.Load() {
		p.sendMu.RUnlock()
		return ErrClosed
	}
	wg.Add(len(tasks))
	for i, task := range tasks {
		wrapped := func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			if err := task(ctx); err != nil {
				fail(err)
			}
		}
		select {
		case p.queues[i%p.workers] <- wrapped:
		case <-p.done:
			wg.Done()
			fail(ErrClosed)
		}
	}
	p.sendMu.RUnlock()
	wg.Wait()

	if errp := firstErr.Load(); errp != nil {
		return *errp
	}
	return nil
}

// Close stops accepting work, runs what is queued and waits for the
// workers. Close is safe to call multiple times.
func (p *Pool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.sendMu.Lock()
	close(p.stop)
	p.sendMu.Unlock()
	p.wg.Wait()
}

// Name returns the pool name.
func (p *Pool) Name() string { return p.name }

// Priority returns the pool priority.
func (p *Pool) Priority() Priority { return p.priority }

// Workers returns the number of workers.
func (p *Pool) Workers() int { return p.workers }

// Running reports whether the pool accepts work.
func (p *Pool) Running() bool { return p.running.Load() }

// Completed returns how many tasks ran.
func (p *Pool) Completed() uint64 { return p.completed.Load() }

// Queued approximates the number of queued tasks.
func (p *Pool) Queued() int {
	total := 0
	for _, q := range p.queues {
		total += len(q)
	}
	return total
}
