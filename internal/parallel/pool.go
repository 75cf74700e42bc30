// Package parallel provides the goroutine pool used by the CPU device.
package parallel

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
)

// ErrPoolClosed is returned by ForEach after Close.
var ErrPoolClosed = errors.New("parallel: worker pool closed")

// WorkerPool is a fixed set of goroutines executing indexed work items.
//
// Each worker has its own queue and steals from the others when its queue
// runs dry, which balances rows of very different cost (rows crossing the
// set interior take MaxIter steps per pixel, rows outside escape at once).
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool struct {
	workers    int
	workQueues []chan func()
	done       chan struct{}
	wg         sync.WaitGroup
	running    atomic.Bool
}

// NewWorkerPool starts a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	queueSize := max(workers*4, 8)

	p := &WorkerPool{
		workers:    workers,
		workQueues: make([]chan func(), workers),
		done:       make(chan struct{}),
	}
	for i := range workers {
		p.workQueues[i] = make(chan func(), queueSize)
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	mine := p.workQueues[id]
	for {
		select {
		case <-p.done:
			p.drain(mine)
			return
		case work := <-mine:
			work()
		default:
			if stolen := p.steal(id); stolen != nil {
				stolen()
				continue
			}
			select {
			case <-p.done:
				p.drain(mine)
				return
			case work := <-mine:
				work()
			}
		}
	}
}

func (p *WorkerPool) drain(queue chan func()) {
	for {
		select {
		case work := <-queue:
			work()
		default:
			return
		}
	}
}

func (p *WorkerPool) steal(myID int) func() {
	for i := range p.workers {
		if i == myID {
			continue
		}
		select {
		case work := <-p.workQueues[i]:
			return work
		default:
		}
	}
	return nil
}

// ForEach calls fn(i) for every i in [0, n) across the workers and waits
// for all calls to return.
//
// Items not yet started when ctx is cancelled are skipped and ctx.Err()
// is returned. A closed pool returns ErrPoolClosed without running fn.
func (p *WorkerPool) ForEach(ctx context.Context, n int, fn func(i int)) error {
	if !p.running.Load() {
		return ErrPoolClosed
	}
	if n <= 0 {
		return ctx.Err()
	}

	var pending sync.WaitGroup
	pending.Add(n)
	for i := range n {
		item := func() {
			defer pending.Done()
			if ctx.Err() != nil {
				return
			}
			fn(i)
		}
		select {
		case p.workQueues[i%p.workers] <- item:
		case <-p.done:
			// Pool closed mid-submit: account for the unsubmitted items.
			pending.Add(-(n - i))
			pending.Wait()
			return ErrPoolClosed
		}
	}
	pending.Wait()
	return ctx.Err()
}

// Close stops the workers after the queued work has run.
// Close is safe to call multiple times but must not race ForEach.
func (p *WorkerPool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

// Workers returns the number of worker goroutines.
func (p *WorkerPool) Workers() int { return p.workers }

// IsRunning reports whether the pool accepts work.
func (p *WorkerPool) IsRunning() bool { return p.running.Load() }
