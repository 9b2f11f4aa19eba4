// Package parallel provides the work-stealing worker pool that executes
// host kernels for the CPU compute device.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool is a pool of goroutines executing kernel ranges.
//
// Each worker has its own queue and steals from the others when it runs
// dry, which balances rows of uneven cost (footprints near the image of a
// lens are wider than those in empty regions).
//
// WorkerPool is safe for concurrent use. Work must not submit more work to
// the same pool and wait for it.
type WorkerPool struct {
	workers    int
	workQueues []chan func()
	done       chan struct{}
	wg         sync.WaitGroup
	running    atomic.Bool
	next       atomic.Uint32
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
	own := p.workQueues[id]
	for {
		select {
		case <-p.done:
			p.drain(own)
			return
		case work := <-own:
			work()
		default:
			if stolen := p.steal(id); stolen != nil {
				stolen()
				continue
			}
			select {
			case <-p.done:
				p.drain(own)
				return
			case work := <-own:
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

func (p *WorkerPool) steal(id int) func() {
	for i := range p.workers {
		if i == id {
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

// ExecuteAll runs every function on the pool and waits for all of them.
// It reports false without running anything if the pool is closed.
func (p *WorkerPool) ExecuteAll(work []func()) bool {
	if !p.running.Load() {
		return false
	}
	if len(work) == 0 {
		return true
	}

	var wg sync.WaitGroup
	wg.Add(len(work))
	start := int(p.next.Add(1))
	completed := true
	for i, fn := range work {
		wrapped := func() {
			defer wg.Done()
			fn()
		}
		select {
		case p.workQueues[(start+i)%p.workers] <- wrapped:
		case <-p.done:
			wg.Done()
			completed = false
		}
	}
	wg.Wait()
	return completed
}

// For splits [0, n) into chunks of at least grain elements and calls fn on
// each chunk from the pool. It returns after every chunk has finished and
// reports false if the pool was closed before all chunks were queued.
func (p *WorkerPool) For(n, grain int, fn func(lo, hi int)) bool {
	if n <= 0 {
		return p.running.Load()
	}
	grain = max(grain, 1)
	chunks := min(p.workers*4, (n+grain-1)/grain)
	if chunks <= 1 {
		if !p.running.Load() {
			return false
		}
		fn(0, n)
		return true
	}
	size := (n + chunks - 1) / chunks
	work := make([]func(), 0, chunks)
	for lo := 0; lo < n; lo += size {
		hi := min(lo+size, n)
		work = append(work, func() { fn(lo, hi) })
	}
	return p.ExecuteAll(work)
}

// Close stops accepting work, finishes queued work and stops the workers.
// Close is idempotent.
func (p *WorkerPool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

// Workers returns the number of workers.
func (p *WorkerPool) Workers() int { return p.workers }

// IsRunning reports whether the pool accepts work.
func (p *WorkerPool) IsRunning() bool { return p.running.Load() }
