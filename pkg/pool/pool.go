package pool

import (
	"context"
	"errors"
	"sync"
)

// DefaultPoolSize Pool configuration
const DefaultPoolSize = 4

var ErrPoolClosed = errors.New("worker pool is closed")

// WorkerPool is a long-lived, fixed-size pool shared by all requests. The
// size bounds how many detection tasks run at once; submission is decoupled
// from execution so a batch of N images never spawns more than size workers'
// worth of concurrent backend calls.
type WorkerPool struct {
	tasks      chan func()
	done       chan struct{}
	size       int
	mu         sync.Mutex
	closed     bool
	submitters sync.WaitGroup
	wg         sync.WaitGroup
	metrics    *PoolMetrics
}

type PoolMetrics struct {
	mu             sync.RWMutex
	inFlight       int
	peakInFlight   int
	totalSubmitted int64
	totalCompleted int64
}

func New(size int) *WorkerPool {
	if size <= 0 {
		size = DefaultPoolSize
	}

	p := &WorkerPool{
		tasks:   make(chan func(), size),
		done:    make(chan struct{}),
		size:    size,
		metrics: &PoolMetrics{},
	}

	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}

	return p
}

func (p *WorkerPool) Size() int {
	return p.size
}

// Submit queues a task for execution. It blocks while all workers are busy
// and the queue is full, and fails only when the pool is shut down or the
// caller's context ends first. A Submit blocked on a full queue observes
// shutdown through the done channel; the task channel is never closed while
// a submitter could still be sending into it.
func (p *WorkerPool) Submit(ctx context.Context, task func()) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.submitters.Add(1)
	p.mu.Unlock()
	defer p.submitters.Done()

	select {
	case p.tasks <- task:
		p.metrics.mu.Lock()
		p.metrics.totalSubmitted++
		p.metrics.mu.Unlock()
		return nil
	case <-p.done:
		return ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting work and waits for queued tasks to drain. Blocked
// submitters are woken first and fail with ErrPoolClosed; the task channel is
// closed only once no submitter can still be sending.
func (p *WorkerPool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	close(p.done)
	p.submitters.Wait()
	close(p.tasks)
	p.wg.Wait()
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()

	for task := range p.tasks {
		p.metrics.mu.Lock()
		p.metrics.inFlight++
		if p.metrics.inFlight > p.metrics.peakInFlight {
			p.metrics.peakInFlight = p.metrics.inFlight
		}
		p.metrics.mu.Unlock()

		task()

		p.metrics.mu.Lock()
		p.metrics.inFlight--
		p.metrics.totalCompleted++
		p.metrics.mu.Unlock()
	}
}

func (p *WorkerPool) Metrics() (inFlight, peakInFlight int, submitted, completed int64) {
	p.metrics.mu.RLock()
	defer p.metrics.mu.RUnlock()
	return p.metrics.inFlight, p.metrics.peakInFlight, p.metrics.totalSubmitted, p.metrics.totalCompleted
}
