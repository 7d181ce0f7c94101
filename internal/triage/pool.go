package triage

import (
	"context"
	"sync"

	"github.com/linnemanlabs/go-core/xerrors"
)

// Pool is a bounded worker pool for pipeline runs. External model calls are
// blocking, so every submitted record runs on one of a fixed number of
// workers; Submit applies backpressure once the queue fills.
type Pool struct {
	mu     sync.Mutex
	closed bool
	tasks  chan func()
	wg     sync.WaitGroup
}

// NewPool starts workers goroutines draining a queue of the given depth.
func NewPool(workers, queue int) *Pool {
	if workers <= 0 {
		panic(xerrors.New("pool workers must be positive"))
	}
	if queue < 0 {
		queue = 0
	}
	p := &Pool{tasks: make(chan func(), queue)}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		task()
	}
}

// Submit enqueues a task, blocking when the queue is full. It returns
// ErrShuttingDown after Close.
func (p *Pool) Submit(task func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrShuttingDown
	}
	p.tasks <- task
	return nil
}

// Close stops accepting work and waits for in-flight tasks to drain, up to
// the context deadline.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
