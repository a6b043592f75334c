package dedup

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrPoolClosed is returned when work is submitted after Close.
var ErrPoolClosed = errors.New("worker pool closed")

// pool is a fixed set of goroutines draining a task channel.
type pool struct {
	size  int
	tasks chan func()
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func newPool(size int) *pool {
	p := &pool{size: size, tasks: make(chan func(), size)}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.run(i)
	}
	return p
}

func (p *pool) run(id int) {
	defer p.wg.Done()
	for task := range p.tasks {
		task()
	}
	slog.Debug("dedup worker stopped", "worker_id", id)
}

// submit queues a task, blocking while every worker is busy.
func (p *pool) submit(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	p.tasks <- task
	return nil
}

// mapIndexed runs fn(i) for i in [0, n) on the pool and waits for all of them.
// A panic inside fn is recovered and returned as an error.
func (p *pool) mapIndexed(n int, fn func(i int)) error {
	var (
		wg       sync.WaitGroup
		once     sync.Once
		panicErr error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		err := p.submit(func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					once.Do(func() { panicErr = fmt.Errorf("fingerprint item %d: panic: %v", i, r) })
				}
			}()
			fn(i)
		})
		if err != nil {
			wg.Done()
			wg.Wait()
			return err
		}
	}
	wg.Wait()
	return panicErr
}

// close stops accepting work and waits for running tasks to drain.
func (p *pool) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}
