package syncx

import "context"

// Semaphore bounds concurrent work.
type Semaphore struct {
	slots chan struct{}
}

// NewSemaphore allows n holders at once; n < 1 is treated as 1.
func NewSemaphore(n int) *Semaphore {
	return &Semaphore{slots: make(chan struct{}, max(n, 1))}
}

// Acquire blocks until a slot is free or ctx is done.
func (s *Semaphore) Acquire(ctx context.Context) error {
	select {
	case s.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot taken by Acquire.
func (s *Semaphore) Release() { <-s.slots }

// InUse returns the number of held slots.
func (s *Semaphore) InUse() int { return len(s.slots) }
