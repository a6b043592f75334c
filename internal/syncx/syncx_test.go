package syncx

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry[string, int]()
	r.Store("a", 1)
	r.Store("b", 2)

	if v, ok := r.Load("a"); !ok || v != 1 {
		t.Errorf("Load(a) = %d, %v", v, ok)
	}
	if v, ok := r.LoadAndDelete("a"); !ok || v != 1 {
		t.Errorf("LoadAndDelete(a) = %d, %v", v, ok)
	}
	if _, ok := r.Load("a"); ok {
		t.Error("a still present after LoadAndDelete")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestRegistryConcurrentSafety(t *testing.T) {
	r := NewRegistry[int, int]()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Store(i, i)
			_, _ = r.Load(i)
		}(i)
	}
	wg.Wait()

	vals := r.Values()
	sort.Ints(vals)
	if len(vals) != 100 || vals[99] != 99 {
		t.Errorf("Values() has %d entries", len(vals))
	}
}

func TestSemaphore(t *testing.T) {
	s := NewSemaphore(1)
	ctx := context.Background()
	if err := s.Acquire(ctx); err != nil {
		t.Fatal(err)
	}
	if s.InUse() != 1 {
		t.Errorf("InUse() = %d, want 1", s.InUse())
	}

	short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	if err := s.Acquire(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Acquire on full semaphore = %v, want deadline exceeded", err)
	}

	s.Release()
	if err := s.Acquire(ctx); err != nil {
		t.Errorf("Acquire after Release = %v", err)
	}
}

func TestSemaphoreMinimumOne(t *testing.T) {
	if cap(NewSemaphore(0).slots) != 1 {
		t.Error("non-positive size should give one slot")
	}
}
