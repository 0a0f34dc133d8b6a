package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSemaphore_BoundsConcurrency(t *testing.T) {
	sem := NewSemaphore(2)
	var inFlight int32
	var maxObserved int32
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sem.Acquire(context.Background()); err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			defer sem.Release()

			n := atomic.AddInt32(&inFlight, 1)
			for {
				max := atomic.LoadInt32(&maxObserved)
				if n <= max || atomic.CompareAndSwapInt32(&maxObserved, max, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
		}()
	}
	wg.Wait()

	if atomic.LoadInt32(&maxObserved) > 2 {
		t.Fatalf("observed %d concurrent holders, want at most 2", maxObserved)
	}
}

func TestSemaphore_AcquireRespectsCancellation(t *testing.T) {
	sem := NewSemaphore(1)
	if err := sem.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer sem.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := sem.Acquire(ctx); err == nil {
		t.Fatalf("expected Acquire to fail once the deadline is exceeded")
	}
}

// TestHostThrottle_P1 checks that any two successful Wait returns for the
// same host are separated by at least the configured interval.
func TestHostThrottle_P1(t *testing.T) {
	interval := 40 * time.Millisecond
	throttle := NewHostThrottle(interval, 0)

	first := time.Now()
	if err := throttle.Wait(context.Background(), "example.com"); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if err := throttle.Wait(context.Background(), "example.com"); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	elapsed := time.Since(first)
	if elapsed < interval {
		t.Fatalf("second Wait returned after %v, want at least %v", elapsed, interval)
	}
}

func TestHostThrottle_IndependentHosts(t *testing.T) {
	interval := 100 * time.Millisecond
	throttle := NewHostThrottle(interval, 0)

	start := time.Now()
	if err := throttle.Wait(context.Background(), "a.example.com"); err != nil {
		t.Fatalf("Wait a: %v", err)
	}
	if err := throttle.Wait(context.Background(), "b.example.com"); err != nil {
		t.Fatalf("Wait b: %v", err)
	}
	elapsed := time.Since(start)
	if elapsed >= interval {
		t.Fatalf("expected an unrelated host not to wait on the first host's interval, took %v", elapsed)
	}
}

func TestHostThrottle_RespectsCancellation(t *testing.T) {
	throttle := NewHostThrottle(time.Second, 0)
	if err := throttle.Wait(context.Background(), "slow.example.com"); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := throttle.Wait(ctx, "slow.example.com"); err == nil {
		t.Fatalf("expected the second Wait to respect the cancelled context")
	}
}
