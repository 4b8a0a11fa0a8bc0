package deque

import (
	"testing"
	"time"
)

func TestPushPopFIFO(t *testing.T) {
	d := New[int](4)
	d.PushBack(1)
	d.PushBack(2)
	d.PushBack(3)

	for _, want := range []int{1, 2, 3} {
		got, ok := d.PopFront()
		if !ok || got != want {
			t.Fatalf("PopFront() = %d, %v; want %d, true", got, ok, want)
		}
	}
}

func TestPushBackBlocksUntilConsumerDrains(t *testing.T) {
	d := New[int](1)
	d.PushBack(1)

	done := make(chan struct{})
	go func() {
		d.PushBack(2)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("PushBack returned before consumer freed space")
	case <-time.After(50 * time.Millisecond):
	}

	if v, ok := d.PopFront(); !ok || v != 1 {
		t.Fatalf("unexpected pop: %d %v", v, ok)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("blocked producer never unblocked after consumer popped")
	}
}

func TestCloseWakesAllWaiters(t *testing.T) {
	d := New[int](1)

	const waiters = 5
	results := make(chan bool, waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			_, ok := d.PopFront()
			results <- ok
		}()
	}

	time.Sleep(20 * time.Millisecond)
	d.Close()

	for i := 0; i < waiters; i++ {
		select {
		case ok := <-results:
			if ok {
				t.Fatal("expected PopFront to return false after Close")
			}
		case <-time.After(time.Second):
			t.Fatal("waiter never woke up after Close")
		}
	}
}

func TestPopFrontTimeout(t *testing.T) {
	d := New[int](1)

	start := time.Now()
	_, ok := d.PopFrontTimeout(30 * time.Millisecond)
	if ok {
		t.Fatal("expected timeout, got a value")
	}
	if elapsed := time.Since(start); elapsed < 25*time.Millisecond {
		t.Fatalf("returned too early: %v", elapsed)
	}
}

func TestCloseStillDeliversItemsQueuedBeforeIt(t *testing.T) {
	d := New[int](4)
	d.PushBack(1)
	d.PushBack(2)
	d.Close()

	for _, want := range []int{1, 2} {
		got, ok := d.PopFront()
		if !ok || got != want {
			t.Fatalf("PopFront() = %d, %v; want %d, true", got, ok, want)
		}
	}

	if _, ok := d.PopFront(); ok {
		t.Fatal("expected PopFront to return false once the backlog is drained")
	}
}

func TestPushAfterCloseIsNoop(t *testing.T) {
	d := New[int](2)
	d.Close()
	d.PushBack(1)

	if d.Len() != 0 {
		t.Fatalf("expected push after close to be discarded, len=%d", d.Len())
	}
}
