package timer

import (
	"testing"
	"time"
)

func checkInvariant(t *testing.T, h *Heap) {
	t.Helper()
	for i, n := range h.nodes {
		if idx, ok := h.ref[n.id]; !ok || idx != i {
			t.Fatalf("ref[%d] = %d, want %d", n.id, idx, i)
		}
		left, right := 2*i+1, 2*i+2
		if left < len(h.nodes) && h.less(left, i) {
			t.Fatalf("heap property violated: child %d < parent %d", left, i)
		}
		if right < len(h.nodes) && h.less(right, i) {
			t.Fatalf("heap property violated: child %d < parent %d", right, i)
		}
	}
}

func TestMinHeapInvariantAfterMixedOps(t *testing.T) {
	h := New()
	base := time.Now()
	h.now = func() time.Time { return base }

	for id := 0; id < 20; id++ {
		h.Add(id, time.Duration(20-id)*time.Millisecond, func() {})
	}
	checkInvariant(t, h)

	h.Adjust(5, 1*time.Millisecond)
	h.Adjust(15, 100*time.Millisecond)
	checkInvariant(t, h)

	h.Pop()
	checkInvariant(t, h)

	h.Remove(10)
	checkInvariant(t, h)
}

func TestAddTwiceReplacesNotDuplicates(t *testing.T) {
	h := New()
	base := time.Now()
	h.now = func() time.Time { return base }

	h.Add(1, 10*time.Millisecond, func() {})
	sizeBefore := h.Len()

	h.Add(1, 50*time.Millisecond, func() {})
	if h.Len() != sizeBefore {
		t.Fatalf("Len changed on re-add of same id: before=%d after=%d", sizeBefore, h.Len())
	}

	h.Add(2, 5*time.Millisecond, func() {})
	if h.Len() != sizeBefore+1 {
		t.Fatalf("Len should increase by exactly 1 for a genuinely new id, got %d", h.Len())
	}
}

func TestTickRunsOnlyExpired(t *testing.T) {
	h := New()
	now := time.Now()
	h.now = func() time.Time { return now }

	var fired []int
	h.Add(1, 10*time.Millisecond, func() { fired = append(fired, 1) })
	h.Add(2, 20*time.Millisecond, func() { fired = append(fired, 2) })
	h.Add(3, 30*time.Millisecond, func() { fired = append(fired, 3) })

	now = now.Add(25 * time.Millisecond)
	h.Tick()

	if len(fired) != 2 || fired[0] != 1 || fired[1] != 2 {
		t.Fatalf("fired = %v, want [1 2]", fired)
	}
	if h.Len() != 1 {
		t.Fatalf("Len after tick = %d, want 1", h.Len())
	}
}

func TestNextTickMSSentinelWhenEmpty(t *testing.T) {
	h := New()
	if got := h.NextTickMS(); got != -1 {
		t.Fatalf("NextTickMS() on empty heap = %d, want -1", got)
	}
}

func TestNextTickMSReflectsHeadDeadline(t *testing.T) {
	h := New()
	now := time.Now()
	h.now = func() time.Time { return now }

	h.Add(1, 50*time.Millisecond, func() {})

	got := h.NextTickMS()
	if got <= 0 || got > 50 {
		t.Fatalf("NextTickMS() = %d, want in (0, 50]", got)
	}
}
