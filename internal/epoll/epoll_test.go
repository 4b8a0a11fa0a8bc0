package epoll

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestWaitReportsReadableOnPipeWrite(t *testing.T) {
	fds := make([]int, 2)
	if err := unix.Pipe(fds); err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	d, err := New(8)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()

	if err := d.Add(fds[0], Readable|EdgeTriggered); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if _, err := unix.Write(fds[1], []byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	n, err := d.Wait(1000)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if n != 1 {
		t.Fatalf("n = %d, want 1", n)
	}
	if d.EventFd(0) != fds[0] {
		t.Fatalf("EventFd(0) = %d, want %d", d.EventFd(0), fds[0])
	}
	if d.EventMask(0)&Readable == 0 {
		t.Fatalf("EventMask(0) = %v, want Readable set", d.EventMask(0))
	}
}

func TestWaitTimesOutWithNoReadyFds(t *testing.T) {
	fds := make([]int, 2)
	if err := unix.Pipe(fds); err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	d, err := New(8)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()

	if err := d.Add(fds[0], Readable); err != nil {
		t.Fatalf("Add: %v", err)
	}

	n, err := d.Wait(50)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if n != 0 {
		t.Fatalf("n = %d, want 0", n)
	}
}

func TestRemoveStopsReporting(t *testing.T) {
	fds := make([]int, 2)
	if err := unix.Pipe(fds); err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	d, err := New(8)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()

	if err := d.Add(fds[0], Readable); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := d.Remove(fds[0]); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	if _, err := unix.Write(fds[1], []byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	n, err := d.Wait(50)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if n != 0 {
		t.Fatalf("n = %d, want 0 after Remove", n)
	}
}
