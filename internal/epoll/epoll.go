// thin wrapper over Linux epoll: add / modify / remove / wait, with a
// readiness bitmask independent of the raw EPOLL* constants
package epoll

import (
	"golang.org/x/sys/unix"
)

// Event is the demultiplexer's own readiness bitmask, translated to and
// from unix.EpollEvent at the add/modify/wait boundary so the rest of the
// tree never imports golang.org/x/sys/unix's EPOLL* constants directly.
type Event uint32

const (
	Readable Event = 1 << iota
	Writable
	PeerClosed
	ErrorEvent
	OneShot
	EdgeTriggered
)

func toUnix(e Event) uint32 {
	var m uint32
	if e&Readable != 0 {
		m |= unix.EPOLLIN
	}
	if e&Writable != 0 {
		m |= unix.EPOLLOUT
	}
	if e&PeerClosed != 0 {
		m |= unix.EPOLLRDHUP
	}
	if e&ErrorEvent != 0 {
		m |= unix.EPOLLERR
	}
	if e&OneShot != 0 {
		m |= unix.EPOLLONESHOT
	}
	if e&EdgeTriggered != 0 {
		m |= unix.EPOLLET
	}
	return m
}

func fromUnix(m uint32) Event {
	var e Event
	if m&unix.EPOLLIN != 0 {
		e |= Readable
	}
	if m&unix.EPOLLOUT != 0 {
		e |= Writable
	}
	if m&(unix.EPOLLRDHUP|unix.EPOLLHUP) != 0 {
		e |= PeerClosed
	}
	if m&unix.EPOLLERR != 0 {
		e |= ErrorEvent
	}
	return e
}

// Demux is a single epoll instance. Not safe for concurrent Wait calls;
// the reactor is expected to be the only caller.
type Demux struct {
	fd     int
	events []unix.EpollEvent
	ready  int
}

// New creates an epoll instance sized for at most maxEvents ready slots
// per Wait call.
func New(maxEvents int) (*Demux, error) {
	fd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, err
	}
	if maxEvents <= 0 {
		maxEvents = 128
	}
	return &Demux{fd: fd, events: make([]unix.EpollEvent, maxEvents)}, nil
}

// Add registers fd for the given event set.
func (d *Demux) Add(fd int, events Event) error {
	return unix.EpollCtl(d.fd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: toUnix(events),
		Fd:     int32(fd),
	})
}

// Modify re-arms fd for a (possibly different) event set; used to re-arm
// one-shot fds after a worker finishes with them.
func (d *Demux) Modify(fd int, events Event) error {
	return unix.EpollCtl(d.fd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{
		Events: toUnix(events),
		Fd:     int32(fd),
	})
}

// Remove deregisters fd. Safe to call even if fd was never added.
func (d *Demux) Remove(fd int) error {
	return unix.EpollCtl(d.fd, unix.EPOLL_CTL_DEL, fd, nil)
}

// Wait blocks until at least one fd is ready or timeoutMs elapses (−1 waits
// indefinitely), returning the number of ready slots. A transient EINTR is
// retried internally rather than surfaced as −1.
func (d *Demux) Wait(timeoutMs int) (int, error) {
	for {
		n, err := unix.EpollWait(d.fd, d.events, timeoutMs)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			d.ready = 0
			return -1, err
		}
		d.ready = n
		return n, nil
	}
}

// EventFd returns the fd of the i-th ready slot from the most recent Wait;
// valid only until the next Wait call.
func (d *Demux) EventFd(i int) int {
	return int(d.events[i].Fd)
}

// EventMask returns the readiness bitmask of the i-th ready slot.
func (d *Demux) EventMask(i int) Event {
	return fromUnix(d.events[i].Events)
}

// Close releases the epoll fd itself.
func (d *Demux) Close() error {
	return unix.Close(d.fd)
}
