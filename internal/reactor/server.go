// the reactor: owns the listening socket, the epoll demultiplexer, the
// worker pool, the idle timer heap, and the fd -> Connection map, and
// drives the single main loop that turns readiness into worker tasks
package reactor

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/kfcemployee/tinyreactor/internal/conn"
	"github.com/kfcemployee/tinyreactor/internal/epoll"
	"github.com/kfcemployee/tinyreactor/internal/httpproto"
	"github.com/kfcemployee/tinyreactor/internal/pool"
	"github.com/kfcemployee/tinyreactor/internal/timer"
)

// TriggerMode encodes the listen/connection edge-vs-level choice as the
// 2-bit mask the original config exposes: bit 0 selects connection fds,
// bit 1 selects the listening fd.
type TriggerMode int

const (
	BothLevelTriggered TriggerMode = 0
	ConnEdgeTriggered  TriggerMode = 1
	ListenEdgeTriggered TriggerMode = 2
	BothEdgeTriggered  TriggerMode = 3
)

func (m TriggerMode) connEdge() bool   { return m&ConnEdgeTriggered != 0 }
func (m TriggerMode) listenEdge() bool { return m&ListenEdgeTriggered != 0 }

// maxUsers bounds concurrently accepted clients at 2^16; accepts beyond it
// are closed immediately.
const maxUsers = 1 << 16

const (
	backlog   = 6
	maxEvents = 4096
)

// Config configures one Server; zero values fall back to sane defaults
// where noted.
type Config struct {
	Port        int
	SrcDir      string
	Trigger     TriggerMode
	IdleTimeout time.Duration // 0 disables idle reaping
	Linger      bool
	Workers     int // <=0 -> runtime.NumCPU
}

// Server is the reactor: single-threaded event loop plus a worker pool
// that does all the connection I/O and parsing off that thread.
type Server struct {
	cfg    Config
	log    *slog.Logger
	verify httpproto.Verifier

	listenFd int
	demux    *epoll.Demux
	pool     *pool.Pool
	timers   *timer.Heap

	mu    sync.Mutex
	users map[int]*conn.Connection

	userCount atomic.Int64
	closed    atomic.Bool
}

// New creates the listening socket and epoll instance but does not yet
// start accepting; call Run for that.
func New(cfg Config, verify httpproto.Verifier, log *slog.Logger) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}

	fd, err := listenSocket(cfg.Port, cfg.Linger)
	if err != nil {
		return nil, fmt.Errorf("reactor: listen: %w", err)
	}

	demux, err := epoll.New(maxEvents)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("reactor: epoll: %w", err)
	}

	listenEvents := epoll.Readable
	if cfg.Trigger.listenEdge() {
		listenEvents |= epoll.EdgeTriggered
	}
	if err := demux.Add(fd, listenEvents); err != nil {
		demux.Close()
		unix.Close(fd)
		return nil, fmt.Errorf("reactor: register listen fd: %w", err)
	}

	return &Server{
		cfg:      cfg,
		log:      log,
		verify:   verify,
		listenFd: fd,
		demux:    demux,
		pool:     pool.New(cfg.Workers),
		timers:   timer.New(),
		users:    make(map[int]*conn.Connection),
	}, nil
}

// listenSocket creates, configures, binds, and listens on an IPv4 TCP
// socket, matching the reactor's non-blocking, SO_REUSEADDR, optional
// SO_LINGER setup.
func listenSocket(port int, linger bool) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, err
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if linger {
		if err := unix.SetsockoptLinger(fd, unix.SOL_SOCKET, unix.SO_LINGER, &unix.Linger{Onoff: 1, Linger: 1}); err != nil {
			unix.Close(fd)
			return -1, err
		}
	}

	if err := unix.Bind(fd, &unix.SockaddrInet4{Port: port}); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// Run drives the main loop until Stop is called. It returns once the
// listen fd has been observed closed.
func (s *Server) Run() {
	for !s.closed.Load() {
		timeoutMs := -1
		if s.cfg.IdleTimeout > 0 {
			timeoutMs = s.timers.NextTickMS()
		}

		n, err := s.demux.Wait(timeoutMs)
		if err != nil {
			s.log.Error("epoll wait failed", "error", err)
			continue
		}

		for i := 0; i < n; i++ {
			fd := s.demux.EventFd(i)
			mask := s.demux.EventMask(i)

			if fd == s.listenFd {
				s.acceptLoop()
				continue
			}

			c := s.lookup(fd)
			if c == nil {
				continue
			}

			if mask&(epoll.PeerClosed|epoll.ErrorEvent) != 0 {
				s.closeConn(c)
				continue
			}
			if mask&epoll.Readable != 0 {
				s.extendTime(fd)
				s.pool.AddTask(func() { s.onRead(c) })
			}
			if mask&epoll.Writable != 0 {
				s.extendTime(fd)
				s.pool.AddTask(func() { s.onWrite(c) })
			}
		}
	}
}

// acceptLoop accepts one connection, or loops accepting until EAGAIN when
// the listen fd is edge-triggered (readiness for it would otherwise only
// be reported once per burst of incoming connections).
func (s *Server) acceptLoop() {
	for {
		nfd, sa, err := unix.Accept(s.listenFd)
		if err != nil {
			if !errors.Is(err, unix.EAGAIN) {
				s.log.Warn("accept failed", "error", err)
			}
			return
		}

		if s.userCount.Load() >= maxUsers {
			unix.Close(nfd)
			continue
		}

		if err := unix.SetNonblock(nfd, true); err != nil {
			unix.Close(nfd)
			continue
		}

		c := conn.New(nfd, peerString(sa), s.cfg.SrcDir, s.cfg.Trigger.connEdge(), s.verify, s.onConnClose)
		s.addConn(nfd, c)
		s.log.Debug("accepted connection", "conn_id", c.ID, "peer", c.PeerAddr)

		if s.cfg.IdleTimeout > 0 {
			s.timers.Add(nfd, s.cfg.IdleTimeout, func() { s.closeConn(c) })
		}

		events := epoll.Readable | epoll.PeerClosed | epoll.OneShot
		if s.cfg.Trigger.connEdge() {
			events |= epoll.EdgeTriggered
		}
		if err := s.demux.Add(nfd, events); err != nil {
			s.closeConn(c)
			continue
		}

		if !s.cfg.Trigger.listenEdge() {
			return
		}
	}
}

func (s *Server) onRead(c *conn.Connection) {
	if c.Closed() {
		return
	}
	_, err := c.Read()
	if err != nil {
		s.closeConn(c)
		return
	}
	s.onProcess(c)
}

func (s *Server) onWrite(c *conn.Connection) {
	if c.Closed() {
		return
	}
	done, err := c.Write()
	if err != nil {
		s.closeConn(c)
		return
	}
	if done && c.KeepAlive() {
		s.onProcess(c)
		return
	}
	if !done {
		s.rearm(c, epoll.Writable)
		return
	}
	s.closeConn(c)
}

func (s *Server) onProcess(c *conn.Connection) {
	pending := c.Handle()
	if pending {
		s.rearm(c, epoll.Writable)
		return
	}
	s.rearm(c, epoll.Readable)
}

func (s *Server) rearm(c *conn.Connection, base epoll.Event) {
	events := base | epoll.PeerClosed | epoll.OneShot
	if s.cfg.Trigger.connEdge() {
		events |= epoll.EdgeTriggered
	}
	if err := s.demux.Modify(c.Fd, events); err != nil {
		s.closeConn(c)
	}
}

func (s *Server) extendTime(fd int) {
	if s.cfg.IdleTimeout <= 0 {
		return
	}
	s.timers.Adjust(fd, s.cfg.IdleTimeout)
}

func (s *Server) addConn(fd int, c *conn.Connection) {
	s.mu.Lock()
	s.users[fd] = c
	s.mu.Unlock()
	s.userCount.Add(1)
}

func (s *Server) lookup(fd int) *conn.Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[fd]
}

func (s *Server) closeConn(c *conn.Connection) {
	s.demux.Remove(c.Fd)
	s.timers.Remove(c.Fd)
	c.Close()
	s.log.Debug("closed connection", "conn_id", c.ID, "peer", c.PeerAddr)
}

// onConnClose runs from Connection.Close, removing the fd from the users
// map and decrementing the live count exactly once.
func (s *Server) onConnClose(c *conn.Connection) {
	s.mu.Lock()
	delete(s.users, c.Fd)
	s.mu.Unlock()
	s.userCount.Add(-1)
}

// Stop closes the listening socket and marks the server closed; the main
// loop observes the flag on its next iteration. It does not wait for
// in-flight worker tasks — call Wait for that.
func (s *Server) Stop() {
	s.closed.Store(true)
	unix.Close(s.listenFd)
	s.demux.Remove(s.listenFd)
	s.pool.Stop()
}

// Wait blocks until every worker goroutine has exited.
func (s *Server) Wait() {
	s.pool.Wait()
}

// Port returns the listening socket's bound port, useful when Config.Port
// was 0 and the kernel picked an ephemeral one (as in tests).
func (s *Server) Port() (int, error) {
	sa, err := unix.Getsockname(s.listenFd)
	if err != nil {
		return 0, err
	}
	inet4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return 0, fmt.Errorf("reactor: unexpected sockaddr type %T", sa)
	}
	return inet4.Port, nil
}

func peerString(sa unix.Sockaddr) string {
	inet4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%d.%d.%d.%d:%d", inet4.Addr[0], inet4.Addr[1], inet4.Addr[2], inet4.Addr[3], inet4.Port)
}
