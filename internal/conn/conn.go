// per-client connection state machine: read -> handle -> write, driven by
// the reactor's readiness events and executed on worker goroutines
package conn

import (
	"errors"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/kfcemployee/tinyreactor/internal/buffer"
	"github.com/kfcemployee/tinyreactor/internal/httpproto"
)

// writevStarvationThreshold bounds how long a single connection's Write
// loop keeps looping in level-triggered mode before yielding the reactor
// back to other connections.
const writevStarvationThreshold = 10 * 1024

// Connection holds everything one client fd needs across its lifetime:
// buffers, the in-flight request/response, and the iovec pair writev reads
// from directly (header bytes plus, when serving a static file, the
// mmap'd body).
type Connection struct {
	Fd       int
	PeerAddr string
	// ID correlates this connection's log lines across the read/process/
	// write handoffs between worker goroutines, since the fd alone gets
	// reused by the kernel across the process's lifetime.
	ID     uuid.UUID
	closed bool

	ReadBuf  *buffer.Buffer
	WriteBuf *buffer.Buffer

	parser   httpproto.Parser
	Req      httpproto.Request
	Resp     *httpproto.Response

	iov      [2][]byte
	iovCount int

	keepAlive bool

	edgeTriggered bool
	verify        httpproto.Verifier
	onClose       func(*Connection)
}

// New builds a Connection bound to fd. srcDir is the document root the
// response builder resolves paths against; verify backs the two POST auth
// routes; onClose, if non-nil, runs once from Close (used by the reactor to
// drop the fd from its users map and decrement the live count).
func New(fd int, peerAddr, srcDir string, edgeTriggered bool, verify httpproto.Verifier, onClose func(*Connection)) *Connection {
	return &Connection{
		Fd:            fd,
		PeerAddr:      peerAddr,
		ID:            uuid.New(),
		ReadBuf:       buffer.New(4096),
		WriteBuf:      buffer.New(4096),
		Resp:          httpproto.NewResponse(srcDir),
		edgeTriggered: edgeTriggered,
		verify:        verify,
		onClose:       onClose,
	}
}

// Closed reports whether Close has already run.
func (c *Connection) Closed() bool { return c.closed }

// ErrPeerClosed is returned by Read when the peer has shut down its write
// side (a zero-length read with no accompanying errno).
var ErrPeerClosed = errors.New("conn: peer closed")

// Read drains the socket into ReadBuf. In edge-triggered mode it loops
// until the kernel returns EAGAIN or an error/EOF, since edge-triggered
// readiness is reported only once per level change; in level-triggered
// mode a single read is enough because the fd stays ready until drained.
// Returns a non-nil error (ErrPeerClosed or the underlying errno) on EOF or
// a hard error — callers should Close in that case.
func (c *Connection) Read() (ok bool, err error) {
	for {
		n, rerr := c.ReadBuf.ReadFd(c.Fd)
		if n > 0 {
			ok = true
		}
		if rerr == nil {
			if n == 0 {
				return ok, ErrPeerClosed
			}
			if !c.edgeTriggered {
				return ok, nil
			}
			continue
		}
		if errors.Is(rerr, unix.EAGAIN) {
			return ok, nil
		}
		return ok, rerr
	}
}

// Handle re-initialises Req, parses ReadBuf, builds the response, and fills
// the iovec pair for Write. Returns true whenever a response was built and
// is waiting for Write (header-only responses included).
//
// An incomplete request line, header block, or body (httpproto.ErrIncomplete)
// is not an error: it means the peer's bytes just haven't all arrived yet, so
// Handle leaves ReadBuf untouched and produces no response, returning false
// so the caller keeps waiting for more Readable events instead of answering
// or closing. Only a malformed request line (httpproto.ErrBadRequest) earns
// the 400 response.
func (c *Connection) Handle() bool {
	c.Req.Reset()

	consumed, err := c.parser.Parse(c.ReadBuf.Bytes(), &c.Req)
	if err == httpproto.ErrIncomplete {
		return false
	}

	code := httpproto.CodeUnset
	path := c.Req.Path
	keepAlive := false

	if err != nil {
		code = httpproto.StatusBadRequest
		path = "/400.html"
	} else {
		c.ReadBuf.UpdateReadPos(consumed)
		c.Req.ApplyPostAuth(c.verify)
		path = c.Req.Path
		keepAlive = c.Req.IsKeepAlive()
	}
	c.keepAlive = keepAlive

	c.WriteBuf.InitPtr()
	c.Resp.Reset(path, keepAlive, code)
	c.Resp.Build(c.WriteBuf)

	c.iov[0] = c.WriteBuf.Bytes()
	c.iov[1] = nil
	c.iovCount = 1
	if body := c.Resp.Body(); len(body) > 0 {
		c.iov[1] = body
		c.iovCount = 2
	}

	return c.iovCount > 0
}

// KeepAlive reports whether the just-handled request negotiated a reusable
// connection.
func (c *Connection) KeepAlive() bool { return c.keepAlive }

// Write drains the iovec pair via writev, looping on partial writes.
// Returns done=true once everything queued has been sent.
func (c *Connection) Write() (done bool, err error) {
	for {
		total := iovLen(c.iov[0]) + iovLen(c.iov[1])
		if total == 0 {
			return true, nil
		}

		n, werr := unix.Writev(c.Fd, activeIov(c.iov[:c.iovCount]))
		if n > 0 {
			c.advance(n)
		}
		if werr != nil {
			if errors.Is(werr, unix.EAGAIN) {
				return false, nil
			}
			return false, werr
		}
		if n <= 0 {
			return false, nil
		}

		remaining := iovLen(c.iov[0]) + iovLen(c.iov[1])
		if remaining == 0 {
			return true, nil
		}
		if !c.edgeTriggered && remaining <= writevStarvationThreshold {
			return false, nil
		}
	}
}

// advance consumes n bytes from the front of the iovec pair, spilling past
// iov[0] into iov[1] when the write covered the whole header.
func (c *Connection) advance(n int) {
	if n < len(c.iov[0]) {
		c.iov[0] = c.iov[0][n:]
		c.WriteBuf.UpdateReadPos(n)
		return
	}
	n -= len(c.iov[0])
	c.iov[0] = nil
	c.WriteBuf.InitPtr()
	if n > 0 && len(c.iov[1]) > 0 {
		c.iov[1] = c.iov[1][n:]
	}
}

func iovLen(b []byte) int { return len(b) }

func activeIov(iov [][]byte) [][]byte {
	out := iov[:0:0]
	for _, b := range iov {
		if len(b) > 0 {
			out = append(out, b)
		}
	}
	if len(out) == 0 {
		return [][]byte{{}}
	}
	return out
}

// Close is idempotent: it unmaps any mapped response body, closes the fd,
// and runs the onClose callback exactly once.
func (c *Connection) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.Resp.Unmap()
	unix.Close(c.Fd)
	if c.onClose != nil {
		c.onClose(c)
	}
}
