package httpproto

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/kfcemployee/tinyreactor/internal/buffer"
)

// suffixType maps file extensions to Content-Type values, carried verbatim
// from the original's kSuffixType table.
var suffixType = map[string]string{
	".html": "text/html",
	".xml":  "text/xml",
	".xhtml": "application/xhtml+xml",
	".txt":  "text/plain",
	".rtf":  "application/rtf",
	".pdf":  "application/pdf",
	".word": "application/msword",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".au":   "audio/basic",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpeg",
	".avi":  "video/x-msvideo",
	".gz":   "application/x-gzip",
	".tar":  "application/x-tar",
	".css":  "text/css",
	".js":   "application/x-javascript",
}

var codeStatus = map[int]string{
	StatusOK:         "OK",
	StatusBadRequest: "Bad Request",
	StatusForbidden:  "Forbidden",
	StatusNotFound:   "Not Found",
}

// codePath redirects a status code to its static error page, the
// original's kCodePath table.
var codePath = map[int]string{
	StatusBadRequest: "/400.html",
	StatusForbidden:  "/403.html",
	StatusNotFound:   "/404.html",
}

const (
	// CodeUnset is the code a fresh Response carries before Build decides
	// it, mirroring the original's code_ == -1 sentinel.
	CodeUnset = -1

	keepAliveAdvert = "keep-alive: max=6, timeout=120\r\n"
)

// Response resolves a request path against a document root, decides the
// status code, and produces the header bytes plus (when the body is a
// static file) an mmap'd byte slice the connection can hand straight to
// writev alongside the header buffer.
type Response struct {
	Code      int
	Path      string
	KeepAlive bool

	srcDir  string
	mapped  []byte
	fileLen int64
}

// NewResponse binds a Response to the document root it serves files from.
func NewResponse(srcDir string) *Response {
	return &Response{srcDir: srcDir, Code: CodeUnset}
}

// Reset prepares the Response for the next request on the same connection,
// unmapping whatever file the previous one held open.
func (r *Response) Reset(path string, keepAlive bool, code int) {
	r.Unmap()
	r.Path = path
	r.KeepAlive = keepAlive
	r.Code = code
}

// Build resolves the status code against the filesystem, then appends the
// status line, headers, and (for an inline error body) the body itself to
// hdr. If the body is served from a regular file, Build mmaps it and makes
// it available from Body/FileLen instead of copying it into hdr.
func (r *Response) Build(hdr *buffer.Buffer) {
	full := filepath.Join(r.srcDir, r.Path)
	st, err := os.Stat(full)
	switch {
	case err != nil || st.IsDir():
		r.Code = StatusNotFound
	case st.Mode()&0o004 == 0:
		r.Code = StatusForbidden
	case r.Code == CodeUnset:
		r.Code = StatusOK
	}

	r.applyErrorPage()
	r.writeStatusLine(hdr)
	r.writeHeaders(hdr)
	r.writeBody(hdr)
}

// Body returns the mmap'd file region for the current response, or nil when
// the body was written inline into the header buffer instead.
func (r *Response) Body() []byte { return r.mapped }

// FileLen is the mmap'd body's length; 0 when Body is nil.
func (r *Response) FileLen() int64 { return r.fileLen }

// Unmap releases the current mmap, if any. Safe to call repeatedly.
func (r *Response) Unmap() {
	if r.mapped == nil {
		return
	}
	unix.Munmap(r.mapped)
	r.mapped = nil
	r.fileLen = 0
}

func (r *Response) applyErrorPage() {
	if p, ok := codePath[r.Code]; ok {
		r.Path = p
	}
}

func (r *Response) writeStatusLine(hdr *buffer.Buffer) {
	status, ok := codeStatus[r.Code]
	if !ok {
		r.Code = StatusBadRequest
		status = codeStatus[StatusBadRequest]
	}
	hdr.Append([]byte("HTTP/1.1 " + strconv.Itoa(r.Code) + " " + status + "\r\n"))
}

func (r *Response) writeHeaders(hdr *buffer.Buffer) {
	hdr.Append([]byte("Connection: "))
	if r.KeepAlive {
		hdr.Append([]byte("keep-alive\r\n"))
		hdr.Append([]byte(keepAliveAdvert))
	} else {
		hdr.Append([]byte("close\r\n"))
	}
	hdr.Append([]byte("Content-type: " + r.fileType() + "\r\n"))
}

// writeBody opens and mmaps the resolved path. A missing file, a denied
// open, or a failed mmap all fall back to the same inline "File Not Found!"
// body the original uses, rather than surfacing the lower-level error to
// the client.
func (r *Response) writeBody(hdr *buffer.Buffer) {
	full := filepath.Join(r.srcDir, r.Path)

	fd, err := unix.Open(full, unix.O_RDONLY, 0)
	if err != nil {
		r.inlineError(hdr, "File Not Found!")
		return
	}
	defer unix.Close(fd)

	st, err := os.Stat(full)
	if err != nil {
		r.inlineError(hdr, "File Not Found!")
		return
	}

	size := st.Size()
	if size == 0 {
		hdr.Append([]byte("Content-length: 0\r\n\r\n"))
		return
	}

	data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		r.inlineError(hdr, "File Not Found!")
		return
	}
	r.mapped = data
	r.fileLen = size

	hdr.Append([]byte("Content-length: " + strconv.FormatInt(size, 10) + "\r\n\r\n"))
}

func (r *Response) fileType() string {
	idx := strings.LastIndexByte(r.Path, '.')
	if idx == -1 {
		return "text/plain"
	}
	if t, ok := suffixType[r.Path[idx:]]; ok {
		return t
	}
	return "text/plain"
}

// inlineError writes a small HTML error body directly into hdr, for cases
// where there is no file to mmap.
func (r *Response) inlineError(hdr *buffer.Buffer, message string) {
	status := codeStatus[r.Code]
	if status == "" {
		status = "Bad Request"
	}
	body := fmt.Sprintf(
		`<html><title>Error</title><body bgcolor="ffffff">%d : %s<p>%s</p><hr><em>tinyreactor</em></body></html>`,
		r.Code, status, message,
	)
	hdr.Append([]byte("Content-length: " + strconv.Itoa(len(body)) + "\r\n\r\n"))
	hdr.Append([]byte(body))
}
