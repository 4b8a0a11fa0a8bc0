package httpproto

import (
	"bytes"
	"errors"
	"strconv"
)

var (
	// ErrIncomplete means the buffer doesn't yet hold a full request;
	// the caller should wait for more bytes and retry with the same data
	// plus whatever arrives next.
	ErrIncomplete = errors.New("httpproto: incomplete request")
	// ErrBadRequest means the request line failed to match
	// "METHOD PATH HTTP/VERSION"; the connection should answer 400.
	ErrBadRequest = errors.New("httpproto: malformed request line")
)

// Parser is stateless; all progress lives in the Request passed to Parse.
type Parser struct{}

// Parse attempts to consume a full request out of data, starting over from
// the request line every call (data always begins at the request's start —
// the connection only advances its read cursor once Parse returns nil).
// Returns the number of bytes consumed and nil once Request.State reaches
// StateDone, ErrIncomplete if data doesn't yet hold enough, or
// ErrBadRequest for a malformed request line.
func (p *Parser) Parse(data []byte, req *Request) (int, error) {
	line, lineEnd, ok := nextLine(data, 0)
	if !ok {
		return 0, ErrIncomplete
	}

	method, path, version, ok := parseRequestLine(line)
	if !ok {
		return 0, ErrBadRequest
	}
	req.Method = method
	req.Path = path
	req.Version = version
	req.applyPathRemap()
	req.State = StateHeaders

	offset := lineEnd
	req.Headers = make(map[string]string, 8)

	for {
		line, lineEnd, ok := nextLine(data, offset)
		if !ok {
			return 0, ErrIncomplete
		}
		if len(line) == 0 {
			offset = lineEnd
			break
		}

		if key, val, ok := parseHeaderLine(line); ok {
			req.Headers[key] = val
		}
		offset = lineEnd
	}

	contentLength := parseContentLength(req.Headers)
	if contentLength <= 0 {
		req.State = StateDone
		return offset, nil
	}

	req.State = StateBody
	if len(data)-offset < contentLength {
		return 0, ErrIncomplete
	}
	req.Body = data[offset : offset+contentLength]
	offset += contentLength
	req.State = StateDone

	return offset, nil
}

// nextLine finds the next CRLF-terminated line starting at start, returning
// the line (without the CRLF) and the offset just past it.
func nextLine(data []byte, start int) (line []byte, end int, ok bool) {
	idx := bytes.IndexByte(data[start:], '\n')
	if idx == -1 {
		return nil, 0, false
	}
	lf := start + idx
	if lf == start || data[lf-1] != '\r' {
		// tolerate a bare \n, matching the original's line discipline
		// only loosely — treat the char before \n as part of the line
		// if it isn't \r.
		return data[start:lf], lf + 1, true
	}
	return data[start : lf-1], lf + 1, true
}

// parseRequestLine matches "METHOD PATH HTTP/VERSION" by hand (no regexp,
// mirroring the zero-alloc byte scanning style the parser elsewhere uses).
func parseRequestLine(line []byte) (method, path, version string, ok bool) {
	sp1 := bytes.IndexByte(line, ' ')
	if sp1 <= 0 {
		return "", "", "", false
	}
	rest := line[sp1+1:]
	sp2 := bytes.IndexByte(rest, ' ')
	if sp2 <= 0 {
		return "", "", "", false
	}

	const prefix = "HTTP/"
	proto := rest[sp2+1:]
	if len(proto) <= len(prefix) || string(proto[:len(prefix)]) != prefix {
		return "", "", "", false
	}

	return string(line[:sp1]), string(rest[:sp2]), string(proto), true
}

// parseHeaderLine matches "Key: Value" (at most one optional space after
// the colon, per the original's "^([^:]+):\s?(.*)$").
func parseHeaderLine(line []byte) (key, val string, ok bool) {
	colon := bytes.IndexByte(line, ':')
	if colon <= 0 {
		return "", "", false
	}
	k := line[:colon]
	v := line[colon+1:]
	if len(v) > 0 && v[0] == ' ' {
		v = v[1:]
	}
	return string(k), string(v), true
}

func parseContentLength(headers map[string]string) int {
	for k, v := range headers {
		if !bytesEqualFold(k, "Content-Length") {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}

func bytesEqualFold(a, b string) bool {
	return bytes.EqualFold([]byte(a), []byte(b))
}
