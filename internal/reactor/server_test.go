package reactor

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestServerServesStaticFileEndToEnd(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("hello reactor"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s, err := New(Config{
		Port:    0,
		SrcDir:  dir,
		Trigger: BothLevelTriggered,
		Workers: 2,
	}, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	go s.Run()
	defer func() {
		s.Stop()
		s.Wait()
	}()

	port, err := s.Port()
	if err != nil {
		t.Fatalf("Port: %v", err)
	}

	c, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), 2*time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	if _, err := c.Write([]byte("GET / HTTP/1.1\r\nConnection: close\r\n\r\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	got, err := io.ReadAll(c)
	if err != nil && err != io.EOF {
		t.Fatalf("ReadAll: %v", err)
	}

	resp := string(got)
	if !strings.Contains(resp, "200 OK") {
		t.Fatalf("response missing 200 OK: %q", resp)
	}
	if !strings.Contains(resp, "hello reactor") {
		t.Fatalf("response missing file body: %q", resp)
	}
}

func TestServerReturns404ForMissingFile(t *testing.T) {
	dir := t.TempDir()

	s, err := New(Config{
		Port:    0,
		SrcDir:  dir,
		Trigger: BothLevelTriggered,
		Workers: 2,
	}, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	go s.Run()
	defer func() {
		s.Stop()
		s.Wait()
	}()

	port, err := s.Port()
	if err != nil {
		t.Fatalf("Port: %v", err)
	}

	c, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), 2*time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	if _, err := c.Write([]byte("GET /nope.html HTTP/1.1\r\nConnection: close\r\n\r\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	got, err := io.ReadAll(c)
	if err != nil && err != io.EOF {
		t.Fatalf("ReadAll: %v", err)
	}

	if !strings.Contains(string(got), "404 Not Found") {
		t.Fatalf("response missing 404: %q", got)
	}
}
