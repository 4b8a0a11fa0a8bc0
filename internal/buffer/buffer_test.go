package buffer

import "testing"

func TestRoundTrip(t *testing.T) {
	cases := [][]byte{
		[]byte(""),
		[]byte("hello"),
		make([]byte, 4096),
	}

	for _, s := range cases {
		b := New(16)
		b.Append(s)

		got := b.RetrieveAllAsString()
		if got != string(s) {
			t.Fatalf("round trip mismatch: got %d bytes, want %d", len(got), len(s))
		}
		if b.Readable() != 0 {
			t.Fatalf("buffer not empty after retrieve: readable=%d", b.Readable())
		}
	}
}

func TestCompactionAvoidsGrowth(t *testing.T) {
	b := New(32)
	b.Append([]byte("01234567890123456789012345678901"[:32]))

	b.UpdateReadPos(20)

	cap1 := len(b.buf)
	b.EnsureWritable(32 - b.Readable())
	if len(b.buf) != cap1 {
		t.Fatalf("expected compaction not growth: before=%d after=%d", cap1, len(b.buf))
	}
	if b.readPos != 0 {
		t.Fatalf("expected compact to reset readPos, got %d", b.readPos)
	}
}

func TestEnsureWritableGrows(t *testing.T) {
	b := New(4)
	b.Append([]byte("ab"))

	b.EnsureWritable(100)
	if b.Writable() < 100 {
		t.Fatalf("expected at least 100 writable bytes, got %d", b.Writable())
	}
	if b.Readable() != 2 {
		t.Fatalf("growth must preserve readable bytes, got %d", b.Readable())
	}
}

func TestUpdateReadPosFullyConsumed(t *testing.T) {
	b := New(8)
	b.Append([]byte("abcd"))
	b.UpdateReadPos(4)

	if b.Readable() != 0 {
		t.Fatalf("expected empty buffer, got readable=%d", b.Readable())
	}
	if b.readPos != 0 || b.writePos != 0 {
		t.Fatalf("expected cursors reset to 0, got read=%d write=%d", b.readPos, b.writePos)
	}
}
