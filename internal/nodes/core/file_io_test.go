package core

import (
	"os"
	"path/filepath"
	"testing"

	"streamkit/internal/packet"
)

func TestFileReaderStreamsContents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "input.bin")
	want := []byte("the quick brown fox jumps over the lazy dog")
	if err := os.WriteFile(path, want, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	in := make(chan packet.Packet)
	out := make(chan packet.Packet, 8)
	nctx, ctx, cancel := newRunContext(in, out)
	defer cancel()

	n, err := NewFileReader([]byte(`{"path": "` + path + `", "chunk_bytes": 8}`))
	if err != nil {
		t.Fatalf("NewFileReader: %v", err)
	}

	if err := n.Run(ctx, nctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	close(out)

	var got []byte
	for pkt := range out {
		data, _, _, ok := pkt.Binary()
		if !ok {
			t.Fatalf("expected binary packet")
		}
		got = append(got, data...)
	}
	if string(got) != string(want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestFileReaderRequiresPath(t *testing.T) {
	if _, err := NewFileReader(nil); err == nil {
		t.Fatalf("expected error when path is missing")
	}
}

func TestFileReaderMissingFileFails(t *testing.T) {
	dir := t.TempDir()
	n, err := NewFileReader([]byte(`{"path": "` + filepath.Join(dir, "nope.bin") + `"}`))
	if err != nil {
		t.Fatalf("NewFileReader: %v", err)
	}

	in := make(chan packet.Packet)
	out := make(chan packet.Packet, 1)
	nctx, ctx, cancel := newRunContext(in, out)
	defer cancel()

	if err := n.Run(ctx, nctx); err == nil {
		t.Fatalf("expected error opening missing file")
	}
}

func TestFileWriterWritesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "output.bin")

	in := make(chan packet.Packet, 2)
	out := make(chan packet.Packet, 1)
	nctx, ctx, cancel := newRunContext(in, out)
	defer cancel()

	n, err := NewFileWriter([]byte(`{"path": "` + path + `"}`))
	if err != nil {
		t.Fatalf("NewFileWriter: %v", err)
	}

	in <- packet.NewBinaryPacket([]byte("hello "), nil, nil)
	in <- packet.NewBinaryPacket([]byte("world"), nil, nil)
	close(in)

	if err := n.Run(ctx, nctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "hello world" {
		t.Fatalf("got %q, want %q", got, "hello world")
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if e.Name() != "output.bin" {
			t.Fatalf("leftover temp file in output dir: %s", e.Name())
		}
	}
}

func TestFileWriterRequiresPath(t *testing.T) {
	if _, err := NewFileWriter(nil); err == nil {
		t.Fatalf("expected error when path is missing")
	}
}
