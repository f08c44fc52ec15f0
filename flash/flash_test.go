package flash

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestRAMReadWriteErase(t *testing.T) {
	r := NewRAM(16)

	want := make([]byte, 16)
	for i := range want {
		want[i] = 0xFF
	}
	got := make([]byte, 16)
	if _, err := r.Read(0, got); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("fresh RAM not all 0xFF: %x", got)
	}

	if _, err := r.Write(4, []byte("abcd")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := r.Read(4, got[:4]); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got[:4], []byte("abcd")) {
		t.Fatalf("got %q, want %q", got[:4], "abcd")
	}

	if err := r.Erase(4, 4); err != nil {
		t.Fatalf("Erase: %v", err)
	}
	if _, err := r.Read(4, got[:4]); err != nil {
		t.Fatalf("Read: %v", err)
	}
	for _, b := range got[:4] {
		if b != 0xFF {
			t.Fatalf("erase did not reset to 0xFF: %x", got[:4])
		}
	}
}

func TestRAMOutOfRange(t *testing.T) {
	r := NewRAM(8)
	if _, err := r.Read(4, make([]byte, 8)); err == nil {
		t.Fatal("expected out-of-range read to fail")
	}
	if _, err := r.Write(-1, make([]byte, 1)); err == nil {
		t.Fatal("expected negative-offset write to fail")
	}
}

func TestFileGrowsAndErases(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flash.img")

	dev, err := OpenFile(path, 32)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer dev.Close() // nolint:errcheck

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() != 32 {
		t.Fatalf("expected size 32, got %d", info.Size())
	}

	buf := make([]byte, 32)
	if _, err := dev.Read(0, buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	for _, b := range buf {
		if b != 0xFF {
			t.Fatalf("new file not pre-erased: %x", buf)
		}
	}
}

func TestFilePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flash.img")

	dev, err := OpenFile(path, 16)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if _, err := dev.Write(0, []byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := dev.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	dev2, err := OpenFile(path, 16)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer dev2.Close() // nolint:errcheck

	buf := make([]byte, 5)
	if _, err := dev2.Read(0, buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf) != "hello" {
		t.Fatalf("got %q, want %q", buf, "hello")
	}
}

func TestFileGrowToPreservesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flash.img")

	dev, err := OpenFile(path, 8)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if _, err := dev.Write(0, []byte("12345678")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := dev.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	dev2, err := OpenFile(path, 16)
	if err != nil {
		t.Fatalf("reopen with larger size: %v", err)
	}
	defer dev2.Close() // nolint:errcheck

	buf := make([]byte, 8)
	if _, err := dev2.Read(0, buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf) != "12345678" {
		t.Fatalf("existing prefix clobbered: %q", buf)
	}

	tail := make([]byte, 8)
	if _, err := dev2.Read(8, tail); err != nil {
		t.Fatalf("Read tail: %v", err)
	}
	for _, b := range tail {
		if b != 0xFF {
			t.Fatalf("grown tail not erased: %x", tail)
		}
	}
}
