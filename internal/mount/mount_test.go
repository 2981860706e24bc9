package mount

import (
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"
)

func TestParseSpec_bind(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")

	for _, p := range []string{src, dst} {
		if err := os.MkdirAll(p, 0o755); err != nil {
			t.Fatal(err)
		}
	}

	p := &Plan{}
	if err := ParseSpec(p, []string{"bind", src, dst}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries := p.Entries()
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}

	if entries[0].Source != src || entries[0].Destination != dst {
		t.Errorf("entry = %+v", entries[0])
	}

	if entries[0].Flags != unix.MS_BIND {
		t.Errorf("Flags = %d, want MS_BIND", entries[0].Flags)
	}
}

func TestParseSpec_bindRO_appendsRemount(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")

	for _, p := range []string{src, dst} {
		if err := os.MkdirAll(p, 0o755); err != nil {
			t.Fatal(err)
		}
	}

	p := &Plan{}
	if err := ParseSpec(p, []string{"bind-ro", src, dst}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries := p.Entries()
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2 (bind + remount)", len(entries))
	}

	want := uintptr(unix.MS_REMOUNT | unix.MS_BIND | unix.MS_RDONLY)
	if entries[1].Flags != want {
		t.Errorf("remount entry Flags = %d, want %d", entries[1].Flags, want)
	}
}

func TestParseSpec_tmp(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "scratch")
	if err := os.MkdirAll(dst, 0o755); err != nil {
		t.Fatal(err)
	}

	p := &Plan{}
	if err := ParseSpec(p, []string{"tmp", dst}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries := p.Entries()
	if len(entries) != 1 || entries[0].Type != "tmpfs" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestParseSpec_unresolvablePathIsFatal(t *testing.T) {
	p := &Plan{}
	err := ParseSpec(p, []string{"bind", "/no/such/path/at/all", "/also/missing"})
	if err == nil {
		t.Error("expected error resolving a nonexistent host path")
	}
}

func TestParseSpec_unknownType(t *testing.T) {
	p := &Plan{}
	if err := ParseSpec(p, []string{"bogus", "a", "b"}); err == nil {
		t.Error("expected error for unknown mount type")
	}
}

func TestPrologue_order(t *testing.T) {
	entries := Prologue("/rootfs")

	want := []string{
		filepath.Join("/rootfs", "proc"),
		filepath.Join("/rootfs", "sys"),
		filepath.Join("/rootfs", "dev"),
		filepath.Join("/rootfs", "dev/shm"),
		filepath.Join("/rootfs", "run"),
	}

	if len(entries) != len(want) {
		t.Fatalf("len(entries) = %d, want %d", len(entries), len(want))
	}

	for i, e := range entries {
		if e.Destination != want[i] {
			t.Errorf("entries[%d].Destination = %q, want %q", i, e.Destination, want[i])
		}
	}
}

func TestPlan_appendOrderPreserved(t *testing.T) {
	p := &Plan{}
	for _, e := range Prologue("/r") {
		p.Append(e)
	}

	dir := t.TempDir()
	dst := filepath.Join(dir, "extra")
	if err := os.MkdirAll(dst, 0o755); err != nil {
		t.Fatal(err)
	}

	if err := ParseSpec(p, []string{"tmp", dst}); err != nil {
		t.Fatal(err)
	}

	entries := p.Entries()
	if entries[len(entries)-1].Destination != dst {
		t.Errorf("user-supplied entry was not appended last: %+v", entries)
	}
}
