// Package mount implements the declarative mount specification language
// described in the launcher's design: a comma-separated grammar is parsed
// and resolved against host paths before the namespace unshare, producing
// an ordered MountPlan that is replayed inside the new mount namespace.
//
// This is a direct port of pflask's mount.c, with the singly linked,
// prepend-then-reverse mount_list replaced by an explicit, append-ordered
// []Entry threaded through the parser and the replay step instead of a
// package-level global.
package mount

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Entry is one mount to be performed inside the new namespace. A nil
// Source means the kernel default for the filesystem type (e.g. "tmpfs",
// "proc"); a nil Type means a bind mount.
type Entry struct {
	Source      string
	Destination string
	Type        string
	Flags       uintptr
	Data        string
}

// Plan is the ordered sequence of mounts to replay. Order is significant:
// entries are applied in the order they were appended.
type Plan struct {
	entries []Entry
}

// Append adds an entry to the end of the plan.
func (p *Plan) Append(e Entry) {
	p.entries = append(p.entries, e)
}

// Entries returns the plan's entries in replay order.
func (p *Plan) Entries() []Entry {
	return p.entries
}

// Prologue returns the fixed set of mounts that are prepended to the plan
// whenever a root directory is configured: proc, a recursive bind of
// /sys, a recursive bind of /dev, and tmpfs for /dev/shm and /run.
func Prologue(root string) []Entry {
	return []Entry{
		{Type: "proc", Destination: filepath.Join(root, "proc"), Flags: unix.MS_NOSUID | unix.MS_NOEXEC | unix.MS_NODEV},
		{Source: "/sys", Destination: filepath.Join(root, "sys"), Flags: unix.MS_BIND | unix.MS_REC},
		{Source: "/dev", Destination: filepath.Join(root, "dev"), Flags: unix.MS_BIND | unix.MS_REC},
		{Source: "tmpfs", Type: "tmpfs", Destination: filepath.Join(root, "dev/shm"), Data: "mode=1777", Flags: unix.MS_NOSUID | unix.MS_NODEV | unix.MS_STRICTATIME},
		{Source: "tmpfs", Type: "tmpfs", Destination: filepath.Join(root, "run"), Data: "mode=755", Flags: unix.MS_NOSUID | unix.MS_NODEV | unix.MS_STRICTATIME},
	}
}

// overlayAvailable reports whether the running kernel has the "overlay"
// filesystem compiled in, resolving the Open Question left by pflask's
// compile-time HAVE_AUFS/LINUX_VERSION_CODE branching: here the choice
// between native overlay and the aufs fallback is made once, at spec-parse
// time, by probing /proc/filesystems instead of at build time.
func overlayAvailable() bool {
	data, err := os.ReadFile("/proc/filesystems")
	if err != nil {
		return false
	}

	return containsLine(string(data), "overlay")
}

func containsLine(haystack, needle string) bool {
	for _, line := range splitLines(haystack) {
		if line == needle || (len(line) > len(needle) && line[len(line)-len(needle):] == needle) {
			return true
		}
	}

	return false
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}

	if start < len(s) {
		out = append(out, s[start:])
	}

	return out
}

// ParseSpec parses one --mount grammar token (already comma-split into
// fields) and appends the resulting entry/entries to the plan. SRC, DST
// (and OVERLAY/WORK for the overlay form) are resolved to canonical host
// paths before the namespace unshare, per the resolution invariant: an
// unresolvable path is a fatal configuration error.
func ParseSpec(p *Plan, fields []string) error {
	if len(fields) == 0 {
		return fmt.Errorf("empty mount spec")
	}

	switch fields[0] {
	case "bind", "bind-ro":
		if len(fields) < 3 {
			return fmt.Errorf("invalid mount spec %q: bind requires SRC,DST", fields)
		}

		src, err := resolve(fields[1])
		if err != nil {
			return err
		}

		dst, err := resolve(fields[2])
		if err != nil {
			return err
		}

		p.Append(Entry{Source: src, Destination: dst, Flags: unix.MS_BIND})

		if fields[0] == "bind-ro" {
			p.Append(Entry{Source: src, Destination: dst, Flags: unix.MS_REMOUNT | unix.MS_BIND | unix.MS_RDONLY})
		}

		return nil

	case "aufs":
		if len(fields) < 3 {
			return fmt.Errorf("invalid mount spec %q: aufs requires OVERLAY,DST", fields)
		}

		overlay, err := resolve(fields[1])
		if err != nil {
			return err
		}

		dst, err := resolve(fields[2])
		if err != nil {
			return err
		}

		p.Append(Entry{Destination: dst, Type: "aufs", Data: fmt.Sprintf("br:%s=rw:%s=ro", overlay, dst)})

		return nil

	case "overlay":
		if len(fields) < 4 {
			return fmt.Errorf("invalid mount spec %q: overlay requires OVERLAY,DST,WORK", fields)
		}

		overlay, err := resolve(fields[1])
		if err != nil {
			return err
		}

		dst, err := resolve(fields[2])
		if err != nil {
			return err
		}

		work, err := resolve(fields[3])
		if err != nil {
			return err
		}

		if overlayAvailable() {
			p.Append(Entry{Destination: dst, Type: "overlay", Data: fmt.Sprintf("upperdir=%s,lowerdir=%s,workdir=%s", overlay, dst, work)})
		} else {
			p.Append(Entry{Destination: dst, Type: "aufs", Data: fmt.Sprintf("br:%s=rw:%s=ro", overlay, dst)})
		}

		return nil

	case "tmp":
		if len(fields) < 2 {
			return fmt.Errorf("invalid mount spec %q: tmp requires DST", fields)
		}

		dst, err := resolve(fields[1])
		if err != nil {
			return err
		}

		p.Append(Entry{Source: "tmpfs", Destination: dst, Type: "tmpfs"})

		return nil

	default:
		return fmt.Errorf("invalid mount type %q", fields[0])
	}
}

func resolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", path, err)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", path, err)
	}

	return resolved, nil
}

// Replay performs mount(NULL, "/", MS_SLAVE|MS_REC) to stop mount event
// propagation to the host, then iterates the plan in insertion order,
// creating each destination directory (ignoring EEXIST on an existing
// directory) and mounting it. Any mount failure is fatal and aborts replay
// immediately; prior mounts are not rolled back — they vanish with the
// mount namespace when the child process exits.
func Replay(p *Plan) error {
	if err := unix.Mount("", "/", "", unix.MS_SLAVE|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("mount(MS_SLAVE): %w", err)
	}

	for _, e := range p.entries {
		if err := os.MkdirAll(e.Destination, 0o755); err != nil {
			if !os.IsExist(err) {
				return fmt.Errorf("mkdir(%s): %w", e.Destination, err)
			}

			fi, statErr := os.Stat(e.Destination)
			if statErr != nil || !fi.IsDir() {
				return fmt.Errorf("mkdir(%s): exists and is not a directory", e.Destination)
			}
		}

		if err := unix.Mount(e.Source, e.Destination, e.Type, e.Flags, e.Data); err != nil {
			return fmt.Errorf("mount(%s,%s,%s,%d): %w", e.Source, e.Destination, e.Type, e.Flags, err)
		}
	}

	return nil
}
