// Package device populates the minimal /dev tree inside a freshly chrooted
// root, porting pflask's dev.c: bind-mounted character device nodes,
// bookkeeping symlinks into /proc, a ptmx symlink, and the console bind.
package device

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// nodes are the host device nodes bind-mounted over an empty regular file
// created inside the new root, exactly as copy_nodes() did.
var nodes = []string{"tty", "null", "zero", "random", "urandom"}

// symlinks map a destination under <root>/dev to the /proc target it
// should point at, as make_symlinks() did.
var symlinks = map[string]string{
	"core":   "/proc/kcore",
	"fd":     "/proc/self/fd",
	"stdin":  "/proc/self/fd/0",
	"stdout": "/proc/self/fd/1",
	"stderr": "/proc/self/fd/2",
}

// Populate bind-mounts the standard character devices, lays down the
// bookkeeping symlinks, and symlinks ptmx, inside <root>/dev.
func Populate(root string) error {
	dev := filepath.Join(root, "dev")

	for _, name := range nodes {
		target := filepath.Join(dev, name)

		f, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err != nil && !os.IsExist(err) {
			return fmt.Errorf("create(%s): %w", target, err)
		}

		if f != nil {
			f.Close()
		}

		if err := unix.Mount("/dev/"+name, target, "", unix.MS_BIND, ""); err != nil {
			return fmt.Errorf("bind mount /dev/%s: %w", name, err)
		}
	}

	for dst, src := range symlinks {
		target := filepath.Join(dev, dst)
		if err := os.Symlink(src, target); err != nil && !os.IsExist(err) {
			return fmt.Errorf("symlink(%s -> %s): %w", target, src, err)
		}
	}

	ptmx := filepath.Join(dev, "ptmx")
	if err := os.Symlink("/dev/pts/ptmx", ptmx); err != nil && !os.IsExist(err) {
		return fmt.Errorf("symlink(%s): %w", ptmx, err)
	}

	return nil
}

// Console chmods and chowns the host slave PTY path to root-only, then
// bind-mounts it onto <root>/dev/console, mirroring make_console().
func Console(root, slavePath string) error {
	if err := os.Chmod(slavePath, 0o600); err != nil {
		return fmt.Errorf("chmod(%s): %w", slavePath, err)
	}

	if err := os.Chown(slavePath, 0, 0); err != nil {
		return fmt.Errorf("chown(%s): %w", slavePath, err)
	}

	target := filepath.Join(root, "dev/console")

	f, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil && !os.IsExist(err) {
		return fmt.Errorf("create(%s): %w", target, err)
	}

	if f != nil {
		f.Close()
	}

	if err := unix.Mount(slavePath, target, "", unix.MS_BIND, ""); err != nil {
		return fmt.Errorf("bind mount console: %w", err)
	}

	return nil
}
