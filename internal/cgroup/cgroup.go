// Package cgroup implements the external "place PID in named cgroup(s),
// undo on exit" contract described for the launcher's cgroup attach
// component. It is deliberately small: no resource accounting, no limit
// setting, just membership.
//
// Spec grammar (an Open Question left unresolved by the distilled spec,
// decided here and recorded in DESIGN.md): a comma-separated list of
// "controller:group" pairs, e.g. "cpu:build,memory:build"; a bare group
// name with no colon is applied to every controller mounted on the host.
package cgroup

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

const cgroupRoot = "/sys/fs/cgroup"

// Version identifies which cgroup hierarchy layout the host uses.
type Version int

const (
	V1 Version = iota
	V2
)

// cgroup2Magic is the statfs f_type of cgroup v2's single unified
// hierarchy; any other f_type at cgroupRoot is treated as v1's
// per-controller layout.
const cgroup2Magic = 0x63677270

// Detect reports which cgroup hierarchy version the host is running,
// statfs'ing the root the way the teacher's sys.OS detection keys off
// CGroupV2 rather than parsing /proc/mounts.
func Detect() (Version, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(cgroupRoot, &st); err != nil {
		return V1, fmt.Errorf("statfs(%s): %w", cgroupRoot, err)
	}

	if int64(st.Type) == cgroup2Magic {
		return V2, nil
	}

	return V1, nil
}

// Group is one controller:name pairing resolved from a spec string.
type Group struct {
	Controller string // empty for cgroup v2's unified hierarchy
	Name       string
}

// Parse splits a --cgroup spec into its controller:group pairs. The
// character set of spec has already been validated by
// strutil.ValidateOptList upstream.
func Parse(spec string, v Version) ([]Group, error) {
	if spec == "" {
		return nil, nil
	}

	var groups []Group
	for _, tok := range strings.Split(spec, ",") {
		if tok == "" {
			continue
		}

		parts := strings.SplitN(tok, ":", 2)
		if len(parts) == 2 {
			groups = append(groups, Group{Controller: parts[0], Name: parts[1]})
			continue
		}

		if v == V2 {
			groups = append(groups, Group{Name: parts[0]})
			continue
		}

		controllers, err := mountedControllers()
		if err != nil {
			return nil, err
		}

		for _, c := range controllers {
			groups = append(groups, Group{Controller: c, Name: parts[0]})
		}
	}

	return groups, nil
}

func mountedControllers() ([]string, error) {
	entries, err := os.ReadDir(cgroupRoot)
	if err != nil {
		return nil, fmt.Errorf("readdir(%s): %w", cgroupRoot, err)
	}

	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}

	return out, nil
}

func (g Group) path(v Version) string {
	if v == V2 || g.Controller == "" {
		return filepath.Join(cgroupRoot, g.Name)
	}

	return filepath.Join(cgroupRoot, g.Controller, g.Name)
}

func (g Group) procsFile(v Version) string {
	if v == V2 {
		return filepath.Join(g.path(v), "cgroup.procs")
	}

	return filepath.Join(g.path(v), "tasks")
}

// Attach joins (creating if necessary) every group named in spec and
// writes pid into each group's tasks/cgroup.procs file. It returns the
// list of groups it created, so Detach can remove only those.
func Attach(spec string, pid int) ([]Group, Version, error) {
	v, err := Detect()
	if err != nil {
		return nil, v, err
	}

	groups, err := Parse(spec, v)
	if err != nil {
		return nil, v, err
	}

	var created []Group
	for _, g := range groups {
		existed := true
		if _, err := os.Stat(g.path(v)); os.IsNotExist(err) {
			existed = false
		}

		if err := os.MkdirAll(g.path(v), 0o755); err != nil {
			return created, v, fmt.Errorf("mkdir cgroup %s: %w", g.path(v), err)
		}

		if !existed {
			created = append(created, g)
		}

		if err := os.WriteFile(g.procsFile(v), []byte(strconv.Itoa(pid)), 0o644); err != nil {
			return created, v, fmt.Errorf("attach pid %d to cgroup %s: %w", pid, g.path(v), err)
		}
	}

	return created, v, nil
}

// Detach best-effort removes any cgroups Attach created, silently
// ignoring groups that are non-empty or already gone (a process that
// never exits cleanly, or another session's child, may still hold them).
func Detach(created []Group, v Version) {
	for _, g := range created {
		_ = os.Remove(g.path(v))
	}
}
