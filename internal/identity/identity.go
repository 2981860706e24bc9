// Package identity writes the user-namespace uid/gid maps described in the
// launcher's identity mapper component, porting pflask's user.c. Exactly
// one of the two mapping kinds is active per session: a single outside/inside
// uid+gid pair, self-written by the child to its own /proc/self/{uid,gid}_map,
// or a contiguous range applied from the parent through the setuid
// newuidmap/newgidmap helpers.
//
// The wraparound check and srcid/destid/range parsing style are grounded
// in the teacher pack's fuidshift/idmap.go idmapEntry.parse, adapted from
// an offline filesystem-shifting tool to a live /proc map writer.
package identity

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Kind selects which of the two mapping forms is active.
type Kind int

const (
	Single Kind = iota
	Range
)

// Map is the parsed --user or --map argument.
type Map struct {
	Kind Kind

	// Single mapping: one outside (uid,gid) pair mapped to one inside pair.
	InsideUID, OutsideUID uint32
	InsideGID, OutsideGID uint32

	// Range mapping: outside-first-uid/gid plus a contiguous length.
	OutsideFirstUID, UIDLen uint32
	OutsideFirstGID, GIDLen uint32
}

// ParseSingle parses "uid,gid": the in-container identity to run as. The
// outside identity is always the caller's own, per pflask's --user
// handler (map_user_to_user(getuid(), getgid(), pw_uid, pw_gid)).
func ParseSingle(s string) (Map, error) {
	var insideUID, insideGID uint32
	n, err := fmt.Sscanf(s, "%d,%d", &insideUID, &insideGID)
	if err != nil || n != 2 || strings.Count(s, ",") != 1 {
		return Map{}, fmt.Errorf("invalid value %q for --user", s)
	}

	return Map{
		Kind:       Single,
		InsideUID:  insideUID,
		InsideGID:  insideGID,
		OutsideUID: uint32(os.Getuid()),
		OutsideGID: uint32(os.Getgid()),
	}, nil
}

// ParseRange parses "firstuid,ulen,firstgid,glen" for the --map helper
// path, rejecting zero-length or wrapping ranges per the data model
// invariant.
func ParseRange(s string) (Map, error) {
	var firstUID, uidLen, firstGID, gidLen uint32
	n, err := fmt.Sscanf(s, "%d,%d,%d,%d", &firstUID, &uidLen, &firstGID, &gidLen)
	if err != nil || n != 4 {
		return Map{}, fmt.Errorf("invalid value %q for --map", s)
	}

	if uidLen == 0 || gidLen == 0 {
		return Map{}, fmt.Errorf("invalid value %q for --map: zero-length range", s)
	}

	if firstUID+uidLen < firstUID || firstGID+gidLen < firstGID {
		return Map{}, fmt.Errorf("invalid value %q for --map: range wraparound", s)
	}

	return Map{
		Kind:            Range,
		OutsideFirstUID: firstUID,
		UIDLen:          uidLen,
		OutsideFirstGID: firstGID,
		GIDLen:          gidLen,
	}, nil
}

// WriteSelf writes a single-user map from inside the child itself, via
// /proc/self/{setgroups,uid_map,gid_map}. This is the one identity-map
// path that needs no privilege in the parent namespace at all: the
// kernel lets the very process that owns a freshly created, still-unmapped
// user namespace write a single length-1 map to itself. Call this from
// the child, after crossing the sync barrier and before dropping to the
// in-container uid/gid.
func WriteSelf(m Map) error {
	if m.Kind != Single {
		return fmt.Errorf("WriteSelf called with a non-single identity map")
	}

	if err := denySetgroups("/proc/self/setgroups"); err != nil {
		return err
	}

	if err := os.WriteFile("/proc/self/uid_map", []byte(fmt.Sprintf("%d %d 1\n", m.InsideUID, m.OutsideUID)), 0o644); err != nil {
		return fmt.Errorf("write uid_map: %w", err)
	}

	if err := os.WriteFile("/proc/self/gid_map", []byte(fmt.Sprintf("%d %d 1\n", m.InsideGID, m.OutsideGID)), 0o644); err != nil {
		return fmt.Errorf("write gid_map: %w", err)
	}

	return nil
}

func denySetgroups(path string) error {
	err := os.WriteFile(path, []byte("deny\n"), 0o644)
	if os.IsNotExist(err) {
		// Older kernels without the setgroups knob; nothing to deny.
		return nil
	}

	return err
}

// WriteRangeViaHelpers maps a range into the child identified by pid by
// invoking the setuid newuidmap/newgidmap helpers from the parent, the
// way pflask's map_users_to_users/newugidmap did by forking+execing
// "/usr/bin/newuidmap <pid> 0 <first> <len>".
func WriteRangeViaHelpers(pid int, m Map) error {
	if m.Kind != Range {
		return fmt.Errorf("WriteRangeViaHelpers called with a non-range identity map")
	}

	if err := runHelper("newuidmap", pid, m.OutsideFirstUID, m.UIDLen); err != nil {
		return err
	}

	return runHelper("newgidmap", pid, m.OutsideFirstGID, m.GIDLen)
}

func runHelper(name string, pid int, first, length uint32) error {
	cmd := exec.Command(
		"/usr/bin/"+name,
		fmt.Sprint(pid), "0", fmt.Sprint(first), fmt.Sprint(length),
	)
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %d 0 %d %d: %w", name, pid, first, length, err)
	}

	return nil
}
