package launch

import (
	"syscall"
	"testing"
)

func TestDefaultNamespaceSet_allEnabled(t *testing.T) {
	n := DefaultNamespaceSet()

	if !n.Mount || !n.PID || !n.IPC || !n.UTS || !n.User || !n.Net {
		t.Errorf("DefaultNamespaceSet() = %+v, want all true", n)
	}
}

func TestCloneFlags(t *testing.T) {
	cases := []struct {
		name string
		set  NamespaceSet
		want uintptr
	}{
		{"all", DefaultNamespaceSet(), syscall.CLONE_NEWNS | syscall.CLONE_NEWPID | syscall.CLONE_NEWIPC | syscall.CLONE_NEWUTS | syscall.CLONE_NEWUSER | syscall.CLONE_NEWNET},
		{"none", NamespaceSet{}, 0},
		{"mount only", NamespaceSet{Mount: true}, syscall.CLONE_NEWNS},
		{"no user, no net", NamespaceSet{Mount: true, PID: true, IPC: true, UTS: true}, syscall.CLONE_NEWNS | syscall.CLONE_NEWPID | syscall.CLONE_NEWIPC | syscall.CLONE_NEWUTS},
	}

	for _, c := range cases {
		if got := c.set.CloneFlags(); got != uintptr(c.want) {
			t.Errorf("%s: CloneFlags() = %#x, want %#x", c.name, got, c.want)
		}
	}
}
