package launch

import "syscall"

// NamespaceSet is the bitset over {mount, pid, ipc, uts, user, net}
// controlling which namespaces clone creates for the session. All six are
// set by default; the CLI clears bits via --no-* flags.
type NamespaceSet struct {
	Mount bool
	PID   bool
	IPC   bool
	UTS   bool
	User  bool
	Net   bool
}

// DefaultNamespaceSet returns the all-six-enabled default.
func DefaultNamespaceSet() NamespaceSet {
	return NamespaceSet{Mount: true, PID: true, IPC: true, UTS: true, User: true, Net: true}
}

// CloneFlags converts the set into the clone(2) flag bits os/exec's
// SysProcAttr.Cloneflags expects. SIGCHLD is implicit in the fork/exec
// path os/exec already uses.
func (n NamespaceSet) CloneFlags() uintptr {
	var flags uintptr

	if n.Mount {
		flags |= syscall.CLONE_NEWNS
	}

	if n.PID {
		flags |= syscall.CLONE_NEWPID
	}

	if n.IPC {
		flags |= syscall.CLONE_NEWIPC
	}

	if n.UTS {
		flags |= syscall.CLONE_NEWUTS
	}

	if n.User {
		flags |= syscall.CLONE_NEWUSER
	}

	if n.Net {
		flags |= syscall.CLONE_NEWNET
	}

	return flags
}
