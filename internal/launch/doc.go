// Package launch is the launch orchestrator: the parent/child choreography
// around Linux namespace creation, including the synchronization barrier
// required because user-namespace identity maps must be written after the
// child exists but before the child touches its own in-container identity.
//
// pflask.c creates the new namespaces with a raw clone(2) call and keeps
// running as the cloned copy of the parent's own process image for the
// child path. A Go process cannot safely do that: the runtime's other
// OS threads (GC workers, sysmon, the netpoller) are not duplicated by
// clone, and the cloned thread resumes inside a runtime that believes
// those threads still exist, corrupting the child irrecoverably before
// it gets anywhere near mount(2) or execve(2).
//
// This package sidesteps the problem the way spec.md's design notes
// invite ("an equivalent double-fork + unshare"): it clones straight into
// an execve of this same binary (os/exec's SysProcAttr.Cloneflags path,
// which clones and execs in one kernel-level step with no intervening Go
// code), re-entering main() in a dedicated child mode with a brand new,
// single-threaded runtime. That freshly exec'd process is what performs
// every step between "child exists" and "exec the target command" —
// functionally identical to pflask's child path, safe under Go.
package launch
