package launch

import (
	"github.com/pflaunch/pflaunch/internal/identity"
	"github.com/pflaunch/pflaunch/internal/mount"
)

// ChildModeArg is the hidden argv[1] marker this binary recognizes to
// select the child setup path instead of the normal CLI when it
// re-execs itself. See doc.go for why a re-exec is used instead of
// continuing to run the parent's own Go runtime after clone.
const ChildModeArg = "--pflaunch-internal-child"

// DaemonModeArg is the hidden argv[1] marker selecting the detached
// session's daemon path: the process that owns the session for its
// whole lifetime, after the invoking CLI process has printed the
// child's PID and exited. See RunDetached/RunDaemon in launch.go.
const DaemonModeArg = "--pflaunch-internal-daemon"

// Config is the fully resolved, immutable session plan built once by CLI
// parsing in the parent, then carried across clone (via a JSON-encoded
// pipe) into the child.
type Config struct {
	Namespaces NamespaceSet

	Mounts []mount.Entry

	Identity *identity.Map

	CgroupSpec string
	NetIfs     []string

	Root    string
	Chdir   string
	KeepEnv bool
	SetEnv  []string
	Command []string

	// SlaveName is the path of the slave half of the PTY the parent
	// already allocated; the child opens it by name.
	SlaveName string
}
