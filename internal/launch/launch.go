package launch

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/pflaunch/pflaunch/internal/cgroup"
	"github.com/pflaunch/pflaunch/internal/identity"
	"github.com/pflaunch/pflaunch/internal/logger"
	"github.com/pflaunch/pflaunch/internal/netif"
	"github.com/pflaunch/pflaunch/internal/pty"
)

// session is a live, running namespace child: the handle runSession
// returns once clone has succeeded and the sync barrier has been
// released, but before anyone has waited on it.
type session struct {
	cmd            *exec.Cmd
	createdCgroups []cgroup.Group
	cgroupVersion  cgroup.Version
	log            *logger.Logger
}

// wait blocks for the child to exit, undoes any cgroup placement, and
// translates the exit into a shell-style code.
func (s *session) wait() int {
	code := waitChild(s.cmd, s.log)
	cgroup.Detach(s.createdCgroups, s.cgroupVersion)
	return code
}

// Run starts a foreground session: the controlling terminal's own
// stdin/stdout are proxied to the child's PTY master for the life of the
// session, and Run returns once the child has exited. The proxy runs
// first: master reads fail once the child's last reference to the slave
// closes, which ends the proxy, and only then is the child waited on.
func Run(cfg *Config, log *logger.Logger) (int, error) {
	master, sess, err := runSession(cfg, log)
	if err != nil {
		return 1, err
	}
	defer master.Close()

	if err := pty.Proxy(master); err != nil {
		log.Warn("pty proxy: %v", err)
	}

	return sess.wait(), nil
}

// RunDetached daemonizes the session: it re-execs this binary into the
// DaemonModeArg path, which itself clones the namespace child, serves
// the PTY master over a broker socket, and outlives this invocation.
// The CLI process hands the session config to the daemon over a pipe,
// reads back the namespace child's PID (the key a later --attach uses)
// once the clone has happened, and returns immediately.
func RunDetached(cfg *Config, log *logger.Logger) (int, error) {
	self, err := os.Executable()
	if err != nil {
		self = "/proc/self/exe"
	}

	cfgR, cfgW, err := os.Pipe()
	if err != nil {
		return 1, fmt.Errorf("config pipe: %w", err)
	}

	pidR, pidW, err := os.Pipe()
	if err != nil {
		cfgR.Close()
		cfgW.Close()
		return 1, fmt.Errorf("pid pipe: %w", err)
	}

	cmd := exec.Command(self, DaemonModeArg)
	cmd.Stdin = cfgR
	cmd.Stdout = pidW
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		cfgR.Close()
		cfgW.Close()
		pidR.Close()
		pidW.Close()
		return 1, fmt.Errorf("start daemon: %w", err)
	}
	cfgR.Close()
	pidW.Close()

	if err := json.NewEncoder(cfgW).Encode(cfg); err != nil {
		cfgW.Close()
		pidR.Close()
		return 1, fmt.Errorf("write config: %w", err)
	}
	cfgW.Close()

	var pid int
	if _, err := fmt.Fscanln(pidR, &pid); err != nil {
		pidR.Close()
		return 1, fmt.Errorf("read child pid: %w", err)
	}
	pidR.Close()

	// The daemon now owns the session end to end; this process's only
	// remaining stake in cmd is not reaping it.
	_ = cmd.Process.Release()

	fmt.Fprintln(os.Stdout, pid)
	log.Info("detached session %d", pid)

	return 0, nil
}

// RunDaemon is the entry point the re-exec'd daemon process runs under
// DaemonModeArg: read the session config from stdin, clone the child,
// report its PID to the invoking CLI process's pipe, detach from the
// controlling terminal, and serve the PTY broker until the session ends.
// It never returns — the process exits with the child's exit code.
func RunDaemon() {
	log := logger.New(false).With("side", "daemon")

	var cfg Config
	if err := json.NewDecoder(os.Stdin).Decode(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "pflaunch: daemon: read config: %v\n", err)
		os.Exit(1)
	}

	master, sess, err := runSession(&cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pflaunch: daemon: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintln(os.Stdout, sess.cmd.Process.Pid)

	if devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0); err == nil {
		for _, fd := range []int{0, 1, 2} {
			_ = unix.Dup2(int(devnull.Fd()), fd)
		}
		devnull.Close()
	}

	go func() {
		if err := pty.Serve(master, sess.cmd.Process.Pid); err != nil {
			log.Error("pty broker: %v", err)
		}
	}()

	code := sess.wait()
	master.Close()
	os.Exit(code)
}

// RunAttach connects to a running detached session's PTY broker and
// proxies this process's own stdio against it until the session ends.
func RunAttach(pid int, log *logger.Logger) (int, error) {
	master, err := pty.Recv(pid)
	if err != nil {
		return 1, fmt.Errorf("attach to pid %d: %w", pid, err)
	}
	defer master.Close()

	if err := pty.Proxy(master); err != nil {
		log.Warn("pty proxy: %v", err)
	}

	return 0, nil
}

// runSession is the shared core of Run and RunDaemon: it allocates a
// PTY, clones the child via a re-exec of this same binary into RunChild
// (see doc.go), performs every privileged parent-side step the child
// cannot do for itself from inside its own namespaces — writing a range
// identity map, attaching the cgroup, moving network interfaces — then
// releases the sync barrier.
//
// It returns immediately once the barrier is released, without waiting
// for the child to exit: the caller decides whether to proxy the PTY
// itself (Run) or hand it to the broker (RunDaemon), then calls
// session.wait.
func runSession(cfg *Config, log *logger.Logger) (*os.File, *session, error) {
	pair, err := pty.OpenMaster()
	if err != nil {
		return nil, nil, fmt.Errorf("allocate pty: %w", err)
	}
	cfg.SlaveName = pair.SlaveName

	cfgR, cfgW, err := os.Pipe()
	if err != nil {
		pair.Master.Close()
		return nil, nil, fmt.Errorf("config pipe: %w", err)
	}

	syncR, syncW, err := os.Pipe()
	if err != nil {
		pair.Master.Close()
		cfgR.Close()
		cfgW.Close()
		return nil, nil, fmt.Errorf("sync pipe: %w", err)
	}

	self, err := os.Executable()
	if err != nil {
		self = "/proc/self/exe"
	}

	cloneFlags := cfg.Namespaces.CloneFlags()
	log.Debug("clone flags: %#x", cloneFlags)

	cmd := exec.Command(self, ChildModeArg)
	cmd.ExtraFiles = []*os.File{cfgR, syncR}
	cmd.SysProcAttr = &syscall.SysProcAttr{Cloneflags: cloneFlags}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		pair.Master.Close()
		cfgR.Close()
		cfgW.Close()
		syncR.Close()
		syncW.Close()
		return nil, nil, fmt.Errorf("start child: %w", err)
	}
	cfgR.Close()
	syncR.Close()

	log = log.With("pid", cmd.Process.Pid)

	if err := json.NewEncoder(cfgW).Encode(cfg); err != nil {
		cfgW.Close()
		syncW.Close()
		killChild(cmd)
		return nil, nil, fmt.Errorf("write config: %w", err)
	}
	cfgW.Close()

	var createdCgroups []cgroup.Group
	var cgroupVersion cgroup.Version

	if cfg.CgroupSpec != "" {
		createdCgroups, cgroupVersion, err = cgroup.Attach(cfg.CgroupSpec, cmd.Process.Pid)
		if err != nil {
			syncW.Close()
			killChild(cmd)
			return nil, nil, fmt.Errorf("cgroup attach: %w", err)
		}
	}

	if cfg.Identity != nil && cfg.Identity.Kind == identity.Range {
		if err := identity.WriteRangeViaHelpers(cmd.Process.Pid, *cfg.Identity); err != nil {
			syncW.Close()
			cgroup.Detach(createdCgroups, cgroupVersion)
			killChild(cmd)
			return nil, nil, fmt.Errorf("identity map: %w", err)
		}
	}

	if len(cfg.NetIfs) > 0 {
		if err := netif.Move(cfg.NetIfs, cmd.Process.Pid); err != nil {
			syncW.Close()
			cgroup.Detach(createdCgroups, cgroupVersion)
			killChild(cmd)
			return nil, nil, fmt.Errorf("move network interfaces: %w", err)
		}
	}

	log.Debug("releasing sync barrier")
	if _, err := syncW.Write([]byte{0}); err != nil {
		syncW.Close()
		cgroup.Detach(createdCgroups, cgroupVersion)
		killChild(cmd)
		return nil, nil, fmt.Errorf("release sync barrier: %w", err)
	}
	syncW.Close()

	return pair.Master, &session{cmd: cmd, createdCgroups: createdCgroups, cgroupVersion: cgroupVersion, log: log}, nil
}

func killChild(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}
}

// waitChild sends SIGKILL before waiting, guaranteeing reap even if the
// child stalled (spec.md §4.1 step 9), then translates its
// *os.ProcessState into a shell-style exit code: the process's own exit
// status, or 128+signal when it died from a signal. Either classification
// is logged at info level.
func waitChild(cmd *exec.Cmd, log *logger.Logger) int {
	_ = cmd.Process.Signal(syscall.SIGKILL)

	err := cmd.Wait()
	if err == nil {
		log.Info("child exited: status=0")
		return 0
	}

	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		log.Error("wait: %v", err)
		return 1
	}

	status, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok {
		code := exitErr.ExitCode()
		log.Info("child exited: status=%d", code)
		return code
	}

	if status.Signaled() {
		log.Info("child killed: signal=%v", status.Signal())
		return 128 + int(status.Signal())
	}

	log.Info("child exited: status=%d", status.ExitStatus())
	return status.ExitStatus()
}
