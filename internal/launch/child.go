package launch

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/pflaunch/pflaunch/internal/device"
	"github.com/pflaunch/pflaunch/internal/identity"
	"github.com/pflaunch/pflaunch/internal/mount"
	"github.com/pflaunch/pflaunch/internal/netif"
)

const (
	cfgFD  = 3
	syncFD = 4
)

// RunChild is the entry point a re-exec of this binary takes when
// os.Args[1] == ChildModeArg. It implements spec.md §4.1 step 6 in full:
// cross the sync barrier, take the controlling terminal, drop privilege,
// mount the plan, materialize /dev, chroot, bring up loopback, sanitize
// the environment, and finally exec the target command. It never
// returns on success — the process image is replaced by execve.
//
// cgroup attachment and range identity maps are NOT performed here: both
// require privilege in the host (initial) user namespace that this
// process, once inside its own freshly unshared user namespace, no
// longer holds. The parent performs both against this process's pid
// before releasing the sync barrier below.
func RunChild() {
	cfg, err := readConfig()
	if err != nil {
		fatalf("read config: %v", err)
	}

	syncFile := os.NewFile(syncFD, "sync")
	var b [1]byte
	if _, err := syncFile.Read(b[:]); err != nil {
		fatalf("sync barrier: %v", err)
	}
	syncFile.Close()

	if _, err := openSlaveAsStdio(cfg.SlaveName); err != nil {
		fatalf("open slave pty: %v", err)
	}

	if _, err := unix.Setsid(); err != nil {
		fatalf("setsid: %v", err)
	}

	if err := unix.Prctl(unix.PR_SET_PDEATHSIG, uintptr(unix.SIGKILL), 0, 0, 0); err != nil {
		fatalf("prctl(PR_SET_PDEATHSIG): %v", err)
	}

	if cfg.Identity != nil && cfg.Identity.Kind == identity.Single {
		if err := identity.WriteSelf(*cfg.Identity); err != nil {
			fatalf("identity write: %v", err)
		}

		if err := unix.Setresgid(int(cfg.Identity.InsideGID), int(cfg.Identity.InsideGID), int(cfg.Identity.InsideGID)); err != nil {
			fatalf("setresgid: %v", err)
		}

		if err := unix.Setresuid(int(cfg.Identity.InsideUID), int(cfg.Identity.InsideUID), int(cfg.Identity.InsideUID)); err != nil {
			fatalf("setresuid: %v", err)
		}
	}

	plan := &mount.Plan{}
	for _, e := range cfg.Mounts {
		plan.Append(e)
	}

	if err := mount.Replay(plan); err != nil {
		fatalf("mount: %v", err)
	}

	if cfg.Root != "" {
		if err := device.Populate(cfg.Root); err != nil {
			fatalf("populate /dev: %v", err)
		}

		if err := device.Console(cfg.Root, cfg.SlaveName); err != nil {
			fatalf("console: %v", err)
		}

		if err := doChroot(cfg.Root); err != nil {
			fatalf("chroot: %v", err)
		}
	}

	if cfg.Namespaces.Net {
		if err := netif.SetupLoopback(); err != nil {
			fatalf("loopback: %v", err)
		}
	}

	unix.Umask(0o022)

	if cfg.Chdir != "" {
		if err := os.Chdir(cfg.Chdir); err != nil {
			fatalf("chdir: %v", err)
		}
	}

	env := sanitizeEnv(cfg)

	// exec.LookPath consults the current process's $PATH, not the
	// sanitized env about to become the target command's environment;
	// set it here so the two agree, in particular after a chroot where
	// the inherited $PATH may not even resolve inside the new root.
	if path, ok := lookupEnv(env, "PATH"); ok {
		os.Setenv("PATH", path)
	}

	argv := cfg.Command
	if len(argv) == 0 {
		argv = []string{"/bin/bash", "-bash"}
	}

	path, err := exec.LookPath(argv[0])
	if err != nil {
		fatalf("lookup %s: %v", argv[0], err)
	}

	if err := syscall.Exec(path, argv, env); err != nil {
		fatalf("exec %s: %v", argv[0], err)
	}
}

func openSlaveAsStdio(name string) (*os.File, error) {
	f, err := os.OpenFile(name, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}

	for _, fd := range []int{0, 1, 2} {
		if err := unix.Dup2(int(f.Fd()), fd); err != nil {
			return nil, fmt.Errorf("dup2 onto fd %d: %w", fd, err)
		}
	}

	return f, nil
}

func doChroot(root string) error {
	if err := os.Chdir(root); err != nil {
		return err
	}

	if err := unix.Chroot("."); err != nil {
		return err
	}

	return os.Chdir("/")
}

// sanitizeEnv builds the child's environment per spec.md §6: when a root
// is configured and keepenv is false, PATH is reset to the fixed
// default and TERM is preserved across the clear; --setenv assignments
// and container=pflaunch are applied in every case.
func sanitizeEnv(cfg *Config) []string {
	var env []string

	if cfg.Root != "" && !cfg.KeepEnv {
		env = append(env, "PATH=/usr/sbin:/usr/bin:/sbin:/bin")
		if term, ok := os.LookupEnv("TERM"); ok {
			env = append(env, "TERM="+term)
		}
	} else {
		env = os.Environ()
	}

	env = append(env, cfg.SetEnv...)
	env = append(env, "container=pflaunch")

	return env
}

func lookupEnv(env []string, key string) (string, bool) {
	prefix := key + "="
	for _, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			return kv[len(prefix):], true
		}
	}

	return "", false
}

func readConfig() (*Config, error) {
	f := os.NewFile(cfgFD, "config")
	defer f.Close()

	var cfg Config
	if err := json.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "pflaunch: child: "+format+"\n", args...)
	os.Exit(1)
}
