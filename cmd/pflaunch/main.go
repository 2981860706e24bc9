// Command pflaunch is a minimal Linux process-isolation launcher: given a
// host directory tree and a command line, it spawns that command inside a
// fresh set of kernel namespaces with a prepared root filesystem, a
// controlling pseudo-terminal, optional cgroup placement, and identity
// mapping between an outside and an inside user range.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pflaunch/pflaunch/internal/identity"
	"github.com/pflaunch/pflaunch/internal/launch"
	"github.com/pflaunch/pflaunch/internal/logger"
	"github.com/pflaunch/pflaunch/internal/mount"
	"github.com/pflaunch/pflaunch/internal/strutil"
)

func main() {
	// Re-exec entry points: a cloned namespace child, or a detached
	// session's daemon, land here before cobra ever sees argv, because
	// neither is a normal CLI invocation.
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case launch.ChildModeArg:
			launch.RunChild()
			return
		case launch.DaemonModeArg:
			launch.RunDaemon()
			return
		}
	}

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type flags struct {
	mounts  []string
	netif   string
	user    string
	idmap   string
	chroot  string
	chdir   string
	cgroup  string
	detach  bool
	attach  int
	setenv  []string
	keepenv bool
	debug   bool

	noUser  bool
	noMount bool
	noNet   bool
	noIPC   bool
	noUTS   bool
	noPID   bool
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	cmd := &cobra.Command{
		Use:   "pflaunch [flags] [--] command [args...]",
		Short: "run a command in a fresh set of Linux namespaces",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(f, args)
		},
	}

	// Matches pflask's '+'-prefixed getopt behavior: option parsing stops
	// at the first non-flag argument, which becomes argv[0] of the
	// command to run.
	cmd.Flags().SetInterspersed(false)

	cmd.Flags().StringArrayVarP(&f.mounts, "mount", "m", nil, "append a mount spec (bind,SRC,DST | bind-ro,SRC,DST | aufs,OVERLAY,DST | overlay,OVERLAY,DST,WORK | tmp,DST)")
	cmd.Flags().StringVarP(&f.netif, "netif", "n", "", "enable the network namespace, optionally moving the named interface(s) in")
	cmd.Flags().Lookup("netif").NoOptDefVal = " "
	cmd.Flags().StringVarP(&f.user, "user", "u", "", "in-container uid,gid (single identity map)")
	cmd.Flags().StringVarP(&f.idmap, "map", "o", "", "outside-uid,len,outside-gid,len (range identity map via helpers)")
	cmd.Flags().StringVarP(&f.chroot, "chroot", "r", "", "root directory for the new session")
	cmd.Flags().StringVarP(&f.chdir, "chdir", "c", "", "directory to chdir into inside the container")
	cmd.Flags().StringVarP(&f.cgroup, "cgroup", "g", "", "cgroup placement spec")
	cmd.Flags().BoolVarP(&f.detach, "detach", "d", false, "daemonize and serve the PTY for a later --attach")
	cmd.Flags().IntVarP(&f.attach, "attach", "a", 0, "attach to a detached session by PID")
	cmd.Flags().StringArrayVarP(&f.setenv, "setenv", "s", nil, "K=V env assignment(s), comma-separated")
	cmd.Flags().BoolVarP(&f.keepenv, "keepenv", "k", false, "do not clear the environment before exec")
	cmd.Flags().BoolVar(&f.debug, "debug", false, "enable debug logging")

	cmd.Flags().BoolVarP(&f.noUser, "no-userns", "U", false, "disable the user namespace")
	cmd.Flags().BoolVarP(&f.noMount, "no-mountns", "M", false, "disable the mount namespace")
	cmd.Flags().BoolVarP(&f.noNet, "no-netns", "N", false, "disable the network namespace")
	cmd.Flags().BoolVarP(&f.noIPC, "no-ipcns", "I", false, "disable the IPC namespace")
	cmd.Flags().BoolVarP(&f.noUTS, "no-utsns", "H", false, "disable the UTS namespace")
	cmd.Flags().BoolVarP(&f.noPID, "no-pidns", "P", false, "disable the PID namespace")

	return cmd
}

func run(f *flags, args []string) error {
	log := logger.New(f.debug).With("side", "parent")

	if f.attach != 0 {
		code, err := launch.RunAttach(f.attach, log)
		os.Exit(code)
		return err
	}

	cfg, err := buildConfig(f, args)
	if err != nil {
		return err
	}

	var code int
	if f.detach {
		code, err = launch.RunDetached(cfg, log)
	} else {
		code, err = launch.Run(cfg, log)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "pflaunch: %v\n", err)
	}

	os.Exit(code)
	return nil
}

func buildConfig(f *flags, args []string) (*launch.Config, error) {
	ns := launch.DefaultNamespaceSet()
	ns.User = !f.noUser
	ns.Mount = !f.noMount
	ns.Net = !f.noNet
	ns.IPC = !f.noIPC
	ns.UTS = !f.noUTS
	ns.PID = !f.noPID

	cfg := &launch.Config{
		Namespaces: ns,
		Root:       f.chroot,
		Chdir:      f.chdir,
		CgroupSpec: f.cgroup,
		KeepEnv:    f.keepenv,
		Command:    args,
	}

	if f.cgroup != "" {
		if err := strutil.ValidateOptList("--cgroup", f.cgroup); err != nil {
			return nil, err
		}
	}

	plan := &mount.Plan{}
	if f.chroot != "" {
		for _, e := range mount.Prologue(f.chroot) {
			plan.Append(e)
		}
	}

	for _, spec := range f.mounts {
		if err := strutil.ValidateOptList("--mount", spec); err != nil {
			return nil, err
		}

		if err := mount.ParseSpec(plan, strutil.SplitList(spec)); err != nil {
			return nil, err
		}
	}
	cfg.Mounts = plan.Entries()

	if f.netif != "" && f.netif != " " {
		if err := strutil.ValidateOptList("--netif", f.netif); err != nil {
			return nil, err
		}

		cfg.NetIfs = strutil.SplitList(f.netif)
	}

	if f.user != "" {
		m, err := identity.ParseSingle(f.user)
		if err != nil {
			return nil, err
		}

		cfg.Identity = &m
	}

	if f.idmap != "" {
		if cfg.Identity != nil {
			return nil, fmt.Errorf("--user and --map are mutually exclusive")
		}

		m, err := identity.ParseRange(f.idmap)
		if err != nil {
			return nil, err
		}

		cfg.Identity = &m
	}

	for _, assign := range f.setenv {
		if err := strutil.ValidateOptList("--setenv", assign); err != nil {
			return nil, err
		}

		cfg.SetEnv = append(cfg.SetEnv, strutil.SplitList(assign)...)
	}

	return cfg, nil
}
