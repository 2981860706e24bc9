// Package pty implements the PTY broker: allocating a master/slave pair,
// making the slave the controlling terminal of the child, proxying bytes
// between the master and the invoking terminal, and — for detached
// sessions — handing the master FD to a later "attach" invocation over a
// Unix socket using SCM_RIGHTS.
package pty

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// Pair is an open master/slave PTY pair. OpenMaster leaves Slave nil and
// nothing in this package sets it; the child opens the slave itself by
// SlaveName.
type Pair struct {
	Master    *os.File
	SlaveName string
	Slave     *os.File
}

// OpenMaster allocates a new master PTY via /dev/ptmx, unlocks it and
// reads back its slave name, the Go equivalent of posix_openpt +
// grantpt + unlockpt + ptsname.
func OpenMaster() (*Pair, error) {
	master, err := os.OpenFile("/dev/ptmx", os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, fmt.Errorf("open /dev/ptmx: %w", err)
	}

	if err := unlockpt(master); err != nil {
		master.Close()
		return nil, err
	}

	name, err := ptsname(master)
	if err != nil {
		master.Close()
		return nil, err
	}

	return &Pair{Master: master, SlaveName: name}, nil
}

func unlockpt(f *os.File) error {
	if err := unix.IoctlSetInt(int(f.Fd()), unix.TIOCSPTLCK, 0); err != nil {
		return fmt.Errorf("unlockpt: %w", err)
	}

	return nil
}

func ptsname(f *os.File) (string, error) {
	n, err := unix.IoctlGetInt(int(f.Fd()), unix.TIOCGPTN)
	if err != nil {
		return "", fmt.Errorf("ptsname: %w", err)
	}

	return fmt.Sprintf("/dev/pts/%d", n), nil
}

// OpenSlave opens the named slave PTY and dups it onto fd 0, 1 and 2 of
// the calling (child) process, making it the process's stdio.
func OpenSlave(name string) (*os.File, error) {
	slave, err := os.OpenFile(name, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open slave %s: %w", name, err)
	}

	for _, fd := range []int{0, 1, 2} {
		if err := unix.Dup2(int(slave.Fd()), fd); err != nil {
			return nil, fmt.Errorf("dup2 slave onto fd %d: %w", fd, err)
		}
	}

	return slave, nil
}

// Proxy forwards bytes between the controlling terminal (fd 0/1 of this
// process) and master until either side closes, putting the controlling
// terminal into raw mode for the duration and restoring it on every exit
// path. A failure to restore terminal state is returned for the caller to
// log, not treated as fatal.
func Proxy(master *os.File) (err error) {
	fd := int(os.Stdin.Fd())

	state, rawErr := term.MakeRaw(fd)
	if rawErr == nil {
		defer func() {
			if restoreErr := term.Restore(fd, state); restoreErr != nil && err == nil {
				err = fmt.Errorf("restore terminal: %w", restoreErr)
			}
		}()
	}

	errc := make(chan error, 2)

	go func() {
		_, err := io.Copy(master, os.Stdin)
		errc <- err
	}()

	go func() {
		_, err := io.Copy(os.Stdout, master)
		errc <- err
	}()

	// The session ends when either direction returns (master closed, or
	// stdin EOF); a broken master means the session is ending, not an
	// error worth propagating. On Linux a master read fails with EIO once
	// the slave's last reference closes.
	err = <-errc
	if err != nil && err != io.EOF && !errors.Is(err, unix.EIO) {
		return err
	}

	return nil
}

// socketPath returns the stable, per-session Unix socket path a detached
// broker listens on, keyed by the owning process's pid.
func socketPath(ownerPID int) string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = "/run/pflaunch"
	} else {
		dir = filepath.Join(dir, "pflaunch")
	}

	return filepath.Join(dir, fmt.Sprintf("%d.sock", ownerPID))
}

// Serve binds a Unix socket keyed by ownerPID and, on every connection,
// sends the master FD over SCM_RIGHTS and closes the connection. It
// returns only when Accept fails; closing master does not stop it. The
// socket file is removed when Serve returns, and stays in place if the
// process exits while Serve is still running.
func Serve(master *os.File, ownerPID int) error {
	path := socketPath(ownerPID)

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}

	_ = os.Remove(path)

	l, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("listen %s: %w", path, err)
	}
	defer os.Remove(path)
	defer l.Close()

	for {
		conn, err := l.Accept()
		if err != nil {
			// The listener is closed or broken; stop serving.
			return nil
		}

		sendFD(conn, master)
		conn.Close()
	}
}

func sendFD(conn net.Conn, f *os.File) {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return
	}

	sockFile, err := uc.File()
	if err != nil {
		return
	}
	defer sockFile.Close()

	rights := unix.UnixRights(int(f.Fd()))
	_ = unix.Sendmsg(int(sockFile.Fd()), []byte{0}, rights, nil, 0)
}

// Recv connects to the detached session's broker socket and receives its
// master FD, for the --attach path.
func Recv(ownerPID int) (*os.File, error) {
	path := socketPath(ownerPID)

	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", path, err)
	}
	defer conn.Close()

	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return nil, fmt.Errorf("not a unix connection")
	}

	sockFile, err := uc.File()
	if err != nil {
		return nil, err
	}
	defer sockFile.Close()

	buf := make([]byte, 1)
	oob := make([]byte, unix.CmsgSpace(4))

	_, oobn, _, _, err := unix.Recvmsg(int(sockFile.Fd()), buf, oob, 0)
	if err != nil {
		return nil, fmt.Errorf("recvmsg: %w", err)
	}

	msgs, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return nil, fmt.Errorf("parse control message: %w", err)
	}

	if len(msgs) == 0 {
		return nil, fmt.Errorf("no control message received")
	}

	fds, err := unix.ParseUnixRights(&msgs[0])
	if err != nil || len(fds) == 0 {
		return nil, fmt.Errorf("parse unix rights: %w", err)
	}

	return os.NewFile(uintptr(fds[0]), "master"), nil
}
