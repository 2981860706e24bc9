// Package netif implements the external "move the named interface into
// the child's network namespace" contract, and the child-side "bring lo
// up" helper, using github.com/vishvananda/netlink rather than pflask's
// raw SIOCSIFNAME/ioctl calls.
package netif

import (
	"fmt"

	"github.com/vishvananda/netlink"
)

// Move moves each named host interface into the network namespace of
// pid. Call from the parent, before releasing the sync barrier, so the
// interface is already present when the child brings lo up and execs.
func Move(names []string, pid int) error {
	for _, name := range names {
		link, err := netlink.LinkByName(name)
		if err != nil {
			return fmt.Errorf("netif %s: lookup: %w", name, err)
		}

		if err := netlink.LinkSetNsPid(link, pid); err != nil {
			return fmt.Errorf("netif %s: move to pid %d: %w", name, pid, err)
		}
	}

	return nil
}

// SetupLoopback brings the loopback interface up. Call from inside the
// child, and only when the child runs in its own net namespace.
func SetupLoopback() error {
	link, err := netlink.LinkByName("lo")
	if err != nil {
		return fmt.Errorf("lookup lo: %w", err)
	}

	if err := netlink.LinkSetUp(link); err != nil {
		return fmt.Errorf("bring up lo: %w", err)
	}

	return nil
}
