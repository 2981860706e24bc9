package launch

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/pflaunch/pflaunch/internal/identity"
	"github.com/pflaunch/pflaunch/internal/mount"
)

// TestConfig_roundTripsAcrossPipe exercises the same encode/decode path
// runSession and RunChild use across the config pipe: a JSON round trip
// must preserve the identity kind discriminant and mount ordering,
// since both drive identity-sensitive and ordering-sensitive behavior
// downstream.
func TestConfig_roundTripsAcrossPipe(t *testing.T) {
	id := identity.Map{Kind: identity.Range, OutsideFirstUID: 100000, UIDLen: 65536, OutsideFirstGID: 100000, GIDLen: 65536}

	cfg := &Config{
		Namespaces: DefaultNamespaceSet(),
		Mounts: []mount.Entry{
			{Type: "proc", Destination: "/rootfs/proc"},
			{Source: "tmpfs", Type: "tmpfs", Destination: "/rootfs/run"},
		},
		Identity:   &id,
		CgroupSpec: "cpu:build",
		NetIfs:     []string{"eth0"},
		Root:       "/rootfs",
		Command:    []string{"/bin/sh", "-c", "true"},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(cfg); err != nil {
		t.Fatalf("encode: %v", err)
	}

	var got Config
	if err := json.NewDecoder(&buf).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got.Identity == nil || got.Identity.Kind != identity.Range {
		t.Errorf("Identity.Kind = %v, want Range", got.Identity)
	}

	if len(got.Mounts) != 2 || got.Mounts[0].Destination != "/rootfs/proc" || got.Mounts[1].Destination != "/rootfs/run" {
		t.Errorf("Mounts order not preserved: %+v", got.Mounts)
	}

	if got.Root != cfg.Root || got.CgroupSpec != cfg.CgroupSpec {
		t.Errorf("got = %+v", got)
	}
}
