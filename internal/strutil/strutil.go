// Package strutil holds the handful of string helpers the original C tool
// kept as free functions (split_str, validate_optlist) — in Go these need
// no scoped-free discipline, so the package is a thin set of pure
// functions rather than a type.
package strutil

import (
	"fmt"
	"strings"
)

// SplitList splits a comma-separated option argument into its fields
// before handing the pieces to a spec parser. Empty fields are kept, not
// rejected: "" yields a single empty field.
func SplitList(s string) []string {
	return strings.Split(s, ",")
}

// validOptChar matches the character set pflask accepted in --mount,
// --netif, --cgroup and --setenv arguments before ever touching the
// filesystem or forking a helper.
func validOptChar(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
	case r >= 'A' && r <= 'Z':
	case r >= '0' && r <= '9':
	case strings.ContainsRune("-_./:,=~", r):
	default:
		return false
	}

	return true
}

// ValidateOptList checks that an option argument uses only the restricted
// character set allowed for mount/cgroup/netif/env specs, returning an
// error naming the offending flag the way pflask's validate_optlist did.
func ValidateOptList(flag, value string) error {
	if value == "" {
		return fmt.Errorf("%s: empty argument", flag)
	}

	for _, r := range value {
		if !validOptChar(r) {
			return fmt.Errorf("%s: invalid character %q in %q", flag, r, value)
		}
	}

	return nil
}
