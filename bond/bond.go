// Package bond persists per-peer key material negotiated during bonding.
// The core writes a full Keyset on successful bonded authentication and
// reads it back on reconnection to re-establish encryption without
// re-pairing.
package bond

import (
	"github.com/pkg/errors"

	"github.com/blekit/dongle"
)

// ErrNotFound is returned by Find when no bond exists for the address.
// A missing bond is an expected condition on first-time pairing, never
// a store failure.
var ErrNotFound = errors.New("bond information not found")

// Store is the persistence contract. Addresses are in dongle.Addr.Key()
// form: lowercase hex without separators.
type Store interface {
	Find(addr string) (*dongle.Keyset, error)
	Save(addr string, ks *dongle.Keyset) error
	Delete(addr string) error
	Addresses() ([]string, error)
}

// IsNotFound reports whether err means the bond simply was not there.
func IsNotFound(err error) bool {
	return errors.Cause(err) == ErrNotFound
}

func validAddr(addr string) bool {
	return len(addr) == 12
}
