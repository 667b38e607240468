package dongle

import (
	"encoding/hex"
	"strings"
)

// AddressType is the GAP address type of a peer.
type AddressType string

const (
	AddressTypePublic              AddressType = "public"
	AddressTypeRandomStatic        AddressType = "randomStatic"
	AddressTypeRandomResolvable    AddressType = "randomPrivateResolvable"
	AddressTypeRandomNonResolvable AddressType = "randomPrivateNonResolvable"
)

// Addr identifies a peer device by BLE address and address type.
type Addr struct {
	Address string
	Type    AddressType
}

// NewAddr creates an Addr from a colon-separated MAC string.
func NewAddr(s string, t AddressType) Addr {
	return Addr{Address: strings.ToUpper(s), Type: t}
}

func (a Addr) String() string {
	return a.Address
}

// Key returns the canonical form used to key bond and security stores.
// Address type is deliberately not part of the key.
func (a Addr) Key() string {
	return strings.ToLower(strings.Replace(a.Address, ":", "", -1))
}

// Bytes returns the address as raw bytes, or nil if it does not parse.
func (a Addr) Bytes() []byte {
	out, err := hex.DecodeString(a.Key())
	if err != nil {
		return nil
	}
	return out
}
