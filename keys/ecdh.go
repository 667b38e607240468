// Package keys holds the host-side LE Secure Connections crypto: P-256 key
// pairs in SMP wire order, shared secret computation, and out-of-band
// authentication data. Gateway implementations back their ComputePublicKey,
// ComputeSharedSecret and GetLescOobData commands with it.
package keys

import (
	"crypto"
	"crypto/elliptic"
	"crypto/rand"

	"github.com/pkg/errors"
	"github.com/wsddn/go-ecdh"

	"github.com/blekit/dongle/sliceops"
)

// Pair is a P-256 key pair used for one LESC session.
type Pair struct {
	public  crypto.PublicKey
	private crypto.PrivateKey
}

// Generate creates a fresh P-256 key pair.
func Generate() (*Pair, error) {
	var err error
	kp := Pair{}
	e := ecdh.NewEllipticECDH(elliptic.P256())

	kp.private, kp.public, err = e.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "generate key pair")
	}

	return &kp, nil
}

// PublicBytes returns the public key as X||Y in SMP wire order (each
// coordinate little-endian), 64 bytes.
func (p *Pair) PublicBytes() []byte {
	return MarshalPublicKeyXY(p.public)
}

// SharedSecret computes the DH key against a peer public key in SMP wire
// order.
func (p *Pair) SharedSecret(peer []byte) ([]byte, error) {
	pub, ok := UnmarshalPublicKey(peer)
	if !ok {
		return nil, errors.New("invalid peer public key")
	}

	e := ecdh.NewEllipticECDH(elliptic.P256())
	b, err := e.GenerateSharedSecret(p.private, pub)
	if err != nil {
		return nil, errors.Wrap(err, "generate shared secret")
	}

	return sliceops.SwapBuf(b), nil
}

// UnmarshalPublicKey parses a 64-byte X||Y key in SMP wire order.
func UnmarshalPublicKey(b []byte) (crypto.PublicKey, bool) {
	if len(b) != 64 {
		return nil, false
	}

	e := ecdh.NewEllipticECDH(elliptic.P256())
	xs := sliceops.SwapBuf(b[:32])
	ys := sliceops.SwapBuf(b[32:])

	r := append([]byte{0x04}, xs...)
	r = append(r, ys...)

	return e.Unmarshal(r)
}

// MarshalPublicKeyXY serializes a public key as X||Y in SMP wire order.
func MarshalPublicKeyXY(k crypto.PublicKey) []byte {
	e := ecdh.NewEllipticECDH(elliptic.P256())

	ba := e.Marshal(k)
	ba = ba[1:] // strip the uncompressed-point header
	x := sliceops.SwapBuf(ba[:32])
	y := sliceops.SwapBuf(ba[32:])

	return append(x, y...)
}

// MarshalPublicKeyX serializes only the X coordinate in SMP wire order.
func MarshalPublicKeyX(k crypto.PublicKey) []byte {
	e := ecdh.NewEllipticECDH(elliptic.P256())

	ba := e.Marshal(k)
	ba = ba[1:]

	return sliceops.SwapBuf(ba[:32])
}
