package keys

import (
	"crypto/aes"
	"crypto/rand"

	"github.com/aead/cmac"
	"github.com/pkg/errors"

	"github.com/blekit/dongle/sliceops"
)

// OobData computes local out-of-band data for a key pair: a fresh 16-byte
// random r and the confirm value C = f4(PKx, PKx, r, 0), Core spec Vol 3,
// Part H, 2.3.5.6.4.
func OobData(p *Pair) (random, confirm []byte, err error) {
	random = make([]byte, 16)
	if _, err = rand.Read(random); err != nil {
		return nil, nil, errors.Wrap(err, "generate oob random")
	}

	x := MarshalPublicKeyX(p.public)
	confirm, err = F4(x, x, random, 0)
	if err != nil {
		return nil, nil, err
	}

	return random, confirm, nil
}

// F4 is the SMP confirm value generation function,
// f4(U, V, X, Z) = AES-CMAC X (U || V || Z).
func F4(u, v, x []byte, z uint8) ([]byte, error) {
	if len(u) != 32 || len(v) != 32 || len(x) != 16 {
		return nil, errors.New("f4: length error")
	}

	m := []byte{z}
	m = append(m, v...)
	m = append(m, u...)

	return aesCMAC(x, m)
}

func aesCMAC(key, msg []byte) ([]byte, error) {
	mCipher, err := aes.NewCipher(sliceops.SwapBuf(key))
	if err != nil {
		return nil, err
	}

	mMac, err := cmac.New(mCipher)
	if err != nil {
		return nil, err
	}

	mMac.Write(sliceops.SwapBuf(msg))

	return sliceops.SwapBuf(mMac.Sum(nil)), nil
}
