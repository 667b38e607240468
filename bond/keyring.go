package bond

import (
	"github.com/99designs/keyring"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/blekit/dongle"
)

type keyringStore struct {
	ring keyring.Keyring
}

// NewKeyringStore returns a Store that keeps key material in the OS
// credential store (keychain, secret service, wincred) under the given
// service name, falling back to an encrypted file under fileDir where no
// native backend exists.
func NewKeyringStore(serviceName, fileDir string) (Store, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		FileDir:     fileDir,
	})
	if err != nil {
		return nil, errors.Wrap(err, "open keyring")
	}

	return &keyringStore{ring: ring}, nil
}

func (s *keyringStore) Find(addr string) (*dongle.Keyset, error) {
	if !validAddr(addr) {
		return nil, errors.Errorf("invalid address: %s", addr)
	}

	item, err := s.ring.Get(addr)
	if err == keyring.ErrKeyNotFound {
		return nil, errors.Wrap(ErrNotFound, addr)
	}
	if err != nil {
		return nil, errors.Wrap(err, "keyring get")
	}

	var ks dongle.Keyset
	if err := jsoniter.Unmarshal(item.Data, &ks); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal stored bond")
	}

	return &ks, nil
}

func (s *keyringStore) Save(addr string, ks *dongle.Keyset) error {
	if !validAddr(addr) {
		return errors.Errorf("invalid address: %s", addr)
	}
	if ks == nil {
		return errors.New("empty bond information")
	}

	data, err := jsoniter.Marshal(ks)
	if err != nil {
		return errors.Wrap(err, "failed to marshal bond")
	}

	return errors.Wrap(s.ring.Set(keyring.Item{
		Key:   addr,
		Label: "BLE bond " + addr,
		Data:  data,
	}), "keyring set")
}

func (s *keyringStore) Delete(addr string) error {
	if !validAddr(addr) {
		return errors.Errorf("invalid address: %s", addr)
	}

	err := s.ring.Remove(addr)
	if err == keyring.ErrKeyNotFound {
		return errors.Wrap(ErrNotFound, addr)
	}

	return errors.Wrap(err, "keyring remove")
}

func (s *keyringStore) Addresses() ([]string, error) {
	out, err := s.ring.Keys()
	return out, errors.Wrap(err, "keyring keys")
}
