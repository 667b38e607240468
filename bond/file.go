package bond

import (
	"io/ioutil"
	"os"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/blekit/dongle"
)

type fileStore struct {
	filename string
	lock     sync.RWMutex
}

type bondFile struct {
	Bonds []bondEntry `json:"bonds"`
}

type bondEntry struct {
	Address string        `json:"address"`
	Keyset  dongle.Keyset `json:"keyset"`
}

// NewFileStore returns a Store backed by a single JSON file. The file is
// created on first use.
func NewFileStore(filename string) Store {
	return &fileStore{filename: filename}
}

func (s *fileStore) Find(addr string) (*dongle.Keyset, error) {
	if !validAddr(addr) {
		return nil, errors.Errorf("invalid address: %s", addr)
	}

	s.lock.RLock()
	defer s.lock.RUnlock()

	bonds, err := s.load()
	if err != nil {
		return nil, err
	}

	for i := range bonds.Bonds {
		if bonds.Bonds[i].Address == addr {
			ks := bonds.Bonds[i].Keyset
			return &ks, nil
		}
	}

	return nil, errors.Wrap(ErrNotFound, addr)
}

func (s *fileStore) Save(addr string, ks *dongle.Keyset) error {
	if !validAddr(addr) {
		return errors.Errorf("invalid address: %s", addr)
	}
	if ks == nil {
		return errors.New("empty bond information")
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	bonds, err := s.load()
	if err != nil {
		return err
	}

	entry := bondEntry{Address: addr, Keyset: *ks}
	replaced := false
	for i := range bonds.Bonds {
		if bonds.Bonds[i].Address == addr {
			bonds.Bonds[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		bonds.Bonds = append(bonds.Bonds, entry)
	}

	return s.store(bonds)
}

func (s *fileStore) Delete(addr string) error {
	if !validAddr(addr) {
		return errors.Errorf("invalid address: %s", addr)
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	bonds, err := s.load()
	if err != nil {
		return err
	}

	kept := bonds.Bonds[:0]
	found := false
	for _, b := range bonds.Bonds {
		if b.Address == addr {
			found = true
			continue
		}
		kept = append(kept, b)
	}
	if !found {
		return errors.Wrap(ErrNotFound, addr)
	}
	bonds.Bonds = kept

	return s.store(bonds)
}

func (s *fileStore) Addresses() ([]string, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	bonds, err := s.load()
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(bonds.Bonds))
	for _, b := range bonds.Bonds {
		out = append(out, b.Address)
	}

	return out, nil
}

func (s *fileStore) load() (*bondFile, error) {
	if _, err := os.Stat(s.filename); os.IsNotExist(err) {
		f, err := os.Create(s.filename)
		if err != nil {
			return nil, errors.Wrap(err, "unable to create bond file")
		}
		_ = f.Close()
	}

	fileData, err := ioutil.ReadFile(s.filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read bond file")
	}

	var bonds bondFile
	if len(fileData) > 0 {
		if err := jsoniter.Unmarshal(fileData, &bonds); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal bond file")
		}
	}

	if len(bonds.Bonds) == 0 {
		bonds.Bonds = make([]bondEntry, 0, 1)
	}

	return &bonds, nil
}

func (s *fileStore) store(bonds *bondFile) error {
	out, err := jsoniter.Marshal(bonds)
	if err != nil {
		return errors.Wrap(err, "failed to marshal bonds")
	}

	if err := ioutil.WriteFile(s.filename, out, 0644); err != nil {
		return errors.Wrap(err, "failed to update bond file")
	}

	return nil
}
