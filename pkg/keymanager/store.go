package keymanager

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

const remoteKeysFileName = "remote_keys.json"

// RemoteKey is one keymanager-registered key: the pubkey plus the signer
// that holds it.
type RemoteKey struct {
	Pubkey string `json:"pubkey"`
	URL    string `json:"url"`
}

// Store persists the remote-key registry in the data directory. Writes go
// through a temp file so a crash cannot leave a torn registry behind.
type Store struct {
	m    sync.Mutex
	path string
	keys []RemoteKey
}

func OpenStore(dataDir string) (*Store, error) {
	s := &Store{
		path: filepath.Join(dataDir, remoteKeysFileName),
	}

	content, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read remote key registry %s", s.path)
	}
	if err := json.Unmarshal(content, &s.keys); err != nil {
		return nil, errors.Wrapf(err, "corrupt remote key registry %s", s.path)
	}
	return s, nil
}

func (s *Store) List() []RemoteKey {
	s.m.Lock()
	defer s.m.Unlock()
	out := make([]RemoteKey, len(s.keys))
	copy(out, s.keys)
	return out
}

// Add inserts or updates one remote key and persists the registry.
func (s *Store) Add(key RemoteKey) error {
	s.m.Lock()
	defer s.m.Unlock()
	for i, existing := range s.keys {
		if existing.Pubkey == key.Pubkey {
			s.keys[i] = key
			return s.persist()
		}
	}
	s.keys = append(s.keys, key)
	return s.persist()
}

// Delete removes one remote key and persists the registry. Deleting an
// unknown key is a no-op.
func (s *Store) Delete(pubkey string) error {
	s.m.Lock()
	defer s.m.Unlock()
	for i, existing := range s.keys {
		if existing.Pubkey == pubkey {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			return s.persist()
		}
	}
	return nil
}

func (s *Store) persist() error {
	content, err := json.MarshalIndent(s.keys, "", "  ")
	if err != nil {
		return errors.Wrap(err, "unable to marshal remote key registry")
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, content, 0o600); err != nil {
		return errors.Wrapf(err, "unable to write %s", tmp)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrapf(err, "unable to replace %s", s.path)
	}
	return nil
}
