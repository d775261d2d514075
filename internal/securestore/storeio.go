package securestore

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var ErrPassphraseRequired = errors.New("securestore passphrase is required")

// FileBackend keeps every record in one encrypted file. Each Save rewrites the
// file through a temp file and rename, so a batch lands whole or not at all.
type FileBackend struct {
	path       string
	passphrase string

	mu     sync.RWMutex
	cache  map[string]Record
	loaded bool
}

func NewFileBackend(path, passphrase string) (*FileBackend, error) {
	path, passphrase = strings.TrimSpace(path), strings.TrimSpace(passphrase)
	if path == "" {
		return nil, errors.New("securestore path is required")
	}
	if passphrase == "" {
		return nil, ErrPassphraseRequired
	}
	return &FileBackend{path: path, passphrase: passphrase}, nil
}

func (f *FileBackend) Load(name string) (Record, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ensureLoadedLocked(); err != nil {
		return Record{}, false, err
	}
	rec, ok := f.cache[name]
	return rec, ok, nil
}

func (f *FileBackend) Save(records map[string]Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ensureLoadedLocked(); err != nil {
		return err
	}
	next := make(map[string]Record, len(f.cache)+len(records))
	for k, v := range f.cache {
		next[k] = v
	}
	for k, v := range records {
		next[k] = v
	}
	if err := f.writeLocked(next); err != nil {
		return err
	}
	f.cache = next
	return nil
}

func (f *FileBackend) Names() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ensureLoadedLocked(); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(f.cache))
	for name := range f.cache {
		out = append(out, name)
	}
	return out, nil
}

func (f *FileBackend) Delete(names ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ensureLoadedLocked(); err != nil {
		return err
	}
	drop := make(map[string]bool, len(names))
	for _, name := range names {
		if _, ok := f.cache[name]; ok {
			drop[name] = true
		}
	}
	if len(drop) == 0 {
		return nil
	}
	next := make(map[string]Record, len(f.cache))
	for k, v := range f.cache {
		if !drop[k] {
			next[k] = v
		}
	}
	if err := f.writeLocked(next); err != nil {
		return err
	}
	f.cache = next
	return nil
}

func (f *FileBackend) ensureLoadedLocked() error {
	if f.loaded {
		return nil
	}
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		f.cache = make(map[string]Record)
		f.loaded = true
		return nil
	}
	if err != nil {
		return err
	}
	plain, err := open(f.passphrase, raw)
	if err != nil {
		return err
	}
	defer zeroBytes(plain)
	records := make(map[string]Record)
	if err := json.Unmarshal(plain, &records); err != nil {
		return ErrInvalid
	}
	f.cache = records
	f.loaded = true
	return nil
}

func (f *FileBackend) writeLocked(records map[string]Record) error {
	payload, err := json.Marshal(records)
	if err != nil {
		return err
	}
	defer zeroBytes(payload)
	encrypted, err := seal(f.passphrase, payload)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".vault-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(encrypted); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, f.path)
}
