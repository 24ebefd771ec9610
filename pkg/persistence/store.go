// Package persistence stores onboarding outcomes as JSON files: the device
// credential with its attestation precomputation blob on the device side,
// and the per-device records a manufacturer accumulates on the server side.
package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/odo-protocol/odo-go/pkg/onboarding"
)

// StateVersion is the current version of the state file format.
const StateVersion = 1

// DeviceState is the device-side persistent state.
type DeviceState struct {
	// Version is the state file format version.
	Version int `json:"version"`

	// SavedAt is when the state was last saved.
	SavedAt time.Time `json:"saved_at"`

	// Credential is the outcome of a completed onboarding exchange.
	Credential *onboarding.DeviceCredential `json:"credential,omitempty"`

	// Precomp is the attestation precomputation blob, kept so member
	// setup cost is paid once per provisioning rather than per boot.
	Precomp []byte `json:"precomp,omitempty"`
}

// CredentialStore manages persistence of device state to a JSON file.
type CredentialStore struct {
	mu   sync.Mutex
	path string
}

// NewCredentialStore creates a credential store backed by path.
func NewCredentialStore(path string) *CredentialStore {
	return &CredentialStore{path: path}
}

// Save persists the device state to disk. The write is atomic: a crash
// leaves either the old file or the new one, never a partial write.
func (s *CredentialStore) Save(state *DeviceState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state.Version = StateVersion
	if state.SavedAt.IsZero() {
		state.SavedAt = time.Now()
	}
	return writeJSONAtomic(s.path, state, 0600)
}

// Load reads the device state from disk.
// Returns nil, nil if the file doesn't exist (not yet onboarded).
func (s *CredentialStore) Load() (*DeviceState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := &DeviceState{}
	ok, err := readJSON(s.path, state)
	if err != nil || !ok {
		return nil, err
	}
	return state, nil
}

// Clear removes the state file, e.g. on re-provisioning.
func (s *CredentialStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// ManufacturerState is the server-side persistent state.
type ManufacturerState struct {
	// Version is the state file format version.
	Version int `json:"version"`

	// SavedAt is when the state was last saved.
	SavedAt time.Time `json:"saved_at"`

	// Records holds one entry per onboarded device, keyed by serial
	// number.
	Records map[string]*onboarding.DeviceRecord `json:"records,omitempty"`
}

// RecordStore manages persistence of manufacturer state to a JSON file.
type RecordStore struct {
	mu   sync.Mutex
	path string
}

// NewRecordStore creates a record store backed by path.
func NewRecordStore(path string) *RecordStore {
	return &RecordStore{path: path}
}

// Add inserts or replaces the record for a device and persists the state.
func (s *RecordStore) Add(record *onboarding.DeviceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.loadLocked()
	if err != nil {
		return err
	}
	if state.Records == nil {
		state.Records = make(map[string]*onboarding.DeviceRecord)
	}
	state.Records[record.SerialNumber] = record

	state.Version = StateVersion
	state.SavedAt = time.Now()
	return writeJSONAtomic(s.path, state, 0600)
}

// Load reads the manufacturer state from disk.
// Returns an empty state if the file doesn't exist.
func (s *RecordStore) Load() (*ManufacturerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *RecordStore) loadLocked() (*ManufacturerState, error) {
	state := &ManufacturerState{}
	if _, err := readJSON(s.path, state); err != nil {
		return nil, err
	}
	return state, nil
}

// writeJSONAtomic marshals v and renames a temp file over path.
func writeJSONAtomic(path string, v any, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// readJSON unmarshals path into v. Returns false if the file is absent.
func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("parse %s: %w", path, err)
	}
	return true, nil
}
