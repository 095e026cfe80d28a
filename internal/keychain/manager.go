// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package keychain stores named connection profiles in the OS keychain/credential store.
//
// A profile maps a short name to a full DSN, so passwords never have to live in the
// config file or shell history. macOS uses the native security command when available
// and falls back to the keyring library elsewhere.
package keychain

import (
	"errors"
	"fmt"
	"runtime"
	"slices"
	"strings"
	"sync"

	"github.com/99designs/keyring"
	"github.com/samber/lo"
)

// ServiceName identifies our keychain/credential store namespace.
const ServiceName = "sqlwb"

// DefaultProfile is used when no profile name is given.
const DefaultProfile = "default"

// ErrProfileNotFound is returned when a profile name has no stored DSN.
var ErrProfileNotFound = errors.New("profile not found")

const (
	indexKey      = "profiles"
	profilePrefix = "profile:"
)

// store is a flat string key/value secret store.
type store interface {
	Set(key, value string) error
	Get(key string) (string, error)
	Delete(key string) error
}

// ringStore adapts a keyring.Keyring to store.
type ringStore struct{ ring keyring.Keyring }

func (r ringStore) Set(key, value string) error {
	return r.ring.Set(keyring.Item{Key: key, Data: []byte(value), Label: ServiceName + " " + key})
}

func (r ringStore) Get(key string) (string, error) {
	it, err := r.ring.Get(key)
	if err != nil {
		return "", err
	}
	return string(it.Data), nil
}

func (r ringStore) Delete(key string) error {
	if err := r.ring.Remove(key); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return err
	}
	return nil
}

// Manager keeps connection profiles and an index of their names. It is safe for
// concurrent use.
type Manager struct {
	mu    sync.RWMutex
	store store
}

// NewManager opens the platform credential store.
func NewManager() (*Manager, error) {
	if runtime.GOOS == "darwin" {
		if sb, err := newSecurityBackend(); err == nil {
			return &Manager{store: sb}, nil
		}
	}
	ring, err := openRing()
	if err != nil {
		return nil, err
	}
	return NewWithRing(ring), nil
}

// NewWithRing builds a manager over an already opened keyring.
func NewWithRing(ring keyring.Keyring) *Manager {
	return &Manager{store: ringStore{ring: ring}}
}

var (
	sharedMu sync.Mutex
	shared   *Manager
)

// GetManager returns the process-wide manager, opening it on first success.
func GetManager() (*Manager, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if shared == nil {
		m, err := NewManager()
		if err != nil {
			return nil, err
		}
		shared = m
	}
	return shared, nil
}

// openRing opens a native keyring backend. Plaintext file storage is never used.
func openRing() (keyring.Keyring, error) {
	cfg := keyring.Config{
		ServiceName:             ServiceName,
		PassPrefix:              ServiceName,
		LibSecretCollectionName: ServiceName,
		KWalletAppID:            ServiceName,
		KWalletFolder:           ServiceName,
		WinCredPrefix:           ServiceName,
	}
	switch runtime.GOOS {
	case "darwin":
		cfg.AllowedBackends = []keyring.BackendType{keyring.KeychainBackend, keyring.PassBackend}
	case "windows":
		cfg.AllowedBackends = []keyring.BackendType{keyring.WinCredBackend}
	case "linux", "freebsd", "openbsd", "netbsd":
		cfg.AllowedBackends = []keyring.BackendType{keyring.SecretServiceBackend, keyring.KWalletBackend, keyring.PassBackend}
	default:
		return nil, fmt.Errorf("no credential store available on %s; pass --dsn or set SQLWB_DSN", runtime.GOOS)
	}

	ring, err := keyring.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}
	return ring, nil
}

// ValidateProfileName rejects names that cannot be stored as keychain keys.
func ValidateProfileName(name string) error {
	if name == "" {
		return errors.New("profile name must not be empty")
	}
	if strings.ContainsAny(name, " \t\r\n:/\\") {
		return fmt.Errorf("invalid profile name %q: spaces, ':' and slashes are not allowed", name)
	}
	return nil
}

// SaveProfile stores dsn under name, replacing an existing profile of that name.
func (m *Manager) SaveProfile(name, dsn string) error {
	if err := ValidateProfileName(name); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Set(profilePrefix+name, dsn); err != nil {
		return err
	}
	if names := m.names(); !lo.Contains(names, name) {
		return m.saveNames(append(names, name))
	}
	return nil
}

// LoadProfile returns the DSN stored under name, or the default profile when name is empty.
func (m *Manager) LoadProfile(name string) (string, error) {
	if name == "" {
		name = DefaultProfile
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	dsn, err := m.store.Get(profilePrefix + name)
	if err != nil || dsn == "" {
		return "", fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}
	return dsn, nil
}

// ListProfiles returns the stored profile names in sorted order.
func (m *Manager) ListProfiles() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.names(), nil
}

// DeleteProfile removes a profile. Deleting a missing profile is not an error.
func (m *Manager) DeleteProfile(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Delete(profilePrefix + name); err != nil {
		return err
	}
	return m.saveNames(lo.Without(m.names(), name))
}

// ClearAll removes every stored profile and the index.
func (m *Manager) ClearAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, name := range m.names() {
		errs = append(errs, m.store.Delete(profilePrefix+name))
	}
	errs = append(errs, m.store.Delete(indexKey))
	return errors.Join(errs...)
}

// names reads the newline separated profile index. A missing index is an empty list.
func (m *Manager) names() []string {
	raw, err := m.store.Get(indexKey)
	if err != nil {
		return nil
	}
	names := lo.Uniq(lo.Compact(strings.Split(raw, "\n")))
	slices.Sort(names)
	return names
}

func (m *Manager) saveNames(names []string) error {
	if len(names) == 0 {
		return m.store.Delete(indexKey)
	}
	slices.Sort(names)
	return m.store.Set(indexKey, strings.Join(names, "\n"))
}
