// Package config models the keyed configuration store spec §6
// describes as an external collaborator: "keyed get/set of u16, i32,
// u64, string". The production NVS store lives outside the core; this
// package defines the Store interface the rest of the core reads and
// writes through, plus two implementations useful off-device: an
// in-memory Store for tests, and a YAML-file-backed Store for bench
// rigs (grounded on the YAML config loaders in
// chimera-pool-chimera-pool-core and jontk-slurm-client).
package config

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Store is the keyed configuration collaborator from spec §6.
type Store interface {
	GetU16(key string, def uint16) uint16
	SetU16(key string, v uint16) error
	GetI32(key string, def int32) int32
	SetI32(key string, v int32) error
	GetU64(key string, def uint64) uint64
	SetU64(key string, v uint64) error
	GetString(key string, def string) string
	SetString(key string, v string) error
}

// Well-known keys read by the core, per spec §6.
const (
	KeyPoolURL                 = "stratumURL"
	KeyPoolPort                = "stratumPort"
	KeyPoolUser                = "stratumUser"
	KeyPoolPass                = "stratumPassword"
	KeyPoolTLS                 = "stratumIsTLS"
	KeyPoolSuggestedDiff       = "stratumSuggestedDiff"
	KeyPoolExtranonceSubscribe = "stratumExtranonceSubscribe"

	KeyFallbackPoolURL                 = "fallbackStratumURL"
	KeyFallbackPoolPort                = "fallbackStratumPort"
	KeyFallbackPoolUser                = "fallbackStratumUser"
	KeyFallbackPoolPass                = "fallbackStratumPassword"
	KeyFallbackPoolTLS                 = "fallbackStratumIsTLS"
	KeyFallbackPoolSuggestedDiff       = "fallbackStratumSuggestedDiff"
	KeyFallbackPoolExtranonceSubscribe = "fallbackStratumExtranonceSubscribe"

	KeyCoreVoltageMV    = "asicVoltage"
	KeyFrequencyMHz     = "asicFrequency"
	KeyFanSpeedPct      = "fanSpeed"
	KeyAutoFanSpeed     = "autoFanSpeed"
	KeyMinFanSpeedPct   = "minFanSpeed"
	KeyTargetTempC      = "temptarget"
	KeyAutotune         = "autotune"
	KeyAutotunePreset   = "autotunePreset"
	KeyOverheatMode     = "overheatMode"
	KeyOverheatLifetime = "overheatCount"
	KeyBestDifficulty   = "bestDiff"
	KeyStatsSampleSecs  = "statsFrequency"
	KeySv2AuthorityKey  = "sv2AuthorityPubkey"
)

// MemStore is a process-local Store, used by tests and as the
// fallback when no NVS collaborator is wired (bench/simulator mode).
type MemStore struct {
	mu   sync.RWMutex
	ints map[string]int64
	strs map[string]string
}

// NewMemStore builds an empty in-memory Store.
func NewMemStore() *MemStore {
	return &MemStore{ints: make(map[string]int64), strs: make(map[string]string)}
}

func (m *MemStore) GetU16(key string, def uint16) uint16 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.ints[key]; ok {
		return uint16(v)
	}
	return def
}

func (m *MemStore) SetU16(key string, v uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ints[key] = int64(v)
	return nil
}

func (m *MemStore) GetI32(key string, def int32) int32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.ints[key]; ok {
		return int32(v)
	}
	return def
}

func (m *MemStore) SetI32(key string, v int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ints[key] = int64(v)
	return nil
}

func (m *MemStore) GetU64(key string, def uint64) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.ints[key]; ok {
		return uint64(v)
	}
	return def
}

func (m *MemStore) SetU64(key string, v uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ints[key] = int64(v)
	return nil
}

func (m *MemStore) GetString(key string, def string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.strs[key]; ok {
		return v
	}
	return def
}

func (m *MemStore) SetString(key string, v string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strs[key] = v
	return nil
}

// fileDoc is the on-disk shape of the YAML-backed bench store.
type fileDoc struct {
	Ints map[string]int64  `yaml:"ints"`
	Strs map[string]string `yaml:"strings"`
}

// FileStore persists to a YAML file on every Set call. Intended for
// bench rigs and local development, standing in for the NVS
// collaborator the production firmware uses.
type FileStore struct {
	mu   sync.Mutex
	path string
	mem  *MemStore
}

// LoadFileStore reads path if it exists (a missing file starts empty).
func LoadFileStore(path string) (*FileStore, error) {
	fs := &FileStore{path: path, mem: NewMemStore()}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fs, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	fs.mem.mu.Lock()
	for k, v := range doc.Ints {
		fs.mem.ints[k] = v
	}
	for k, v := range doc.Strs {
		fs.mem.strs[k] = v
	}
	fs.mem.mu.Unlock()
	return fs, nil
}

func (f *FileStore) persist() error {
	f.mem.mu.RLock()
	doc := fileDoc{Ints: make(map[string]int64, len(f.mem.ints)), Strs: make(map[string]string, len(f.mem.strs))}
	for k, v := range f.mem.ints {
		doc.Ints[k] = v
	}
	for k, v := range f.mem.strs {
		doc.Strs[k] = v
	}
	f.mem.mu.RUnlock()

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return os.WriteFile(f.path, data, 0o644)
}

func (f *FileStore) GetU16(key string, def uint16) uint16    { return f.mem.GetU16(key, def) }
func (f *FileStore) GetI32(key string, def int32) int32      { return f.mem.GetI32(key, def) }
func (f *FileStore) GetU64(key string, def uint64) uint64    { return f.mem.GetU64(key, def) }
func (f *FileStore) GetString(key, def string) string        { return f.mem.GetString(key, def) }

func (f *FileStore) SetU16(key string, v uint16) error {
	if err := f.mem.SetU16(key, v); err != nil {
		return err
	}
	return f.persist()
}

func (f *FileStore) SetI32(key string, v int32) error {
	if err := f.mem.SetI32(key, v); err != nil {
		return err
	}
	return f.persist()
}

func (f *FileStore) SetU64(key string, v uint64) error {
	if err := f.mem.SetU64(key, v); err != nil {
		return err
	}
	return f.persist()
}

func (f *FileStore) SetString(key, v string) error {
	if err := f.mem.SetString(key, v); err != nil {
		return err
	}
	return f.persist()
}
