package store

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"wgwatchdog/internal/model"
)

// validIface matches Linux interface names (IFNAMSIZ-1, no path separators).
var validIface = regexp.MustCompile(`^[A-Za-z0-9_.@-]{1,15}$`)

// FileStore keeps one YAML file per interface under Dir. Pointing Dir at a
// tmpfs such as /run makes the cooldown reset on reboot.
type FileStore struct {
	Dir string
}

// NewFileStore returns a store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

// Path returns the state file for iface.
func (s *FileStore) Path(iface string) string {
	return filepath.Join(s.Dir, iface+".restart.yaml")
}

// Load reads the record for iface. ok is false when no record exists.
func (s *FileStore) Load(iface string) (model.RestartRecord, bool, error) {
	if !validIface.MatchString(iface) {
		return model.RestartRecord{}, false, fmt.Errorf("invalid interface name %q", iface)
	}
	data, err := os.ReadFile(s.Path(iface))
	if err != nil {
		if os.IsNotExist(err) {
			return model.RestartRecord{}, false, nil
		}
		return model.RestartRecord{}, false, err
	}

	var rec model.RestartRecord
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return model.RestartRecord{}, false, fmt.Errorf("parse %s: %w", s.Path(iface), err)
	}
	if rec.Interface == "" {
		rec.Interface = iface
	}
	return rec, true, nil
}

// Save overwrites the record for rec.Interface atomically.
func (s *FileStore) Save(rec model.RestartRecord) error {
	if !validIface.MatchString(rec.Interface) {
		return fmt.Errorf("invalid interface name %q", rec.Interface)
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Unix(rec.LastRestart, 0).UTC()
	}
	data, err := yaml.Marshal(&rec)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return err
	}
	return atomicWriteFile(s.Path(rec.Interface), data, 0o644)
}

func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Memory is an in-process store for tests and dry runs.
type Memory struct {
	mu      sync.Mutex
	records map[string]model.RestartRecord
	writes  int
}

func NewMemory() *Memory {
	return &Memory{records: map[string]model.RestartRecord{}}
}

func (m *Memory) Load(iface string) (model.RestartRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[iface]
	return rec, ok, nil
}

func (m *Memory) Save(rec model.RestartRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.Interface] = rec
	m.writes++
	return nil
}

// Writes reports how many times Save was called.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}
