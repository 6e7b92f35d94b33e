package save

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

const (
	fileName   = "save.json"
	backupName = "save.json.bak"
	appDirName = "metal-pod"
)

// Manager loads and saves the player's save document and exposes the
// embedded achievement unlock map to the achievement engine.
//
// A Manager is not safe for concurrent use; the tracker goroutine owns it.
type Manager struct {
	dir    string
	backup bool
	logger *zap.Logger

	data  *Data
	dirty bool
}

// NewManager creates a Manager that reads/writes save.json in dir. Pass an
// empty dir to use the default XDG state path. When backup is true the
// previous save file is kept as save.json.bak on every write and used as a
// fallback when the primary file cannot be parsed.
func NewManager(dir string, backup bool, logger *zap.Logger) *Manager {
	if dir == "" {
		dir = DefaultDir()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{dir: dir, backup: backup, logger: logger}
}

// Path returns the full path to the save file.
func (m *Manager) Path() string {
	return filepath.Join(m.dir, fileName)
}

// BackupPath returns the full path to the backup save file.
func (m *Manager) BackupPath() string {
	return filepath.Join(m.dir, backupName)
}

// Data returns the loaded save document, or nil before Load.
func (m *Manager) Data() *Data {
	return m.data
}

// Replace swaps in d as the current document and marks it dirty.
func (m *Manager) Replace(d *Data) {
	d.InitMaps()
	m.data = d
	m.dirty = true
}

// Load reads the save file. A missing file yields a fresh document. A
// corrupt file falls back to the backup when one exists.
func (m *Manager) Load() error {
	d, err := readFile(m.Path())
	switch {
	case err == nil:
		m.data = d
		m.dirty = false
		return nil
	case errors.Is(err, fs.ErrNotExist):
		m.data = New()
		m.dirty = false
		return nil
	}

	if !m.backup {
		return err
	}
	m.logger.Warn("save file unreadable, trying backup", zap.String("path", m.Path()), zap.Error(err))
	d, berr := readFile(m.BackupPath())
	if berr != nil {
		return fmt.Errorf("restoring backup: %w (primary: %v)", berr, err)
	}
	m.data = d
	m.dirty = true
	return nil
}

func readFile(path string) (*Data, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("reading save: %w", err)
	}
	var d Data
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("parsing save: %w", err)
	}
	d.InitMaps()
	migrate(&d)
	return &d, nil
}

// migrate upgrades older documents in place.
func migrate(d *Data) {
	if d.Version < 2 {
		// v1 had no course unlock map; every completed course was unlocked.
		for id, done := range d.CompletedCourses {
			if done {
				d.UnlockedCourses[id] = true
			}
		}
	}
	d.Version = dataVersion
}

// Save writes the document to disk using an atomic temp-file-then-rename
// pattern. The directory is created if it does not already exist.
func (m *Manager) Save() error {
	if m.data == nil {
		return nil
	}
	if err := os.MkdirAll(m.dir, 0o700); err != nil {
		return fmt.Errorf("creating save dir: %w", err)
	}

	m.data.Version = dataVersion
	m.data.LastUpdated = time.Now().UTC()

	raw, err := json.MarshalIndent(m.data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling save: %w", err)
	}
	raw = append(raw, '\n')

	if m.backup {
		if prev, err := os.ReadFile(m.Path()); err == nil {
			if err := os.WriteFile(m.BackupPath(), prev, 0o600); err != nil {
				m.logger.Warn("writing save backup failed", zap.Error(err))
			}
		}
	}

	tmp, err := os.CreateTemp(m.dir, ".save-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, m.Path()); err != nil {
		return fmt.Errorf("renaming save file: %w", err)
	}
	committed = true
	m.dirty = false
	return nil
}

// MarkDirty flags the document as needing a write.
func (m *Manager) MarkDirty() {
	m.dirty = true
}

// Dirty reports whether there are unsaved changes.
func (m *Manager) Dirty() bool {
	return m.dirty
}

// SaveNow writes the document immediately.
func (m *Manager) SaveNow() error {
	return m.Save()
}

// SaveIfDirty writes the document only when it has unsaved changes.
func (m *Manager) SaveIfDirty() error {
	if !m.dirty {
		return nil
	}
	return m.Save()
}

// IsUnlocked reports the persisted unlock flag for id.
func (m *Manager) IsUnlocked(id string) bool {
	if m.data == nil {
		return false
	}
	return m.data.Achievements[id]
}

// SetUnlocked records the unlock flag for id.
func (m *Manager) SetUnlocked(id string, unlocked bool) {
	if m.data == nil {
		return
	}
	m.data.Achievements[id] = unlocked
}

// RemoveUnlock deletes the flag for id.
func (m *Manager) RemoveUnlock(id string) {
	if m.data == nil {
		return
	}
	delete(m.data.Achievements, id)
}

// RangeUnlocks calls fn for every stored flag until fn returns false.
func (m *Manager) RangeUnlocks(fn func(id string, unlocked bool) bool) {
	if m.data == nil {
		return
	}
	for id, v := range m.data.Achievements {
		if !fn(id, v) {
			return
		}
	}
}

// DefaultDir returns ~/.local/state/metal-pod, respecting XDG_STATE_HOME if
// set.
func DefaultDir() string {
	if base := os.Getenv("XDG_STATE_HOME"); base != "" {
		return filepath.Join(base, appDirName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".local", "state", appDirName)
}
