// Package unlockdb keeps achievement unlock flags in a SQLite ledger that
// also records when each achievement was unlocked.
package unlockdb

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/metal-pod/backend/internal/achievement"
)

// Unlock is one ledger row.
type Unlock struct {
	ID         string `gorm:"primaryKey"`
	Unlocked   bool
	UnlockedAt time.Time `gorm:"index"`
	UpdatedAt  time.Time
}

func (Unlock) TableName() string { return "achievement_unlocks" }

// Store caches the ledger in memory. Mutations are buffered until SaveNow
// writes them in one transaction.
type Store struct {
	mu      sync.Mutex
	db      *gorm.DB
	logger  *zap.Logger
	rows    map[string]Unlock
	changed map[string]struct{}
	dirty   bool
	now     func() time.Time
}

var _ achievement.UnlockStore = (*Store)(nil)

// Open opens (creating if needed) the ledger at path.
func Open(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening unlock ledger %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("opening unlock ledger %s: %w", path, err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Unlock{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrating unlock ledger: %w", err)
	}

	var rows []Unlock
	if err := db.Find(&rows).Error; err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("reading unlock ledger: %w", err)
	}

	s := &Store{
		db:      db,
		logger:  log,
		rows:    make(map[string]Unlock, len(rows)),
		changed: make(map[string]struct{}),
		now:     time.Now,
	}
	for _, r := range rows {
		s.rows[r.ID] = r
	}
	log.Debug("unlock ledger opened", zap.String("path", path), zap.Int("rows", len(rows)))
	return s, nil
}

// Close releases the database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Len returns the number of stored flags.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func (s *Store) IsUnlocked(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[id].Unlocked
}

// SetUnlocked stores a flag. The unlock time is stamped on the transition
// to unlocked and cleared when locked again.
func (s *Store) SetUnlocked(id string, unlocked bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[id]
	if ok && row.Unlocked == unlocked {
		return
	}
	row.ID = id
	row.Unlocked = unlocked
	if unlocked {
		row.UnlockedAt = s.now().UTC()
	} else {
		row.UnlockedAt = time.Time{}
	}
	s.rows[id] = row
	s.changed[id] = struct{}{}
}

func (s *Store) RemoveUnlock(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[id]; !ok {
		return
	}
	delete(s.rows, id)
	s.changed[id] = struct{}{}
}

// RangeUnlocks calls fn for every stored flag in id order until fn returns
// false.
func (s *Store) RangeUnlocks(fn func(id string, unlocked bool) bool) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.rows))
	flags := make(map[string]bool, len(s.rows))
	for id, r := range s.rows {
		ids = append(ids, id)
		flags[id] = r.Unlocked
	}
	s.mu.Unlock()

	sort.Strings(ids)
	for _, id := range ids {
		if !fn(id, flags[id]) {
			return
		}
	}
}

func (s *Store) MarkDirty() {
	s.mu.Lock()
	s.dirty = true
	s.mu.Unlock()
}

// Dirty reports whether unflushed changes exist.
func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty || len(s.changed) > 0
}

// SaveNow writes every changed flag in a single transaction.
func (s *Store) SaveNow() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.changed) == 0 {
		s.dirty = false
		return nil
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		for id := range s.changed {
			row, ok := s.rows[id]
			if !ok {
				if err := tx.Delete(&Unlock{}, "id = ?", id).Error; err != nil {
					return err
				}
				continue
			}
			if err := tx.Save(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("writing unlock ledger: %w", err)
	}
	s.logger.Debug("unlock ledger flushed", zap.Int("rows", len(s.changed)))
	s.changed = make(map[string]struct{})
	s.dirty = false
	return nil
}

// History returns unlocked achievements, oldest unlock first.
func (s *Store) History() ([]Unlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []Unlock
	err := s.db.Where("unlocked = ?", true).Order("unlocked_at asc").Order("id asc").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("reading unlock history: %w", err)
	}
	return rows, nil
}

// Import copies flags from another store when the ledger is empty, so that
// switching backends keeps earlier unlocks. It returns the number of flags
// copied and persists them.
func (s *Store) Import(src interface {
	RangeUnlocks(fn func(id string, unlocked bool) bool)
}) (int, error) {
	if s.Len() > 0 {
		return 0, nil
	}
	n := 0
	src.RangeUnlocks(func(id string, unlocked bool) bool {
		s.SetUnlocked(id, unlocked)
		n++
		return true
	})
	if n == 0 {
		return 0, nil
	}
	if err := s.SaveNow(); err != nil {
		return 0, err
	}
	s.logger.Info("imported unlock flags into ledger", zap.Int("count", n))
	return n, nil
}
