package achievement

import (
	"errors"

	"github.com/metal-pod/backend/internal/save"
)

// memStore is an in-memory SaveSource + UnlockStore.
type memStore struct {
	data    *save.Data
	dirty   int
	saves   int
	saveErr error
}

func newMemStore() *memStore {
	return &memStore{data: save.New()}
}

func (m *memStore) Data() *save.Data { return m.data }

func (m *memStore) IsUnlocked(id string) bool {
	return m.data != nil && m.data.Achievements[id]
}

func (m *memStore) SetUnlocked(id string, v bool) {
	if m.data != nil {
		m.data.Achievements[id] = v
	}
}

func (m *memStore) RemoveUnlock(id string) {
	if m.data != nil {
		delete(m.data.Achievements, id)
	}
}

func (m *memStore) RangeUnlocks(fn func(string, bool) bool) {
	if m.data == nil {
		return
	}
	for id, v := range m.data.Achievements {
		if !fn(id, v) {
			return
		}
	}
}

func (m *memStore) MarkDirty() { m.dirty++ }

func (m *memStore) SaveNow() error {
	m.saves++
	return m.saveErr
}

var errDiskFull = errors.New("disk full")

type fakeUpgrades struct {
	max   map[string]int
	costs map[string][]int
}

func (f fakeUpgrades) MaxLevel(id string) (int, bool) {
	n, ok := f.max[id]
	return n, ok
}

func (f fakeUpgrades) LevelCost(id string, level int) (int, bool) {
	c, ok := f.costs[id]
	if !ok || level < 1 || level > len(c) {
		return 0, false
	}
	return c[level-1], true
}

type fakeCosmetics map[string]int

func (f fakeCosmetics) Price(id string) (int, bool) {
	p, ok := f[id]
	return p, ok
}

func def(id string, kind ConditionKind, target, reward int) Definition {
	return Definition{ID: id, Title: id, Category: CategoryProgression, Condition: kind, Target: target, Reward: reward}
}

func unlockedIDs(r *Repository) map[string]bool {
	out := make(map[string]bool)
	for _, a := range r.GetUnlocked() {
		out[a.ID()] = true
	}
	return out
}
