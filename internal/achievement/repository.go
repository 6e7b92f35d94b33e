package achievement

import (
	"errors"
	"sort"

	"github.com/samber/lo"
)

// ErrUnknownAchievement is returned when an id is not in the repository.
var ErrUnknownAchievement = errors.New("unknown achievement")

// Repository owns the runtime achievements keyed by id. Iteration order is
// the authored definition order.
type Repository struct {
	ordered []*Achievement
	byID    map[string]*Achievement
}

func newRepository(defs []*Definition) *Repository {
	r := &Repository{
		ordered: make([]*Achievement, 0, len(defs)),
		byID:    make(map[string]*Achievement, len(defs)),
	}
	for _, d := range defs {
		if _, dup := r.byID[d.ID]; dup {
			continue
		}
		a := newAchievement(d)
		r.ordered = append(r.ordered, a)
		r.byID[d.ID] = a
	}
	return r
}

// GetByID returns the achievement with the given id.
func (r *Repository) GetByID(id string) (*Achievement, bool) {
	a, ok := r.byID[id]
	return a, ok
}

// GetAll returns every achievement sorted by category, then title.
func (r *Repository) GetAll() []*Achievement {
	out := make([]*Achievement, len(r.ordered))
	copy(out, r.ordered)
	sort.SliceStable(out, func(i, j int) bool {
		ci, cj := out[i].def.Category.rank(), out[j].def.Category.rank()
		if ci != cj {
			return ci < cj
		}
		if out[i].def.Category != out[j].def.Category {
			return out[i].def.Category < out[j].def.Category
		}
		return out[i].def.Title < out[j].def.Title
	})
	return out
}

// GetUnlocked returns unlocked achievements in GetAll order.
func (r *Repository) GetUnlocked() []*Achievement {
	return lo.Filter(r.GetAll(), func(a *Achievement, _ int) bool { return a.unlocked })
}

// GetLocked returns locked achievements in GetAll order.
func (r *Repository) GetLocked() []*Achievement {
	return lo.Filter(r.GetAll(), func(a *Achievement, _ int) bool { return !a.unlocked })
}

// GetByCategory returns the achievements of one category sorted by title.
func (r *Repository) GetByCategory(c Category) []*Achievement {
	return lo.Filter(r.GetAll(), func(a *Achievement, _ int) bool { return a.def.Category == c })
}

// Len returns the number of achievements, meta included.
func (r *Repository) Len() int {
	return len(r.ordered)
}

// UnlockedCount returns the number of unlocked achievements, meta included.
func (r *Repository) UnlockedCount() int {
	return lo.CountBy(r.ordered, func(a *Achievement) bool { return a.unlocked })
}

// nonMetaCounts returns unlocked and total counts excluding every
// meta-achievement.
func (r *Repository) nonMetaCounts() (unlocked, total int) {
	for _, a := range r.ordered {
		if a.IsMeta() {
			continue
		}
		total++
		if a.unlocked {
			unlocked++
		}
	}
	return unlocked, total
}

func (r *Repository) metas() []*Achievement {
	return lo.Filter(r.ordered, func(a *Achievement, _ int) bool { return a.IsMeta() })
}

func (r *Repository) anyUnlocked(kind ConditionKind) bool {
	return lo.ContainsBy(r.ordered, func(a *Achievement) bool {
		return a.unlocked && a.def.Condition == kind
	})
}
