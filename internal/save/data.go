package save

import (
	"slices"
	"time"
)

// dataVersion is bumped when the schema changes. Load uses it to decide
// whether a migration is needed.
const dataVersion = 2

// Data is the persistent player save document. The achievement engine reads
// it and writes only Currency (reward fallback) and Achievements.
type Data struct {
	Version int `json:"version"`

	Currency int `json:"currency"`

	// Per-id progression. Keys are stored as the game wrote them; lookups
	// that need case-insensitive matching normalize at read time.
	UpgradeLevels    map[string]int     `json:"upgradeLevels"`
	BestTimes        map[string]float64 `json:"bestTimes"`
	BestMedals       map[string]int     `json:"bestMedals"`
	CompletedCourses map[string]bool    `json:"completedCourses"`
	UnlockedCourses  map[string]bool    `json:"unlockedCourses"`

	// Aggregate counters
	TotalMedals           int     `json:"totalMedals"`
	TotalCoursesCompleted int     `json:"totalCoursesCompleted"`
	TotalDeaths           int     `json:"totalDeaths"`
	TotalPlayTime         float64 `json:"totalPlayTime"` // seconds

	OwnedCosmetics   []string `json:"ownedCosmetics"`
	EquippedCosmetic string   `json:"equippedCosmetic,omitempty"`

	// Achievements is the embedded achievement unlock map.
	Achievements map[string]bool `json:"achievements"`

	LastUpdated time.Time `json:"lastUpdated"`
}

// New returns a Data with initialized maps, the starter cosmetics and the
// current version.
func New() *Data {
	d := &Data{Version: dataVersion}
	d.InitMaps()
	d.OwnedCosmetics = []string{"default", "default_decal"}
	return d
}

// InitMaps ensures all map fields are non-nil after deserialization.
func (d *Data) InitMaps() {
	if d.UpgradeLevels == nil {
		d.UpgradeLevels = make(map[string]int)
	}
	if d.BestTimes == nil {
		d.BestTimes = make(map[string]float64)
	}
	if d.BestMedals == nil {
		d.BestMedals = make(map[string]int)
	}
	if d.CompletedCourses == nil {
		d.CompletedCourses = make(map[string]bool)
	}
	if d.UnlockedCourses == nil {
		d.UnlockedCourses = make(map[string]bool)
	}
	if d.Achievements == nil {
		d.Achievements = make(map[string]bool)
	}
}

// OwnsCosmetic reports whether id is in the owned cosmetics list.
func (d *Data) OwnsCosmetic(id string) bool {
	return slices.Contains(d.OwnedCosmetics, id)
}

// Clone returns a deep copy of d.
func (d *Data) Clone() *Data {
	cp := *d
	cp.UpgradeLevels = cloneMap(d.UpgradeLevels)
	cp.BestTimes = cloneMap(d.BestTimes)
	cp.BestMedals = cloneMap(d.BestMedals)
	cp.CompletedCourses = cloneMap(d.CompletedCourses)
	cp.UnlockedCourses = cloneMap(d.UnlockedCourses)
	cp.Achievements = cloneMap(d.Achievements)
	cp.OwnedCosmetics = slices.Clone(d.OwnedCosmetics)
	return &cp
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
