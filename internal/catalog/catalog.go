// Package catalog holds the shop's upgrades, cosmetics and course order.
package catalog

import (
	"fmt"
	"os"
	"strings"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/metal-pod/backend/internal/achievement"
	"github.com/metal-pod/backend/internal/assets"
)

// Upgrade is a purchasable hovercraft upgrade. Costs[i] is the price of
// level i+1, so the max level is len(Costs).
type Upgrade struct {
	ID    string `yaml:"id" json:"id"`
	Name  string `yaml:"name" json:"name"`
	Costs []int  `yaml:"costs" json:"costs"`
}

// MaxLevel returns the highest purchasable level.
func (u Upgrade) MaxLevel() int {
	return len(u.Costs)
}

// Cosmetic is a purchasable visual item.
type Cosmetic struct {
	ID    string `yaml:"id" json:"id"`
	Name  string `yaml:"name" json:"name"`
	Price int    `yaml:"price" json:"price"`
}

type file struct {
	Upgrades  []Upgrade  `yaml:"upgrades"`
	Cosmetics []Cosmetic `yaml:"cosmetics"`
	Courses   []string   `yaml:"courses"`
}

// Catalog answers upgrade and cosmetic lookups. It satisfies
// achievement.UpgradeCatalog and achievement.CosmeticCatalog.
type Catalog struct {
	upgrades  map[string]Upgrade
	cosmetics map[string]Cosmetic
	order     []string
	looks     []string
	courses   []string
}

var (
	_ achievement.UpgradeCatalog  = (*Catalog)(nil)
	_ achievement.CosmeticCatalog = (*Catalog)(nil)
)

// Parse decodes and validates a catalog document. Upgrade ids are stored in
// canonical form, so "Armor" and "shield" address the same entry.
func Parse(raw []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parsing shop catalog: %w", err)
	}

	c := &Catalog{
		upgrades:  make(map[string]Upgrade, len(f.Upgrades)),
		cosmetics: make(map[string]Cosmetic, len(f.Cosmetics)),
	}
	for _, u := range f.Upgrades {
		id := achievement.CanonicalUpgradeID(u.ID)
		if id == "" {
			return nil, fmt.Errorf("upgrade with empty id")
		}
		if _, dup := c.upgrades[id]; dup {
			return nil, fmt.Errorf("duplicate upgrade %q", id)
		}
		if len(u.Costs) == 0 {
			return nil, fmt.Errorf("upgrade %q has no levels", id)
		}
		if lo.SomeBy(u.Costs, func(cost int) bool { return cost < 0 }) {
			return nil, fmt.Errorf("upgrade %q has a negative cost", id)
		}
		u.ID = id
		c.upgrades[id] = u
		c.order = append(c.order, id)
	}
	for _, cm := range f.Cosmetics {
		cm.ID = strings.TrimSpace(cm.ID)
		if cm.ID == "" {
			return nil, fmt.Errorf("cosmetic with empty id")
		}
		if _, dup := c.cosmetics[cm.ID]; dup {
			return nil, fmt.Errorf("duplicate cosmetic %q", cm.ID)
		}
		if cm.Price < 0 {
			return nil, fmt.Errorf("cosmetic %q has a negative price", cm.ID)
		}
		c.cosmetics[cm.ID] = cm
		c.looks = append(c.looks, cm.ID)
	}
	c.courses = lo.Uniq(lo.Compact(lo.Map(f.Courses, func(s string, _ int) string {
		return strings.TrimSpace(s)
	})))
	return c, nil
}

// Load reads a catalog file.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading shop catalog: %w", err)
	}
	return Parse(raw)
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(assets.Shop())
}

// MaxLevel implements achievement.UpgradeCatalog.
func (c *Catalog) MaxLevel(upgradeID string) (int, bool) {
	u, ok := c.upgrades[achievement.CanonicalUpgradeID(upgradeID)]
	if !ok {
		return 0, false
	}
	return u.MaxLevel(), true
}

// LevelCost implements achievement.UpgradeCatalog.
func (c *Catalog) LevelCost(upgradeID string, level int) (int, bool) {
	u, ok := c.upgrades[achievement.CanonicalUpgradeID(upgradeID)]
	if !ok || level < 1 || level > len(u.Costs) {
		return 0, false
	}
	return u.Costs[level-1], true
}

// Price implements achievement.CosmeticCatalog.
func (c *Catalog) Price(cosmeticID string) (int, bool) {
	cm, ok := c.cosmetics[cosmeticID]
	if !ok {
		return 0, false
	}
	return cm.Price, true
}

// Upgrade looks up an upgrade by (alias-aware) id.
func (c *Catalog) Upgrade(id string) (Upgrade, bool) {
	u, ok := c.upgrades[achievement.CanonicalUpgradeID(id)]
	return u, ok
}

// Cosmetic looks up a cosmetic by id.
func (c *Catalog) Cosmetic(id string) (Cosmetic, bool) {
	cm, ok := c.cosmetics[id]
	return cm, ok
}

// Upgrades returns upgrades in authored order.
func (c *Catalog) Upgrades() []Upgrade {
	return lo.Map(c.order, func(id string, _ int) Upgrade { return c.upgrades[id] })
}

// Cosmetics returns cosmetics in authored order.
func (c *Catalog) Cosmetics() []Cosmetic {
	return lo.Map(c.looks, func(id string, _ int) Cosmetic { return c.cosmetics[id] })
}

// Courses returns course ids in unlock order.
func (c *Catalog) Courses() []string {
	out := make([]string, len(c.courses))
	copy(out, c.courses)
	return out
}

// NextCourse returns the course unlocked by completing courseID.
func (c *Catalog) NextCourse(courseID string) (string, bool) {
	i := lo.IndexOf(c.courses, courseID)
	if i < 0 || i+1 >= len(c.courses) {
		return "", false
	}
	return c.courses[i+1], true
}
