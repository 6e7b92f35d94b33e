package achievement

import (
	"strings"

	"github.com/metal-pod/backend/internal/save"
)

// UpgradeCatalog answers read-only questions about purchasable upgrades.
type UpgradeCatalog interface {
	// MaxLevel returns the highest purchasable level of an upgrade.
	MaxLevel(upgradeID string) (int, bool)
	// LevelCost returns the price of buying the given level (1-based).
	LevelCost(upgradeID string, level int) (int, bool)
}

// CosmeticCatalog answers price lookups for cosmetics.
type CosmeticCatalog interface {
	Price(cosmeticID string) (int, bool)
}

// CoreUpgrades are the upgrade ids considered by UpgradeLevel (without an
// explicit id) and AllUpgradesMaxed.
var CoreUpgrades = []string{"speed", "handling", "shield", "boost"}

const (
	defaultMaxUpgradeLevel = 5
	legacyShieldID         = "armor"
	shieldID               = "shield"
)

// fallbackUpgradeCosts is used when no catalog is wired or the catalog does
// not know an upgrade. Index i is the cost of level i+1.
var fallbackUpgradeCosts = map[string][]int{
	"speed":    {100, 250, 500, 1000, 2000},
	"handling": {100, 250, 500, 1000, 2000},
	"shield":   {150, 300, 600, 1200, 2400},
	"boost":    {200, 400, 800, 1600, 3200},
}

// starterCosmetics are granted to every new save and excluded from
// CosmeticsOwned.
var starterCosmetics = map[string]bool{
	"default":       true,
	"default_decal": true,
}

// CanonicalUpgradeID lower-cases and trims id and maps the legacy "armor"
// id to "shield".
func CanonicalUpgradeID(id string) string {
	n := strings.ToLower(strings.TrimSpace(id))
	if n == legacyShieldID {
		return shieldID
	}
	return n
}

// upgradeLevels folds the save's upgrade map onto canonical ids, keeping the
// highest level when several stored keys collapse to the same id.
func upgradeLevels(data *save.Data) map[string]int {
	out := make(map[string]int, len(data.UpgradeLevels))
	for id, lvl := range data.UpgradeLevels {
		c := CanonicalUpgradeID(id)
		out[c] = max(out[c], lvl)
	}
	return out
}

// UpgradeLevelOf returns the stored level of an upgrade using
// case-insensitive, alias-aware matching.
func UpgradeLevelOf(data *save.Data, upgradeID string) int {
	if data == nil {
		return 0
	}
	return upgradeLevels(data)[CanonicalUpgradeID(upgradeID)]
}

func (ev Evaluator) maxLevel(id string) int {
	if ev.Upgrades != nil {
		if lvl, ok := ev.Upgrades.MaxLevel(id); ok && lvl > 0 {
			return lvl
		}
	}
	return defaultMaxUpgradeLevel
}

func (ev Evaluator) levelCost(id string, level int) int {
	if ev.Upgrades != nil {
		if c, ok := ev.Upgrades.LevelCost(id, level); ok {
			return c
		}
	}
	costs := fallbackUpgradeCosts[id]
	if level < 1 || level > len(costs) {
		return 0
	}
	return costs[level-1]
}

func (ev Evaluator) cosmeticPrice(id string) int {
	if ev.Cosmetics == nil {
		return 0
	}
	p, ok := ev.Cosmetics.Price(id)
	if !ok {
		return 0
	}
	return p
}
