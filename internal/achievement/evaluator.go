package achievement

import (
	"math"
	"strings"

	"github.com/metal-pod/backend/internal/save"
)

const (
	goldMedal      = 3
	fastTimeCutoff = 60.0 // seconds
)

// environmentPrefixes identify a course's environment by its id prefix.
var environmentPrefixes = []string{"lava", "ice", "toxic"}

// Evaluator computes progress for a definition. The zero value is usable;
// catalogs are optional and fall back to built-in tables.
type Evaluator struct {
	Upgrades  UpgradeCatalog
	Cosmetics CosmeticCatalog
}

// Evaluate returns the progress of def against data and ctx. It has no side
// effects and returns 0 when def or data is nil.
func (ev Evaluator) Evaluate(def *Definition, data *save.Data, ctx *Context) int {
	if def == nil || data == nil {
		return 0
	}
	if ctx == nil {
		ctx = &Context{}
	}

	switch def.Condition {
	case CoursesCompleted:
		return data.TotalCoursesCompleted

	case GoldMedalsEarned:
		n := 0
		for _, m := range data.BestMedals {
			if m >= goldMedal {
				n++
			}
		}
		return n

	case TotalMedalsEarned:
		n := 0
		for _, m := range data.BestMedals {
			if m > 0 {
				n++
			}
		}
		return max(data.TotalMedals, n)

	case UpgradeLevel:
		if def.UpgradeID != "" {
			return UpgradeLevelOf(data, def.UpgradeID)
		}
		levels := upgradeLevels(data)
		best := 0
		for _, id := range CoreUpgrades {
			best = max(best, levels[id])
		}
		return best

	case AllUpgradesMaxed:
		levels := upgradeLevels(data)
		n := 0
		for _, id := range CoreUpgrades {
			if levels[id] >= ev.maxLevel(id) {
				n++
			}
		}
		return n

	case CosmeticsOwned:
		return len(purchasedCosmetics(data))

	case TotalBoltsEarned:
		return ev.estimateLifetimeBolts(data)

	case CurrentBolts:
		return data.Currency

	case SpecificCoursesCompleted:
		if len(def.Courses) == 0 {
			return data.TotalCoursesCompleted
		}
		n := 0
		for _, id := range def.Courses {
			if data.CompletedCourses[id] {
				n++
			}
		}
		return n

	case TotalDeaths:
		return data.TotalDeaths

	case TotalPlayTime:
		return int(math.Floor(data.TotalPlayTime))

	case CourseReplays:
		return ctx.MaxReplayCount

	case NoDamageCourse:
		return boolProgress(ctx.NoDamageFinish)
	case LowHealthFinish:
		return boolProgress(ctx.LowHealthFinish)
	case FastTime:
		return boolProgress(ctx.FastFinish || hasFastBestTime(data))
	case MaxSpeedReached:
		return boolProgress(ctx.MaxSpeedReached)
	case TutorialSkipped:
		return boolProgress(ctx.TutorialSkipped)

	case AllAchievementsUnlocked:
		return ctx.UnlockedCount

	case EnvironmentsVisited:
		return environmentsVisited(data)

	case SpecificUpgradeMaxed:
		if def.UpgradeID == "" {
			return 0
		}
		return UpgradeLevelOf(data, def.UpgradeID)
	}
	return 0
}

func boolProgress(b bool) int {
	if b {
		return 1
	}
	return 0
}

func hasFastBestTime(data *save.Data) bool {
	for _, t := range data.BestTimes {
		if t > 0 && t < fastTimeCutoff {
			return true
		}
	}
	return false
}

func environmentsVisited(data *save.Data) int {
	seen := make(map[string]bool, len(environmentPrefixes))
	for id, done := range data.CompletedCourses {
		if !done {
			continue
		}
		lower := strings.ToLower(strings.TrimSpace(id))
		for _, p := range environmentPrefixes {
			if strings.HasPrefix(lower, p) {
				seen[p] = true
			}
		}
	}
	return len(seen)
}

// purchasedCosmetics returns the distinct owned cosmetics that are not
// starter items.
func purchasedCosmetics(data *save.Data) []string {
	seen := make(map[string]bool, len(data.OwnedCosmetics))
	var out []string
	for _, id := range data.OwnedCosmetics {
		if starterCosmetics[id] || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// estimateLifetimeBolts approximates total currency ever earned as the
// current balance plus what the owned upgrades and cosmetics would have
// cost. There is no earnings ledger, so this drifts if prices change after
// purchase or currency leaves through other channels.
func (ev Evaluator) estimateLifetimeBolts(data *save.Data) int {
	total := data.Currency
	for id, lvl := range upgradeLevels(data) {
		// Levels past both cost tables are free; a corrupt save may store
		// anything here.
		lvl = min(lvl, max(ev.maxLevel(id), len(fallbackUpgradeCosts[id])))
		for l := 1; l <= lvl; l++ {
			total += ev.levelCost(id, l)
		}
	}
	for _, id := range purchasedCosmetics(data) {
		total += ev.cosmeticPrice(id)
	}
	return max(total, data.Currency)
}
