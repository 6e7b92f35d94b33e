package achievement

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Category groups related achievements in listings.
type Category string

const (
	CategoryProgression Category = "progression"
	CategoryMedals      Category = "medals"
	CategoryUpgrades    Category = "upgrades"
	CategoryEconomy     Category = "economy"
	CategoryExploration Category = "exploration"
	CategorySkill       Category = "skill"
	CategoryDedication  Category = "dedication"
	CategorySecret      Category = "secret"
)

// categoryOrder is the listing order used by Repository.GetAll.
var categoryOrder = map[Category]int{
	CategoryProgression: 0,
	CategoryMedals:      1,
	CategoryUpgrades:    2,
	CategoryEconomy:     3,
	CategoryExploration: 4,
	CategorySkill:       5,
	CategoryDedication:  6,
	CategorySecret:      7,
}

func (c Category) rank() int {
	if r, ok := categoryOrder[c]; ok {
		return r
	}
	return len(categoryOrder)
}

// ConditionKind selects how progress is computed for a definition.
type ConditionKind string

const (
	CoursesCompleted         ConditionKind = "courses_completed"
	GoldMedalsEarned         ConditionKind = "gold_medals_earned"
	TotalMedalsEarned        ConditionKind = "total_medals_earned"
	UpgradeLevel             ConditionKind = "upgrade_level"
	AllUpgradesMaxed         ConditionKind = "all_upgrades_maxed"
	CosmeticsOwned           ConditionKind = "cosmetics_owned"
	TotalBoltsEarned         ConditionKind = "total_bolts_earned"
	CurrentBolts             ConditionKind = "current_bolts"
	SpecificCoursesCompleted ConditionKind = "specific_courses_completed"
	TotalDeaths              ConditionKind = "total_deaths"
	TotalPlayTime            ConditionKind = "total_play_time"
	CourseReplays            ConditionKind = "course_replays"
	NoDamageCourse           ConditionKind = "no_damage_course"
	LowHealthFinish          ConditionKind = "low_health_finish"
	FastTime                 ConditionKind = "fast_time"
	MaxSpeedReached          ConditionKind = "max_speed_reached"
	TutorialSkipped          ConditionKind = "tutorial_skipped"
	AllAchievementsUnlocked  ConditionKind = "all_achievements_unlocked"
	EnvironmentsVisited      ConditionKind = "environments_visited"
	SpecificUpgradeMaxed     ConditionKind = "specific_upgrade_maxed"
)

var knownKinds = map[ConditionKind]bool{
	CoursesCompleted: true, GoldMedalsEarned: true, TotalMedalsEarned: true,
	UpgradeLevel: true, AllUpgradesMaxed: true, CosmeticsOwned: true,
	TotalBoltsEarned: true, CurrentBolts: true, SpecificCoursesCompleted: true,
	TotalDeaths: true, TotalPlayTime: true, CourseReplays: true,
	NoDamageCourse: true, LowHealthFinish: true, FastTime: true,
	MaxSpeedReached: true, TutorialSkipped: true, AllAchievementsUnlocked: true,
	EnvironmentsVisited: true, SpecificUpgradeMaxed: true,
}

// Known reports whether k is a condition kind the evaluator understands.
// Unknown kinds are kept but always score zero.
func (k ConditionKind) Known() bool {
	return knownKinds[k]
}

// Definition is an authored, immutable achievement description.
type Definition struct {
	ID          string        `yaml:"id"`
	Title       string        `yaml:"title"`
	Description string        `yaml:"description"`
	Category    Category      `yaml:"category"`
	Condition   ConditionKind `yaml:"condition"`
	Target      int           `yaml:"target"`
	Courses     []string      `yaml:"courses,omitempty"`
	UpgradeID   string        `yaml:"upgrade,omitempty"`
	Hidden      bool          `yaml:"hidden,omitempty"`
	Reward      int           `yaml:"reward,omitempty"`
}

// IsMeta reports whether d is the "unlock everything else" achievement.
func (d *Definition) IsMeta() bool {
	return d.Condition == AllAchievementsUnlocked
}

type definitionFile struct {
	Achievements []Definition `yaml:"achievements"`
}

// ParseDefinitions decodes a YAML document with a top-level "achievements"
// list. The result is not normalized.
func ParseDefinitions(raw []byte) ([]Definition, error) {
	var f definitionFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parsing achievement definitions: %w", err)
	}
	return f.Achievements, nil
}

// LoadDefinitions reads and parses a definitions file.
func LoadDefinitions(path string) ([]Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading achievement definitions: %w", err)
	}
	return ParseDefinitions(raw)
}

// Issue describes a problem found while normalizing definitions.
type Issue struct {
	Index   int
	ID      string
	Message string
	// Dropped is true when the definition was skipped entirely.
	Dropped bool
}

func (i Issue) String() string {
	id := i.ID
	if id == "" {
		id = "<empty>"
	}
	return fmt.Sprintf("definition #%d (%s): %s", i.Index, id, i.Message)
}

// Normalize returns copies of the valid, unique definitions in authored
// order. Definitions with an empty id are skipped, duplicate ids keep the
// first occurrence, targets are raised to at least 1 and negative rewards
// are zeroed. Every adjustment is reported as an Issue.
func Normalize(defs []Definition) ([]*Definition, []Issue) {
	out := make([]*Definition, 0, len(defs))
	seen := make(map[string]bool, len(defs))
	var issues []Issue

	for i, d := range defs {
		d.ID = strings.TrimSpace(d.ID)
		if d.ID == "" {
			issues = append(issues, Issue{Index: i, Message: "empty id, skipped", Dropped: true})
			continue
		}
		if seen[d.ID] {
			issues = append(issues, Issue{Index: i, ID: d.ID, Message: "duplicate id, skipped", Dropped: true})
			continue
		}
		seen[d.ID] = true

		if d.Target < 1 {
			issues = append(issues, Issue{Index: i, ID: d.ID, Message: fmt.Sprintf("target %d raised to 1", d.Target)})
			d.Target = 1
		}
		if d.Reward < 0 {
			issues = append(issues, Issue{Index: i, ID: d.ID, Message: fmt.Sprintf("negative reward %d zeroed", d.Reward)})
			d.Reward = 0
		}
		if !d.Condition.Known() {
			issues = append(issues, Issue{Index: i, ID: d.ID, Message: fmt.Sprintf("unknown condition %q never progresses", d.Condition)})
		}
		if _, ok := categoryOrder[d.Category]; !ok {
			issues = append(issues, Issue{Index: i, ID: d.ID, Message: fmt.Sprintf("unknown category %q", d.Category)})
		}

		d.UpgradeID = strings.TrimSpace(d.UpgradeID)
		if len(d.Courses) > 0 {
			courses := make([]string, 0, len(d.Courses))
			for _, c := range d.Courses {
				if c = strings.TrimSpace(c); c != "" {
					courses = append(courses, c)
				}
			}
			d.Courses = courses
		}

		def := d
		out = append(out, &def)
	}
	return out, issues
}
