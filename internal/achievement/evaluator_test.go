package achievement

import (
	"math"
	"testing"

	"github.com/metal-pod/backend/internal/save"
)

func TestEvaluate_NilInputs(t *testing.T) {
	var ev Evaluator
	d := def("a", CoursesCompleted, 1, 0)
	if got := ev.Evaluate(nil, save.New(), nil); got != 0 {
		t.Errorf("nil definition = %d, want 0", got)
	}
	if got := ev.Evaluate(&d, nil, nil); got != 0 {
		t.Errorf("nil save = %d, want 0", got)
	}
}

func TestEvaluate_Counters(t *testing.T) {
	data := save.New()
	data.TotalCoursesCompleted = 7
	data.TotalDeaths = 12
	data.TotalPlayTime = 3599.9
	data.Currency = 640

	tests := []struct {
		kind ConditionKind
		want int
	}{
		{CoursesCompleted, 7},
		{TotalDeaths, 12},
		{TotalPlayTime, 3599},
		{CurrentBolts, 640},
		{ConditionKind("unheard_of"), 0},
	}
	var ev Evaluator
	for _, tt := range tests {
		d := def("x", tt.kind, 1, 0)
		if got := ev.Evaluate(&d, data, &Context{}); got != tt.want {
			t.Errorf("Evaluate(%s) = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestEvaluate_GoldMedalsCountsOnlyGold(t *testing.T) {
	data := save.New()
	data.BestMedals = map[string]int{"lava_1": 3, "lava_2": 2, "ice_1": 3, "ice_2": 0, "toxic_1": 1}
	d := def("g", GoldMedalsEarned, 1, 0)
	if got := (Evaluator{}).Evaluate(&d, data, nil); got != 2 {
		t.Errorf("GoldMedalsEarned = %d, want 2", got)
	}
}

func TestEvaluate_TotalMedals(t *testing.T) {
	data := save.New()
	data.BestMedals = map[string]int{"a": 1, "b": 2, "c": 0}
	d := def("m", TotalMedalsEarned, 1, 0)

	data.TotalMedals = 0
	if got := (Evaluator{}).Evaluate(&d, data, nil); got != 2 {
		t.Errorf("recount = %d, want 2", got)
	}
	data.TotalMedals = 9
	if got := (Evaluator{}).Evaluate(&d, data, nil); got != 9 {
		t.Errorf("persisted counter = %d, want 9", got)
	}
}

func TestEvaluate_UpgradeLevel(t *testing.T) {
	data := save.New()
	data.UpgradeLevels = map[string]int{"Speed": 2, " boost ": 4, "handling": 1}

	named := def("u", UpgradeLevel, 1, 0)
	named.UpgradeID = "SPEED"
	if got := (Evaluator{}).Evaluate(&named, data, nil); got != 2 {
		t.Errorf("named UpgradeLevel = %d, want 2", got)
	}

	anyCore := def("u2", UpgradeLevel, 1, 0)
	if got := (Evaluator{}).Evaluate(&anyCore, data, nil); got != 4 {
		t.Errorf("max core UpgradeLevel = %d, want 4", got)
	}
}

func TestEvaluate_ShieldArmorAlias(t *testing.T) {
	tests := []struct {
		name   string
		levels map[string]int
		lookup string
		want   int
	}{
		{"armor only", map[string]int{"armor": 3}, "shield", 3},
		{"shield higher", map[string]int{"armor": 2, "shield": 4}, "shield", 4},
		{"armor higher", map[string]int{"Armor": 5, "shield": 1}, "Shield", 5},
		{"lookup by legacy id", map[string]int{"shield": 2}, "armor", 2},
		{"unrelated", map[string]int{"speed": 5}, "shield", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := save.New()
			data.UpgradeLevels = tt.levels
			d := def("s", SpecificUpgradeMaxed, 5, 0)
			d.UpgradeID = tt.lookup
			if got := (Evaluator{}).Evaluate(&d, data, nil); got != tt.want {
				t.Errorf("SpecificUpgradeMaxed(%s) = %d, want %d", tt.lookup, got, tt.want)
			}
		})
	}
}

func TestEvaluate_SpecificUpgradeMaxedWithoutID(t *testing.T) {
	data := save.New()
	data.UpgradeLevels["speed"] = 5
	d := def("s", SpecificUpgradeMaxed, 5, 0)
	if got := (Evaluator{}).Evaluate(&d, data, nil); got != 0 {
		t.Errorf("SpecificUpgradeMaxed without id = %d, want 0", got)
	}
}

func TestEvaluate_AllUpgradesMaxed(t *testing.T) {
	data := save.New()
	data.UpgradeLevels = map[string]int{"speed": 5, "handling": 3, "armor": 5, "boost": 4}
	d := def("all", AllUpgradesMaxed, 4, 0)

	if got := (Evaluator{}).Evaluate(&d, data, nil); got != 2 {
		t.Errorf("default max 5: got %d, want 2", got)
	}

	ev := Evaluator{Upgrades: fakeUpgrades{max: map[string]int{"handling": 3, "boost": 4}}}
	if got := ev.Evaluate(&d, data, nil); got != 4 {
		t.Errorf("catalog max: got %d, want 4", got)
	}
}

func TestEvaluate_CosmeticsOwnedExcludesStarters(t *testing.T) {
	data := save.New()
	data.OwnedCosmetics = []string{"default", "default_decal", "flames", "chrome", "flames"}
	d := def("c", CosmeticsOwned, 1, 0)
	if got := (Evaluator{}).Evaluate(&d, data, nil); got != 2 {
		t.Errorf("CosmeticsOwned = %d, want 2", got)
	}

	data.OwnedCosmetics = []string{"default"}
	if got := (Evaluator{}).Evaluate(&d, data, nil); got != 0 {
		t.Errorf("starter only = %d, want 0", got)
	}
}

func TestEvaluate_TotalBoltsEarned(t *testing.T) {
	data := save.New()
	data.Currency = 75
	data.UpgradeLevels = map[string]int{"speed": 2, "armor": 1}
	data.OwnedCosmetics = []string{"default", "flames"}
	d := def("t", TotalBoltsEarned, 1, 0)

	// Fallback tables: speed 100+250, shield 150, no cosmetic prices.
	if got := (Evaluator{}).Evaluate(&d, data, nil); got != 75+350+150 {
		t.Errorf("fallback estimate = %d, want %d", got, 75+350+150)
	}

	ev := Evaluator{
		Upgrades:  fakeUpgrades{costs: map[string][]int{"speed": {10, 20}}},
		Cosmetics: fakeCosmetics{"flames": 300, "default": 999},
	}
	// speed from catalog (30), shield from fallback (150), flames 300; the
	// starter "default" is never counted as spend.
	if got := ev.Evaluate(&d, data, nil); got != 75+30+150+300 {
		t.Errorf("catalog estimate = %d, want %d", got, 75+30+150+300)
	}
}

func TestEvaluate_TotalBoltsIgnoresImpossibleLevels(t *testing.T) {
	data := save.New()
	data.UpgradeLevels = map[string]int{"speed": math.MaxInt, "mystery": math.MaxInt}
	d := def("t", TotalBoltsEarned, 1, 0)

	want := 100 + 250 + 500 + 1000 + 2000
	if got := (Evaluator{}).Evaluate(&d, data, nil); got != want {
		t.Errorf("estimate = %d, want %d", got, want)
	}
}

func TestEvaluate_TotalBoltsFloorIsBalance(t *testing.T) {
	data := save.New()
	data.Currency = 500
	d := def("t", TotalBoltsEarned, 1, 0)
	if got := (Evaluator{}).Evaluate(&d, data, nil); got != 500 {
		t.Errorf("estimate = %d, want 500", got)
	}
}

func TestEvaluate_SpecificCoursesCompleted(t *testing.T) {
	data := save.New()
	data.TotalCoursesCompleted = 5
	data.CompletedCourses = map[string]bool{"lava_1": true, "lava_2": false, "ice_1": true}

	d := def("s", SpecificCoursesCompleted, 2, 0)
	d.Courses = []string{"lava_1", "lava_2", "lava_3"}
	if got := (Evaluator{}).Evaluate(&d, data, nil); got != 1 {
		t.Errorf("listed courses = %d, want 1", got)
	}

	d.Courses = nil
	if got := (Evaluator{}).Evaluate(&d, data, nil); got != 5 {
		t.Errorf("no list falls back to total = %d, want 5", got)
	}
}

func TestEvaluate_EnvironmentsVisited(t *testing.T) {
	tests := []struct {
		name      string
		completed map[string]bool
		want      int
	}{
		{"none", map[string]bool{}, 0},
		{"one env twice", map[string]bool{"lava_1": true, "LAVA_2": true}, 1},
		{"incomplete ignored", map[string]bool{"ice_1": false, "toxic_1": true}, 1},
		{"all three", map[string]bool{"Lava_1": true, "ice_4": true, "toxic_2": true, "tutorial": true}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := save.New()
			data.CompletedCourses = tt.completed
			d := def("e", EnvironmentsVisited, 3, 0)
			got := (Evaluator{}).Evaluate(&d, data, nil)
			if got != tt.want {
				t.Errorf("EnvironmentsVisited = %d, want %d", got, tt.want)
			}
			if got < 0 || got > 3 {
				t.Errorf("EnvironmentsVisited = %d out of range", got)
			}
		})
	}
}

func TestEvaluate_ContextFlags(t *testing.T) {
	data := save.New()
	ctx := &Context{NoDamageFinish: true, MaxSpeedReached: true, MaxReplayCount: 4, UnlockedCount: 6}

	tests := []struct {
		kind ConditionKind
		want int
	}{
		{NoDamageCourse, 1},
		{LowHealthFinish, 0},
		{FastTime, 0},
		{MaxSpeedReached, 1},
		{TutorialSkipped, 0},
		{CourseReplays, 4},
		{AllAchievementsUnlocked, 6},
	}
	for _, tt := range tests {
		d := def("f", tt.kind, 1, 0)
		if got := (Evaluator{}).Evaluate(&d, data, ctx); got != tt.want {
			t.Errorf("Evaluate(%s) = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestEvaluate_FastTimeFromBestTimes(t *testing.T) {
	data := save.New()
	data.BestTimes = map[string]float64{"lava_1": 61.0, "ice_1": 0}
	d := def("fast", FastTime, 1, 0)
	if got := (Evaluator{}).Evaluate(&d, data, nil); got != 0 {
		t.Errorf("no sub-60 time = %d, want 0", got)
	}
	data.BestTimes["ice_2"] = 59.99
	if got := (Evaluator{}).Evaluate(&d, data, nil); got != 1 {
		t.Errorf("sub-60 best time = %d, want 1", got)
	}
}

func TestCanonicalUpgradeID(t *testing.T) {
	tests := map[string]string{
		" Speed ": "speed",
		"ARMOR":   "shield",
		"shield":  "shield",
		"":        "",
	}
	for in, want := range tests {
		if got := CanonicalUpgradeID(in); got != want {
			t.Errorf("CanonicalUpgradeID(%q) = %q, want %q", in, got, want)
		}
	}
}
