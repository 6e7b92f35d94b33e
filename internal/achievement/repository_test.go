package achievement

import "testing"

func TestRepository_GetAllSortedByCategoryThenTitle(t *testing.T) {
	defs := []*Definition{
		{ID: "z", Title: "Zeta", Category: CategoryMedals, Condition: GoldMedalsEarned, Target: 1},
		{ID: "b", Title: "Beta", Category: CategoryProgression, Condition: CoursesCompleted, Target: 1},
		{ID: "a", Title: "Alpha", Category: CategoryMedals, Condition: GoldMedalsEarned, Target: 1},
		{ID: "q", Title: "Quirk", Category: Category("mystery"), Condition: CoursesCompleted, Target: 1},
		{ID: "c", Title: "Aardvark", Category: CategoryProgression, Condition: CoursesCompleted, Target: 1},
	}
	r := newRepository(defs)
	var got []string
	for _, a := range r.GetAll() {
		got = append(got, a.ID())
	}
	want := []string{"c", "b", "a", "z", "q"}
	if len(got) != len(want) {
		t.Fatalf("GetAll = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("GetAll = %v, want %v", got, want)
		}
	}
}

func TestRepository_Filters(t *testing.T) {
	r := newRepository([]*Definition{
		{ID: "a", Title: "A", Category: CategoryMedals, Condition: GoldMedalsEarned, Target: 1},
		{ID: "b", Title: "B", Category: CategorySkill, Condition: FastTime, Target: 1},
		{ID: "m", Title: "M", Category: CategorySecret, Condition: AllAchievementsUnlocked, Target: 1},
	})
	a, _ := r.GetByID("a")
	a.unlocked = true

	if n := len(r.GetUnlocked()); n != 1 {
		t.Errorf("GetUnlocked = %d, want 1", n)
	}
	if n := len(r.GetLocked()); n != 2 {
		t.Errorf("GetLocked = %d, want 2", n)
	}
	if n := len(r.GetByCategory(CategorySkill)); n != 1 {
		t.Errorf("GetByCategory(skill) = %d, want 1", n)
	}
	if r.Len() != 3 || r.UnlockedCount() != 1 {
		t.Errorf("Len/UnlockedCount = %d/%d, want 3/1", r.Len(), r.UnlockedCount())
	}
	unlocked, total := r.nonMetaCounts()
	if unlocked != 1 || total != 2 {
		t.Errorf("nonMetaCounts = %d/%d, want 1/2", unlocked, total)
	}
	if !r.anyUnlocked(GoldMedalsEarned) || r.anyUnlocked(FastTime) {
		t.Error("anyUnlocked mismatch")
	}
	if _, ok := r.GetByID("missing"); ok {
		t.Error("GetByID(missing) should report false")
	}
}

func TestAchievement_HiddenStatus(t *testing.T) {
	a := newAchievement(&Definition{ID: "s", Title: "Secret Pilot", Description: "Skip it", Hidden: true, Target: 4})
	a.progress = 2
	st := a.Status()
	if st.Title != "???" || st.Description != "" {
		t.Errorf("locked hidden status = %+v", st)
	}
	if a.Percent() != 0.5 {
		t.Errorf("Percent = %v, want 0.5", a.Percent())
	}
	a.unlocked = true
	if a.Status().Title != "Secret Pilot" {
		t.Error("title should be revealed once unlocked")
	}
	if a.Percent() != 1 {
		t.Errorf("Percent = %v, want 1", a.Percent())
	}
}
