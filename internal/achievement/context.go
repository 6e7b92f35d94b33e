package achievement

// Context holds per-pass facts that are not stored in the save document.
// It is rebuilt at the start of every evaluation pass.
type Context struct {
	NoDamageFinish  bool
	LowHealthFinish bool
	FastFinish      bool
	MaxSpeedReached bool
	TutorialSkipped bool

	// MaxReplayCount is the highest (completions - 1) over courses finished
	// during this process lifetime.
	MaxReplayCount int

	// UnlockedCount and TotalCount exclude the meta-achievement.
	UnlockedCount int
	TotalCount    int
}

// oneShotKinds maps each one-shot flag to the condition kind whose unlock
// makes the flag durable across restarts.
var oneShotKinds = []ConditionKind{
	NoDamageCourse,
	LowHealthFinish,
	FastTime,
	MaxSpeedReached,
	TutorialSkipped,
}

// session is the in-memory state that feeds Context. Nothing here is
// persisted.
type session struct {
	flags       map[ConditionKind]bool
	completions map[string]int
}

func newSession() *session {
	return &session{
		flags:       make(map[ConditionKind]bool),
		completions: make(map[string]int),
	}
}

func (s *session) reset() {
	clear(s.flags)
	clear(s.completions)
}

func (s *session) recordCompletion(courseID string) {
	if courseID == "" {
		return
	}
	s.completions[courseID]++
}

func (s *session) maxReplays() int {
	best := 0
	for _, n := range s.completions {
		best = max(best, n-1)
	}
	return best
}

// buildContext snapshots the session and the repository. Each one-shot flag
// is the trigger OR "an achievement of that kind is already unlocked".
func buildContext(s *session, repo *Repository) Context {
	flag := func(k ConditionKind) bool {
		return s.flags[k] || repo.anyUnlocked(k)
	}
	unlocked, total := repo.nonMetaCounts()
	return Context{
		NoDamageFinish:  flag(NoDamageCourse),
		LowHealthFinish: flag(LowHealthFinish),
		FastFinish:      flag(FastTime),
		MaxSpeedReached: flag(MaxSpeedReached),
		TutorialSkipped: flag(TutorialSkipped),
		MaxReplayCount:  s.maxReplays(),
		UnlockedCount:   unlocked,
		TotalCount:      total,
	}
}
