package achievement

// Achievement pairs a shared Definition with mutable progress. Only the
// Engine mutates it.
type Achievement struct {
	def      *Definition
	progress int
	unlocked bool
	// target is def.Target, except for the meta-achievement where it tracks
	// the effective target (never less than the number of other achievements).
	target int
}

func newAchievement(def *Definition) *Achievement {
	return &Achievement{def: def, target: def.Target}
}

func (a *Achievement) Definition() *Definition { return a.def }
func (a *Achievement) ID() string              { return a.def.ID }
func (a *Achievement) Progress() int           { return a.progress }
func (a *Achievement) Unlocked() bool          { return a.unlocked }
func (a *Achievement) Target() int             { return a.target }
func (a *Achievement) IsMeta() bool            { return a.def.IsMeta() }

// Percent returns progress as a fraction of target in [0, 1].
func (a *Achievement) Percent() float64 {
	if a.unlocked {
		return 1
	}
	if a.target <= 0 {
		return 0
	}
	return min(max(float64(a.progress)/float64(a.target), 0), 1)
}

// DisplayTitle hides the title of hidden achievements until they unlock.
func (a *Achievement) DisplayTitle() string {
	if a.def.Hidden && !a.unlocked {
		return "???"
	}
	return a.def.Title
}

// Status is a read-only snapshot suitable for JSON responses.
type Status struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    Category `json:"category"`
	Hidden      bool     `json:"hidden"`
	Progress    int      `json:"progress"`
	Target      int      `json:"target"`
	Unlocked    bool     `json:"unlocked"`
	Reward      int      `json:"reward"`
}

// Status returns a snapshot of a. Hidden, locked achievements have their
// description withheld.
func (a *Achievement) Status() Status {
	desc := a.def.Description
	if a.def.Hidden && !a.unlocked {
		desc = ""
	}
	return Status{
		ID:          a.def.ID,
		Title:       a.DisplayTitle(),
		Description: desc,
		Category:    a.def.Category,
		Hidden:      a.def.Hidden,
		Progress:    a.progress,
		Target:      a.target,
		Unlocked:    a.unlocked,
		Reward:      a.def.Reward,
	}
}
