package achievement

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/metal-pod/backend/internal/event"
	"github.com/metal-pod/backend/internal/save"
)

const defaultRetriggerInterval = 5 * time.Second

// UnlockStore is the durable id -> unlocked map the engine writes through.
// MarkDirty and SaveNow are called synchronously after every unlock,
// force-lock or reset; durability and retries are the store's concern.
type UnlockStore interface {
	IsUnlocked(id string) bool
	SetUnlocked(id string, unlocked bool)
	RemoveUnlock(id string)
	RangeUnlocks(fn func(id string, unlocked bool) bool)
	MarkDirty()
	SaveNow() error
}

// SaveSource provides the current save document, or nil when none is
// loaded.
type SaveSource interface {
	Data() *save.Data
}

// CurrencyService grants achievement rewards.
type CurrencyService interface {
	AddCurrency(amount int)
}

// Feedback receives a fire-and-forget call per unlock for haptics and
// accessibility announcements.
type Feedback interface {
	AchievementUnlocked(a *Achievement)
}

// Deps are the collaborators wired at composition time. Only Save is
// required for evaluation to do anything; every other dependency degrades
// to a no-op or a documented fallback when nil.
type Deps struct {
	Save      SaveSource
	Unlocks   UnlockStore
	Currency  CurrencyService
	Upgrades  UpgradeCatalog
	Cosmetics CosmeticCatalog
	Bus       *event.Bus
	Feedback  Feedback
	Logger    *zap.Logger
}

// Options tune the engine's timers and limits.
type Options struct {
	// RetriggerInterval is how much Advance time elapses between periodic
	// reevaluations. Zero means 5s.
	RetriggerInterval time.Duration
	// MaxPasses caps the passes of one reevaluation burst. Zero means one
	// more than the number of achievements, which unlocking can never
	// legitimately exceed.
	MaxPasses int
}

// Engine evaluates achievements to a fixed point. It is not safe for
// concurrent use: all calls must come from one goroutine.
type Engine struct {
	repo    *Repository
	eval    Evaluator
	session *session
	deps    Deps
	logger  *zap.Logger

	retrigger      time.Duration
	sinceRetrigger time.Duration
	maxPasses      int

	evaluating bool
	pending    bool
	lastPasses int

	unsubscribe func()
}

// NewEngine normalizes defs, seeds one Achievement per valid definition from
// the persisted unlock flags and subscribes to gameplay notifications on
// deps.Bus. It does not evaluate; call ReevaluateNow once the host is ready.
func NewEngine(defs []Definition, deps Deps, opts Options) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	normalized, issues := Normalize(defs)
	for _, is := range issues {
		logger.Warn("achievement definition adjusted",
			zap.Int("index", is.Index),
			zap.String("achievement", is.ID),
			zap.String("issue", is.Message),
			zap.Bool("dropped", is.Dropped))
	}

	e := &Engine{
		repo:      newRepository(normalized),
		eval:      Evaluator{Upgrades: deps.Upgrades, Cosmetics: deps.Cosmetics},
		session:   newSession(),
		deps:      deps,
		logger:    logger,
		retrigger: opts.RetriggerInterval,
		maxPasses: opts.MaxPasses,
	}
	if e.retrigger <= 0 {
		e.retrigger = defaultRetriggerInterval
	}
	if e.maxPasses <= 0 {
		e.maxPasses = e.repo.Len() + 1
	}

	e.seed()

	if deps.Bus != nil {
		e.unsubscribe = deps.Bus.Subscribe(e.handle,
			event.CourseCompleted,
			event.CurrencyEarned,
			event.CurrencyChanged,
			event.UpgradePurchased,
			event.CosmeticEquipped,
			event.CosmeticPurchased,
			event.CourseUnlocked,
			event.PlayerDestroyed,
		)
	}
	return e
}

// seed restores unlock state from the store. Previously unlocked
// achievements start at full progress.
func (e *Engine) seed() {
	if e.deps.Unlocks == nil {
		return
	}
	_, total := e.repo.nonMetaCounts()
	for _, a := range e.repo.ordered {
		if a.IsMeta() {
			a.target = max(a.def.Target, total)
		}
		if e.deps.Unlocks.IsUnlocked(a.ID()) {
			a.unlocked = true
			a.progress = a.target
		}
	}
}

// Close detaches the engine from the bus.
func (e *Engine) Close() {
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
}

// Repository exposes the runtime achievements for queries.
func (e *Engine) Repository() *Repository {
	return e.repo
}

// LastPasses returns the number of evaluation passes the most recent
// reevaluation burst ran.
func (e *Engine) LastPasses() int {
	return e.lastPasses
}

func (e *Engine) handle(ev event.Event) {
	if ev.Type == event.CourseCompleted {
		e.session.recordCompletion(ev.CourseID)
	}
	e.RequestReevaluation()
}

// RequestReevaluation runs evaluation passes until one produces no unlock.
// A request that arrives while a burst is running only marks the burst to
// run again.
func (e *Engine) RequestReevaluation() {
	if e.evaluating {
		e.pending = true
		return
	}
	e.evaluating = true
	defer func() { e.evaluating = false }()

	passes := 0
	for {
		e.pending = false
		data := e.data()
		if data == nil {
			break
		}
		if passes >= e.maxPasses {
			e.logger.Error("achievement reevaluation did not converge",
				zap.Int("passes", passes),
				zap.Int("achievements", e.repo.Len()))
			break
		}
		passes++
		e.pass(data)
		if !e.pending {
			break
		}
	}
	e.pending = false
	e.lastPasses = passes
}

// ReevaluateNow is the debug entrypoint for RequestReevaluation.
func (e *Engine) ReevaluateNow() {
	e.RequestReevaluation()
}

func (e *Engine) pass(data *save.Data) {
	ctx := buildContext(e.session, e.repo)

	for _, a := range e.repo.ordered {
		if a.IsMeta() || a.unlocked {
			continue
		}
		a.progress = max(e.eval.Evaluate(a.def, data, &ctx), 0)
		if a.progress >= a.target {
			e.unlock(a)
		}
	}

	// The meta-achievement sees the counts after this pass's unlocks.
	unlocked, total := e.repo.nonMetaCounts()
	for _, m := range e.repo.metas() {
		if m.unlocked {
			continue
		}
		m.target = max(m.def.Target, total)
		m.progress = unlocked
		if m.progress >= m.target {
			e.unlock(m)
		}
	}
}

// unlock latches a, grants its reward, persists and notifies. Callers check
// a.unlocked first.
func (e *Engine) unlock(a *Achievement) {
	a.unlocked = true
	a.progress = a.target
	e.pending = true

	if e.deps.Unlocks != nil {
		e.deps.Unlocks.SetUnlocked(a.ID(), true)
	}
	e.grantReward(a)
	e.persist()

	e.logger.Info("achievement unlocked",
		zap.String("achievement", a.ID()),
		zap.Int("reward", a.def.Reward))

	if e.deps.Feedback != nil {
		e.deps.Feedback.AchievementUnlocked(a)
	}
	e.deps.Bus.Publish(event.Event{
		Type:          event.AchievementUnlocked,
		AchievementID: a.ID(),
		Title:         a.def.Title,
		Reward:        a.def.Reward,
	})
}

func (e *Engine) grantReward(a *Achievement) {
	amount := a.def.Reward
	if amount <= 0 {
		return
	}
	if e.deps.Currency != nil {
		e.deps.Currency.AddCurrency(amount)
		return
	}
	data := e.data()
	if data == nil {
		e.logger.Debug("achievement reward dropped, no save loaded",
			zap.String("achievement", a.ID()),
			zap.Int("reward", amount))
		return
	}
	data.Currency += amount
	if e.deps.Unlocks != nil {
		e.deps.Unlocks.MarkDirty()
	}
	e.deps.Bus.Publish(event.Event{Type: event.CurrencyChanged, Total: data.Currency})
}

// persist flushes the unlock store. Failures and panics stay inside the
// store adapter.
func (e *Engine) persist() {
	if e.deps.Unlocks == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("unlock store panicked", zap.Error(fmt.Errorf("%v", r)))
		}
	}()
	e.deps.Unlocks.MarkDirty()
	if err := e.deps.Unlocks.SaveNow(); err != nil {
		e.logger.Error("saving achievement state failed", zap.Error(err))
	}
}

func (e *Engine) data() *save.Data {
	if e.deps.Save == nil {
		return nil
	}
	return e.deps.Save.Data()
}

// guarded runs fn with the re-entrancy guard held so that reevaluation
// requests raised inside fn are coalesced into the pending flag.
func (e *Engine) guarded(fn func()) {
	if e.evaluating {
		fn()
		return
	}
	e.evaluating = true
	fn()
	e.evaluating = false
}

// ForceUnlock unlocks id without evaluating its condition, then reevaluates
// so dependent achievements can follow.
func (e *Engine) ForceUnlock(id string) error {
	a, ok := e.repo.GetByID(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAchievement, id)
	}
	if a.unlocked {
		return nil
	}
	e.guarded(func() { e.unlock(a) })
	e.RequestReevaluation()
	return nil
}

// ForceLock clears id's unlock and reevaluates. If the condition still
// holds the achievement unlocks again immediately.
func (e *Engine) ForceLock(id string) error {
	a, ok := e.repo.GetByID(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAchievement, id)
	}
	e.guarded(func() {
		a.unlocked = false
		a.progress = 0
		if e.deps.Unlocks != nil {
			e.deps.Unlocks.RemoveUnlock(id)
		}
		e.persist()
	})
	e.logger.Info("achievement locked", zap.String("achievement", id))
	e.RequestReevaluation()
	return nil
}

// ResetAll clears every achievement, every persisted unlock flag and the
// session counters, then reevaluates.
func (e *Engine) ResetAll() {
	e.guarded(func() {
		for _, a := range e.repo.ordered {
			a.unlocked = false
			a.progress = 0
			a.target = a.def.Target
		}
		if e.deps.Unlocks != nil {
			var ids []string
			e.deps.Unlocks.RangeUnlocks(func(id string, _ bool) bool {
				ids = append(ids, id)
				return true
			})
			for _, id := range ids {
				e.deps.Unlocks.RemoveUnlock(id)
			}
		}
		e.session.reset()
		e.persist()
	})
	e.logger.Info("achievements reset")
	e.RequestReevaluation()
}

// GetProgress returns the current progress of id, or 0 if unknown.
func (e *Engine) GetProgress(id string) int {
	if a, ok := e.repo.GetByID(id); ok {
		return a.progress
	}
	return 0
}

// IsUnlocked reports whether id is unlocked.
func (e *Engine) IsUnlocked(id string) bool {
	a, ok := e.repo.GetByID(id)
	return ok && a.unlocked
}

// Advance moves the engine's clock forward by dt and reevaluates whenever
// the retrigger interval elapses, catching slow-changing counters such as
// play time.
func (e *Engine) Advance(dt time.Duration) {
	if dt <= 0 {
		return
	}
	e.sinceRetrigger += dt
	if e.sinceRetrigger < e.retrigger {
		return
	}
	e.sinceRetrigger = 0
	e.RequestReevaluation()
}

func (e *Engine) setFlag(kind ConditionKind) {
	e.session.flags[kind] = true
	e.RequestReevaluation()
}

// NoDamageFinish records a course finished without taking damage.
func (e *Engine) NoDamageFinish() { e.setFlag(NoDamageCourse) }

// LowHealthFinish records a course finished on low health.
func (e *Engine) LowHealthFinish() { e.setFlag(LowHealthFinish) }

// FastFinish records a course finished under the fast-time cutoff.
func (e *Engine) FastFinish() { e.setFlag(FastTime) }

// MaxSpeedReached records the hovercraft hitting top speed.
func (e *Engine) MaxSpeedReached() { e.setFlag(MaxSpeedReached) }

// TutorialSkipped records the player skipping the tutorial.
func (e *Engine) TutorialSkipped() { e.setFlag(TutorialSkipped) }

// Trigger names accepted by Trigger.
const (
	TriggerNoDamage   = "no_damage"
	TriggerLowHealth  = "low_health"
	TriggerFastFinish = "fast_finish"
	TriggerMaxSpeed   = "max_speed"
	TriggerTutorial   = "tutorial_skipped"
)

// ErrUnknownTrigger is returned by Trigger for unrecognised names.
var ErrUnknownTrigger = errors.New("unknown trigger")

// Trigger fires a one-shot trigger by name.
func (e *Engine) Trigger(name string) error {
	switch name {
	case TriggerNoDamage:
		e.NoDamageFinish()
	case TriggerLowHealth:
		e.LowHealthFinish()
	case TriggerFastFinish:
		e.FastFinish()
	case TriggerMaxSpeed:
		e.MaxSpeedReached()
	case TriggerTutorial:
		e.TutorialSkipped()
	default:
		return fmt.Errorf("%w: %s", ErrUnknownTrigger, name)
	}
	return nil
}
