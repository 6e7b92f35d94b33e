// Package tracker runs the achievement engine, the progress recorder and the
// shop on a single goroutine. Every other goroutine reaches them through
// Do or one of the typed helpers.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/metal-pod/backend/internal/achievement"
	"github.com/metal-pod/backend/internal/catalog"
	"github.com/metal-pod/backend/internal/economy"
	"github.com/metal-pod/backend/internal/event"
	"github.com/metal-pod/backend/internal/progress"
	"github.com/metal-pod/backend/internal/save"
)

const commandBuffer = 64

// ErrStopped is returned for commands submitted after Run has returned.
var ErrStopped = errors.New("tracker stopped")

// Options tune the loop and the engine it owns.
type Options struct {
	TickInterval      time.Duration
	AutosaveInterval  time.Duration
	RetriggerInterval time.Duration
	MaxPasses         int
	Feedback          achievement.Feedback
	Logger            *zap.Logger
}

type flusher interface {
	Dirty() bool
	SaveNow() error
}

// Tracker owns the gameplay state. Nothing it holds may be touched outside
// the Run goroutine.
type Tracker struct {
	saves    *save.Manager
	flushers []flusher
	engine   *achievement.Engine
	recorder *progress.Recorder
	wallet   *economy.Wallet
	shop     *economy.Shop
	bus      *event.Bus
	logger   *zap.Logger

	tick     time.Duration
	autosave time.Duration

	cmds chan func()
	done chan struct{}
}

// New wires the engine and its collaborators. unlocks may be the save
// manager itself or a separate ledger; a ledger is flushed alongside the
// save. The engine is not evaluated until Run starts.
func New(saves *save.Manager, unlocks achievement.UnlockStore, defs []achievement.Definition,
	cat *catalog.Catalog, bus *event.Bus, opts Options) *Tracker {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if unlocks == nil {
		unlocks = saves
	}
	if cat == nil {
		cat, _ = catalog.Parse(nil)
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.AutosaveInterval <= 0 {
		opts.AutosaveInterval = 30 * time.Second
	}

	wallet := economy.NewWallet(saves, bus)
	t := &Tracker{
		saves:    saves,
		flushers: []flusher{saves},
		wallet:   wallet,
		shop:     economy.NewShop(saves, wallet, cat, bus),
		recorder: progress.NewRecorder(saves, cat, wallet, bus, logger),
		bus:      bus,
		logger:   logger,
		tick:     opts.TickInterval,
		autosave: opts.AutosaveInterval,
		cmds:     make(chan func(), commandBuffer),
		done:     make(chan struct{}),
	}
	if f, ok := unlocks.(flusher); ok && unlocks != achievement.UnlockStore(saves) {
		t.flushers = append(t.flushers, f)
	}
	t.engine = achievement.NewEngine(defs, achievement.Deps{
		Save:      saves,
		Unlocks:   unlocks,
		Currency:  wallet,
		Upgrades:  cat,
		Cosmetics: cat,
		Bus:       bus,
		Feedback:  opts.Feedback,
		Logger:    logger,
	}, achievement.Options{
		RetriggerInterval: opts.RetriggerInterval,
		MaxPasses:         opts.MaxPasses,
	})
	return t
}

// Run evaluates once, then processes commands and timers until ctx is
// cancelled. It performs a final save before returning.
func (t *Tracker) Run(ctx context.Context) {
	defer close(t.done)
	defer t.engine.Close()

	ticker := time.NewTicker(t.tick)
	defer ticker.Stop()
	saveTicker := time.NewTicker(t.autosave)
	defer saveTicker.Stop()

	t.engine.ReevaluateNow()
	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			t.flush()
			return
		case cmd := <-t.cmds:
			cmd()
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			t.recorder.Advance(dt)
			t.engine.Advance(dt)
		case <-saveTicker.C:
			t.flush()
		}
	}
}

func (t *Tracker) flush() {
	for _, f := range t.flushers {
		if !f.Dirty() {
			continue
		}
		if err := f.SaveNow(); err != nil {
			t.logger.Error("autosave failed", zap.Error(err))
		}
	}
}

// Do runs fn on the tracker goroutine and returns its error. ctx bounds
// only the wait for a queue slot. A panic in fn is returned as an error.
func (t *Tracker) Do(ctx context.Context, fn func() error) error {
	res := make(chan error, 1)
	cmd := func() {
		defer func() {
			if r := recover(); r != nil {
				t.logger.Error("tracker command panicked", zap.Any("panic", r))
				res <- fmt.Errorf("tracker command panicked: %v", r)
			}
		}()
		res <- fn()
	}

	select {
	case t.cmds <- cmd:
	case <-t.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	// Queued commands run unless the loop exits first; callers read what
	// fn captured, so wait for it regardless of ctx.
	select {
	case err := <-res:
		return err
	case <-t.done:
		select {
		case err := <-res:
			return err
		default:
			return ErrStopped
		}
	}
}

// Report applies a gameplay report.
func (t *Tracker) Report(ctx context.Context, rep progress.Report) error {
	return t.Do(ctx, func() error { return t.recorder.Apply(rep) })
}

// Trigger raises a one-shot gameplay trigger.
func (t *Tracker) Trigger(ctx context.Context, name string) error {
	return t.Do(ctx, func() error { return t.engine.Trigger(name) })
}

// BuyUpgrade buys the next level of an upgrade.
func (t *Tracker) BuyUpgrade(ctx context.Context, id string) (int, error) {
	var level int
	err := t.Do(ctx, func() error {
		var err error
		level, err = t.shop.BuyUpgrade(id)
		return err
	})
	return level, err
}

// BuyCosmetic buys a cosmetic.
func (t *Tracker) BuyCosmetic(ctx context.Context, id string) error {
	return t.Do(ctx, func() error { return t.shop.BuyCosmetic(id) })
}

// Equip equips an owned cosmetic.
func (t *Tracker) Equip(ctx context.Context, id string) error {
	return t.Do(ctx, func() error { return t.shop.Equip(id) })
}

// ForceUnlock unlocks an achievement regardless of its condition.
func (t *Tracker) ForceUnlock(ctx context.Context, id string) error {
	return t.Do(ctx, func() error { return t.engine.ForceUnlock(id) })
}

// ForceLock relocks an achievement. It may unlock again at once if its
// condition still holds.
func (t *Tracker) ForceLock(ctx context.Context, id string) error {
	return t.Do(ctx, func() error { return t.engine.ForceLock(id) })
}

// ResetAll clears every achievement.
func (t *Tracker) ResetAll(ctx context.Context) error {
	return t.Do(ctx, func() error {
		t.engine.ResetAll()
		return nil
	})
}

// Reevaluate runs a reevaluation burst and returns the number of passes.
func (t *Tracker) Reevaluate(ctx context.Context) (int, error) {
	var passes int
	err := t.Do(ctx, func() error {
		t.engine.ReevaluateNow()
		passes = t.engine.LastPasses()
		return nil
	})
	return passes, err
}

// Achievements returns every achievement in display order.
func (t *Tracker) Achievements(ctx context.Context) ([]achievement.Status, error) {
	var out []achievement.Status
	err := t.Do(ctx, func() error {
		all := t.engine.Repository().GetAll()
		out = make([]achievement.Status, 0, len(all))
		for _, a := range all {
			out = append(out, a.Status())
		}
		return nil
	})
	return out, err
}

// Achievement returns one achievement.
func (t *Tracker) Achievement(ctx context.Context, id string) (achievement.Status, error) {
	var st achievement.Status
	err := t.Do(ctx, func() error {
		a, ok := t.engine.Repository().GetByID(id)
		if !ok {
			return fmt.Errorf("%w: %s", achievement.ErrUnknownAchievement, id)
		}
		st = a.Status()
		return nil
	})
	return st, err
}

// Save returns a copy of the save document.
func (t *Tracker) Save(ctx context.Context) (*save.Data, error) {
	var out *save.Data
	err := t.Do(ctx, func() error {
		d := t.saves.Data()
		if d == nil {
			return economy.ErrNoSave
		}
		out = d.Clone()
		return nil
	})
	return out, err
}
