package tracker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metal-pod/backend/internal/achievement"
	"github.com/metal-pod/backend/internal/catalog"
	"github.com/metal-pod/backend/internal/event"
	"github.com/metal-pod/backend/internal/progress"
	"github.com/metal-pod/backend/internal/save"
	"github.com/metal-pod/backend/internal/unlockdb"
)

var testDefs = []achievement.Definition{
	{ID: "first_clear", Title: "First Clear", Category: achievement.CategoryProgression, Condition: achievement.CoursesCompleted, Target: 1, Reward: 100},
	{ID: "rich", Title: "Rich", Category: achievement.CategoryEconomy, Condition: achievement.CurrentBolts, Target: 150},
	{ID: "speedy", Title: "Speedy", Category: achievement.CategorySkill, Condition: achievement.MaxSpeedReached, Target: 1},
}

const testShop = `
upgrades:
  - id: speed
    costs: [100, 200]
cosmetics:
  - id: flames
    price: 50
courses: [tutorial, lava_1]
`

type running struct {
	tr     *Tracker
	saves  *save.Manager
	bus    *event.Bus
	cancel context.CancelFunc
	done   chan struct{}
}

func (r *running) stop() {
	r.cancel()
	<-r.done
}

func start(t *testing.T, unlocks achievement.UnlockStore, opts Options) *running {
	t.Helper()
	saves := save.NewManager(t.TempDir(), false, nil)
	require.NoError(t, saves.Load())
	if unlocks == nil {
		unlocks = saves
	}
	cat, err := catalog.Parse([]byte(testShop))
	require.NoError(t, err)

	bus := event.NewBus()
	tr := New(saves, unlocks, testDefs, cat, bus, opts)

	ctx, cancel := context.WithCancel(context.Background())
	r := &running{tr: tr, saves: saves, bus: bus, cancel: cancel, done: make(chan struct{})}
	go func() {
		tr.Run(ctx)
		close(r.done)
	}()
	t.Cleanup(r.stop)
	return r
}

func statusOf(t *testing.T, tr *Tracker, id string) achievement.Status {
	t.Helper()
	st, err := tr.Achievement(context.Background(), id)
	require.NoError(t, err)
	return st
}

func TestTracker_ReportChainsUnlocks(t *testing.T) {
	r := start(t, nil, Options{})
	ctx := context.Background()

	// Handlers run on the tracker goroutine, so unlocked is only read via Do.
	var unlocked []string
	r.bus.Subscribe(func(ev event.Event) { unlocked = append(unlocked, ev.AchievementID) },
		event.AchievementUnlocked)

	err := r.tr.Report(ctx, progress.Report{Kind: progress.KindCourseCompleted, CourseID: "tutorial", Time: 30, Medal: 2, Bolts: 50})
	require.NoError(t, err)

	assert.True(t, statusOf(t, r.tr, "first_clear").Unlocked)
	assert.True(t, statusOf(t, r.tr, "rich").Unlocked)
	assert.False(t, statusOf(t, r.tr, "speedy").Unlocked)

	data, err := r.tr.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, 150, data.Currency)
	assert.True(t, data.UnlockedCourses["lava_1"])

	require.NoError(t, r.tr.Do(ctx, func() error {
		assert.Equal(t, []string{"first_clear", "rich"}, unlocked)
		return nil
	}))
}

func TestTracker_FinalSaveOnShutdown(t *testing.T) {
	r := start(t, nil, Options{AutosaveInterval: time.Hour})
	ctx := context.Background()

	require.NoError(t, r.tr.Report(ctx, progress.Report{Kind: progress.KindPlayerDestroyed}))
	r.stop()

	reloaded := save.NewManager(filepath.Dir(r.saves.Path()), false, nil)
	require.NoError(t, reloaded.Load())
	assert.Equal(t, 1, reloaded.Data().TotalDeaths)
}

func TestTracker_Shop(t *testing.T) {
	r := start(t, nil, Options{})
	ctx := context.Background()

	_, err := r.tr.BuyUpgrade(ctx, "speed")
	require.Error(t, err)

	require.NoError(t, r.tr.Report(ctx, progress.Report{Kind: progress.KindCourseCompleted, CourseID: "tutorial", Bolts: 100}))
	// 100 earned + 100 reward
	level, err := r.tr.BuyUpgrade(ctx, "speed")
	require.NoError(t, err)
	assert.Equal(t, 1, level)

	require.NoError(t, r.tr.BuyCosmetic(ctx, "flames"))
	require.NoError(t, r.tr.Equip(ctx, "flames"))

	data, err := r.tr.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, 50, data.Currency)
	assert.Equal(t, "flames", data.EquippedCosmetic)
}

func TestTracker_TriggersAndDebug(t *testing.T) {
	r := start(t, nil, Options{})
	ctx := context.Background()

	require.NoError(t, r.tr.Trigger(ctx, achievement.TriggerMaxSpeed))
	assert.True(t, statusOf(t, r.tr, "speedy").Unlocked)
	assert.ErrorIs(t, r.tr.Trigger(ctx, "warp"), achievement.ErrUnknownTrigger)

	require.NoError(t, r.tr.ForceUnlock(ctx, "rich"))
	assert.True(t, statusOf(t, r.tr, "rich").Unlocked)
	assert.ErrorIs(t, r.tr.ForceUnlock(ctx, "nope"), achievement.ErrUnknownAchievement)

	require.NoError(t, r.tr.ResetAll(ctx))
	all, err := r.tr.Achievements(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for _, st := range all {
		assert.False(t, st.Unlocked, st.ID)
	}

	passes, err := r.tr.Reevaluate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, passes)

	_, err = r.tr.Achievement(ctx, "nope")
	assert.ErrorIs(t, err, achievement.ErrUnknownAchievement)
}

func TestTracker_TickAccruesPlayTime(t *testing.T) {
	r := start(t, nil, Options{TickInterval: 5 * time.Millisecond})
	ctx := context.Background()

	assert.Eventually(t, func() bool {
		data, err := r.tr.Save(ctx)
		return err == nil && data.TotalPlayTime > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTracker_LedgerBackend(t *testing.T) {
	ledger, err := unlockdb.Open(filepath.Join(t.TempDir(), "unlocks.db"), nil)
	require.NoError(t, err)
	defer ledger.Close()

	r := start(t, ledger, Options{})
	ctx := context.Background()

	require.NoError(t, r.tr.ForceUnlock(ctx, "speedy"))
	r.stop()

	assert.True(t, ledger.IsUnlocked("speedy"))
	hist, err := ledger.History()
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "speedy", hist[0].ID)
	assert.False(t, r.saves.IsUnlocked("speedy"))
}

func TestTracker_Stopped(t *testing.T) {
	r := start(t, nil, Options{})
	r.stop()

	err := r.tr.Do(context.Background(), func() error { return nil })
	assert.ErrorIs(t, err, ErrStopped)
}

func TestTracker_PanicBecomesError(t *testing.T) {
	r := start(t, nil, Options{})
	err := r.tr.Do(context.Background(), func() error { panic("boom") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	// The loop survives.
	assert.NoError(t, r.tr.Do(context.Background(), func() error { return nil }))
}

func TestTracker_QueuedCommandOutlivesCancelledContext(t *testing.T) {
	r := start(t, nil, Options{})

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = r.tr.Do(context.Background(), func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	var level int
	errc := make(chan error, 1)
	go func() {
		errc <- r.tr.Do(ctx, func() error {
			level = 7
			return nil
		})
	}()
	require.Eventually(t, func() bool { return len(r.tr.cmds) == 1 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-errc:
		t.Fatalf("Do returned %v before the queued command ran", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-errc)
	assert.Equal(t, 7, level)
}
