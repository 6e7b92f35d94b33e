// Package mock simulates a player so the server can be demoed without the
// game client.
package mock

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/metal-pod/backend/internal/achievement"
	"github.com/metal-pod/backend/internal/catalog"
	"github.com/metal-pod/backend/internal/economy"
	"github.com/metal-pod/backend/internal/progress"
)

// Player is what the simulation drives. *tracker.Tracker implements it.
type Player interface {
	Report(ctx context.Context, rep progress.Report) error
	Trigger(ctx context.Context, name string) error
	BuyUpgrade(ctx context.Context, id string) (int, error)
	BuyCosmetic(ctx context.Context, id string) error
}

type pilot struct {
	name      string
	baseTime  float64 // seconds for a clean run
	spread    float64
	crashOdds float64
	shopEvery int
}

var pilots = map[string]pilot{
	"steady":    {name: "steady", baseTime: 75, spread: 10, crashOdds: 0.1, shopEvery: 3},
	"speedrun":  {name: "speedrun", baseTime: 52, spread: 8, crashOdds: 0.25, shopEvery: 5},
	"collector": {name: "collector", baseTime: 85, spread: 15, crashOdds: 0.05, shopEvery: 2},
}

// Generator plays courses in unlock order, replays cleared ones, crashes
// now and then and spends bolts in the shop.
type Generator struct {
	player    Player
	courses   []string
	upgrades  []string
	cosmetics []string
	pilot     pilot
	rng       *rand.Rand
	interval  time.Duration
	logger    *zap.Logger

	tick    int
	cleared int
}

// NewGenerator creates a Generator. Unknown pilot styles fall back to
// "steady".
func NewGenerator(player Player, cat *catalog.Catalog, style string, seed int64, interval time.Duration, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	p, ok := pilots[style]
	if !ok {
		p = pilots["steady"]
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	g := &Generator{
		player:   player,
		courses:  cat.Courses(),
		pilot:    p,
		rng:      rand.New(rand.NewSource(seed)),
		interval: interval,
		logger:   logger,
	}
	for _, u := range cat.Upgrades() {
		g.upgrades = append(g.upgrades, u.ID)
	}
	for _, c := range cat.Cosmetics() {
		if c.Price > 0 {
			g.cosmetics = append(g.cosmetics, c.ID)
		}
	}
	return g
}

// Start runs the simulation in a goroutine until ctx is cancelled.
func (g *Generator) Start(ctx context.Context) {
	g.logger.Info("mock player started", zap.String("pilot", g.pilot.name))
	go g.run(ctx)
}

func (g *Generator) run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Step(ctx)
		}
	}
}

// Step performs one simulated action.
func (g *Generator) Step(ctx context.Context) {
	g.tick++

	if g.tick == 1 {
		g.do(ctx, "trigger", g.player.Trigger(ctx, achievement.TriggerTutorial))
	}

	if g.rng.Float64() < g.pilot.crashOdds {
		g.do(ctx, "crash", g.player.Report(ctx, progress.Report{Kind: progress.KindPlayerDestroyed}))
	} else if len(g.courses) > 0 {
		g.race(ctx)
	}

	if g.pilot.shopEvery > 0 && g.tick%g.pilot.shopEvery == 0 {
		g.shop(ctx)
	}
}

func (g *Generator) race(ctx context.Context) {
	course := g.nextCourse()
	t := g.pilot.baseTime + (g.rng.Float64()*2-1)*g.pilot.spread
	if t < 20 {
		t = 20
	}
	medal := medalFor(t, g.pilot.baseTime)
	rep := progress.Report{
		Kind:     progress.KindCourseCompleted,
		CourseID: course,
		Time:     t,
		Medal:    medal,
		Bolts:    50 + g.rng.Intn(101),
	}
	if err := g.player.Report(ctx, rep); err != nil {
		g.do(ctx, "race", err)
		return
	}
	if g.cleared < len(g.courses) && course == g.courses[g.cleared] {
		g.cleared++
	}

	if medal == 3 {
		g.do(ctx, "trigger", g.player.Trigger(ctx, achievement.TriggerNoDamage))
	}
	if t < 60 {
		g.do(ctx, "trigger", g.player.Trigger(ctx, achievement.TriggerFastFinish))
	}
	if g.rng.Intn(4) == 0 {
		g.do(ctx, "trigger", g.player.Trigger(ctx, achievement.TriggerMaxSpeed))
	}
}

// nextCourse returns the first uncleared course, or a random cleared one
// once everything is done or on a one-in-three replay roll.
func (g *Generator) nextCourse() string {
	if g.cleared >= len(g.courses) || (g.cleared > 0 && g.rng.Intn(3) == 0) {
		n := g.cleared
		if n > len(g.courses) {
			n = len(g.courses)
		}
		return g.courses[g.rng.Intn(n)]
	}
	return g.courses[g.cleared]
}

func medalFor(t, base float64) int {
	switch {
	case t <= base*0.9:
		return 3
	case t <= base:
		return 2
	case t <= base*1.1:
		return 1
	default:
		return 0
	}
}

func (g *Generator) shop(ctx context.Context) {
	if len(g.upgrades) > 0 {
		id := g.upgrades[g.rng.Intn(len(g.upgrades))]
		_, err := g.player.BuyUpgrade(ctx, id)
		g.do(ctx, "buy upgrade", err)
	}
	if len(g.cosmetics) > 0 && g.rng.Intn(2) == 0 {
		id := g.cosmetics[g.rng.Intn(len(g.cosmetics))]
		g.do(ctx, "buy cosmetic", g.player.BuyCosmetic(ctx, id))
	}
}

// do logs err unless it is an expected shop refusal.
func (g *Generator) do(ctx context.Context, action string, err error) {
	switch {
	case err == nil, ctx.Err() != nil:
	case errors.Is(err, economy.ErrInsufficientFunds),
		errors.Is(err, economy.ErrMaxLevel),
		errors.Is(err, economy.ErrAlreadyOwned):
		g.logger.Debug("mock purchase refused", zap.String("action", action), zap.Error(err))
	default:
		g.logger.Warn("mock action failed", zap.String("action", action), zap.Error(err))
	}
}
