package cli

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/metal-pod/backend/internal/achievement"
	"github.com/metal-pod/backend/internal/event"
	"github.com/metal-pod/backend/internal/mock"
	"github.com/metal-pod/backend/internal/tracker"
	"github.com/metal-pod/backend/internal/ws"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	Port    int
	Token   string
	Origins []string
	Mock    bool
	Pilot   string
	Seed    int64
	MaxWS   int
}

// announcer is the unlock feedback hook. There is no controller or screen
// reader on the server, so it only logs.
type announcer struct {
	logger *zap.Logger
}

func (a announcer) AchievementUnlocked(ach *achievement.Achievement) {
	a.logger.Debug("unlock feedback", zap.String("achievement", ach.ID()), zap.String("title", ach.DisplayTitle()))
}

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the achievement server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, rootOpts, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Port, "port", "p", 0, "override server port")
	cmd.Flags().StringVar(&opts.Token, "token", "", "require this token on every request")
	cmd.Flags().StringSliceVar(&opts.Origins, "origin", nil, "allowed websocket origin (repeatable)")
	cmd.Flags().IntVar(&opts.MaxWS, "max-clients", 16, "maximum websocket clients (0 = unlimited)")
	cmd.Flags().BoolVar(&opts.Mock, "mock", false, "drive the server with a simulated player")
	cmd.Flags().StringVar(&opts.Pilot, "pilot", "steady", "mock pilot style (steady|speedrun|collector)")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "mock random seed (0 = time based)")
	return cmd
}

func runServe(ctx context.Context, rootOpts *RootOptions, opts *ServeOptions) error {
	env, err := loadEnvironment(rootOpts)
	if err != nil {
		return err
	}
	defer env.close()

	cfg := env.cfg
	if opts.Port > 0 {
		cfg.Server.Port = opts.Port
	}
	logger := env.logger

	bus := event.NewBus()
	tr := tracker.New(env.saves, env.unlocks(), env.defs, env.catalog, bus, tracker.Options{
		TickInterval:      cfg.Engine.TickInterval,
		AutosaveInterval:  cfg.Engine.AutosaveInterval,
		RetriggerInterval: cfg.Engine.RetriggerInterval,
		MaxPasses:         cfg.Engine.MaxPasses,
		Feedback:          announcer{logger: logger},
		Logger:            logger,
	})

	broadcaster := ws.NewBroadcaster(cfg.Broadcast.SendBuffer, opts.MaxWS, ws.Snapshot(tr), logger)
	broadcaster.Attach(bus)
	defer broadcaster.Close()

	server := ws.NewServer(tr, broadcaster, ws.ServerOptions{
		AllowedOrigins: opts.Origins,
		AuthToken:      opts.Token,
		Logger:         logger,
	})

	trackerCtx, cancelTracker := context.WithCancel(context.Background())
	trackerDone := make(chan struct{})
	go func() {
		tr.Run(trackerCtx)
		close(trackerDone)
	}()
	defer func() {
		cancelTracker()
		<-trackerDone
	}()

	if opts.Mock {
		seed := opts.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		mock.NewGenerator(tr, env.catalog, opts.Pilot, seed, 2*time.Second, logger).Start(ctx)
	}

	logger.Info("metal pod server starting",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("save", env.saves.Path()),
		zap.String("unlocks", cfg.Persistence.Unlocks),
		zap.Int("achievements", len(env.defs)),
		zap.Bool("mock", opts.Mock))

	if err := ws.ListenAndServe(ctx, cfg.Server.Addr(), server.Handler(), logger); err != nil {
		return WrapExitError(ExitCommandError, "server failed", err)
	}
	return nil
}
