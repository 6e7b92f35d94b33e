package cli

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/metal-pod/backend/internal/achievement"
	"github.com/metal-pod/backend/internal/assets"
	"github.com/metal-pod/backend/internal/catalog"
	"github.com/metal-pod/backend/internal/config"
	"github.com/metal-pod/backend/internal/logging"
	"github.com/metal-pod/backend/internal/save"
	"github.com/metal-pod/backend/internal/unlockdb"
)

// environment is everything a command needs, loaded from config.
type environment struct {
	cfg     *config.Config
	logger  *zap.Logger
	saves   *save.Manager
	ledger  *unlockdb.Store
	defs    []achievement.Definition
	catalog *catalog.Catalog
}

func loadEnvironment(opts *RootOptions) (*environment, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "loading config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid config", err)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "building logger", err)
	}

	env := &environment{cfg: cfg, logger: logger}
	if env.defs, err = loadDefinitions(cfg.Content.Achievements); err != nil {
		return nil, WrapExitError(ExitCommandError, "loading achievements", err)
	}
	if env.catalog, err = loadCatalog(cfg.Content.Shop); err != nil {
		return nil, WrapExitError(ExitCommandError, "loading shop", err)
	}

	env.saves = save.NewManager(cfg.Save.Dir, cfg.Save.Backup, logger)
	if err := env.saves.Load(); err != nil {
		return nil, WrapExitError(ExitCommandError, "loading save", err)
	}

	if cfg.Persistence.Unlocks == config.UnlocksSQLite {
		path := cfg.Persistence.DBPath
		if !filepath.IsAbs(path) {
			path = filepath.Join(filepath.Dir(env.saves.Path()), path)
		}
		env.ledger, err = unlockdb.Open(path, logger)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "opening unlock ledger", err)
		}
		if _, err := env.ledger.Import(env.saves); err != nil {
			env.ledger.Close()
			return nil, WrapExitError(ExitCommandError, "importing unlock flags", err)
		}
	}
	return env, nil
}

// unlocks returns the configured unlock store.
func (e *environment) unlocks() achievement.UnlockStore {
	if e.ledger != nil {
		return e.ledger
	}
	return e.saves
}

// flush writes the save if anything changed.
func (e *environment) flush() error {
	if err := e.saves.SaveIfDirty(); err != nil {
		return fmt.Errorf("writing save: %w", err)
	}
	return nil
}

func (e *environment) close() {
	if e.ledger != nil {
		e.ledger.Close()
	}
	e.logger.Sync()
}

func loadDefinitions(path string) ([]achievement.Definition, error) {
	if path == "" {
		return achievement.ParseDefinitions(assets.Achievements())
	}
	return achievement.LoadDefinitions(path)
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.Load(path)
}
