package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/metal-pod/backend/internal/achievement"
	"github.com/metal-pod/backend/internal/economy"
	"github.com/metal-pod/backend/internal/save"
)

// dryRun is an unlock store over a private copy of the save, so status can
// evaluate without writing anything.
type dryRun struct {
	data *save.Data
}

func (d *dryRun) Data() *save.Data              { return d.data }
func (d *dryRun) IsUnlocked(id string) bool      { return d.data.Achievements[id] }
func (d *dryRun) SetUnlocked(id string, on bool) { d.data.Achievements[id] = on }
func (d *dryRun) RemoveUnlock(id string)         { delete(d.data.Achievements, id) }
func (d *dryRun) MarkDirty()                     {}
func (d *dryRun) SaveNow() error                 { return nil }

func (d *dryRun) RangeUnlocks(fn func(id string, unlocked bool) bool) {
	for id, on := range d.data.Achievements {
		if !fn(id, on) {
			return
		}
	}
}

// StatusReport is the JSON shape of the status command.
type StatusReport struct {
	Currency     int                  `json:"currency"`
	PlayTime     float64              `json:"playTime"`
	Deaths       int                  `json:"deaths"`
	Unlocked     int                  `json:"unlocked"`
	Total        int                  `json:"total"`
	Achievements []achievement.Status `json:"achievements"`
}

func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show achievement progress for the current save",
		Long: `Evaluate every achievement against a copy of the save and print the
result. Nothing is written; achievements that would unlock on the next
run show as unlocked, and the balance excludes their rewards.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnvironment(rootOpts)
			if err != nil {
				return err
			}
			defer env.close()

			report := evaluateStatus(env)
			if rootOpts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			return printStatus(cmd.OutOrStdout(), report)
		},
	}
}

func evaluateStatus(env *environment) StatusReport {
	current := env.saves.Data()
	data := current.Clone()
	data.InitMaps()
	env.unlocks().RangeUnlocks(func(id string, on bool) bool {
		data.Achievements[id] = on
		return true
	})

	store := &dryRun{data: data}
	engine := achievement.NewEngine(env.defs, achievement.Deps{
		Save:      store,
		Unlocks:   store,
		Upgrades:  env.catalog,
		Cosmetics: env.catalog,
	}, achievement.Options{MaxPasses: env.cfg.Engine.MaxPasses})
	engine.ReevaluateNow()

	repo := engine.Repository()
	all := repo.GetAll()
	report := StatusReport{
		Currency: current.Currency,
		PlayTime: current.TotalPlayTime,
		Deaths:   current.TotalDeaths,
		Unlocked: repo.UnlockedCount(),
		Total:    repo.Len(),
	}
	for _, a := range all {
		report.Achievements = append(report.Achievements, a.Status())
	}
	return report
}

func printStatus(w io.Writer, r StatusReport) error {
	play := time.Duration(r.PlayTime * float64(time.Second)).Round(time.Second)
	pct := 0
	if r.Total > 0 {
		pct = r.Unlocked * 100 / r.Total
	}
	fmt.Fprintf(w, "Bolts: %s   Play time: %s   Deaths: %s\n",
		humanize.Comma(int64(r.Currency)), play, humanize.Comma(int64(r.Deaths)))
	fmt.Fprintf(w, "Unlocked %d/%d (%d%%)\n\n", r.Unlocked, r.Total, pct)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tACHIEVEMENT\tPROGRESS\tREWARD")
	for _, st := range r.Achievements {
		mark := "[ ]"
		if st.Unlocked {
			mark = "[x]"
		}
		fmt.Fprintf(tw, "%s\t%s %s\t%s/%s\t%s\n", st.Category, mark, st.Title,
			humanize.Comma(int64(st.Progress)), humanize.Comma(int64(st.Target)),
			humanize.Comma(int64(st.Reward)))
	}
	return tw.Flush()
}

func NewUnlockCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock <id>",
		Short: "Unlock an achievement and grant its reward",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(rootOpts, func(e *achievement.Engine) error {
				if err := e.ForceUnlock(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "unlocked %s\n", args[0])
				return nil
			})
		},
	}
}

func NewLockCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "lock <id>",
		Short: "Relock an achievement",
		Long: `Relock an achievement. It is reevaluated immediately and unlocks again
(granting its reward again) if its condition still holds.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(rootOpts, func(e *achievement.Engine) error {
				if err := e.ForceLock(args[0]); err != nil {
					return err
				}
				state := "locked"
				if e.IsUnlocked(args[0]) {
					state = "unlocked again, condition still holds"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], state)
				return nil
			})
		},
	}
}

func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear every achievement unlock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return WrapExitError(ExitCommandError, "refusing to reset without --yes", nil)
			}
			return withEngine(rootOpts, func(e *achievement.Engine) error {
				e.ResetAll()
				fmt.Fprintf(cmd.OutOrStdout(), "reset %d achievements, %d unlocked again\n",
					e.Repository().Len(), e.Repository().UnlockedCount())
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm the reset")
	return cmd
}

// withEngine runs fn against an engine over the real stores and writes the
// save afterwards.
func withEngine(rootOpts *RootOptions, fn func(*achievement.Engine) error) error {
	env, err := loadEnvironment(rootOpts)
	if err != nil {
		return err
	}
	defer env.close()

	engine := achievement.NewEngine(env.defs, achievement.Deps{
		Save:      env.saves,
		Unlocks:   env.unlocks(),
		Currency:  economy.NewWallet(env.saves, nil),
		Upgrades:  env.catalog,
		Cosmetics: env.catalog,
		Logger:    env.logger,
	}, achievement.Options{MaxPasses: env.cfg.Engine.MaxPasses})
	defer engine.Close()

	if err := fn(engine); err != nil {
		return err
	}
	return env.flush()
}

func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List unlocks in the order they happened (sqlite backend)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnvironment(rootOpts)
			if err != nil {
				return err
			}
			defer env.close()
			if env.ledger == nil {
				return WrapExitError(ExitCommandError, "history needs persistence.unlocks: sqlite", nil)
			}

			rows, err := env.ledger.History()
			if err != nil {
				return err
			}
			if rootOpts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), rows)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ACHIEVEMENT\tUNLOCKED")
			for _, r := range rows {
				fmt.Fprintf(tw, "%s\t%s\n", r.ID, humanize.Time(r.UnlockedAt))
			}
			return tw.Flush()
		},
	}
}
