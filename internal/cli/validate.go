package cli

import (
	"fmt"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/metal-pod/backend/internal/achievement"
	"github.com/metal-pod/backend/internal/catalog"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid       bool     `json:"valid"`
	Definitions int      `json:"definitions"`
	Issues      []string `json:"issues,omitempty"`
}

// NewValidateCommand checks an achievement definitions file against itself
// and the shop catalog.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	var shopPath string
	cmd := &cobra.Command{
		Use:   "validate [achievements.yaml]",
		Short: "Validate achievement definitions",
		Long: `Validate achievement definitions without starting the server.

Reports the adjustments the engine would make at startup (skipped and
duplicate ids, clamped targets and rewards, unknown conditions) and
references to upgrades or courses the shop catalog does not know. With no
argument the embedded definitions are checked.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			defs, err := loadDefinitions(path)
			if err != nil {
				return WrapExitError(ExitCommandError, "loading achievements", err)
			}
			cat, err := loadCatalog(shopPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "loading shop", err)
			}

			result := validate(defs, cat)
			out := cmd.OutOrStdout()
			if rootOpts.Format == "json" {
				if err := writeJSON(out, result); err != nil {
					return err
				}
			} else {
				for _, is := range result.Issues {
					fmt.Fprintln(out, is)
				}
				fmt.Fprintf(out, "%d definitions, %d issues\n", result.Definitions, len(result.Issues))
			}
			if !result.Valid {
				return &ExitError{Code: ExitFailure, Message: "validation failed"}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&shopPath, "shop", "", "shop catalog to check references against (default: embedded)")
	return cmd
}

func validate(defs []achievement.Definition, cat *catalog.Catalog) ValidationResult {
	normalized, issues := achievement.Normalize(defs)
	result := ValidationResult{
		Definitions: len(normalized),
		Issues:      lo.Map(issues, func(is achievement.Issue, _ int) string { return is.String() }),
	}

	courses := cat.Courses()
	nonMeta := lo.CountBy(normalized, func(d *achievement.Definition) bool { return !d.IsMeta() })
	metas := 0
	for _, d := range normalized {
		switch d.Condition {
		case achievement.UpgradeLevel, achievement.SpecificUpgradeMaxed:
			if d.UpgradeID == "" {
				if d.Condition == achievement.SpecificUpgradeMaxed {
					result.Issues = append(result.Issues, fmt.Sprintf("%s: specific_upgrade_maxed without an upgrade", d.ID))
				}
				continue
			}
			if _, ok := cat.Upgrade(d.UpgradeID); !ok {
				result.Issues = append(result.Issues, fmt.Sprintf("%s: unknown upgrade %q", d.ID, d.UpgradeID))
			}
		case achievement.SpecificCoursesCompleted:
			if len(courses) == 0 {
				continue
			}
			for _, c := range lo.Without(d.Courses, courses...) {
				result.Issues = append(result.Issues, fmt.Sprintf("%s: unknown course %q", d.ID, c))
			}
		case achievement.AllAchievementsUnlocked:
			metas++
			if d.Target < nonMeta {
				result.Issues = append(result.Issues,
					fmt.Sprintf("%s: target %d is below the %d other achievements and will be raised", d.ID, d.Target, nonMeta))
			}
		}
	}
	if metas > 1 {
		result.Issues = append(result.Issues, fmt.Sprintf("%d all-achievements definitions; each counts only the non-meta ones", metas))
	}

	result.Valid = len(result.Issues) == 0
	return result
}
