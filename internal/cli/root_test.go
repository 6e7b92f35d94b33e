package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metal-pod/backend/internal/save"
	"github.com/metal-pod/backend/internal/unlockdb"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "metalpod", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"serve", "status", "unlock", "lock", "reset", "history", "validate"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "", "status", "--format", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

// workspace writes a config pointing the save (and ledger) into a temp dir
// and returns the config path and save dir.
func workspace(t *testing.T, extra string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	saveDir := filepath.Join(dir, "save")
	cfg := "save:\n  dir: " + saveDir + "\n  backup: false\nlog:\n  level: error\n" + extra
	path := filepath.Join(dir, "metalpod.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0644))
	return path, saveDir
}

func seedSave(t *testing.T, dir string, mutate func(*save.Data)) {
	t.Helper()
	m := save.NewManager(dir, false, nil)
	d := save.New()
	mutate(d)
	m.Replace(d)
	require.NoError(t, m.Save())
}

func loadSave(t *testing.T, dir string) *save.Data {
	t.Helper()
	m := save.NewManager(dir, false, nil)
	require.NoError(t, m.Load())
	return m.Data()
}

func execute(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestStatus_IsReadOnly(t *testing.T) {
	cfgPath, saveDir := workspace(t, "")
	seedSave(t, saveDir, func(d *save.Data) {
		d.Currency = 1234
		d.TotalCoursesCompleted = 1
		d.CompletedCourses["tutorial"] = true
	})

	out, err := execute(t, cfgPath, "status", "--format", "json")
	require.NoError(t, err)

	var report StatusReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 23, report.Total)
	assert.Positive(t, report.Unlocked)
	assert.Equal(t, 1234, report.Currency)

	d := loadSave(t, saveDir)
	assert.Equal(t, 1234, d.Currency, "status must not grant rewards")
	assert.Empty(t, d.Achievements)
}

func TestStatus_Text(t *testing.T) {
	cfgPath, saveDir := workspace(t, "")
	seedSave(t, saveDir, func(d *save.Data) { d.Currency = 1234567 })

	out, err := execute(t, cfgPath, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Bolts: 1,234,567")
	assert.Contains(t, out, "CATEGORY")
	assert.Contains(t, out, "???", "hidden achievements stay hidden")
}

func TestUnlockLockReset(t *testing.T) {
	cfgPath, saveDir := workspace(t, "")
	seedSave(t, saveDir, func(*save.Data) {})

	out, err := execute(t, cfgPath, "unlock", "first_flight")
	require.NoError(t, err)
	assert.Contains(t, out, "unlocked first_flight")

	d := loadSave(t, saveDir)
	assert.True(t, d.Achievements["first_flight"])
	assert.Positive(t, d.Currency, "reward granted")

	out, err = execute(t, cfgPath, "lock", "first_flight")
	require.NoError(t, err)
	assert.Contains(t, out, "first_flight: locked")
	assert.False(t, loadSave(t, saveDir).Achievements["first_flight"])

	_, err = execute(t, cfgPath, "unlock", "no_such_thing")
	require.Error(t, err)

	_, err = execute(t, cfgPath, "reset")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, cfgPath, "unlock", "first_flight")
	require.NoError(t, err)
	out, err = execute(t, cfgPath, "reset", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "reset 23 achievements")
	assert.Empty(t, loadSave(t, saveDir).Achievements)
}

func TestHistory_SQLiteBackend(t *testing.T) {
	cfgPath, saveDir := workspace(t, "persistence:\n  unlocks: sqlite\n  db_path: unlocks.db\n")
	seedSave(t, saveDir, func(d *save.Data) { d.Achievements["first_flight"] = true })

	out, err := execute(t, cfgPath, "history", "--format", "json")
	require.NoError(t, err)
	var rows []unlockdb.Unlock
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1, "save flags are imported into an empty ledger")
	assert.Equal(t, "first_flight", rows[0].ID)

	_, err = execute(t, cfgPath, "unlock", "gold_rush")
	require.NoError(t, err)
	out, err = execute(t, cfgPath, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "gold_rush")
}

func TestHistory_NeedsSQLite(t *testing.T) {
	cfgPath, _ := workspace(t, "")
	_, err := execute(t, cfgPath, "history")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestValidate_Embedded(t *testing.T) {
	out, err := execute(t, "", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "23 definitions, 0 issues")
}

func TestValidate_ReportsProblems(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "achievements.yaml")
	doc := `
achievements:
  - id: a
    condition: courses_completed
    target: 0
  - id: a
    condition: courses_completed
  - id: b
    condition: specific_upgrade_maxed
    upgrade: warp
  - id: c
    condition: specific_courses_completed
    courses: [moon_1]
  - id: meta
    condition: all_achievements_unlocked
    target: 1
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	out, err := execute(t, "", "validate", path, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var result ValidationResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.False(t, result.Valid)
	assert.Equal(t, 4, result.Definitions)
	joined := strings.Join(result.Issues, "\n")
	assert.Contains(t, joined, "raised to 1")
	assert.Contains(t, joined, "duplicate id")
	assert.Contains(t, joined, `unknown upgrade "warp"`)
	assert.Contains(t, joined, `unknown course "moon_1"`)
	assert.Contains(t, joined, "will be raised")
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(assert.AnError))
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "x", nil)))
}
