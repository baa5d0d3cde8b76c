package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/Veraticus/runway/internal/model"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eventsCSV = `id,date,amount,direction,category,client_id
acme-1,2025-01-15,10000,in,retainer,acme
acme-2,2025-02-15,10000,in,retainer,acme
acme-3,2025-03-15,10000,in,retainer,acme
rent-1,2025-02-01,8000,out,rent,
rent-2,2025-03-01,8000,out,rent,
`

const rulesYAML = `rules:
  - id: buffer
    name: Keep 5k
    type: cash_buffer
    severity: critical
    threshold:
      min_balance: "5000"
`

type testEnv struct {
	dir     string
	cfgPath string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("database:\n  path: "+filepath.Join(dir, "runway.db")+"\nuser:\n  id: studio\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "events.csv"), []byte(eventsCSV), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rules.yaml"), []byte(rulesYAML), 0o600))
	return &testEnv{dir: dir, cfgPath: cfgPath}
}

func (e *testEnv) path(name string) string {
	return filepath.Join(e.dir, name)
}

// run executes one CLI invocation against the env's database.
func (e *testEnv) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	viper.Reset()

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", e.cfgPath, "--as-of", "2025-01-06", "--log-level", "error"}, args...))

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (e *testEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, "", args...)
	require.NoError(t, err, out)
	return out
}

var scenarioIDPattern = regexp.MustCompile(`Started scenario ([0-9a-f-]{36})`)

func scenarioID(t *testing.T, out string) string {
	t.Helper()
	m := scenarioIDPattern.FindStringSubmatch(out)
	require.Len(t, m, 2, out)
	return m[1]
}

func (e *testEnv) seed(t *testing.T) {
	t.Helper()
	e.mustRun(t, "cash", "set", "10000")
	assert.Contains(t, e.mustRun(t, "events", "import", e.path("events.csv")), "Imported 5 events")
	assert.Contains(t, e.mustRun(t, "rules", "load", e.path("rules.yaml")), "Loaded 1 rules")
}

func TestCLI_ScenarioLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	assert.Contains(t, env.mustRun(t, "cash", "show"), "$10,000.00")

	out := env.mustRun(t, "forecast")
	assert.Contains(t, out, "2025-01-06")
	assert.Contains(t, out, "Keep 5k")

	id := scenarioID(t, env.mustRun(t, "scenario", "new", "client_loss"))

	_, err := env.run(t, "", "scenario", "apply", id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenario answer "+id)

	env.mustRun(t, "scenario", "answer", id, "scope.client_ids=acme", "effective_date=2025-02-01")
	for _, lt := range []model.LinkedType{model.LinkedReduceContractors, model.LinkedReduceTools, model.LinkedReduceProjectCosts} {
		env.mustRun(t, "scenario", "skip", id, string(lt))
	}

	// Without acme the March rent takes the balance to $4,000.
	out = env.mustRun(t, "scenario", "apply", id)
	assert.Contains(t, out, "acme-2")
	assert.Contains(t, out, "acme-3")
	assert.Contains(t, out, "breached")

	out = env.mustRun(t, "scenario", "commit", id)
	assert.Contains(t, out, "Committed scenario "+id)
	assert.Contains(t, env.mustRun(t, "scenario", "commit", id), "already committed")

	out = env.mustRun(t, "events", "list")
	assert.Contains(t, out, "acme-1")
	assert.NotContains(t, out, "acme-2")
	assert.NotContains(t, out, "acme-3")

	assert.Contains(t, env.mustRun(t, "checkpoint", "list"), "auto")
	assert.Contains(t, env.mustRun(t, "scenario", "list"), "committed")
}

func TestCLI_ScenarioRun(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	input := strings.Join([]string{
		"acme",
		"2025-02-01",
		"n", "n", "n", // linked follow-ups
		"n", // commit?
	}, "\n") + "\n"

	out, err := env.run(t, input, "scenario", "run", "client_loss", "--skip-optional")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Left ")
	assert.Contains(t, out, "for review")

	id := scenarioID(t, out)
	assert.Contains(t, env.mustRun(t, "scenario", "show", id), "evaluating")
	assert.Contains(t, env.mustRun(t, "events", "list"), "acme-2")

	env.mustRun(t, "scenario", "discard", id)
	assert.Contains(t, env.mustRun(t, "scenario", "show", id), "discarded")
}

func TestCLI_Rules(t *testing.T) {
	env := newTestEnv(t)

	env.mustRun(t, "rules", "add", "--id", "neg", "--name", "Never negative", "--type", "negative_week")
	out := env.mustRun(t, "rules", "list")
	assert.Contains(t, out, "Never negative")
	assert.Contains(t, out, "negative_week")

	_, err := env.run(t, "", "rules", "add", "--name", "Buffer", "--type", "cash_buffer", "--threshold", "min_balance=lots")
	assert.Error(t, err)

	env.mustRun(t, "rules", "delete", "neg")
	assert.Contains(t, env.mustRun(t, "rules", "list"), "No rules configured")
}

func TestCLI_Checkpoint(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	env.mustRun(t, "checkpoint", "create", "--tag", "before")
	env.mustRun(t, "events", "add", "--id", "extra", "--date", "2025-02-10", "--amount=-500", "--category", "tools")
	assert.Contains(t, env.mustRun(t, "events", "list"), "extra")

	out, err := env.run(t, "n\n", "checkpoint", "restore", "before")
	require.NoError(t, err)
	assert.Contains(t, out, "Restore cancelled")

	env.mustRun(t, "checkpoint", "restore", "before", "--force")
	assert.NotContains(t, env.mustRun(t, "events", "list"), "extra")

	_, err = env.run(t, "", "checkpoint", "delete", "missing", "--force")
	assert.Error(t, err)
}

func TestParseAssignments(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected map[string]string
		wantErr  bool
	}{
		{name: "empty", args: nil, expected: map[string]string{}},
		{name: "trims", args: []string{" a = 1 ", "b=x=y"}, expected: map[string]string{"a": "1", "b": "x=y"}},
		{name: "blank value", args: []string{"end_date="}, expected: map[string]string{"end_date": ""}},
		{name: "missing equals", args: []string{"oops"}, wantErr: true},
		{name: "missing key", args: []string{"=1"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAssignments(tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestFormatFileSize(t *testing.T) {
	tests := []struct {
		expected string
		size     int64
	}{
		{"0 B", 0},
		{"1023 B", 1023},
		{"1.0 KB", 1024},
		{"1.5 MB", 1536 * 1024},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, formatFileSize(tt.size))
	}
}
