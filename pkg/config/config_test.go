package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/issuetrack/pkg/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "issuetrack.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadConfig_EmptyFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, config.DefaultWorkers, cfg.Tracking.Workers)
	assert.Equal(t, config.DefaultBlockHalfSize, cfg.Tracking.BlockHalfSize)
	assert.Equal(t, config.DefaultClosedIssueMaxAge, cfg.Tracking.ClosedIssueMaxAge)
	assert.Equal(t, config.DefaultHoursInDay, cfg.Tracking.HoursInDay)
	assert.True(t, cfg.Tracking.BackdateNewIssues)
	assert.Equal(t, config.DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, config.DefaultStoragePath, cfg.Storage.Path)
	assert.Equal(t, config.DefaultBusyTimeout, cfg.Storage.BusyTimeout)
	assert.Equal(t, config.FormatText, cfg.Logging.Format)
	assert.Empty(t, cfg.Observability.OTLPEndpoint)

	level, err := cfg.Logging.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)
}

func TestLoadConfig_FromFile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
tracking:
  workers: 4
  block_half_size: 3
  closed_issue_max_age: 48h
  backdate_new_issues: false
storage:
  driver: memory
rules:
  catalog: rules.yaml
scm:
  default_assignee: triage
  accounts:
    - author: ford@example.com
      login: ford
    - author: arthur@example.com
      login: arthur
logging:
  level: debug
  format: json
observability:
  otlp_endpoint: localhost:4317
  otlp_insecure: true
  otlp_headers: "api-key=secret"
  metrics_file: metrics.prom
`)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Tracking.Workers)
	assert.Equal(t, 3, cfg.Tracking.BlockHalfSize)
	assert.Equal(t, 48*time.Hour, cfg.Tracking.ClosedIssueMaxAge)
	assert.False(t, cfg.Tracking.BackdateNewIssues)
	assert.Equal(t, config.DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, "rules.yaml", cfg.Rules.Catalog)
	assert.Equal(t, "triage", cfg.SCM.DefaultAssignee)
	assert.Equal(t, map[string]string{"ford@example.com": "ford", "arthur@example.com": "arthur"}, cfg.SCM.AccountMap())
	assert.Equal(t, config.FormatJSON, cfg.Logging.Format)
	assert.Equal(t, "localhost:4317", cfg.Observability.OTLPEndpoint)
	assert.True(t, cfg.Observability.OTLPInsecure)
	assert.Equal(t, "api-key=secret", cfg.Observability.OTLPHeaders)
	assert.Equal(t, "metrics.prom", cfg.Observability.MetricsFile)

	level, err := cfg.Logging.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

//nolint:paralleltest // t.Setenv is incompatible with t.Parallel.
func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("ISSUETRACK_TRACKING_WORKERS", "2")
	t.Setenv("ISSUETRACK_STORAGE_DRIVER", "memory")

	cfg, err := config.LoadConfig(writeConfig(t, "tracking:\n  workers: 7\n"))
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Tracking.Workers)
	assert.Equal(t, config.DriverMemory, cfg.Storage.Driver)
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		content string
		want    error
	}{
		{"negative workers", "tracking:\n  workers: -1\n", config.ErrInvalidWorkers},
		{"zero block", "tracking:\n  block_half_size: 0\n", config.ErrInvalidBlockHalfSize},
		{"negative age", "tracking:\n  closed_issue_max_age: -1h\n", config.ErrInvalidMaxAge},
		{"driver", "storage:\n  driver: postgres\n", config.ErrInvalidDriver},
		{"sqlite without path", "storage:\n  path: \"\"\n", config.ErrInvalidStoragePath},
		{"log level", "logging:\n  level: loud\n", config.ErrInvalidLogLevel},
		{"log format", "logging:\n  format: xml\n", config.ErrInvalidLogFormat},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := config.LoadConfig(writeConfig(t, tc.content))
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	t.Parallel()

	_, err := config.LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
