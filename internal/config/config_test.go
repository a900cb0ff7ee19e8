package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(configPathEnv, "")
	t.Setenv(logLevelEnv, "")

	cfg := Load("")

	if cfg.Logging.Level != "info" {
		t.Fatalf("level = %q, want info", cfg.Logging.Level)
	}
	if len(cfg.Metrics) != 14 {
		t.Fatalf("metrics = %d, want 14", len(cfg.Metrics))
	}
	required := map[string]bool{}
	for _, rule := range cfg.Metrics {
		if rule.Required {
			required[rule.Key] = true
		}
	}
	for _, key := range []string{"carry_over_cases", "initiated_cases", "suspended_cases", "remaining_cases"} {
		if !required[key] {
			t.Fatalf("%s is not required in the defaults", key)
		}
	}
	if cfg.Workbook.Articles.Sheet != "By Article" || len(cfg.Workbook.Metrics) != 14 {
		t.Fatalf("workbook defaults = %+v", cfg.Workbook)
	}
	if len(cfg.Checks.Formulas) != 1 || cfg.Checks.Formulas[0].Key != "remaining_cases" {
		t.Fatalf("check defaults = %+v", cfg.Checks)
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	t.Setenv(logLevelEnv, "")

	path := writeConfig(t, `
logging:
  level: debug
metrics:
  - key: carry_over_cases
    required: true
    phrases:
      - carried over
`)
	cfg := Load(path)

	if cfg.Logging.Level != "debug" {
		t.Fatalf("level = %q, want debug", cfg.Logging.Level)
	}
	if len(cfg.Metrics) != 1 || cfg.Metrics[0].Key != "carry_over_cases" || !cfg.Metrics[0].Required {
		t.Fatalf("metrics = %+v", cfg.Metrics)
	}
	if len(cfg.Articles.HeaderHints) != 1 || cfg.Articles.HeaderHints[0] != "article" {
		t.Fatalf("untouched section lost its defaults: %+v", cfg.Articles)
	}
	if len(cfg.Workbook.Metrics) != 14 {
		t.Fatalf("workbook defaults dropped: %d targets", len(cfg.Workbook.Metrics))
	}
}

func TestLoadReplacesSectionsWholesale(t *testing.T) {
	t.Setenv(logLevelEnv, "")

	path := writeConfig(t, `
checks:
  aggregates:
    - metric: initiated_cases
      column: new
`)
	cfg := Load(path)

	if len(cfg.Checks.Formulas) != 0 {
		t.Fatalf("default formulas survived a configured checks section: %+v", cfg.Checks.Formulas)
	}
	if len(cfg.Checks.Aggregates) != 1 || cfg.Checks.Aggregates[0].Column != "new" {
		t.Fatalf("aggregates = %+v", cfg.Checks.Aggregates)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: warn\n")

	t.Setenv(configPathEnv, path)
	t.Setenv(logLevelEnv, "error")

	cfg := Load("")

	if cfg.Logging.Level != "error" {
		t.Fatalf("level = %q, want the env override", cfg.Logging.Level)
	}
	if len(cfg.Metrics) != 14 {
		t.Fatalf("env-located file replaced the metric defaults: %d", len(cfg.Metrics))
	}
}

func TestLoadUnreadableFileFallsBack(t *testing.T) {
	t.Setenv(logLevelEnv, "")

	cfg := Load(filepath.Join(t.TempDir(), "missing.yaml"))

	if cfg.Logging.Level != "info" || len(cfg.Metrics) != 14 {
		t.Fatalf("fallback config = %+v", cfg.Logging)
	}
}

func TestLoadMalformedFileFallsBack(t *testing.T) {
	t.Setenv(logLevelEnv, "")

	cfg := Load(writeConfig(t, "logging: [not, a, mapping"))

	if cfg.Logging.Level != "info" || len(cfg.Metrics) != 14 {
		t.Fatalf("fallback config = %+v", cfg.Logging)
	}
}

func TestColumnRuleUnset(t *testing.T) {
	t.Parallel()

	if !(ColumnRule{}).Unset() {
		t.Fatalf("zero rule must be unset")
	}
	if (ColumnRule{Index: 2}).Unset() || (ColumnRule{Headers: []string{"count"}}).Unset() {
		t.Fatalf("bound rules must not be unset")
	}
}
