package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"ReportSync/pkg/logger"
)

const (
	configPathEnv = "REPORTSYNC_CONFIG"
	logLevelEnv   = "REPORTSYNC_LOG_LEVEL"
)

var cfgLog = logger.New("config")

// Config holds high-level settings required across the application.
type Config struct {
	Logging  LoggingConfig `yaml:"logging"`
	Metrics  []MetricRule  `yaml:"metrics"`
	Articles ArticleRules  `yaml:"articles"`
	Checks   CheckRules    `yaml:"checks"`
	Workbook WorkbookRules `yaml:"workbook"`
}

// LoggingConfig controls stderr diagnostics.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// MetricRule declares how one summary metric is located in the narrative.
// Patterns are regular expressions whose first capture group is the value;
// Phrases are anchor texts followed by the first number. Rules only inspect
// table rows when AllowTable is set.
type MetricRule struct {
	Key        string   `yaml:"key"`
	Required   bool     `yaml:"required"`
	AllowTable bool     `yaml:"allowTable"`
	Phrases    []string `yaml:"phrases"`
	Patterns   []string `yaml:"patterns"`
}

// ArticleRules describe the shape of the per-article breakdown table.
type ArticleRules struct {
	HeaderHints []string           `yaml:"headerHints"`
	TotalLabels []string           `yaml:"totalLabels"`
	LabelColumn int                `yaml:"labelColumn"`
	Columns     ArticleColumnRules `yaml:"columns"`
}

// ArticleColumnRules bind each breakdown field to header aliases or fixed
// positions. WomenTotal and TotalCases locate the narrative's stated values,
// which feed the cross-checks only.
type ArticleColumnRules struct {
	WomenU18   ColumnRule `yaml:"womenU18"`
	WomenGE18  ColumnRule `yaml:"womenGE18"`
	WomenTotal ColumnRule `yaml:"womenTotal"`
	Stopped    ColumnRule `yaml:"stopped"`
	New        ColumnRule `yaml:"new"`
	TotalCases ColumnRule `yaml:"totalCases"`
}

// ColumnRule locates one column by header text or 1-based position.
type ColumnRule struct {
	Headers []string `yaml:"headers"`
	Index   int      `yaml:"index"`
}

// Unset reports whether the rule has neither header aliases nor a position.
func (c ColumnRule) Unset() bool {
	return len(c.Headers) == 0 && c.Index <= 0
}

// CheckRules configure the cross-check engine beyond the fixed identities.
type CheckRules struct {
	Formulas   []FormulaRule   `yaml:"formulas"`
	Aggregates []AggregateRule `yaml:"aggregates"`
}

// FormulaRule asserts that a stated metric equals an integer expression over
// other metric keys (+, -, unary sign, parentheses).
type FormulaRule struct {
	Key     string `yaml:"key"`
	Formula string `yaml:"formula"`
}

// AggregateRule asserts that a stated summary metric equals the sum of one
// breakdown column (women_u18, women_ge18, women_total, stopped, new or
// total_cases).
type AggregateRule struct {
	Metric string `yaml:"metric"`
	Column string `yaml:"column"`
}

// WorkbookRules map extracted values onto spreadsheet cells.
type WorkbookRules struct {
	Metrics  []CellTarget  `yaml:"metrics"`
	Articles ArticleTarget `yaml:"articles"`
}

// CellTarget addresses one summary metric cell. The row is found by exact
// label, substring or regular expression over the label column; the column by
// header alias or position. Prior names the metric whose freshly extracted
// value the cell is expected to still hold from the previous month.
type CellTarget struct {
	Key         string     `yaml:"key"`
	Sheet       string     `yaml:"sheet"`
	RowLabel    string     `yaml:"rowLabel"`
	RowContains string     `yaml:"rowContains"`
	RowRegex    string     `yaml:"rowRegex"`
	LabelColumn int        `yaml:"labelColumn"`
	HeaderRow   int        `yaml:"headerRow"`
	Column      ColumnRule `yaml:"column"`
	Prior       string     `yaml:"prior"`
}

// ArticleTarget addresses the per-article block of the spreadsheet.
type ArticleTarget struct {
	Sheet       string             `yaml:"sheet"`
	LabelColumn int                `yaml:"labelColumn"`
	HeaderRow   int                `yaml:"headerRow"`
	Columns     ArticleColumnRules `yaml:"columns"`
}

// Load reads YAML configuration (if present) and applies environment
// overrides. An explicit path wins over the environment variable.
func Load(path string) Config {
	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			cfgLog.Printf("cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				cfgLog.Printf("cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()

	if len(cfg.Metrics) == 0 {
		cfg.Metrics = defaultConfig().Metrics
	}

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging = override.Logging
	}

	if len(override.Metrics) > 0 {
		base.Metrics = override.Metrics
	}

	if len(override.Articles.HeaderHints) > 0 || len(override.Articles.TotalLabels) > 0 {
		base.Articles = override.Articles
	}

	if len(override.Checks.Formulas) > 0 || len(override.Checks.Aggregates) > 0 {
		base.Checks = override.Checks
	}

	if len(override.Workbook.Metrics) > 0 || override.Workbook.Articles.Sheet != "" {
		base.Workbook = override.Workbook
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Logging: LoggingConfig{Level: "info"},
		Metrics: []MetricRule{
			{Key: "carry_over_cases", Required: true, Phrases: []string{"carried over from the previous month"}},
			{Key: "initiated_cases", Required: true, Phrases: []string{"initiated during the month"}},
			{Key: "received_transfer_cases", Phrases: []string{"received from other agencies"}},
			{Key: "separated_cases", Phrases: []string{"separated into new proceedings"}},
			{Key: "returned_cases", Phrases: []string{"returned to remedy defects"}},
			{Key: "merged_cases", Phrases: []string{"merged into existing proceedings"}},
			{Key: "sent_with_indictment", Phrases: []string{"sent to the prosecutor with an indictment"}},
			{Key: "sent_with_ruling", Phrases: []string{"sent to the prosecutor with a ruling"}},
			{Key: "terminated_cases", Phrases: []string{"proceedings terminated"}},
			{Key: "suspended_cases", Required: true, Phrases: []string{"proceedings suspended"}},
			{Key: "remaining_cases", Required: true, Phrases: []string{"remaining in proceedings"}},
			{Key: "suspects_detained", AllowTable: true, Phrases: []string{"suspects detained"}},
			{Key: "detained_women", AllowTable: true, Phrases: []string{"of them women"}},
			{Key: "detained_minors", AllowTable: true, Phrases: []string{"of them minors"}},
		},
		Articles: ArticleRules{
			HeaderHints: []string{"article"},
			TotalLabels: []string{"total", "overall"},
			LabelColumn: 1,
			Columns:     defaultArticleColumns(),
		},
		Checks: CheckRules{
			Formulas: []FormulaRule{
				{
					Key: "remaining_cases",
					Formula: "carry_over_cases + initiated_cases + received_transfer_cases + separated_cases" +
						" + returned_cases + merged_cases - (sent_with_indictment + sent_with_ruling" +
						" + terminated_cases + suspended_cases)",
				},
			},
			Aggregates: []AggregateRule{
				{Metric: "initiated_cases", Column: "new"},
			},
		},
		Workbook: WorkbookRules{
			Metrics: []CellTarget{
				summaryTarget("carry_over_cases", "carried over"),
				summaryTarget("initiated_cases", "initiated"),
				summaryTarget("received_transfer_cases", "received from other agencies"),
				summaryTarget("separated_cases", "separated"),
				summaryTarget("returned_cases", "returned to remedy defects"),
				summaryTarget("merged_cases", "merged"),
				summaryTarget("sent_with_indictment", "with an indictment"),
				summaryTarget("sent_with_ruling", "with a ruling"),
				summaryTarget("terminated_cases", "terminated"),
				summaryTarget("suspended_cases", "suspended"),
				withPrior(summaryTarget("remaining_cases", "remaining in proceedings"), "carry_over_cases"),
				summaryTarget("suspects_detained", "suspects detained"),
				summaryTarget("detained_women", "of them women"),
				summaryTarget("detained_minors", "of them minors"),
			},
			Articles: ArticleTarget{
				Sheet:       "By Article",
				LabelColumn: 1,
				HeaderRow:   1,
				Columns:     defaultArticleColumns(),
			},
		},
	}
}

func defaultArticleColumns() ArticleColumnRules {
	return ArticleColumnRules{
		WomenU18:   ColumnRule{Headers: []string{"women under 18"}, Index: 2},
		WomenGE18:  ColumnRule{Headers: []string{"women 18 and older"}, Index: 3},
		WomenTotal: ColumnRule{Headers: []string{"women total"}, Index: 4},
		Stopped:    ColumnRule{Headers: []string{"stopped"}, Index: 5},
		New:        ColumnRule{Headers: []string{"new"}, Index: 6},
		TotalCases: ColumnRule{Headers: []string{"total cases"}, Index: 7},
	}
}

func summaryTarget(key, rowContains string) CellTarget {
	return CellTarget{
		Key:         key,
		Sheet:       "Summary",
		RowContains: rowContains,
		LabelColumn: 1,
		Column:      ColumnRule{Headers: []string{"count"}, Index: 2},
	}
}

func withPrior(target CellTarget, prior string) CellTarget {
	target.Prior = prior
	return target
}
