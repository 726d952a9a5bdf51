// Package config loads and validates the process configuration.
//
// Configuration is read with viper from a single file plus SMINER_*
// environment overrides. The audit rule bundles are parsed exactly once
// here into the typed structures of the audit package; nothing downstream
// ever re-parses textual window keys, comparators or trend names at
// evaluation time.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/nanashi07/sminer-sub000/internal/audit"
)

// Canonical audit mode names.
const (
	ModeFlash  = "flash"
	ModeSlug   = "slug"
	ModeRevert = "revert"
)

// Config is the complete application configuration.
type Config struct {
	Feed     FeedConfig            `mapstructure:"feed"`
	Trading  TradingConfig         `mapstructure:"trading"`
	Audit    map[string]ModeConfig `mapstructure:"audit"`
	Database DatabaseConfig        `mapstructure:"database"`
	Metrics  MetricsConfig         `mapstructure:"metrics"`
	Schedule ScheduleConfig        `mapstructure:"schedule"`
	Logging  LoggingConfig         `mapstructure:"logging"`
}

// FeedConfig configures the upstream quote gateway connection.
type FeedConfig struct {
	Endpoint   string        `mapstructure:"endpoint"`
	Symbols    []string      `mapstructure:"symbols"`
	MaxSymbols int           `mapstructure:"max_symbols"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
}

// SymbolOptions holds per-symbol trading options.
type SymbolOptions struct {
	Enabled        bool    `mapstructure:"enabled"`
	MaxOrderAmount float64 `mapstructure:"max_order_amount"`
}

// TradingConfig holds trading options keyed by symbol.
type TradingConfig struct {
	Symbols map[string]SymbolOptions `mapstructure:"symbols"`
}

// ModeConfig is the raw form of one audit mode bundle.
type ModeConfig struct {
	LossMarginRate float64      `mapstructure:"loss_margin_rate"`
	Rules          []RuleConfig `mapstructure:"rules"`
}

// RuleConfig is the raw form of one audit rule.
type RuleConfig struct {
	Symbols      []string                `mapstructure:"symbols"`
	Evaluation   bool                    `mapstructure:"evaluation"`
	Trends       []TrendRuleConfig       `mapstructure:"trends"`
	Deviations   []DeviationRuleConfig   `mapstructure:"deviations"`
	Oscillations []OscillationRuleConfig `mapstructure:"oscillations"`
	Lowers       []LowerRuleConfig       `mapstructure:"lowers"`
}

// TrendRuleConfig is the raw form of a trend sub-rule. From defaults to 0.
type TrendRuleConfig struct {
	From        int    `mapstructure:"from"`
	To          int    `mapstructure:"to"`
	Trend       string `mapstructure:"trend"`
	Up          int    `mapstructure:"up"`
	Down        int    `mapstructure:"down"`
	UpCompare   string `mapstructure:"up_compare"`
	DownCompare string `mapstructure:"down_compare"`
}

// DeviationRuleConfig is the raw form of a deviation sub-rule.
type DeviationRuleConfig struct {
	From      int     `mapstructure:"from"`
	To        int     `mapstructure:"to"`
	Threshold float64 `mapstructure:"threshold"`
}

// OscillationRuleConfig is the raw form of an oscillation sub-rule.
type OscillationRuleConfig struct {
	From      int     `mapstructure:"from"`
	To        int     `mapstructure:"to"`
	Threshold float64 `mapstructure:"threshold"`
}

// LowerRuleConfig is the raw form of a lower-price sub-rule.
type LowerRuleConfig struct {
	From      int `mapstructure:"from"`
	To        int `mapstructure:"to"`
	CompareTo int `mapstructure:"compare_to"`
}

// DatabaseConfig configures the sqlite recorder.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// MetricsConfig configures the prometheus endpoint.
type MetricsConfig struct {
	Addr    string `mapstructure:"addr"`
	Enabled bool   `mapstructure:"enabled"`
}

// ScheduleConfig holds the cron expressions of the periodic passes.
type ScheduleConfig struct {
	RebalanceCron string `mapstructure:"rebalance_cron"`
	ProfitCron    string `mapstructure:"profit_cron"`
}

// LoggingConfig holds logging options.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration from path with environment overrides applied.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	setDefaults(v)

	v.SetEnvPrefix("SMINER")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("feed.max_symbols", 32)
	v.SetDefault("feed.ping_period", 15*time.Second)
	v.SetDefault("database.path", "data/sminer.db")
	v.SetDefault("metrics.addr", ":9100")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("schedule.rebalance_cron", "*/10 * * * * *")
	v.SetDefault("schedule.profit_cron", "0 5 16 * * 1-5")
	v.SetDefault("logging.level", "info")
}

// Validate checks required fields and every rule bundle.
func (c *Config) Validate() error {
	if c.Feed.Endpoint == "" {
		return fmt.Errorf("feed.endpoint is required")
	}
	if len(c.Feed.Symbols) == 0 {
		return fmt.Errorf("feed.symbols is required")
	}
	if c.Feed.MaxSymbols <= 0 {
		return fmt.Errorf("feed.max_symbols must be positive")
	}
	for name, mode := range c.Audit {
		switch name {
		case ModeFlash, ModeSlug, ModeRevert:
		default:
			return fmt.Errorf("unknown audit mode %q", name)
		}
		if mode.LossMarginRate < 0 || mode.LossMarginRate >= 1 {
			return fmt.Errorf("audit.%s.loss_margin_rate out of range", name)
		}
		for i, rule := range mode.Rules {
			if err := validateRule(rule); err != nil {
				return fmt.Errorf("audit.%s.rules[%d]: %w", name, i, err)
			}
		}
	}
	return nil
}

func validateRule(rule RuleConfig) error {
	for _, t := range rule.Trends {
		if t.To <= t.From {
			return fmt.Errorf("trend range [%d,%d) is empty", t.From, t.To)
		}
		if _, err := audit.ParseTrend(t.Trend); err != nil {
			return err
		}
		if _, err := audit.ParseComparator(t.UpCompare); err != nil {
			return err
		}
		if _, err := audit.ParseComparator(t.DownCompare); err != nil {
			return err
		}
	}
	for _, d := range rule.Deviations {
		if d.To <= d.From {
			return fmt.Errorf("deviation range [%d,%d) is empty", d.From, d.To)
		}
		if d.Threshold <= 0 {
			return fmt.Errorf("deviation threshold must be positive")
		}
	}
	for _, o := range rule.Oscillations {
		if o.To <= o.From {
			return fmt.Errorf("oscillation range [%d,%d) is empty", o.From, o.To)
		}
		if o.Threshold <= 0 {
			return fmt.Errorf("oscillation threshold must be positive")
		}
	}
	for _, l := range rule.Lowers {
		if l.To <= l.From {
			return fmt.Errorf("lower range [%d,%d) is empty", l.From, l.To)
		}
		if l.CompareTo <= 0 {
			return fmt.Errorf("lower compare_to must be positive")
		}
	}
	return nil
}

// Modes compiles the raw audit bundles into typed audit modes. Parsing
// happens once here; comparator and trend tokens were already validated.
func (c *Config) Modes() map[string]*audit.Mode {
	modes := make(map[string]*audit.Mode, len(c.Audit))
	for name, mc := range c.Audit {
		mode := &audit.Mode{
			Name:           name,
			LossMarginRate: mc.LossMarginRate,
			Rules:          make([]audit.Rule, 0, len(mc.Rules)),
		}
		for _, rc := range mc.Rules {
			mode.Rules = append(mode.Rules, compileRule(rc))
		}
		modes[name] = mode
	}
	return modes
}

func compileRule(rc RuleConfig) audit.Rule {
	rule := audit.Rule{
		Symbols:    rc.Symbols,
		Evaluation: rc.Evaluation,
	}
	for _, t := range rc.Trends {
		direction, _ := audit.ParseTrend(t.Trend)
		upCmp, _ := audit.ParseComparator(t.UpCompare)
		downCmp, _ := audit.ParseComparator(t.DownCompare)
		rule.Trends = append(rule.Trends, audit.TrendRule{
			From:        t.From,
			To:          t.To,
			Trend:       direction,
			Up:          t.Up,
			Down:        t.Down,
			UpCompare:   upCmp,
			DownCompare: downCmp,
		})
	}
	for _, d := range rc.Deviations {
		rule.Deviations = append(rule.Deviations, audit.DeviationRule{
			From: d.From, To: d.To, Threshold: d.Threshold,
		})
	}
	for _, o := range rc.Oscillations {
		rule.Oscillations = append(rule.Oscillations, audit.OscillationRule{
			From: o.From, To: o.To, Threshold: o.Threshold,
		})
	}
	for _, l := range rc.Lowers {
		rule.Lowers = append(rule.Lowers, audit.LowerRule{
			From: l.From, To: l.To, CompareTo: l.CompareTo,
		})
	}
	return rule
}
