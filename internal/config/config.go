// Package config handles YAML configuration loading and validation for the
// grid engine core, adapted from the teacher's internal/config.Config —
// same env-var-expansion-then-unmarshal-then-validate pipeline, regrouped
// around the `grid/regime/policy/funding/exit/execution/position/risk`
// sections this spec defines instead of the teacher's
// app/exchanges/trading/system sections.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config is the complete set of `§6 Config keys consumed`.
type Config struct {
	Instrument string          `yaml:"instrument"`
	Strategy   string          `yaml:"strategy"`
	StatePath  string          `yaml:"state_path"`

	Grid      GridConfig      `yaml:"grid"`
	Regime    RegimeConfig    `yaml:"regime"`
	Policy    PolicyConfig    `yaml:"policy"`
	Funding   FundingConfig   `yaml:"funding"`
	Exit      ExitConfig      `yaml:"exit"`
	Execution ExecutionConfig `yaml:"execution"`
	Position  PositionConfig  `yaml:"position"`
	Risk      RiskConfig      `yaml:"risk"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type GridConfig struct {
	GridStepBps          decimal.Decimal `yaml:"grid_step_bps"`
	NRungs               int             `yaml:"n_rungs" validate:"required,min=1,max=200"`
	BaseQty              decimal.Decimal `yaml:"base_qty"`
	RecenterThresholdBps decimal.Decimal `yaml:"recenter_threshold_bps"`
	UpBias               decimal.Decimal `yaml:"up_bias"`
	DownBias             decimal.Decimal `yaml:"down_bias"`
	SideBias             decimal.Decimal `yaml:"side_bias"`
}

type RegimeConfig struct {
	EmaFast       int             `yaml:"ema_fast" validate:"required,min=1"`
	EmaSlow       int             `yaml:"ema_slow" validate:"required,min=1"`
	AdxLen        int             `yaml:"adx_len" validate:"required,min=1"`
	AtrLen        int             `yaml:"atr_len" validate:"required,min=1"`
	HysteresisBps decimal.Decimal `yaml:"hysteresis_bps"`
	TrendingADX   decimal.Decimal `yaml:"trending_adx"`
}

type PolicyConfig struct {
	LongKeepLevels  int `yaml:"long_keep_levels"`
	ShortKeepLevels int `yaml:"short_keep_levels"`
}

type FundingConfig struct {
	FundingWindowMinutes int             `yaml:"funding_window_minutes"`
	FundingMaxCostBps    decimal.Decimal `yaml:"funding_max_cost_bps"`
}

type ExitConfig struct {
	TPSteps int `yaml:"tp_steps" validate:"required,min=1"`
	SLSteps int `yaml:"sl_steps" validate:"required,min=1"`
}

type ExecutionConfig struct {
	RetryAttempts                int             `yaml:"retry_attempts"`
	RetryDelayMs                 int             `yaml:"retry_delay_ms"`
	UsePostOnlyRetries            bool            `yaml:"use_post_only_retries"`
	OrderDiffPriceToleranceBps    decimal.Decimal `yaml:"order_diff_price_tolerance_bps"`
	OrderDiffQtyTolerancePct      decimal.Decimal `yaml:"order_diff_qty_tolerance_pct"`
	BalanceCheckIntervalSeconds   int             `yaml:"balance_check_interval_seconds"`
	TPSLAdjustmentBufferBps       decimal.Decimal `yaml:"tp_sl_adjustment_buffer_bps"`
	MaxBarStalenessSeconds        int             `yaml:"max_bar_staleness_seconds"`
	OptimizationMode              bool            `yaml:"optimization_mode"`
}

type PositionConfig struct {
	MaxPositionPct decimal.Decimal `yaml:"max_position_pct"`
}

type RiskConfig struct {
	MaxDrawdownPct                decimal.Decimal `yaml:"max_drawdown_pct"`
	MaxErrorsPerMinute            int             `yaml:"max_errors_per_minute"`
	CircuitBreakerWindowSeconds   int             `yaml:"circuit_breaker_window_seconds"`
	CircuitBreakerCooldownSeconds int             `yaml:"circuit_breaker_cooldown_seconds"`
	EnableDrawdownProtection      bool            `yaml:"enable_drawdown_protection"`
	EnableCircuitBreaker          bool            `yaml:"enable_circuit_breaker"`
}

type TelemetryConfig struct {
	MetricsPort   int  `yaml:"metrics_port"`
	EnableMetrics bool `yaml:"enable_metrics"`
}

// ValidationError names the offending field alongside a human message.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field %q: %s", e.Field, e.Message)
}

// Load reads filename, expands ${VAR}/$VAR environment references, parses
// the YAML, and validates the result.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.Expand(string(data), func(key string) string {
		return os.Getenv(key)
	})

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks the fields that must hold for the engine to start safely.
func (c *Config) Validate() error {
	var problems []string

	if c.Instrument == "" {
		problems = append(problems, ValidationError{Field: "instrument", Message: "required"}.Error())
	}
	if c.Strategy == "" {
		problems = append(problems, ValidationError{Field: "strategy", Message: "required"}.Error())
	}
	if c.Grid.NRungs <= 0 {
		problems = append(problems, ValidationError{Field: "grid.n_rungs", Message: "must be positive"}.Error())
	}
	if !c.Grid.BaseQty.IsPositive() {
		problems = append(problems, ValidationError{Field: "grid.base_qty", Message: "must be positive"}.Error())
	}
	if c.Regime.EmaFast <= 0 || c.Regime.EmaSlow <= 0 {
		problems = append(problems, ValidationError{Field: "regime.ema_fast/ema_slow", Message: "must be positive"}.Error())
	}
	if c.Regime.EmaFast >= c.Regime.EmaSlow {
		problems = append(problems, ValidationError{Field: "regime.ema_fast", Message: "must be shorter than regime.ema_slow"}.Error())
	}
	if c.Exit.TPSteps <= 0 || c.Exit.SLSteps <= 0 {
		problems = append(problems, ValidationError{Field: "exit.tp_steps/sl_steps", Message: "must be positive"}.Error())
	}

	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}
