package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/quantpool/multi-engine-bot/internal/errors"
)

// Config is the single configuration struct constructed at startup and passed
// by reference into the risk manager and orchestrator. There is no ambient
// global configuration state.
type Config struct {
	Instance string         `json:"instance"`
	LogDir   string         `json:"log_dir"`
	Exchange ExchangeConfig `json:"exchange"`
	Risk     RiskConfig     `json:"risk"`
	Engines  []EngineConfig `json:"engines"`
	Loop     LoopConfig     `json:"loop"`
	State    StateConfig    `json:"state"`
	Monitor  MonitorConfig  `json:"monitoring"`
	Notify   NotifyConfig   `json:"notifications"`
}

// ExchangeConfig selects and configures the exchange collaborator.
type ExchangeConfig struct {
	Name     string       `json:"name"`
	Category string       `json:"category"` // spot, linear
	Bybit    *BybitConfig `json:"bybit,omitempty"`
}

// BybitConfig holds Bybit credentials and environment selection.
type BybitConfig struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
	Testnet   bool   `json:"testnet"`
	Demo      bool   `json:"demo"`
}

// RiskConfig holds every hard limit the risk manager enforces.
type RiskConfig struct {
	RiskPerTradePct        float64 `json:"risk_per_trade_pct"`
	MaxPositionPct         float64 `json:"max_position_pct"`
	MaxDailyLossPct        float64 `json:"max_daily_loss_pct"`
	MaxWeeklyLossPct       float64 `json:"max_weekly_loss_pct"`
	MaxConcurrentPositions int     `json:"max_concurrent_positions"`
	MaxExposurePct         float64 `json:"max_exposure_pct"`
	MinConfidence          float64 `json:"min_confidence"`
	StopLossPct            float64 `json:"stop_loss_pct"`

	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker"`
}

// CircuitBreakerConfig maps drawdown thresholds to the four breaker levels.
type CircuitBreakerConfig struct {
	Level1DrawdownPct float64  `json:"level1_drawdown_pct"`
	Level2DrawdownPct float64  `json:"level2_drawdown_pct"`
	Level3DrawdownPct float64  `json:"level3_drawdown_pct"`
	Level4DrawdownPct float64  `json:"level4_drawdown_pct"`
	CheckInterval     Duration `json:"check_interval"`
}

// EngineConfig declares one strategy engine instance. Exactly one of the
// variant parameter blocks must be set, matching Type.
type EngineConfig struct {
	ID                  string   `json:"id"`
	Type                string   `json:"type"` // accumulation, trend, funding_arb, tactical
	Symbols             []string `json:"symbols"`
	TargetAllocationPct float64  `json:"target_allocation_pct"`
	AnalysisInterval    Duration `json:"analysis_interval"`
	AllowShort          bool     `json:"allow_short"`
	BreakerTolerance    int      `json:"breaker_tolerance"`

	Accumulation *AccumulationParams `json:"accumulation,omitempty"`
	Trend        *TrendParams        `json:"trend,omitempty"`
	FundingArb   *FundingArbParams   `json:"funding_arb,omitempty"`
	Tactical     *TacticalParams     `json:"tactical,omitempty"`
}

// AccumulationParams configures the long-horizon accumulation engine.
type AccumulationParams struct {
	SMAPeriod      int     `json:"sma_period"`
	DiscountPct    float64 `json:"discount_pct"`
	MaxDiscountPct float64 `json:"max_discount_pct"`
}

// TrendParams configures the trend-following engine.
type TrendParams struct {
	FastEMAPeriod int     `json:"fast_ema_period"`
	SlowEMAPeriod int     `json:"slow_ema_period"`
	ADXPeriod     int     `json:"adx_period"`
	MinADX        float64 `json:"min_adx"`
}

// FundingArbParams configures the funding-rate arbitrage engine.
type FundingArbParams struct {
	LookbackPeriod   int     `json:"lookback_period"`
	EntryDriftPct    float64 `json:"entry_drift_pct"`
	ExitDriftPct     float64 `json:"exit_drift_pct"`
	MinAnnualizedPct float64 `json:"min_annualized_pct"`
}

// TacticalParams configures the crisis-deployment engine.
type TacticalParams struct {
	LookbackPeriod   int     `json:"lookback_period"`
	CrisisDropPct    float64 `json:"crisis_drop_pct"`
	RecoveryPct      float64 `json:"recovery_pct"`
	RebalanceDrift   float64 `json:"rebalance_drift"`
	DeployConfidence float64 `json:"deploy_confidence"`
}

// LoopConfig holds the orchestrator timers.
type LoopConfig struct {
	Interval               Duration `json:"interval"`
	BalanceRefreshInterval Duration `json:"balance_refresh_interval"`
	AllocationDriftPct     float64  `json:"allocation_drift_pct"`
	ErrorBackoff           Duration `json:"error_backoff"`
	MarketDataLimit        int      `json:"market_data_limit"`
	MarketDataInterval     string   `json:"market_data_interval"`
}

// StateConfig configures the persistence store.
type StateConfig struct {
	DatabasePath string `json:"database_path"`
}

// MonitorConfig configures the metrics and health endpoints.
type MonitorConfig struct {
	MetricsPort int `json:"metrics_port"`
	HealthPort  int `json:"health_port"`
}

// NotifyConfig configures the alert channel. Both fields empty disables
// notifications.
type NotifyConfig struct {
	TelegramToken  string `json:"telegram_token"`
	TelegramChatID string `json:"telegram_chat_id"`
}

// Duration wraps time.Duration so config files can say "5m" or "1h".
type Duration time.Duration

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Load reads a config file and fills credentials from the environment when
// the file leaves them empty.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.Exchange.Bybit != nil {
		if cfg.Exchange.Bybit.APIKey == "" {
			cfg.Exchange.Bybit.APIKey = os.Getenv("BYBIT_API_KEY")
		}
		if cfg.Exchange.Bybit.APISecret == "" {
			cfg.Exchange.Bybit.APISecret = os.Getenv("BYBIT_API_SECRET")
		}
	}
	if cfg.Notify.TelegramToken == "" {
		cfg.Notify.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	}
	if cfg.Notify.TelegramChatID == "" {
		cfg.Notify.TelegramChatID = os.Getenv("TELEGRAM_CHAT_ID")
	}

	return cfg, nil
}

// Defaults returns a config pre-filled with conservative limits. Load overlays
// the file on top of these.
func Defaults() *Config {
	return &Config{
		Instance: "fund-bot",
		LogDir:   "logs",
		Exchange: ExchangeConfig{Name: "bybit", Category: "linear"},
		Risk: RiskConfig{
			RiskPerTradePct:        0.01,
			MaxPositionPct:         0.20,
			MaxDailyLossPct:        0.02,
			MaxWeeklyLossPct:       0.05,
			MaxConcurrentPositions: 5,
			MaxExposurePct:         0.80,
			MinConfidence:          0.40,
			StopLossPct:            0.03,
			CircuitBreaker: CircuitBreakerConfig{
				Level1DrawdownPct: 0.05,
				Level2DrawdownPct: 0.10,
				Level3DrawdownPct: 0.15,
				Level4DrawdownPct: 0.20,
				CheckInterval:     Duration(1 * time.Minute),
			},
		},
		Loop: LoopConfig{
			Interval:               Duration(5 * time.Second),
			BalanceRefreshInterval: Duration(1 * time.Minute),
			AllocationDriftPct:     0.10,
			ErrorBackoff:           Duration(10 * time.Second),
			MarketDataLimit:        200,
			MarketDataInterval:     "1h",
		},
		State:   StateConfig{DatabasePath: "data/fund-bot.db"},
		Monitor: MonitorConfig{MetricsPort: 9090, HealthPort: 8080},
	}
}

// Validate returns a fatal configuration error when any limit is missing or
// inconsistent. The process must refuse to start on error.
func (c *Config) Validate() error {
	if c.Instance == "" {
		return errors.NewConfigError("config", "instance name is required")
	}
	if err := c.Exchange.validate(); err != nil {
		return err
	}
	if err := c.Risk.validate(); err != nil {
		return err
	}
	if len(c.Engines) == 0 {
		return errors.NewConfigError("config", "at least one engine must be configured")
	}
	totalAlloc := 0.0
	seen := make(map[string]bool)
	for i := range c.Engines {
		if err := c.Engines[i].validate(); err != nil {
			return err
		}
		if seen[c.Engines[i].ID] {
			return errors.NewConfigError("config", fmt.Sprintf("duplicate engine id %q", c.Engines[i].ID))
		}
		seen[c.Engines[i].ID] = true
		totalAlloc += c.Engines[i].TargetAllocationPct
	}
	if totalAlloc > 1.0+1e-9 {
		return errors.NewConfigError("config", fmt.Sprintf("engine target allocations sum to %.2f, must not exceed 1.0", totalAlloc))
	}
	if c.Loop.Interval.Std() <= 0 {
		return errors.NewConfigError("config", "loop interval must be positive")
	}
	if c.State.DatabasePath == "" {
		return errors.NewConfigError("config", "state database path is required")
	}
	return nil
}

func (e *ExchangeConfig) validate() error {
	switch e.Name {
	case "bybit":
		if e.Bybit == nil {
			return errors.NewConfigError("exchange", "bybit section is required when exchange is bybit")
		}
		if e.Bybit.APIKey == "" || e.Bybit.APISecret == "" {
			return errors.NewConfigError("exchange", "bybit API credentials are required (config or BYBIT_API_KEY/BYBIT_API_SECRET)")
		}
	case "paper":
		// No credentials needed for the paper exchange.
	default:
		return errors.NewConfigError("exchange", fmt.Sprintf("unsupported exchange %q", e.Name))
	}
	if e.Category == "" {
		return errors.NewConfigError("exchange", "exchange category is required")
	}
	return nil
}

func (r *RiskConfig) validate() error {
	if r.RiskPerTradePct <= 0 || r.RiskPerTradePct > 0.10 {
		return errors.NewConfigError("risk", "risk_per_trade_pct must be in (0, 0.10]")
	}
	if r.MaxPositionPct <= 0 || r.MaxPositionPct > 1 {
		return errors.NewConfigError("risk", "max_position_pct must be in (0, 1]")
	}
	if r.MaxDailyLossPct <= 0 || r.MaxDailyLossPct >= 1 {
		return errors.NewConfigError("risk", "max_daily_loss_pct must be in (0, 1)")
	}
	if r.MaxWeeklyLossPct < r.MaxDailyLossPct {
		return errors.NewConfigError("risk", "max_weekly_loss_pct must be >= max_daily_loss_pct")
	}
	if r.MaxConcurrentPositions <= 0 {
		return errors.NewConfigError("risk", "max_concurrent_positions must be positive")
	}
	if r.MinConfidence < 0 || r.MinConfidence > 1 {
		return errors.NewConfigError("risk", "min_confidence must be in [0, 1]")
	}
	cb := r.CircuitBreaker
	if !(cb.Level1DrawdownPct < cb.Level2DrawdownPct &&
		cb.Level2DrawdownPct < cb.Level3DrawdownPct &&
		cb.Level3DrawdownPct < cb.Level4DrawdownPct) {
		return errors.NewConfigError("risk", "circuit breaker thresholds must be strictly increasing")
	}
	return nil
}

func (e *EngineConfig) validate() error {
	if e.ID == "" {
		return errors.NewConfigError("engine", "engine id is required")
	}
	if len(e.Symbols) == 0 {
		return errors.NewConfigError("engine", fmt.Sprintf("engine %q needs at least one symbol", e.ID))
	}
	if e.TargetAllocationPct <= 0 || e.TargetAllocationPct > 1 {
		return errors.NewConfigError("engine", fmt.Sprintf("engine %q target allocation must be in (0, 1]", e.ID))
	}
	if e.AnalysisInterval.Std() <= 0 {
		return errors.NewConfigError("engine", fmt.Sprintf("engine %q analysis interval must be positive", e.ID))
	}
	switch e.Type {
	case "accumulation":
		if e.Accumulation == nil {
			return errors.NewConfigError("engine", fmt.Sprintf("engine %q missing accumulation params", e.ID))
		}
	case "trend":
		if e.Trend == nil {
			return errors.NewConfigError("engine", fmt.Sprintf("engine %q missing trend params", e.ID))
		}
	case "funding_arb":
		if e.FundingArb == nil {
			return errors.NewConfigError("engine", fmt.Sprintf("engine %q missing funding_arb params", e.ID))
		}
	case "tactical":
		if e.Tactical == nil {
			return errors.NewConfigError("engine", fmt.Sprintf("engine %q missing tactical params", e.ID))
		}
	default:
		return errors.NewConfigError("engine", fmt.Sprintf("engine %q has unknown type %q", e.ID, e.Type))
	}
	return nil
}
