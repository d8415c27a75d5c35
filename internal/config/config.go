package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"kryptrix/internal/anomaly"
	"kryptrix/internal/arbitrage"
	"kryptrix/internal/indicator"
	"kryptrix/internal/logging"
	"kryptrix/internal/simulation"
)

// Config materialises application configuration. Every threshold and
// coefficient the engines read is enumerated here and handed to them at
// construction; validation fails fast at startup, never per cycle.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    logging.Config   `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Feed       FeedConfig       `mapstructure:"feed"`
	Symbols    []SymbolConfig   `mapstructure:"symbols"`
	Indicators indicator.Config `mapstructure:"indicators"`
	Anomaly    anomaly.Config   `mapstructure:"anomaly"`
	Arbitrage  arbitrage.Config `mapstructure:"arbitrage"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Alerting   AlertingConfig   `mapstructure:"alerting"`
	Export     ExportConfig     `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SchedulerConfig governs the refresh cadence.
type SchedulerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	AlignToBucket bool          `mapstructure:"align_to_bucket"`
	StartupDelay  time.Duration `mapstructure:"startup_delay"`
}

// FeedConfig covers the market data collaborators.
type FeedConfig struct {
	Lookback       time.Duration `mapstructure:"lookback"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
	Binance        BinanceConfig `mapstructure:"binance"`
	Dex            DexConfig     `mapstructure:"dex"`
}

// BinanceConfig captures CEX REST connectivity.
type BinanceConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
	RequestsPerSec float64       `mapstructure:"requests_per_sec"`
}

// DexConfig covers on-chain data access.
type DexConfig struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// SymbolConfig registers one tracked asset across its venues. Adding a token
// here is all that's needed for the pipeline to pick it up.
type SymbolConfig struct {
	Symbol         string `mapstructure:"symbol"`
	Name           string `mapstructure:"name"`
	BinanceID      string `mapstructure:"binance_id"`
	PoolAddress    string `mapstructure:"pool_address"`
	Token0Decimals int32  `mapstructure:"token0_decimals"`
	Token1Decimals int32  `mapstructure:"token1_decimals"`
	InvertPrice    bool   `mapstructure:"invert_price"`
}

// SimulationConfig names the what-if response model and baseline defaults.
type SimulationConfig struct {
	BaseFeePct         float64                 `mapstructure:"base_fee_pct"`
	BaseConversionRate float64                 `mapstructure:"base_conversion_rate"`
	BaseLatencyMs      float64                 `mapstructure:"base_latency_ms"`
	Coefficients       simulation.Coefficients `mapstructure:"coefficients"`
}

// AlertingConfig defines alert routing for detected signals.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("KRYPTRIX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "kryptrix")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "5m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("feed.lookback", "72h")
	v.SetDefault("feed.max_concurrency", 10)
	v.SetDefault("feed.binance.base_url", "https://api.binance.com/api/v3")
	v.SetDefault("feed.binance.request_timeout", "10s")
	v.SetDefault("feed.binance.user_agent", "kryptrix/1.0")
	v.SetDefault("feed.binance.requests_per_sec", 10.0)
	v.SetDefault("feed.dex.request_timeout", "10s")

	v.SetDefault("indicators.sma_short_window", 10)
	v.SetDefault("indicators.sma_long_window", 30)
	v.SetDefault("indicators.ema_period", 14)
	v.SetDefault("indicators.rsi_period", 14)
	v.SetDefault("indicators.vwap_window", "24h")
	v.SetDefault("indicators.volatility_window", 30)
	v.SetDefault("indicators.annualization_factor", 365.0)

	v.SetDefault("anomaly.volume_multiplier", 3.0)
	v.SetDefault("anomaly.price_jump_pct", 5.0)
	v.SetDefault("anomaly.zscore_cutoff", 3.0)
	v.SetDefault("anomaly.window", 24)

	v.SetDefault("arbitrage.threshold_pct", 0.1)
	v.SetDefault("arbitrage.max_skew", "2m")

	v.SetDefault("simulation.base_fee_pct", 0.1)
	v.SetDefault("simulation.base_conversion_rate", 0.05)
	v.SetDefault("simulation.base_latency_ms", 200.0)
	v.SetDefault("simulation.coefficients.fee_elasticity", 0.8)
	v.SetDefault("simulation.coefficients.latency_elasticity_per_100ms", 0.05)
	v.SetDefault("simulation.coefficients.adopt_threshold_pct", 1.0)
	v.SetDefault("simulation.coefficients.reject_threshold_pct", -1.0)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs sanity checks on thresholds and windows. A violation is
// a configuration error and aborts startup.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Feed.Lookback <= 0 {
		return fmt.Errorf("feed.lookback must be greater than zero")
	}
	if c.Feed.MaxConcurrency <= 0 {
		return fmt.Errorf("feed.max_concurrency must be greater than zero")
	}

	if c.Indicators.SMAShortWindow <= 0 || c.Indicators.SMALongWindow <= 0 {
		return fmt.Errorf("indicator SMA windows must be greater than zero")
	}
	if c.Indicators.SMAShortWindow >= c.Indicators.SMALongWindow {
		return fmt.Errorf("indicators.sma_short_window must be below sma_long_window")
	}
	if c.Indicators.EMAPeriod <= 0 || c.Indicators.RSIPeriod <= 0 {
		return fmt.Errorf("indicator EMA/RSI periods must be greater than zero")
	}
	if c.Indicators.VWAPWindow <= 0 {
		return fmt.Errorf("indicators.vwap_window must be greater than zero")
	}
	if c.Indicators.VolatilityWindow < 2 {
		return fmt.Errorf("indicators.volatility_window must be at least 2")
	}

	if c.Anomaly.VolumeMultiplier <= 0 {
		return fmt.Errorf("anomaly.volume_multiplier must be greater than zero")
	}
	if c.Anomaly.PriceJumpPct <= 0 {
		return fmt.Errorf("anomaly.price_jump_pct must be greater than zero")
	}
	if c.Anomaly.ZScoreCutoff <= 0 {
		return fmt.Errorf("anomaly.zscore_cutoff must be greater than zero")
	}
	if c.Anomaly.Window <= 0 {
		return fmt.Errorf("anomaly.window must be greater than zero")
	}

	if c.Arbitrage.ThresholdPct < 0 {
		return fmt.Errorf("arbitrage.threshold_pct cannot be negative")
	}
	if c.Arbitrage.MaxSkew <= 0 {
		return fmt.Errorf("arbitrage.max_skew must be greater than zero")
	}

	if c.Simulation.BaseFeePct <= 0 {
		return fmt.Errorf("simulation.base_fee_pct must be greater than zero")
	}
	if c.Simulation.Coefficients.AdoptThresholdPct <= 0 {
		return fmt.Errorf("simulation.coefficients.adopt_threshold_pct must be positive")
	}
	if c.Simulation.Coefficients.RejectThresholdPct >= 0 {
		return fmt.Errorf("simulation.coefficients.reject_threshold_pct must be negative")
	}

	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}

	for i, sym := range c.Symbols {
		if sym.Symbol == "" {
			return fmt.Errorf("symbols[%d].symbol is required", i)
		}
		if sym.BinanceID == "" && sym.PoolAddress == "" {
			return fmt.Errorf("symbols[%d] needs at least one venue identifier", i)
		}
	}

	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required when enabled")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required when enabled")
		}
	}

	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
