package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"kryptrix/internal/alerting"
	"kryptrix/internal/config"
	"kryptrix/internal/fetcher"
	"kryptrix/internal/service"
	"kryptrix/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newBinance() *fetcher.Binance {
	return fetcher.NewBinance(fetcher.BinanceOptions{
		BaseURL:        a.Config.Feed.Binance.BaseURL,
		Timeout:        a.Config.Feed.Binance.RequestTimeout,
		UserAgent:      a.Config.Feed.Binance.UserAgent,
		RequestsPerSec: a.Config.Feed.Binance.RequestsPerSec,
	}, a.Logger)
}

func (a *App) newDex() *fetcher.Dex {
	return fetcher.NewDex(fetcher.DexOptions{
		RPCURL:  a.Config.Feed.Dex.RPCURL,
		Timeout: a.Config.Feed.Dex.RequestTimeout,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newService(store *storage.Store) *service.Service {
	binance := a.newBinance()

	deps := service.Dependencies{
		Cex:      binance,
		History:  binance,
		Dex:      a.newDex(),
		Notifier: a.newNotifier(),
	}
	if store != nil {
		deps.Prices = store
		deps.Results = store
	}

	return service.New(a.Config, deps, a.Logger)
}

// Run executes the long-running analytics service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	svc := a.newService(store)

	a.Logger.Info().Int("symbols", len(a.Config.Symbols)).Msg("starting analytics service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("analytics service stopped")
	return nil
}

// AnalyzeOptions configure a one-shot analytics pass.
type AnalyzeOptions struct {
	Symbol  string
	Persist bool
}

// SimulateOptions describe one what-if scenario from the CLI.
type SimulateOptions struct {
	Scenario        string
	Revenue         float64
	FeeDeltaPct     float64
	LatencyDeltaMs  float64
	ConversionDelta float64
	Persist         bool
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Symbol string
	Limit  int
}

// ExportOptions hold parameters for exporting historical prices.
type ExportOptions struct {
	Symbol    string
	From      *time.Time
	To        *time.Time
	CSVPath   string
	PNGPath   string
	MaxPoints int
}
