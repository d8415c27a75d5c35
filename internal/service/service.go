package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"kryptrix/internal/alerting"
	"kryptrix/internal/anomaly"
	"kryptrix/internal/arbitrage"
	"kryptrix/internal/config"
	"kryptrix/internal/fetcher"
	"kryptrix/internal/indicator"
	"kryptrix/internal/market"
	"kryptrix/internal/scheduler"
	"kryptrix/internal/storage"
)

// AnalyticsResult is the per-symbol outcome of one refresh cycle.
type AnalyticsResult struct {
	Symbol     string
	Bucket     time.Time
	Indicators indicator.Snapshot
	Anomalies  []anomaly.Flag
	Arbitrage  []arbitrage.Opportunity
	APIHealth  map[string]bool
}

// Dependencies groups the collaborators the orchestrator drives. Prices,
// Results and Notifier may be nil; the pipeline then runs compute-only.
type Dependencies struct {
	Cex      fetcher.SpotFetcher
	History  fetcher.HistoryFetcher
	Dex      fetcher.SpotFetcher
	Prices   storage.PriceStore
	Results  storage.ResultStore
	Notifier alerting.Notifier
}

// Service coordinates fetch, sanitise, compute, detect, persist and alert for
// every registered symbol. Engines receive full configuration at construction
// and a failure on one venue or symbol never fails the cycle.
type Service struct {
	cfg        *config.Config
	deps       Dependencies
	indicators *indicator.Engine
	anomalies  *anomaly.Detector
	spreads    *arbitrage.Detector
	cache      *seriesCache
	logger     zerolog.Logger
}

// New constructs the orchestrator.
func New(cfg *config.Config, deps Dependencies, logger zerolog.Logger) *Service {
	return &Service{
		cfg:        cfg,
		deps:       deps,
		indicators: indicator.NewEngine(cfg.Indicators),
		anomalies:  anomaly.NewDetector(cfg.Anomaly),
		spreads:    arbitrage.NewDetector(cfg.Arbitrage),
		cache:      newSeriesCache(cfg.Feed.Lookback),
		logger:     logger.With().Str("component", "service").Logger(),
	}
}

// Warmup seeds the in-memory series from exchange history so indicator
// windows are usable on the first live cycle instead of hours later.
func (s *Service) Warmup(ctx context.Context) error {
	if s.deps.History == nil {
		return nil
	}

	for _, sym := range s.cfg.Symbols {
		if sym.BinanceID == "" {
			continue
		}

		inst := newInstrument(sym)
		records, err := s.deps.History.FetchHistory(ctx, inst, s.cfg.Feed.Lookback)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn().Err(err).Str("symbol", sym.Symbol).Msg("history warmup failed, starting cold")
			continue
		}

		rejected := s.cache.Seed(sym.Symbol, s.deps.Cex.Exchange(), records)
		s.logger.Info().
			Str("symbol", sym.Symbol).
			Int("records", len(records)).
			Int("rejected", rejected).
			Msg("series warmed from history")

		s.persistPrices(ctx, s.cache.Snapshot(sym.Symbol, s.deps.Cex.Exchange()))
	}
	return nil
}

// Run warms the series and then drives refresh cycles until ctx is
// cancelled.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Warmup(ctx); err != nil {
		return err
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     s.cfg.Scheduler.Interval,
		AlignToStart: s.cfg.Scheduler.AlignToBucket,
		StartupDelay: s.cfg.Scheduler.StartupDelay,
	}, s.logger)

	return sched.Run(ctx, func(ctx context.Context, bucket time.Time) error {
		_, err := s.RunCycle(ctx, bucket)
		return err
	})
}

// RunCycle executes one full refresh for every registered symbol, bounded by
// the configured fetch concurrency. Results come back sorted by symbol so a
// cycle is a deterministic function of its inputs.
func (s *Service) RunCycle(ctx context.Context, bucket time.Time) ([]AnalyticsResult, error) {
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(s.cfg.Feed.MaxConcurrency)

	var mu sync.Mutex
	results := make([]AnalyticsResult, 0, len(s.cfg.Symbols))

	for _, sym := range s.cfg.Symbols {
		group.Go(func() error {
			res := s.analyzeSymbol(gctx, bucket, sym)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Symbol < results[j].Symbol })

	s.logger.Info().
		Time("bucket", bucket).
		Int("symbols", len(results)).
		Msg("refresh cycle completed")
	return results, ctx.Err()
}

// analyzeSymbol runs the pipeline for one symbol. It always produces a
// result: venue failures degrade the result instead of erroring out.
func (s *Service) analyzeSymbol(ctx context.Context, bucket time.Time, sym config.SymbolConfig) AnalyticsResult {
	inst := newInstrument(sym)
	res := AnalyticsResult{
		Symbol:    sym.Symbol,
		Bucket:    bucket,
		APIHealth: make(map[string]bool, 2),
	}

	health := make([]storage.HealthRow, 0, 2)
	freshPrices := make([]storage.PriceRow, 0, 2)

	var (
		cexRec market.PriceRecord
		cexOK  bool
		dexRec market.PriceRecord
		dexOK  bool
	)

	if inst.BinanceID != "" && s.deps.Cex != nil {
		rec, elapsed, err := fetchSpot(ctx, s.deps.Cex, inst, s.cfg.Feed.Binance.RequestTimeout)
		res.APIHealth[s.deps.Cex.Exchange()] = err == nil
		health = append(health, healthRow(s.deps.Cex.Exchange(), elapsed, err))
		if err != nil {
			s.logger.Warn().Err(err).Str("symbol", sym.Symbol).Str("exchange", s.deps.Cex.Exchange()).Msg("spot fetch failed")
		} else {
			cexRec, cexOK = rec, true
			freshPrices = append(freshPrices, priceRow(rec))
		}
	}

	if inst.PoolAddress != "" && s.deps.Dex != nil {
		rec, elapsed, err := fetchSpot(ctx, s.deps.Dex, inst, s.cfg.Feed.Dex.RequestTimeout)
		res.APIHealth[s.deps.Dex.Exchange()] = err == nil
		health = append(health, healthRow(s.deps.Dex.Exchange(), elapsed, err))
		if err != nil {
			s.logger.Warn().Err(err).Str("symbol", sym.Symbol).Str("exchange", s.deps.Dex.Exchange()).Msg("spot fetch failed")
		} else {
			dexRec, dexOK = rec, true
			freshPrices = append(freshPrices, priceRow(rec))
		}
	}

	// Indicators and anomalies run off the CEX candle series. A failed CEX
	// fetch marks every metric source-unavailable; stale values are never
	// re-surfaced as current.
	if cexOK {
		series := s.cache.Append(cexRec)
		res.Indicators = s.indicators.Compute(sym.Symbol, series)
		res.Anomalies = s.anomalies.Detect(sym.Symbol, series)
	} else {
		res.Indicators = indicator.Unavailable(sym.Symbol, bucket)
	}

	// Arbitrage needs both venues in the same cycle.
	if cexOK && dexOK {
		opp, found := s.spreads.Evaluate(
			arbitrage.Quote{Asset: sym.Symbol, Exchange: s.deps.Cex.Exchange(), Price: cexRec.Price, Timestamp: cexRec.Timestamp},
			arbitrage.Quote{Asset: sym.Symbol, Exchange: s.deps.Dex.Exchange(), Price: dexRec.Price, Timestamp: dexRec.Timestamp},
		)
		if found {
			res.Arbitrage = append(res.Arbitrage, opp)
		}
	}

	fresh := freshFlags(res.Anomalies, cexRec.Timestamp)
	s.persist(ctx, res, fresh, freshPrices, health)
	s.alert(ctx, res, fresh)
	return res
}

func (s *Service) persist(ctx context.Context, res AnalyticsResult, fresh []anomaly.Flag, prices []storage.PriceRow, health []storage.HealthRow) {
	if len(prices) > 0 && s.deps.Prices != nil {
		if err := s.deps.Prices.UpsertPrices(ctx, prices); err != nil {
			s.logger.Warn().Err(err).Str("symbol", res.Symbol).Msg("persist prices failed")
		}
	}

	if s.deps.Results == nil {
		return
	}

	row := storage.IndicatorRow{
		Symbol:      res.Symbol,
		Bucket:      res.Bucket,
		SMA10:       metricPtr(res.Indicators.SMA10),
		SMA30:       metricPtr(res.Indicators.SMA30),
		EMA:         metricPtr(res.Indicators.EMA),
		RSI14:       metricPtr(res.Indicators.RSI14),
		VWAP24h:     metricPtr(res.Indicators.VWAP24h),
		RealizedVol: metricPtr(res.Indicators.Volatility),
	}
	if err := s.deps.Results.UpsertIndicators(ctx, row); err != nil {
		s.logger.Warn().Err(err).Str("symbol", res.Symbol).Msg("persist indicators failed")
	}

	if len(fresh) > 0 {
		rows := make([]storage.AnomalyRow, 0, len(fresh))
		for _, flag := range fresh {
			rows = append(rows, storage.AnomalyRow{
				Symbol:          flag.Symbol,
				Timestamp:       flag.Timestamp,
				Kind:            string(flag.Kind),
				Severity:        flag.Severity,
				TriggeringValue: flag.TriggeringValue,
			})
		}
		if err := s.deps.Results.InsertAnomalies(ctx, rows); err != nil {
			s.logger.Warn().Err(err).Str("symbol", res.Symbol).Msg("persist anomalies failed")
		}
	}

	if len(res.Arbitrage) > 0 {
		rows := make([]storage.ArbitrageRow, 0, len(res.Arbitrage))
		for _, opp := range res.Arbitrage {
			rows = append(rows, storage.ArbitrageRow{
				Asset:     opp.Asset,
				CexPrice:  opp.CexPrice,
				DexPrice:  opp.DexPrice,
				SpreadAbs: opp.SpreadAbs,
				SpreadPct: opp.SpreadPct,
				Direction: string(opp.Direction),
				Timestamp: opp.Timestamp,
			})
		}
		if err := s.deps.Results.InsertArbitrage(ctx, rows); err != nil {
			s.logger.Warn().Err(err).Str("symbol", res.Symbol).Msg("persist arbitrage failed")
		}
	}

	if len(health) > 0 {
		if err := s.deps.Results.InsertAPIHealth(ctx, health); err != nil {
			s.logger.Warn().Err(err).Str("symbol", res.Symbol).Msg("persist api health failed")
		}
	}
}

func (s *Service) persistPrices(ctx context.Context, records []market.PriceRecord) {
	if s.deps.Prices == nil || len(records) == 0 {
		return
	}
	rows := make([]storage.PriceRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, priceRow(rec))
	}
	if err := s.deps.Prices.UpsertPrices(ctx, rows); err != nil {
		s.logger.Warn().Err(err).Msg("persist history prices failed")
	}
}

func (s *Service) alert(ctx context.Context, res AnalyticsResult, fresh []anomaly.Flag) {
	if s.deps.Notifier == nil || !s.cfg.Alerting.Enabled {
		return
	}
	if len(fresh) == 0 && len(res.Arbitrage) == 0 {
		return
	}

	note := alerting.Notification{
		Symbol:    res.Symbol,
		Bucket:    res.Bucket,
		Anomalies: fresh,
		Arbitrage: res.Arbitrage,
	}
	if err := s.deps.Notifier.Notify(ctx, note); err != nil {
		s.logger.Warn().Err(err).Str("symbol", res.Symbol).Msg("alert dispatch failed")
	}
}

func fetchSpot(ctx context.Context, f fetcher.SpotFetcher, inst fetcher.Instrument, timeout time.Duration) (market.PriceRecord, float64, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	rec, err := f.FetchSpot(ctx, inst)
	return rec, float64(time.Since(start).Milliseconds()), err
}

// freshFlags keeps only flags raised by the observation appended this cycle.
// Older flags were already reported when their record arrived.
func freshFlags(flags []anomaly.Flag, latest time.Time) []anomaly.Flag {
	if len(flags) == 0 || latest.IsZero() {
		return nil
	}
	fresh := make([]anomaly.Flag, 0, len(flags))
	for _, flag := range flags {
		if !flag.Timestamp.Before(latest) {
			fresh = append(fresh, flag)
		}
	}
	return fresh
}

func healthRow(source string, elapsedMs float64, err error) storage.HealthRow {
	row := storage.HealthRow{
		Source:         source,
		Healthy:        err == nil,
		ResponseTimeMs: &elapsedMs,
		CheckedAt:      time.Now().UTC(),
	}
	if err != nil {
		msg := err.Error()
		row.ErrorMessage = &msg
	}
	return row
}

func priceRow(rec market.PriceRecord) storage.PriceRow {
	return storage.PriceRow{
		Symbol:    rec.Symbol,
		Exchange:  rec.Exchange,
		Timestamp: rec.Timestamp,
		Price:     rec.Price,
		Volume:    rec.Volume,
	}
}

func metricPtr(m market.Metric) *float64 {
	if v, ok := m.Value(); ok {
		return &v
	}
	return nil
}

func newInstrument(sym config.SymbolConfig) fetcher.Instrument {
	return fetcher.Instrument{
		Symbol:         sym.Symbol,
		Name:           sym.Name,
		BinanceID:      sym.BinanceID,
		PoolAddress:    sym.PoolAddress,
		Token0Decimals: sym.Token0Decimals,
		Token1Decimals: sym.Token1Decimals,
		InvertPrice:    sym.InvertPrice,
	}
}
