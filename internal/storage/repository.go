package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	upsertPriceSQL = `INSERT INTO prices (
        symbol, exchange, ts, price, volume
    ) VALUES ($1,$2,$3,$4,$5)
    ON CONFLICT (symbol, exchange, ts) DO UPDATE
    SET price = EXCLUDED.price,
        volume = EXCLUDED.volume;`

	listPricesBetweenSQL = `SELECT
        symbol, exchange, ts, price, volume, created_at
    FROM prices
    WHERE symbol = $1
      AND ts >= $2
      AND ts < $3
    ORDER BY ts;`

	upsertIndicatorSQL = `INSERT INTO indicators (
        symbol, bucket_ts, sma10, sma30, ema, rsi14, vwap24h, realized_vol
    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
    ON CONFLICT (symbol, bucket_ts) DO UPDATE
    SET sma10        = EXCLUDED.sma10,
        sma30        = EXCLUDED.sma30,
        ema          = EXCLUDED.ema,
        rsi14        = EXCLUDED.rsi14,
        vwap24h      = EXCLUDED.vwap24h,
        realized_vol = EXCLUDED.realized_vol;`

	listRecentIndicatorsSQL = `SELECT
        symbol, bucket_ts, sma10, sma30, ema, rsi14, vwap24h, realized_vol, created_at
    FROM indicators
    WHERE symbol = $1
    ORDER BY bucket_ts DESC
    LIMIT $2;`

	insertAnomalySQL = `INSERT INTO anomalies (
        symbol, ts, kind, severity, triggering_value
    ) VALUES ($1,$2,$3,$4,$5)
    RETURNING id;`

	listRecentAnomaliesSQL = `SELECT
        id, symbol, ts, kind, severity, triggering_value, created_at
    FROM anomalies
    ORDER BY ts DESC
    LIMIT $1;`

	insertArbitrageSQL = `INSERT INTO arbitrage (
        asset, cex_price, dex_price, spread_abs, spread_pct, direction, ts
    ) VALUES ($1,$2,$3,$4,$5,$6,$7)
    RETURNING id;`

	listRecentArbitrageSQL = `SELECT
        id, asset, cex_price, dex_price, spread_abs, spread_pct, direction, ts, created_at
    FROM arbitrage
    ORDER BY ts DESC
    LIMIT $1;`

	insertSimulationSQL = `INSERT INTO simulations (
        scenario, baseline_revenue, simulated_revenue, delta_abs, delta_pct, recommendation
    ) VALUES ($1,$2,$3,$4,$5,$6)
    RETURNING id, created_at;`

	insertHealthSQL = `INSERT INTO api_health (
        source, healthy, response_time_ms, error_message, checked_at
    ) VALUES ($1,$2,$3,$4,$5);`
)

// PriceStore defines operations for raw price persistence.
type PriceStore interface {
	UpsertPrices(ctx context.Context, rows []PriceRow) error
	ListPricesBetween(ctx context.Context, symbol string, from, to time.Time) ([]PriceRow, error)
}

// ResultStore defines operations for derived analytics persistence.
type ResultStore interface {
	UpsertIndicators(ctx context.Context, row IndicatorRow) error
	ListRecentIndicators(ctx context.Context, symbol string, limit int) ([]IndicatorRow, error)
	InsertAnomalies(ctx context.Context, rows []AnomalyRow) error
	ListRecentAnomalies(ctx context.Context, limit int) ([]AnomalyRow, error)
	InsertArbitrage(ctx context.Context, rows []ArbitrageRow) error
	ListRecentArbitrage(ctx context.Context, limit int) ([]ArbitrageRow, error)
	InsertAPIHealth(ctx context.Context, rows []HealthRow) error
}

// SimulationStore defines operations for what-if result auditing.
type SimulationStore interface {
	InsertSimulation(ctx context.Context, row SimulationRow) (SimulationRow, error)
}

// Store aggregates access to the analytics tables.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// UpsertPrices persists a batch of price observations.
func (s *Store) UpsertPrices(ctx context.Context, rows []PriceRow) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(upsertPriceSQL,
			row.Symbol,
			row.Exchange,
			row.Timestamp,
			row.Price.String(),
			row.Volume.String(),
		)
	}

	results := pool.SendBatch(ctx, batch)
	defer results.Close()
	for range rows {
		if _, execErr := results.Exec(); execErr != nil {
			return fmt.Errorf("upsert price: %w", execErr)
		}
	}
	return nil
}

// ListPricesBetween lists prices for a symbol within a time window.
func (s *Store) ListPricesBetween(ctx context.Context, symbol string, from, to time.Time) ([]PriceRow, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listPricesBetweenSQL, symbol, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list prices between: %w", queryErr)
	}
	defer rows.Close()

	prices := make([]PriceRow, 0)
	for rows.Next() {
		var (
			row       PriceRow
			priceStr  string
			volumeStr string
		)
		if err := rows.Scan(&row.Symbol, &row.Exchange, &row.Timestamp, &priceStr, &volumeStr, &row.CreatedAt); err != nil {
			return nil, err
		}
		if row.Price, err = decimal.NewFromString(priceStr); err != nil {
			return nil, fmt.Errorf("parse price: %w", err)
		}
		if row.Volume, err = decimal.NewFromString(volumeStr); err != nil {
			return nil, fmt.Errorf("parse volume: %w", err)
		}
		prices = append(prices, row)
	}
	return prices, rows.Err()
}

// UpsertIndicators persists one indicator snapshot.
func (s *Store) UpsertIndicators(ctx context.Context, row IndicatorRow) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	if _, execErr := pool.Exec(ctx, upsertIndicatorSQL,
		row.Symbol,
		row.Bucket,
		row.SMA10,
		row.SMA30,
		row.EMA,
		row.RSI14,
		row.VWAP24h,
		row.RealizedVol,
	); execErr != nil {
		return fmt.Errorf("upsert indicators: %w", execErr)
	}
	return nil
}

// ListRecentIndicators lists the latest indicator rows for a symbol.
func (s *Store) ListRecentIndicators(ctx context.Context, symbol string, limit int) ([]IndicatorRow, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentIndicatorsSQL, symbol, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent indicators: %w", queryErr)
	}
	defer rows.Close()

	out := make([]IndicatorRow, 0, limit)
	for rows.Next() {
		var row IndicatorRow
		if err := rows.Scan(
			&row.Symbol,
			&row.Bucket,
			&row.SMA10,
			&row.SMA30,
			&row.EMA,
			&row.RSI14,
			&row.VWAP24h,
			&row.RealizedVol,
			&row.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// InsertAnomalies persists a batch of detected anomalies.
func (s *Store) InsertAnomalies(ctx context.Context, rows []AnomalyRow) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(insertAnomalySQL,
			row.Symbol,
			row.Timestamp,
			row.Kind,
			row.Severity,
			row.TriggeringValue,
		)
	}

	results := pool.SendBatch(ctx, batch)
	defer results.Close()
	for range rows {
		var id int64
		if scanErr := results.QueryRow().Scan(&id); scanErr != nil {
			return fmt.Errorf("insert anomaly: %w", scanErr)
		}
	}
	return nil
}

// ListRecentAnomalies lists most recent anomalies across all symbols.
func (s *Store) ListRecentAnomalies(ctx context.Context, limit int) ([]AnomalyRow, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAnomaliesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent anomalies: %w", queryErr)
	}
	defer rows.Close()

	out := make([]AnomalyRow, 0, limit)
	for rows.Next() {
		var row AnomalyRow
		if err := rows.Scan(
			&row.ID,
			&row.Symbol,
			&row.Timestamp,
			&row.Kind,
			&row.Severity,
			&row.TriggeringValue,
			&row.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// InsertArbitrage persists a batch of spread opportunities.
func (s *Store) InsertArbitrage(ctx context.Context, rows []ArbitrageRow) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(insertArbitrageSQL,
			row.Asset,
			row.CexPrice.String(),
			row.DexPrice.String(),
			row.SpreadAbs.String(),
			row.SpreadPct.String(),
			row.Direction,
			row.Timestamp,
		)
	}

	results := pool.SendBatch(ctx, batch)
	defer results.Close()
	for range rows {
		var id int64
		if scanErr := results.QueryRow().Scan(&id); scanErr != nil {
			return fmt.Errorf("insert arbitrage: %w", scanErr)
		}
	}
	return nil
}

// ListRecentArbitrage lists most recent opportunities.
func (s *Store) ListRecentArbitrage(ctx context.Context, limit int) ([]ArbitrageRow, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentArbitrageSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent arbitrage: %w", queryErr)
	}
	defer rows.Close()

	out := make([]ArbitrageRow, 0, limit)
	for rows.Next() {
		var (
			row    ArbitrageRow
			cexStr string
			dexStr string
			absStr string
			pctStr string
		)
		if err := rows.Scan(
			&row.ID,
			&row.Asset,
			&cexStr,
			&dexStr,
			&absStr,
			&pctStr,
			&row.Direction,
			&row.Timestamp,
			&row.CreatedAt,
		); err != nil {
			return nil, err
		}

		var convErr error
		if row.CexPrice, convErr = decimal.NewFromString(cexStr); convErr != nil {
			return nil, fmt.Errorf("parse cex price: %w", convErr)
		}
		if row.DexPrice, convErr = decimal.NewFromString(dexStr); convErr != nil {
			return nil, fmt.Errorf("parse dex price: %w", convErr)
		}
		if row.SpreadAbs, convErr = decimal.NewFromString(absStr); convErr != nil {
			return nil, fmt.Errorf("parse spread abs: %w", convErr)
		}
		if row.SpreadPct, convErr = decimal.NewFromString(pctStr); convErr != nil {
			return nil, fmt.Errorf("parse spread pct: %w", convErr)
		}

		out = append(out, row)
	}
	return out, rows.Err()
}

// InsertSimulation persists one projection and returns the stored row.
func (s *Store) InsertSimulation(ctx context.Context, row SimulationRow) (SimulationRow, error) {
	pool, err := s.getPool()
	if err != nil {
		return SimulationRow{}, err
	}

	if scanErr := pool.QueryRow(ctx, insertSimulationSQL,
		row.Scenario,
		row.BaselineRevenue.String(),
		row.SimulatedRevenue.String(),
		row.DeltaAbs.String(),
		row.DeltaPct,
		row.Recommendation,
	).Scan(&row.ID, &row.CreatedAt); scanErr != nil {
		return SimulationRow{}, fmt.Errorf("insert simulation: %w", scanErr)
	}
	return row, nil
}

// InsertAPIHealth records exchange reachability for the cycle.
func (s *Store) InsertAPIHealth(ctx context.Context, rows []HealthRow) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(insertHealthSQL,
			row.Source,
			row.Healthy,
			row.ResponseTimeMs,
			row.ErrorMessage,
			row.CheckedAt,
		)
	}

	results := pool.SendBatch(ctx, batch)
	defer results.Close()
	for range rows {
		if _, execErr := results.Exec(); execErr != nil {
			return fmt.Errorf("insert api health: %w", execErr)
		}
	}
	return nil
}

var _ PriceStore = (*Store)(nil)
var _ ResultStore = (*Store)(nil)
var _ SimulationStore = (*Store)(nil)
