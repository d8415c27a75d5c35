package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"kryptrix/internal/market"
)

const (
	binanceTickerPath = "/ticker/24hr"
	binanceKlinesPath = "/klines"

	defaultKlineInterval = "1h"
	maxKlineLimit        = 1000
)

// BinanceOptions parameterise the CEX fetcher.
type BinanceOptions struct {
	BaseURL        string
	Timeout        time.Duration
	UserAgent      string
	RequestsPerSec float64
}

// Binance fetches spot tickers and candle history from the Binance REST API.
type Binance struct {
	opts    BinanceOptions
	logger  zerolog.Logger
	client  *http.Client
	limiter *rate.Limiter
	baseURL string
}

// NewBinance constructs a Binance fetcher.
func NewBinance(opts BinanceOptions, logger zerolog.Logger) *Binance {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.binance.com/api/v3"
	}

	rps := opts.RequestsPerSec
	if rps <= 0 {
		rps = 10
	}

	return &Binance{
		opts:    opts,
		logger:  logger.With().Str("component", "binance_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		baseURL: baseURL,
	}
}

// Exchange names the venue for api_health reporting.
func (b *Binance) Exchange() string {
	return "binance"
}

// FetchSpot retrieves the 24h ticker for the instrument.
func (b *Binance) FetchSpot(ctx context.Context, inst Instrument) (market.PriceRecord, error) {
	if inst.BinanceID == "" {
		return market.PriceRecord{}, errors.New("binance id not configured for instrument")
	}

	endpoint := fmt.Sprintf("%s%s?symbol=%s", b.baseURL, binanceTickerPath, url.QueryEscape(inst.BinanceID))
	payload, err := b.get(ctx, endpoint)
	if err != nil {
		return market.PriceRecord{}, err
	}

	var ticker struct {
		LastPrice string `json:"lastPrice"`
		Volume    string `json:"volume"`
		CloseTime int64  `json:"closeTime"`
	}
	if err := json.Unmarshal(payload, &ticker); err != nil {
		return market.PriceRecord{}, fmt.Errorf("decode ticker: %w", err)
	}

	price, err := decimal.NewFromString(ticker.LastPrice)
	if err != nil {
		return market.PriceRecord{}, fmt.Errorf("parse last price: %w", err)
	}
	volume, err := decimal.NewFromString(ticker.Volume)
	if err != nil {
		return market.PriceRecord{}, fmt.Errorf("parse volume: %w", err)
	}

	ts := time.Now().UTC()
	if ticker.CloseTime > 0 {
		ts = time.UnixMilli(ticker.CloseTime).UTC()
	}

	return market.PriceRecord{
		Symbol:    inst.Symbol,
		Exchange:  b.Exchange(),
		Timestamp: ts,
		Price:     price,
		Volume:    volume,
	}, nil
}

// FetchHistory retrieves hourly candles covering the lookback window.
func (b *Binance) FetchHistory(ctx context.Context, inst Instrument, lookback time.Duration) ([]market.PriceRecord, error) {
	if inst.BinanceID == "" {
		return nil, errors.New("binance id not configured for instrument")
	}
	if lookback <= 0 {
		return nil, errors.New("lookback must be positive")
	}

	start := time.Now().UTC().Add(-lookback)
	endpoint := fmt.Sprintf("%s%s?symbol=%s&interval=%s&startTime=%d&limit=%d",
		b.baseURL, binanceKlinesPath, url.QueryEscape(inst.BinanceID),
		defaultKlineInterval, start.UnixMilli(), maxKlineLimit)

	payload, err := b.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	// Klines arrive as positional arrays:
	// [openTime, open, high, low, close, volume, closeTime, ...]
	var rows [][]json.RawMessage
	if err := json.Unmarshal(payload, &rows); err != nil {
		return nil, fmt.Errorf("decode klines: %w", err)
	}

	records := make([]market.PriceRecord, 0, len(rows))
	for _, row := range rows {
		if len(row) < 7 {
			continue
		}

		var openTime int64
		if err := json.Unmarshal(row[0], &openTime); err != nil {
			return nil, fmt.Errorf("parse kline open time: %w", err)
		}
		var closeStr, volumeStr string
		if err := json.Unmarshal(row[4], &closeStr); err != nil {
			return nil, fmt.Errorf("parse kline close: %w", err)
		}
		if err := json.Unmarshal(row[5], &volumeStr); err != nil {
			return nil, fmt.Errorf("parse kline volume: %w", err)
		}

		price, err := decimal.NewFromString(closeStr)
		if err != nil {
			return nil, fmt.Errorf("parse kline close price: %w", err)
		}
		volume, err := decimal.NewFromString(volumeStr)
		if err != nil {
			return nil, fmt.Errorf("parse kline volume: %w", err)
		}

		records = append(records, market.PriceRecord{
			Symbol:    inst.Symbol,
			Exchange:  b.Exchange(),
			Timestamp: time.UnixMilli(openTime).UTC(),
			Price:     price,
			Volume:    volume,
		})
	}

	return records, nil
}

func (b *Binance) get(ctx context.Context, endpoint string) ([]byte, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(b.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "kryptrix/1.0")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(resp.StatusCode, payload)
	}
	return payload, nil
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr apiError
	if err := json.Unmarshal(payload, &apiErr); err == nil && apiErr.Message != "" {
		return fmt.Errorf("binance api error (%d): %s", status, apiErr.Message)
	}
	if len(payload) > 0 {
		return fmt.Errorf("binance api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("binance api error (%d)", status)
}

var _ SpotFetcher = (*Binance)(nil)
var _ HistoryFetcher = (*Binance)(nil)
