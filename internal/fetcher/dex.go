package fetcher

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"kryptrix/internal/market"
)

const (
	uniswapV3PoolABIJSON = `[{"inputs":[],"name":"slot0","outputs":[{"internalType":"uint160","name":"sqrtPriceX96","type":"uint160"},{"internalType":"int24","name":"tick","type":"int24"},{"internalType":"uint16","name":"observationIndex","type":"uint16"},{"internalType":"uint16","name":"observationCardinality","type":"uint16"},{"internalType":"uint16","name":"observationCardinalityNext","type":"uint16"},{"internalType":"uint8","name":"feeProtocol","type":"uint8"},{"internalType":"bool","name":"unlocked","type":"bool"}],"stateMutability":"view","type":"function"}]`
)

var poolABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(uniswapV3PoolABIJSON))
	if err != nil {
		panic("failed to parse Uniswap V3 pool ABI: " + err.Error())
	}
	poolABI = parsed
}

// q192 = 2^192, the denominator of (sqrtPriceX96)^2.
var q192 = decimal.NewFromBigInt(new(big.Int).Lsh(big.NewInt(1), 192), 0)

// DexOptions parameterise the on-chain DEX fetcher.
type DexOptions struct {
	RPCURL  string
	Timeout time.Duration
}

// Dex reads spot prices from Uniswap V3 pools via Ethereum RPC. Pool reads
// carry no volume information; DEX records report zero volume and feed the
// arbitrage detector only.
type Dex struct {
	opts      DexOptions
	logger    zerolog.Logger
	client    *ethclient.Client
	clientMux sync.Mutex
}

// NewDex builds a new on-chain fetcher.
func NewDex(opts DexOptions, logger zerolog.Logger) *Dex {
	return &Dex{opts: opts, logger: logger.With().Str("component", "dex_fetcher").Logger()}
}

// Exchange names the venue for api_health reporting.
func (d *Dex) Exchange() string {
	return "uniswap_v3"
}

// FetchSpot reads the pool's current sqrtPriceX96 and converts it to a
// token price.
func (d *Dex) FetchSpot(ctx context.Context, inst Instrument) (market.PriceRecord, error) {
	if d.opts.RPCURL == "" {
		return market.PriceRecord{}, errors.New("ethereum rpc url not configured")
	}
	if inst.PoolAddress == "" {
		return market.PriceRecord{}, errors.New("pool address not configured for instrument")
	}

	timeout := d.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := d.getClient(ctx)
	if err != nil {
		return market.PriceRecord{}, err
	}

	addr := common.HexToAddress(inst.PoolAddress)
	payload, err := poolABI.Pack("slot0")
	if err != nil {
		return market.PriceRecord{}, err
	}

	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: payload}, nil)
	if err != nil {
		return market.PriceRecord{}, fmt.Errorf("call slot0: %w", err)
	}

	outputs, err := poolABI.Unpack("slot0", res)
	if err != nil {
		return market.PriceRecord{}, fmt.Errorf("unpack slot0: %w", err)
	}
	if len(outputs) == 0 {
		return market.PriceRecord{}, errors.New("unexpected slot0 response")
	}

	sqrtPriceX96, ok := outputs[0].(*big.Int)
	if !ok {
		return market.PriceRecord{}, errors.New("failed to decode sqrtPriceX96")
	}

	price, err := poolPrice(sqrtPriceX96, inst)
	if err != nil {
		return market.PriceRecord{}, err
	}

	return market.PriceRecord{
		Symbol:    inst.Symbol,
		Exchange:  d.Exchange(),
		Timestamp: time.Now().UTC(),
		Price:     price,
		Volume:    decimal.Zero,
	}, nil
}

// poolPrice converts sqrtPriceX96 to a token1-per-token0 price adjusted for
// token decimals, inverted when the tracked token is token1.
func poolPrice(sqrtPriceX96 *big.Int, inst Instrument) (decimal.Decimal, error) {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return decimal.Decimal{}, errors.New("pool returned non-positive sqrt price")
	}

	sqrt := decimal.NewFromBigInt(sqrtPriceX96, 0)
	raw := sqrt.Mul(sqrt).Div(q192)

	// Shift by the decimal difference between the pair's tokens.
	price := raw.Mul(decimal.New(1, inst.Token0Decimals-inst.Token1Decimals))
	if inst.InvertPrice {
		if price.IsZero() {
			return decimal.Decimal{}, errors.New("pool price is zero, cannot invert")
		}
		price = decimal.NewFromInt(1).Div(price)
	}
	return price, nil
}

func (d *Dex) getClient(ctx context.Context) (*ethclient.Client, error) {
	d.clientMux.Lock()
	defer d.clientMux.Unlock()

	if d.client != nil {
		return d.client, nil
	}

	client, err := ethclient.DialContext(ctx, d.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	d.client = client
	return client, nil
}

var _ SpotFetcher = (*Dex)(nil)
