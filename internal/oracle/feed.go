/*

This file contains the price oracle adapter. The engine consumes ETH/USD quotes
(8-decimal fixed point) for graduation pool-bound validation and a gas price for the
graduation stipend. Quotes older than the configured freshness window are treated as
stale and replaced by the configured fallback rather than blocking a graduation.

*/

package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/curveforge/curved/internal/logger"
)

var (
	ErrStaleQuote   = errors.New("oracle quote is stale")
	ErrBadQuote     = errors.New("oracle returned an invalid quote")
	ErrFeedFailure  = errors.New("oracle feed request failed")
)

const (
	maxRetries     = 3
	requestTimeout = 10 * time.Second
)

// Quote is an ETH/USD price in 8-decimal fixed point with its publication time.
type Quote struct {
	Price     sdkmath.Int `json:"price"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// PriceFeed exposes the two oracle reads the engine needs.
type PriceFeed interface {
	EthUsd(ctx context.Context) (Quote, error)
	GasPrice(ctx context.Context) (sdkmath.Int, error)
}

type feedResponse struct {
	Price     string `json:"price"`
	UpdatedAt int64  `json:"updated_at"`
	GasPrice  string `json:"gas_price"`
}

// HTTPFeed reads quotes from a JSON endpoint, retrying transient failures with
// exponential backoff.
type HTTPFeed struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

// NewHTTPFeed builds a feed over the given endpoint.
func NewHTTPFeed(url string) *HTTPFeed {
	return &HTTPFeed{
		url:    url,
		client: &http.Client{Timeout: requestTimeout},
		logger: logger.GetForComponent("oracle"),
	}
}

func (f *HTTPFeed) fetch(ctx context.Context) (feedResponse, error) {
	var parsed feedResponse
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := f.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%w: status %d", ErrFeedFailure, resp.StatusCode)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, &parsed); err != nil {
			return backoff.Permanent(fmt.Errorf("%w: %w", ErrBadQuote, err))
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return feedResponse{}, fmt.Errorf("%w: %w", ErrFeedFailure, err)
	}
	return parsed, nil
}

func (f *HTTPFeed) EthUsd(ctx context.Context) (Quote, error) {
	parsed, err := f.fetch(ctx)
	if err != nil {
		return Quote{}, err
	}
	price, ok := sdkmath.NewIntFromString(parsed.Price)
	if !ok || !price.IsPositive() {
		return Quote{}, fmt.Errorf("%w: price %q", ErrBadQuote, parsed.Price)
	}
	return Quote{Price: price, UpdatedAt: time.Unix(parsed.UpdatedAt, 0)}, nil
}

func (f *HTTPFeed) GasPrice(ctx context.Context) (sdkmath.Int, error) {
	parsed, err := f.fetch(ctx)
	if err != nil {
		return sdkmath.Int{}, err
	}
	gas, ok := sdkmath.NewIntFromString(parsed.GasPrice)
	if !ok || !gas.IsPositive() {
		return sdkmath.Int{}, fmt.Errorf("%w: gas price %q", ErrBadQuote, parsed.GasPrice)
	}
	return gas, nil
}

// StaticFeed returns fixed values; used for tests and closed deployments.
type StaticFeed struct {
	Quote    Quote
	Gas      sdkmath.Int
	Err      error
}

func (s *StaticFeed) EthUsd(context.Context) (Quote, error) {
	if s.Err != nil {
		return Quote{}, s.Err
	}
	return s.Quote, nil
}

func (s *StaticFeed) GasPrice(context.Context) (sdkmath.Int, error) {
	if s.Err != nil {
		return sdkmath.Int{}, s.Err
	}
	return s.Gas, nil
}

// Guard wraps a feed with the freshness window and safe fallbacks.
type Guard struct {
	feed        PriceFeed
	clock       clockwork.Clock
	maxAge      time.Duration
	fallbackUsd sdkmath.Int // 8-decimal fixed point
	baseGas     sdkmath.Int // wei per gas unit
	logger      zerolog.Logger
}

// NewGuard builds the staleness guard around a feed.
func NewGuard(feed PriceFeed, clock clockwork.Clock, maxAge time.Duration, fallbackUsd, baseGas sdkmath.Int) *Guard {
	return &Guard{
		feed:        feed,
		clock:       clock,
		maxAge:      maxAge,
		fallbackUsd: fallbackUsd,
		baseGas:     baseGas,
		logger:      logger.GetForComponent("oracle_guard"),
	}
}

// EthUsd returns a fresh quote or ErrStaleQuote when the feed's publication time is
// outside the freshness window.
func (g *Guard) EthUsd(ctx context.Context) (sdkmath.Int, error) {
	quote, err := g.feed.EthUsd(ctx)
	if err != nil {
		return sdkmath.Int{}, err
	}
	if g.clock.Now().Sub(quote.UpdatedAt) > g.maxAge {
		return sdkmath.Int{}, fmt.Errorf("%w: updated at %s", ErrStaleQuote, quote.UpdatedAt)
	}
	return quote.Price, nil
}

// EthUsdOrFallback never fails: stale or unavailable quotes degrade to the configured
// default price.
func (g *Guard) EthUsdOrFallback(ctx context.Context) sdkmath.Int {
	price, err := g.EthUsd(ctx)
	if err != nil {
		g.logger.Warn().Err(err).
			Str("fallback", g.fallbackUsd.String()).
			Msg("ETH/USD quote unusable, using fallback price")
		return g.fallbackUsd
	}
	return price
}

// GasPriceOrBase returns the oracle gas price, falling back to the configured base fee.
func (g *Guard) GasPriceOrBase(ctx context.Context) sdkmath.Int {
	gas, err := g.feed.GasPrice(ctx)
	if err != nil {
		g.logger.Warn().Err(err).
			Str("base_fee", g.baseGas.String()).
			Msg("gas price quote unusable, using base fee")
		return g.baseGas
	}
	return gas
}
