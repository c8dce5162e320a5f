package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/GoPolymarket/polysession/internal/clob"
	"github.com/GoPolymarket/polysession/internal/config"
	"github.com/GoPolymarket/polysession/internal/market"
	"github.com/GoPolymarket/polysession/internal/pkg/apperrors"
	"github.com/GoPolymarket/polysession/internal/pkg/logger"
	"github.com/GoPolymarket/polysession/internal/pkg/metrics"
	"github.com/shopspring/decimal"
)

type UsageRepo interface {
	GetDailyUsage(ctx context.Context, address string) (int, float64, error)
	AddDailyUsage(ctx context.Context, address string, orders int, amount float64) error
}

// BookReader exposes cached books. Missing, unready or stale books fall back
// to the quote source.
type BookReader interface {
	GetBook(tokenID string) *market.Orderbook
}

// PriceQuoter returns the exchange's REST quote for a token. Side BUY is the
// best bid and SELL the best ask.
type PriceQuoter interface {
	GetPrice(ctx context.Context, tokenID string, side clob.Side) (float64, error)
}

// A cached book that has not moved for this long is not trusted.
const staleBookAfter = 10 * time.Second

var errNoPrice = errors.New("no reference price")

// OrderIntent is what the risk checks need from an order request.
type OrderIntent struct {
	TokenID string
	Side    clob.Side
	Price   float64 // zero for market orders
	Size    float64
	Market  bool
}

type RiskEngine struct {
	repo   UsageRepo
	books  BookReader
	quotes PriceQuoter
	limits config.RiskConfig
	now    func() time.Time
}

func NewRiskEngine(repo UsageRepo, books BookReader, quotes PriceQuoter, limits config.RiskConfig) *RiskEngine {
	if repo == nil {
		repo = NewRiskUsageStore()
	}
	return &RiskEngine{repo: repo, books: books, quotes: quotes, limits: limits, now: time.Now}
}

func reject(reason, format string, args ...interface{}) error {
	metrics.RiskRejects.WithLabelValues(reason).Inc()
	return apperrors.New(apperrors.ErrRiskRejected, "risk reject: "+fmt.Sprintf(format, args...), nil)
}

// cachedPrice is the price a taker on side would cross in the cached book.
func (e *RiskEngine) cachedPrice(tokenID string, side clob.Side) (decimal.Decimal, bool) {
	if e.books == nil {
		return decimal.Zero, false
	}
	book := e.books.GetBook(tokenID)
	if book == nil || !book.Ready() || e.now().Sub(book.UpdatedAt()) > staleBookAfter {
		return decimal.Zero, false
	}
	bids, asks := book.GetCopy()
	levels := asks
	if side == clob.Sell {
		levels = bids
	}
	if len(levels) == 0 || !levels[0].Price.IsPositive() {
		return decimal.Zero, false
	}
	return levels[0].Price, true
}

// referencePrice is the best ask for a BUY and the best bid for a SELL, from
// a fresh cached book or else the REST quote.
func (e *RiskEngine) referencePrice(ctx context.Context, tokenID string, side clob.Side) (decimal.Decimal, error) {
	if p, ok := e.cachedPrice(tokenID, side); ok {
		return p, nil
	}
	if e.quotes == nil {
		return decimal.Zero, errNoPrice
	}
	quoteSide := clob.Sell
	if side == clob.Sell {
		quoteSide = clob.Buy
	}
	p, err := e.quotes.GetPrice(ctx, tokenID, quoteSide)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", errNoPrice, err)
	}
	if !clob.ValidProbability(p) {
		return decimal.Zero, errNoPrice
	}
	return decimal.NewFromFloat(p), nil
}

// OrderValue estimates collateral at risk. Market orders are priced at the
// reference price and fail when none is available.
func (e *RiskEngine) OrderValue(ctx context.Context, in OrderIntent) (float64, error) {
	price := decimal.NewFromFloat(in.Price)
	if in.Market {
		p, err := e.referencePrice(ctx, in.TokenID, in.Side)
		if err != nil {
			return 0, err
		}
		price = p
	}
	return price.Mul(decimal.NewFromFloat(in.Size)).InexactFloat64(), nil
}

// CheckOrder runs every pre-trade check. A returned error must reject the order.
func (e *RiskEngine) CheckOrder(ctx context.Context, address string, in OrderIntent) error {
	limits := e.limits

	if !in.Market && (in.Price <= 0 || in.Price >= 1.0) {
		return reject("price_bounds", "price %.4f out of bounds (0-1)", in.Price)
	}
	if in.Size <= 0 {
		return reject("invalid_size", "size must be positive")
	}

	for _, restricted := range limits.RestrictedTokens {
		if in.TokenID == restricted {
			return reject("restricted_market", "token %s is restricted", in.TokenID)
		}
	}

	valueLimited := limits.MaxOrderValue > 0 || limits.MaxDailyValue > 0
	orderVal, err := e.OrderValue(ctx, in)
	if err != nil {
		if valueLimited {
			logger.LogError(ctx, err, "market order could not be priced", "token_id", in.TokenID)
			return reject("no_price", "unable to price market order for token %s", in.TokenID)
		}
		orderVal = 0
	}
	if limits.MaxOrderValue > 0 && orderVal > limits.MaxOrderValue {
		return reject("max_value", "order value %.2f exceeds limit %.2f", orderVal, limits.MaxOrderValue)
	}

	if limits.MaxSlippage > 0 && !in.Market {
		if ref, err := e.referencePrice(ctx, in.TokenID, in.Side); err == nil {
			reqPrice := decimal.NewFromFloat(in.Price)
			slippage := decimal.NewFromFloat(limits.MaxSlippage)
			one := decimal.NewFromInt(1)

			if in.Side == clob.Buy {
				maxPrice := ref.Mul(one.Add(slippage))
				if reqPrice.GreaterThan(maxPrice) {
					return reject("slippage", "buy price %.4f deviates too much from best ask %.4f (limit: %.4f)",
						in.Price, ref.InexactFloat64(), maxPrice.InexactFloat64())
				}
			}
			if in.Side == clob.Sell {
				minPrice := ref.Mul(one.Sub(slippage))
				if reqPrice.LessThan(minPrice) {
					return reject("slippage", "sell price %.4f deviates too much from best bid %.4f (limit: %.4f)",
						in.Price, ref.InexactFloat64(), minPrice.InexactFloat64())
				}
			}
		}
	}

	if limits.MaxDailyValue > 0 || limits.MaxDailyOrders > 0 {
		currentOrders, currentVol, err := e.repo.GetDailyUsage(ctx, address)
		if err != nil {
			return apperrors.New(apperrors.ErrInternal, "risk check failed", err)
		}
		if limits.MaxDailyValue > 0 && currentVol+orderVal > limits.MaxDailyValue {
			return reject("daily_volume_limit", "daily volume limit exceeded (curr: %.2f, new: %.2f, max: %.2f)",
				currentVol, orderVal, limits.MaxDailyValue)
		}
		if limits.MaxDailyOrders > 0 && currentOrders+1 > limits.MaxDailyOrders {
			return reject("daily_order_limit", "daily order limit exceeded (curr: %d, max: %d)",
				currentOrders, limits.MaxDailyOrders)
		}
	}
	return nil
}

// PostOrderHook records usage after the exchange accepted an order. An order
// that cannot be priced still counts toward the order limit.
func (e *RiskEngine) PostOrderHook(ctx context.Context, address string, in OrderIntent) {
	value, err := e.OrderValue(ctx, in)
	if err != nil {
		value = 0
	}
	if err := e.repo.AddDailyUsage(ctx, address, 1, value); err != nil {
		logger.LogError(ctx, err, "failed to record daily usage", "address", address)
	}
}
