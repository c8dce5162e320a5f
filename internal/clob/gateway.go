package clob

import (
	"context"
	"errors"
	"strings"

	"github.com/GoPolymarket/polysession/internal/auth"
	"github.com/GoPolymarket/polysession/internal/pkg/apperrors"
	"github.com/GoPolymarket/polysession/internal/pkg/logger"
	"github.com/GoPolymarket/polysession/internal/pkg/metrics"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const (
	StatusLive = "LIVE"

	msgMissingCredentials = "Missing API credentials"
	msgMissingPrice       = "Price required for limit orders"
	msgInvalidMarketPrice = "Unable to get valid market price"
	msgNoMatch            = "Not enough liquidity to fill market order"
	msgNoOrderID          = "Order submission failed - no order ID returned"
	msgMissingParams      = "Missing order parameters"
)

// PlaceOrderRequest carries either a full limit order or the
// {tokenId, size, side} shorthand. A nil NegRisk is looked up on the exchange.
type PlaceOrderRequest struct {
	Order         *LimitOrderArgs
	TokenID       string
	Size          float64
	Side          string
	Price         float64
	IsMarketOrder bool
	NegRisk       *bool
	Credentials   auth.Credentials
}

// Gateway is the exchange surface used on behalf of the configured wallet.
type Gateway struct {
	client *Client
	signer OrderSigner
	proxy  common.Address
}

func NewGateway(client *Client, s OrderSigner, proxy common.Address) *Gateway {
	return &Gateway{client: client, signer: s, proxy: proxy}
}

func (g *Gateway) ProxyAddress() common.Address {
	return g.proxy
}

func upstream(err error, fallback string) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apperrors.NewUpstream(apiErr.Error(), err)
	}
	return apperrors.NewUpstream(fallback, err)
}

// DeriveOrCreateCredentials returns the signer's existing API key, creating
// one when none can be derived.
func (g *Gateway) DeriveOrCreateCredentials(ctx context.Context) (auth.Credentials, error) {
	log := logger.FromContext(ctx).With("address", g.signer.Address().Hex())

	creds, err := g.client.DeriveAPIKey(ctx, g.signer)
	if err == nil && creds.Complete() {
		log.Info("derived existing api credentials")
		return creds, nil
	}
	if err != nil {
		log.Debug("derive api key failed, creating", "error", err)
	}

	creds, err = g.client.CreateAPIKey(ctx, g.signer)
	if err != nil {
		return auth.Credentials{}, apperrors.NewUpstream("Failed to derive credentials", err)
	}
	if !creds.Complete() {
		return auth.Credentials{}, apperrors.NewUpstream("Failed to derive credentials", errors.New("incomplete credentials returned"))
	}
	log.Info("created new api credentials")
	return creds, nil
}

// FilterLiveOrders keeps orders made by proxy (case-insensitive) that are LIVE.
func FilterLiveOrders(orders []OpenOrder, proxy string) []OpenOrder {
	out := make([]OpenOrder, 0, len(orders))
	for _, o := range orders {
		if !strings.EqualFold(o.MakerAddress, proxy) {
			continue
		}
		if o.Status != StatusLive {
			continue
		}
		out = append(out, o)
	}
	return out
}

func (g *Gateway) GetOpenOrders(ctx context.Context, creds auth.Credentials) ([]OpenOrder, error) {
	if !creds.Complete() {
		return nil, apperrors.NewInvalidRequest(msgMissingCredentials)
	}
	all, err := g.client.OpenOrders(ctx, g.signer.Address().Hex(), creds)
	if err != nil {
		return nil, upstream(err, "Failed to fetch orders")
	}
	return FilterLiveOrders(all, g.proxy.Hex()), nil
}

// MarketNotional is the amount sent for a market order: size×ask for BUY and
// the raw size for SELL.
func MarketNotional(side Side, size, askPrice float64) float64 {
	if side == Buy {
		return decimal.NewFromFloat(size).Mul(decimal.NewFromFloat(askPrice)).InexactFloat64()
	}
	return size
}

// PlaceOrder signs and posts an order and returns the exchange order id.
func (g *Gateway) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (string, error) {
	if !req.Credentials.Complete() {
		return "", apperrors.NewInvalidRequest(msgMissingCredentials)
	}
	builder := orderBuilder{signer: g.signer, maker: g.proxy}

	var (
		negRisk   bool
		signed    SignedOrder
		orderType OrderType
		side      Side
		err       error
	)
	switch {
	case req.Order != nil:
		side = req.Order.Side
		orderType = OrderTypeGTC
		if negRisk, err = g.resolveNegRisk(ctx, req.Order.TokenID, req.NegRisk); err != nil {
			return "", err
		}
		signed, err = g.buildLimit(ctx, builder, *req.Order, negRisk)
	case req.TokenID != "" && req.Side != "":
		side, err = ParseSide(req.Side)
		if err != nil {
			return "", apperrors.NewInvalidRequest(err.Error())
		}
		if req.Size <= 0 {
			return "", apperrors.NewInvalidRequest("Size must be positive")
		}
		if !req.IsMarketOrder && req.Price == 0 {
			return "", apperrors.NewInvalidRequest(msgMissingPrice)
		}
		if negRisk, err = g.resolveNegRisk(ctx, req.TokenID, req.NegRisk); err != nil {
			return "", err
		}
		if req.IsMarketOrder {
			orderType = OrderTypeFOK
			signed, err = g.buildMarket(ctx, builder, req.TokenID, side, req.Size, negRisk)
		} else {
			orderType = OrderTypeGTC
			signed, err = g.buildLimit(ctx, builder, LimitOrderArgs{
				TokenID: req.TokenID,
				Side:    side,
				Size:    req.Size,
				Price:   req.Price,
			}, negRisk)
		}
	default:
		return "", apperrors.NewInvalidRequest(msgMissingParams)
	}
	if err != nil {
		metrics.OrdersTotal.WithLabelValues("rejected", string(side), string(orderType)).Inc()
		return "", err
	}

	resp, err := g.client.PostOrder(ctx, g.signer.Address().Hex(), req.Credentials, signed, orderType)
	if err != nil {
		metrics.OrdersTotal.WithLabelValues("error", string(side), string(orderType)).Inc()
		return "", upstream(err, "Failed to create order")
	}
	id := resp.ID()
	if id == "" {
		metrics.OrdersTotal.WithLabelValues("error", string(side), string(orderType)).Inc()
		var cause error
		if resp.ErrorMsg != "" {
			cause = errors.New(resp.ErrorMsg)
		}
		return "", apperrors.NewUpstream(msgNoOrderID, cause)
	}

	metrics.OrdersTotal.WithLabelValues("placed", string(side), string(orderType)).Inc()
	logger.FromContext(ctx).Info("order placed",
		"order_id", id,
		"token_id", signed.TokenID,
		"side", side,
		"type", orderType,
		"status", resp.Status,
	)
	return id, nil
}

func (g *Gateway) resolveNegRisk(ctx context.Context, tokenID string, explicit *bool) (bool, error) {
	if explicit != nil {
		return *explicit, nil
	}
	negRisk, err := g.client.NegRisk(ctx, tokenID)
	if err != nil {
		return false, upstream(err, "Failed to fetch market type")
	}
	return negRisk, nil
}

func (g *Gateway) buildLimit(ctx context.Context, b orderBuilder, args LimitOrderArgs, negRisk bool) (SignedOrder, error) {
	if args.Side != Buy && args.Side != Sell {
		return SignedOrder{}, apperrors.NewInvalidRequest("Invalid order side")
	}
	if args.Size <= 0 {
		return SignedOrder{}, apperrors.NewInvalidRequest("Size must be positive")
	}
	tick, err := g.client.TickSize(ctx, args.TokenID)
	if err != nil {
		return SignedOrder{}, upstream(err, "Failed to fetch tick size")
	}
	if err := ValidateLimitPrice(args.Price, tick); err != nil {
		return SignedOrder{}, apperrors.NewInvalidRequest(err.Error())
	}
	signed, err := b.buildLimit(args, tick, negRisk)
	if err != nil {
		return SignedOrder{}, apperrors.NewInvalidRequest(err.Error())
	}
	return signed, nil
}

func (g *Gateway) buildMarket(ctx context.Context, b orderBuilder, tokenID string, side Side, size float64, negRisk bool) (SignedOrder, error) {
	// The notional of a BUY is sized off the best ask.
	quoteSide := Sell
	if side == Sell {
		quoteSide = Buy
	}
	quote, err := g.client.Price(ctx, tokenID, quoteSide)
	if err != nil {
		return SignedOrder{}, upstream(err, "Failed to fetch market price")
	}
	if !ValidProbability(quote) {
		return SignedOrder{}, apperrors.NewInvalidMarketPrice(msgInvalidMarketPrice)
	}
	amount := MarketNotional(side, size, quote)

	book, err := g.client.Book(ctx, tokenID)
	if err != nil {
		return SignedOrder{}, upstream(err, "Failed to fetch order book")
	}
	price, err := MarketPrice(book, side, amount)
	if errors.Is(err, ErrNoMatch) {
		return SignedOrder{}, apperrors.NewInvalidMarketPrice(msgNoMatch)
	}
	if err != nil || !ValidProbability(price) {
		return SignedOrder{}, apperrors.NewInvalidMarketPrice(msgInvalidMarketPrice)
	}

	tick, err := g.client.TickSize(ctx, tokenID)
	if err != nil {
		return SignedOrder{}, upstream(err, "Failed to fetch tick size")
	}

	signed, err := b.buildMarket(MarketOrderArgs{
		TokenID: tokenID,
		Side:    side,
		Amount:  amount,
		Price:   price,
	}, tick, negRisk)
	if err != nil {
		return SignedOrder{}, apperrors.NewInvalidRequest(err.Error())
	}
	return signed, nil
}

func (g *Gateway) CancelOrder(ctx context.Context, orderID string, creds auth.Credentials) error {
	if strings.TrimSpace(orderID) == "" {
		return apperrors.NewInvalidRequest("Missing order ID")
	}
	if !creds.Complete() {
		return apperrors.NewInvalidRequest(msgMissingCredentials)
	}
	resp, err := g.client.CancelOrder(ctx, g.signer.Address().Hex(), creds, orderID)
	if err != nil {
		return upstream(err, "Failed to cancel order")
	}
	if reason, ok := resp.NotCanceled[orderID]; ok {
		return apperrors.NewUpstream("Failed to cancel order: "+reason, nil)
	}
	logger.FromContext(ctx).Info("order cancelled", "order_id", orderID)
	return nil
}

func (g *Gateway) GetPrice(ctx context.Context, tokenID string, side Side) (float64, error) {
	if tokenID == "" {
		return 0, apperrors.NewInvalidRequest("Missing tokenId parameter")
	}
	price, err := g.client.Price(ctx, tokenID, side)
	if err != nil {
		return 0, upstream(err, "Failed to fetch price")
	}
	return price, nil
}

// BuildPriceMap keeps only tokens whose bid and ask are both inside (0,1).
func BuildPriceMap(tokenIDs []string, raw map[string]tokenPrices) map[string]PriceQuote {
	out := make(map[string]PriceQuote, len(tokenIDs))
	for _, id := range tokenIDs {
		p, ok := raw[id]
		if !ok {
			continue
		}
		bid, ask := p.Buy.Float64(), p.Sell.Float64()
		if !ValidProbability(bid) || !ValidProbability(ask) {
			continue
		}
		out[id] = PriceQuote{
			BidPrice: bid,
			AskPrice: ask,
			MidPrice: (bid + ask) / 2,
			Spread:   ask - bid,
		}
	}
	return out
}

func (g *Gateway) GetPrices(ctx context.Context, tokenIDs []string) (map[string]PriceQuote, error) {
	if len(tokenIDs) == 0 {
		return nil, apperrors.NewInvalidRequest("Missing or invalid tokenIds array")
	}
	params := make([]priceParam, 0, 2*len(tokenIDs))
	for _, id := range tokenIDs {
		params = append(params, priceParam{TokenID: id, Side: Buy}, priceParam{TokenID: id, Side: Sell})
	}
	raw, err := g.client.prices(ctx, params)
	if err != nil {
		return nil, upstream(err, "Failed to fetch prices")
	}
	return BuildPriceMap(tokenIDs, raw), nil
}

func (g *Gateway) GetTickSize(ctx context.Context, tokenID string) (float64, error) {
	if tokenID == "" {
		return 0, apperrors.NewInvalidRequest("Missing tokenId parameter")
	}
	tick, err := g.client.TickSize(ctx, tokenID)
	if err != nil {
		return 0, upstream(err, "Failed to fetch tick size")
	}
	return tick, nil
}

func (g *Gateway) GetBook(ctx context.Context, tokenID string) (*Book, error) {
	if tokenID == "" {
		return nil, apperrors.NewInvalidRequest("Missing tokenId parameter")
	}
	book, err := g.client.Book(ctx, tokenID)
	if err != nil {
		return nil, upstream(err, "Failed to fetch order book")
	}
	return book, nil
}
