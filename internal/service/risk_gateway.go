package service

import (
	"context"

	"github.com/GoPolymarket/polysession/internal/auth"
	"github.com/GoPolymarket/polysession/internal/clob"
)

// OrderPlacer is the exchange order surface the risk checks wrap.
type OrderPlacer interface {
	GetOpenOrders(ctx context.Context, creds auth.Credentials) ([]clob.OpenOrder, error)
	PlaceOrder(ctx context.Context, req clob.PlaceOrderRequest) (string, error)
	CancelOrder(ctx context.Context, orderID string, creds auth.Credentials) error
}

// RiskGateway runs pre-trade checks before delegating order placement.
type RiskGateway struct {
	next    OrderPlacer
	risk    *RiskEngine
	address string
}

func NewRiskGateway(next OrderPlacer, risk *RiskEngine, address string) *RiskGateway {
	return &RiskGateway{next: next, risk: risk, address: address}
}

func (g *RiskGateway) GetOpenOrders(ctx context.Context, creds auth.Credentials) ([]clob.OpenOrder, error) {
	return g.next.GetOpenOrders(ctx, creds)
}

func (g *RiskGateway) CancelOrder(ctx context.Context, orderID string, creds auth.Credentials) error {
	return g.next.CancelOrder(ctx, orderID, creds)
}

func (g *RiskGateway) PlaceOrder(ctx context.Context, req clob.PlaceOrderRequest) (string, error) {
	in, ok := intentOf(req)
	if ok {
		if err := g.risk.CheckOrder(ctx, g.address, in); err != nil {
			return "", err
		}
	}
	id, err := g.next.PlaceOrder(ctx, req)
	if err != nil {
		return "", err
	}
	if ok {
		g.risk.PostOrderHook(ctx, g.address, in)
	}
	return id, nil
}

// intentOf extracts the checked fields. Malformed requests are left to the
// exchange gateway so callers see its validation messages.
func intentOf(req clob.PlaceOrderRequest) (OrderIntent, bool) {
	var in OrderIntent
	switch {
	case req.Order != nil:
		in = OrderIntent{
			TokenID: req.Order.TokenID,
			Side:    req.Order.Side,
			Price:   req.Order.Price,
			Size:    req.Order.Size,
		}
	case req.TokenID != "":
		side, err := clob.ParseSide(req.Side)
		if err != nil {
			return OrderIntent{}, false
		}
		in = OrderIntent{
			TokenID: req.TokenID,
			Side:    side,
			Price:   req.Price,
			Size:    req.Size,
			Market:  req.IsMarketOrder,
		}
	default:
		return OrderIntent{}, false
	}
	if in.Size <= 0 || (!in.Market && !clob.ValidProbability(in.Price)) {
		return OrderIntent{}, false
	}
	return in, true
}
