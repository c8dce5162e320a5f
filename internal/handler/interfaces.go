package handler

import (
	"context"
	"math/big"

	"github.com/GoPolymarket/polysession/internal/approvals"
	"github.com/GoPolymarket/polysession/internal/auth"
	"github.com/GoPolymarket/polysession/internal/clob"
	"github.com/GoPolymarket/polysession/internal/model"
	"github.com/GoPolymarket/polysession/internal/relay"
	"github.com/GoPolymarket/polysession/internal/session"
	"github.com/ethereum/go-ethereum/common"
)

// Wallet is the relay surface of the configured signing key.
type Wallet interface {
	Info() model.WalletInfo
	ProxyAddress() common.Address
	Execute(ctx context.Context, calls []relay.Call, metadata string) (*relay.Result, error)
	Transfer(ctx context.Context, recipient string, amount float64) (*relay.Result, error)
	Redeem(ctx context.Context, conditionID string, indexSets []int64) (*relay.Result, error)
}

type ApprovalReader interface {
	Check(ctx context.Context, owner common.Address) (*approvals.Status, error)
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)
}

type CredentialsProvider interface {
	DeriveOrCreateCredentials(ctx context.Context) (auth.Credentials, error)
}

type OrderGateway interface {
	GetOpenOrders(ctx context.Context, creds auth.Credentials) ([]clob.OpenOrder, error)
	PlaceOrder(ctx context.Context, req clob.PlaceOrderRequest) (string, error)
	CancelOrder(ctx context.Context, orderID string, creds auth.Credentials) error
}

type Quotes interface {
	GetPrices(ctx context.Context, tokenIDs []string) (map[string]clob.PriceQuote, error)
	GetTickSize(ctx context.Context, tokenID string) (float64, error)
}

type SessionMachine interface {
	Initialize(ctx context.Context) (*session.Status, error)
	Status(ctx context.Context) (*session.Status, error)
	End(ctx context.Context) error
}

type BookProvider interface {
	Book(ctx context.Context, tokenID string) (*clob.Book, error)
}
