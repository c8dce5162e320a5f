package clob

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/GoPolymarket/polysession/internal/auth"
	"github.com/GoPolymarket/polysession/internal/pkg/apperrors"
	"github.com/GoPolymarket/polysession/internal/signer"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testProxy = common.HexToAddress("0x9999999999999999999999999999999999999999")
	testCreds = auth.Credentials{Key: "key-1", Secret: "c2VjcmV0LXNlY3JldC1zZWNyZXQ=", Passphrase: "pass-1"}
)

type fakeExchange struct {
	mu sync.Mutex

	deriveStatus int
	askPrice     string
	bidPrice     string
	tickSize     float64
	negRisk      bool
	orderID      string
	pages        []openOrdersPage
	prices       map[string]tokenPrices
	bids         []BookLevel
	asks         []BookLevel

	posted     []postOrderRequest
	cancelled  []string
	createHits int
	headers    http.Header
}

func (f *fakeExchange) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/derive-api-key", func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get(auth.HeaderSignature))
		assert.Equal(t, "0", r.Header.Get(auth.HeaderNonce))
		if f.deriveStatus != http.StatusOK {
			writeJSON(w, f.deriveStatus, map[string]string{"error": "not found"})
			return
		}
		writeJSON(w, http.StatusOK, apiKeyResponse{APIKey: "derived", Secret: "s", Passphrase: "p"})
	})
	mux.HandleFunc("/auth/api-key", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.createHits++
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, apiKeyResponse{APIKey: "created", Secret: "s", Passphrase: "p"})
	})
	mux.HandleFunc("/data/orders", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, testCreds.Key, r.Header.Get(auth.HeaderAPIKey))
		cursor := r.URL.Query().Get("next_cursor")
		for i, p := range f.pages {
			want := initialCursor
			if i > 0 {
				want = f.pages[i-1].NextCursor
			}
			if cursor == want {
				writeJSON(w, http.StatusOK, p)
				return
			}
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad cursor"})
	})
	mux.HandleFunc("/price", func(w http.ResponseWriter, r *http.Request) {
		price := f.askPrice
		if r.URL.Query().Get("side") == string(Buy) {
			price = f.bidPrice
		}
		writeJSON(w, http.StatusOK, map[string]string{"price": price})
	})
	mux.HandleFunc("/prices", func(w http.ResponseWriter, r *http.Request) {
		var params []priceParam
		require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		out := map[string]map[string]any{}
		for id, p := range f.prices {
			out[id] = map[string]any{"BUY": p.Buy, "SELL": p.Sell}
		}
		writeJSON(w, http.StatusOK, out)
	})
	mux.HandleFunc("/book", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, Book{AssetID: r.URL.Query().Get("token_id"), Bids: f.bids, Asks: f.asks})
	})
	mux.HandleFunc("/tick-size", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]float64{"minimum_tick_size": f.tickSize})
	})
	mux.HandleFunc("/neg-risk", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"neg_risk": f.negRisk})
	})
	mux.HandleFunc("/order", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.headers = r.Header.Clone()
		switch r.Method {
		case http.MethodPost:
			var req postOrderRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			f.posted = append(f.posted, req)
			writeJSON(w, http.StatusOK, map[string]any{"success": f.orderID != "", "orderID": f.orderID, "status": "live"})
		case http.MethodDelete:
			var req cancelRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			f.cancelled = append(f.cancelled, req.OrderID)
			writeJSON(w, http.StatusOK, CancelResponse{Canceled: []string{req.OrderID}})
		}
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestGateway(t *testing.T, f *fakeExchange) (*Gateway, *signer.Signer) {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	s, err := signer.NewSigner(hexutil.Encode(crypto.FromECDSA(key)), 137, common.Address{}, common.Address{})
	require.NoError(t, err)

	client := NewClient(srv.URL, time.Second, auth.Credentials{})
	return NewGateway(client, s, testProxy), s
}

func defaultExchange() *fakeExchange {
	return &fakeExchange{
		deriveStatus: http.StatusOK,
		askPrice:     "0.65",
		bidPrice:     "0.60",
		tickSize:     0.01,
		orderID:      "0xorder",
		bids:         []BookLevel{{Price: "0.60", Size: "100"}},
		asks:         []BookLevel{{Price: "0.65", Size: "100"}},
	}
}

func toSignerOrder(t *testing.T, o SignedOrder) *signer.Order {
	t.Helper()
	num := func(s string) *big.Int {
		v, ok := new(big.Int).SetString(s, 10)
		require.True(t, ok, s)
		return v
	}
	side := signer.SideBuy
	if o.Side == Sell {
		side = signer.SideSell
	}
	return &signer.Order{
		Salt:          big.NewInt(o.Salt),
		Maker:         common.HexToAddress(o.Maker),
		Signer:        common.HexToAddress(o.Signer),
		Taker:         common.HexToAddress(o.Taker),
		TokenID:       num(o.TokenID),
		MakerAmount:   num(o.MakerAmount),
		TakerAmount:   num(o.TakerAmount),
		Expiration:    num(o.Expiration),
		Nonce:         num(o.Nonce),
		FeeRateBps:    num(o.FeeRateBps),
		Side:          side,
		SignatureType: uint8(o.SignatureType),
	}
}

func TestDeriveOrCreateCredentials(t *testing.T) {
	f := defaultExchange()
	g, _ := newTestGateway(t, f)

	creds, err := g.DeriveOrCreateCredentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "derived", creds.Key)
	assert.Equal(t, 0, f.createHits)

	f.deriveStatus = http.StatusNotFound
	creds, err = g.DeriveOrCreateCredentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "created", creds.Key)
	assert.Equal(t, 1, f.createHits)
}

func TestGetOpenOrdersFiltersAcrossPages(t *testing.T) {
	f := defaultExchange()
	proxyLower := strings.ToLower(testProxy.Hex())
	f.pages = []openOrdersPage{
		{NextCursor: "Mg==", Data: []OpenOrder{
			{ID: "a", MakerAddress: proxyLower, Status: "LIVE"},
			{ID: "b", MakerAddress: "0x1111111111111111111111111111111111111111", Status: "LIVE"},
		}},
		{NextCursor: endCursor, Data: []OpenOrder{
			{ID: "c", MakerAddress: testProxy.Hex(), Status: "MATCHED"},
			{ID: "d", MakerAddress: testProxy.Hex(), Status: "LIVE"},
		}},
	}
	g, _ := newTestGateway(t, f)

	orders, err := g.GetOpenOrders(context.Background(), testCreds)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "a", orders[0].ID)
	assert.Equal(t, "d", orders[1].ID)

	_, err = g.GetOpenOrders(context.Background(), auth.Credentials{Key: "k"})
	assert.True(t, apperrors.IsType(err, apperrors.ErrInvalidRequest))
}

func TestFilterLiveOrders(t *testing.T) {
	orders := []OpenOrder{
		{ID: "1", MakerAddress: "0xABCDEF0000000000000000000000000000000001", Status: "LIVE"},
		{ID: "2", MakerAddress: "0xabcdef0000000000000000000000000000000001", Status: "CANCELED"},
		{ID: "3", MakerAddress: "0x0000000000000000000000000000000000000002", Status: "LIVE"},
		{ID: "4", MakerAddress: "", Status: "LIVE"},
	}
	out := FilterLiveOrders(orders, "0xabcdef0000000000000000000000000000000001")
	require.Len(t, out, 1)
	assert.Equal(t, "1", out[0].ID)
}

func TestPlaceLimitOrder(t *testing.T) {
	f := defaultExchange()
	g, s := newTestGateway(t, f)

	id, err := g.PlaceOrder(context.Background(), PlaceOrderRequest{
		TokenID:     "123456",
		Size:        10,
		Side:        "buy",
		Price:       0.37,
		Credentials: testCreds,
	})
	require.NoError(t, err)
	assert.Equal(t, "0xorder", id)

	require.Len(t, f.posted, 1)
	posted := f.posted[0]
	assert.Equal(t, OrderTypeGTC, posted.OrderType)
	assert.Equal(t, testCreds.Key, posted.Owner)
	assert.Equal(t, testProxy.Hex(), posted.Order.Maker)
	assert.Equal(t, s.Address().Hex(), posted.Order.Signer)
	assert.Equal(t, "3700000", posted.Order.MakerAmount)
	assert.Equal(t, "10000000", posted.Order.TakerAmount)
	assert.Equal(t, int(signer.SignatureTypePolyProxy), posted.Order.SignatureType)
	assert.Equal(t, testCreds.Key, f.headers.Get(auth.HeaderAPIKey))

	err = signer.VerifyOrderSignature(toSignerOrder(t, posted.Order), posted.Order.Signature, s.Address(), 137, signer.VerifyingContract(false))
	assert.NoError(t, err)
}

func TestPlaceMarketBuyUsesAskNotional(t *testing.T) {
	f := defaultExchange()
	f.negRisk = true
	g, s := newTestGateway(t, f)

	_, err := g.PlaceOrder(context.Background(), PlaceOrderRequest{
		TokenID:       "123456",
		Size:          10,
		Side:          "BUY",
		IsMarketOrder: true,
		Credentials:   testCreds,
	})
	require.NoError(t, err)

	posted := f.posted[0]
	assert.Equal(t, OrderTypeFOK, posted.OrderType)
	assert.Equal(t, "6500000", posted.Order.MakerAmount)
	assert.Equal(t, "10000000", posted.Order.TakerAmount)

	// Neg-risk markets are signed against the neg-risk exchange.
	err = signer.VerifyOrderSignature(toSignerOrder(t, posted.Order), posted.Order.Signature, s.Address(), 137, signer.VerifyingContract(true))
	assert.NoError(t, err)
}

func TestPlaceMarketSellUsesSize(t *testing.T) {
	f := defaultExchange()
	g, _ := newTestGateway(t, f)
	negRisk := false

	_, err := g.PlaceOrder(context.Background(), PlaceOrderRequest{
		TokenID:       "123456",
		Size:          10,
		Side:          "SELL",
		IsMarketOrder: true,
		NegRisk:       &negRisk,
		Credentials:   testCreds,
	})
	require.NoError(t, err)
	assert.Equal(t, "10000000", f.posted[0].Order.MakerAmount)
	assert.Equal(t, "6000000", f.posted[0].Order.TakerAmount)
}

func TestPlaceMarketBuyWalksAsksPastThinTop(t *testing.T) {
	f := defaultExchange()
	// REST books list the best level last.
	f.asks = []BookLevel{{Price: "0.70", Size: "100"}, {Price: "0.65", Size: "5"}}
	g, s := newTestGateway(t, f)
	negRisk := false

	_, err := g.PlaceOrder(context.Background(), PlaceOrderRequest{
		TokenID:       "123456",
		Size:          10,
		Side:          "BUY",
		IsMarketOrder: true,
		NegRisk:       &negRisk,
		Credentials:   testCreds,
	})
	require.NoError(t, err)

	// 6.5 collateral is only covered once the 0.70 level is reached.
	posted := f.posted[0]
	assert.Equal(t, "6500000", posted.Order.MakerAmount)
	assert.Equal(t, "9285700", posted.Order.TakerAmount)
	err = signer.VerifyOrderSignature(toSignerOrder(t, posted.Order), posted.Order.Signature, s.Address(), 137, signer.VerifyingContract(false))
	assert.NoError(t, err)
}

func TestPlaceMarketSellWalksBids(t *testing.T) {
	f := defaultExchange()
	f.bids = []BookLevel{{Price: "0.55", Size: "10"}, {Price: "0.60", Size: "4"}}
	g, _ := newTestGateway(t, f)
	negRisk := false

	_, err := g.PlaceOrder(context.Background(), PlaceOrderRequest{
		TokenID:       "123456",
		Size:          10,
		Side:          "SELL",
		IsMarketOrder: true,
		NegRisk:       &negRisk,
		Credentials:   testCreds,
	})
	require.NoError(t, err)
	assert.Equal(t, "10000000", f.posted[0].Order.MakerAmount)
	assert.Equal(t, "5500000", f.posted[0].Order.TakerAmount)
}

func TestPlaceMarketOrderRejectsThinBook(t *testing.T) {
	f := defaultExchange()
	f.asks = []BookLevel{{Price: "0.65", Size: "5"}}
	g, _ := newTestGateway(t, f)

	_, err := g.PlaceOrder(context.Background(), PlaceOrderRequest{
		TokenID:       "123456",
		Size:          10,
		Side:          "BUY",
		IsMarketOrder: true,
		Credentials:   testCreds,
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrInvalidMarketPrice))
	assert.Equal(t, "Not enough liquidity to fill market order", err.Error())
	assert.Empty(t, f.posted)
}

func TestMarketPrice(t *testing.T) {
	book := &Book{
		Bids: []BookLevel{{Price: "0.50", Size: "10"}, {Price: "0.55", Size: "2"}, {Price: "bad", Size: "9"}},
		Asks: []BookLevel{{Price: "0.62", Size: "0"}, {Price: "0.60", Size: "10"}, {Price: "0.70", Size: "10"}},
	}

	price, err := MarketPrice(book, Buy, 6)
	require.NoError(t, err)
	assert.Equal(t, 0.60, price)

	price, err = MarketPrice(book, Buy, 6.01)
	require.NoError(t, err)
	assert.Equal(t, 0.70, price)

	price, err = MarketPrice(book, Sell, 2)
	require.NoError(t, err)
	assert.Equal(t, 0.55, price)

	price, err = MarketPrice(book, Sell, 12)
	require.NoError(t, err)
	assert.Equal(t, 0.50, price)

	_, err = MarketPrice(book, Sell, 12.5)
	assert.ErrorIs(t, err, ErrNoMatch)
	_, err = MarketPrice(nil, Buy, 1)
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestPlaceMarketBuyRejectsInvalidAsk(t *testing.T) {
	for _, ask := range []string{"0", "1", "1.2"} {
		f := defaultExchange()
		f.askPrice = ask
		g, _ := newTestGateway(t, f)

		_, err := g.PlaceOrder(context.Background(), PlaceOrderRequest{
			TokenID:       "123456",
			Size:          10,
			Side:          "BUY",
			IsMarketOrder: true,
			Credentials:   testCreds,
		})
		require.Error(t, err, "ask=%s", ask)
		assert.True(t, apperrors.IsType(err, apperrors.ErrInvalidMarketPrice), "ask=%s", ask)
		assert.Equal(t, "Unable to get valid market price", err.Error())
		assert.Empty(t, f.posted)
	}
}

func TestPlaceOrderValidation(t *testing.T) {
	f := defaultExchange()
	g, _ := newTestGateway(t, f)
	ctx := context.Background()

	_, err := g.PlaceOrder(ctx, PlaceOrderRequest{TokenID: "1", Size: 1, Side: "BUY", Price: 0.5})
	assert.EqualError(t, err, "Missing API credentials")

	_, err = g.PlaceOrder(ctx, PlaceOrderRequest{TokenID: "1", Size: 1, Side: "BUY", Credentials: testCreds})
	assert.EqualError(t, err, "Price required for limit orders")

	_, err = g.PlaceOrder(ctx, PlaceOrderRequest{Credentials: testCreds})
	assert.EqualError(t, err, "Missing order parameters")

	_, err = g.PlaceOrder(ctx, PlaceOrderRequest{TokenID: "1", Size: 1, Side: "BUY", Price: 0.373, Credentials: testCreds})
	assert.True(t, apperrors.IsType(err, apperrors.ErrInvalidRequest))

	assert.Empty(t, f.posted)
}

func TestPlaceOrderWithoutIDFails(t *testing.T) {
	f := defaultExchange()
	f.orderID = ""
	g, _ := newTestGateway(t, f)

	_, err := g.PlaceOrder(context.Background(), PlaceOrderRequest{
		Order:       &LimitOrderArgs{TokenID: "42", Side: Sell, Size: 5, Price: 0.4},
		Credentials: testCreds,
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrUpstream))
	assert.Contains(t, err.Error(), "Order submission failed - no order ID returned")
}

func TestCancelOrder(t *testing.T) {
	f := defaultExchange()
	g, _ := newTestGateway(t, f)

	require.NoError(t, g.CancelOrder(context.Background(), "0xorder", testCreds))
	assert.Equal(t, []string{"0xorder"}, f.cancelled)

	err := g.CancelOrder(context.Background(), "", testCreds)
	assert.EqualError(t, err, "Missing order ID")
}

func TestGetPricesFiltersInvalidQuotes(t *testing.T) {
	f := defaultExchange()
	f.prices = map[string]tokenPrices{
		"good":  {Buy: 0.4, Sell: 0.6},
		"nobid": {Buy: 0, Sell: 0.5},
	}
	g, _ := newTestGateway(t, f)

	prices, err := g.GetPrices(context.Background(), []string{"good", "nobid", "missing"})
	require.NoError(t, err)
	require.Len(t, prices, 1)
	q := prices["good"]
	assert.InDelta(t, 0.5, q.MidPrice, 1e-12)
	assert.InDelta(t, 0.2, q.Spread, 1e-12)

	_, err = g.GetPrices(context.Background(), nil)
	assert.True(t, apperrors.IsType(err, apperrors.ErrInvalidRequest))
}

func TestGetTickSizeAndPrice(t *testing.T) {
	f := defaultExchange()
	g, _ := newTestGateway(t, f)

	tick, err := g.GetTickSize(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, 0.01, tick)

	price, err := g.GetPrice(context.Background(), "1", Sell)
	require.NoError(t, err)
	assert.Equal(t, 0.65, price)
}

func TestUpstreamErrorPassesMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "market not found"})
	}))
	defer srv.Close()

	key, _ := crypto.GenerateKey()
	s, err := signer.NewSigner(hexutil.Encode(crypto.FromECDSA(key)), 137, common.Address{}, common.Address{})
	require.NoError(t, err)
	g := NewGateway(NewClient(srv.URL, time.Second, auth.Credentials{}), s, testProxy)

	_, err = g.GetTickSize(context.Background(), "1")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrUpstream))
	assert.Contains(t, err.Error(), "market not found")
}
