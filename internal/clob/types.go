package clob

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// ParseSide accepts BUY/SELL in any case.
func ParseSide(raw string) (Side, error) {
	switch Side(strings.ToUpper(strings.TrimSpace(raw))) {
	case Buy:
		return Buy, nil
	case Sell:
		return Sell, nil
	default:
		return "", fmt.Errorf("invalid side %q", raw)
	}
}

type OrderType string

const (
	OrderTypeGTC OrderType = "GTC"
	OrderTypeFOK OrderType = "FOK"
	OrderTypeGTD OrderType = "GTD"
	OrderTypeFAK OrderType = "FAK"
)

// Float decodes prices that arrive either as JSON numbers or as strings.
type Float float64

func (f *Float) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q: %w", s, err)
	}
	*f = Float(v)
	return nil
}

func (f Float) Float64() float64 {
	return float64(f)
}

// OpenOrder is one entry of GET /data/orders.
type OpenOrder struct {
	ID              string      `json:"id"`
	Status          string      `json:"status"`
	Market          string      `json:"market"`
	AssetID         string      `json:"asset_id"`
	MakerAddress    string      `json:"maker_address"`
	Owner           string      `json:"owner"`
	Side            string      `json:"side"`
	Price           string      `json:"price"`
	OriginalSize    string      `json:"original_size"`
	SizeMatched     string      `json:"size_matched"`
	Outcome         string      `json:"outcome"`
	OrderType       string      `json:"order_type"`
	Expiration      json.Number `json:"expiration"`
	CreatedAt       json.Number `json:"created_at"`
	AssociateTrades []string    `json:"associate_trades"`
}

type openOrdersPage struct {
	Data       []OpenOrder `json:"data"`
	NextCursor string      `json:"next_cursor"`
	Count      int         `json:"count"`
}

const (
	initialCursor = "MA=="
	endCursor     = "LTE="
)

// PriceQuote is the normalized bid/ask view of one token.
type PriceQuote struct {
	BidPrice float64 `json:"bidPrice"`
	AskPrice float64 `json:"askPrice"`
	MidPrice float64 `json:"midPrice"`
	Spread   float64 `json:"spread"`
}

type priceResponse struct {
	Price Float `json:"price"`
}

type priceParam struct {
	TokenID string `json:"token_id"`
	Side    Side   `json:"side"`
}

// tokenPrices is keyed by side; BUY is the best bid and SELL the best ask.
type tokenPrices struct {
	Buy  Float `json:"BUY"`
	Sell Float `json:"SELL"`
}

type tickSizeResponse struct {
	MinimumTickSize Float `json:"minimum_tick_size"`
}

type negRiskResponse struct {
	NegRisk bool `json:"neg_risk"`
}

type BookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// Book is the REST order book snapshot.
type Book struct {
	Market    string      `json:"market"`
	AssetID   string      `json:"asset_id"`
	Hash      string      `json:"hash"`
	Timestamp string      `json:"timestamp"`
	Bids      []BookLevel `json:"bids"`
	Asks      []BookLevel `json:"asks"`
	TickSize  string      `json:"tick_size,omitempty"`
	NegRisk   bool        `json:"neg_risk,omitempty"`
}

// SignedOrder is the wire form of a signed order.
type SignedOrder struct {
	Salt          int64  `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          Side   `json:"side"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}

type postOrderRequest struct {
	Order     SignedOrder `json:"order"`
	Owner     string      `json:"owner"`
	OrderType OrderType   `json:"orderType"`
}

// PostOrderResponse accepts both spellings of the order id.
type PostOrderResponse struct {
	Success     bool     `json:"success"`
	ErrorMsg    string   `json:"errorMsg"`
	OrderID     string   `json:"orderID"`
	OrderIDAlt  string   `json:"orderId"`
	Status      string   `json:"status"`
	OrderHashes []string `json:"orderHashes"`
}

func (r PostOrderResponse) ID() string {
	if r.OrderID != "" {
		return r.OrderID
	}
	return r.OrderIDAlt
}

type cancelRequest struct {
	OrderID string `json:"orderID"`
}

// CancelResponse lists what the exchange cancelled.
type CancelResponse struct {
	Canceled    []string          `json:"canceled"`
	NotCanceled map[string]string `json:"not_canceled"`
}

type apiKeyResponse struct {
	APIKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}
