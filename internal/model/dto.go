package model

import "github.com/GoPolymarket/polysession/internal/auth"

// OrderInput is a fully formed limit order as sent by the UI.
type OrderInput struct {
	TokenID    string  `json:"tokenID"`
	Price      float64 `json:"price"`
	Size       float64 `json:"size"`
	Side       string  `json:"side"`
	FeeRateBps int64   `json:"feeRateBps,omitempty"`
	Expiration int64   `json:"expiration,omitempty"`
	Taker      string  `json:"taker,omitempty"`
}

// PlaceOrderRequest accepts either Order or the tokenId/size/side shorthand.
type PlaceOrderRequest struct {
	Order          *OrderInput      `json:"order,omitempty"`
	TokenID        string           `json:"tokenId,omitempty"`
	Size           float64          `json:"size,omitempty"`
	Side           string           `json:"side,omitempty"`
	Price          float64          `json:"price,omitempty"`
	IsMarketOrder  bool             `json:"isMarketOrder,omitempty"`
	NegRisk        *bool            `json:"negRisk,omitempty"`
	APICredentials auth.Credentials `json:"apiCredentials"`
}

type PlaceOrderResponse struct {
	Success bool   `json:"success"`
	OrderID string `json:"orderId"`
}

type CancelOrderRequest struct {
	OrderID        string           `json:"orderId"`
	APICredentials auth.Credentials `json:"apiCredentials"`
}

// ActiveOrdersQuery carries credentials as query parameters.
type ActiveOrdersQuery struct {
	APIKey        string `form:"apiKey"`
	APISecret     string `form:"apiSecret"`
	APIPassphrase string `form:"apiPassphrase"`
}

func (q ActiveOrdersQuery) Credentials() auth.Credentials {
	return auth.Credentials{Key: q.APIKey, Secret: q.APISecret, Passphrase: q.APIPassphrase}
}

type PricesRequest struct {
	TokenIDs []string `json:"tokenIds"`
}

type RelayCall struct {
	To    string `json:"to"`
	Data  string `json:"data"`
	Value string `json:"value,omitempty"`
}

type RelayRequest struct {
	Transactions []RelayCall `json:"transactions"`
	Description  string      `json:"description,omitempty"`
}

type RelayResponse struct {
	Success         bool   `json:"success"`
	TransactionHash string `json:"transactionHash"`
	TransactionID   string `json:"transactionId"`
}

type TransferRequest struct {
	Recipient string  `json:"recipient"`
	Amount    float64 `json:"amount"`
}

type RedeemRequest struct {
	ConditionID string  `json:"conditionId"`
	IndexSets   []int64 `json:"indexSets,omitempty"`
}

type WalletInfo struct {
	EOAAddress   string `json:"eoaAddress"`
	ProxyAddress string `json:"proxyAddress"`
}
