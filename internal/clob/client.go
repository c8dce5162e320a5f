package clob

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/GoPolymarket/polysession/internal/auth"
	"github.com/GoPolymarket/polysession/internal/pkg/metrics"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-resty/resty/v2"
)

const (
	pathDeriveAPIKey = "/auth/derive-api-key"
	pathCreateAPIKey = "/auth/api-key"
	pathOrder        = "/order"
	pathOpenOrders   = "/data/orders"
	pathPrice        = "/price"
	pathPrices       = "/prices"
	pathTickSize     = "/tick-size"
	pathNegRisk      = "/neg-risk"
	pathBook         = "/book"
)

// L1Signer proves control of the signing wallet for credential endpoints.
type L1Signer interface {
	Address() common.Address
	SignClobAuth(timestamp int64, nonce int64) (string, error)
}

// APIError is a non-2xx exchange response.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if msg := extractErrorMessage(e.Body); msg != "" {
		return fmt.Sprintf("%s failed: %s", e.Op, msg)
	}
	return fmt.Sprintf("%s failed: status %d", e.Op, e.StatusCode)
}

func extractErrorMessage(body string) string {
	body = strings.TrimSpace(body)
	if body == "" {
		return ""
	}
	var payload struct {
		Error    string `json:"error"`
		ErrorMsg string `json:"errorMsg"`
	}
	if json.Unmarshal([]byte(body), &payload) == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.ErrorMsg != "" {
			return payload.ErrorMsg
		}
	}
	return body
}

// Client is a thin REST client for the exchange. It performs no retries.
type Client struct {
	http    *resty.Client
	builder auth.Credentials
}

func NewClient(baseURL string, timeout time.Duration, builder auth.Credentials) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &Client{http: httpClient, builder: builder}
}

func (c *Client) l1Headers(s L1Signer) (map[string]string, error) {
	ts := auth.Clock().Unix()
	const nonce = 0
	sig, err := s.SignClobAuth(ts, nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to sign clob auth: %w", err)
	}
	return map[string]string{
		auth.HeaderAddress:   s.Address().Hex(),
		auth.HeaderSignature: sig,
		auth.HeaderTimestamp: strconv.FormatInt(ts, 10),
		auth.HeaderNonce:     strconv.Itoa(nonce),
	}, nil
}

func (c *Client) check(op string, resp *resty.Response, err error) error {
	if err != nil {
		metrics.UpstreamErrors.WithLabelValues("clob", op).Inc()
		return fmt.Errorf("%s failed: %w", op, err)
	}
	if resp.IsError() {
		metrics.UpstreamErrors.WithLabelValues("clob", op).Inc()
		return &APIError{Op: op, StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}

// DeriveAPIKey fetches the credentials already registered for the signer.
func (c *Client) DeriveAPIKey(ctx context.Context, s L1Signer) (auth.Credentials, error) {
	headers, err := c.l1Headers(s)
	if err != nil {
		return auth.Credentials{}, err
	}
	var out apiKeyResponse
	resp, err := c.http.R().SetContext(ctx).SetHeaders(headers).SetResult(&out).Get(pathDeriveAPIKey)
	if err := c.check("derive api key", resp, err); err != nil {
		return auth.Credentials{}, err
	}
	return auth.Credentials{Key: out.APIKey, Secret: out.Secret, Passphrase: out.Passphrase}, nil
}

// CreateAPIKey registers new credentials for the signer.
func (c *Client) CreateAPIKey(ctx context.Context, s L1Signer) (auth.Credentials, error) {
	headers, err := c.l1Headers(s)
	if err != nil {
		return auth.Credentials{}, err
	}
	var out apiKeyResponse
	resp, err := c.http.R().SetContext(ctx).SetHeaders(headers).SetResult(&out).Post(pathCreateAPIKey)
	if err := c.check("create api key", resp, err); err != nil {
		return auth.Credentials{}, err
	}
	return auth.Credentials{Key: out.APIKey, Secret: out.Secret, Passphrase: out.Passphrase}, nil
}

// OpenOrders walks every page of the caller's open orders.
func (c *Client) OpenOrders(ctx context.Context, address string, creds auth.Credentials) ([]OpenOrder, error) {
	var all []OpenOrder
	cursor := initialCursor
	for cursor != endCursor && cursor != "" {
		headers, err := auth.L2Headers(address, creds, http.MethodGet, pathOpenOrders, "")
		if err != nil {
			return nil, err
		}
		var page openOrdersPage
		resp, err := c.http.R().
			SetContext(ctx).
			SetHeaders(headers).
			SetQueryParam("next_cursor", cursor).
			SetResult(&page).
			Get(pathOpenOrders)
		if err := c.check("list open orders", resp, err); err != nil {
			return nil, err
		}
		all = append(all, page.Data...)
		if page.NextCursor == cursor {
			break
		}
		cursor = page.NextCursor
	}
	return all, nil
}

// PostOrder submits a signed order owned by creds.Key.
func (c *Client) PostOrder(ctx context.Context, address string, creds auth.Credentials, order SignedOrder, orderType OrderType) (*PostOrderResponse, error) {
	body, err := json.Marshal(postOrderRequest{Order: order, Owner: creds.Key, OrderType: orderType})
	if err != nil {
		return nil, fmt.Errorf("failed to encode order: %w", err)
	}
	headers, err := auth.L2Headers(address, creds, http.MethodPost, pathOrder, string(body))
	if err != nil {
		return nil, err
	}
	builderHeaders, err := auth.BuilderHeaders(c.builder, http.MethodPost, pathOrder, string(body))
	if err != nil {
		return nil, err
	}

	var out PostOrderResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeaders(headers).
		SetHeaders(builderHeaders).
		SetBody(body).
		SetResult(&out).
		Post(pathOrder)
	if err := c.check("post order", resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CancelOrder(ctx context.Context, address string, creds auth.Credentials, orderID string) (*CancelResponse, error) {
	body, err := json.Marshal(cancelRequest{OrderID: orderID})
	if err != nil {
		return nil, err
	}
	headers, err := auth.L2Headers(address, creds, http.MethodDelete, pathOrder, string(body))
	if err != nil {
		return nil, err
	}
	var out CancelResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeaders(headers).
		SetBody(body).
		SetResult(&out).
		Delete(pathOrder)
	if err := c.check("cancel order", resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// Price returns the best price on one side. SELL is the best ask.
func (c *Client) Price(ctx context.Context, tokenID string, side Side) (float64, error) {
	var out priceResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"token_id": tokenID, "side": string(side)}).
		SetResult(&out).
		Get(pathPrice)
	if err := c.check("get price", resp, err); err != nil {
		return 0, err
	}
	return out.Price.Float64(), nil
}

func (c *Client) prices(ctx context.Context, params []priceParam) (map[string]tokenPrices, error) {
	out := make(map[string]tokenPrices)
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(params).
		SetResult(&out).
		Post(pathPrices)
	if err := c.check("get prices", resp, err); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) TickSize(ctx context.Context, tokenID string) (float64, error) {
	var out tickSizeResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("token_id", tokenID).
		SetResult(&out).
		Get(pathTickSize)
	if err := c.check("get tick size", resp, err); err != nil {
		return 0, err
	}
	return out.MinimumTickSize.Float64(), nil
}

func (c *Client) NegRisk(ctx context.Context, tokenID string) (bool, error) {
	var out negRiskResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("token_id", tokenID).
		SetResult(&out).
		Get(pathNegRisk)
	if err := c.check("get neg risk", resp, err); err != nil {
		return false, err
	}
	return out.NegRisk, nil
}

func (c *Client) Book(ctx context.Context, tokenID string) (*Book, error) {
	var out Book
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("token_id", tokenID).
		SetResult(&out).
		Get(pathBook)
	if err := c.check("get book", resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}
