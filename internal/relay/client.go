package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/GoPolymarket/polysession/internal/auth"
	"github.com/GoPolymarket/polysession/internal/pkg/logger"
	"github.com/GoPolymarket/polysession/internal/pkg/metrics"
	"github.com/go-resty/resty/v2"
)

const (
	pathSubmit       = "/submit"
	pathRelayPayload = "/relay-payload"
	pathTransaction  = "/transaction"
)

var (
	// ErrTransactionFailed means the relayer reported a terminal failure state.
	ErrTransactionFailed = errors.New("relay transaction failed")
	// ErrPollExhausted means no terminal state was seen within the poll budget.
	ErrPollExhausted = errors.New("relay transaction not confirmed in time")
	// ErrLookupFailed means the relayer could not report the transaction state.
	ErrLookupFailed = errors.New("relay transaction lookup failed")
)

// SubmissionError carries the relayer's response to a rejected submit.
type SubmissionError struct {
	StatusCode int
	Body       string
}

func (e *SubmissionError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("Relayer submission failed: %s", e.Body)
	}
	return fmt.Sprintf("Relayer submission failed: %d", e.StatusCode)
}

// PollPolicy bounds PollUntilState. Delays grow by Multiplier up to MaxInterval.
type PollPolicy struct {
	Interval    time.Duration
	MaxInterval time.Duration
	Multiplier  float64
	MaxAttempts int
}

func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		Interval:    2 * time.Second,
		MaxInterval: 10 * time.Second,
		Multiplier:  1.5,
		MaxAttempts: 30,
	}
}

func (p PollPolicy) next(d time.Duration) time.Duration {
	m := p.Multiplier
	if m < 1 {
		m = 1
	}
	n := time.Duration(float64(d) * m)
	if p.MaxInterval > 0 && n > p.MaxInterval {
		return p.MaxInterval
	}
	return n
}

type Client struct {
	http    *resty.Client
	builder auth.Credentials
	poll    PollPolicy
}

func NewClient(baseURL string, timeout time.Duration, builder auth.Credentials, poll PollPolicy) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if poll.MaxAttempts <= 0 {
		poll = DefaultPollPolicy()
	}
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &Client{http: httpClient, builder: builder, poll: poll}
}

// SetTransport swaps the underlying transport (tests).
func (c *Client) SetTransport(rt http.RoundTripper) {
	c.http.SetTransport(rt)
}

// GetRelayPayload asks the relayer which relay address and nonce to sign for.
func (c *Client) GetRelayPayload(ctx context.Context, from, txType string) (*Payload, error) {
	var out Payload
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"address": from, "type": txType}).
		SetResult(&out).
		Get(pathRelayPayload)
	if err != nil {
		metrics.UpstreamErrors.WithLabelValues("relayer", "relay_payload").Inc()
		return nil, fmt.Errorf("relay payload request failed: %w", err)
	}
	if resp.IsError() {
		metrics.UpstreamErrors.WithLabelValues("relayer", "relay_payload").Inc()
		return nil, fmt.Errorf("relay payload request failed: %d %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	if out.Address == "" || out.Nonce == "" {
		return nil, fmt.Errorf("relay payload missing address or nonce")
	}
	return &out, nil
}

// Submit posts a signed request and returns the relayer transaction id.
func (c *Client) Submit(ctx context.Context, req *TransactionRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to encode relay request: %w", err)
	}
	headers, err := auth.BuilderHeaders(c.builder, http.MethodPost, pathSubmit, string(body))
	if err != nil {
		return "", fmt.Errorf("failed to build builder headers: %w", err)
	}

	var out SubmitResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeaders(headers).
		SetBody(body).
		SetResult(&out).
		Post(pathSubmit)
	if err != nil {
		metrics.RelaySubmissions.WithLabelValues("transport_error").Inc()
		return "", fmt.Errorf("relay submit failed: %w", err)
	}
	if resp.IsError() {
		metrics.RelaySubmissions.WithLabelValues("rejected").Inc()
		return "", &SubmissionError{StatusCode: resp.StatusCode(), Body: strings.TrimSpace(resp.String())}
	}
	if out.TransactionID == "" {
		metrics.RelaySubmissions.WithLabelValues("rejected").Inc()
		return "", &SubmissionError{StatusCode: resp.StatusCode(), Body: "missing transactionID"}
	}
	metrics.RelaySubmissions.WithLabelValues("accepted").Inc()
	return out.TransactionID, nil
}

// GetTransaction returns the relayer's view of one transaction.
func (c *Client) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	var out []Transaction
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("id", id).
		SetResult(&out).
		Get(pathTransaction)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: %d %s", ErrLookupFailed, resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: transaction %s not found", ErrLookupFailed, id)
	}
	return &out[0], nil
}

// PollUntilState polls until the transaction reaches one of success, or
// failure. STATE_INVALID is always terminal. Lookup errors count as attempts;
// when the final attempt failed to look up, the exhaustion error wraps it.
func (c *Client) PollUntilState(ctx context.Context, id string, success []State, failure State) (*Transaction, error) {
	log := logger.FromContext(ctx).With("transaction_id", id)
	delay := c.poll.Interval
	var lastErr error

	for attempt := 1; attempt <= c.poll.MaxAttempts; attempt++ {
		tx, err := c.GetTransaction(ctx, id)
		switch {
		case err != nil:
			lastErr = err
			metrics.RelayPolls.WithLabelValues("error").Inc()
			log.Warn("relay poll failed", "attempt", attempt, "error", err)
		case containsState(success, tx.State):
			metrics.RelayPolls.WithLabelValues(string(tx.State)).Inc()
			metrics.RelaySubmissions.WithLabelValues("confirmed").Inc()
			log.Info("relay transaction confirmed", "state", tx.State, "tx_hash", tx.TransactionHash)
			return tx, nil
		case tx.State == failure || tx.State == StateInvalid:
			metrics.RelayPolls.WithLabelValues(string(tx.State)).Inc()
			metrics.RelaySubmissions.WithLabelValues("failed").Inc()
			log.Warn("relay transaction failed", "state", tx.State, "tx_hash", tx.TransactionHash)
			return tx, fmt.Errorf("%w: %s", ErrTransactionFailed, tx.State)
		default:
			lastErr = nil
			metrics.RelayPolls.WithLabelValues(string(tx.State)).Inc()
			log.Debug("relay transaction pending", "state", tx.State, "attempt", attempt)
		}

		if attempt == c.poll.MaxAttempts {
			break
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		delay = c.poll.next(delay)
	}

	metrics.RelaySubmissions.WithLabelValues("unconfirmed").Inc()
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrPollExhausted, lastErr)
	}
	return nil, ErrPollExhausted
}

func containsState(states []State, s State) bool {
	for _, candidate := range states {
		if candidate == s {
			return true
		}
	}
	return false
}
