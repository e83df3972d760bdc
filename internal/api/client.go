// Package api implements the REST client for the account service. It covers
// the endpoints the reconciliation engine and its callers need: order and
// payment status, payment cancellation, and the profile refresh used after
// completed transitions.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/upvotelabs/upvote-client/internal/track"
	"github.com/upvotelabs/upvote-client/pkg/logger"
)

// TokenSource supplies the bearer credential attached to every request. The
// auth collaborator owns issuance and refresh; the client only attaches the
// opaque value.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource returning a fixed credential.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) { return string(t), nil }

// Order is the service representation of an order, reduced to the fields the
// client reads.
type Order struct {
	ID           string  `json:"id"`
	Status       string  `json:"status"`
	Cost         float64 `json:"cost"`
	ErrorMessage string  `json:"error_message"`
}

// Profile is the authenticated user's account state.
type Profile struct {
	ID      string  `json:"id"`
	Email   string  `json:"email"`
	Balance float64 `json:"balance"`
}

// Config configures a Client. BaseURL is required.
type Config struct {
	BaseURL    string
	Tokens     TokenSource
	HTTPClient *http.Client
	Timeout    time.Duration
	Log        *logger.Logger
}

// Client performs bounded round-trips against the account service.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	tokens     TokenSource
	log        *logger.Logger
}

// NewClient validates the configuration and builds a client. A nil
// HTTPClient gets a default with the configured timeout, so every fetch
// carries a bound even when the caller forgets one.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, fmt.Errorf("api base URL required")
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse api base URL: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	log := cfg.Log
	if log == nil {
		log = logger.NewDefault("api-client")
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    parsed,
		tokens:     cfg.Tokens,
		log:        log,
	}, nil
}

// ListOrders returns the caller's orders.
func (c *Client) ListOrders(ctx context.Context) ([]Order, error) {
	var orders []Order
	if err := c.getJSON(ctx, "/orders", &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// OrderStatus fetches the current status of one order.
func (c *Client) OrderStatus(ctx context.Context, id string) (track.StatusResult, error) {
	var payload struct {
		Status       string `json:"status"`
		ErrorMessage string `json:"error_message"`
	}
	if err := c.getJSON(ctx, "/orders/"+url.PathEscape(id)+"/status", &payload); err != nil {
		return track.StatusResult{}, err
	}
	status, ok := track.ParseStatus(payload.Status)
	if !ok {
		return track.StatusResult{}, fmt.Errorf("order %s: unknown status %q", id, payload.Status)
	}
	return track.StatusResult{Status: status, ErrorMessage: payload.ErrorMessage}, nil
}

// PaymentStatus fetches the current status of one payment. Payment payloads
// may carry the gateway response verbatim, with the status nested under
// "result", so the body is parsed tolerantly and normalized to a client
// status.
func (c *Client) PaymentStatus(ctx context.Context, id string) (track.StatusResult, error) {
	body, err := c.getRaw(ctx, "/payments/"+url.PathEscape(id)+"/status")
	if err != nil {
		return track.StatusResult{}, err
	}

	raw := gjson.GetBytes(body, "status").String()
	if raw == "" {
		raw = gjson.GetBytes(body, "result.payment_status").String()
	}
	if raw == "" {
		raw = gjson.GetBytes(body, "result.status").String()
	}
	status, ok := track.NormalizeProviderStatus(raw)
	if !ok {
		return track.StatusResult{}, fmt.Errorf("payment %s: unknown status %q", id, raw)
	}

	result := track.StatusResult{Status: status}
	if msg := gjson.GetBytes(body, "error_message").String(); msg != "" {
		result.ErrorMessage = msg
	}
	return result, nil
}

// CancelPayment requests cancellation of a pending payment.
func (c *Client) CancelPayment(ctx context.Context, id string) (bool, error) {
	var payload struct {
		Success bool `json:"success"`
	}
	if err := c.postJSON(ctx, "/payments/"+url.PathEscape(id)+"/cancel", nil, &payload); err != nil {
		return false, err
	}
	return payload.Success, nil
}

// Me returns the authenticated user's profile, including the current
// balance. The dispatcher calls this after completed transitions.
func (c *Client) Me(ctx context.Context) (Profile, error) {
	var profile Profile
	if err := c.getJSON(ctx, "/users/me", &profile); err != nil {
		return Profile{}, err
	}
	return profile, nil
}

// RefreshProfile satisfies the dispatcher's account-refresh collaborator
// contract.
func (c *Client) RefreshProfile(ctx context.Context) error {
	_, err := c.Me(ctx)
	return err
}

func (c *Client) getJSON(ctx context.Context, path string, target any) error {
	body, err := c.getRaw(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) getRaw(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *Client) postJSON(ctx context.Context, path string, reqBody, target any) error {
	var reader io.Reader
	if reqBody != nil {
		encoded, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", path, err)
		}
		reader = strings.NewReader(string(encoded))
	}
	body, err := c.do(ctx, http.MethodPost, path, reader)
	if err != nil {
		return err
	}
	if target == nil {
		return nil
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	requestURL := c.baseURL.JoinPath(path)

	req, err := http.NewRequestWithContext(ctx, method, requestURL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve credential: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		msg := strings.TrimSpace(string(payload))
		if len(msg) > 256 {
			msg = msg[:256] + "...(truncated)"
		}
		return nil, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, msg)
	}
	return payload, nil
}
