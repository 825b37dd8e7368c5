// Package client is a typed HTTP client for anchord.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"anchorledger/core/anchor"
	"anchorledger/services/anchord/api"
)

// APIError is a non-2xx answer from anchord.
type APIError struct {
	Status  int
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("anchord: status %d: %s", e.Status, e.Code)
	}
	return fmt.Sprintf("anchord: status %d: %s: %s", e.Status, e.Code, e.Message)
}

var codeErrors = map[string]error{
	"EnforcedPause":     anchor.ErrEnforcedPause,
	"ExpectedPause":     anchor.ErrExpectedPause,
	"Unauthorized":      anchor.ErrUnauthorized,
	"SignatureExpired":  anchor.ErrSignatureExpired,
	"InvalidSignature":  anchor.ErrInvalidSignature,
	"InvalidDataHash":   anchor.ErrInvalidDataHash,
	"RateLimitExceeded": anchor.ErrRateLimitExceeded,
	"TooSoon":           anchor.ErrTooSoon,
	"InvalidInput":      anchor.ErrInvalidInput,
}

// Is lets callers match ledger sentinels with errors.Is.
func (e *APIError) Is(target error) bool {
	sentinel, ok := codeErrors[e.Code]
	return ok && errors.Is(sentinel, target)
}

// Client talks to one anchord instance.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient overrides the transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithToken sets the bearer token sent on admin calls.
func WithToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

// New constructs a client rooted at baseURL, e.g. http://localhost:7081.
func New(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("client: base url required")
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("client: parse base url: %w", err)
	}
	c := &Client{baseURL: trimmed, http: &http.Client{Timeout: 10 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Anchor(ctx context.Context, req api.AnchorRequest) (api.AnchorResponse, error) {
	var out api.AnchorResponse
	err := c.do(ctx, http.MethodPost, "/v1/anchors", nil, req, &out, false)
	return out, err
}

func (c *Client) BatchAnchor(ctx context.Context, req api.BatchAnchorRequest) (api.BatchAnchorResponse, error) {
	var out api.BatchAnchorResponse
	err := c.do(ctx, http.MethodPost, "/v1/anchors/batch", nil, req, &out, false)
	return out, err
}

// Verify reports whether user anchored dataHash.
func (c *Client) Verify(ctx context.Context, user common.Address, dataHash common.Hash) (api.VerifyResponse, error) {
	var out api.VerifyResponse
	err := c.do(ctx, http.MethodGet, "/v1/anchors/"+user.Hex()+"/"+dataHash.Hex(), nil, nil, &out, false)
	return out, err
}

// History pages through a user's anchors, oldest first.
func (c *Client) History(ctx context.Context, user common.Address, offset, limit uint64) (api.HistoryResponse, error) {
	query := url.Values{}
	query.Set("offset", strconv.FormatUint(offset, 10))
	query.Set("limit", strconv.FormatUint(limit, 10))
	var out api.HistoryResponse
	err := c.do(ctx, http.MethodGet, "/v1/users/"+user.Hex()+"/anchors", query, nil, &out, false)
	return out, err
}

func (c *Client) UserStatus(ctx context.Context, user common.Address) (api.UserStatusResponse, error) {
	var out api.UserStatusResponse
	err := c.do(ctx, http.MethodGet, "/v1/users/"+user.Hex()+"/status", nil, nil, &out, false)
	return out, err
}

func (c *Client) Domain(ctx context.Context) (api.DomainResponse, error) {
	var out api.DomainResponse
	err := c.do(ctx, http.MethodGet, "/v1/domain", nil, nil, &out, false)
	return out, err
}

func (c *Client) Status(ctx context.Context) (api.StatusResponse, error) {
	var out api.StatusResponse
	err := c.do(ctx, http.MethodGet, "/v1/status", nil, nil, &out, false)
	return out, err
}

// EventsQuery narrows Events. Zero values mean no filter.
type EventsQuery struct {
	User  *common.Address
	Since uint64
	Limit uint64
}

// Events reads the journal, newest first.
func (c *Client) Events(ctx context.Context, q EventsQuery) (api.EventsResponse, error) {
	query := url.Values{}
	if q.User != nil {
		query.Set("user", q.User.Hex())
	}
	if q.Since > 0 {
		query.Set("since", strconv.FormatUint(q.Since, 10))
	}
	if q.Limit > 0 {
		query.Set("limit", strconv.FormatUint(q.Limit, 10))
	}
	var out api.EventsResponse
	err := c.do(ctx, http.MethodGet, "/v1/events", query, nil, &out, false)
	return out, err
}

// Pause requires a token minted for the owner.
func (c *Client) Pause(ctx context.Context) (api.StatusResponse, error) {
	var out api.StatusResponse
	err := c.do(ctx, http.MethodPost, "/v1/admin/pause", nil, nil, &out, true)
	return out, err
}

func (c *Client) Unpause(ctx context.Context) (api.StatusResponse, error) {
	var out api.StatusResponse
	err := c.do(ctx, http.MethodPost, "/v1/admin/unpause", nil, nil, &out, true)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any, admin bool) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if admin {
		if c.token == "" {
			return fmt.Errorf("client: %s requires an admin token", path)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if err := json.Unmarshal(raw, apiErr); err != nil || apiErr.Code == "" {
			apiErr.Code = http.StatusText(resp.StatusCode)
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode %s response: %w", path, err)
	}
	return nil
}
