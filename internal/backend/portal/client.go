// Package portal implements the backend ports against the portal's
// calendar HTTP API. The portal owns OAuth credentials; this client only
// ever sees redacted integrations.
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/calsync/internal/backend"
	"github.com/dmitrijs2005/calsync/internal/common"
	"golang.org/x/oauth2"
)

// Client talks to the portal calendar API.
type Client struct {
	baseURL string
	http    *http.Client
	service oauth2.TokenSource
}

var _ backend.Backend = (*Client)(nil)

// New returns a client rooted at baseURL. serviceToken authenticates
// requests made outside any user call, such as scheduled refreshes.
func New(baseURL, serviceToken string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid portal base url %q", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	var src oauth2.TokenSource
	if serviceToken != "" {
		src = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: serviceToken, TokenType: "Bearer"})
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient, service: src}, nil
}

func (c *Client) token(ctx context.Context) (*oauth2.Token, error) {
	if b, ok := backend.BearerFrom(ctx); ok {
		return &oauth2.Token{AccessToken: b, TokenType: "Bearer"}, nil
	}
	if c.service == nil {
		return nil, fmt.Errorf("%w: no bearer credential for portal request", common.ErrorUnauthorized)
	}
	return c.service.Token()
}

// do sends a JSON request and decodes a JSON response into out (if non-nil).
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	tok, err := c.token(ctx)
	if err != nil {
		return err
	}
	tok.SetAuthHeader(req)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s %s: %v", common.ErrTransient, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp, method, path)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// decodeError maps a non-2xx response to a sentinel error.
func decodeError(resp *http.Response, method, path string) error {
	var eb errorBody
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(raw, &eb)

	detail := eb.Message
	if detail == "" {
		detail = strings.TrimSpace(string(raw))
	}
	where := fmt.Sprintf("%s %s: status %d", method, path, resp.StatusCode)

	if eb.Error == "invalid_grant" {
		return fmt.Errorf("%w: %s: %s", common.ErrInvalidGrant, where, detail)
	}

	var sentinel error
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		sentinel = common.ErrorUnauthorized
	case resp.StatusCode == http.StatusForbidden:
		sentinel = common.ErrorForbidden
	case resp.StatusCode == http.StatusNotFound:
		sentinel = common.ErrorNotFound
	case resp.StatusCode == http.StatusConflict:
		sentinel = common.ErrConflictAlreadyResolved
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		sentinel = common.ErrTransient
	default:
		sentinel = errors.New("request rejected")
	}
	return fmt.Errorf("%w: %s: %s", sentinel, where, detail)
}
