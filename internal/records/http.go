package records

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/m3rciful/datingbot/core/netutil"
)

const maxErrorBody = 4 << 10

// APIError is a non-2xx reply from the record store API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("records api: status %d: %s", e.StatusCode, e.Body)
}

// Code returns a stable error code for logs.
func (e *APIError) Code() string {
	return "records_http_" + strconv.Itoa(e.StatusCode)
}

// Is makes a 404 reply match ErrNotFound.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// HTTPClient talks to the record store API over HTTP.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

var _ Client = (*HTTPClient)(nil)

// HTTPOptions configures NewHTTPClient.
type HTTPOptions struct {
	BaseURL string
	Timeout time.Duration
	// Client overrides the HTTP client (tests).
	Client *http.Client
}

// NewHTTPClient builds a client for the API at opts.BaseURL.
func NewHTTPClient(opts HTTPOptions) (*HTTPClient, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("records: base url is required")
	}
	hc := opts.Client
	if hc == nil {
		hc = netutil.NewHTTPClient(netutil.ClientOptions{Timeout: opts.Timeout})
	}
	return &HTTPClient{baseURL: base, http: hc}, nil
}

// Fetch returns the record for chatID or ErrNotFound.
func (c *HTTPClient) Fetch(ctx context.Context, chatID int64) (*Record, error) {
	var rec Record
	if err := c.do(ctx, http.MethodGet, c.userPath(chatID), nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns every record.
func (c *HTTPClient) List(ctx context.Context) ([]Record, error) {
	var out []Record
	if err := c.do(ctx, http.MethodGet, "/api/users", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Create posts rec and returns the stored record.
func (c *HTTPClient) Create(ctx context.Context, rec Record) (*Record, error) {
	var out Record
	if err := c.do(ctx, http.MethodPost, "/api/users", rec, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Patch sends a partial update.
func (c *HTTPClient) Patch(ctx context.Context, chatID int64, p Patch) error {
	return c.do(ctx, http.MethodPatch, c.userPath(chatID), p, nil)
}

// Delete removes the record.
func (c *HTTPClient) Delete(ctx context.Context, chatID int64) error {
	return c.do(ctx, http.MethodDelete, c.userPath(chatID), nil, nil)
}

func (c *HTTPClient) userPath(chatID int64) string {
	return "/api/users/" + strconv.FormatInt(chatID, 10)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("records: encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("records: build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("records: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("records: decode %s %s: %w", method, path, err)
	}
	return nil
}
