// Package dataverse implements the remote audit service transport over its
// OData web API.
package dataverse

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/chrispiasecki/pptb-auditing-manager/internal/domain"
	"github.com/chrispiasecki/pptb-auditing-manager/internal/query"
)

var _ domain.DataClient = (*Client)(nil)

const (
	apiPath        = "/api/data/v9.2"
	defaultTimeout = 30 * time.Second

	// annotationsHeader asks the service to include the formatted-value and
	// paging side channels on every response.
	annotationsHeader = `odata.include-annotations="*"`
)

// Client talks to the audit service's web API. It does not retry: callers
// own degradation policy, and a retried page fetch could observe a shifted
// window under concurrent writers.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit caps outgoing requests per second. Zero disables the cap.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), int(rps)+1)
		}
	}
}

// NewClient creates a Client for the given environment URL and bearer token.
func NewClient(baseURL, token string, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
		},
		logger: logger.With("component", "dataverse"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.warnIfTokenExpiring()
	return c
}

// warnIfTokenExpiring decodes the bearer token without verifying it, purely
// to surface an expiry warning at startup instead of a wall of 401s later.
func (c *Client) warnIfTokenExpiring() {
	if c.token == "" {
		c.logger.Warn("no bearer token configured, requests will be anonymous")
		return
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(c.token, claims); err != nil {
		return // opaque token, nothing to inspect
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return
	}
	switch remaining := time.Until(exp.Time); {
	case remaining <= 0:
		c.logger.Warn("bearer token is expired", "expired_at", exp.Time)
	case remaining < 10*time.Minute:
		c.logger.Warn("bearer token expires soon", "expires_at", exp.Time, "remaining", remaining)
	}
}

// RunQuery executes a FetchXML document against the collection endpoint of
// its primary entity.
func (c *Client) RunQuery(ctx context.Context, fetchXML string) (domain.RawDocument, error) {
	entity := query.EntityName(fetchXML)
	if entity == "" {
		return nil, domain.ErrValidation("query has no primary entity")
	}
	endpoint := fmt.Sprintf("%s%s/%s?fetchXml=%s",
		c.baseURL, apiPath, collectionName(entity), url.QueryEscape(fetchXML))
	return c.do(ctx, http.MethodGet, endpoint, nil)
}

// InvokeFunction calls a named service operation with a JSON parameter
// payload.
func (c *Client) InvokeFunction(ctx context.Context, name string, params map[string]any) (domain.RawDocument, error) {
	var body io.Reader
	if params != nil {
		encoded, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encode %s params: %w", name, err)
		}
		body = bytes.NewReader(encoded)
	}
	endpoint := fmt.Sprintf("%s%s/%s", c.baseURL, apiPath, name)
	return c.do(ctx, http.MethodPost, endpoint, body)
}

// LookupByID retrieves selected fields of one row by primary key.
func (c *Client) LookupByID(ctx context.Context, table, id string, fields []string) (domain.RawDocument, error) {
	endpoint := fmt.Sprintf("%s%s/%s(%s)", c.baseURL, apiPath, collectionName(table), url.PathEscape(id))
	if len(fields) > 0 {
		endpoint += "?$select=" + url.QueryEscape(strings.Join(fields, ","))
	}
	return c.do(ctx, http.MethodGet, endpoint, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader) (domain.RawDocument, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Prefer", annotationsHeader)
	req.Header.Set("X-Request-ID", uuid.New().String())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("remote call",
		"method", method,
		"status", resp.StatusCode,
		"duration", time.Since(start),
		"bytes", len(payload))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("remote call failed: status %d: %s", resp.StatusCode, errorSnippet(payload))
	}
	return domain.RawDocument(payload), nil
}

// collectionName derives the plural collection endpoint from a logical table
// name using the service's default pluralization.
func collectionName(table string) string {
	switch {
	case strings.HasSuffix(table, "s"), strings.HasSuffix(table, "x"), strings.HasSuffix(table, "ch"), strings.HasSuffix(table, "sh"):
		return table + "es"
	case strings.HasSuffix(table, "y"):
		return table[:len(table)-1] + "ies"
	default:
		return table + "s"
	}
}

// errorSnippet keeps remote error bodies readable in logs and wrapped errors.
func errorSnippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 300 {
		s = s[:300] + "..."
	}
	if s == "" {
		return "(empty body)"
	}
	return s
}
