package extapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"licensehub-engine/pkg/config"
	"licensehub-engine/pkg/errutil"
	"licensehub-engine/pkg/resilience"

	"go.uber.org/zap"
)

// resourceName keys the circuit breaker guarding every call to the remote
// license authority.
const resourceName = "license-api"

const apiKeyHeader = "X-API-Key"

// Client is the typed client for the remote license authority. Every request
// runs through the composed reliability wrapper: breaker, then timeout, then
// retry.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	caller  *resilience.Caller
}

func NewClient(cfg *config.Config) *Client {
	api := cfg.LicenseAPI

	return &Client{
		baseURL: api.BaseURL,
		apiKey:  api.APIKey,
		http:    &http.Client{},
		caller: resilience.NewCaller(resilience.CallerConfig{
			Timeout: api.RequestTimeout,
			Retry: resilience.RetryConfig{
				MaxAttempts: api.RetryAttempts,
				Delay:       api.RetryDelay,
				Backoff:     api.RetryBackoff,
			},
			Breaker: resilience.BreakerConfig{
				FailureThreshold: api.Breaker.FailureThreshold,
				Interval:         api.Breaker.Interval,
				RecoveryTimeout:  api.Breaker.RecoveryTimeout,
			},
		}),
	}
}

// BreakerState exposes the remote authority's circuit state for readiness
// reporting.
func (c *Client) BreakerState() string {
	return c.caller.BreakerState(resourceName)
}

// List fetches one page of licenses.
func (c *Client) List(ctx context.Context, params ListParams) (*ListResponse, error) {
	q := url.Values{}
	if params.Page > 0 {
		q.Set("page", strconv.Itoa(params.Page))
	}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Status != "" {
		q.Set("status", params.Status)
	}
	if params.DBA != "" {
		q.Set("dba", params.DBA)
	}
	if params.Email != "" {
		q.Set("email", params.Email)
	}
	if params.SortBy != "" {
		q.Set("sortBy", params.SortBy)
		order := params.SortOrder
		if order == "" {
			order = "asc"
		}
		q.Set("sortOrder", order)
	}

	var out ListResponse
	if err := c.do(ctx, "list", http.MethodGet, "/licenses?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

func (c *Client) GetByAppID(ctx context.Context, appID string) (*ExternalLicense, error) {
	if appID == "" {
		return nil, errutil.ValidationFailed("appid is required", nil)
	}

	var out ExternalLicense
	if err := c.do(ctx, "get_by_appid", http.MethodGet, "/licenses/app/"+url.PathEscape(appID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetByEmail(ctx context.Context, email string) (*ExternalLicense, error) {
	if email == "" {
		return nil, errutil.ValidationFailed("email is required", nil)
	}

	var out ExternalLicense
	if err := c.do(ctx, "get_by_email", http.MethodGet, "/licenses/email/"+url.PathEscape(email), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetByCountID(ctx context.Context, countID int64) (*ExternalLicense, error) {
	if countID <= 0 {
		return nil, errutil.ValidationFailed("countid is required", nil)
	}

	var out ExternalLicense
	if err := c.do(ctx, "get_by_countid", http.MethodGet, fmt.Sprintf("/licenses/count/%d", countID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Create(ctx context.Context, lic *ExternalLicense) (*ExternalLicense, error) {
	if lic == nil {
		return nil, errutil.ValidationFailed("license payload is required", nil)
	}
	if err := lic.Validate(); err != nil {
		return nil, errutil.ValidationFailed("license payload invalid", err)
	}

	var out ExternalLicense
	if err := c.do(ctx, "create", http.MethodPost, "/licenses", lic, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateByAppID(ctx context.Context, appID string, lic *ExternalLicense) (*ExternalLicense, error) {
	if appID == "" {
		return nil, errutil.ValidationFailed("appid is required", nil)
	}
	if lic == nil {
		return nil, errutil.ValidationFailed("license payload is required", nil)
	}

	var out ExternalLicense
	if err := c.do(ctx, "update_by_appid", http.MethodPut, "/licenses/app/"+url.PathEscape(appID), lic, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateByEmail(ctx context.Context, email string, lic *ExternalLicense) (*ExternalLicense, error) {
	if email == "" {
		return nil, errutil.ValidationFailed("email is required", nil)
	}
	if lic == nil {
		return nil, errutil.ValidationFailed("license payload is required", nil)
	}

	var out ExternalLicense
	if err := c.do(ctx, "update_by_email", http.MethodPut, "/licenses/email/"+url.PathEscape(email), lic, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateByCountID(ctx context.Context, countID int64, lic *ExternalLicense) (*ExternalLicense, error) {
	if countID <= 0 {
		return nil, errutil.ValidationFailed("countid is required", nil)
	}
	if lic == nil {
		return nil, errutil.ValidationFailed("license payload is required", nil)
	}

	var out ExternalLicense
	if err := c.do(ctx, "update_by_countid", http.MethodPut, fmt.Sprintf("/licenses/count/%d", countID), lic, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteByAppID(ctx context.Context, appID string) error {
	if appID == "" {
		return errutil.ValidationFailed("appid is required", nil)
	}
	return c.do(ctx, "delete_by_appid", http.MethodDelete, "/licenses/app/"+url.PathEscape(appID), nil, nil)
}

func (c *Client) DeleteByEmail(ctx context.Context, email string) error {
	if email == "" {
		return errutil.ValidationFailed("email is required", nil)
	}
	return c.do(ctx, "delete_by_email", http.MethodDelete, "/licenses/email/"+url.PathEscape(email), nil, nil)
}

func (c *Client) DeleteByCountID(ctx context.Context, countID int64) error {
	if countID <= 0 {
		return errutil.ValidationFailed("countid is required", nil)
	}
	return c.do(ctx, "delete_by_countid", http.MethodDelete, fmt.Sprintf("/licenses/count/%d", countID), nil, nil)
}

// HealthCheck establishes liveness with a minimal list call; it has no side
// effects on the remote.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.List(ctx, ListParams{Page: 1, Limit: 1})
	return err
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	return c.caller.Call(ctx, resourceName, op, func(ctx context.Context) error {
		var reader io.Reader
		if body != nil {
			raw, err := json.Marshal(body)
			if err != nil {
				return errutil.ValidationFailed("failed to encode request body", err)
			}
			reader = bytes.NewReader(raw)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return errutil.Internal("failed to build request", err)
		}
		req.Header.Set(apiKeyHeader, c.apiKey)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return errutil.BadGateway("failed to read response", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			zap.L().Debug("license api non-2xx response",
				zap.String("operation", op),
				zap.Int("status", resp.StatusCode),
				zap.ByteString("body", truncate(raw, 512)),
			)
			return errutil.New(
				errutil.FromHTTPStatus(resp.StatusCode),
				fmt.Sprintf("%s returned %d: %s", op, resp.StatusCode, truncate(raw, 256)),
			)
		}

		if out == nil || len(raw) == 0 {
			return nil
		}

		if err := json.Unmarshal(raw, out); err != nil {
			return errutil.BadGateway("failed to decode response", err)
		}

		return nil
	})
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
