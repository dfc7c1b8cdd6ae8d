// Package tenantapi is the HTTP client backend services use to reach the
// tenant service's status-reporting API.
package tenantapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/edvin/tenancy/internal/migration"
	"github.com/edvin/tenancy/internal/model"
)

const (
	DefaultTimeout    = 30 * time.Second
	DefaultRetryCount = 3
	pageLimit         = 200
)

// APIError is a non-2xx response from the tenant service.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// Is lets callers match API errors against the model's sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case model.ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case model.ErrConcurrentUpdate:
		return e.StatusCode == http.StatusConflict && !e.inProgress()
	case model.ErrMigrationInProgress:
		return e.StatusCode == http.StatusConflict && e.inProgress()
	}
	return false
}

func (e *APIError) inProgress() bool {
	return strings.Contains(e.Message, model.ErrMigrationInProgress.Error())
}

type errorBody struct {
	Error string `json:"error"`
}

type Client struct {
	http *resty.Client
}

var (
	_ migration.StatusReporter  = (*Client)(nil)
	_ migration.TenantDirectory = (*Client)(nil)
)

type Option func(*resty.Client)

func WithTimeout(d time.Duration) Option {
	return func(c *resty.Client) { c.SetTimeout(d) }
}

// WithRetry sets how often transport errors and 5xx responses are retried.
func WithRetry(count int, wait, maxWait time.Duration) Option {
	return func(c *resty.Client) {
		c.SetRetryCount(count).SetRetryWaitTime(wait).SetRetryMaxWaitTime(maxWait)
	}
}

func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(DefaultTimeout).
		SetRetryCount(DefaultRetryCount).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(5*time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		}).
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		c.SetHeader("X-API-Key", apiKey)
	}
	for _, o := range opts {
		o(c)
	}
	return &Client{http: c}
}

func (c *Client) request(ctx context.Context) *resty.Request {
	return c.http.R().SetContext(ctx).SetError(&errorBody{})
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if !resp.IsError() {
		return nil
	}
	msg := strings.TrimSpace(string(resp.Body()))
	if body, ok := resp.Error().(*errorBody); ok && body.Error != "" {
		msg = body.Error
	}
	return &APIError{
		StatusCode: resp.StatusCode(),
		Method:     resp.Request.Method,
		Path:       resp.Request.URL,
		Message:    msg,
	}
}

func servicePath(suffix string) string {
	return "/api/v1/tenants/{tenantID}/services/{serviceName}/" + suffix
}

func (c *Client) GetMigrationStatus(ctx context.Context, tenantID, service string) (*model.MigrationStatus, error) {
	var st model.MigrationStatus
	resp, err := c.request(ctx).
		SetPathParams(map[string]string{"tenantID": tenantID, "serviceName": service}).
		SetResult(&st).
		Get(servicePath("migration-status"))
	if err := check(resp, err); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, &model.MigrationStatusNotFoundError{ServiceName: service}
		}
		return nil, fmt.Errorf("get migration status: %w", err)
	}
	return &st, nil
}

func (c *Client) UpdateMigrationStatus(ctx context.Context, tenantID, service string, update model.MigrationStatusUpdate) error {
	resp, err := c.request(ctx).
		SetPathParams(map[string]string{"tenantID": tenantID, "serviceName": service}).
		SetHeader("Content-Type", "application/json").
		SetBody(update).
		Put(servicePath("migration-status"))
	if err := check(resp, err); err != nil {
		return fmt.Errorf("update migration status: %w", err)
	}
	return nil
}

func (c *Client) GetDatabaseMetadata(ctx context.Context, tenantID, service string) (*model.DatabaseMetadata, error) {
	var meta model.DatabaseMetadata
	resp, err := c.request(ctx).
		SetPathParams(map[string]string{"tenantID": tenantID, "serviceName": service}).
		SetResult(&meta).
		Get(servicePath("database"))
	if err := check(resp, err); err != nil {
		return nil, fmt.Errorf("get database metadata: %w", err)
	}
	return &meta, nil
}

func (c *Client) GetTenant(ctx context.Context, tenantID string) (*model.Tenant, error) {
	var t model.Tenant
	resp, err := c.request(ctx).
		SetPathParam("tenantID", tenantID).
		SetResult(&t).
		Get("/api/v1/tenants/{tenantID}")
	if err := check(resp, err); err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return &t, nil
}

type tenantPage struct {
	Items      []model.Tenant `json:"items"`
	NextCursor string         `json:"next_cursor"`
	HasMore    bool           `json:"has_more"`
}

// ListTenants follows the cursor until every tenant has been read.
func (c *Client) ListTenants(ctx context.Context) ([]model.Tenant, error) {
	var all []model.Tenant
	cursor := ""
	for {
		var page tenantPage
		req := c.request(ctx).
			SetQueryParam("limit", fmt.Sprint(pageLimit)).
			SetResult(&page)
		if cursor != "" {
			req.SetQueryParam("cursor", cursor)
		}
		resp, err := req.Get("/api/v1/tenants")
		if err := check(resp, err); err != nil {
			return nil, fmt.Errorf("list tenants: %w", err)
		}
		all = append(all, page.Items...)
		if !page.HasMore || page.NextCursor == "" {
			return all, nil
		}
		cursor = page.NextCursor
	}
}
