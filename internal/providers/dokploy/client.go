// Package dokploy is a minimal client for the Dokploy REST API, covering
// the application lifecycle the reconciler needs. Dokploy ships no Go SDK,
// so this wraps net/http directly.
package dokploy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pressdeck/engine/internal/providers"
)

const wordpressImage = "wordpress:6-apache"

// Client implements providers.DeployProvider against a Dokploy instance.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client (useful for testing).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a deploy adapter for the Dokploy instance at baseURL.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ providers.DeployProvider = (*Client)(nil)

type application struct {
	ApplicationID     string `json:"applicationId"`
	Name              string `json:"name"`
	AppName           string `json:"appName"`
	ApplicationStatus string `json:"applicationStatus"`
}

func (c *Client) CreateApplication(ctx context.Context, spec providers.AppSpec) (*providers.AppObservation, error) {
	env := map[string]string{
		"WORDPRESS_DB_HOST":     "db:3306",
		"WORDPRESS_SITE_URL":    "https://" + spec.Domain,
		"WORDPRESS_ADMIN_EMAIL": spec.AdminEmail,
	}
	for k, v := range spec.Env {
		env[k] = v
	}
	var envLines []string
	for k, v := range env {
		envLines = append(envLines, k+"="+v)
	}

	body := map[string]any{
		"name":        spec.Name,
		"appName":     spec.Name,
		"serverId":    spec.ServerAddr,
		"sourceType":  "docker",
		"dockerImage": wordpressImage,
		"env":         strings.Join(envLines, "\n"),
		"domain":      spec.Domain,
	}

	var app application
	if err := c.do(ctx, http.MethodPost, "/api/application.create", body, &app); err != nil {
		return nil, err
	}

	// Creation registers the application; a deploy trigger starts it. When
	// the trigger fails the application already exists, so the observation
	// is returned alongside the error and the caller records the id instead
	// of re-creating under the same name.
	if err := c.do(ctx, http.MethodPost, "/api/application.deploy", map[string]any{"applicationId": app.ApplicationID}, nil); err != nil {
		return &providers.AppObservation{ExternalID: app.ApplicationID, Running: false}, err
	}

	return &providers.AppObservation{ExternalID: app.ApplicationID, Running: false}, nil
}

func (c *Client) DescribeApplication(ctx context.Context, externalID string) (*providers.AppObservation, error) {
	var app application
	path := "/api/application.one?applicationId=" + url.QueryEscape(externalID)
	if err := c.do(ctx, http.MethodGet, path, nil, &app); err != nil {
		return nil, err
	}
	return &providers.AppObservation{
		ExternalID: app.ApplicationID,
		Running:    app.ApplicationStatus == "done" || app.ApplicationStatus == "running",
	}, nil
}

func (c *Client) DestroyApplication(ctx context.Context, externalID string) error {
	return c.do(ctx, http.MethodPost, "/api/application.delete", map[string]any{"applicationId": externalID}, nil)
}

// Validate lists projects, a cheap read-only call.
func (c *Client) Validate(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/project.all", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return providers.NewError(providers.ErrConfigInvalid, fmt.Errorf("marshal request: %w", err))
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return providers.NewError(providers.ErrConfigInvalid, err)
	}
	req.Header.Set("x-api-key", c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return providers.NewError(providers.ErrTransient, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return err
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return providers.NewError(providers.ErrTransient, fmt.Errorf("decode response: %w", err))
		}
	}
	return nil
}

// classifyStatus maps an HTTP status onto the provider taxonomy.
func classifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return providers.NewError(providers.ErrAuthInvalid, fmt.Errorf("dokploy returned %d", status))
	case status == http.StatusTooManyRequests:
		return providers.NewError(providers.ErrRateLimited, fmt.Errorf("dokploy returned %d", status))
	case status == http.StatusNotFound:
		return providers.NewError(providers.ErrNotFound, fmt.Errorf("dokploy returned %d", status))
	case status == http.StatusConflict:
		return providers.NewError(providers.ErrConflict, fmt.Errorf("dokploy returned %d", status))
	case status >= 400 && status < 500:
		return providers.NewError(providers.ErrConfigInvalid, fmt.Errorf("dokploy returned %d", status))
	default:
		return providers.NewError(providers.ErrTransient, fmt.Errorf("dokploy returned %d", status))
	}
}
