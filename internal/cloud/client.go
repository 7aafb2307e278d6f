// Package cloud is the HTTP client for the OEM OTA backend: health
// probe, report uploads and campaign package download.
package cloud

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/pkg/log"
)

// Config holds the backend endpoint and client behavior.
type Config struct {
	BaseURL            string
	Timeout            time.Duration
	InsecureSkipVerify bool

	// Download behavior.
	ChunkSize  int
	MaxRetries int
	RetryDelay time.Duration
}

func (c *Config) setDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = 64 * 1024
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = time.Second
	}
}

// Client talks to the OTA backend.
type Client struct {
	cfg    Config
	hc     *http.Client
	logger log.Logger
}

// NewClient creates a backend client.
func NewClient(cfg Config) (*Client, error) {
	cfg.setDefaults()

	if u, err := url.Parse(cfg.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("cloud: invalid base url %q", cfg.BaseURL)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}

	return &Client{
		cfg: cfg,
		hc: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		logger: log.WithName("cloud"),
	}, nil
}

// resolve turns a path or absolute URL into a request URL.
func (c *Client) resolve(pathOrURL string) string {
	if strings.HasPrefix(pathOrURL, "http://") || strings.HasPrefix(pathOrURL, "https://") {
		return pathOrURL
	}
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/" + strings.TrimLeft(pathOrURL, "/")
}

// Health probes the backend's /health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolve("/health"), nil)
	if err != nil {
		return err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("cloud: health check: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cloud: health check returned %s", resp.Status)
	}
	return nil
}

// PostJSON uploads v as a JSON document.
func (c *Client) PostJSON(ctx context.Context, path string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cloud: marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.resolve(path), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("cloud: post %s: %w", path, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("cloud: post %s returned %s", path, resp.Status)
	}
	return nil
}

// PostVCI uploads a VCI report for the given vehicle.
func (c *Client) PostVCI(ctx context.Context, vin string, report any) error {
	return c.PostJSON(ctx, fmt.Sprintf("/api/vehicles/%s/vci", vin), report)
}

// PostReadiness uploads a readiness report for the given vehicle.
func (c *Client) PostReadiness(ctx context.Context, vin string, report any) error {
	return c.PostJSON(ctx, fmt.Sprintf("/api/vehicles/%s/readiness", vin), report)
}
