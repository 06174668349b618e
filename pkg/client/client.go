// Package client is the HTTP client for a warden daemon's pull API.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/warden-sh/warden/internal/record"
)

// Client talks to one warden daemon.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	Logger  *slog.Logger
	TLS     *TLSClientConfig
	// Insecure skips TLS verification.
	Insecure bool
}

// TLSClientConfig holds TLS settings for the client side.
type TLSClientConfig struct {
	Enabled    bool
	CACert     string
	ClientCert string
	ClientKey  string
	ServerName string
	SkipVerify bool
}

// DefaultConfig returns the configuration for a local daemon.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8420",
		Timeout: 90 * time.Second, // stop can wait out a grace window
	}
}

// New creates a warden API client.
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:8420"
	}
	if config.Timeout == 0 {
		config.Timeout = 90 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	transport := &http.Transport{}
	if (config.TLS != nil && config.TLS.Enabled) || config.Insecure {
		tlsConfig, err := setupClientTLS(config)
		if err != nil {
			config.Logger.Error("TLS setup failed", "error", err)
		} else {
			transport.TLSClientConfig = tlsConfig
		}
	}

	return &Client{
		baseURL: config.BaseURL,
		token:   config.Token,
		logger:  config.Logger,
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
	}
}

// IsReachable reports whether the daemon answers its liveness ping.
func (c *Client) IsReachable(ctx context.Context) bool {
	var pong PingResponse
	if err := c.doJSON(ctx, "GET", "/ping", nil, &pong); err != nil {
		c.logger.Debug("daemon unreachable", "error", err)
		return false
	}
	return pong.Message == "Pong!"
}

// Authorize reports whether the configured token passes.
func (c *Client) Authorize(ctx context.Context) error {
	return c.doJSON(ctx, "GET", "/authorize", nil, nil)
}

// Servers lists all servers; a non-empty fragment filters by name or
// endpoint substring.
func (c *Client) Servers(ctx context.Context, fragment string) ([]record.Snapshot, error) {
	path := "/servers"
	if fragment != "" {
		path += "?q=" + url.QueryEscape(fragment)
	}
	var out []record.Snapshot
	if err := c.doJSON(ctx, "GET", path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Server fetches one server's snapshot.
func (c *Client) Server(ctx context.Context, id string) (record.Snapshot, error) {
	var out record.Snapshot
	err := c.doJSON(ctx, "GET", "/servers/"+url.PathEscape(id), nil, &out)
	return out, err
}

// Create registers a new server from a record.
func (c *Client) Create(ctx context.Context, rec record.Record) (record.Snapshot, error) {
	var out record.Snapshot
	err := c.doJSON(ctx, "POST", "/servers", rec, &out)
	return out, err
}

// Update applies a partial update.
func (c *Client) Update(ctx context.Context, id string, patch record.Patch) (record.Snapshot, error) {
	var out record.Snapshot
	err := c.doJSON(ctx, "PATCH", "/servers/"+url.PathEscape(id), patch, &out)
	return out, err
}

// Delete detaches a server; purge removes its record file too.
func (c *Client) Delete(ctx context.Context, id string, purge bool) error {
	path := "/servers/" + url.PathEscape(id)
	if purge {
		path += "?purge=1"
	}
	return c.doJSON(ctx, "DELETE", path, nil, nil)
}

// Start launches the server's process.
func (c *Client) Start(ctx context.Context, id string) (record.Snapshot, error) {
	return c.action(ctx, id, "start")
}

// Stop terminates the server's process, waiting out the grace window.
func (c *Client) Stop(ctx context.Context, id string) (record.Snapshot, error) {
	return c.action(ctx, id, "stop")
}

// Restart stops then starts the server's process.
func (c *Client) Restart(ctx context.Context, id string) (record.Snapshot, error) {
	return c.action(ctx, id, "restart")
}

func (c *Client) action(ctx context.Context, id, action string) (record.Snapshot, error) {
	var out record.Snapshot
	err := c.doJSON(ctx, "POST", "/servers/"+url.PathEscape(id)+"/"+action, nil, &out)
	return out, err
}

// Console writes one line to the server's stdin.
func (c *Client) Console(ctx context.Context, id, line string) error {
	body := map[string]string{"line": line}
	return c.doJSON(ctx, "POST", "/servers/"+url.PathEscape(id)+"/console", body, nil)
}

func setupClientTLS(config Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{}
	if config.Insecure {
		tlsConfig.InsecureSkipVerify = true
		return tlsConfig, nil
	}
	if config.TLS != nil {
		if config.TLS.SkipVerify {
			tlsConfig.InsecureSkipVerify = true
		}
		if config.TLS.ServerName != "" {
			tlsConfig.ServerName = config.TLS.ServerName
		}
		if config.TLS.CACert != "" {
			if err := loadCACert(tlsConfig, config.TLS.CACert); err != nil {
				return nil, fmt.Errorf("load CA certificate: %w", err)
			}
		}
		if config.TLS.ClientCert != "" && config.TLS.ClientKey != "" {
			cert, err := tls.LoadX509KeyPair(config.TLS.ClientCert, config.TLS.ClientKey)
			if err != nil {
				return nil, fmt.Errorf("load client certificate: %w", err)
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}
	}
	return tlsConfig, nil
}

func loadCACert(tlsConfig *tls.Config, caCertPath string) error {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return fmt.Errorf("read CA certificate file: %w", err)
	}
	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return fmt.Errorf("parse CA certificate")
	}
	tlsConfig.RootCAs = caCertPool
	return nil
}

// doJSON performs one request, decoding a JSON response into out when out
// is non-nil and mapping error bodies onto *APIError.
func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var bodyReader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil {
			return fmt.Errorf("HTTP %d", resp.StatusCode)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
