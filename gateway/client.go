package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mifi-dashboard/monitor/digest"
)

const (
	actionPath   = "/xml_action.cgi"
	homepageFile = "json_homepage_info"
	statusFile   = "json_status_info"

	maxBodyBytes = 1 << 20
)

// ClientConfig contains configuration for connecting to the device.
type ClientConfig struct {
	// URL is the base URL of the device (e.g., http://192.168.50.1)
	URL string

	// Username for digest authentication
	Username string

	// Password for digest authentication
	Password string

	// Timeout bounds connect, response header and whole request time.
	Timeout time.Duration
}

// DefaultConfig returns a ClientConfig with default values.
func DefaultConfig() ClientConfig {
	return ClientConfig{
		URL:      "http://192.168.50.1",
		Username: "admin",
		Password: "admin",
		Timeout:  10 * time.Second,
	}
}

// Client fetches telemetry from the device. Each Client owns its own digest
// session, so loops that must not share a nonce count use separate clients.
type Client struct {
	config     ClientConfig
	baseURL    *url.URL
	httpClient *http.Client
	auth       *digest.Authenticator
	logger     *slog.Logger
	now        func() time.Time
	lastStamp  atomic.Int64
}

// NewClient creates a new device client.
func NewClient(cfg ClientConfig, logger *slog.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("device URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid device URL %q: %w", cfg.URL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid device URL %q: scheme and host are required", cfg.URL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	httpClient := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: cfg.Timeout,
			}).DialContext,
			ResponseHeaderTimeout: cfg.Timeout,
			MaxIdleConnsPerHost:   2,
			IdleConnTimeout:       30 * time.Second,
		},
	}

	return &Client{
		config:     cfg,
		baseURL:    base,
		httpClient: httpClient,
		auth:       digest.NewAuthenticator(cfg.Username, cfg.Password),
		logger:     logger,
		now:        time.Now,
	}, nil
}

// FetchMetrics polls both device records and returns a normalized snapshot.
// It never fails: errors become a disconnected snapshot carrying the message.
func (c *Client) FetchMetrics(ctx context.Context) Metrics {
	m, err := c.Fetch(ctx)
	if err != nil {
		c.logger.Debug("fetch failed", "error", err, "error_kind", ErrorKindOf(err))
		return ErrorMetrics(err, c.now())
	}
	return m
}

// Fetch is FetchMetrics with the error returned. The error is a
// *ConnectivityError or a *NormalizationError.
func (c *Client) Fetch(ctx context.Context) (Metrics, error) {
	var home *RawHomepageInfo
	if err := c.getJSON(ctx, homepageFile, &home); err != nil {
		return Metrics{}, err
	}

	var status *RawStatusInfo
	if err := c.getJSON(ctx, statusFile, &status); err != nil {
		return Metrics{}, err
	}

	return Normalize(home, status, c.now())
}

// NonceCount reports the digest nonce count used so far.
func (c *Client) NonceCount() uint32 {
	return c.auth.Session.NonceCount()
}

// getJSON fetches file and decodes it into v.
func (c *Client) getJSON(ctx context.Context, file string, v any) error {
	body, err := c.get(ctx, file)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &NormalizationError{Op: file, Err: fmt.Errorf("failed to parse JSON response: %w", err)}
	}
	return nil
}

// get issues the GET for file, answering one digest challenge if the device
// asks for it. A second 401 is not retried.
func (c *Client) get(ctx context.Context, file string) ([]byte, error) {
	target := c.endpoint(file)

	resp, err := c.do(ctx, target, "")
	if err != nil {
		return nil, &ConnectivityError{Op: file, Err: fmt.Errorf("HTTP request failed: %w", err)}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		challenge := resp.Header.Get("WWW-Authenticate")
		discard(resp)

		authorization, err := c.auth.Respond(challenge, http.MethodGet, actionPath)
		if err != nil {
			var chErr *digest.ChallengeError
			if !errors.As(err, &chErr) {
				return nil, &ConnectivityError{Op: file, Err: err}
			}
			c.logger.Debug("no usable digest challenge, retrying without credentials", "file", file, "reason", chErr.Reason)
		}

		resp, err = c.do(ctx, target, authorization)
		if err != nil {
			return nil, &ConnectivityError{Op: file, Err: fmt.Errorf("HTTP request failed: %w", err)}
		}
		if resp.StatusCode == http.StatusUnauthorized {
			discard(resp)
			return nil, &ConnectivityError{Op: file, StatusCode: resp.StatusCode, Err: ErrUnauthorized}
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ConnectivityError{Op: file, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status code: %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &ConnectivityError{Op: file, Err: fmt.Errorf("failed to read response body: %w", err)}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, &ConnectivityError{Op: file, Err: ErrEmptyBody}
	}

	return body, nil
}

func (c *Client) do(ctx context.Context, target, authorization string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	return c.httpClient.Do(req)
}

// endpoint returns the URL for file. The device wants the cache-busting
// stamp glued onto the file name rather than as a separate parameter.
func (c *Client) endpoint(file string) string {
	return fmt.Sprintf("%s%s?method=get&module=duster&file=%s%d", c.baseURL.String(), actionPath, file, c.stamp())
}

// stamp returns the current time in milliseconds, bumped so that two calls
// never return the same value.
func (c *Client) stamp() int64 {
	for {
		last := c.lastStamp.Load()
		next := c.now().UnixMilli()
		if next <= last {
			next = last + 1
		}
		if c.lastStamp.CompareAndSwap(last, next) {
			return next
		}
	}
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
	_ = resp.Body.Close()
}
