// Package siteapi talks to the website endpoints a player consumes: the
// player info (state) endpoint, the watching endpoint and the like endpoint.
package siteapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/stwalsh4118/marquee/internal/config"
	"github.com/stwalsh4118/marquee/internal/models"
)

var (
	// ErrUnexpectedStatus is returned when an endpoint does not answer 200
	ErrUnexpectedStatus = errors.New("unexpected response status")
	// ErrDisabled is returned when the endpoint for a feature is not configured
	ErrDisabled = errors.New("endpoint disabled")
)

const maxErrorBody = 512

// Client issues the site requests for any content item
type Client struct {
	baseURL      string
	infoPath     string
	watchingPath string
	likePath     string
	csrfToken    string
	headers      map[string]string
	http         *http.Client
}

// New creates a client from the site configuration
func New(cfg *config.SiteConfig) *Client {
	return NewWithHTTPClient(cfg, &http.Client{
		Timeout:   cfg.RequestTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	})
}

// NewWithHTTPClient creates a client using hc for requests
func NewWithHTTPClient(cfg *config.SiteConfig, hc *http.Client) *Client {
	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		infoPath:     cfg.PlayerInfoPath,
		watchingPath: cfg.RegisterWatchingPath,
		likePath:     cfg.RegisterLikePath,
		csrfToken:    cfg.CSRFToken,
		headers:      headers,
		http:         hc,
	}
}

// WatchingEnabled reports whether watching registration is configured
func (c *Client) WatchingEnabled() bool { return c.watchingPath != "" }

// LikesEnabled reports whether the like endpoint is configured
func (c *Client) LikesEnabled() bool { return c.likePath != "" }

// endpoint expands {id} in a path template and resolves it against the base url
func (c *Client) endpoint(template, contentID string) string {
	path := strings.ReplaceAll(template, "{id}", url.PathEscape(contentID))
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.baseURL + path
}

// post sends a form encoded POST and returns the body of a 200 response
func (c *Client) post(ctx context.Context, rawURL string, form url.Values) ([]byte, error) {
	if c.csrfToken != "" {
		form.Set("csrf_token", c.csrfToken)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

// FetchState retrieves the current media state of a content item
func (c *Client) FetchState(ctx context.Context, contentID string) (*models.MediaStateSnapshot, error) {
	body, err := c.post(ctx, c.endpoint(c.infoPath, contentID), url.Values{})
	if err != nil {
		return nil, err
	}
	var snapshot models.MediaStateSnapshot
	if err := json.Unmarshal(body, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode player info: %w", err)
	}
	return &snapshot, nil
}

// RegisterWatching reports whether the content is playing and where. A nil
// position is sent as "unavailable".
func (c *Client) RegisterWatching(ctx context.Context, contentID string, playing bool, position *int64) error {
	if !c.WatchingEnabled() {
		return ErrDisabled
	}
	form := url.Values{}
	form.Set("playing", "0")
	if playing {
		form.Set("playing", "1")
	}
	form.Set("time", "unavailable")
	if position != nil {
		form.Set("time", strconv.FormatInt(*position, 10))
	}
	_, err := c.post(ctx, c.endpoint(c.watchingPath, contentID), form)
	return err
}

type likeResponse struct {
	Success bool `json:"success"`
}

// RegisterLike sends a like request and returns the server's success flag
func (c *Client) RegisterLike(ctx context.Context, contentID string, likeType models.LikeType) (bool, error) {
	if !c.LikesEnabled() {
		return false, ErrDisabled
	}
	form := url.Values{}
	form.Set("type", string(likeType))
	body, err := c.post(ctx, c.endpoint(c.likePath, contentID), form)
	if err != nil {
		return false, err
	}
	var resp likeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, fmt.Errorf("failed to decode like response: %w", err)
	}
	return resp.Success, nil
}
