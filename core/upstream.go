package core

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

	"modelmap/logger"
	"modelmap/models"

	"github.com/tidwall/gjson"
)

// ErrUpstreamNotConfigured is returned when the gateway base URL, token or user id is missing.
var ErrUpstreamNotConfigured = errors.New("upstream gateway is not configured")

const (
	defaultPageSize        = 100
	defaultUpstreamTimeout = 30 * time.Second
	maxChannelPages        = 1000
)

// UpstreamError is a non-2xx or success=false reply from the gateway.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, e.Message)
	}
	return "upstream error: " + e.Message
}

// ResolveUpstreamConfig trims and validates cfg. The base URL must be http or https; a trailing
// slash is removed.
func ResolveUpstreamConfig(cfg models.UpstreamConfig) (models.UpstreamConfig, error) {
	out := models.UpstreamConfig{
		BaseURL: strings.TrimSpace(cfg.BaseURL),
		Token:   strings.TrimSpace(cfg.Token),
		UserID:  strings.TrimSpace(cfg.UserID),
	}
	if out.BaseURL == "" || out.Token == "" || out.UserID == "" {
		return models.UpstreamConfig{}, ErrUpstreamNotConfigured
	}
	parsed, err := url.Parse(out.BaseURL)
	if err != nil || parsed.Host == "" {
		return models.UpstreamConfig{}, &ValidationError{Message: "upstream base URL is malformed"}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return models.UpstreamConfig{}, &ValidationError{Message: "upstream base URL must use http or https"}
	}
	out.BaseURL = strings.TrimRight(parsed.String(), "/")
	return out, nil
}

// UpstreamClient talks to the gateway's channel admin API.
type UpstreamClient struct {
	cfg        models.UpstreamConfig
	pageSize   int
	httpClient *http.Client
}

// NewUpstreamClient validates cfg and returns a client for it. A non-positive pageSize or
// timeout uses the defaults.
func NewUpstreamClient(cfg models.UpstreamConfig, pageSize int, timeout time.Duration) (*UpstreamClient, error) {
	resolved, err := ResolveUpstreamConfig(cfg)
	if err != nil {
		return nil, err
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if timeout <= 0 {
		timeout = defaultUpstreamTimeout
	}
	return &UpstreamClient{
		cfg:        resolved,
		pageSize:   pageSize,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// BaseURL returns the normalized gateway base URL.
func (c *UpstreamClient) BaseURL() string {
	return c.cfg.BaseURL
}

func (c *UpstreamClient) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("New-Api-User", c.cfg.UserID)

	logger.UpstreamDebug("%s %s", method, req.URL.String())
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.UpstreamError("%s %s failed: %v", method, path, err)
		return nil, fmt.Errorf("requesting %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response of %s: %w", path, err)
	}
	logger.UpstreamInfo("%s %s -> %d (%s, %d bytes)", method, path, resp.StatusCode, time.Since(start).Round(time.Millisecond), len(data))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := gjson.GetBytes(data, "message").String()
		if msg == "" {
			msg = strings.TrimSpace(string(data))
		}
		if msg == "" {
			msg = resp.Status
		}
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Message: msg}
	}
	if gjson.ValidBytes(data) {
		if ok := gjson.GetBytes(data, "success"); ok.Exists() && !ok.Bool() {
			return nil, &UpstreamError{Message: gjson.GetBytes(data, "message").String()}
		}
	}
	return data, nil
}

// ListChannels fetches every channel, following pagination until data.total is reached.
func (c *UpstreamClient) ListChannels(ctx context.Context) ([]models.Channel, error) {
	var channels []models.Channel
	for page := 1; page <= maxChannelPages; page++ {
		path := fmt.Sprintf("/api/channel/?page=%d&page_size=%d", page, c.pageSize)
		data, err := c.do(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, fmt.Errorf("listing channels (page %d): %w", page, err)
		}
		items := gjson.GetBytes(data, "data.items")
		if !items.IsArray() {
			return nil, &UpstreamError{Message: "channel list response has no data.items array"}
		}
		var pageItems []models.Channel
		if err := json.Unmarshal([]byte(items.Raw), &pageItems); err != nil {
			return nil, fmt.Errorf("decoding channels (page %d): %w", page, err)
		}
		channels = append(channels, pageItems...)

		total := gjson.GetBytes(data, "data.total").Int()
		if len(pageItems) == 0 || int64(page*c.pageSize) >= total {
			break
		}
	}
	logger.UpstreamInfo("ListChannels: fetched %d channels", len(channels))
	return channels, nil
}

// FetchModels asks the gateway for the models a channel's provider currently offers.
func (c *UpstreamClient) FetchModels(ctx context.Context, channelID int64) ([]string, error) {
	data, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/channel/fetch_models/%d", channelID), nil)
	if err != nil {
		return nil, fmt.Errorf("fetching models of channel %d: %w", channelID, err)
	}
	list := gjson.GetBytes(data, "data")
	if !list.IsArray() {
		return nil, &UpstreamError{Message: fmt.Sprintf("fetch_models response for channel %d has no data array", channelID)}
	}
	out := make([]string, 0, len(list.Array()))
	for _, m := range list.Array() {
		if m.Type == gjson.String && m.String() != "" {
			out = append(out, m.String())
		}
	}
	return out, nil
}

// UpdateChannel pushes a new enabled-model list and rename map to one channel.
func (c *UpstreamClient) UpdateChannel(ctx context.Context, update models.ChannelUpdate) error {
	if update.ID <= 0 {
		return &ValidationError{Message: "invalid channel id"}
	}
	body, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("marshalling channel update: %w", err)
	}
	if _, err := c.do(ctx, http.MethodPut, "/api/channel/", body); err != nil {
		return fmt.Errorf("updating channel %d: %w", update.ID, err)
	}
	return nil
}
