package actor

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

	"github.com/lvcoi/igfetch/internal/config"
	"github.com/lvcoi/igfetch/internal/downloader"
	"github.com/lvcoi/igfetch/internal/logger"
	"github.com/lvcoi/igfetch/internal/proxy"
)

const apifyRequestTimeout = 5 * time.Minute

// ErrRecordNotFound is returned when a key-value store record does not exist.
var ErrRecordNotFound = errors.New("record not found")

// APIError is a non-2xx reply from the platform API.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("apify %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Client talks to the Apify REST API v2.
type Client struct {
	baseURL string
	http    *http.Client
	log     logger.Logger
}

// NewClient returns a client for baseURL. A nil transport uses the shared pool.
func NewClient(baseURL, token string, transport http.RoundTripper, log logger.Logger) *Client {
	if log == nil {
		log = logger.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    newHTTPClient(transport, token, apifyRequestTimeout),
		log:     log,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, contentType string) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("apify %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading apify response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound && method == http.MethodGet {
		return nil, ErrRecordNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: truncateBody(data)}
	}
	c.log.Debug("apify request done",
		logger.String("method", method),
		logger.String("path", path),
		logger.Int("status", resp.StatusCode),
	)
	return data, nil
}

func truncateBody(b []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}

func recordPath(storeID, key string) string {
	return "/v2/key-value-stores/" + url.PathEscape(storeID) + "/records/" + url.PathEscape(key)
}

// GetRecord fetches a key-value store record.
func (c *Client) GetRecord(ctx context.Context, storeID, key string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, recordPath(storeID, key), nil, "")
}

// PutRecord writes a key-value store record.
func (c *Client) PutRecord(ctx context.Context, storeID, key string, data []byte, contentType string) error {
	if data == nil {
		data = []byte{}
	}
	_, err := c.do(ctx, http.MethodPut, recordPath(storeID, key), data, contentType)
	return err
}

// PushItems appends JSON items to a dataset.
func (c *Client) PushItems(ctx context.Context, datasetID string, items any) error {
	body, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encoding dataset items: %w", err)
	}
	_, err = c.do(ctx, http.MethodPost, "/v2/datasets/"+url.PathEscape(datasetID)+"/items", body, "application/json; charset=utf-8")
	return err
}

// apifyInput reads the run input from the default key-value store.
type apifyInput struct {
	client  *Client
	storeID string
	key     string
}

func (a *apifyInput) Input(ctx context.Context) (map[string]any, error) {
	data, err := a.client.GetRecord(ctx, a.storeID, a.key)
	if errors.Is(err, ErrRecordNotFound) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading input %s: %w", a.key, err)
	}
	return decodeInput(data)
}

func decodeInput(data []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]any{}, nil
	}
	var input map[string]any
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, fmt.Errorf("decoding input: %w", err)
	}
	if input == nil {
		input = map[string]any{}
	}
	return input, nil
}

// apifyDataset pushes records to the default dataset.
type apifyDataset struct {
	client    *Client
	datasetID string
}

func (d *apifyDataset) Push(ctx context.Context, records ...downloader.Record) error {
	if len(records) == 0 {
		return nil
	}
	return d.client.PushItems(ctx, d.datasetID, records)
}

// apifyStore writes media to the default key-value store.
type apifyStore struct {
	client  *Client
	storeID string
}

func (s *apifyStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	return s.client.PutRecord(ctx, s.storeID, key, data, contentType)
}

func (s *apifyStore) ID() string { return s.storeID }

// NewApify builds the platform runtime from the injected environment.
func NewApify(cfg config.ApifyConfig, transport http.RoundTripper, log logger.Logger) (*Runtime, error) {
	if cfg.Token == "" {
		return nil, errors.New("APIFY_TOKEN is not set")
	}
	if cfg.DatasetID == "" || cfg.KeyValueStoreID == "" {
		return nil, errors.New("default dataset and key-value store ids are required on the platform")
	}
	inputKey := cfg.InputKey
	if inputKey == "" {
		inputKey = "INPUT"
	}
	client := NewClient(cfg.BaseURL, cfg.Token, transport, log)
	return &Runtime{
		Name:       "apify",
		Input:      &apifyInput{client: client, storeID: cfg.KeyValueStoreID, key: inputKey},
		Sink:       &apifyDataset{client: client, datasetID: cfg.DatasetID},
		Store:      &apifyStore{client: client, storeID: cfg.KeyValueStoreID},
		APIBaseURL: client.baseURL,
		rotating:   rotatingConfig(cfg),
		closers: []func() error{func() error {
			CloseIdleConnections()
			return nil
		}},
	}, nil
}

func rotatingConfig(cfg config.ApifyConfig) proxy.RotatingConfig {
	return proxy.RotatingConfig{
		Password: cfg.ProxyPassword,
		Hostname: cfg.ProxyHostname,
		Port:     cfg.ProxyPort,
	}
}
