// Package remoteconfig fetches the title's remote configuration document
// and serves per-key lookups through a TTL cache, so gameplay code can
// consult tuning flags without a backend round trip per call.
package remoteconfig

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/telemetryd/internal/kv"
)

// Client looks up remote-config values.
type Client struct {
	endpoint string
	cache    kv.Bucket
	ttl      time.Duration
	client   *http.Client
}

// NewClient creates a remote-config client caching fetched values for ttl.
func NewClient(endpoint string, cache kv.Bucket, ttl, httpTimeout time.Duration) *Client {
	return &Client{
		endpoint: endpoint,
		cache:    cache,
		ttl:      ttl,
		client:   &http.Client{Timeout: httpTimeout},
	}
}

// Get returns the value for key, serving from cache while fresh. A key
// absent from the document returns ok=false without error.
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	if value, ok, err := c.cache.Get(key); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Remote-config cache read failed")
	} else if ok {
		return value, true, nil
	}

	doc, err := c.fetch(ctx)
	if err != nil {
		return "", false, err
	}

	for k, v := range doc {
		if err := c.cache.Store(k, v, c.ttl); err != nil {
			log.Warn().Err(err).Str("key", k).Msg("Remote-config cache write failed")
		}
	}

	value, ok := doc[key]
	return value, ok, nil
}

// GetDefault returns the value for key, or def when the key is missing or
// the backend is unreachable.
func (c *Client) GetDefault(ctx context.Context, key, def string) string {
	value, ok, err := c.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Remote-config lookup failed, using default")
		return def
	}
	if !ok {
		return def
	}
	return value
}

// fetch retrieves the whole config document. Values of any JSON type are
// flattened to strings.
func (c *Client) fetch(ctx context.Context) (map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("config endpoint returned status %d", resp.StatusCode)
	}

	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode config document: %w", err)
	}

	doc := make(map[string]string, len(raw))
	for k, v := range raw {
		doc[k] = stringify(v)
	}

	log.Debug().Int("keys", len(doc)).Msg("Remote config fetched")
	return doc, nil
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case nil:
		return ""
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	}
}
