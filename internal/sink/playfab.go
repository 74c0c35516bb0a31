package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dokzlo13/telemetryd/internal/event"
)

// PlayFab forwards events to a PlayFab-compatible title endpoint, one
// WritePlayerEvent call per event. PlayFab event names do not allow the
// colon hierarchy separator, so segments are joined with underscores.
type PlayFab struct {
	endpoint  string
	titleID   string
	secretKey string
	client    *http.Client
}

// NewPlayFab creates the adapter.
func NewPlayFab(endpoint, titleID, secretKey string, httpTimeout time.Duration) *PlayFab {
	return &PlayFab{
		endpoint:  endpoint,
		titleID:   titleID,
		secretKey: secretKey,
		client:    &http.Client{Timeout: httpTimeout},
	}
}

// Name implements Sink.
func (p *PlayFab) Name() string { return "playfab" }

// Send delivers one event synchronously.
func (p *PlayFab) Send(ctx context.Context, session string, ev event.Event) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	payload := map[string]any{
		"PlayFabId": session,
		"EventName": strings.ReplaceAll(ev.FullName(), ":", "_"),
		"Timestamp": at.UTC().Format(time.RFC3339),
		"Body": map[string]any{
			"category": string(ev.Kind),
			"value":    ev.Value,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	url := p.endpoint + "/Server/WritePlayerEvent"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-SecretKey", p.secretKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("post failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("title endpoint returned status %d", resp.StatusCode)
	}

	return nil
}

// Close is a no-op for PlayFab.
func (p *PlayFab) Close() error { return nil }
