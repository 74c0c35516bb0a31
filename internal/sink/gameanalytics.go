package sink

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/telemetryd/internal/event"
)

// GameAnalytics forwards events to a GameAnalytics-compatible collector.
// The collector accepts arrays of events, so sends go through a Batcher.
// A Send below the batch threshold only queues; the Send that fills the
// batch posts it on its own goroutine, which is a forwarding goroutine,
// never the ingest path.
type GameAnalytics struct {
	endpoint string
	gameKey  string
	secret   []byte
	client   *http.Client
	batcher  *Batcher
}

// NewGameAnalytics creates the adapter. Batches are posted once batchSize
// payloads accumulate or batchTimeout elapses after the first one.
func NewGameAnalytics(endpoint, gameKey, secretKey string, batchSize int, batchTimeout, httpTimeout time.Duration) *GameAnalytics {
	g := &GameAnalytics{
		endpoint: endpoint,
		gameKey:  gameKey,
		secret:   []byte(secretKey),
		client:   &http.Client{Timeout: httpTimeout},
	}
	g.batcher = NewBatcher(batchSize, batchTimeout, g.postBatch)
	return g
}

// Name implements Sink.
func (g *GameAnalytics) Name() string { return "gameanalytics" }

// Send queues the event for the next batch post.
func (g *GameAnalytics) Send(_ context.Context, session string, ev event.Event) error {
	g.batcher.Add(g.payload(session, ev))
	return nil
}

// Close posts any remaining batch.
func (g *GameAnalytics) Close() error {
	g.batcher.Close()
	return nil
}

func (g *GameAnalytics) payload(session string, ev event.Event) map[string]any {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	return map[string]any{
		"category":   string(ev.Kind),
		"event_id":   ev.FullName(),
		"value":      ev.Value,
		"session_id": session,
		"client_ts":  at.UTC().Unix(),
	}
}

func (g *GameAnalytics) postBatch(batch []map[string]any) {
	body, err := json.Marshal(batch)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal GameAnalytics batch")
		return
	}

	url := g.endpoint + "/v2/" + g.gameKey + "/events"
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		log.Error().Err(err).Msg("Failed to build GameAnalytics request")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", g.authorize(body))

	resp, err := g.client.Do(req)
	if err != nil {
		log.Warn().Err(err).Int("batch", len(batch)).Msg("GameAnalytics post failed")
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		log.Warn().
			Int("status", resp.StatusCode).
			Int("batch", len(batch)).
			Msg("GameAnalytics rejected batch")
		return
	}

	log.Debug().Int("batch", len(batch)).Msg("GameAnalytics batch delivered")
}

// authorize computes the HMAC-SHA256 body signature the collector expects.
func (g *GameAnalytics) authorize(body []byte) string {
	mac := hmac.New(sha256.New, g.secret)
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
