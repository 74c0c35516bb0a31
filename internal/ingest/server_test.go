package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dokzlo13/telemetryd/internal/buffer"
	"github.com/dokzlo13/telemetryd/internal/event"
	"github.com/dokzlo13/telemetryd/internal/eventbus"
	"github.com/dokzlo13/telemetryd/internal/protocol"
	"github.com/dokzlo13/telemetryd/internal/session"
	"github.com/dokzlo13/telemetryd/internal/telemetry"
)

type captureSink struct {
	mu    sync.Mutex
	names []string
}

func (c *captureSink) Name() string { return "capture" }

func (c *captureSink) Send(_ context.Context, _ string, ev event.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names = append(c.names, ev.Name)
	return nil
}

func (c *captureSink) Close() error { return nil }

func (c *captureSink) seen() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// newTestStack wires the full ingest pipeline the way the app does:
// bus session-leaving notifications drive the session flush.
func newTestStack(t *testing.T) (*httptest.Server, *buffer.Buffer, *captureSink, *telemetry.Service) {
	t.Helper()

	buf := buffer.New()
	cs := &captureSink{}
	svc := telemetry.NewService(buf, cs)
	svc.Start()

	bus := eventbus.NewWithConfig(1, 16)
	bus.Subscribe(eventbus.EventTypeSessionLeaving, func(e eventbus.Event) {
		svc.EndSession(e.Session)
	})

	tracker := session.NewTracker(bus)
	dispatcher := protocol.NewDispatcher(svc, bus)
	srv := NewServer("127.0.0.1", 0, dispatcher, tracker, svc, nil, nil)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		bus.Close(ctx)
	})
	return ts, buf, cs, svc
}

func postCommands(t *testing.T, ts *httptest.Server, key, body string) map[string]any {
	t.Helper()

	resp, err := http.Post(ts.URL+"/v1/sessions/"+key+"/commands", "application/json", bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	return out
}

func TestCommands_BatchAcceptAndReject(t *testing.T) {
	ts, buf, _, _ := newTestStack(t)

	out := postCommands(t, ts, "p1", `[
		{"op":"record_delayed","event":"Kills","value":2},
		{"op":"add_tracked","event":"Deaths"},
		{"op":"record_delayed"}
	]`)

	if out["accepted"].(float64) != 2 {
		t.Errorf("accepted = %v, want 2", out["accepted"])
	}
	rejected := out["rejected"].([]any)
	if len(rejected) != 1 {
		t.Fatalf("rejected = %v, want 1 entry", rejected)
	}
	reason := rejected[0].(map[string]any)["reason"].(string)
	if reason != "event is required" {
		t.Errorf("reason = %q", reason)
	}

	if buf.PendingDelayed("p1") != 1 || buf.PendingTracked("p1") != 1 {
		t.Error("accepted commands must reach the buffer")
	}
}

func TestEnd_FlushesAndIsExactlyOnce(t *testing.T) {
	ts, buf, cs, svc := newTestStack(t)

	postCommands(t, ts, "p1", `[{"op":"record_delayed","event":"Kills","value":2}]`)

	resp, err := http.Post(ts.URL+"/v1/sessions/p1/end", "application/json", nil)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}

	// Second end: session key is no longer valid.
	resp, err = http.Post(ts.URL+"/v1/sessions/p1/end", "application/json", nil)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second end status = %d, want 404", resp.StatusCode)
	}

	waitFor(t, func() bool { return len(cs.seen()) == 1 })
	svc.Stop()
	if buf.Sessions() != 0 {
		t.Error("buffer must be empty after session end")
	}
}

func TestCommands_PlayerOverrideSessionCanEnd(t *testing.T) {
	ts, buf, cs, svc := newTestStack(t)

	out := postCommands(t, ts, "conn1", `[{"op":"record_delayed","event":"Kills","player":"p9"}]`)
	if out["accepted"].(float64) != 1 {
		t.Fatalf("accepted = %v, want 1", out["accepted"])
	}
	if buf.PendingDelayed("p9") != 1 {
		t.Fatal("override must buffer under the player key")
	}

	// The overridden key is a full session: ending it flushes its state.
	resp, err := http.Post(ts.URL+"/v1/sessions/p9/end", "application/json", nil)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("end status = %d, want 204", resp.StatusCode)
	}

	waitFor(t, func() bool { return len(cs.seen()) == 1 })
	svc.Stop()
	if cs.seen()[0] != "Kills" {
		t.Errorf("forwarded %v, want [Kills]", cs.seen())
	}
	if buf.PendingDelayed("p9") != 0 {
		t.Error("p9 state must be gone after end")
	}
}

func TestStream_DisconnectFlushes(t *testing.T) {
	ts, _, cs, svc := newTestStack(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/stream?platform=pc"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	var hello map[string]string
	if err := conn.ReadJSON(&hello); err != nil {
		t.Fatalf("hello: %v", err)
	}
	if hello["session"] == "" {
		t.Fatal("expected a minted session key in the hello frame")
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"op":"record_delayed","event":"Kills","value":3}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	// A malformed command gets an error frame back.
	conn.WriteMessage(websocket.TextMessage, []byte(`{"op":"record_delayed","event":7}`))
	var errFrame map[string]string
	if err := conn.ReadJSON(&errFrame); err != nil {
		t.Fatalf("error frame: %v", err)
	}
	if errFrame["error"] != "event must be a string" {
		t.Errorf("error = %q", errFrame["error"])
	}

	conn.Close()

	waitFor(t, func() bool { return len(cs.seen()) == 1 })
	svc.Stop()
	if cs.seen()[0] != "Kills" {
		t.Errorf("forwarded %v, want [Kills]", cs.seen())
	}
}

func TestReady_FollowsTelemetry(t *testing.T) {
	ts, _, _, svc := newTestStack(t)

	resp, _ := http.Get(ts.URL + "/ready")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("ready status = %d, want 200", resp.StatusCode)
	}

	svc.Stop()
	resp, _ = http.Get(ts.URL + "/ready")
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("ready status after stop = %d, want 503", resp.StatusCode)
	}
}

type staticConfig map[string]string

func (c staticConfig) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := c[key]
	return v, ok, nil
}

func TestRemoteConfig_Lookup(t *testing.T) {
	buf := buffer.New()
	svc := telemetry.NewService(buf, &captureSink{})
	svc.Start()
	bus := eventbus.NewWithConfig(1, 4)
	tracker := session.NewTracker(bus)
	dispatcher := protocol.NewDispatcher(svc, bus)

	srv := NewServer("127.0.0.1", 0, dispatcher, tracker, svc, staticConfig{"drop_rate": "0.25"}, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		bus.Close(ctx)
	})

	resp, err := http.Get(ts.URL + "/v1/remoteconfig/drop_rate")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var out map[string]string
	json.NewDecoder(resp.Body).Decode(&out)
	if out["value"] != "0.25" {
		t.Errorf("value = %q, want 0.25", out["value"])
	}

	resp, err = http.Get(ts.URL + "/v1/remoteconfig/missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown key status = %d, want 404", resp.StatusCode)
	}
}

func TestRemoteConfig_Disabled(t *testing.T) {
	ts, _, _, _ := newTestStack(t)

	resp, err := http.Get(ts.URL + "/v1/remoteconfig/drop_rate")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("disabled route status = %d, want 404", resp.StatusCode)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition never met")
}
