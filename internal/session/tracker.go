// Package session tracks connected player sessions. The tracker is the
// session source for the flush protocol: Leave fires the single
// session-leaving notification that drives the forced full flush.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Info describes an active session.
type Info struct {
	Key      string
	Platform string
	JoinedAt time.Time
}

// Notifier receives lifecycle notifications. Implemented by eventbus.Bus.
type Notifier interface {
	PublishSessionJoined(session string, data map[string]interface{})
	PublishSessionLeaving(session string)
}

// Tracker is the registry of active sessions.
type Tracker struct {
	mu       sync.Mutex
	active   map[string]Info
	notifier Notifier
}

// NewTracker creates an empty tracker.
func NewTracker(notifier Notifier) *Tracker {
	return &Tracker{
		active:   make(map[string]Info),
		notifier: notifier,
	}
}

// Join registers a session and announces it. A key is minted when the
// client does not supply one (anonymous stream connections). Joining an
// already-known key returns the existing session unchanged.
func (t *Tracker) Join(key, platform string) Info {
	if key == "" {
		key = uuid.NewString()
	}

	t.mu.Lock()
	if existing, ok := t.active[key]; ok {
		t.mu.Unlock()
		return existing
	}
	info := Info{Key: key, Platform: platform, JoinedAt: time.Now()}
	t.active[key] = info
	t.mu.Unlock()

	log.Info().Str("session", key).Str("platform", platform).Msg("Session joined")
	t.notifier.PublishSessionJoined(key, map[string]interface{}{"platform": platform})
	return info
}

// Leave removes the session and publishes the session-leaving
// notification exactly once. A second Leave for the same key is a no-op.
func (t *Tracker) Leave(key string) bool {
	t.mu.Lock()
	_, ok := t.active[key]
	if ok {
		delete(t.active, key)
	}
	t.mu.Unlock()

	if !ok {
		return false
	}

	log.Info().Str("session", key).Msg("Session leaving")
	t.notifier.PublishSessionLeaving(key)
	return true
}

// Get returns the session info for a key.
func (t *Tracker) Get(key string) (Info, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	info, ok := t.active[key]
	return info, ok
}

// Active returns the number of connected sessions.
func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}
