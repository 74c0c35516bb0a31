package session

import "testing"

type fakeNotifier struct {
	joined  []string
	leaving []string
}

func (f *fakeNotifier) PublishSessionJoined(session string, _ map[string]interface{}) {
	f.joined = append(f.joined, session)
}

func (f *fakeNotifier) PublishSessionLeaving(session string) {
	f.leaving = append(f.leaving, session)
}

func TestJoin_MintsKey(t *testing.T) {
	n := &fakeNotifier{}
	tr := NewTracker(n)

	info := tr.Join("", "roblox")
	if info.Key == "" {
		t.Fatal("expected a minted session key")
	}
	if tr.Active() != 1 {
		t.Errorf("Active = %d, want 1", tr.Active())
	}
	if len(n.joined) != 1 || n.joined[0] != info.Key {
		t.Errorf("joined notifications = %v", n.joined)
	}
}

func TestJoin_ExistingKeyNoDuplicate(t *testing.T) {
	n := &fakeNotifier{}
	tr := NewTracker(n)

	tr.Join("p1", "pc")
	tr.Join("p1", "pc")

	if tr.Active() != 1 {
		t.Errorf("Active = %d, want 1", tr.Active())
	}
	if len(n.joined) != 1 {
		t.Errorf("expected a single joined notification, got %d", len(n.joined))
	}
}

func TestLeave_ExactlyOnce(t *testing.T) {
	n := &fakeNotifier{}
	tr := NewTracker(n)

	tr.Join("p1", "pc")
	if !tr.Leave("p1") {
		t.Error("first leave should report removal")
	}
	if tr.Leave("p1") {
		t.Error("second leave must be a no-op")
	}
	if len(n.leaving) != 1 {
		t.Errorf("leaving notifications = %d, want exactly 1", len(n.leaving))
	}
}

func TestLeave_UnknownKey(t *testing.T) {
	n := &fakeNotifier{}
	tr := NewTracker(n)

	if tr.Leave("ghost") {
		t.Error("leave of unknown key should be a no-op")
	}
	if len(n.leaving) != 0 {
		t.Error("no notification expected")
	}
}
