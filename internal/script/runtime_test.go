package script

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dokzlo13/telemetryd/internal/event"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hook.lua")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestLoad_RequiresOnEvent(t *testing.T) {
	path := writeScript(t, `x = 1`)
	if _, err := Load(path); err == nil {
		t.Error("script without on_event must be rejected")
	}
}

func TestOnEvent_Rewrite(t *testing.T) {
	path := writeScript(t, `
function on_event(e)
	e.event = "renamed"
	e.value = e.value * 2
	e.fields = {"extra"}
	return e
end`)
	rt, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer rt.Close()

	out, keep := rt.OnEvent("p1", event.Event{Name: "Kills", Value: 3})
	if !keep {
		t.Fatal("event should be kept")
	}
	if out.Name != "renamed" || out.Value != 6 {
		t.Errorf("got %s=%v, want renamed=6", out.Name, out.Value)
	}
	if len(out.Fields) != 1 || out.Fields[0] != "extra" {
		t.Errorf("fields = %v", out.Fields)
	}
}

func TestOnEvent_Drop(t *testing.T) {
	path := writeScript(t, `
function on_event(e)
	if e.event == "secret" then
		return nil
	end
	return true
end`)
	rt, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer rt.Close()

	if _, keep := rt.OnEvent("p1", event.Event{Name: "secret"}); keep {
		t.Error("secret events must be dropped")
	}
	if _, keep := rt.OnEvent("p1", event.Event{Name: "Jump"}); !keep {
		t.Error("other events must pass")
	}
}

func TestOnEvent_ErrorPassesThrough(t *testing.T) {
	path := writeScript(t, `
function on_event(e)
	error("boom")
end`)
	rt, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer rt.Close()

	out, keep := rt.OnEvent("p1", event.Event{Name: "Kills", Value: 1})
	if !keep || out.Name != "Kills" {
		t.Error("hook failure must pass the event through unchanged")
	}
}
