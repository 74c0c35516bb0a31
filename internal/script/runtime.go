// Package script runs an optional operator-supplied Lua hook over
// outgoing events. The script defines on_event(e); it can return a table
// to rewrite the event, nil or false to drop it, or anything else to keep
// it unchanged. Hook errors pass the event through untouched.
package script

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	glua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/telemetryd/internal/event"
)

// Runtime owns a single Lua state guarded by a mutex: events may arrive
// from several forwarding goroutines.
type Runtime struct {
	mu sync.Mutex
	ls *glua.LState
}

// Load compiles the script and verifies it defines on_event.
func Load(path string) (*Runtime, error) {
	ls := glua.NewState()
	if err := ls.DoFile(path); err != nil {
		ls.Close()
		return nil, fmt.Errorf("failed to load script: %w", err)
	}

	if _, ok := ls.GetGlobal("on_event").(*glua.LFunction); !ok {
		ls.Close()
		return nil, errors.New("script must define an on_event function")
	}

	log.Info().Str("script", path).Msg("Event hook loaded")
	return &Runtime{ls: ls}, nil
}

// Close releases the Lua state.
func (r *Runtime) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ls.Close()
}

// OnEvent implements the telemetry hook.
func (r *Runtime) OnEvent(session string, ev event.Event) (event.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ls := r.ls
	tbl := ls.NewTable()
	ls.SetField(tbl, "player", glua.LString(session))
	ls.SetField(tbl, "event", glua.LString(ev.Name))
	ls.SetField(tbl, "value", glua.LNumber(ev.Value))
	ls.SetField(tbl, "category", glua.LString(string(ev.Kind)))

	fields := ls.NewTable()
	for i, f := range ev.Fields {
		fields.RawSetInt(i+1, glua.LString(f))
	}
	ls.SetField(tbl, "fields", fields)

	ls.Push(ls.GetGlobal("on_event"))
	ls.Push(tbl)
	if err := ls.PCall(1, 1, nil); err != nil {
		log.Error().Err(err).Str("event", ev.Name).Msg("Event hook failed, passing event through")
		return ev, true
	}

	ret := ls.Get(-1)
	ls.Pop(1)

	switch v := ret.(type) {
	case *glua.LNilType:
		return ev, false
	case glua.LBool:
		return ev, bool(v)
	case *glua.LTable:
		return applyTable(ev, v), true
	default:
		return ev, true
	}
}

// applyTable copies recognized fields from the returned table onto the event.
func applyTable(ev event.Event, tbl *glua.LTable) event.Event {
	if name, ok := tbl.RawGetString("event").(glua.LString); ok && name != "" {
		ev.Name = string(name)
	}
	if value, ok := tbl.RawGetString("value").(glua.LNumber); ok {
		ev.Value = float64(value)
	}
	if fields, ok := tbl.RawGetString("fields").(*glua.LTable); ok {
		var out []string
		fields.ForEach(func(_, v glua.LValue) {
			if s, ok := v.(glua.LString); ok {
				out = append(out, string(s))
			}
		})
		ev.Fields = out
	}
	return ev
}
