// Package protocol defines the closed set of commands game clients send
// to the daemon. Each caller-facing operation is one variant; dispatch is
// an exhaustive type switch, so an unhandled command is a compile-time
// problem rather than a missing entry in a string-keyed table.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/dokzlo13/telemetryd/internal/telemetry"
)

// Command is a decoded client operation.
type Command interface {
	isCommand()

	// SessionKey returns the session the command operates on. It differs
	// from the transport session when the envelope carries a player
	// override.
	SessionKey() string
}

// RecordCommand forwards a design event immediately.
type RecordCommand struct {
	Session string
	Name    string
	Value   float64
	Fields  []string
}

// RecordDelayedCommand queues a design event until flush.
type RecordDelayedCommand struct {
	Session string
	Name    string
	Value   float64
	Fields  []string
}

// AddTrackedCommand increments a named running counter.
type AddTrackedCommand struct {
	Session string
	Name    string
	Value   float64
}

// FlushNamedCommand flushes the queued entry and counter for one name.
type FlushNamedCommand struct {
	Session string
	Name    string
}

// PurchaseCommand reports a marketplace receipt.
type PurchaseCommand struct {
	Session  string
	Product  string
	Currency string
	Amount   float64
}

func (RecordCommand) isCommand()        {}
func (RecordDelayedCommand) isCommand() {}
func (AddTrackedCommand) isCommand()    {}
func (FlushNamedCommand) isCommand()    {}
func (PurchaseCommand) isCommand()      {}

func (c RecordCommand) SessionKey() string        { return c.Session }
func (c RecordDelayedCommand) SessionKey() string { return c.Session }
func (c AddTrackedCommand) SessionKey() string    { return c.Session }
func (c FlushNamedCommand) SessionKey() string    { return c.Session }
func (c PurchaseCommand) SessionKey() string      { return c.Session }

// envelope is the wire shape. Raw fields keep "absent" distinguishable
// from "present with the wrong type".
type envelope struct {
	Op       string          `json:"op"`
	Player   string          `json:"player,omitempty"`
	Event    json.RawMessage `json:"event,omitempty"`
	Value    json.RawMessage `json:"value,omitempty"`
	Fields   []string        `json:"fields,omitempty"`
	Product  string          `json:"product,omitempty"`
	Currency string          `json:"currency,omitempty"`
	Amount   json.RawMessage `json:"amount,omitempty"`
}

// Decode parses one command envelope. session is the transport-level
// session key; an explicit "player" field in the envelope overrides it.
// Decode errors reuse the gate's rejection reasons, so malformed client
// input is rejected before any state is touched.
func Decode(session string, raw []byte) (Command, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, telemetry.ErrInvalidData
	}

	if env.Player != "" {
		session = env.Player
	}

	switch env.Op {
	case "record":
		name, err := env.eventName()
		if err != nil {
			return nil, err
		}
		value, err := env.value()
		if err != nil {
			return nil, err
		}
		return RecordCommand{Session: session, Name: name, Value: value, Fields: env.Fields}, nil

	case "record_delayed":
		name, err := env.eventName()
		if err != nil {
			return nil, err
		}
		value, err := env.value()
		if err != nil {
			return nil, err
		}
		return RecordDelayedCommand{Session: session, Name: name, Value: value, Fields: env.Fields}, nil

	case "add_tracked":
		name, err := env.eventName()
		if err != nil {
			return nil, err
		}
		value, err := env.value()
		if err != nil {
			return nil, err
		}
		return AddTrackedCommand{Session: session, Name: name, Value: value}, nil

	case "flush":
		name, err := env.eventName()
		if err != nil {
			return nil, err
		}
		return FlushNamedCommand{Session: session, Name: name}, nil

	case "purchase":
		amount, err := env.amount()
		if err != nil {
			return nil, err
		}
		return PurchaseCommand{
			Session:  session,
			Product:  env.Product,
			Currency: env.Currency,
			Amount:   amount,
		}, nil

	default:
		return nil, fmt.Errorf("%w: unknown op %q", telemetry.ErrInvalidData, env.Op)
	}
}

func (e *envelope) eventName() (string, error) {
	if len(e.Event) == 0 {
		return "", telemetry.ErrEventRequired
	}
	var name string
	if err := json.Unmarshal(e.Event, &name); err != nil {
		return "", telemetry.ErrEventType
	}
	if name == "" {
		return "", telemetry.ErrEventRequired
	}
	return name, nil
}

// value returns the envelope value, defaulting to 1 when omitted.
// A present but non-numeric value is rejected.
func (e *envelope) value() (float64, error) {
	if len(e.Value) == 0 {
		return telemetry.DefaultValue, nil
	}
	var v float64
	if err := json.Unmarshal(e.Value, &v); err != nil {
		return 0, telemetry.ErrValueRequired
	}
	return v, nil
}

func (e *envelope) amount() (float64, error) {
	if len(e.Amount) == 0 {
		return 0, telemetry.ErrValueRequired
	}
	var v float64
	if err := json.Unmarshal(e.Amount, &v); err != nil {
		return 0, telemetry.ErrValueRequired
	}
	return v, nil
}
