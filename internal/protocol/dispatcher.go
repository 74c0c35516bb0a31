package protocol

import (
	"fmt"

	"github.com/dokzlo13/telemetryd/internal/eventbus"
	"github.com/dokzlo13/telemetryd/internal/telemetry"
)

// Dispatcher routes decoded commands onto the telemetry service. Purchases
// go over the bus so the marketplace listener validates them off the
// ingest path.
type Dispatcher struct {
	svc *telemetry.Service
	bus *eventbus.Bus
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(svc *telemetry.Service, bus *eventbus.Bus) *Dispatcher {
	return &Dispatcher{svc: svc, bus: bus}
}

// Dispatch executes one command. The switch is exhaustive over the command
// set; a rejection from the gate comes back as the error.
func (d *Dispatcher) Dispatch(cmd Command) error {
	switch c := cmd.(type) {
	case RecordCommand:
		return d.svc.Record(c.Session, c.Name, c.Value, c.Fields...)
	case RecordDelayedCommand:
		return d.svc.RecordDelayed(c.Session, c.Name, c.Value, c.Fields...)
	case AddTrackedCommand:
		return d.svc.AddTracked(c.Session, c.Name, c.Value)
	case FlushNamedCommand:
		return d.svc.FlushNamed(c.Session, c.Name)
	case PurchaseCommand:
		d.bus.Publish(eventbus.Event{
			Type:    eventbus.EventTypePurchase,
			Session: c.Session,
			Data: map[string]interface{}{
				"product":  c.Product,
				"currency": c.Currency,
				"amount":   c.Amount,
			},
		})
		return nil
	default:
		return fmt.Errorf("unhandled command type %T", cmd)
	}
}
