// Package marketplace turns purchase receipts reported by the game into
// business telemetry events. Receipts are validated off the ingest path;
// a malformed receipt is logged and discarded, never bounced to the client.
package marketplace

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/telemetryd/internal/eventbus"
)

// Recorder accepts validated business events. Implemented by the
// telemetry service.
type Recorder interface {
	RecordBusiness(session, name string, value float64, fields ...string) error
}

// Listener validates purchase notifications from the bus.
type Listener struct {
	recorder Recorder
}

// NewListener creates a purchase listener.
func NewListener(recorder Recorder) *Listener {
	return &Listener{recorder: recorder}
}

// RegisterHandlers subscribes the listener to purchase notifications.
func (l *Listener) RegisterHandlers(bus *eventbus.Bus) {
	bus.Subscribe(eventbus.EventTypePurchase, l.Handle)
}

// Handle processes one purchase notification.
func (l *Listener) Handle(e eventbus.Event) {
	product, _ := e.Data["product"].(string)
	currency, _ := e.Data["currency"].(string)
	amount, _ := e.Data["amount"].(float64)

	if err := ValidateReceipt(product, currency, amount); err != nil {
		log.Warn().
			Err(err).
			Str("session", e.Session).
			Str("product", product).
			Msg("Discarding invalid purchase receipt")
		return
	}

	// Business events carry currency and product as hierarchy segments,
	// amount as the value. They are forwarded immediately, not buffered.
	if err := l.recorder.RecordBusiness(e.Session, "purchase", amount, currency, product); err != nil {
		log.Warn().Err(err).Str("session", e.Session).Msg("Purchase event rejected")
	}
}

// ValidateReceipt checks the receipt shape before it becomes an event.
func ValidateReceipt(product, currency string, amount float64) error {
	if product == "" {
		return errors.New("product is required")
	}
	if len(currency) != 3 {
		return fmt.Errorf("currency must be a 3-letter code, got %q", currency)
	}
	for _, r := range currency {
		if r < 'A' || r > 'Z' {
			return fmt.Errorf("currency must be uppercase letters, got %q", currency)
		}
	}
	if amount <= 0 {
		return fmt.Errorf("amount must be positive, got %v", amount)
	}
	return nil
}
