package marketplace

import (
	"testing"

	"github.com/dokzlo13/telemetryd/internal/eventbus"
)

type fakeRecorder struct {
	sessions []string
	names    []string
	values   []float64
	fields   [][]string
}

func (f *fakeRecorder) RecordBusiness(session, name string, value float64, fields ...string) error {
	f.sessions = append(f.sessions, session)
	f.names = append(f.names, name)
	f.values = append(f.values, value)
	f.fields = append(f.fields, fields)
	return nil
}

func TestValidateReceipt(t *testing.T) {
	cases := []struct {
		name     string
		product  string
		currency string
		amount   float64
		ok       bool
	}{
		{"valid", "sword", "USD", 4.99, true},
		{"missing product", "", "USD", 4.99, false},
		{"bad currency length", "sword", "DOLLARS", 4.99, false},
		{"lowercase currency", "sword", "usd", 4.99, false},
		{"zero amount", "sword", "USD", 0, false},
		{"negative amount", "sword", "USD", -1, false},
	}

	for _, tc := range cases {
		err := ValidateReceipt(tc.product, tc.currency, tc.amount)
		if tc.ok && err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("%s: expected rejection", tc.name)
		}
	}
}

func TestHandle_RecordsBusinessEvent(t *testing.T) {
	rec := &fakeRecorder{}
	l := NewListener(rec)

	l.Handle(eventbus.Event{
		Type:    eventbus.EventTypePurchase,
		Session: "p1",
		Data: map[string]interface{}{
			"product":  "sword",
			"currency": "USD",
			"amount":   4.99,
		},
	})

	if len(rec.names) != 1 {
		t.Fatalf("expected 1 recorded event, got %d", len(rec.names))
	}
	if rec.sessions[0] != "p1" || rec.names[0] != "purchase" || rec.values[0] != 4.99 {
		t.Errorf("unexpected record: %v %v %v", rec.sessions[0], rec.names[0], rec.values[0])
	}
	if len(rec.fields[0]) != 2 || rec.fields[0][0] != "USD" || rec.fields[0][1] != "sword" {
		t.Errorf("fields = %v, want [USD sword]", rec.fields[0])
	}
}

func TestHandle_DiscardsInvalidReceipt(t *testing.T) {
	rec := &fakeRecorder{}
	l := NewListener(rec)

	l.Handle(eventbus.Event{
		Type:    eventbus.EventTypePurchase,
		Session: "p1",
		Data: map[string]interface{}{
			"product":  "sword",
			"currency": "USD",
			"amount":   -5.0,
		},
	})

	if len(rec.names) != 0 {
		t.Error("invalid receipt must not be recorded")
	}
}
