package events

import (
	"testing"

	"go.uber.org/zap"
)

func TestDeliverRecoversHandlerPanic(t *testing.T) {
	var seen []string
	handler := func(e Event) {
		seen = append(seen, e.Type)
		if e.Type == "boom" {
			panic("handler failure")
		}
	}

	for _, typ := range []string{EventRunCompleted, "boom", EventLeadCreated} {
		deliver(zap.NewNop(), handler, Event{Type: typ})
	}
	if len(seen) != 3 {
		t.Fatalf("handled %v, want all three events", seen)
	}
}
