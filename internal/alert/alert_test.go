package alert

import (
	"testing"
	"time"
)

func TestManagerFansOutToAllSinks(t *testing.T) {
	a := NewCaptureSink()
	b := NewCaptureSink()
	m := NewManager(a, b)

	m.Emit(Event{Type: TypeNoTrade, Severity: SeverityInfo, Message: "no trades for 100 bars"})

	if len(a.Events()) != 1 || len(b.Events()) != 1 {
		t.Fatalf("fanout delivered %d/%d events, want 1/1", len(a.Events()), len(b.Events()))
	}
}

func TestManagerStampsTimestamp(t *testing.T) {
	sink := NewCaptureSink()
	m := NewManager(sink)

	m.Emit(Event{Type: TypeDrawdownWarning, Severity: SeverityWarning, Message: "approaching limit"})

	got := sink.Events()[0]
	if got.Timestamp.IsZero() {
		t.Fatal("emit should stamp a zero timestamp")
	}

	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	m.Emit(Event{Type: TypeDrawdownBreach, Severity: SeverityCritical, Message: "breach", Timestamp: fixed})
	if sink.Events()[1].Timestamp != fixed {
		t.Fatal("emit must not overwrite an explicit timestamp")
	}
}

func TestManagerAddSink(t *testing.T) {
	m := NewManager()
	sink := NewCaptureSink()

	m.Emit(Event{Type: TypeAPIFailure, Severity: SeverityWarning, Message: "before registration"})
	m.AddSink(sink)
	m.Emit(Event{Type: TypeAPIFailure, Severity: SeverityWarning, Message: "after registration"})

	events := sink.Events()
	if len(events) != 1 {
		t.Fatalf("late sink captured %d events, want 1", len(events))
	}
	if events[0].Message != "after registration" {
		t.Fatalf("late sink saw %q", events[0].Message)
	}
}

func TestCaptureSinkByType(t *testing.T) {
	sink := NewCaptureSink()
	m := NewManager(sink)

	m.Emit(Event{Type: TypeWinRateBlock, Severity: SeverityWarning, Message: "blocked"})
	m.Emit(Event{Type: TypeTradeClosed, Severity: SeverityInfo, Message: "closed"})
	m.Emit(Event{Type: TypeWinRateBlock, Severity: SeverityWarning, Message: "blocked again"})

	if got := len(sink.ByType(TypeWinRateBlock)); got != 2 {
		t.Fatalf("ByType returned %d events, want 2", got)
	}
	if got := len(sink.ByType(TypeDrawdownBreach)); got != 0 {
		t.Fatalf("ByType returned %d events for an unseen type, want 0", got)
	}
}
