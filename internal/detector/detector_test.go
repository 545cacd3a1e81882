package detector

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"waiver-trend-alerts/internal/fetcher"
	"waiver-trend-alerts/internal/state"
)

var t0 = time.Date(2025, 9, 3, 12, 0, 0, 0, time.UTC)

func defaultThresholds() Thresholds {
	return ThresholdsFromFloats(4.0, 4.0, 15, 15, 3)
}

func row(name string, adds, drops int) fetcher.PlayerRow {
	return fetcher.PlayerRow{Name: name, TeamPos: "KC - WR", Adds: adds, Drops: drops}
}

func TestBaselineCycleNeverAlerts(t *testing.T) {
	st := state.New(3)
	rows := []fetcher.PlayerRow{row("A", 999999, 888888)}

	alerts := Evaluate(st, rows, t0, defaultThresholds())
	if len(alerts) != 0 {
		t.Fatalf("first observation must be a baseline, got %d alerts", len(alerts))
	}
	if st.HistoryFor("A").Len() != 1 {
		t.Fatal("baseline cycle must still append a snapshot")
	}
}

func TestRateMathAddAlert(t *testing.T) {
	st := state.New(3)
	Evaluate(st, []fetcher.PlayerRow{row("A", 100, 0)}, t0, defaultThresholds())

	alerts := Evaluate(st, []fetcher.PlayerRow{row("A", 160, 0)}, t0.Add(6*time.Minute), defaultThresholds())
	if len(alerts) != 1 {
		t.Fatalf("expected exactly one alert, got %d", len(alerts))
	}

	a := alerts[0]
	if a.Kind != KindAdd {
		t.Fatalf("expected add alert, got %s", a.Kind)
	}
	if a.AddDelta != 60 {
		t.Fatalf("expected add delta 60, got %d", a.AddDelta)
	}
	if !a.AddRate.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected add rate 10/min, got %s", a.AddRate)
	}
	if a.PlayerName != "A" || a.TeamPos != "KC - WR" {
		t.Fatalf("alert identity wrong: %+v", a)
	}
}

func TestDualConditionGate(t *testing.T) {
	// rate 100/min but absolute floor 60 not met: no alert.
	th := ThresholdsFromFloats(4.0, 4.0, 60, 60, 3)
	st := state.New(3)
	Evaluate(st, []fetcher.PlayerRow{row("A", 0, 0)}, t0, th)

	alerts := Evaluate(st, []fetcher.PlayerRow{row("A", 50, 0)}, t0.Add(30*time.Second), th)
	if len(alerts) != 0 {
		t.Fatalf("absolute floor must gate high rates, got %d alerts", len(alerts))
	}
}

func TestSlowAccumulationGate(t *testing.T) {
	// large delta but rate below threshold: no alert.
	st := state.New(3)
	Evaluate(st, []fetcher.PlayerRow{row("A", 0, 0)}, t0, defaultThresholds())

	alerts := Evaluate(st, []fetcher.PlayerRow{row("A", 100, 0)}, t0.Add(10*time.Hour), defaultThresholds())
	if len(alerts) != 0 {
		t.Fatalf("slow accumulation must not alert, got %d alerts", len(alerts))
	}
}

func TestBelowThresholdNoop(t *testing.T) {
	st := state.New(3)
	th := defaultThresholds()
	Evaluate(st, []fetcher.PlayerRow{row("A", 100, 100), row("B", 50, 50)}, t0, th)

	alerts := Evaluate(st, []fetcher.PlayerRow{row("A", 105, 101), row("B", 52, 50)}, t0.Add(5*time.Minute), th)
	if len(alerts) != 0 {
		t.Fatalf("sub-threshold deltas must not alert, got %d", len(alerts))
	}
}

func TestNegativeDeltasNeverAlert(t *testing.T) {
	st := state.New(3)
	Evaluate(st, []fetcher.PlayerRow{row("A", 500, 500)}, t0, defaultThresholds())

	// Counter reset: entity removed then reappearing from zero.
	alerts := Evaluate(st, []fetcher.PlayerRow{row("A", 0, 0)}, t0.Add(5*time.Minute), defaultThresholds())
	if len(alerts) != 0 {
		t.Fatalf("negative deltas are legal but must not alert, got %d", len(alerts))
	}
	if st.HistoryFor("A").MostRecent().Adds != 0 {
		t.Fatal("reset counters must still be snapshotted")
	}
}

func TestQuotaEnforcement(t *testing.T) {
	st := state.New(3)
	th := defaultThresholds() // max 3 alerts per player per day

	now := t0
	adds := 0
	total := 0
	for i := 0; i < 5; i++ {
		alerts := Evaluate(st, []fetcher.PlayerRow{row("A", adds, 0)}, now, th)
		total += len(alerts)
		if i >= 4 && len(alerts) != 0 {
			t.Fatalf("cycle %d should be quota-suppressed", i)
		}
		adds += 100 // 100 adds per 5 minutes = 20/min, well above both floors
		now = now.Add(5 * time.Minute)
	}

	if total != 3 {
		t.Fatalf("expected exactly 3 alerts for the day, got %d", total)
	}
}

func TestQuotaSharedAcrossKinds(t *testing.T) {
	th := ThresholdsFromFloats(4.0, 4.0, 15, 15, 1)
	st := state.New(3)
	Evaluate(st, []fetcher.PlayerRow{row("A", 0, 0)}, t0, th)

	// Both conditions qualify; quota of 1 means the add alert wins and the
	// drop alert is suppressed by the shared counter.
	alerts := Evaluate(st, []fetcher.PlayerRow{row("A", 100, 100)}, t0.Add(5*time.Minute), th)
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert under shared quota, got %d", len(alerts))
	}
	if alerts[0].Kind != KindAdd {
		t.Fatalf("add alert must precede drop, got %s", alerts[0].Kind)
	}
}

func TestBothKindsInOneCycle(t *testing.T) {
	st := state.New(3)
	Evaluate(st, []fetcher.PlayerRow{row("A", 0, 0)}, t0, defaultThresholds())

	alerts := Evaluate(st, []fetcher.PlayerRow{row("A", 100, 100)}, t0.Add(5*time.Minute), defaultThresholds())
	if len(alerts) != 2 {
		t.Fatalf("expected add and drop alerts, got %d", len(alerts))
	}
	if alerts[0].Kind != KindAdd || alerts[1].Kind != KindDrop {
		t.Fatalf("kind ordering wrong: %s, %s", alerts[0].Kind, alerts[1].Kind)
	}
	if st.AlertCount("A", state.DayKey(t0)) != 2 {
		t.Fatal("each kind must consume one quota unit")
	}
}

func TestInputOrderPreserved(t *testing.T) {
	st := state.New(3)
	th := defaultThresholds()
	rows := []fetcher.PlayerRow{row("B", 0, 0), row("A", 0, 0)}
	Evaluate(st, rows, t0, th)

	alerts := Evaluate(st, []fetcher.PlayerRow{row("B", 100, 0), row("A", 100, 0)}, t0.Add(5*time.Minute), th)
	if len(alerts) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(alerts))
	}
	if alerts[0].PlayerName != "B" || alerts[1].PlayerName != "A" {
		t.Fatalf("alerts must follow input row order: %s, %s", alerts[0].PlayerName, alerts[1].PlayerName)
	}
}

func TestDuplicateNamesLastOccurrenceWins(t *testing.T) {
	st := state.New(3)
	th := defaultThresholds()
	Evaluate(st, []fetcher.PlayerRow{row("A", 0, 0)}, t0, th)

	// Duplicate rows in one batch: only the last occurrence is evaluated,
	// so one alert and one surviving snapshot.
	dup := []fetcher.PlayerRow{row("A", 50, 0), row("A", 100, 0)}
	alerts := Evaluate(st, dup, t0.Add(5*time.Minute), th)
	if len(alerts) != 1 {
		t.Fatalf("duplicates must be collapsed, got %d alerts", len(alerts))
	}
	if alerts[0].AddDelta != 100 {
		t.Fatalf("last occurrence should win, got delta %d", alerts[0].AddDelta)
	}
	if st.HistoryFor("A").Len() != 2 {
		t.Fatalf("one snapshot per cycle expected, got %d", st.HistoryFor("A").Len())
	}
	if st.HistoryFor("A").MostRecent().Adds != 100 {
		t.Fatal("surviving snapshot should carry the last occurrence's counters")
	}
}

func TestZeroDtFloor(t *testing.T) {
	st := state.New(3)
	Evaluate(st, []fetcher.PlayerRow{row("A", 0, 0)}, t0, defaultThresholds())

	// Same timestamp: dt floored at 1e-6 min, no division by zero, and the
	// huge resulting rate still alerts because the absolute floor is met.
	alerts := Evaluate(st, []fetcher.PlayerRow{row("A", 100, 0)}, t0, defaultThresholds())
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert with floored dt, got %d", len(alerts))
	}
}

func TestAbsentPlayerUntouched(t *testing.T) {
	st := state.New(3)
	th := defaultThresholds()
	Evaluate(st, []fetcher.PlayerRow{row("A", 10, 0), row("B", 10, 0)}, t0, th)

	// B missing this cycle: no evaluation, no decay, history unchanged.
	Evaluate(st, []fetcher.PlayerRow{row("A", 12, 0)}, t0.Add(5*time.Minute), th)
	if st.HistoryFor("B").Len() != 1 {
		t.Fatal("absent player history must not change")
	}
}
