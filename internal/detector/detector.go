package detector

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"waiver-trend-alerts/internal/fetcher"
	"waiver-trend-alerts/internal/state"
)

// Alert kinds.
const (
	KindAdd  = "add"
	KindDrop = "drop"
)

// Alert 描述一次超阈值的 add/drop 速率异常。
type Alert struct {
	ID         uuid.UUID
	PlayerName string
	TeamPos    string
	AddDelta   int
	DropDelta  int
	AddRate    decimal.Decimal
	DropRate   decimal.Decimal
	Kind       string
	Observed   time.Time
}

// Thresholds gate alert emission. Rates are per minute.
type Thresholds struct {
	AddRate            decimal.Decimal
	DropRate           decimal.Decimal
	MinAbsAddDelta     int
	MinAbsDropDelta    int
	MaxAlertsPerPlayer int
}

// ThresholdsFromFloats converts configured float thresholds.
func ThresholdsFromFloats(addRate, dropRate float64, minAdd, minDrop, maxAlerts int) Thresholds {
	return Thresholds{
		AddRate:            decimal.NewFromFloat(addRate),
		DropRate:           decimal.NewFromFloat(dropRate),
		MinAbsAddDelta:     minAdd,
		MinAbsDropDelta:    minDrop,
		MaxAlertsPerPlayer: maxAlerts,
	}
}

// minutesBetween floors at 1e-6 so back-to-back cycles never divide by zero.
func minutesBetween(now, then time.Time) float64 {
	return math.Max(now.Sub(then).Minutes(), 1e-6)
}

// dedupeRows keeps the last occurrence per player name, preserving the
// position of each name's first appearance. Evaluating repeats against the
// same stale snapshot would double-count alerts and quota.
func dedupeRows(rows []fetcher.PlayerRow) []fetcher.PlayerRow {
	idx := make(map[string]int, len(rows))
	out := make([]fetcher.PlayerRow, 0, len(rows))
	for _, r := range rows {
		if i, ok := idx[r.Name]; ok {
			out[i] = r
			continue
		}
		idx[r.Name] = len(out)
		out = append(out, r)
	}
	return out
}

// Evaluate compares each row against the player's most recent snapshot,
// emits alerts for rows that clear both the absolute-delta floor and the
// per-minute rate floor (subject to the shared daily quota), and appends
// a fresh snapshot unconditionally. The first observation of a player is
// a baseline: no previous snapshot, no deltas, no alert.
//
// `now` is sampled once per cycle by the caller; the same instant keys the
// quota day for every row in the batch.
func Evaluate(st *state.State, rows []fetcher.PlayerRow, now time.Time, th Thresholds) []Alert {
	day := state.DayKey(now)
	alerts := make([]Alert, 0)

	for _, r := range dedupeRows(rows) {
		if r.Name == "" {
			continue
		}

		history := st.HistoryFor(r.Name)
		prev := history.MostRecent()

		if prev != nil {
			dtMin := minutesBetween(now, prev.TS)
			addDelta := r.Adds - prev.Adds
			dropDelta := r.Drops - prev.Drops
			dt := decimal.NewFromFloat(dtMin)
			addRate := decimal.NewFromInt(int64(addDelta)).Div(dt)
			dropRate := decimal.NewFromInt(int64(dropDelta)).Div(dt)

			if addDelta >= th.MinAbsAddDelta && addRate.GreaterThanOrEqual(th.AddRate) {
				if st.AlertCount(r.Name, day) < th.MaxAlertsPerPlayer {
					alerts = append(alerts, newAlert(r, addDelta, dropDelta, addRate, dropRate, KindAdd, now))
					st.RecordAlert(r.Name, day)
				}
			}

			if dropDelta >= th.MinAbsDropDelta && dropRate.GreaterThanOrEqual(th.DropRate) {
				if st.AlertCount(r.Name, day) < th.MaxAlertsPerPlayer {
					alerts = append(alerts, newAlert(r, addDelta, dropDelta, addRate, dropRate, KindDrop, now))
					st.RecordAlert(r.Name, day)
				}
			}
		}

		history.Append(r.Adds, r.Drops, now)
	}

	return alerts
}

func newAlert(r fetcher.PlayerRow, addDelta, dropDelta int, addRate, dropRate decimal.Decimal, kind string, now time.Time) Alert {
	return Alert{
		ID:         uuid.New(),
		PlayerName: r.Name,
		TeamPos:    r.TeamPos,
		AddDelta:   addDelta,
		DropDelta:  dropDelta,
		AddRate:    addRate,
		DropRate:   dropRate,
		Kind:       kind,
		Observed:   now,
	}
}
