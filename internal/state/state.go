package state

import (
	"time"
)

// Snapshot 记录某名球员在单次采样时刻的累计 add/drop 计数。
type Snapshot struct {
	Adds  int
	Drops int
	TS    time.Time
}

// History keeps the most recent snapshots for one player inside a fixed
// smoothing window. Eviction is oldest-first.
type History struct {
	buf  []Snapshot
	head int
	size int
}

// NewHistory constructs a history with capacity max(1, window).
func NewHistory(window int) *History {
	if window < 1 {
		window = 1
	}
	return &History{buf: make([]Snapshot, window)}
}

// Append records a snapshot, evicting the oldest when the window is full.
func (h *History) Append(adds, drops int, ts time.Time) {
	idx := (h.head + h.size) % len(h.buf)
	h.buf[idx] = Snapshot{Adds: adds, Drops: drops, TS: ts}
	if h.size < len(h.buf) {
		h.size++
		return
	}
	h.head = (h.head + 1) % len(h.buf)
}

// MostRecent returns the last appended snapshot, or nil when empty.
func (h *History) MostRecent() *Snapshot {
	if h.size == 0 {
		return nil
	}
	s := h.buf[(h.head+h.size-1)%len(h.buf)]
	return &s
}

// Earliest returns the oldest retained snapshot, or nil when empty.
func (h *History) Earliest() *Snapshot {
	if h.size == 0 {
		return nil
	}
	s := h.buf[h.head]
	return &s
}

// Len reports how many snapshots are currently retained.
func (h *History) Len() int {
	return h.size
}

// DayKey derives the UTC calendar-day bucket used for alert quotas.
func DayKey(ts time.Time) string {
	return ts.UTC().Format("2006-01-02")
}

type quotaEntry struct {
	day   string
	count int
}

// State 聚合整个运行期的可变状态：每名球员的滑动窗口与当日告警配额。
// 仅由求值器在单一循环内修改，不做内部加锁，也从不持久化。
type State struct {
	window    int
	histories map[string]*History
	quotas    map[string]quotaEntry
}

// New constructs an empty state aggregate for a run.
func New(window int) *State {
	if window < 1 {
		window = 1
	}
	return &State{
		window:    window,
		histories: make(map[string]*History),
		quotas:    make(map[string]quotaEntry),
	}
}

// HistoryFor returns the player's history, creating it on first sight.
func (s *State) HistoryFor(name string) *History {
	h, ok := s.histories[name]
	if !ok {
		h = NewHistory(s.window)
		s.histories[name] = h
	}
	return h
}

// TrackedPlayers reports how many distinct players have been observed.
func (s *State) TrackedPlayers() int {
	return len(s.histories)
}

// AlertCount returns how many alerts the player has consumed on the given
// day. Entries keyed to any other day read as zero.
func (s *State) AlertCount(name, day string) int {
	e, ok := s.quotas[name]
	if !ok || e.day != day {
		return 0
	}
	return e.count
}

// RecordAlert consumes one quota unit for the player on the given day.
// Counts held for any other day are discarded; rollover resets are
// intentional, so memory stays bounded by today's distinct players.
func (s *State) RecordAlert(name, day string) int {
	e, ok := s.quotas[name]
	if !ok || e.day != day {
		e = quotaEntry{day: day}
	}
	e.count++
	s.quotas[name] = e
	return e.count
}
