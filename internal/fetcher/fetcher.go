package fetcher

import (
	"context"
)

// PlayerRow is one leaderboard entry: cumulative add/drop counters keyed
// by player name. TeamPos and URL are best-effort extras.
type PlayerRow struct {
	Name    string
	TeamPos string
	Adds    int
	Drops   int
	URL     string
}

// TrendFetcher retrieves the current add/drop leaderboard. An empty date
// selects the latest page; otherwise YYYY-MM-DD picks a historical day.
// A recognized page with no matching table yields empty rows, not an error.
type TrendFetcher interface {
	FetchTrends(ctx context.Context, date string) ([]PlayerRow, error)
}
