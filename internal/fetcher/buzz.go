package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
)

const defaultBuzzBaseURL = "https://football.fantasysports.yahoo.com/f1/buzzindex"

// BuzzOptions parameterise the Buzz Index fetcher.
type BuzzOptions struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// Buzz 抓取 Yahoo Buzz Index 页面并解析 add/drop 榜单。
type Buzz struct {
	opts    BuzzOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewBuzz constructs a Buzz Index fetcher.
func NewBuzz(opts BuzzOptions, logger zerolog.Logger) *Buzz {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBuzzBaseURL
	}

	return &Buzz{
		opts:    opts,
		logger:  logger.With().Str("component", "buzz_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// BuildURL assembles the Buzz Index URL. An empty date defers to the
// page's own "latest" default.
func (b *Buzz) BuildURL(date string) string {
	query := "sort=BI_A&src=combined&bimtab=A&trendtab=O&pos=ALL"
	if date != "" {
		query = fmt.Sprintf("%s&date=%s", query, date)
	}
	return fmt.Sprintf("%s?%s", b.baseURL, query)
}

// FetchTrends downloads and parses the leaderboard page.
func (b *Buzz) FetchTrends(ctx context.Context, date string) ([]PlayerRow, error) {
	url := b.BuildURL(date)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	ua := strings.TrimSpace(b.opts.UserAgent)
	if ua == "" {
		ua = "Mozilla/5.0"
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch buzz index: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("buzz index 响应码异常: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse buzz index html: %w", err)
	}

	rows := ParseBuzzIndex(doc)
	b.logger.Debug().Int("rows", len(rows)).Str("url", url).Msg("buzz index parsed")
	return rows, nil
}

// ParseBuzzIndex extracts player rows from a Buzz Index document. A page
// without a recognizable player/add/drop table degrades to zero rows.
func ParseBuzzIndex(doc *goquery.Document) []PlayerRow {
	table, cols := findTrendTable(doc)
	if table == nil {
		return []PlayerRow{}
	}

	rows := make([]PlayerRow, 0)
	body := table.Find("tbody")
	if body.Length() == 0 {
		body = table
	}

	body.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td, th")
		if cells.Length() <= cols.player || cells.Length() <= cols.adds || cells.Length() <= cols.drops {
			return
		}

		playerCell := cells.Eq(cols.player)
		name, teamPos, href := splitPlayerCell(playerCell)
		if name == "" {
			return
		}

		rows = append(rows, PlayerRow{
			Name:    name,
			TeamPos: teamPos,
			Adds:    digitsToInt(cells.Eq(cols.adds).Text()),
			Drops:   digitsToInt(cells.Eq(cols.drops).Text()),
			URL:     href,
		})
	})

	return rows
}

type columnIndexes struct {
	player int
	adds   int
	drops  int
}

// findTrendTable locates the first table whose header row mentions
// player, add and drop. Headers live in thead, or failing that in the
// first tbody row. Matching is fuzzy and case-insensitive.
func findTrendTable(doc *goquery.Document) (*goquery.Selection, columnIndexes) {
	var found *goquery.Selection
	var cols columnIndexes

	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		headerRow := table.Find("thead tr").First()
		if headerRow.Length() == 0 {
			headerRow = table.Find("tbody tr").First()
		}
		if headerRow.Length() == 0 {
			return true
		}

		labels := make([]string, 0)
		headerRow.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
			labels = append(labels, strings.ToLower(normalizeSpace(cell.Text())))
		})

		player := indexContaining(labels, "player")
		adds := indexContaining(labels, "add")
		drops := indexContaining(labels, "drop")
		if player < 0 || adds < 0 || drops < 0 {
			return true
		}

		found = table
		cols = columnIndexes{player: player, adds: adds, drops: drops}
		return false
	})

	return found, cols
}

func indexContaining(labels []string, needle string) int {
	for i, l := range labels {
		if strings.Contains(l, needle) {
			return i
		}
	}
	return -1
}

// splitPlayerCell pulls the player name (anchor text when present), the
// team/position suffix after " - ", and the profile link.
func splitPlayerCell(cell *goquery.Selection) (name, teamPos, href string) {
	full := normalizeSpace(cell.Text())

	link := cell.Find("a").First()
	if link.Length() > 0 {
		name = normalizeSpace(link.Text())
		href, _ = link.Attr("href")
	} else {
		name = full
	}

	if idx := strings.Index(full, " - "); idx >= 0 {
		if suffix := strings.TrimSpace(full[idx+3:]); suffix != "" {
			teamPos = suffix
		}
	}

	return name, teamPos, href
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// digitsToInt parses a cell like "1,234" by keeping digits only; anything
// unparseable counts as zero.
func digitsToInt(s string) int {
	var b strings.Builder
	for _, ch := range s {
		if ch >= '0' && ch <= '9' {
			b.WriteRune(ch)
		}
	}
	n, err := strconv.Atoi(b.String())
	if err != nil {
		return 0
	}
	return n
}

var _ TrendFetcher = (*Buzz)(nil)
