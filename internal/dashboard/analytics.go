package dashboard

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/assiworks/opening-registration/internal/models"
)

const (
	// UnspecifiedAffiliation labels rows with a blank affiliation.
	UnspecifiedAffiliation = "미입력"

	SeriesDays      = 7
	TopAffiliationN = 5
	RecentN         = 5

	dayKeyLayout   = "2006-01-02"
	dayLabelLayout = "01/02"
)

// Aggregates are the headline counters.
type Aggregates struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Cancelled int `json:"cancelled"`
	Today     int `json:"today"`
}

// DailyPoint is one calendar day of the trailing series.
type DailyPoint struct {
	Date  string `json:"date"`
	Label string `json:"label"`
	Count int    `json:"count"`
}

// AffiliationCount is one bar of the affiliation chart.
type AffiliationCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// StatusBreakdown is active/cancelled as whole percentages.
type StatusBreakdown struct {
	ActivePercent    int `json:"activePercent"`
	CancelledPercent int `json:"cancelledPercent"`
}

// Summary bundles every derived view for one list snapshot.
type Summary struct {
	Aggregates      Aggregates            `json:"aggregates"`
	Daily           []DailyPoint          `json:"daily"`
	TopAffiliations []AffiliationCount    `json:"topAffiliations"`
	Breakdown       StatusBreakdown       `json:"breakdown"`
	Recent          []models.Registration `json:"recent"`
}

func dayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(dayKeyLayout)
}

func location(loc *time.Location) *time.Location {
	if loc == nil {
		return time.Local
	}
	return loc
}

// Aggregate counts totals. today is the calendar date of now in loc.
func Aggregate(rows []models.Registration, now time.Time, loc *time.Location) Aggregates {
	loc = location(loc)
	today := dayKey(now, loc)
	var a Aggregates
	for _, r := range rows {
		a.Total++
		if r.Cancelled() {
			a.Cancelled++
		}
		if !r.CreatedAt.IsZero() && dayKey(r.CreatedAt, loc) == today {
			a.Today++
		}
	}
	a.Active = a.Total - a.Cancelled
	return a
}

// DailySeries counts registrations per calendar day for the trailing days
// ending today, oldest first. Missing days are zero.
func DailySeries(rows []models.Registration, now time.Time, loc *time.Location, days int) []DailyPoint {
	loc = location(loc)
	if days <= 0 {
		days = SeriesDays
	}
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	points := make([]DailyPoint, days)
	index := make(map[string]int, days)
	for i := 0; i < days; i++ {
		day := midnight.AddDate(0, 0, i-(days-1))
		points[i] = DailyPoint{Date: day.Format(dayKeyLayout), Label: day.Format(dayLabelLayout)}
		index[points[i].Date] = i
	}
	for _, r := range rows {
		if r.CreatedAt.IsZero() {
			continue
		}
		if i, ok := index[dayKey(r.CreatedAt, loc)]; ok {
			points[i].Count++
		}
	}
	return points
}

// TopAffiliations groups by trimmed affiliation, most common first. Ties are
// ordered by label.
func TopAffiliations(rows []models.Registration, n int) []AffiliationCount {
	if n <= 0 {
		n = TopAffiliationN
	}
	counts := make(map[string]int)
	for _, r := range rows {
		label := strings.TrimSpace(r.Affiliation)
		if label == "" {
			label = UnspecifiedAffiliation
		}
		counts[label]++
	}
	out := make([]AffiliationCount, 0, len(counts))
	for label, count := range counts {
		out = append(out, AffiliationCount{Label: label, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// Breakdown converts aggregates to percentages that always sum to 100 when
// there is at least one row.
func Breakdown(a Aggregates) StatusBreakdown {
	if a.Total == 0 {
		return StatusBreakdown{}
	}
	active := int(math.Round(float64(a.Active) / float64(a.Total) * 100))
	return StatusBreakdown{ActivePercent: active, CancelledPercent: 100 - active}
}

// Recent returns the first n rows. rows are expected newest first.
func Recent(rows []models.Registration, n int) []models.Registration {
	if n <= 0 {
		n = RecentN
	}
	if len(rows) < n {
		n = len(rows)
	}
	out := make([]models.Registration, n)
	copy(out, rows[:n])
	return out
}

// Summarize computes every view for rows.
func Summarize(rows []models.Registration, now time.Time, loc *time.Location) Summary {
	agg := Aggregate(rows, now, loc)
	return Summary{
		Aggregates:      agg,
		Daily:           DailySeries(rows, now, loc, SeriesDays),
		TopAffiliations: TopAffiliations(rows, TopAffiliationN),
		Breakdown:       Breakdown(agg),
		Recent:          Recent(rows, RecentN),
	}
}
