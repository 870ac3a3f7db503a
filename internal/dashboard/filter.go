// Package dashboard holds the admin view logic: filtering, bulk selection and
// derived analytics over the registration list.
package dashboard

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/assiworks/opening-registration/internal/models"
)

// StatusFilter restricts rows by lifecycle state.
type StatusFilter string

const (
	StatusAll       StatusFilter = "all"
	StatusActive    StatusFilter = "active"
	StatusCancelled StatusFilter = "cancelled"
)

// ParseStatus maps user input to a StatusFilter. Unknown values mean all.
func ParseStatus(s string) StatusFilter {
	switch StatusFilter(strings.ToLower(strings.TrimSpace(s))) {
	case StatusActive:
		return StatusActive
	case StatusCancelled, "canceled":
		return StatusCancelled
	default:
		return StatusAll
	}
}

// Filter is a keyword AND status filter.
type Filter struct {
	Keyword string
	Status  StatusFilter
}

// fold builds a Caser per call; Casers are stateful.
func fold(s string) string {
	return cases.Fold().String(s)
}

// Matcher returns a predicate for f with the keyword folded once.
func (f Filter) Matcher() func(models.Registration) bool {
	keyword := fold(strings.TrimSpace(f.Keyword))
	status := ParseStatus(string(f.Status))
	return func(r models.Registration) bool {
		switch status {
		case StatusActive:
			if r.Cancelled() {
				return false
			}
		case StatusCancelled:
			if !r.Cancelled() {
				return false
			}
		}
		if keyword == "" {
			return true
		}
		haystack := fold(r.Name + " " + r.Email + " " + r.Affiliation + " " + r.Position)
		return strings.Contains(haystack, keyword)
	}
}

// Apply returns the rows matching f, preserving order.
func Apply(rows []models.Registration, f Filter) []models.Registration {
	match := f.Matcher()
	out := make([]models.Registration, 0, len(rows))
	for _, r := range rows {
		if match(r) {
			out = append(out, r)
		}
	}
	return out
}
