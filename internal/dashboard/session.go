package dashboard

import (
	"time"

	"github.com/google/uuid"

	"github.com/assiworks/opening-registration/internal/models"
)

// SelectAllState drives the header checkbox.
type SelectAllState struct {
	Checked       bool `json:"checked"`
	Indeterminate bool `json:"indeterminate"`
	Disabled      bool `json:"disabled"`
}

// Session is one admin's view state: the loaded rows, the active filter and
// the checked ids. The selection is always a subset of the visible rows.
// Session is not safe for concurrent use.
type Session struct {
	Token    string
	rows     []models.Registration
	filter   Filter
	visible  []models.Registration
	selected map[uuid.UUID]struct{}
}

// NewSession creates an empty session for an admin token.
func NewSession(token string) *Session {
	return &Session{Token: token, filter: Filter{Status: StatusAll}, selected: make(map[uuid.UUID]struct{})}
}

// SetRows replaces the loaded rows.
func (s *Session) SetRows(rows []models.Registration) {
	s.rows = append([]models.Registration(nil), rows...)
	s.refresh()
}

// Rows returns every loaded row.
func (s *Session) Rows() []models.Registration { return s.rows }

// SetFilter changes the filter and prunes the selection.
func (s *Session) SetFilter(f Filter) {
	f.Status = ParseStatus(string(f.Status))
	s.filter = f
	s.refresh()
}

// Filter returns the active filter.
func (s *Session) Filter() Filter { return s.filter }

// Visible returns the filtered rows.
func (s *Session) Visible() []models.Registration { return s.visible }

func (s *Session) refresh() {
	s.visible = Apply(s.rows, s.filter)
	keep := make(map[uuid.UUID]struct{}, len(s.selected))
	for _, r := range s.visible {
		if _, ok := s.selected[r.ID]; ok {
			keep[r.ID] = struct{}{}
		}
	}
	s.selected = keep
}

func (s *Session) isVisible(id uuid.UUID) bool {
	for _, r := range s.visible {
		if r.ID == id {
			return true
		}
	}
	return false
}

// Toggle flips one row. Ids outside the filtered view are ignored.
func (s *Session) Toggle(id uuid.UUID) {
	if _, ok := s.selected[id]; ok {
		delete(s.selected, id)
		return
	}
	if s.isVisible(id) {
		s.selected[id] = struct{}{}
	}
}

// SelectAllVisible checks every filtered row.
func (s *Session) SelectAllVisible() {
	for _, r := range s.visible {
		s.selected[r.ID] = struct{}{}
	}
}

// ClearSelection unchecks everything.
func (s *Session) ClearSelection() {
	s.selected = make(map[uuid.UUID]struct{})
}

// IsSelected reports whether id is checked.
func (s *Session) IsSelected(id uuid.UUID) bool {
	_, ok := s.selected[id]
	return ok
}

// Selected returns the checked ids in visible-row order.
func (s *Session) Selected() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(s.selected))
	for _, r := range s.visible {
		if _, ok := s.selected[r.ID]; ok {
			out = append(out, r.ID)
		}
	}
	return out
}

// SelectAllState derives the header checkbox state.
func (s *Session) SelectAllState() SelectAllState {
	n, total := len(s.selected), len(s.visible)
	return SelectAllState{
		Checked:       total > 0 && n == total,
		Indeterminate: n > 0 && n < total,
		Disabled:      total == 0,
	}
}

// RemoveRows drops deleted ids from the rows and the selection.
func (s *Session) RemoveRows(ids []uuid.UUID) {
	gone := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		gone[id] = struct{}{}
		delete(s.selected, id)
	}
	kept := make([]models.Registration, 0, len(s.rows))
	for _, r := range s.rows {
		if _, ok := gone[r.ID]; !ok {
			kept = append(kept, r)
		}
	}
	s.rows = kept
	s.refresh()
}

// Summary computes analytics over every loaded row, not just the filtered
// view.
func (s *Session) Summary(now time.Time, loc *time.Location) Summary {
	return Summarize(s.rows, now, loc)
}
