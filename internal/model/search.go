package model

import (
	"fmt"
	"time"
)

// SortField represents a sortable task field.
type SortField string

const (
	SortFieldCreatedAt SortField = "created_at"
	SortFieldUpdatedAt SortField = "updated_at"
	SortFieldDueDate   SortField = "due_date"
	SortFieldTitle     SortField = "title"
	SortFieldPriority  SortField = "priority"
	SortFieldCompleted SortField = "completed"
	SortFieldPosition  SortField = "position"
)

// Valid returns true when the sort field is known.
func (f SortField) Valid() bool {
	switch f {
	case SortFieldCreatedAt, SortFieldUpdatedAt, SortFieldDueDate,
		SortFieldTitle, SortFieldPriority, SortFieldCompleted, SortFieldPosition:
		return true
	}
	return false
}

// SortOrder represents the sort direction.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// SearchFilters are the caller-facing search and filter parameters.
type SearchFilters struct {
	Query       string
	Completed   *bool
	Priorities  []Priority
	DueFrom     *time.Time
	DueTo       *time.Time
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	SortBy      SortField
	Order       SortOrder
	Page        int
	Size        int
}

// Validate validates the filter values that cannot be clamped.
func (f SearchFilters) Validate() error {
	for _, p := range f.Priorities {
		if !p.Valid() {
			return fmt.Errorf("priority %q is unknown: %w", p, ErrNotValid)
		}
	}
	if f.SortBy != "" && !f.SortBy.Valid() {
		return fmt.Errorf("sort field %q is unknown: %w", f.SortBy, ErrNotValid)
	}
	if f.Order != "" && f.Order != SortAsc && f.Order != SortDesc {
		return fmt.Errorf("sort order %q is unknown: %w", f.Order, ErrNotValid)
	}
	return nil
}

// SearchQuery is the store-level query after clamping and text parsing.
// OwnerID 0 means all owners (administrative callers).
type SearchQuery struct {
	OwnerID     int64
	Keywords    []string
	Completed   *bool
	Priorities  []Priority
	DueFrom     *time.Time
	DueTo       *time.Time
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	SortBy      SortField
	Order       SortOrder
	Offset      int
	Limit       int
}

// SearchResult is a page of matching tasks plus pagination metadata.
type SearchResult struct {
	Tasks        []Task
	Total        int
	Page         int
	Size         int
	TotalPages   int
	HasNext      bool
	HasPrev      bool
	SearchTimeMS float64
}

// FilterStats are aggregate statistics used to populate filter widgets.
type FilterStats struct {
	Priorities  map[Priority]int
	Completed   int
	Pending     int
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	DueFrom     *time.Time
	DueTo       *time.Time
	TotalTasks  int
}
