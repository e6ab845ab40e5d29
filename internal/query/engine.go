// Package query implements the scope, filter, sort, paginate and summarize
// pipeline shared by every paginated listing.
package query

import (
	"strconv"
	"strings"

	"rentledger/internal/model"
)

// MissingRoom is shown when a record's tenant no longer exists.
const MissingRoom = "--"

// Collection describes how the pipeline reads one record type T and what it
// returns per row (R).
type Collection[T, R any] struct {
	Owner func(T) int64
	ID    func(T) int64
	// Status is nil for collections without a status; the status filter is
	// then ignored.
	Status      func(T) string
	SearchText  func(T) []string
	SortFields  map[string]Compare[T]
	DefaultSort string
	Enrich      func(rec T, room string) R
	// Summarize computes statistics over the filtered set before paging.
	// When nil the statistics hold only total_records.
	Summarize func(filtered []T) any
}

type Pagination struct {
	CurrentPage  int `json:"current_page"`
	PerPage      int `json:"per_page"`
	TotalPages   int `json:"total_pages"`
	TotalRecords int `json:"total_records"`
}

type Totals struct {
	TotalRecords int `json:"total_records"`
}

type Page[R any] struct {
	Data       []R        `json:"data"`
	Pagination Pagination `json:"pagination"`
	Statistics any        `json:"statistics"`
}

// Run applies the pipeline. records is not modified. rooms maps tenant id to
// room number for the enrichment step.
func Run[T, R any](records []T, caller model.Identity, p Params, rooms map[int64]string, c Collection[T, R]) Page[R] {
	filtered := make([]T, 0, len(records))
	tenantFilter, filterTenant := parseTenantFilter(p.TenantID)
	search := strings.ToLower(p.Search)

	for _, rec := range records {
		if !caller.IsAdmin() && c.Owner(rec) != caller.ID {
			continue
		}
		if c.Status != nil && p.Status != "" && p.Status != All && c.Status(rec) != p.Status {
			continue
		}
		if filterTenant && (tenantFilter == nil || c.Owner(rec) != *tenantFilter) {
			continue
		}
		if search != "" && !matches(c.SearchText(rec), search) {
			continue
		}
		filtered = append(filtered, rec)
	}

	field, ok := c.SortFields[p.SortBy]
	if !ok {
		field = c.SortFields[c.DefaultSort]
	}
	if field != nil {
		SortRecords(filtered, field, p.SortOrder != Asc, c.ID)
	}

	limit := p.Limit
	if limit < 1 {
		limit = 1
	}
	page := p.Page
	if page < 1 {
		page = 1
	}
	total := len(filtered)

	data := make([]R, 0, limit)
	if start := (page - 1) * limit; start < total {
		end := start + limit
		if end > total {
			end = total
		}
		for _, rec := range filtered[start:end] {
			room, ok := rooms[c.Owner(rec)]
			if !ok {
				room = MissingRoom
			}
			data = append(data, c.Enrich(rec, room))
		}
	}

	var stats any = Totals{TotalRecords: total}
	if c.Summarize != nil {
		stats = c.Summarize(filtered)
	}

	return Page[R]{
		Data: data,
		Pagination: Pagination{
			CurrentPage:  page,
			PerPage:      limit,
			TotalPages:   (total + limit - 1) / limit,
			TotalRecords: total,
		},
		Statistics: stats,
	}
}

// parseTenantFilter reports whether a tenant filter is active and, if the
// value is numeric, the id to match. A non-numeric value matches nothing.
func parseTenantFilter(raw string) (*int64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == All {
		return nil, false
	}
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return &id, true
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil && f == float64(int64(f)) {
		id := int64(f)
		return &id, true
	}
	return nil, true
}

func matches(fields []string, needle string) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}
