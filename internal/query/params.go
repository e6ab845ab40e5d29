package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"rentledger/internal/model"
)

// MaxLimit caps the page size a caller may request.
const MaxLimit = 100

const (
	All  = "all"
	Asc  = "ASC"
	Desc = "DESC"
)

// Params is the caller controlled part of a listing request.
type Params struct {
	Page      int
	Limit     int
	Status    string
	TenantID  string
	Search    string
	SortBy    string
	SortOrder string
}

// Defaults are per-collection fallbacks for omitted parameters.
type Defaults struct {
	Limit  int
	SortBy string
}

// ParseParams reads page, limit, status, tenant_id, search, sort_by and
// sort_order from a query string.
func ParseParams(v url.Values, d Defaults) (Params, error) {
	p := Params{
		Page:      1,
		Limit:     d.Limit,
		Status:    strings.TrimSpace(v.Get("status")),
		TenantID:  strings.TrimSpace(v.Get("tenant_id")),
		Search:    strings.TrimSpace(v.Get("search")),
		SortBy:    strings.TrimSpace(v.Get("sort_by")),
		SortOrder: strings.ToUpper(strings.TrimSpace(v.Get("sort_order"))),
	}
	if p.Limit <= 0 {
		p.Limit = 10
	}
	if p.SortBy == "" {
		p.SortBy = d.SortBy
	}

	var err error
	if p.Page, err = positiveInt(v.Get("page"), p.Page, "page"); err != nil {
		return Params{}, err
	}
	if p.Limit, err = positiveInt(v.Get("limit"), p.Limit, "limit"); err != nil {
		return Params{}, err
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}

	switch p.SortOrder {
	case "":
		p.SortOrder = Desc
	case Asc, Desc:
	default:
		return Params{}, fmt.Errorf("%w: sort_order must be ASC or DESC", model.ErrValidation)
	}
	return p, nil
}

func positiveInt(raw string, fallback int, name string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", model.ErrValidation, name)
	}
	return n, nil
}
