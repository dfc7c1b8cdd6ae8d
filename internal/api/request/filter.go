package request

import (
	"net/http"
	"strconv"
	"strings"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// ListParams holds pagination, search and filter parameters of a tenant
// listing. Cursor is the last tenant ID of the previous page.
type ListParams struct {
	Limit  int
	Cursor string
	Search string
	Status string // "active" or "inactive"
}

// ParseListParams extracts list parameters from the query string. An absent,
// malformed or non-positive limit means DefaultLimit; larger limits are
// clamped to MaxLimit.
func ParseListParams(r *http.Request) ListParams {
	q := r.URL.Query()
	p := ListParams{
		Limit:  DefaultLimit,
		Cursor: q.Get("cursor"),
		Search: strings.TrimSpace(q.Get("search")),
	}

	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 {
		p.Limit = min(limit, MaxLimit)
	}
	if status := q.Get("status"); status == "active" || status == "inactive" {
		p.Status = status
	}
	return p
}
