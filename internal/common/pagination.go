package common

import (
	"net/http"
	"strconv"
)

// Pagination holds pagination metadata for list responses.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalItems int `json:"total_items"`
}

// ParsePagination reads page and limit query parameters. Values that are
// missing or malformed fall back to page 1 and defaultPerPage.
func ParsePagination(r *http.Request, defaultPerPage int) (page, perPage int) {
	page, perPage = 1, defaultPerPage
	q := r.URL.Query()
	if p, err := strconv.Atoi(q.Get("page")); err == nil && p > 0 {
		page = p
	}
	if l, err := strconv.Atoi(q.Get("limit")); err == nil && l > 0 {
		perPage = l
	}
	return page, perPage
}

// Offset converts a 1-based page into a row offset.
func Offset(page, perPage int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * perPage
}
