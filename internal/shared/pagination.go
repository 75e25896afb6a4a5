package shared

import (
	"net/url"
	"strconv"
)

// Pagination contains the requested window of a paginated listing.
type Pagination struct {
	Page    int `json:"page"`
	PerPage int `json:"perPage"`
}

// NewPagination clamps page and perPage to sane values.
func NewPagination(page, perPage, maxPerPage int) Pagination {
	if perPage <= 0 {
		perPage = 20
	}
	if maxPerPage > 0 && perPage > maxPerPage {
		perPage = maxPerPage
	}
	if page <= 0 {
		page = 1
	}
	return Pagination{Page: page, PerPage: perPage}
}

// PaginationFromQuery reads page and per_page query parameters.
func PaginationFromQuery(q url.Values, maxPerPage int) Pagination {
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	return NewPagination(page, perPage, maxPerPage)
}

// Offset is the number of records before the page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PerPage
}
