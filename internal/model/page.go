package model

// SortDirection is the requested ordering direction for a sort property.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// SortOrder is one (property, direction) pair of a page request.
type SortOrder struct {
	Property  string        `json:"property"`
	Direction SortDirection `json:"direction"`
}

// PageSpec describes pagination and ordering for a listing request. A nil
// PageSpec means unpaged: the full result set is returned and no separate
// count query runs.
type PageSpec struct {
	Page int         `json:"page"`
	Size int         `json:"size"`
	Sort []SortOrder `json:"sort,omitempty"`
}

// Offset returns the number of rows skipped before the requested page.
func (p *PageSpec) Offset() int {
	return p.Page * p.Size
}

// Page is one page of results plus the total element count across all pages.
type Page[T any] struct {
	Content       []T       `json:"content"`
	TotalElements int64     `json:"total_elements"`
	Pageable      *PageSpec `json:"pageable,omitempty"`
}
