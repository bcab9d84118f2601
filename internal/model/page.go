package model

const (
	DefaultPageNumber = 1
	DefaultPageSize   = 20
)

// Page is one server page of a paged collection. Total counts every entry
// matching the query, not only the ones carried here.
type Page[T any] struct {
	Total   int `json:"total"`
	Number  int `json:"page"`
	Size    int `json:"pageSize"`
	Entries []T `json:"entries"`
}

// Normalize fills the defaults the server may omit.
func (p Page[T]) Normalize() Page[T] {
	if p.Total < 0 {
		p.Total = 0
	}
	if p.Number < 1 {
		p.Number = DefaultPageNumber
	}
	if p.Size < 1 {
		p.Size = DefaultPageSize
	}
	return p
}

// Exhausted reports whether no page after this one can hold entries.
func (p Page[T]) Exhausted() bool {
	return p.Number*p.Size >= p.Total
}
