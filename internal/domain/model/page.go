package model

import (
	"errors"
	"strconv"
)

var (
	ErrInvalidPageSize = errors.New("page size must be positive")
	ErrInvalidOffset   = errors.New("offset cannot be negative")
)

// PageQuery identifies one page of one country's catalog.
// Version pins the query to the catalog content it was computed from, so a
// re-seed with different data never reuses pages of the previous catalog.
type PageQuery struct {
	Country  string
	Offset   int
	PageSize int
	Version  uint64
}

// Validate reports whether the query describes a computable page.
func (q PageQuery) Validate() error {
	if q.PageSize <= 0 {
		return ErrInvalidPageSize
	}
	if q.Offset < 0 {
		return ErrInvalidOffset
	}
	return nil
}

// String returns a compact representation suitable for log attributes and
// singleflight keys.
func (q PageQuery) String() string {
	return q.Country + ":" +
		strconv.FormatUint(q.Version, 16) + ":" +
		strconv.Itoa(q.Offset) + ":" +
		strconv.Itoa(q.PageSize)
}

// PageResult is one page of a country's catalog.
type PageResult struct {
	Country              string    `json:"country"`
	Offset               int       `json:"offset"`
	NumResults           int       `json:"numResults"`
	TotalResults         int       `json:"totalResults"`
	Videos               VideoList `json:"videos"`
	NextToken            *int      `json:"nextToken,omitempty"`
	DispatchedPrefetcher bool      `json:"dispatchedPrefetcher"`
}

// HasMore reports whether another page follows this one.
func (p *PageResult) HasMore() bool {
	return p.NextToken != nil
}

// Clone returns a copy that shares the immutable video records but none of
// the mutable fields.
func (p *PageResult) Clone() *PageResult {
	c := *p
	if p.NextToken != nil {
		next := *p.NextToken
		c.NextToken = &next
	}
	return &c
}

// Paginate computes the page [offset, offset+pageSize) of the catalog.
// Offsets at or past the end yield an empty terminal page. A nil catalog is
// treated as empty.
func Paginate(catalog *CountryCatalog, offset, pageSize int) (*PageResult, error) {
	if pageSize <= 0 {
		return nil, ErrInvalidPageSize
	}
	if offset < 0 {
		return nil, ErrInvalidOffset
	}

	total := catalog.Total()
	page := &PageResult{
		Offset:       offset,
		TotalResults: total,
		Videos:       VideoList{},
	}
	if catalog != nil {
		page.Country = catalog.Country.Code
	}
	if offset >= total {
		return page, nil
	}

	end := total
	if pageSize < total-offset {
		end = offset + pageSize
	}

	// Full slice expression keeps appends on the page from touching the catalog.
	page.Videos = VideoList(catalog.Videos[offset:end:end])
	page.NumResults = end - offset
	if end < total {
		next := end
		page.NextToken = &next
	}
	return page, nil
}
