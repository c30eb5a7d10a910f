package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"testing"
)

func newTestCatalog(t *testing.T, code string, n int) *CountryCatalog {
	t.Helper()
	videos := make([]VideoRecord, n)
	for i := range videos {
		videos[i] = VideoRecord{ID: fmt.Sprintf("v%d", i+1)}
	}
	catalog, _, err := NewCountryCatalog(Country{Code: code}, videos)
	if err != nil {
		t.Fatalf("NewCountryCatalog failed: %v", err)
	}
	return catalog
}

func intPtr(i int) *int { return &i }

func TestPaginate(t *testing.T) {
	us := newTestCatalog(t, "US", 5)

	tests := []struct {
		name     string
		offset   int
		pageSize int
		wantIDs  []string
		wantNext *int
	}{
		{"first page", 0, 2, []string{"v1", "v2"}, intPtr(2)},
		{"middle page", 2, 2, []string{"v3", "v4"}, intPtr(4)},
		{"last partial page", 4, 2, []string{"v5"}, nil},
		{"exact end", 3, 2, []string{"v4", "v5"}, nil},
		{"whole catalog", 0, 5, []string{"v1", "v2", "v3", "v4", "v5"}, nil},
		{"page larger than catalog", 0, 1000, []string{"v1", "v2", "v3", "v4", "v5"}, nil},
		{"offset at end", 5, 2, []string{}, nil},
		{"offset past end", 50, 2, []string{}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := Paginate(us, tt.offset, tt.pageSize)
			if err != nil {
				t.Fatalf("Paginate() unexpected error: %v", err)
			}
			if page.Country != "US" {
				t.Errorf("Country = %q, want US", page.Country)
			}
			if page.Offset != tt.offset {
				t.Errorf("Offset = %d, want %d", page.Offset, tt.offset)
			}
			if page.TotalResults != 5 {
				t.Errorf("TotalResults = %d, want 5", page.TotalResults)
			}
			if got := page.Videos.IDs(); !reflect.DeepEqual(got, tt.wantIDs) {
				t.Errorf("IDs = %v, want %v", got, tt.wantIDs)
			}
			if page.NumResults != len(page.Videos) {
				t.Errorf("NumResults = %d, len(Videos) = %d", page.NumResults, len(page.Videos))
			}
			if !reflect.DeepEqual(page.NextToken, tt.wantNext) {
				t.Errorf("NextToken = %v, want %v", page.NextToken, tt.wantNext)
			}
		})
	}
}

func TestPaginate_InvalidArguments(t *testing.T) {
	catalog := newTestCatalog(t, "US", 3)

	if _, err := Paginate(catalog, 0, 0); !errors.Is(err, ErrInvalidPageSize) {
		t.Errorf("pageSize 0: error = %v, want %v", err, ErrInvalidPageSize)
	}
	if _, err := Paginate(catalog, 0, -1); !errors.Is(err, ErrInvalidPageSize) {
		t.Errorf("pageSize -1: error = %v, want %v", err, ErrInvalidPageSize)
	}
	if _, err := Paginate(catalog, -1, 2); !errors.Is(err, ErrInvalidOffset) {
		t.Errorf("offset -1: error = %v, want %v", err, ErrInvalidOffset)
	}
}

func TestPaginate_NilCatalog(t *testing.T) {
	page, err := Paginate(nil, 0, 10)
	if err != nil {
		t.Fatalf("Paginate() unexpected error: %v", err)
	}
	if page.TotalResults != 0 || page.NumResults != 0 || page.NextToken != nil {
		t.Errorf("expected empty terminal page, got %+v", page)
	}
}

func TestPaginate_FullTraversal(t *testing.T) {
	for _, total := range []int{0, 1, 7, 50, 123} {
		catalog := newTestCatalog(t, "IT", total)
		for _, pageSize := range []int{1, 3, 10, 50, 1000} {
			t.Run(fmt.Sprintf("total=%d/size=%d", total, pageSize), func(t *testing.T) {
				seen := make(map[string]bool)
				token := 0
				for pages := 0; ; pages++ {
					if pages > total+1 {
						t.Fatal("traversal did not terminate")
					}
					page, err := Paginate(catalog, token, pageSize)
					if err != nil {
						t.Fatalf("Paginate(%d) failed: %v", token, err)
					}
					for _, id := range page.Videos.IDs() {
						if seen[id] {
							t.Fatalf("duplicate id %s at token %d", id, token)
						}
						seen[id] = true
					}
					if page.NextToken == nil {
						if page.Offset+page.NumResults != page.TotalResults && page.NumResults != 0 {
							t.Errorf("terminal page: offset+numResults = %d, total = %d",
								page.Offset+page.NumResults, page.TotalResults)
						}
						break
					}
					if *page.NextToken != token+page.NumResults {
						t.Fatalf("NextToken = %d, want %d", *page.NextToken, token+page.NumResults)
					}
					token = *page.NextToken
				}
				if len(seen) != total {
					t.Errorf("visited %d ids, want %d", len(seen), total)
				}
			})
		}
	}
}

func TestPaginate_DoesNotAliasCatalog(t *testing.T) {
	catalog := newTestCatalog(t, "US", 5)
	page, _ := Paginate(catalog, 0, 2)

	page.Videos = append(page.Videos, VideoRecord{ID: "injected"})
	if catalog.Videos[2].ID != "v3" {
		t.Errorf("appending to a page modified the catalog: %s", catalog.Videos[2].ID)
	}
}

func TestPageResult_JSON(t *testing.T) {
	catalog := newTestCatalog(t, "US", 5)

	tests := []struct {
		name   string
		offset int
		want   string
	}{
		{
			name:   "with next token",
			offset: 0,
			want:   `{"country":"US","offset":0,"numResults":2,"totalResults":5,"videos":{"v1":null,"v2":null},"nextToken":2,"dispatchedPrefetcher":false}`,
		},
		{
			name:   "terminal page omits next token",
			offset: 4,
			want:   `{"country":"US","offset":4,"numResults":1,"totalResults":5,"videos":{"v5":null},"dispatchedPrefetcher":false}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := Paginate(catalog, tt.offset, 2)
			if err != nil {
				t.Fatalf("Paginate failed: %v", err)
			}
			got, err := json.Marshal(page)
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Marshal =\n%s\nwant\n%s", got, tt.want)
			}
		})
	}
}

func TestPageResult_Clone(t *testing.T) {
	next := 2
	orig := &PageResult{Country: "US", NextToken: &next, DispatchedPrefetcher: true}

	c := orig.Clone()
	c.DispatchedPrefetcher = false
	*c.NextToken = 99

	if !orig.DispatchedPrefetcher {
		t.Error("clone shares DispatchedPrefetcher with original")
	}
	if *orig.NextToken != 2 {
		t.Error("clone shares NextToken with original")
	}
}

func TestPageQuery_Validate(t *testing.T) {
	tests := []struct {
		name    string
		query   PageQuery
		wantErr error
	}{
		{"valid", PageQuery{Country: "US", Offset: 0, PageSize: 5}, nil},
		{"zero page size", PageQuery{Country: "US", PageSize: 0}, ErrInvalidPageSize},
		{"negative offset", PageQuery{Country: "US", Offset: -3, PageSize: 5}, ErrInvalidOffset},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.query.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
