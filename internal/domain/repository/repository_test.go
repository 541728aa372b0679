package repository

import (
	"errors"
	"testing"
)

func TestNewPaginationBounds(t *testing.T) {
	cases := []struct {
		page, size         int
		wantPage, wantSize int
	}{
		{0, 0, 1, 20},
		{2, 500, 2, 100},
		{3, 10, 3, 10},
	}
	for _, tc := range cases {
		p := NewPagination(tc.page, tc.size)
		if p.Page != tc.wantPage || p.PageSize != tc.wantSize {
			t.Errorf("NewPagination(%d,%d) = %+v", tc.page, tc.size, p)
		}
	}
	if got := NewPagination(3, 10).Offset(); got != 20 {
		t.Fatalf("offset = %d", got)
	}
}

func TestNewPagedResultTotalPages(t *testing.T) {
	r := NewPagedResult([]int{1, 2}, 21, NewPagination(1, 10))
	if r.TotalPages != 3 {
		t.Fatalf("total pages = %d", r.TotalPages)
	}
}

func TestMapPaged(t *testing.T) {
	in := NewPagedResult([]int{1, 2, 3}, 13, NewPagination(2, 3))
	out, err := MapPaged(in, func(v int) (string, error) {
		return string(rune('a' + v)), nil
	})
	if err != nil {
		t.Fatalf("MapPaged: %v", err)
	}
	if len(out.Items) != 3 || out.Items[2] != "d" || out.TotalPages != 5 || out.Page != 2 {
		t.Fatalf("unexpected mapped page: %+v", out)
	}

	if _, err := MapPaged(in, func(int) (string, error) { return "", errBoom }); err != errBoom {
		t.Fatalf("expected mapper error, got %v", err)
	}
}

var errBoom = errors.New("boom")
