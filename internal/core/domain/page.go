package domain

import (
	"slices"
	"strings"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Page is a zero-based page request. A zero Sort means the listing's default.
type Page struct {
	Number int
	Size   int
	Sort   Sort
}

func NewPage(number, size int) Page {
	if number < 0 {
		number = 0
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return Page{Number: number, Size: size}
}

func (p Page) Offset() int {
	return p.Number * p.Size
}

func (p Page) WithSort(s Sort) Page {
	p.Sort = s
	return p
}

type SortDirection string

const (
	SortAsc  SortDirection = "ASC"
	SortDesc SortDirection = "DESC"
)

type Sort struct {
	Field     string
	Direction SortDirection
}

func (s Sort) IsZero() bool { return s.Field == "" }

// SortSpec lists the fields a listing may be ordered by.
type SortSpec struct {
	Default Sort
	Fields  []string
}

var (
	ItemSort = SortSpec{
		Default: Sort{Field: "id", Direction: SortAsc},
		Fields:  []string{"id", "name", "price", "createdAt", "updatedAt"},
	}
	MovementSort = SortSpec{
		Default: Sort{Field: "id", Direction: SortDesc},
		Fields:  []string{"id", "itemId", "qty", "type", "createdAt", "updatedAt"},
	}
	OrderSort = SortSpec{
		Default: Sort{Field: "orderNo", Direction: SortDesc},
		Fields:  []string{"orderNo", "id", "itemId", "qty", "price", "createdAt", "updatedAt"},
	}
)

// Parse validates a requested field and direction. Empty values fall back to
// the listing's default independently of each other.
func (s SortSpec) Parse(field, direction string) (Sort, error) {
	out := s.Default
	if field != "" {
		if !slices.Contains(s.Fields, field) {
			return Sort{}, NewValidationError("sortBy", "sortBy must be one of: "+strings.Join(s.Fields, ", "))
		}
		out.Field = field
	}
	if direction != "" {
		switch d := SortDirection(strings.ToUpper(direction)); d {
		case SortAsc, SortDesc:
			out.Direction = d
		default:
			return Sort{}, NewValidationError("sortDirection", "sortDirection must be ASC or DESC")
		}
	}
	return out, nil
}

// Resolve returns sort, or the default when sort is zero or names a field
// outside the whitelist.
func (s SortSpec) Resolve(sort Sort) Sort {
	if sort.IsZero() || !slices.Contains(s.Fields, sort.Field) {
		return s.Default
	}
	if sort.Direction != SortDesc {
		sort.Direction = SortAsc
	}
	return sort
}

type PageResult[T any] struct {
	Content       []T
	Page          int
	Size          int
	TotalElements int64
}
