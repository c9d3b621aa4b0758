package domain

import (
	"fmt"
	"strings"
)

// History paging defaults.
const (
	DefaultHistoryPage  = 1
	DefaultHistoryLimit = 10
	MaxHistoryLimit     = 100
	MaxHistoryPage      = 100000
)

// HistoryOrder is a sortable history column.
type HistoryOrder string

const (
	OrderByTimestamp HistoryOrder = "timestamp"
	OrderByUsername  HistoryOrder = "username"
)

// SortDirection is asc or desc.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// HistoryFilters selects a page of search history.
type HistoryFilters struct {
	UserID         string
	Username       string // substring match
	Status         HistoryStatus
	Page           int
	Limit          int
	OrderBy        HistoryOrder
	OrderDirection SortDirection
}

// Normalize fills defaults and rejects unknown enum values and out-of-range pages.
func (f *HistoryFilters) Normalize() error {
	f.Username = strings.ToLower(strings.TrimSpace(f.Username))

	switch f.Status {
	case "", HistorySuccess, HistoryError:
	default:
		return fmt.Errorf("invalid status %q", f.Status)
	}

	switch f.OrderBy {
	case "":
		f.OrderBy = OrderByTimestamp
	case OrderByTimestamp, OrderByUsername:
	default:
		return fmt.Errorf("invalid orderBy %q", f.OrderBy)
	}

	switch f.OrderDirection {
	case "":
		f.OrderDirection = SortDesc
	case SortAsc, SortDesc:
	default:
		return fmt.Errorf("invalid orderDirection %q", f.OrderDirection)
	}

	if f.Page < DefaultHistoryPage {
		f.Page = DefaultHistoryPage
	}
	if f.Page > MaxHistoryPage {
		return fmt.Errorf("page must be at most %d", MaxHistoryPage)
	}
	if f.Limit <= 0 {
		f.Limit = DefaultHistoryLimit
	}
	if f.Limit > MaxHistoryLimit {
		f.Limit = MaxHistoryLimit
	}
	return nil
}

// Offset returns the row offset of the selected page.
func (f HistoryFilters) Offset() int {
	return (f.Page - 1) * f.Limit
}
