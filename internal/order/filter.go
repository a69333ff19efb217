package order

import (
	"math"
	"strings"
	"time"

	"github.com/gofrs/uuid"
)

type DateRange string

const (
	DateRangeToday DateRange = "today"
	DateRangeWeek  DateRange = "week"
	DateRangeMonth DateRange = "month"
	DateRangeAll   DateRange = "all"
)

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
	// MaxPage keeps Offset within int at the largest page size.
	MaxPage          = math.MaxInt / MaxPageLimit
)

// Since returns the lower bound of the range relative to now, or the zero
// time for DateRangeAll.
func (r DateRange) Since(now time.Time) time.Time {
	now = now.UTC()
	switch r {
	case DateRangeToday:
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	case DateRangeWeek:
		return now.AddDate(0, 0, -7)
	case DateRangeMonth:
		return now.AddDate(0, -1, 0)
	}
	return time.Time{}
}

// Filter is shared by every order listing.
type Filter struct {
	Status    string
	DateRange DateRange
	Search    string
	Page      int
	Limit     int
}

// Normalize applies defaults and rejects unknown values.
func (f Filter) Normalize() (Filter, error) {
	verr := &ValidationError{}

	f.Status = strings.ToLower(strings.TrimSpace(f.Status))
	if f.Status == "" {
		f.Status = "all"
	}
	if f.Status != "all" {
		if _, err := ParseStatus(f.Status); err != nil {
			verr.add("status", "must be all or one of pending, confirmed, preparing, out_for_delivery, delivered, cancelled")
		}
	}

	if f.DateRange == "" {
		f.DateRange = DateRangeAll
	}
	switch f.DateRange {
	case DateRangeToday, DateRangeWeek, DateRangeMonth, DateRangeAll:
	default:
		verr.add("date_range", "must be one of today, week, month, all")
	}

	f.Search = strings.TrimSpace(f.Search)

	switch {
	case f.Page == 0:
		f.Page = 1
	case f.Page < 0:
		verr.add("page", "must be positive")
	case f.Page > MaxPage:
		verr.add("page", "must be at most %d", MaxPage)
	}
	switch {
	case f.Limit == 0:
		f.Limit = DefaultPageLimit
	case f.Limit < 0:
		verr.add("limit", "must be positive")
	case f.Limit > MaxPageLimit:
		f.Limit = MaxPageLimit
	}

	if !verr.empty() {
		return Filter{}, verr
	}
	return f, nil
}

func (f Filter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// Scope narrows a listing to one party. Zero ids are not applied.
type Scope struct {
	CustomerID uuid.UUID
	VendorID   uuid.UUID
	DriverID   uuid.UUID
}

// Page is the single paginated result shape of every listing.
type Page struct {
	Items []Order `json:"items"`
	Page  int     `json:"page"`
	Limit int     `json:"limit"`
	Total int     `json:"total"`
}
