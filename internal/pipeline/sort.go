package pipeline

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/nao1215/earnscan/internal/model"
)

// SortOrder selects the order in which records are handed to the sink.
type SortOrder string

const (
	// SortByCode sorts ascending by stock code.
	SortByCode SortOrder = "code"
	// SortByDividendYield sorts by dividend yield, highest first, records
	// without a yield last.
	SortByDividendYield SortOrder = "dividend_yield"
	// SortNone keeps fetch-completion order and streams records without
	// holding them all in memory.
	SortNone SortOrder = "none"
)

// ErrUnknownSortOrder is returned by ParseSortOrder.
var ErrUnknownSortOrder = errors.New("unknown sort order")

// ParseSortOrder converts a configuration value into a SortOrder.
// The empty string selects SortByCode.
func ParseSortOrder(s string) (SortOrder, error) {
	switch SortOrder(s) {
	case "", SortByCode:
		return SortByCode, nil
	case SortByDividendYield, SortNone:
		return SortOrder(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSortOrder, s)
	}
}

// SortRecords orders records in place. The sort is stable, so records that
// compare equal keep their relative order.
func SortRecords(records []*model.Record, order SortOrder) {
	switch order {
	case SortByCode:
		slices.SortStableFunc(records, func(a, b *model.Record) int {
			return cmp.Compare(a.Code(), b.Code())
		})
	case SortByDividendYield:
		slices.SortStableFunc(records, compareYieldDesc)
	case SortNone:
	}
}

func compareYieldDesc(a, b *model.Record) int {
	switch {
	case a.DividendYield == nil && b.DividendYield == nil:
		return cmp.Compare(a.Code(), b.Code())
	case a.DividendYield == nil:
		return 1
	case b.DividendYield == nil:
		return -1
	}
	if c := cmp.Compare(*b.DividendYield, *a.DividendYield); c != 0 {
		return c
	}
	return cmp.Compare(a.Code(), b.Code())
}
