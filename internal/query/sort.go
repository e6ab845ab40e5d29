package query

import (
	"cmp"
	"slices"
	"strings"
	"time"
)

// Compare orders two records by one field.
type Compare[T any] func(a, b T) int

func ByTime[T any](get func(T) time.Time) Compare[T] {
	return func(a, b T) int { return get(a).Compare(get(b)) }
}

func ByNumber[T any](get func(T) float64) Compare[T] {
	return func(a, b T) int { return cmp.Compare(get(a), get(b)) }
}

func ByText[T any](get func(T) string) Compare[T] {
	return func(a, b T) int { return strings.Compare(get(a), get(b)) }
}

// SortRecords sorts in place by field and direction. Equal keys are ordered
// by ascending id so paging over equal timestamps is deterministic.
func SortRecords[T any](records []T, field Compare[T], desc bool, id func(T) int64) {
	slices.SortStableFunc(records, func(a, b T) int {
		c := field(a, b)
		if desc {
			c = -c
		}
		if c != 0 {
			return c
		}
		return cmp.Compare(id(a), id(b))
	})
}
