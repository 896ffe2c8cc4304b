// Package paginate walks paged remote collections as lazy item sequences.
//
// Two page-advance strategies are supported:
//
//   - Cursor: every page says whether another one follows and the next page is
//     fetched relative to the current one.
//   - Offset: every page reports the collection total and the next page is
//     requested at the number of items accumulated so far.
//
// Sequences are single-pass. Ranging over the same sequence again starts a new
// walk from the first page.
package paginate

import (
	"context"
	"errors"
	"fmt"
	"iter"
)

// Mode selects how a missing page response is treated.
type Mode int

const (
	// Strict treats a missing page as a fatal consistency error.
	Strict Mode = iota
	// Lenient ends the sequence quietly on a missing page.
	Lenient
)

func (m Mode) String() string {
	switch m {
	case Strict:
		return "strict"
	case Lenient:
		return "lenient"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

var (
	// ErrMissingPage is reported in Strict mode when a fetch returns no page.
	ErrMissingPage = errors.New("missing page response")
	// ErrShortPage is reported in Strict mode when an offset page is empty
	// before the reported total was reached.
	ErrShortPage = errors.New("page ended before reported total")
)

// CursorPage is one page of a cursor-paginated collection.
type CursorPage[T any] struct {
	Items   []T
	HasNext bool
	// Token is handed back to the next-page function untouched.
	Token any
}

// OffsetPage is one page of an offset-paginated collection.
type OffsetPage[T any] struct {
	Items []T
	Total int
}

// CursorFirstFunc fetches the first page of a cursor-paginated collection.
type CursorFirstFunc[T any] func(ctx context.Context) (*CursorPage[T], error)

// CursorNextFunc fetches the page following prev.
type CursorNextFunc[T any] func(ctx context.Context, prev *CursorPage[T]) (*CursorPage[T], error)

// OffsetFetchFunc fetches the page starting at offset.
type OffsetFetchFunc[T any] func(ctx context.Context, offset int) (*OffsetPage[T], error)

// Cursor yields the items of every page, following HasNext until it is false.
// A fetch error is yielded once and ends the sequence.
func Cursor[T any](ctx context.Context, first CursorFirstFunc[T], next CursorNextFunc[T], mode Mode) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T

		page, err := first(ctx)
		for {
			if err != nil {
				yield(zero, err)
				return
			}
			if page == nil {
				if mode == Strict {
					yield(zero, ErrMissingPage)
				}
				return
			}

			for _, item := range page.Items {
				if !yield(item, nil) {
					return
				}
			}

			if !page.HasNext {
				return
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				yield(zero, ctxErr)
				return
			}

			page, err = next(ctx, page)
		}
	}
}

// Offset yields the items of every page, requesting the next page at the
// number of items accumulated so far until the first page's total is reached.
// A fetch error is yielded once and ends the sequence.
func Offset[T any](ctx context.Context, fetch OffsetFetchFunc[T], mode Mode) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T

		page, err := fetch(ctx, 0)
		if err != nil {
			yield(zero, err)
			return
		}
		if page == nil {
			if mode == Strict {
				yield(zero, ErrMissingPage)
			}
			return
		}

		total := page.Total
		seen := 0
		for {
			for _, item := range page.Items {
				if !yield(item, nil) {
					return
				}
			}
			seen += len(page.Items)

			if seen >= total {
				return
			}
			if len(page.Items) == 0 {
				if mode == Strict {
					yield(zero, fmt.Errorf("%w: got %d of %d items", ErrShortPage, seen, total))
				}
				return
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				yield(zero, ctxErr)
				return
			}

			page, err = fetch(ctx, seen)
			if err != nil {
				yield(zero, err)
				return
			}
			if page == nil {
				if mode == Strict {
					yield(zero, ErrMissingPage)
				}
				return
			}
		}
	}
}

// Collect materializes seq, stopping at the first error.
func Collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var items []T
	for item, err := range seq {
		if err != nil {
			return items, err
		}
		items = append(items, item)
	}
	return items, nil
}

// Values drops the error channel of seq, ending at the first error.
// The error, if any, is stored in errp once the returned sequence is drained.
func Values[T any](seq iter.Seq2[T, error], errp *error) iter.Seq[T] {
	return func(yield func(T) bool) {
		for item, err := range seq {
			if err != nil {
				*errp = err
				return
			}
			if !yield(item) {
				return
			}
		}
	}
}
