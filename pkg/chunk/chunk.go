// Package chunk splits ordered sequences into fixed-size groups for batch API calls.
package chunk

import (
	"fmt"
	"iter"
)

// Seq partitions seq into consecutive chunks of at most size elements.
// The source is consumed once, so single-pass iterators are accepted.
// Every yielded chunk is a new slice the caller may keep.
// It panics if size is not positive.
func Seq[T any](seq iter.Seq[T], size int) iter.Seq[[]T] {
	mustPositive(size)

	return func(yield func([]T) bool) {
		buf := make([]T, 0, size)
		for item := range seq {
			buf = append(buf, item)
			if len(buf) < size {
				continue
			}
			if !yield(buf) {
				return
			}
			buf = make([]T, 0, size)
		}

		if len(buf) > 0 {
			yield(buf)
		}
	}
}

// Slice partitions items into consecutive chunks of at most size elements.
// Chunks share the backing array of items.
// It panics if size is not positive.
func Slice[T any](items []T, size int) iter.Seq[[]T] {
	mustPositive(size)

	return func(yield func([]T) bool) {
		for start := 0; start < len(items); start += size {
			end := min(start+size, len(items))
			if !yield(items[start:end:end]) {
				return
			}
		}
	}
}

// Count returns the number of chunks Slice would produce for n items.
func Count(n, size int) int {
	mustPositive(size)
	if n <= 0 {
		return 0
	}
	return (n + size - 1) / size
}

func mustPositive(size int) {
	if size <= 0 {
		panic(fmt.Sprintf("chunk: size must be positive, got %d", size))
	}
}
