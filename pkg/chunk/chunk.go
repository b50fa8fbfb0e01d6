// Package chunk provides the shared helper for bulk operations over the
// record store: work proceeds in fixed-size slices, outcomes accumulate into
// a single Result, and one slice's failure never aborts the operation.
package chunk

import (
	"context"
	"fmt"
)

// MaxErrs caps how many chunk errors are retained on a Result.
const MaxErrs = 10

// Result accumulates the outcome of a chunked bulk operation.
type Result struct {
	Processed    int     `json:"processed"`
	Affected     int     `json:"affected"`
	Errored      int     `json:"errored"`
	FailedChunks int     `json:"failed_chunks"`
	Errs         []error `json:"-"`
}

func (r *Result) addErr(err error) {
	if len(r.Errs) < MaxErrs {
		r.Errs = append(r.Errs, err)
	}
}

// ErrStrings returns the retained errors as strings for JSON reporting.
func (r *Result) ErrStrings() []string {
	out := make([]string, 0, len(r.Errs))
	for _, err := range r.Errs {
		out = append(out, err.Error())
	}
	return out
}

// Apply drains next in chunks of at most size items and feeds each chunk to
// apply. next is expected to advance its own cursor; a chunk shorter than
// size ends iteration after it is processed. An error from apply marks every
// item of that chunk as errored and processing continues with the next chunk.
// An error from next ends iteration, since the cursor cannot advance past it.
func Apply[T any](
	ctx context.Context,
	size int,
	next func(ctx context.Context, limit int) ([]T, error),
	apply func(ctx context.Context, items []T) (affected, errored int, err error),
) *Result {
	res := &Result{}
	if size <= 0 {
		size = 500
	}

	for {
		if err := ctx.Err(); err != nil {
			res.addErr(err)
			return res
		}

		items, err := next(ctx, size)
		if err != nil {
			res.FailedChunks++
			res.addErr(fmt.Errorf("fetch chunk: %w", err))
			return res
		}
		if len(items) == 0 {
			return res
		}

		res.Processed += len(items)
		affected, errored, err := apply(ctx, items)
		if err != nil {
			res.FailedChunks++
			res.Errored += len(items)
			res.addErr(err)
		} else {
			res.Affected += affected
			res.Errored += errored
		}

		if len(items) < size {
			return res
		}
	}
}
