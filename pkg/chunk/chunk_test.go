package chunk

import (
	"context"
	"fmt"
	"testing"
)

// feed returns a next func that serves items from a slice in order.
func feed(items []int) func(ctx context.Context, limit int) ([]int, error) {
	pos := 0
	return func(_ context.Context, limit int) ([]int, error) {
		if pos >= len(items) {
			return nil, nil
		}
		end := pos + limit
		if end > len(items) {
			end = len(items)
		}
		out := items[pos:end]
		pos = end
		return out, nil
	}
}

func TestApply_ProcessesAllChunks(t *testing.T) {
	items := make([]int, 23)
	for i := range items {
		items[i] = i
	}

	var seen int
	res := Apply(context.Background(), 10, feed(items),
		func(_ context.Context, chunk []int) (int, int, error) {
			seen += len(chunk)
			return len(chunk), 0, nil
		})

	if seen != 23 {
		t.Errorf("expected 23 items seen, got %d", seen)
	}
	if res.Processed != 23 || res.Affected != 23 || res.Errored != 0 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestApply_ChunkFailureContinues(t *testing.T) {
	items := make([]int, 30)
	call := 0
	res := Apply(context.Background(), 10, feed(items),
		func(_ context.Context, chunk []int) (int, int, error) {
			call++
			if call == 2 {
				return 0, 0, fmt.Errorf("transient failure")
			}
			return len(chunk), 0, nil
		})

	if call != 3 {
		t.Errorf("expected 3 chunks attempted, got %d", call)
	}
	if res.FailedChunks != 1 {
		t.Errorf("expected 1 failed chunk, got %d", res.FailedChunks)
	}
	if res.Affected != 20 {
		t.Errorf("expected 20 affected, got %d", res.Affected)
	}
	if res.Errored != 10 {
		t.Errorf("expected 10 errored, got %d", res.Errored)
	}
	if len(res.Errs) != 1 {
		t.Errorf("expected 1 retained error, got %d", len(res.Errs))
	}
}

func TestApply_RowErrorsAccumulate(t *testing.T) {
	items := make([]int, 15)
	res := Apply(context.Background(), 10, feed(items),
		func(_ context.Context, chunk []int) (int, int, error) {
			return len(chunk) - 1, 1, nil
		})

	if res.Affected != 13 || res.Errored != 2 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestApply_FetchErrorStops(t *testing.T) {
	res := Apply(context.Background(), 10,
		func(_ context.Context, _ int) ([]int, error) {
			return nil, fmt.Errorf("connection reset")
		},
		func(_ context.Context, chunk []int) (int, int, error) {
			t.Fatal("apply should not run when fetch fails")
			return 0, 0, nil
		})

	if res.FailedChunks != 1 || len(res.Errs) != 1 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestApply_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := Apply(ctx, 10, feed(make([]int, 100)),
		func(_ context.Context, chunk []int) (int, int, error) {
			return len(chunk), 0, nil
		})

	if res.Processed != 0 {
		t.Errorf("expected no processing after cancel, got %d", res.Processed)
	}
	if len(res.Errs) == 0 {
		t.Error("expected cancellation error retained")
	}
}
