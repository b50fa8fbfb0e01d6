package upload

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/volumetria/volumetria/internal/domain/records"
)

// memRepo is an in-memory Repository.
type memRepo struct {
	items map[uuid.UUID]*UploadStatus
}

func newMemRepo() *memRepo {
	return &memRepo{items: make(map[uuid.UUID]*UploadStatus)}
}

func (m *memRepo) Insert(_ context.Context, u *UploadStatus) error {
	cp := *u
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	m.items[u.ID] = &cp
	return nil
}

func (m *memRepo) GetByID(_ context.Context, id uuid.UUID) (*UploadStatus, error) {
	u, ok := m.items[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	cp := *u
	return &cp, nil
}

func (m *memRepo) Update(_ context.Context, u *UploadStatus) error {
	if _, ok := m.items[u.ID]; !ok {
		return fmt.Errorf("not found")
	}
	cp := *u
	cp.UpdatedAt = time.Now()
	m.items[u.ID] = &cp
	return nil
}

func (m *memRepo) ProcessingOlderThan(_ context.Context, cutoff time.Time) ([]*UploadStatus, error) {
	var out []*UploadStatus
	for _, u := range m.items {
		if u.Status == StatusProcessing && u.UpdatedAt.Before(cutoff) {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

type countBySelector map[string]int

func (c countBySelector) Count(_ context.Context, sel records.Selector) (int, error) {
	return c[sel.String()], nil
}

func TestStartFinishLifecycle(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, countBySelector{}, time.Minute, zerolog.Nop())

	id, err := svc.Start(context.Background(), "vol.xlsx", records.SourceStandard, "batch-1", 100)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	u, err := svc.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if u.Status != StatusProcessing || u.Processed != 100 || u.UploadBatch() != "batch-1" {
		t.Fatalf("unexpected initial state: %+v", u)
	}

	if err := svc.Finish(context.Background(), id, 95, 5, nil); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	u, _ = svc.Get(context.Background(), id)
	if u.Status != StatusCompleted || u.Inserted != 95 || u.Errored != 5 {
		t.Fatalf("unexpected final state: %+v", u)
	}
	if u.FinishedAt == nil {
		t.Error("finished upload must carry finished_at")
	}
}

func TestFinishWithError(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, countBySelector{}, time.Minute, zerolog.Nop())

	id, _ := svc.Start(context.Background(), "vol.xlsx", records.SourceStandard, "batch-1", 10)
	if err := svc.Finish(context.Background(), id, 0, 10, fmt.Errorf("insert blew up")); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	u, _ := svc.Get(context.Background(), id)
	if u.Status != StatusError {
		t.Fatalf("expected error status, got %s", u.Status)
	}
	if u.Details["error"] != "insert blew up" {
		t.Errorf("expected error detail, got %v", u.Details)
	}
}

func TestFinish_KeepsFirstTerminalOutcome(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, countBySelector{}, time.Minute, zerolog.Nop())

	id, _ := svc.Start(context.Background(), "vol.xlsx", records.SourceStandard, "batch-1", 10)
	if err := svc.Finish(context.Background(), id, 10, 0, nil); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	// A late duplicate Finish must not flip the row.
	if err := svc.Finish(context.Background(), id, 0, 10, fmt.Errorf("late failure")); err != nil {
		t.Fatalf("second Finish: %v", err)
	}
	u, _ := svc.Get(context.Background(), id)
	if u.Status != StatusCompleted || u.Inserted != 10 {
		t.Fatalf("expected first outcome kept, got %+v", u)
	}
	if _, ok := u.Details["error"]; ok {
		t.Error("late failure must not attach an error detail")
	}
}

func TestSweepStuck(t *testing.T) {
	repo := newMemRepo()
	counts := countBySelector{"padrao/landed": 42}
	svc := NewService(repo, counts, time.Minute, zerolog.Nop())

	landed, _ := svc.Start(context.Background(), "a.xlsx", records.SourceStandard, "landed", 50)
	lost, _ := svc.Start(context.Background(), "b.xlsx", records.SourceStandard, "lost", 50)
	fresh, _ := svc.Start(context.Background(), "c.xlsx", records.SourceStandard, "fresh", 50)

	// Age the first two rows past the timeout.
	for _, id := range []uuid.UUID{landed, lost} {
		repo.items[id].UpdatedAt = time.Now().Add(-2 * time.Minute)
	}

	swept, err := svc.SweepStuck(context.Background())
	if err != nil {
		t.Fatalf("SweepStuck: %v", err)
	}
	if swept != 2 {
		t.Fatalf("expected 2 reclassified, got %d", swept)
	}

	u, _ := svc.Get(context.Background(), landed)
	if u.Status != StatusCompleted || u.Inserted != 42 {
		t.Errorf("upload with landed records must complete: %+v", u)
	}
	u, _ = svc.Get(context.Background(), lost)
	if u.Status != StatusStuck {
		t.Errorf("upload without records must be stuck: %+v", u)
	}
	u, _ = svc.Get(context.Background(), fresh)
	if u.Status != StatusProcessing {
		t.Errorf("fresh upload must be untouched: %+v", u)
	}
}
