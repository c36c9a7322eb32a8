package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/JakeFAU/scholarship-aggregator/internal/pipeline"
)

func TestRunStoreLifecycle(t *testing.T) {
	t.Parallel()

	store := NewRunStore(5)
	ctx := context.Background()

	run, err := store.Start(ctx, "run-1")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if run.Status != RunStatusRunning || run.StartedAt.IsZero() {
		t.Fatalf("unexpected started run %+v", run)
	}
	if _, err := store.Start(ctx, "run-2"); !errors.Is(err, ErrRunActive) {
		t.Fatalf("expected ErrRunActive, got %v", err)
	}
	active, ok := store.Active()
	if !ok || active.ID != "run-1" {
		t.Fatalf("Active() = %+v, %v", active, ok)
	}

	summary := pipeline.Summary{RunID: "run-1", Records: 7}
	if err := store.Finish(ctx, "run-1", summary, nil); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	final, err := store.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if final.Status != RunStatusSucceeded || final.FinishedAt == nil || final.Summary.Records != 7 {
		t.Fatalf("expected finished run, got %+v", final)
	}
	if _, ok := store.Active(); ok {
		t.Fatal("expected no active run after Finish")
	}

	if _, err := store.Start(ctx, "run-1"); err == nil {
		t.Fatal("expected duplicate run id error")
	}
	if _, err := store.Start(ctx, "run-2"); err != nil {
		t.Fatalf("Start() after finish error = %v", err)
	}
	if err := store.Finish(ctx, "run-2", pipeline.Summary{}, errors.New("persist snapshot: disk full")); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	failed, _ := store.Get(ctx, "run-2")
	if failed.Status != RunStatusFailed || failed.Error != "persist snapshot: disk full" {
		t.Fatalf("expected failed run, got %+v", failed)
	}

	runs := store.List(ctx)
	if len(runs) != 2 || runs[0].ID != "run-2" {
		t.Fatalf("List() = %+v", runs)
	}
}

func TestRunStoreUnknownRun(t *testing.T) {
	t.Parallel()

	store := NewRunStore(0)
	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("Get() error = %v", err)
	}
	if err := store.Finish(context.Background(), "nope", pipeline.Summary{}, nil); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("Finish() error = %v", err)
	}
}

func TestRunStoreEvictsOldest(t *testing.T) {
	t.Parallel()

	store := NewRunStore(2)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if _, err := store.Start(ctx, id); err != nil {
			t.Fatalf("Start(%s) error = %v", id, err)
		}
		if err := store.Finish(ctx, id, pipeline.Summary{RunID: id}, nil); err != nil {
			t.Fatalf("Finish(%s) error = %v", id, err)
		}
	}
	if _, err := store.Get(ctx, "a"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected a evicted, got %v", err)
	}
	if got := store.List(ctx); len(got) != 2 || got[0].ID != "c" || got[1].ID != "b" {
		t.Fatalf("List() = %+v", got)
	}
}
