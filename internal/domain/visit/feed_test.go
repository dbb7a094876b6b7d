package visit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func newTestFeed(t *testing.T) (*Feed, *MemoryRepo) {
	t.Helper()
	repo := NewMemoryRepo()
	views := NewViews(DefaultLookback)
	return NewFeed(repo, views, zerolog.Nop()), repo
}

func TestSubscribeDeliversInitialSnapshot(t *testing.T) {
	feed, repo := newTestFeed(t)
	ctx := context.Background()

	v := &Visit{PatientID: uuid.New(), Status: StatusReception}
	if err := repo.Create(ctx, v); err != nil {
		t.Fatalf("create: %v", err)
	}

	sub, initial, err := feed.Subscribe(ctx, StationReception)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	if len(initial) != 1 || initial[0].ID != v.ID {
		t.Fatalf("initial snapshot = %d entries, want the seeded visit", len(initial))
	}
}

func TestSubscribeUnknownStation(t *testing.T) {
	feed, _ := newTestFeed(t)
	if _, _, err := feed.Subscribe(context.Background(), Station("pharmacy")); err == nil {
		t.Fatal("expected error for unknown station")
	}
}

func TestPublishDeliversFullMatchingSet(t *testing.T) {
	feed, repo := newTestFeed(t)
	ctx := context.Background()

	sub, initial, err := feed.Subscribe(ctx, StationReception)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()
	if len(initial) != 0 {
		t.Fatalf("initial snapshot = %d entries, want empty", len(initial))
	}

	first := &Visit{PatientID: uuid.New(), Status: StatusReception}
	second := &Visit{PatientID: uuid.New(), Status: StatusReception}
	repo.Create(ctx, first)
	feed.Publish(ctx)
	repo.Create(ctx, second)
	feed.Publish(ctx)

	// Two publishes, one receiver that never drained: only the latest,
	// complete snapshot is waiting.
	select {
	case snapshot := <-sub.Updates():
		if len(snapshot) != 2 {
			t.Fatalf("snapshot = %d entries, want the full set of 2", len(snapshot))
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}

	select {
	case extra := <-sub.Updates():
		t.Fatalf("unexpected second snapshot with %d entries, superseded ones must be dropped", len(extra))
	default:
	}
}

func TestPublishOnlyMatchingVisits(t *testing.T) {
	feed, repo := newTestFeed(t)
	ctx := context.Background()

	sub, _, err := feed.Subscribe(ctx, StationTreatment)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	repo.Create(ctx, &Visit{PatientID: uuid.New(), Status: StatusReception})
	feed.Publish(ctx)

	select {
	case snapshot := <-sub.Updates():
		if len(snapshot) != 0 {
			t.Fatalf("treatment snapshot = %d entries, want empty", len(snapshot))
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}
}

func TestCloseReleasesSubscription(t *testing.T) {
	feed, _ := newTestFeed(t)
	ctx := context.Background()

	sub, _, err := feed.Subscribe(ctx, StationLab)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if got := feed.SubscriberCount(); got != 1 {
		t.Fatalf("SubscriberCount = %d, want 1", got)
	}

	sub.Close()
	sub.Close() // every exit path may close; must stay safe

	if got := feed.SubscriberCount(); got != 0 {
		t.Fatalf("SubscriberCount after close = %d, want 0", got)
	}
	if _, open := <-sub.Updates(); open {
		t.Fatal("Updates channel should be closed")
	}

	// Publishing after close must not panic or deliver.
	feed.Publish(ctx)
}

func TestPublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	feed, repo := newTestFeed(t)
	ctx := context.Background()

	slow, _, err := feed.Subscribe(ctx, StationReception)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer slow.Close()

	repo.Create(ctx, &Visit{PatientID: uuid.New(), Status: StatusReception})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			feed.Publish(ctx)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on an undrained subscriber")
	}
}
