// Package journaltest provides contract tests for
// [domain.GenerationJournal] implementations.
package journaltest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudrig/CloudRIG/internal/domain"
)

// Factory creates a fresh [domain.GenerationJournal] for each test.
type Factory func(t *testing.T) domain.GenerationJournal

// Run exercises the [domain.GenerationJournal] contract.
func Run(t *testing.T, factory Factory) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("AppendAndList", func(t *testing.T) {
		j := factory(t)
		ctx := context.Background()
		entry := domain.JournalEntry{
			ID:         "e1",
			Deployment: "stack-1",
			Image:      "ami-1",
			Instance:   "i-1",
			Event:      domain.JournalCaptured,
			RunID:      "run-1",
			At:         now,
		}

		if err := j.Append(ctx, entry); err != nil {
			t.Fatalf("Append: %v", err)
		}

		got, err := j.List(ctx, "stack-1")
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("List: got %d entries, want 1", len(got))
		}
		e := got[0]
		if e.ID != "e1" || e.Image != "ami-1" || e.Instance != "i-1" || e.RunID != "run-1" {
			t.Errorf("entry = %+v", e)
		}
		if e.Event != domain.JournalCaptured {
			t.Errorf("Event = %q, want %q", e.Event, domain.JournalCaptured)
		}
		if !e.At.Equal(now) {
			t.Errorf("At = %v, want %v", e.At, now)
		}
	})

	t.Run("AppendAssignsID", func(t *testing.T) {
		j := factory(t)
		ctx := context.Background()

		for i := 0; i < 2; i++ {
			if err := j.Append(ctx, domain.JournalEntry{
				Deployment: "stack-1", Image: "ami-1", Event: domain.JournalRetired, At: now,
			}); err != nil {
				t.Fatalf("Append: %v", err)
			}
		}

		got, _ := j.List(ctx, "stack-1")
		if len(got) != 2 {
			t.Fatalf("List: got %d, want 2", len(got))
		}
		if got[0].ID == "" || got[0].ID == got[1].ID {
			t.Errorf("IDs = %q, %q; want distinct non-empty", got[0].ID, got[1].ID)
		}
	})

	t.Run("AppendDuplicateID", func(t *testing.T) {
		j := factory(t)
		ctx := context.Background()
		entry := domain.JournalEntry{ID: "e1", Deployment: "stack-1", Event: domain.JournalPromoted, At: now}

		if err := j.Append(ctx, entry); err != nil {
			t.Fatalf("Append: %v", err)
		}
		err := j.Append(ctx, entry)
		if !errors.Is(err, domain.ErrAlreadyExists) {
			t.Fatalf("second Append: got %v, want ErrAlreadyExists", err)
		}
	})

	t.Run("ListOrdersByTime", func(t *testing.T) {
		j := factory(t)
		ctx := context.Background()

		_ = j.Append(ctx, domain.JournalEntry{ID: "late", Deployment: "stack-1", Event: domain.JournalPromoted, At: now.Add(time.Minute)})
		_ = j.Append(ctx, domain.JournalEntry{ID: "early", Deployment: "stack-1", Event: domain.JournalCaptured, At: now})

		got, err := j.List(ctx, "stack-1")
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 2 || got[0].ID != "early" || got[1].ID != "late" {
			t.Errorf("order = %+v", got)
		}
	})

	t.Run("ListFiltersByDeployment", func(t *testing.T) {
		j := factory(t)
		ctx := context.Background()

		_ = j.Append(ctx, domain.JournalEntry{Deployment: "stack-1", Event: domain.JournalCaptured, At: now})
		_ = j.Append(ctx, domain.JournalEntry{Deployment: "stack-2", Event: domain.JournalCaptured, At: now})

		got, err := j.List(ctx, "stack-2")
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 1 || got[0].Deployment != "stack-2" {
			t.Errorf("List = %+v", got)
		}
	})

	t.Run("ListEmpty", func(t *testing.T) {
		j := factory(t)
		got, err := j.List(context.Background(), "stack-1")
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("List = %+v, want empty", got)
		}
	})
}
