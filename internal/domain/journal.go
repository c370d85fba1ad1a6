package domain

import (
	"context"
	"log/slog"
	"time"
)

func recordActivity(name string, journal GenerationJournal, log *slog.Logger, now func() time.Time) Activity[JournalEntry, struct{}] {
	return NewActivity(name, func(ctx context.Context, e JournalEntry) (struct{}, error) {
		if journal == nil {
			return struct{}{}, nil
		}
		if e.At.IsZero() {
			e.At = now()
		}
		// The journal is an audit trail; losing an entry must not fail
		// the lifecycle step that produced it.
		if err := journal.Append(ctx, e); err != nil {
			loggerOrDefault(log).Warn("journal append failed", "event", e.Event, "image_id", e.Image, "error", err)
		}
		return struct{}{}, nil
	})
}

// record runs the journal activity and discards its result.
func record(runner DurableRunner, activity Activity[JournalEntry, struct{}], e JournalEntry) {
	e.RunID = runner.ID()
	_, _ = RunActivity(runner, activity, e)
}

func nowOrDefault(now func() time.Time) func() time.Time {
	if now != nil {
		return now
	}
	return time.Now
}
