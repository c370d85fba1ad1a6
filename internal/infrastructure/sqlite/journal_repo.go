package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cloudrig/CloudRIG/internal/domain"
)

// timeLayout is fixed-width so recorded_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// JournalRepo implements [domain.GenerationJournal] backed by SQLite.
type JournalRepo struct {
	DB *sql.DB
}

func (r *JournalRepo) Append(ctx context.Context, e domain.JournalEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO generation_journal (id, deployment_id, image_id, instance_id, event, run_id, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Deployment), string(e.Image), string(e.Instance),
		string(e.Event), e.RunID, e.At.UTC().Format(timeLayout),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("journal entry %q: %w", e.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

func (r *JournalRepo) List(ctx context.Context, deployment domain.DeploymentID) ([]domain.JournalEntry, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, deployment_id, image_id, instance_id, event, run_id, recorded_at
		 FROM generation_journal WHERE deployment_id = ?
		 ORDER BY recorded_at, rowid`,
		string(deployment),
	)
	if err != nil {
		return nil, fmt.Errorf("list journal entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.JournalEntry
	for rows.Next() {
		e, err := scanJournalEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanJournalEntry(s scanner) (domain.JournalEntry, error) {
	var e domain.JournalEntry
	var dep, image, instance, event, at string
	if err := s.Scan(&e.ID, &dep, &image, &instance, &event, &e.RunID, &at); err != nil {
		return e, fmt.Errorf("scan journal entry: %w", err)
	}
	e.Deployment = domain.DeploymentID(dep)
	e.Image = domain.ImageID(image)
	e.Instance = domain.InstanceID(instance)
	e.Event = domain.JournalEvent(event)
	t, err := time.Parse(timeLayout, at)
	if err != nil {
		return e, fmt.Errorf("parse recorded_at: %w", err)
	}
	e.At = t
	return e, nil
}
