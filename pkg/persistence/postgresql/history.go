package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/machshop/approvalflow/pkg/events"
)

// HistoryRepository is the append-only audit event store.
type HistoryRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *HistoryRepository) Append(ctx context.Context, event *events.HistoryEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	query := `
		INSERT INTO approval_history (id, instance_id, event_type, stage_number, assignment_id, actor, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = r.db.ExecContext(ctx, query,
		event.ID,
		event.InstanceID,
		event.Type,
		event.StageNumber,
		event.AssignmentID,
		event.Actor,
		payload,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append history event: %w", err)
	}

	return nil
}

func (r *HistoryRepository) ListByInstance(ctx context.Context, instanceID string) ([]*events.HistoryEvent, error) {
	query := `
		SELECT id, instance_id, event_type, stage_number, assignment_id, actor, payload, created_at
		FROM approval_history
		WHERE instance_id = $1
		ORDER BY created_at, id
	`

	rows, err := r.db.QueryContext(ctx, query, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	list := make([]*events.HistoryEvent, 0)

	for rows.Next() {
		var (
			event        events.HistoryEvent
			stageNumber  sql.NullInt64
			assignmentID sql.NullString
			actor        sql.NullString
			payload      []byte
		)

		err := rows.Scan(
			&event.ID,
			&event.InstanceID,
			&event.Type,
			&stageNumber,
			&assignmentID,
			&actor,
			&payload,
			&event.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history event: %w", err)
		}

		if stageNumber.Valid {
			n := int(stageNumber.Int64)
			event.StageNumber = &n
		}

		event.AssignmentID = assignmentID.String
		event.Actor = actor.String

		if payload != nil {
			if err := json.Unmarshal(payload, &event.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event payload: %w", err)
			}
		}

		list = append(list, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}

	return list, nil
}
