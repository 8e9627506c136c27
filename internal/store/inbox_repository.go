/**
 * @description
 * PostgreSQL implementation of the event inbox. The inbox deduplicates
 * at-least-once message delivery: the first sight of an event id claims a
 * "received" row, and a processed row refuses re-admission. The advance to
 * "processed" happens inside the same transaction that applies the message's
 * balance deltas (see ApplyPostings), so a row left in "received" or "failed"
 * (crash mid-processing) is re-admitted with no deltas applied yet.
 *
 * @dependencies
 * - context, log, time: Standard Go libraries.
 */

package store

import (
	"context"
	"log"
	"time"

	"github.com/veltabank/account-service/internal/domain"
)

// TryBegin records first sight of an event id and reports whether the caller
// may process it. A blank id always returns true: without an id no dedup is
// possible, which is a documented risk rather than an error.
func (r *PostgresRepository) TryBegin(ctx context.Context, eventID, eventType string) (bool, error) {
	if eventID == "" {
		return true, nil
	}

	query := `
		INSERT INTO inbox_events (event_id, event_type, status, received_at)
		VALUES ($1, $2, $3, $4)
	`
	inserted, err := claimRow(ctx, r.db, query, eventID, eventType, domain.InboxStatusReceived, time.Now().UTC())
	if err != nil {
		return false, err
	}
	if inserted {
		return true, nil
	}

	// Row already exists: admit it again only if it never finished processing.
	var status string
	err = r.db.QueryRow(ctx, "SELECT status FROM inbox_events WHERE event_id = $1", eventID).Scan(&status)
	if err != nil {
		return false, err
	}
	return status != domain.InboxStatusProcessed, nil
}

// MarkFailedSafe records a processing failure. It deliberately swallows its own
// errors: a secondary failure while recording the failure must never mask the
// original processing error the caller is about to report.
func (r *PostgresRepository) MarkFailedSafe(ctx context.Context, eventID, eventType, errMsg string) {
	if eventID == "" {
		return
	}
	query := `
		INSERT INTO inbox_events (event_id, event_type, status, error, received_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_id) DO UPDATE SET status = $3, error = $4
	`
	if _, err := r.db.Exec(ctx, query, eventID, eventType, domain.InboxStatusFailed, errMsg, time.Now().UTC()); err != nil {
		log.Printf("level=warn component=inbox_store msg=\"failed to record inbox failure\" event_id=%s err=%v", eventID, err)
	}
}

// PurgeProcessedBefore removes processed inbox rows older than the cutoff.
// Used by the scheduled retention job.
func (r *PostgresRepository) PurgeProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		"DELETE FROM inbox_events WHERE status = $1 AND processed_at < $2",
		domain.InboxStatusProcessed, cutoff,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
