/**
 * @description
 * Cron scheduler setup for recurring maintenance jobs. The only job today is
 * the inbox purge, which trims processed dedup rows past their retention
 * window so the inbox table does not grow without bound.
 *
 * @dependencies
 * - context, log, time: Standard Go libraries.
 * - github.com/robfig/cron/v3: For cron job scheduling.
 * - internal/store: For inbox data access.
 */

package app

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/veltabank/account-service/internal/store"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron          *cron.Cron
	inbox         store.InboxRepository
	purgeSchedule string
	retention     time.Duration
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(inbox store.InboxRepository, purgeSchedule string, retention time.Duration) *Scheduler {
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	return &Scheduler{
		cron:          c,
		inbox:         inbox,
		purgeSchedule: purgeSchedule,
		retention:     retention,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.purgeSchedule, s.PurgeProcessedInbox); err != nil {
		log.Printf("level=error component=scheduler msg=\"failed to schedule inbox purge job\" err=%v", err)
	} else {
		log.Printf("level=info component=scheduler msg=\"scheduled inbox purge job\" schedule=%q retention=%s", s.purgeSchedule, s.retention)
	}
	s.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// PurgeProcessedInbox deletes processed inbox rows older than the retention
// window. Unprocessed and failed rows are kept for inspection.
func (s *Scheduler) PurgeProcessedInbox() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cutoff := time.Now().UTC().Add(-s.retention)
	purged, err := s.inbox.PurgeProcessedBefore(ctx, cutoff)
	if err != nil {
		log.Printf("level=error component=scheduler msg=\"inbox purge failed\" err=%v", err)
		return
	}
	log.Printf("level=info component=scheduler msg=\"inbox purge completed\" purged=%d cutoff=%s", purged, cutoff.Format(time.RFC3339))
}
