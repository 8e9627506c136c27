/**
 * @description
 * This file contains the handler for ledger posting events delivered over the
 * message broker. Delivery is at-least-once, so the handler funnels every
 * message through the inbox before applying its balance deltas: a duplicate
 * event id is acknowledged without effect, and a message that fails mid-apply
 * leaves its inbox row unprocessed so redelivery retries it.
 *
 * The handler returns true to acknowledge the message and false to reject it
 * for requeueing.
 *
 * @dependencies
 * - context, encoding/json, log, time: Standard Go libraries.
 * - internal/domain, internal/store: For event payloads and data access.
 */

package app

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/veltabank/account-service/internal/domain"
	"github.com/veltabank/account-service/internal/store"
)

const ledgerPostedEventType = "ledger.journal.posted"

// LedgerPostedConsumer applies externally confirmed ledger postings to local
// balances, exactly once per event id.
type LedgerPostedConsumer struct {
	inbox    store.InboxRepository
	balances store.BalanceRepository
}

// NewLedgerPostedConsumer creates a new consumer instance.
func NewLedgerPostedConsumer(inbox store.InboxRepository, balances store.BalanceRepository) *LedgerPostedConsumer {
	return &LedgerPostedConsumer{inbox: inbox, balances: balances}
}

// HandleMessage processes one delivery. Malformed payloads are acknowledged
// so they cannot poison the queue.
func (c *LedgerPostedConsumer) HandleMessage(body []byte) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var event domain.LedgerPostedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("level=error component=ledger_consumer msg=\"failed to unmarshal posting event\" err=%v", err)
		return true
	}

	// 1. Admit through the inbox. False means this event id already ran to
	// completion.
	canProcess, err := c.inbox.TryBegin(ctx, event.EventID, ledgerPostedEventType)
	if err != nil {
		log.Printf("level=error component=ledger_consumer msg=\"inbox admission failed\" event_id=%s err=%v", event.EventID, err)
		c.inbox.MarkFailedSafe(ctx, event.EventID, ledgerPostedEventType, err.Error())
		return false
	}
	if !canProcess {
		log.Printf("level=info component=ledger_consumer msg=\"duplicate event skipped\" event_id=%s", event.EventID)
		return true
	}

	// 2. Apply all postings of the message and seal the inbox row in one
	// transaction. Either the deltas land and the event id is marked
	// processed, or nothing happened and redelivery retries the whole
	// message; there is no window where the deltas committed but the seal
	// did not.
	if err := c.balances.ApplyPostings(ctx, event.EventID, event.Postings); err != nil {
		log.Printf("level=error component=ledger_consumer msg=\"failed to apply postings\" event_id=%s err=%v", event.EventID, err)
		c.inbox.MarkFailedSafe(ctx, event.EventID, ledgerPostedEventType, err.Error())
		return false
	}

	if event.EventID == "" {
		log.Printf("level=warn component=ledger_consumer msg=\"event without id processed undeduplicated\" postings=%d", len(event.Postings))
		return true
	}

	log.Printf("level=info component=ledger_consumer msg=\"postings applied\" event_id=%s postings=%d", event.EventID, len(event.Postings))
	return true
}
