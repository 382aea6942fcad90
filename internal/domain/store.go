package domain

import "context"

// InsertOutcome is the per-row result of a conflict-tolerant write.
type InsertOutcome int

const (
	// OutcomeStored means a new row was written.
	OutcomeStored InsertOutcome = iota
	// OutcomeDuplicate means the row already existed and was left untouched.
	OutcomeDuplicate
)

func (o InsertOutcome) String() string {
	if o == OutcomeDuplicate {
		return "duplicate"
	}
	return "stored"
}

// Store persists the five entity kinds.
//
// Author, Guild, and Channel writes are insert-or-update: re-observing an
// entity refreshes its mutable columns (last write wins). Message and
// Attachment writes are insert-or-ignore: a duplicate id is a no-op, which is
// what lets the live ingestor and backfills safely re-cover the same ground.
type Store interface {
	UpsertAuthor(ctx context.Context, a Author) error
	UpsertGuild(ctx context.Context, g Guild) error
	UpsertChannel(ctx context.Context, c Channel) error
	InsertMessage(ctx context.Context, m Message) (InsertOutcome, error)
	// InsertAttachments writes the message's attachments one by one and
	// returns how many were newly stored. A failed attachment is logged and
	// skipped rather than aborting its siblings.
	InsertAttachments(ctx context.Context, m Message) (int, error)
	Close() error
}
