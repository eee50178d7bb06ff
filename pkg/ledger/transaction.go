// Package ledger owns the immutable transaction log and the derived tables the
// dedup pipeline writes. raw_transaction rows are append-only: corrections are
// new rows, never edits, and nothing in this package issues an UPDATE against it.
package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// RawTransaction is one observation of a real-world transaction by one source.
// The same purchase can appear several times across sources (and re-imports);
// dedup groups sort that out downstream without touching these rows.
type RawTransaction struct {
	bun.BaseModel `bun:"table:raw_transaction"`

	ID          uuid.UUID `bun:",pk,type:uuid"`
	Source      string    `bun:",notnull"`
	Institution string    `bun:",notnull"`
	AccountRef  string    `bun:",notnull"`
	// Source-native id, used for idempotent inserts. Not every source has one
	// (CSV rows often don't), hence nullable.
	TransactionRef string          `bun:",nullzero"`
	PostedAt       time.Time       `bun:"type:date,notnull"`
	Amount         decimal.Decimal `bun:"type:numeric(14,2),notnull"`
	Currency       string          `bun:"type:char(3),notnull"`
	RawMerchant    string
	RawMemo        string `bun:",nullzero"`
	// Set when the source recorded the transaction as declined/failed. Such
	// rows never settled and are suppressed by the decline rule.
	DeclineReason string                 `bun:",nullzero"`
	RawData       map[string]interface{} `bun:"type:jsonb"`
	IngestedAt    time.Time              `bun:",nullzero,notnull,default:current_timestamp"`
}

// Match rule names, one per pipeline rule.
const (
	RuleSourceSuperseded      = "source_superseded"
	RuleDeclined              = "declined"
	RuleSameSourceDuplicate   = "same_source_duplicate"
	RuleCrossSourcePositional = "cross_source_positional"
)

// Confidence labels for dedup groups.
const (
	ConfidenceExact      = "exact"
	ConfidencePositional = "positional"
)

// DedupGroup records one dedup decision: which rule fired and which member is
// canonical. Groups are derived state — a reset-and-rerun deletes and rebuilds
// them wholesale, so they carry no hand-edited data.
type DedupGroup struct {
	bun.BaseModel `bun:"table:dedup_group"`

	ID uuid.UUID `bun:",pk,type:uuid"`
	// The preferred member's transaction id. For suppression groups (which
	// have no preferred member) this is the suppressed transaction itself.
	CanonicalID uuid.UUID `bun:"type:uuid,notnull"`
	MatchRule   string    `bun:",notnull"`
	Confidence  string    `bun:",notnull"`
	CreatedAt   time.Time `bun:",nullzero,notnull,default:current_timestamp"`
}

type DedupGroupMember struct {
	bun.BaseModel `bun:"table:dedup_group_member"`

	DedupGroupID     uuid.UUID `bun:",pk,type:uuid"`
	RawTransactionID uuid.UUID `bun:",pk,type:uuid"`
	IsPreferred      bool      `bun:",notnull"`
}
