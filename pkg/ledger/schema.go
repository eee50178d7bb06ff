package ledger

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

// activeViewDDL is the one place the active-view contract lives: a transaction
// is active unless it is a non-preferred member of some dedup group. Downstream
// balance and report queries compose with this view instead of re-running rules.
const activeViewDDL = `
CREATE OR REPLACE VIEW active_transaction AS
SELECT rt.*
FROM raw_transaction rt
WHERE NOT EXISTS (
    SELECT 1 FROM dedup_group_member dgm
    WHERE dgm.raw_transaction_id = rt.id
      AND NOT dgm.is_preferred
)`

var schemaStatements = []string{
	// Idempotent-insert identity: one row per (source, source-native id).
	`CREATE UNIQUE INDEX IF NOT EXISTS raw_transaction_source_ref
		ON raw_transaction (source, transaction_ref)
		WHERE transaction_ref IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS raw_transaction_account
		ON raw_transaction (institution, account_ref, posted_at)`,
	// A transaction belongs to at most one group. The pipeline validates this
	// before committing; the index makes a logic bug fail loudly rather than
	// silently double-suppressing.
	`CREATE UNIQUE INDEX IF NOT EXISTS dedup_group_member_txn
		ON dedup_group_member (raw_transaction_id)`,
	`ALTER TABLE dedup_group_member
		DROP CONSTRAINT IF EXISTS dedup_group_member_group_fk`,
	`ALTER TABLE dedup_group_member
		ADD CONSTRAINT dedup_group_member_group_fk
		FOREIGN KEY (dedup_group_id) REFERENCES dedup_group (id) ON DELETE CASCADE`,
	activeViewDDL,
}

// EnsureSchema creates the ledger tables, indexes and the active_transaction
// view if they don't exist yet.
func EnsureSchema(ctx context.Context, db *bun.DB) error {
	models := []interface{}{
		(*RawTransaction)(nil),
		(*DedupGroup)(nil),
		(*DedupGroupMember)(nil),
	}

	for _, model := range models {
		_, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create table for %T: %w", model, err)
		}
	}

	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}

	return nil
}
