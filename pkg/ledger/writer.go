package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// InsertTransactions appends transactions to the log. Rows whose
// (source, transaction_ref) identity already exists are skipped, which makes
// re-running an ingestion over overlapping data safe. Returns (inserted,
// skipped) counts.
func InsertTransactions(ctx context.Context, db bun.IDB, txns []*RawTransaction) (int, int, error) {
	if len(txns) == 0 {
		return 0, 0, nil
	}

	for _, t := range txns {
		if t.ID == uuid.Nil {
			t.ID = uuid.New()
		}
	}

	res, err := db.NewInsert().
		Model(&txns).
		On("CONFLICT (source, transaction_ref) WHERE transaction_ref IS NOT NULL DO NOTHING").
		Exec(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("error writing transactions to sql: %w", err)
	}

	inserted64, err := res.RowsAffected()
	if err != nil {
		return 0, 0, err
	}

	inserted := int(inserted64)

	return inserted, len(txns) - inserted, nil
}
