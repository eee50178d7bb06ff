package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ActiveFilter narrows an active-view query. Zero values mean "don't filter".
type ActiveFilter struct {
	Institution string
	AccountRef  string
	Currency    string
	From        time.Time
	To          time.Time // exclusive
}

// ActiveTransactions reads the deduplicated projection of the log. It queries
// the active_transaction view, so it never inspects group state itself.
func ActiveTransactions(ctx context.Context, db bun.IDB, filter ActiveFilter) ([]RawTransaction, error) {
	var txns []RawTransaction

	q := db.NewSelect().
		Model(&txns).
		ModelTableExpr("active_transaction AS raw_transaction")

	if filter.Institution != "" {
		q = q.Where("institution = ?", filter.Institution)
	}

	if filter.AccountRef != "" {
		q = q.Where("account_ref = ?", filter.AccountRef)
	}

	if filter.Currency != "" {
		q = q.Where("currency = ?", filter.Currency)
	}

	if !filter.From.IsZero() {
		q = q.Where("posted_at >= ?", filter.From)
	}

	if !filter.To.IsZero() {
		q = q.Where("posted_at < ?", filter.To)
	}

	err := q.Order("posted_at", "id").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query active transactions: %w", err)
	}

	return txns, nil
}

// GroupMemberDetail pairs a group member with its transaction for audit display.
type GroupMemberDetail struct {
	Transaction RawTransaction
	IsPreferred bool
}

type GroupDetail struct {
	Group   DedupGroup
	Members []GroupMemberDetail
}

// GroupFor looks up the dedup group a transaction belongs to, if any. Returns
// (nil, nil) for ungrouped transactions.
func GroupFor(ctx context.Context, db bun.IDB, txID uuid.UUID) (*GroupDetail, error) {
	var membership DedupGroupMember

	err := db.NewSelect().
		Model(&membership).
		Where("raw_transaction_id = ?", txID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to look up group membership: %w", err)
	}

	detail := GroupDetail{}

	err = db.NewSelect().
		Model(&detail.Group).
		Where("id = ?", membership.DedupGroupID).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load dedup group: %w", err)
	}

	var members []DedupGroupMember

	err = db.NewSelect().
		Model(&members).
		Where("dedup_group_id = ?", membership.DedupGroupID).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load group members: %w", err)
	}

	for _, m := range members {
		var txn RawTransaction

		err = db.NewSelect().Model(&txn).Where("id = ?", m.RawTransactionID).Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load member transaction: %w", err)
		}

		detail.Members = append(detail.Members, GroupMemberDetail{
			Transaction: txn,
			IsPreferred: m.IsPreferred,
		})
	}

	return &detail, nil
}
