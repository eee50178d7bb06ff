package dedup

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"k8s.io/klog"

	"github.com/nonatech-uk/finance/internal/config"
	"github.com/nonatech-uk/finance/pkg/ledger"
)

// Scope limits a run to a slice of the log. Zero values mean unlimited; the
// daily batch runs with an empty scope over the whole log.
type Scope struct {
	Institution string
	AccountRef  string
	From        time.Time
	To          time.Time // exclusive
}

func (s Scope) String() string {
	if s.Institution == "" && s.AccountRef == "" && s.From.IsZero() && s.To.IsZero() {
		return "all"
	}

	desc := ""

	if s.Institution != "" {
		desc += s.Institution
	}

	if s.AccountRef != "" {
		desc += "/" + s.AccountRef
	}

	if !s.From.IsZero() || !s.To.IsZero() {
		desc += fmt.Sprintf(" [%s, %s)", s.From.Format("2006-01-02"), s.To.Format("2006-01-02"))
	}

	return desc
}

type Pipeline struct {
	db  *bun.DB
	cfg *config.DedupConfig
}

func New(db *bun.DB, cfg *config.DedupConfig) *Pipeline {
	return &Pipeline{db: db, cfg: cfg}
}

type RunResult struct {
	Scope               Scope
	DryRun              bool
	Transactions        int
	GroupsCreated       int
	TransactionsGrouped int
	GroupsByRule        map[string]int
	MembersByRule       map[string]int
}

// Run executes the full rule pipeline over the scope. The reset and rebuild
// happen inside one database transaction, so an abort anywhere before commit
// leaves the previous group set untouched — a run either fully happens or
// didn't. Running twice over unchanged input produces an identical group set.
func (p *Pipeline) Run(ctx context.Context, scope Scope, dryRun bool) (*RunResult, error) {
	txns, err := p.fetchTransactions(ctx, scope)
	if err != nil {
		return nil, err
	}

	groups := computeGroups(p.cfg, txns)

	if err := validateGroups(groups); err != nil {
		return nil, err
	}

	result := summarize(scope, dryRun, len(txns), groups)

	if dryRun {
		return result, nil
	}

	err = p.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		deleted, err := resetScope(ctx, tx, p.cfg, scope)
		if err != nil {
			return err
		}

		if deleted > 0 {
			klog.Infof("reset %d dedup groups in scope %s", deleted, scope)
		}

		return insertGroups(ctx, tx, groups)
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Reset deletes all groups whose members fall within scope, without rebuilding.
func (p *Pipeline) Reset(ctx context.Context, scope Scope) (int64, error) {
	var deleted int64

	err := p.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var err error
		deleted, err = resetScope(ctx, tx, p.cfg, scope)

		return err
	})

	return deleted, err
}

func (p *Pipeline) fetchTransactions(ctx context.Context, scope Scope) ([]ledger.RawTransaction, error) {
	var txns []ledger.RawTransaction

	q := p.db.NewSelect().Model(&txns)
	q = applyScope(p.cfg, q, scope, "raw_transaction")

	err := q.Order("posted_at", "ingested_at", "id").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions for scope %s: %w", scope, err)
	}

	return txns, nil
}

func applyScope(cfg *config.DedupConfig, q *bun.SelectQuery, scope Scope, table string) *bun.SelectQuery {
	if scope.Institution != "" {
		q = q.Where("?.institution = ?", bun.Ident(table), scope.Institution)
	}

	if scope.AccountRef != "" {
		refs := []string{scope.AccountRef}
		if scope.Institution != "" {
			refs = cfg.RefGroup(scope.Institution, scope.AccountRef)
		}

		q = q.Where("?.account_ref IN (?)", bun.Ident(table), bun.In(refs))
	}

	if !scope.From.IsZero() {
		q = q.Where("?.posted_at >= ?", bun.Ident(table), scope.From)
	}

	if !scope.To.IsZero() {
		q = q.Where("?.posted_at < ?", bun.Ident(table), scope.To)
	}

	return q
}

// resetScope deletes every group with a member inside scope. Members cascade
// with their group.
func resetScope(ctx context.Context, tx bun.Tx, cfg *config.DedupConfig, scope Scope) (int64, error) {
	sub := tx.NewSelect().
		ColumnExpr("dgm.dedup_group_id").
		TableExpr("dedup_group_member AS dgm").
		Join("JOIN raw_transaction AS rt ON rt.id = dgm.raw_transaction_id")
	sub = applyScope(cfg, sub, scope, "rt")

	res, err := tx.NewDelete().
		Model((*ledger.DedupGroup)(nil)).
		Where("id IN (?)", sub).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to reset dedup groups: %w", err)
	}

	return res.RowsAffected()
}

func insertGroups(ctx context.Context, tx bun.Tx, groups []Group) error {
	if len(groups) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([]ledger.DedupGroup, 0, len(groups))

	var members []ledger.DedupGroupMember

	for _, g := range groups {
		groupID := uuid.New()
		rows = append(rows, ledger.DedupGroup{
			ID:          groupID,
			CanonicalID: g.CanonicalID(),
			MatchRule:   g.Rule,
			Confidence:  g.Confidence,
			CreatedAt:   now,
		})

		for _, m := range g.Members {
			members = append(members, ledger.DedupGroupMember{
				DedupGroupID:     groupID,
				RawTransactionID: m.TransactionID,
				IsPreferred:      m.Preferred,
			})
		}
	}

	if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert dedup groups: %w", err)
	}

	if _, err := tx.NewInsert().Model(&members).Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert dedup group members: %w", err)
	}

	return nil
}

func summarize(scope Scope, dryRun bool, transactions int, groups []Group) *RunResult {
	result := &RunResult{
		Scope:         scope,
		DryRun:        dryRun,
		Transactions:  transactions,
		GroupsCreated: len(groups),
		GroupsByRule:  map[string]int{},
		MembersByRule: map[string]int{},
	}

	for _, g := range groups {
		result.GroupsByRule[g.Rule]++
		result.MembersByRule[g.Rule] += len(g.Members)
		result.TransactionsGrouped += len(g.Members)
	}

	return result
}
