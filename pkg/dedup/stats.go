package dedup

import (
	"context"
	"fmt"
	"io"

	"github.com/nonatech-uk/finance/pkg/ledger"
)

type Stats struct {
	Groups             int
	Members            int
	Preferred          int
	RawTransactions    int
	ActiveTransactions int
	ByRule             []RuleStats
	Overlaps           []OverlapStats
}

type RuleStats struct {
	Rule    string `bun:"rule"`
	Groups  int    `bun:"groups"`
	Members int    `bun:"members"`
}

// OverlapStats reports same-key cross-source records still co-existing in the
// active view — the signal that a pair is missing from the configuration (or
// that a matcher bug left pairs undeduped).
type OverlapStats struct {
	Institution string `bun:"institution"`
	AccountRef  string `bun:"account_ref"`
	SourceA     string `bun:"source_a"`
	SourceB     string `bun:"source_b"`
	Count       int    `bun:"count"`
}

func (p *Pipeline) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	var err error

	if stats.Groups, err = p.db.NewSelect().Model((*ledger.DedupGroup)(nil)).Count(ctx); err != nil {
		return nil, fmt.Errorf("failed to count dedup groups: %w", err)
	}

	if stats.Members, err = p.db.NewSelect().Model((*ledger.DedupGroupMember)(nil)).Count(ctx); err != nil {
		return nil, fmt.Errorf("failed to count group members: %w", err)
	}

	stats.Preferred, err = p.db.NewSelect().
		Model((*ledger.DedupGroupMember)(nil)).
		Where("is_preferred").
		Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count preferred members: %w", err)
	}

	if stats.RawTransactions, err = p.db.NewSelect().Model((*ledger.RawTransaction)(nil)).Count(ctx); err != nil {
		return nil, fmt.Errorf("failed to count raw transactions: %w", err)
	}

	if stats.ActiveTransactions, err = p.db.NewSelect().Table("active_transaction").Count(ctx); err != nil {
		return nil, fmt.Errorf("failed to count active transactions: %w", err)
	}

	err = p.db.NewRaw(`
		SELECT dg.match_rule AS rule,
		       count(DISTINCT dg.id) AS groups,
		       count(dgm.raw_transaction_id) AS members
		FROM dedup_group dg
		JOIN dedup_group_member dgm ON dgm.dedup_group_id = dg.id
		GROUP BY dg.match_rule
		ORDER BY dg.match_rule`).Scan(ctx, &stats.ByRule)
	if err != nil {
		return nil, fmt.Errorf("failed to load per-rule stats: %w", err)
	}

	err = p.db.NewRaw(`
		SELECT a.institution, a.account_ref,
		       a.source AS source_a, b.source AS source_b, count(*) AS count
		FROM active_transaction a
		JOIN active_transaction b
		  ON a.institution = b.institution
		  AND a.account_ref = b.account_ref
		  AND a.posted_at = b.posted_at
		  AND a.amount = b.amount
		  AND a.currency = b.currency
		  AND a.source < b.source
		  AND a.id != b.id
		GROUP BY a.institution, a.account_ref, a.source, b.source
		ORDER BY count(*) DESC
		LIMIT 10`).Scan(ctx, &stats.Overlaps)
	if err != nil {
		return nil, fmt.Errorf("failed to probe remaining overlaps: %w", err)
	}

	return stats, nil
}

// Report prints the operator-facing summary used for post-run verification.
func (s *Stats) Report(w io.Writer) {
	fmt.Fprintf(w, "  Dedup groups:      %d\n", s.Groups)
	fmt.Fprintf(w, "  Group members:     %d\n", s.Members)
	fmt.Fprintf(w, "  Preferred:         %d\n", s.Preferred)
	fmt.Fprintf(w, "  Raw transactions:  %d\n", s.RawTransactions)
	fmt.Fprintf(w, "  Active (deduped):  %d\n", s.ActiveTransactions)
	fmt.Fprintf(w, "  Removed by dedup:  %d\n", s.RawTransactions-s.ActiveTransactions)

	if len(s.ByRule) > 0 {
		fmt.Fprintf(w, "\n  By rule:\n")

		for _, r := range s.ByRule {
			fmt.Fprintf(w, "    %-30s %5d groups, %5d members\n", r.Rule, r.Groups, r.Members)
		}
	}

	if len(s.Overlaps) > 0 {
		fmt.Fprintf(w, "\n  Remaining cross-source overlaps in active view:\n")

		for _, o := range s.Overlaps {
			fmt.Fprintf(w, "    %-15s %-20s %s <-> %s: %d\n", o.Institution, o.AccountRef, o.SourceA, o.SourceB, o.Count)
		}
	} else {
		fmt.Fprintf(w, "\n  No remaining cross-source overlaps.\n")
	}
}
