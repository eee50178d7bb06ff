// Package dedup decides, given multiple independently-sourced records of what
// may be the same real-world transaction, which records are authoritative and
// which are suppressed duplicates. It never mutates the transaction log: every
// decision is a dedup_group row, and a reset-and-rerun rebuilds them all.
package dedup

import (
	"github.com/google/uuid"

	"github.com/nonatech-uk/finance/pkg/ledger"
)

// Group is a proposed dedup group, computed in memory before anything is
// persisted. Suppression rules (source_superseded, declined) produce singleton
// groups with no preferred member; matching rules produce multi-member groups
// with exactly one.
type Group struct {
	Rule       string
	Confidence string
	Members    []Member
}

type Member struct {
	TransactionID uuid.UUID
	Preferred     bool
}

// CanonicalID is the preferred member's transaction id, or the sole member for
// suppression groups.
func (g Group) CanonicalID() uuid.UUID {
	for _, m := range g.Members {
		if m.Preferred {
			return m.TransactionID
		}
	}

	return g.Members[0].TransactionID
}

// claimSet tracks transactions already grouped in this run. Rules run in a
// fixed order and each one consults the set before offering a transaction as a
// candidate; this includes transactions claimed as PREFERRED members, not just
// suppressed ones. Filtering only non-preferred members is exactly the bug that
// leaves legitimate cross-source pairs silently unmatched.
type claimSet map[uuid.UUID]struct{}

func (c claimSet) has(id uuid.UUID) bool {
	_, ok := c[id]
	return ok
}

func (c claimSet) claim(g Group) {
	for _, m := range g.Members {
		c[m.TransactionID] = struct{}{}
	}
}

func suppressionGroup(rule string, txID uuid.UUID) Group {
	return Group{
		Rule:       rule,
		Confidence: ledger.ConfidenceExact,
		Members:    []Member{{TransactionID: txID, Preferred: false}},
	}
}
