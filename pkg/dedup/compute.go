package dedup

import (
	"bytes"
	"sort"

	"github.com/nonatech-uk/finance/internal/config"
	"github.com/nonatech-uk/finance/pkg/ledger"
)

// computeGroups runs the four rules in their fixed order over an in-memory
// slice of the log and returns the groups a run would create. It is a pure
// function of (config, transactions), which is what makes re-runs reproducible:
// the pipeline persists its output only after validation, inside one
// transaction with the scope reset.
//
// Rule order matters. Supersession and decline suppression go first so blanket-
// and declined-suppressed records never participate in content matching; the
// same-source rule then consolidates re-imports so the cross-source matcher
// sees one record per real transaction per source.
func computeGroups(cfg *config.DedupConfig, txns []ledger.RawTransaction) []Group {
	ordered := make([]ledger.RawTransaction, len(txns))
	copy(ordered, txns)
	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].PostedAt.Equal(ordered[j].PostedAt) {
			return ordered[i].PostedAt.Before(ordered[j].PostedAt)
		}

		return txnBefore(ordered[i], ordered[j])
	})

	claimed := claimSet{}

	groups := applySupersession(cfg, ordered, claimed)
	groups = append(groups, applyDeclined(ordered, claimed)...)
	groups = append(groups, applySameSource(ordered, claimed)...)
	groups = append(groups, applyCrossSource(cfg, ordered, claimed)...)

	return groups
}

// txnBefore is the stable tiebreak used everywhere a rule needs an order:
// ingestion timestamp first, transaction id as the final word so two records
// ingested in the same batch still sort deterministically.
func txnBefore(a, b ledger.RawTransaction) bool {
	if !a.IngestedAt.Equal(b.IngestedAt) {
		return a.IngestedAt.Before(b.IngestedAt)
	}

	return bytes.Compare(a.ID[:], b.ID[:]) < 0
}
