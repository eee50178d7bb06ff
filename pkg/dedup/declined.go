package dedup

import (
	"github.com/nonatech-uk/finance/pkg/ledger"
)

// applyDeclined suppresses transactions their source recorded as failed. These
// never settled, so they must not reach the active view or balance sums. This
// runs before the matching rules so a declined attempt can never be paired with
// its successful retry (or anything else) as a duplicate.
func applyDeclined(txns []ledger.RawTransaction, claimed claimSet) []Group {
	var groups []Group

	for _, t := range txns {
		if t.DeclineReason == "" || claimed.has(t.ID) {
			continue
		}

		g := suppressionGroup(ledger.RuleDeclined, t.ID)
		claimed.claim(g)
		groups = append(groups, g)
	}

	return groups
}
