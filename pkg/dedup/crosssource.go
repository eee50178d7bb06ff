package dedup

import (
	"k8s.io/klog"

	"github.com/nonatech-uk/finance/internal/config"
	"github.com/nonatech-uk/finance/pkg/ledger"
)

// applyCrossSource pairs records of the same transaction across two sources.
// Merchant strings differ across sources by construction (bank CSV text vs
// API text vs legacy free-text), so the match key is (date, amount, currency)
// and repeats within a key are disambiguated positionally.
//
// The candidate pool excludes every transaction already claimed this run —
// preferred members included. A transaction consolidated by the same-source
// rule has already been accounted for; re-offering it here would pair its
// counterpart with the wrong occurrence.
func applyCrossSource(cfg *config.DedupConfig, txns []ledger.RawTransaction, claimed claimSet) []Group {
	var groups []Group

	for _, entry := range cfg.CrossSourcePairs {
		canonical := cfg.ResolveRef(entry.Institution, entry.AccountRef)

		var account []ledger.RawTransaction

		for _, t := range txns {
			if t.Institution == entry.Institution && cfg.ResolveRef(t.Institution, t.AccountRef) == canonical {
				account = append(account, t)
			}
		}

		if len(account) == 0 {
			klog.Warningf("cross-source config references unknown account %s/%s, skipping", entry.Institution, entry.AccountRef)
			continue
		}

		for _, pair := range entry.Pairs {
			sourceA, sourceB := pair[0], pair[1]

			var as, bs []ledger.RawTransaction

			for _, t := range account {
				if claimed.has(t.ID) {
					continue
				}

				switch t.Source {
				case sourceA:
					as = append(as, t)
				case sourceB:
					bs = append(bs, t)
				}
			}

			for _, p := range pairPositionally(as, bs) {
				g := crossSourceGroup(cfg, p.a, p.b)
				claimed.claim(g)
				groups = append(groups, g)
			}
		}
	}

	return groups
}

func crossSourceGroup(cfg *config.DedupConfig, a, b ledger.RawTransaction) Group {
	aPreferred := cfg.Priority(a.Source) < cfg.Priority(b.Source)
	if cfg.Priority(a.Source) == cfg.Priority(b.Source) {
		aPreferred = txnBefore(a, b)
	}

	return Group{
		Rule:       ledger.RuleCrossSourcePositional,
		Confidence: ledger.ConfidencePositional,
		Members: []Member{
			{TransactionID: a.ID, Preferred: aPreferred},
			{TransactionID: b.ID, Preferred: !aPreferred},
		},
	}
}
