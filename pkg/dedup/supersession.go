package dedup

import (
	"k8s.io/klog"

	"github.com/nonatech-uk/finance/internal/config"
	"github.com/nonatech-uk/finance/pkg/ledger"
)

// applySupersession blanket-suppresses every transaction from a superseded
// source on its configured account. No content match against the authoritative
// source is attempted: the authoritative side may have coverage gaps, and "no
// match found" must not default to "include it".
func applySupersession(cfg *config.DedupConfig, txns []ledger.RawTransaction, claimed claimSet) []Group {
	var groups []Group

	for _, entry := range cfg.Superseded {
		canonical := cfg.ResolveRef(entry.Institution, entry.AccountRef)
		accountSeen := false

		for _, t := range txns {
			if t.Institution != entry.Institution {
				continue
			}

			if cfg.ResolveRef(t.Institution, t.AccountRef) != canonical {
				continue
			}

			accountSeen = true

			if t.Source != entry.SupersededSource || claimed.has(t.ID) {
				continue
			}

			g := suppressionGroup(ledger.RuleSourceSuperseded, t.ID)
			claimed.claim(g)
			groups = append(groups, g)
		}

		// Configuration error, not fatal: skip this entry and keep going.
		if !accountSeen {
			klog.Warningf("supersession config references unknown account %s/%s, skipping", entry.Institution, entry.AccountRef)
		}
	}

	return groups
}
