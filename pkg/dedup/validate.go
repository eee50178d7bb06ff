package dedup

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nonatech-uk/finance/pkg/ledger"
)

// ErrIntegrity marks a rule-logic bug detected before commit: double-grouped
// transactions or a malformed preferred marking. A run that trips this aborts
// its transaction, leaving the previous group state intact — silently
// committing it would corrupt every downstream balance.
var ErrIntegrity = errors.New("dedup integrity violation")

func validateGroups(groups []Group) error {
	seen := map[uuid.UUID]struct{}{}

	for _, g := range groups {
		if len(g.Members) == 0 {
			return fmt.Errorf("%w: %s group has no members", ErrIntegrity, g.Rule)
		}

		preferred := 0

		for _, m := range g.Members {
			if _, dup := seen[m.TransactionID]; dup {
				return fmt.Errorf("%w: transaction %s grouped twice in one run", ErrIntegrity, m.TransactionID)
			}

			seen[m.TransactionID] = struct{}{}

			if m.Preferred {
				preferred++
			}
		}

		switch g.Rule {
		case ledger.RuleSourceSuperseded, ledger.RuleDeclined:
			// Suppression groups exist only to exclude their member: nothing
			// in them is preferred.
			if preferred != 0 {
				return fmt.Errorf("%w: %s group has a preferred member", ErrIntegrity, g.Rule)
			}
		default:
			if preferred != 1 {
				return fmt.Errorf("%w: %s group has %d preferred members, want 1", ErrIntegrity, g.Rule, preferred)
			}
		}
	}

	return nil
}
