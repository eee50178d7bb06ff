package dedup

import (
	"sort"

	"github.com/nonatech-uk/finance/pkg/ledger"
)

type sameSourceKey struct {
	source      string
	institution string
	accountRef  string
	date        string
	amount      string
	currency    string
	merchant    string
}

// applySameSource collapses logical re-submissions within one source: a
// re-imported CSV produces byte-identical rows with fresh ids, which the
// ingestion layer's native-id check cannot catch. Rows sharing an exact
// (account, date, amount, currency, merchant) key are one group; the earliest
// ingestion wins.
func applySameSource(txns []ledger.RawTransaction, claimed claimSet) []Group {
	buckets := map[sameSourceKey][]ledger.RawTransaction{}

	var order []sameSourceKey

	for _, t := range txns {
		if claimed.has(t.ID) {
			continue
		}

		key := sameSourceKey{
			source:      t.Source,
			institution: t.Institution,
			accountRef:  t.AccountRef,
			date:        t.PostedAt.Format("2006-01-02"),
			amount:      t.Amount.StringFixed(2),
			currency:    t.Currency,
			merchant:    t.RawMerchant,
		}

		if _, seen := buckets[key]; !seen {
			order = append(order, key)
		}

		buckets[key] = append(buckets[key], t)
	}

	var groups []Group

	for _, key := range order {
		members := buckets[key]
		if len(members) < 2 {
			continue
		}

		sort.Slice(members, func(i, j int) bool { return txnBefore(members[i], members[j]) })

		g := Group{
			Rule:       ledger.RuleSameSourceDuplicate,
			Confidence: ledger.ConfidenceExact,
		}

		for i, m := range members {
			g.Members = append(g.Members, Member{TransactionID: m.ID, Preferred: i == 0})
		}

		claimed.claim(g)
		groups = append(groups, g)
	}

	return groups
}
