package dedup

import (
	"sort"

	"github.com/nonatech-uk/finance/pkg/ledger"
)

type bucketKey struct {
	date     string
	amount   string
	currency string
}

type txnPair struct {
	a, b ledger.RawTransaction
}

// pairPositionally matches two sides positionally: both sides are bucketed by
// (date, amount, currency), ordered within the bucket by the stable tiebreak,
// and the i-th A record is paired with the i-th B record. Surplus on the longer
// side stays unmatched — three identical coffees against two is two pairs and
// one genuinely distinct transaction, not a forced match.
func pairPositionally(as, bs []ledger.RawTransaction) []txnPair {
	sideA, orderA := bucketByKey(as)
	sideB, _ := bucketByKey(bs)

	var pairs []txnPair

	for _, key := range orderA {
		bucketA := sideA[key]
		bucketB := sideB[key]

		if len(bucketB) == 0 {
			continue
		}

		sort.Slice(bucketA, func(i, j int) bool { return txnBefore(bucketA[i], bucketA[j]) })
		sort.Slice(bucketB, func(i, j int) bool { return txnBefore(bucketB[i], bucketB[j]) })

		n := len(bucketA)
		if len(bucketB) < n {
			n = len(bucketB)
		}

		for i := 0; i < n; i++ {
			pairs = append(pairs, txnPair{a: bucketA[i], b: bucketB[i]})
		}
	}

	return pairs
}

func bucketByKey(txns []ledger.RawTransaction) (map[bucketKey][]ledger.RawTransaction, []bucketKey) {
	buckets := map[bucketKey][]ledger.RawTransaction{}

	var order []bucketKey

	for _, t := range txns {
		// StringFixed so "4.5" and "4.50" land in the same bucket.
		key := bucketKey{
			date:     t.PostedAt.Format("2006-01-02"),
			amount:   t.Amount.StringFixed(2),
			currency: t.Currency,
		}

		if _, seen := buckets[key]; !seen {
			order = append(order, key)
		}

		buckets[key] = append(buckets[key], t)
	}

	return buckets, order
}
