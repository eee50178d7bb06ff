package dedup

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nonatech-uk/finance/internal/config"
	"github.com/nonatech-uk/finance/pkg/ledger"
)

func makeTxnMerchant(n byte, source, accountRef, date, amount, merchant string) ledger.RawTransaction {
	t := makeTxn(n, source, accountRef, date, amount)
	t.RawMerchant = merchant

	return t
}

func testConfig() *config.DedupConfig {
	return &config.DedupConfig{
		SourcePriority: map[string]int{
			"api":   1,
			"csv":   2,
			"ibank": 3,
		},
		Superseded: []config.SupersededAccount{
			{Institution: "testbank", AccountRef: "legacy", SupersededSource: "ibank"},
		},
		CrossSourcePairs: []config.CrossSourcePair{
			{Institution: "testbank", AccountRef: "acct", Pairs: [][2]string{{"api", "csv"}}},
		},
	}
}

// activeSet derives the active view the way the SQL view does: everything not
// present as a non-preferred group member.
func activeSet(txns []ledger.RawTransaction, groups []Group) map[uuid.UUID]ledger.RawTransaction {
	suppressed := map[uuid.UUID]bool{}

	for _, g := range groups {
		for _, m := range g.Members {
			if !m.Preferred {
				suppressed[m.TransactionID] = true
			}
		}
	}

	active := map[uuid.UUID]ledger.RawTransaction{}

	for _, t := range txns {
		if !suppressed[t.ID] {
			active[t.ID] = t
		}
	}

	return active
}

func activeSum(active map[uuid.UUID]ledger.RawTransaction) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range active {
		sum = sum.Add(t.Amount)
	}

	return sum
}

func groupsByRule(groups []Group, rule string) []Group {
	var out []Group

	for _, g := range groups {
		if g.Rule == rule {
			out = append(out, g)
		}
	}

	return out
}

func TestSupersessionSuppressesWithoutCounterpart(t *testing.T) {
	// 3 legacy-migration transactions (10, 20, 30), 2 CSV transactions
	// (10, 20). Supersession is blanket: all three legacy rows go, including
	// the 30.00 with no CSV counterpart. Active balance is 30.00, not 60.00.
	txns := []ledger.RawTransaction{
		makeTxn(1, "ibank", "legacy", "2024-03-01", "10.00"),
		makeTxn(2, "ibank", "legacy", "2024-03-02", "20.00"),
		makeTxn(3, "ibank", "legacy", "2024-03-03", "30.00"),
		makeTxn(4, "csv", "legacy", "2024-03-01", "10.00"),
		makeTxn(5, "csv", "legacy", "2024-03-02", "20.00"),
	}

	groups := computeGroups(testConfig(), txns)

	superseded := groupsByRule(groups, ledger.RuleSourceSuperseded)
	require.Len(t, superseded, 3)

	for _, g := range superseded {
		require.Len(t, g.Members, 1)
		assert.False(t, g.Members[0].Preferred)
		assert.Equal(t, ledger.ConfidenceExact, g.Confidence)
	}

	active := activeSet(txns, groups)
	require.Len(t, active, 2)
	assert.Contains(t, active, testID(4))
	assert.Contains(t, active, testID(5))
	assert.True(t, activeSum(active).Equal(decimal.RequireFromString("30.00")))
}

func TestDeclinedExcludedFromViewAndMatching(t *testing.T) {
	declined := makeTxn(1, "api", "acct", "2024-03-01", "12.00")
	declined.DeclineReason = "INSUFFICIENT_FUNDS"

	// Exact (date, amount, currency) counterpart on the other configured
	// source: it must NOT be paired with the declined attempt.
	counterpart := makeTxn(2, "csv", "acct", "2024-03-01", "12.00")

	txns := []ledger.RawTransaction{declined, counterpart}
	groups := computeGroups(testConfig(), txns)

	require.Len(t, groups, 1)
	assert.Equal(t, ledger.RuleDeclined, groups[0].Rule)
	assert.Equal(t, declined.ID, groups[0].Members[0].TransactionID)
	assert.False(t, groups[0].Members[0].Preferred)

	active := activeSet(txns, groups)
	assert.NotContains(t, active, declined.ID)
	assert.Contains(t, active, counterpart.ID)
}

func TestCrossSourcePositionalPairing(t *testing.T) {
	// Three same-day £4.50 purchases on the API side, two on the CSV side.
	txns := []ledger.RawTransaction{
		makeTxn(1, "api", "acct", "2024-03-01", "4.50"),
		makeTxn(2, "api", "acct", "2024-03-01", "4.50"),
		makeTxn(3, "api", "acct", "2024-03-01", "4.50"),
		makeTxn(4, "csv", "acct", "2024-03-01", "4.50"),
		makeTxn(5, "csv", "acct", "2024-03-01", "4.50"),
	}

	groups := computeGroups(testConfig(), txns)

	cross := groupsByRule(groups, ledger.RuleCrossSourcePositional)
	require.Len(t, cross, 2)
	assert.Len(t, groups, 2)

	// 1st occurrence with 1st, 2nd with 2nd; api wins preference.
	assert.Equal(t, testID(1), cross[0].Members[0].TransactionID)
	assert.Equal(t, testID(4), cross[0].Members[1].TransactionID)
	assert.Equal(t, testID(2), cross[1].Members[0].TransactionID)
	assert.Equal(t, testID(5), cross[1].Members[1].TransactionID)

	for _, g := range cross {
		assert.Equal(t, ledger.ConfidencePositional, g.Confidence)
		assert.True(t, g.Members[0].Preferred)
		assert.False(t, g.Members[1].Preferred)
	}

	// The surplus third API transaction stays ungrouped and active.
	active := activeSet(txns, groups)
	assert.Contains(t, active, testID(3))
}

func TestAlreadyClaimedExcludedFromMatching(t *testing.T) {
	// Two identical CSV rows (a re-imported export) collapse under the
	// same-source rule; the surviving row is a PREFERRED member. The
	// cross-source matcher must not re-offer it: its API counterpart stays
	// unmatched rather than being paired against the wrong record.
	dup1 := makeTxnMerchant(1, "csv", "acct", "2024-03-01", "4.50", "COFFEE SHOP")
	dup2 := makeTxnMerchant(2, "csv", "acct", "2024-03-01", "4.50", "COFFEE SHOP")
	counterpart := makeTxn(3, "api", "acct", "2024-03-01", "4.50")

	txns := []ledger.RawTransaction{dup1, dup2, counterpart}
	groups := computeGroups(testConfig(), txns)

	require.Len(t, groups, 1)
	assert.Equal(t, ledger.RuleSameSourceDuplicate, groups[0].Rule)
	assert.Empty(t, groupsByRule(groups, ledger.RuleCrossSourcePositional))

	// Earliest ingestion preferred, the re-import suppressed.
	require.Len(t, groups[0].Members, 2)
	assert.Equal(t, dup1.ID, groups[0].Members[0].TransactionID)
	assert.True(t, groups[0].Members[0].Preferred)
	assert.Equal(t, dup2.ID, groups[0].Members[1].TransactionID)
	assert.False(t, groups[0].Members[1].Preferred)

	active := activeSet(txns, groups)
	assert.Contains(t, active, dup1.ID)
	assert.Contains(t, active, counterpart.ID)
	assert.NotContains(t, active, dup2.ID)
}

func TestPriorityDecidesPreferenceNotInsertionOrder(t *testing.T) {
	// CSV record ingested first and listed first; the API side still wins
	// because priority 1 beats priority 2.
	csvTxn := makeTxn(1, "csv", "acct", "2024-03-01", "7.00")
	apiTxn := makeTxn(2, "api", "acct", "2024-03-01", "7.00")

	groups := computeGroups(testConfig(), []ledger.RawTransaction{csvTxn, apiTxn})

	require.Len(t, groups, 1)

	for _, m := range groups[0].Members {
		if m.TransactionID == apiTxn.ID {
			assert.True(t, m.Preferred)
		} else {
			assert.False(t, m.Preferred)
		}
	}
}

func TestSameSourcePrefersEarliestIngested(t *testing.T) {
	later := makeTxnMerchant(9, "csv", "acct", "2024-03-01", "5.00", "SHOP")
	earlier := makeTxnMerchant(4, "csv", "acct", "2024-03-01", "5.00", "SHOP")

	groups := computeGroups(testConfig(), []ledger.RawTransaction{later, earlier})

	require.Len(t, groups, 1)
	assert.Equal(t, earlier.ID, groups[0].Members[0].TransactionID)
	assert.True(t, groups[0].Members[0].Preferred)
	assert.Equal(t, earlier.ID, groups[0].CanonicalID())
}

func TestPartitionInvariant(t *testing.T) {
	declined := makeTxn(6, "api", "acct", "2024-03-02", "3.00")
	declined.DeclineReason = "CARD_BLOCKED"

	txns := []ledger.RawTransaction{
		// superseded account
		makeTxn(1, "ibank", "legacy", "2024-03-01", "10.00"),
		// same-source duplicates
		makeTxnMerchant(2, "csv", "acct", "2024-03-01", "5.00", "SHOP"),
		makeTxnMerchant(3, "csv", "acct", "2024-03-01", "5.00", "SHOP"),
		// cross-source pair
		makeTxn(4, "api", "acct", "2024-03-03", "8.00"),
		makeTxn(5, "csv", "acct", "2024-03-03", "8.00"),
		declined,
		// ungrouped
		makeTxn(7, "api", "acct", "2024-03-04", "99.00"),
	}

	groups := computeGroups(testConfig(), txns)
	require.NoError(t, validateGroups(groups))

	seen := map[uuid.UUID]int{}

	for _, g := range groups {
		preferred := 0

		for _, m := range g.Members {
			seen[m.TransactionID]++

			if m.Preferred {
				preferred++
			}
		}

		switch g.Rule {
		case ledger.RuleSourceSuperseded, ledger.RuleDeclined:
			assert.Zero(t, preferred)
		default:
			assert.Equal(t, 1, preferred)
		}
	}

	for id, count := range seen {
		assert.Equal(t, 1, count, "transaction %s grouped more than once", id)
	}

	assert.NotContains(t, seen, testID(7))
}

func TestComputeIsDeterministic(t *testing.T) {
	txns := []ledger.RawTransaction{
		makeTxn(1, "ibank", "legacy", "2024-03-01", "10.00"),
		makeTxn(2, "api", "acct", "2024-03-01", "4.50"),
		makeTxn(3, "csv", "acct", "2024-03-01", "4.50"),
		makeTxn(4, "api", "acct", "2024-03-01", "4.50"),
		makeTxn(5, "csv", "acct", "2024-03-01", "4.50"),
	}

	first := computeGroups(testConfig(), txns)

	// Same input in reverse arrival order must produce the identical group set.
	reversed := make([]ledger.RawTransaction, 0, len(txns))
	for i := len(txns) - 1; i >= 0; i-- {
		reversed = append(reversed, txns[i])
	}

	second := computeGroups(testConfig(), reversed)

	assert.Equal(t, first, second)
}

func TestUnknownConfiguredAccountIsSkipped(t *testing.T) {
	cfg := testConfig()
	cfg.Superseded = append([]config.SupersededAccount{
		{Institution: "testbank", AccountRef: "no_such_account", SupersededSource: "ibank"},
	}, cfg.Superseded...)

	txns := []ledger.RawTransaction{
		makeTxn(1, "ibank", "legacy", "2024-03-01", "10.00"),
	}

	// The misconfigured entry is skipped; the valid one still fires.
	groups := computeGroups(cfg, txns)
	require.Len(t, groups, 1)
	assert.Equal(t, ledger.RuleSourceSuperseded, groups[0].Rule)
}

func TestAccountAliasesJoinRefs(t *testing.T) {
	cfg := testConfig()
	cfg.AccountAliases = []config.AccountAlias{
		{Institution: "testbank", AccountRef: "acct_old", CanonicalRef: "acct"},
	}

	// The API record sits under an aliased spelling of the same account.
	txns := []ledger.RawTransaction{
		makeTxn(1, "api", "acct_old", "2024-03-01", "4.50"),
		makeTxn(2, "csv", "acct", "2024-03-01", "4.50"),
	}

	groups := computeGroups(cfg, txns)

	cross := groupsByRule(groups, ledger.RuleCrossSourcePositional)
	require.Len(t, cross, 1)
}
