package csvingest

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectFormat(t *testing.T) {
	cases := []struct {
		header []string
		want   string
	}{
		{[]string{"Date", "Description", "Amount", "Balance"}, FormatFirstDirectA},
		{[]string{"Date", "Description", "Amount", "Reference"}, FormatFirstDirectB},
		{[]string{"AccountName", "AccountNumber", "TransactionDate", "Description", "Value", "AccountBalance"}, FormatMarcus},
		{[]string{"Transaction ID", "Date", "Time", "Type", "Name", "Amount", "Currency", "Money Out", "Money In"}, FormatMonzo},
		{[]string{"ID", "Status", "Direction", "Created on", "Finished on", "Source currency", "Target currency"}, FormatWise},
	}

	for _, c := range cases {
		format, err := DetectFormat(c.header)
		require.NoError(t, err)
		assert.Equal(t, c.want, format)
	}

	_, err := DetectFormat([]string{"Foo", "Bar"})
	assert.Error(t, err)
}

func rowFor(header, record []string) csvRow {
	return csvRow{record: record, headerMap: generateHeaderMap(header)}
}

func TestParseMonzoRow(t *testing.T) {
	header := []string{"Transaction ID", "Date", "Time", "Type", "Name", "Amount", "Currency", "Notes and #tags", "Description", "Money Out", "Money In"}

	txns, err := parseRow(FormatMonzo, rowFor(header, []string{
		"tx_0000AbCd", "15/03/2024", "09:12:44", "Card payment", "Pret A Manger", "-4.50", "GBP", "lunch", "PRET LONDON", "4.50", "",
	}), "monzo_current")
	require.NoError(t, err)
	require.Len(t, txns, 1)

	txn := txns[0]
	assert.Equal(t, "monzo_csv", txn.Source)
	assert.Equal(t, "monzo", txn.Institution)
	assert.Equal(t, "monzo_current", txn.AccountRef)
	assert.Equal(t, "tx_0000AbCd", txn.TransactionRef)
	assert.Equal(t, "2024-03-15", txn.PostedAt.Format("2006-01-02"))
	assert.True(t, txn.Amount.Equal(decimal.RequireFromString("-4.50")))
	assert.Equal(t, "GBP", txn.Currency)
	assert.Equal(t, "Pret A Manger", txn.RawMerchant)
	assert.Equal(t, "lunch", txn.RawMemo)
}

func TestParseMonzoRowMoneyIn(t *testing.T) {
	header := []string{"Transaction ID", "Date", "Time", "Type", "Name", "Amount", "Currency", "Money Out", "Money In"}

	txns, err := parseRow(FormatMonzo, rowFor(header, []string{
		"tx_0000AbCe", "01/03/2024", "10:00:00", "Faster payment", "ACME LTD", "150.00", "GBP", "", "150.00",
	}), "monzo_current")
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.True(t, txns[0].Amount.Equal(decimal.RequireFromString("150.00")))
}

func TestParseMonzoRowMissingID(t *testing.T) {
	header := []string{"Transaction ID", "Date", "Time", "Type", "Name", "Amount"}

	_, err := parseRow(FormatMonzo, rowFor(header, []string{"", "15/03/2024", "09:12:44", "Card payment", "Pret", "-4.50"}), "monzo_current")
	assert.Error(t, err)
}

func TestParseFirstDirectRow(t *testing.T) {
	header := []string{"Date", "Description", "Amount", "Reference"}

	txns, err := parseRow(FormatFirstDirectB, rowFor(header, []string{
		"02/01/2024", "TESCO STORES 2044", "-23.10", "REF12345",
	}), "fd_5682")
	require.NoError(t, err)
	require.Len(t, txns, 1)

	txn := txns[0]
	assert.Equal(t, "first_direct_csv", txn.Source)
	assert.Equal(t, "first_direct", txn.Institution)
	assert.Equal(t, "REF12345", txn.TransactionRef)
	assert.Equal(t, "2024-01-02", txn.PostedAt.Format("2006-01-02"))
	assert.True(t, txn.Amount.Equal(decimal.RequireFromString("-23.10")))
	assert.Equal(t, "TESCO STORES 2044", txn.RawMerchant)
}

func TestParseFirstDirectRowNoReference(t *testing.T) {
	header := []string{"Date", "Description", "Amount", "Balance"}

	txns, err := parseRow(FormatFirstDirectA, rowFor(header, []string{
		"02/01/2024", "TESCO STORES 2044", "1,023.10", "2,500.00",
	}), "fd_5682")
	require.NoError(t, err)
	require.Len(t, txns, 1)

	assert.Empty(t, txns[0].TransactionRef)
	assert.True(t, txns[0].Amount.Equal(decimal.RequireFromString("1023.10")))
}

func TestParseMarcusRow(t *testing.T) {
	header := []string{"AccountName", "AccountNumber", "TransactionDate", "Description", "Value", "AccountBalance"}

	txns, err := parseRow(FormatMarcus, rowFor(header, []string{
		"Online Savings", "12345678", "20240105", "Interest Payment", "12.34", "10012.34",
	}), "marcus")
	require.NoError(t, err)
	require.Len(t, txns, 1)

	txn := txns[0]
	assert.Equal(t, "marcus_csv", txn.Source)
	assert.Equal(t, "goldman_sachs", txn.Institution)
	assert.Equal(t, "2024-01-05", txn.PostedAt.Format("2006-01-02"))
	assert.True(t, txn.Amount.Equal(decimal.RequireFromString("12.34")))
}

var wiseHeader = []string{
	"ID", "Status", "Direction", "Created on", "Finished on",
	"Source currency", "Source amount (after fees)", "Source name",
	"Target currency", "Target amount (after fees)", "Target name",
	"Exchange rate", "Reference",
}

func TestParseWiseRowPayment(t *testing.T) {
	txns, err := parseRow(FormatWise, rowFor(wiseHeader, []string{
		"TRANSFER-1234", "COMPLETED", "OUT", "2024-02-01 08:00:00", "2024-02-01 08:00:05",
		"GBP", "50.00", "", "GBP", "50.00", "ACME LTD", "1.0", "invoice 7",
	}), "")
	require.NoError(t, err)
	require.Len(t, txns, 1)

	txn := txns[0]
	assert.Equal(t, "wise_csv", txn.Source)
	assert.Equal(t, "wise", txn.Institution)
	assert.Equal(t, "wise_GBP", txn.AccountRef)
	assert.Equal(t, "TRANSFER-1234", txn.TransactionRef)
	assert.Equal(t, "2024-02-01", txn.PostedAt.Format("2006-01-02"))
	assert.True(t, txn.Amount.Equal(decimal.RequireFromString("-50.00")))
	assert.Equal(t, "ACME LTD", txn.RawMerchant)
	assert.Equal(t, "invoice 7", txn.RawMemo)
}

func TestParseWiseBalanceConversionHasTwoLegs(t *testing.T) {
	// GBP -> CHF conversion: debit leg on the GBP balance, credit leg on CHF.
	txns, err := parseRow(FormatWise, rowFor(wiseHeader, []string{
		"BALANCE-99", "COMPLETED", "NEUTRAL", "2024-02-02 09:00:00", "2024-02-02 09:00:01",
		"GBP", "100.00", "", "CHF", "112.50", "", "1.125", "",
	}), "")
	require.NoError(t, err)
	require.Len(t, txns, 2)

	debit, credit := txns[0], txns[1]
	assert.Equal(t, "wise_GBP", debit.AccountRef)
	assert.True(t, debit.Amount.Equal(decimal.RequireFromString("-100.00")))

	assert.Equal(t, "wise_CHF", credit.AccountRef)
	assert.Equal(t, "BALANCE-99_target", credit.TransactionRef)
	assert.Equal(t, "CHF", credit.Currency)
	assert.True(t, credit.Amount.Equal(decimal.RequireFromString("112.50")))
	assert.Equal(t, "Balance conversion from GBP", credit.RawMerchant)
}

func TestParseWiseCrossCurrencyPaymentHasOneLeg(t *testing.T) {
	// Card payment in EUR funded from the GBP balance: the EUR never lands in
	// an account, so there's no credit leg.
	txns, err := parseRow(FormatWise, rowFor(wiseHeader, []string{
		"CARD-55", "COMPLETED", "OUT", "2024-02-03 10:00:00", "2024-02-03 10:00:02",
		"GBP", "8.80", "", "EUR", "10.00", "CAFE BERLIN", "1.136", "",
	}), "")
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, "wise_GBP", txns[0].AccountRef)
	assert.True(t, txns[0].Amount.Equal(decimal.RequireFromString("-8.80")))
}

func TestParseWiseSkipsUnsettledRows(t *testing.T) {
	txns, err := parseRow(FormatWise, rowFor(wiseHeader, []string{
		"TRANSFER-77", "CANCELLED", "OUT", "2024-02-04 11:00:00", "",
		"GBP", "5.00", "", "GBP", "5.00", "ACME LTD", "1.0", "",
	}), "")
	require.NoError(t, err)
	assert.Empty(t, txns)
}

func TestParseRowBadDate(t *testing.T) {
	header := []string{"Date", "Description", "Amount", "Balance"}

	_, err := parseRow(FormatFirstDirectA, rowFor(header, []string{"not-a-date", "X", "1.00", "1.00"}), "fd_5682")
	assert.Error(t, err)
}
