package csvingest

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nonatech-uk/finance/pkg/ledger"
)

// Supported bank CSV export formats, detected from column headers.
const (
	FormatFirstDirectA = "first_direct_a"
	FormatFirstDirectB = "first_direct_b"
	FormatMarcus       = "marcus"
	FormatMonzo        = "monzo"
	FormatWise         = "wise"
)

// formatOrder fixes the detection order so overlapping signatures resolve the
// same way every time.
var formatOrder = []string{FormatWise, FormatMonzo, FormatMarcus, FormatFirstDirectA, FormatFirstDirectB}

var formatSignatures = map[string][]string{
	FormatFirstDirectA: {"date", "description", "amount", "balance"},
	FormatFirstDirectB: {"date", "description", "amount", "reference"},
	FormatMarcus:       {"transactiondate", "description", "value", "accountbalance"},
	FormatMonzo:        {"transaction id", "date", "time", "type", "name", "amount"},
	FormatWise:         {"id", "status", "direction", "source currency", "target currency"},
}

// DetectFormat identifies the export format from the CSV header row. A format
// matches when every one of its signature columns is present.
func DetectFormat(header []string) (string, error) {
	present := map[string]bool{}
	for _, h := range header {
		present[strings.ToLower(strings.Trim(strings.TrimSpace(h), `"`))] = true
	}

	for _, format := range formatOrder {
		matched := true

		for _, col := range formatSignatures[format] {
			if !present[col] {
				matched = false
				break
			}
		}

		if matched {
			return format, nil
		}
	}

	return "", fmt.Errorf("unrecognised csv format, headers: %s", strings.Join(header, ", "))
}

type csvRow struct {
	record    []string
	headerMap map[string]int
}

func (r csvRow) get(column string) string {
	if i, ok := r.headerMap[strings.ToLower(column)]; ok && i < len(r.record) {
		return strings.TrimSpace(r.record[i])
	}

	return ""
}

func (r csvRow) rawData() map[string]interface{} {
	data := map[string]interface{}{}

	for column, i := range r.headerMap {
		if i < len(r.record) {
			data[column] = r.record[i]
		}
	}

	return data
}

// parseRow turns one CSV record into transactions. Most formats yield exactly
// one; a Wise balance conversion yields two (one leg per currency balance). An
// empty result with a nil error means the row carries no ledger material; a
// non-nil error is a malformed row the caller should log and skip.
func parseRow(format string, row csvRow, accountRef string) ([]*ledger.RawTransaction, error) {
	switch format {
	case FormatWise:
		return parseWiseRows(row)
	case FormatMonzo:
		return single(parseMonzoRow(row, accountRef))
	case FormatMarcus:
		return single(parseMarcusRow(row, accountRef))
	case FormatFirstDirectA, FormatFirstDirectB:
		return single(parseFirstDirectRow(format, row, accountRef))
	}

	return nil, fmt.Errorf("no parser for format %s", format)
}

func single(txn *ledger.RawTransaction, err error) ([]*ledger.RawTransaction, error) {
	if err != nil {
		return nil, err
	}

	return []*ledger.RawTransaction{txn}, nil
}

func parseMonzoRow(row csvRow, accountRef string) (*ledger.RawTransaction, error) {
	ref := row.get("transaction id")
	if ref == "" {
		return nil, fmt.Errorf("row has no transaction id")
	}

	postedAt, err := time.Parse("02/01/2006", row.get("date"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse date %q: %w", row.get("date"), err)
	}

	// Prefer the split Money Out / Money In columns; older exports only carry
	// the signed Amount column.
	var amount decimal.Decimal

	switch {
	case row.get("money out") != "":
		amount, err = decimal.NewFromString(row.get("money out"))
		amount = amount.Abs().Neg()
	case row.get("money in") != "":
		amount, err = decimal.NewFromString(row.get("money in"))
		amount = amount.Abs()
	default:
		amount, err = decimal.NewFromString(row.get("amount"))
	}

	if err != nil {
		return nil, fmt.Errorf("failed to parse amount: %w", err)
	}

	currency := row.get("currency")
	if currency == "" {
		currency = "GBP"
	}

	merchant := row.get("name")
	if merchant == "" {
		merchant = row.get("description")
	}

	return &ledger.RawTransaction{
		Source:         "monzo_csv",
		Institution:    "monzo",
		AccountRef:     accountRef,
		TransactionRef: ref,
		PostedAt:       postedAt,
		Amount:         amount,
		Currency:       currency,
		RawMerchant:    merchant,
		RawMemo:        row.get("notes and #tags"),
		RawData:        row.rawData(),
	}, nil
}

func parseFirstDirectRow(format string, row csvRow, accountRef string) (*ledger.RawTransaction, error) {
	postedAt, err := time.Parse("02/01/2006", row.get("date"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse date %q: %w", row.get("date"), err)
	}

	amount, err := decimal.NewFromString(strings.ReplaceAll(row.get("amount"), ",", ""))
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount: %w", err)
	}

	txn := &ledger.RawTransaction{
		Source:      "first_direct_csv",
		Institution: "first_direct",
		AccountRef:  accountRef,
		PostedAt:    postedAt,
		Amount:      amount,
		Currency:    "GBP",
		RawMerchant: row.get("description"),
		RawData:     row.rawData(),
	}

	if format == FormatFirstDirectB {
		txn.TransactionRef = row.get("reference")
	}

	return txn, nil
}

func parseMarcusRow(row csvRow, accountRef string) (*ledger.RawTransaction, error) {
	postedAt, err := time.Parse("20060102", row.get("transactiondate"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse date %q: %w", row.get("transactiondate"), err)
	}

	amount, err := decimal.NewFromString(strings.ReplaceAll(row.get("value"), ",", ""))
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount: %w", err)
	}

	return &ledger.RawTransaction{
		Source:      "marcus_csv",
		Institution: "goldman_sachs",
		AccountRef:  accountRef,
		PostedAt:    postedAt,
		Amount:      amount,
		Currency:    "GBP",
		RawMerchant: row.get("description"),
		RawData:     row.rawData(),
	}, nil
}

// parseWiseRows handles Wise transaction-history exports. The account ref is
// derived from the currency balance (wise_GBP, wise_CHF, ...), not from the
// -account flag: one export file mixes balances. Non-COMPLETED rows never
// settled and are dropped without comment.
func parseWiseRows(row csvRow) ([]*ledger.RawTransaction, error) {
	if row.get("status") != "COMPLETED" {
		return nil, nil
	}

	ref := row.get("id")
	if ref == "" {
		return nil, fmt.Errorf("row has no transaction id")
	}

	dateText := row.get("finished on")
	if dateText == "" {
		dateText = row.get("created on")
	}

	if len(dateText) < 10 {
		return nil, fmt.Errorf("failed to parse date %q", dateText)
	}

	postedAt, err := time.Parse("2006-01-02", dateText[:10])
	if err != nil {
		return nil, fmt.Errorf("failed to parse date %q: %w", dateText, err)
	}

	amount, err := decimal.NewFromString(row.get("source amount (after fees)"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount: %w", err)
	}

	sourceCurrency := row.get("source currency")
	targetCurrency := row.get("target currency")
	direction := row.get("direction")

	// The source balance is debited both for payments out and for balance
	// conversions (direction NEUTRAL).
	if direction == "IN" {
		amount = amount.Abs()
	} else {
		amount = amount.Abs().Neg()
	}

	merchant := row.get("target name")
	if direction == "IN" {
		merchant = row.get("source name")
	}

	txns := []*ledger.RawTransaction{{
		Source:         "wise_csv",
		Institution:    "wise",
		AccountRef:     "wise_" + sourceCurrency,
		TransactionRef: ref,
		PostedAt:       postedAt,
		Amount:         amount,
		Currency:       sourceCurrency,
		RawMerchant:    merchant,
		RawMemo:        row.get("reference"),
		RawData:        row.rawData(),
	}}

	// A balance conversion credits the target balance with a second leg. A
	// cross-currency card payment doesn't: the target currency never enters
	// the account.
	if direction == "NEUTRAL" && sourceCurrency != targetCurrency {
		target, err := decimal.NewFromString(row.get("target amount (after fees)"))
		if err != nil {
			return nil, fmt.Errorf("failed to parse target amount: %w", err)
		}

		txns = append(txns, &ledger.RawTransaction{
			Source:         "wise_csv",
			Institution:    "wise",
			AccountRef:     "wise_" + targetCurrency,
			TransactionRef: ref + "_target",
			PostedAt:       postedAt,
			Amount:         target.Abs(),
			Currency:       targetCurrency,
			RawMerchant:    "Balance conversion from " + sourceCurrency,
			RawMemo:        row.get("reference"),
			RawData:        row.rawData(),
		})
	}

	return txns, nil
}
