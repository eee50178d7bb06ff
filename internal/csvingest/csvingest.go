// Package csvingest appends bank CSV exports to the transaction log. Inserts
// are idempotent, so re-importing an overlapping export is safe; the logical
// duplicates a ref-less format can still produce are the same-source dedup
// rule's job, not ours.
package csvingest

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"

	"github.com/nonatech-uk/finance/internal/config"
	"github.com/nonatech-uk/finance/internal/postgresutils"
	"github.com/nonatech-uk/finance/pkg/ledger"
)

const LogLevelEnv = "FINANCE_LOG_LEVEL"

type ImportCSVRunner struct {
	db         *bun.DB
	csvFile    string
	accountRef string
	log        *logrus.Logger
}

func NewImportCSVRunner(csvFile, accountRef string) (*ImportCSVRunner, error) {
	log := logrus.New()

	level, err := logrus.ParseLevel(os.Getenv(LogLevelEnv))
	if err != nil {
		level = logrus.InfoLevel
	}

	log.SetLevel(level)

	db, err := postgresutils.CreatePostgresClient(config.CurrentSQLConfig().FinanceDatabase)
	if err != nil {
		return nil, fmt.Errorf("Error connecting to postgres DB: %s", err)
	}

	return &ImportCSVRunner{
		db:         db,
		csvFile:    csvFile,
		accountRef: accountRef,
		log:        log,
	}, nil
}

func (i *ImportCSVRunner) Run() error {
	csvFile, err := os.Open(i.csvFile)
	if err != nil {
		return fmt.Errorf("failed to open %s csv file %w", i.csvFile, err)
	}
	defer csvFile.Close()

	reader := csv.NewReader(bufio.NewReader(csvFile))

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to parse %s csv header %w", i.csvFile, err)
	}

	format, err := DetectFormat(header)
	if err != nil {
		return err
	}

	i.log.Infof("Detected csv format %s for %s", format, i.csvFile)

	// Wise exports carry their own balance refs; every other format needs the
	// account spelled out.
	if format != FormatWise && i.accountRef == "" {
		return fmt.Errorf("csv format %s requires -account", format)
	}

	headerMap := generateHeaderMap(header)

	ctx := context.Background()

	if err := ledger.EnsureSchema(ctx, i.db); err != nil {
		return err
	}

	var txns []*ledger.RawTransaction

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return fmt.Errorf("failed to parse %s csv row %w", i.csvFile, err)
		}

		parsed, err := parseRow(format, csvRow{record: record, headerMap: headerMap}, i.accountRef)
		if err != nil {
			i.log.WithFields(logrus.Fields{"row": record}).Warnf("Skipping row: %v", err)
			continue
		}

		txns = append(txns, parsed...)
	}

	inserted, skipped, err := ledger.InsertTransactions(ctx, i.db, txns)
	if err != nil {
		return err
	}

	fmt.Printf("Wrote %d transactions to sql from csv file %s (%d already present)\n", inserted, i.csvFile, skipped)

	return nil
}

func (i *ImportCSVRunner) Close() error {
	return i.db.Close()
}

func generateHeaderMap(header []string) map[string]int {
	headerMap := map[string]int{}
	for index, name := range header {
		headerMap[strings.ToLower(strings.TrimSpace(name))] = index
	}

	return headerMap
}
