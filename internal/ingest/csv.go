// Package ingest consumes a CSV stream of ledger instructions and
// replays each row against a Ledger.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/google/uuid"

	"github.com/klingon-exchange/ledger-engine/internal/ledger"
	"github.com/klingon-exchange/ledger-engine/pkg/helpers"
	"github.com/klingon-exchange/ledger-engine/pkg/logging"
)

// AmountDecimals is the fixed decimal-place convention used to parse
// the amount column. The row format itself carries no precision
// metadata, so ingestion fixes one convention for the whole stream.
const AmountDecimals = 4

// RowType names the operation a row requests.
type RowType string

const (
	RowDeposit    RowType = "deposit"
	RowWithdraw   RowType = "withdraw"
	RowDispute    RowType = "dispute"
	RowResolve    RowType = "resolve"
	RowChargeback RowType = "chargeback"
)

// Stats summarizes a completed ingestion run.
type Stats struct {
	Processed int
	Skipped   int
}

// Run reads header `type,account,reference,amount` rows from r and
// applies each one to l via the matching Ledger method. A row that
// fails to parse or that the Ledger rejects is logged and skipped;
// ingestion is not transactional across rows, so one bad row never
// aborts the rest of the stream.
func Run(l *ledger.Ledger, r io.Reader) (Stats, error) {
	runID := uuid.New().String()
	log := logging.GetDefault().Component("ingest").With("run_id", runID)

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return Stats{}, nil
	}
	if err != nil {
		return Stats{}, fmt.Errorf("ingest: read header: %w", err)
	}
	if err := checkHeader(header); err != nil {
		return Stats{}, fmt.Errorf("ingest: %w", err)
	}

	var stats Stats
	line := 1
	for {
		line++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Warn("skipping malformed row", "line", line, "error", err)
			stats.Skipped++
			continue
		}

		if err := applyRow(l, record); err != nil {
			log.Warn("skipping row", "line", line, "row", record, "error", err)
			stats.Skipped++
			continue
		}
		stats.Processed++
	}

	log.Info("ingestion complete", "processed", stats.Processed, "skipped", stats.Skipped)
	return stats, nil
}

func checkHeader(header []string) error {
	want := []string{"type", "account", "reference", "amount"}
	if len(header) != len(want) {
		return fmt.Errorf("unexpected header %v, want %v", header, want)
	}
	for i, col := range want {
		if header[i] != col {
			return fmt.Errorf("unexpected header %v, want %v", header, want)
		}
	}
	return nil
}

func applyRow(l *ledger.Ledger, record []string) error {
	if len(record) != 4 {
		return fmt.Errorf("expected 4 fields, got %d", len(record))
	}
	rowType := RowType(record[0])
	reference := record[2]

	accountNum, err := strconv.ParseUint(record[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid account %q: %w", record[1], err)
	}
	account := ledger.AccountId(accountNum)

	switch rowType {
	case RowDeposit, RowWithdraw:
		amount, err := helpers.ParseAmount(record[3], AmountDecimals)
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", record[3], err)
		}
		if rowType == RowDeposit {
			_, err = l.Deposit(account, reference, ledger.Amount(amount))
		} else {
			_, err = l.Withdraw(account, reference, ledger.Amount(amount))
		}
		return err
	case RowDispute:
		_, err := l.Dispute(account, reference)
		return err
	case RowResolve:
		_, err := l.Resolve(account, reference)
		return err
	case RowChargeback:
		_, err := l.Chargeback(account, reference)
		return err
	default:
		return fmt.Errorf("unknown row type %q", record[0])
	}
}
