package ingest_test

import (
	"strings"
	"testing"

	"github.com/klingon-exchange/ledger-engine/internal/ingest"
	"github.com/klingon-exchange/ledger-engine/internal/ledger"
	"github.com/klingon-exchange/ledger-engine/internal/storage/memory"
)

func TestRunAppliesEveryRowType(t *testing.T) {
	l := ledger.New(memory.New())

	csvData := `type,account,reference,amount
deposit,1,dep-a,10.0000
deposit,1,dep-b,5.0000
withdraw,1,wd-a,3.0000
dispute,1,dep-b,
resolve,1,dep-b,
`
	stats, err := ingest.Run(l, strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stats.Processed != 5 {
		t.Errorf("Processed = %d, want 5", stats.Processed)
	}
	if stats.Skipped != 0 {
		t.Errorf("Skipped = %d, want 0", stats.Skipped)
	}

	balances, err := l.GetBalances()
	if err != nil {
		t.Fatalf("GetBalances failed: %v", err)
	}
	if got := balances[ledger.AccountId(1)]; got != ledger.Amount(120000) {
		t.Errorf("balance = %d, want 120000", got)
	}
}

func TestRunSkipsMalformedRowsAndContinues(t *testing.T) {
	l := ledger.New(memory.New())

	csvData := `type,account,reference,amount
deposit,1,dep-a,10.0000
deposit,not-a-number,dep-b,5.0000
withdraw,1,wd-a,999.0000
deposit,1,dep-c,1.0000
`
	stats, err := ingest.Run(l, strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stats.Processed != 2 {
		t.Errorf("Processed = %d, want 2", stats.Processed)
	}
	if stats.Skipped != 2 {
		t.Errorf("Skipped = %d, want 2", stats.Skipped)
	}

	balances, err := l.GetBalances()
	if err != nil {
		t.Fatalf("GetBalances failed: %v", err)
	}
	if got := balances[ledger.AccountId(1)]; got != ledger.Amount(110000) {
		t.Errorf("balance = %d, want 110000", got)
	}
}

func TestRunRejectsBadHeader(t *testing.T) {
	l := ledger.New(memory.New())

	csvData := "foo,bar\n1,2\n"
	if _, err := ingest.Run(l, strings.NewReader(csvData)); err == nil {
		t.Error("expected error for malformed header, got nil")
	}
}

func TestRunEmptyStreamIsNoop(t *testing.T) {
	l := ledger.New(memory.New())

	stats, err := ingest.Run(l, strings.NewReader(""))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stats.Processed != 0 || stats.Skipped != 0 {
		t.Errorf("stats = %+v, want zero", stats)
	}
}
