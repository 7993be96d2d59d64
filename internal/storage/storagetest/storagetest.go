// Package storagetest is a conformance suite any ledger.Storage
// backend can run against itself. Adding a new backend means calling
// Run with a constructor; no backend-specific test code is required to
// prove the storage contract holds.
package storagetest

import (
	"errors"
	"testing"

	"github.com/klingon-exchange/ledger-engine/internal/ledger"
)

// Run exercises newStore() — which must return a freshly empty
// ledger.Storage — against the full storage contract (§4.3).
func Run(t *testing.T, newStore func() ledger.Storage) {
	t.Helper()

	t.Run("DepositCreatesUnspentOutput", func(t *testing.T) { testDepositCreatesUnspentOutput(t, newStore) })
	t.Run("SpendingRemovesFromUnspent", func(t *testing.T) { testSpendingRemovesFromUnspent(t, newStore) })
	t.Run("InputNotFound", func(t *testing.T) { testInputNotFound(t, newStore) })
	t.Run("DoubleSpendRejected", func(t *testing.T) { testDoubleSpendRejected(t, newStore) })
	t.Run("IntraTransactionDoubleSpendRejected", func(t *testing.T) { testIntraTxDoubleSpendRejected(t, newStore) })
	t.Run("FailedStoreDoesNotMutate", func(t *testing.T) { testFailedStoreDoesNotMutate(t, newStore) })
	t.Run("ReferenceLookupFindsMostRecent", func(t *testing.T) { testReferenceLookupMostRecent(t, newStore) })
	t.Run("UnknownReferenceNotFound", func(t *testing.T) { testUnknownReferenceNotFound(t, newStore) })
	t.Run("UnknownTxNotFound", func(t *testing.T) { testUnknownTxNotFound(t, newStore) })
	t.Run("GetAccountsOrderedAscending", func(t *testing.T) { testGetAccountsOrdered(t, newStore) })
	t.Run("GetAccountsReportsZeroBalanceWhenFullySpent", func(t *testing.T) { testGetAccountsZeroBalance(t, newStore) })
	t.Run("UnspentOrderPreserved", func(t *testing.T) { testUnspentOrderPreserved(t, newStore) })
	t.Run("StoredTransactionRoundTrips", func(t *testing.T) { testStoredTransactionRoundTrips(t, newStore) })
}

func mustStore(t *testing.T, s ledger.Storage, tx *ledger.Transaction) {
	t.Helper()
	if err := s.Store(tx); err != nil {
		t.Fatalf("Store(%s): unexpected error: %v", tx.ID(), err)
	}
}

func testDepositCreatesUnspentOutput(t *testing.T, newStore func() ledger.Storage) {
	s := newStore()
	const acct ledger.AccountId = 1

	tx := ledger.NewTransactionAt(nil, []ledger.Output{{Account: acct, SubAccount: ledger.Main, Amount: 100}}, "dep-1", 1000)
	mustStore(t, s, tx)

	unspent, err := s.GetUnspent(acct, ledger.Main)
	if err != nil {
		t.Fatalf("GetUnspent: %v", err)
	}
	if len(unspent) != 1 || unspent[0].Amount != 100 {
		t.Fatalf("GetUnspent = %+v, want one output of amount 100", unspent)
	}
	if unspent[0].ID.TxID != tx.ID() || unspent[0].ID.Index != 0 {
		t.Fatalf("GetUnspent ID = %+v, want %s:0", unspent[0].ID, tx.ID())
	}
}

func testSpendingRemovesFromUnspent(t *testing.T, newStore func() ledger.Storage) {
	s := newStore()
	const acct ledger.AccountId = 1

	dep := ledger.NewTransactionAt(nil, []ledger.Output{{Account: acct, SubAccount: ledger.Main, Amount: 100}}, "dep-1", 1000)
	mustStore(t, s, dep)

	spend := ledger.NewTransactionAt(
		[]ledger.Input{{Output: ledger.OutputID{TxID: dep.ID(), Index: 0}}}, nil, "wd-1", 2000)
	mustStore(t, s, spend)

	unspent, err := s.GetUnspent(acct, ledger.Main)
	if err != nil {
		t.Fatalf("GetUnspent: %v", err)
	}
	if len(unspent) != 0 {
		t.Fatalf("GetUnspent after spend = %+v, want empty", unspent)
	}
}

func testInputNotFound(t *testing.T, newStore func() ledger.Storage) {
	s := newStore()
	var ghost ledger.TxID
	ghost[0] = 0xff

	tx := ledger.NewTransactionAt(
		[]ledger.Input{{Output: ledger.OutputID{TxID: ghost, Index: 0}}}, nil, "wd-1", 1000)

	err := s.Store(tx)
	if !errors.Is(err, ledger.ErrInputNotFound) {
		t.Fatalf("Store() error = %v, want ErrInputNotFound", err)
	}
}

func testDoubleSpendRejected(t *testing.T, newStore func() ledger.Storage) {
	s := newStore()
	const acct ledger.AccountId = 1

	dep := ledger.NewTransactionAt(nil, []ledger.Output{{Account: acct, SubAccount: ledger.Main, Amount: 100}}, "dep-1", 1000)
	mustStore(t, s, dep)

	input := ledger.Input{Output: ledger.OutputID{TxID: dep.ID(), Index: 0}}
	first := ledger.NewTransactionAt([]ledger.Input{input}, nil, "wd-1", 2000)
	mustStore(t, s, first)

	second := ledger.NewTransactionAt([]ledger.Input{input}, nil, "wd-2", 3000)
	err := s.Store(second)
	if !errors.Is(err, ledger.ErrDoubleSpend) {
		t.Fatalf("Store() error = %v, want ErrDoubleSpend", err)
	}
}

func testIntraTxDoubleSpendRejected(t *testing.T, newStore func() ledger.Storage) {
	s := newStore()
	const acct ledger.AccountId = 1

	dep := ledger.NewTransactionAt(nil, []ledger.Output{{Account: acct, SubAccount: ledger.Main, Amount: 100}}, "dep-1", 1000)
	mustStore(t, s, dep)

	input := ledger.Input{Output: ledger.OutputID{TxID: dep.ID(), Index: 0}}
	tx := ledger.NewTransactionAt([]ledger.Input{input, input}, nil, "wd-1", 2000)

	err := s.Store(tx)
	if !errors.Is(err, ledger.ErrDoubleSpend) {
		t.Fatalf("Store() error = %v, want ErrDoubleSpend for a transaction spending the same input twice", err)
	}
}

func testFailedStoreDoesNotMutate(t *testing.T, newStore func() ledger.Storage) {
	s := newStore()
	const acct ledger.AccountId = 1

	dep := ledger.NewTransactionAt(nil, []ledger.Output{{Account: acct, SubAccount: ledger.Main, Amount: 100}}, "dep-1", 1000)
	mustStore(t, s, dep)

	var ghost ledger.TxID
	ghost[0] = 0xff
	bad := ledger.NewTransactionAt([]ledger.Input{
		{Output: ledger.OutputID{TxID: dep.ID(), Index: 0}},
		{Output: ledger.OutputID{TxID: ghost, Index: 0}},
	}, nil, "wd-bad", 2000)

	if err := s.Store(bad); err == nil {
		t.Fatalf("Store() with one unknown input succeeded, want error")
	}

	unspent, err := s.GetUnspent(acct, ledger.Main)
	if err != nil {
		t.Fatalf("GetUnspent: %v", err)
	}
	if len(unspent) != 1 {
		t.Fatalf("GetUnspent after failed Store = %+v, want the original deposit untouched", unspent)
	}
}

func testReferenceLookupMostRecent(t *testing.T, newStore func() ledger.Storage) {
	s := newStore()
	const acct ledger.AccountId = 1

	first := ledger.NewTransactionAt(nil, []ledger.Output{{Account: acct, SubAccount: ledger.Main, Amount: 50}}, "ref-1", 1000)
	mustStore(t, s, first)

	second := ledger.NewTransactionAt(
		[]ledger.Input{{Output: ledger.OutputID{TxID: first.ID(), Index: 0}}},
		[]ledger.Output{{Account: acct, SubAccount: ledger.Disputed, Amount: 50}},
		"ref-1", 2000)
	mustStore(t, s, second)

	found, err := s.GetTxByReference("ref-1")
	if err != nil {
		t.Fatalf("GetTxByReference: %v", err)
	}
	if found.ID() != second.ID() {
		t.Fatalf("GetTxByReference returned %s, want the most recent transaction %s", found.ID(), second.ID())
	}
}

func testUnknownReferenceNotFound(t *testing.T, newStore func() ledger.Storage) {
	s := newStore()
	_, err := s.GetTxByReference("does-not-exist")
	if !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("GetTxByReference() error = %v, want ErrNotFound", err)
	}
}

func testUnknownTxNotFound(t *testing.T, newStore func() ledger.Storage) {
	s := newStore()
	var ghost ledger.TxID
	ghost[0] = 0xaa
	_, err := s.GetTx(ghost)
	if !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("GetTx() error = %v, want ErrNotFound", err)
	}
}

func testGetAccountsOrdered(t *testing.T, newStore func() ledger.Storage) {
	s := newStore()

	mustStore(t, s, ledger.NewTransactionAt(nil, []ledger.Output{{Account: 2, SubAccount: ledger.Main, Amount: 10}}, "dep-a", 1000))
	mustStore(t, s, ledger.NewTransactionAt(nil, []ledger.Output{{Account: 1, SubAccount: ledger.Disputed, Amount: 20}}, "dep-b", 1001))
	mustStore(t, s, ledger.NewTransactionAt(nil, []ledger.Output{{Account: 1, SubAccount: ledger.Main, Amount: 30}}, "dep-c", 1002))

	accounts, err := s.GetAccounts()
	if err != nil {
		t.Fatalf("GetAccounts: %v", err)
	}
	if len(accounts) != 3 {
		t.Fatalf("GetAccounts returned %d entries, want 3: %+v", len(accounts), accounts)
	}
	if accounts[0].Account != 1 || accounts[0].SubAccount != ledger.Main {
		t.Fatalf("accounts[0] = %+v, want account 1 main first", accounts[0])
	}
	if accounts[1].Account != 1 || accounts[1].SubAccount != ledger.Disputed {
		t.Fatalf("accounts[1] = %+v, want account 1 disputed second", accounts[1])
	}
	if accounts[2].Account != 2 {
		t.Fatalf("accounts[2] = %+v, want account 2 last", accounts[2])
	}
}

func testGetAccountsZeroBalance(t *testing.T, newStore func() ledger.Storage) {
	s := newStore()
	const acct ledger.AccountId = 1

	dep := ledger.NewTransactionAt(nil, []ledger.Output{{Account: acct, SubAccount: ledger.Main, Amount: 100}}, "dep-1", 1000)
	mustStore(t, s, dep)
	mustStore(t, s, ledger.NewTransactionAt(
		[]ledger.Input{{Output: ledger.OutputID{TxID: dep.ID(), Index: 0}}}, nil, "wd-1", 2000))

	accounts, err := s.GetAccounts()
	if err != nil {
		t.Fatalf("GetAccounts: %v", err)
	}
	if len(accounts) != 1 || accounts[0].Amount != 0 {
		t.Fatalf("GetAccounts = %+v, want one zero-balance entry for the fully-spent account", accounts)
	}
}

func testUnspentOrderPreserved(t *testing.T, newStore func() ledger.Storage) {
	s := newStore()
	const acct ledger.AccountId = 1

	var ids []ledger.TxID
	for i, amt := range []ledger.Amount{10, 20, 30} {
		tx := ledger.NewTransactionAt(nil, []ledger.Output{{Account: acct, SubAccount: ledger.Main, Amount: amt}},
			"dep", uint64(1000+i))
		mustStore(t, s, tx)
		ids = append(ids, tx.ID())
	}

	unspent, err := s.GetUnspent(acct, ledger.Main)
	if err != nil {
		t.Fatalf("GetUnspent: %v", err)
	}
	if len(unspent) != 3 {
		t.Fatalf("GetUnspent returned %d outputs, want 3", len(unspent))
	}
	for i, id := range ids {
		if unspent[i].ID.TxID != id {
			t.Fatalf("GetUnspent[%d] = %s, want insertion-ordered %s", i, unspent[i].ID.TxID, id)
		}
	}
}

func testStoredTransactionRoundTrips(t *testing.T, newStore func() ledger.Storage) {
	s := newStore()
	const acct ledger.AccountId = 7

	dep := ledger.NewTransactionAt(nil, []ledger.Output{{Account: acct, SubAccount: ledger.Main, Amount: 42}}, "dep-1", 12345)
	mustStore(t, s, dep)

	spend := ledger.NewTransactionAt(
		[]ledger.Input{{Output: ledger.OutputID{TxID: dep.ID(), Index: 0}}}, nil, "wd-1", 67890)
	mustStore(t, s, spend)

	got, err := s.GetTx(spend.ID())
	if err != nil {
		t.Fatalf("GetTx: %v", err)
	}
	if got.ID() != spend.ID() {
		t.Fatalf("GetTx(%s).ID() = %s, want same identity", spend.ID(), got.ID())
	}
	if got.Reference() != spend.Reference() || got.Timestamp() != spend.Timestamp() {
		t.Fatalf("GetTx round trip mismatch: got reference=%q timestamp=%d, want %q %d",
			got.Reference(), got.Timestamp(), spend.Reference(), spend.Timestamp())
	}
	if len(got.Inputs()) != 1 || got.Inputs()[0].Output != spend.Inputs()[0].Output {
		t.Fatalf("GetTx round trip inputs mismatch: got %+v, want %+v", got.Inputs(), spend.Inputs())
	}
}
