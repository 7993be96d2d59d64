package ledger_test

import (
	"errors"
	"testing"

	"github.com/klingon-exchange/ledger-engine/internal/ledger"
	"github.com/klingon-exchange/ledger-engine/internal/storage/memory"
	"github.com/klingon-exchange/ledger-engine/internal/storage/sqlitestore"
)

// backends returns a fresh ledger.Storage constructor for every
// conformant backend, so every scenario below runs against both —
// proving the Ledger façade's behavior is backend-agnostic.
func backends(t *testing.T) map[string]func() ledger.Storage {
	t.Helper()
	return map[string]func() ledger.Storage{
		"memory": func() ledger.Storage { return memory.New() },
		"sqlite": func() ledger.Storage {
			s, err := sqlitestore.Open(":memory:")
			if err != nil {
				t.Fatalf("sqlitestore.Open: %v", err)
			}
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

// forEachBackend hands the test both the Ledger and the raw Storage it
// wraps, since GetBalances deliberately exposes only Main (P5) and
// some scenarios need to assert Disputed/Chargeback totals directly
// against the storage contract's full view.
func forEachBackend(t *testing.T, fn func(t *testing.T, l *ledger.Ledger, store ledger.Storage)) {
	t.Helper()
	for name, newStore := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore()
			fn(t, ledger.New(store), store)
		})
	}
}

const accountA ledger.AccountId = 1

func balance(t *testing.T, l *ledger.Ledger, account ledger.AccountId) ledger.Amount {
	t.Helper()
	balances, err := l.GetBalances()
	if err != nil {
		t.Fatalf("GetBalances: %v", err)
	}
	return balances[account]
}

func TestS1_WithdrawalCannotOverdraw(t *testing.T) {
	forEachBackend(t, func(t *testing.T, l *ledger.Ledger, store ledger.Storage) {
		if _, err := l.Deposit(accountA, "d1", 100); err != nil {
			t.Fatalf("Deposit: %v", err)
		}
		_, err := l.Withdraw(accountA, "w1", 150)
		if !errors.Is(err, ledger.ErrInsufficientBalance) {
			t.Fatalf("Withdraw() error = %v, want ErrInsufficientBalance", err)
		}
		if got := balance(t, l, accountA); got != 100 {
			t.Fatalf("balance = %d, want 100", got)
		}
	})
}

func TestS2_ExactWithdrawal(t *testing.T) {
	forEachBackend(t, func(t *testing.T, l *ledger.Ledger, store ledger.Storage) {
		if _, err := l.Deposit(accountA, "d1", 50); err != nil {
			t.Fatalf("Deposit: %v", err)
		}
		if _, err := l.Withdraw(accountA, "w1", 50); err != nil {
			t.Fatalf("Withdraw: %v", err)
		}
		if got := balance(t, l, accountA); got != 0 {
			t.Fatalf("balance = %d, want 0", got)
		}
		unspent, err := store.GetUnspent(accountA, ledger.Main)
		if err != nil {
			t.Fatalf("GetUnspent: %v", err)
		}
		if len(unspent) != 0 {
			t.Fatalf("GetUnspent = %+v, want none remaining", unspent)
		}
	})
}

func TestS3_Change(t *testing.T) {
	forEachBackend(t, func(t *testing.T, l *ledger.Ledger, store ledger.Storage) {
		if _, err := l.Deposit(accountA, "d1", 100); err != nil {
			t.Fatalf("Deposit: %v", err)
		}
		if _, err := l.Withdraw(accountA, "w1", 30); err != nil {
			t.Fatalf("Withdraw: %v", err)
		}
		if got := balance(t, l, accountA); got != 70 {
			t.Fatalf("balance = %d, want 70", got)
		}
		unspent, err := store.GetUnspent(accountA, ledger.Main)
		if err != nil {
			t.Fatalf("GetUnspent: %v", err)
		}
		if len(unspent) != 1 || unspent[0].Amount != 70 {
			t.Fatalf("GetUnspent = %+v, want exactly one output of amount 70", unspent)
		}
	})
}

func TestS4_DisputeAfterShuffle(t *testing.T) {
	forEachBackend(t, func(t *testing.T, l *ledger.Ledger, store ledger.Storage) {
		mustOp := func(_ ledger.TxID, err error) {
			t.Helper()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		mustOp(l.Deposit(accountA, "a", 10))
		mustOp(l.Deposit(accountA, "b", 5))
		mustOp(l.Withdraw(accountA, "w1", 11))
		mustOp(l.Deposit(accountA, "c", 4))
		mustOp(l.Dispute(accountA, "b"))

		if got := balance(t, l, accountA); got != 3 {
			t.Fatalf("Main balance = %d, want 3", got)
		}
		if got := subAccountBalance(t, store, accountA, ledger.Disputed); got != 5 {
			t.Fatalf("Disputed balance = %d, want 5", got)
		}
	})
}

func TestS5_DisputeResolveReturnsFunds(t *testing.T) {
	forEachBackend(t, func(t *testing.T, l *ledger.Ledger, store ledger.Storage) {
		if _, err := l.Deposit(accountA, "d1", 20); err != nil {
			t.Fatalf("Deposit: %v", err)
		}
		if _, err := l.Dispute(accountA, "d1"); err != nil {
			t.Fatalf("Dispute: %v", err)
		}
		if _, err := l.Resolve(accountA, "d1"); err != nil {
			t.Fatalf("Resolve: %v", err)
		}

		if got := balance(t, l, accountA); got != 20 {
			t.Fatalf("Main balance = %d, want 20", got)
		}
		if got := subAccountBalance(t, store, accountA, ledger.Disputed); got != 0 {
			t.Fatalf("Disputed balance = %d, want 0", got)
		}
	})
}

func TestS6_DisputeChargebackIsTerminal(t *testing.T) {
	forEachBackend(t, func(t *testing.T, l *ledger.Ledger, store ledger.Storage) {
		if _, err := l.Deposit(accountA, "d1", 20); err != nil {
			t.Fatalf("Deposit: %v", err)
		}
		if _, err := l.Dispute(accountA, "d1"); err != nil {
			t.Fatalf("Dispute: %v", err)
		}
		if _, err := l.Chargeback(accountA, "d1"); err != nil {
			t.Fatalf("Chargeback: %v", err)
		}

		if got := balance(t, l, accountA); got != 0 {
			t.Fatalf("Main balance = %d, want 0", got)
		}
		if got := subAccountBalance(t, store, accountA, ledger.Disputed); got != 0 {
			t.Fatalf("Disputed balance = %d, want 0", got)
		}
		if got := subAccountBalance(t, store, accountA, ledger.Chargeback); got != 20 {
			t.Fatalf("Chargeback balance = %d, want 20", got)
		}

		_, err := l.Withdraw(accountA, "w1", 1)
		if !errors.Is(err, ledger.ErrInsufficientBalance) {
			t.Fatalf("Withdraw() after chargeback error = %v, want ErrInsufficientBalance", err)
		}
	})
}

func TestS7_DuplicateReference(t *testing.T) {
	forEachBackend(t, func(t *testing.T, l *ledger.Ledger, store ledger.Storage) {
		if _, err := l.Deposit(accountA, "same", 10); err != nil {
			t.Fatalf("Deposit: %v", err)
		}
		second, err := l.Deposit(accountA, "same", 7)
		if err != nil {
			t.Fatalf("Deposit: %v", err)
		}

		found, err := store.GetTxByReference("same")
		if err != nil {
			t.Fatalf("GetTxByReference: %v", err)
		}
		if found.ID() != second {
			t.Fatalf("GetTxByReference(%q) = %s, want the second deposit %s", "same", found.ID(), second)
		}
		if got := balance(t, l, accountA); got != 17 {
			t.Fatalf("Main balance = %d, want 17", got)
		}
	})
}

func TestUnknownReference(t *testing.T) {
	forEachBackend(t, func(t *testing.T, l *ledger.Ledger, store ledger.Storage) {
		_, err := l.Dispute(accountA, "does-not-exist")
		if !errors.Is(err, ledger.ErrUnknownReference) {
			t.Fatalf("Dispute() error = %v, want ErrUnknownReference", err)
		}
	})
}

func TestEmptyReferenceRejected(t *testing.T) {
	forEachBackend(t, func(t *testing.T, l *ledger.Ledger, store ledger.Storage) {
		if _, err := l.Deposit(accountA, "", 10); !errors.Is(err, ledger.ErrEmptyReference) {
			t.Fatalf("Deposit() error = %v, want ErrEmptyReference", err)
		}
		if _, err := l.Withdraw(accountA, "", 10); !errors.Is(err, ledger.ErrEmptyReference) {
			t.Fatalf("Withdraw() error = %v, want ErrEmptyReference", err)
		}
		if _, err := l.Dispute(accountA, ""); !errors.Is(err, ledger.ErrEmptyReference) {
			t.Fatalf("Dispute() error = %v, want ErrEmptyReference", err)
		}
	})
}

func TestDisputeWithNoMatchingOutputsIsInsufficientBalance(t *testing.T) {
	forEachBackend(t, func(t *testing.T, l *ledger.Ledger, store ledger.Storage) {
		if _, err := l.Deposit(accountA, "d1", 20); err != nil {
			t.Fatalf("Deposit: %v", err)
		}
		if _, err := l.Withdraw(accountA, "w1", 20); err != nil {
			t.Fatalf("Withdraw: %v", err)
		}
		// d1 is now fully spent with no change output produced (exact
		// withdrawal), so nothing remains to dispute under that reference.
		_, err := l.Dispute(accountA, "d1")
		if !errors.Is(err, ledger.ErrInsufficientBalance) {
			t.Fatalf("Dispute() error = %v, want ErrInsufficientBalance", err)
		}
	})
}

func subAccountBalance(t *testing.T, store ledger.Storage, account ledger.AccountId, sub ledger.SubAccount) ledger.Amount {
	t.Helper()
	accounts, err := store.GetAccounts()
	if err != nil {
		t.Fatalf("GetAccounts: %v", err)
	}
	for _, a := range accounts {
		if a.Account == account && a.SubAccount == sub {
			return a.Amount
		}
	}
	return 0
}
