package ledger

import (
	"errors"
	"fmt"
)

// Ledger is a stateless façade over Storage: it selects UTXOs, builds
// transactions, enforces the sub-account state machine, and exposes
// the public operations (§4.6 of SPEC_FULL.md). Ledger holds no
// mutable state; every call reads from and writes through to store.
type Ledger struct {
	store Storage
}

// New returns a Ledger backed by store.
func New(store Storage) *Ledger {
	return &Ledger{store: store}
}

// Deposit records amount arriving at account's Main sub-account.
// It builds a creation transaction (no inputs, one output) and
// returns its identity.
func (l *Ledger) Deposit(account AccountId, reference string, amount Amount) (TxID, error) {
	if reference == "" {
		return TxID{}, ErrEmptyReference
	}

	tx := NewTransaction(nil, []Output{{Account: account, SubAccount: Main, Amount: amount}}, reference)
	if err := l.store.Store(tx); err != nil {
		return TxID{}, fmt.Errorf("ledger: deposit: %w", err)
	}
	return tx.ID(), nil
}

// Withdraw removes amount from account's Main sub-account. Coin
// selection is naive first-fit over unspent outputs in insertion
// order (§4.5, §9). If the selected outputs sum to exactly amount, a
// single transaction with no outputs is committed. If they sum to
// more, an exchange transaction splits the excess into change, and a
// second transaction spends the exact-amount half with no outputs;
// Withdraw returns the identity of that second transaction.
func (l *Ledger) Withdraw(account AccountId, reference string, amount Amount) (TxID, error) {
	if reference == "" {
		return TxID{}, ErrEmptyReference
	}

	unspent, err := l.store.GetUnspent(account, Main)
	if err != nil {
		return TxID{}, fmt.Errorf("ledger: withdraw: %w", err)
	}

	selected, total, ok := selectCoins(unspent, amount)
	if !ok {
		return TxID{}, fmt.Errorf("ledger: withdraw: %w", ErrInsufficientBalance)
	}

	inputs := inputsFrom(selected)

	if total == amount {
		tx := NewTransaction(inputs, nil, reference)
		if err := l.store.Store(tx); err != nil {
			return TxID{}, fmt.Errorf("ledger: withdraw: %w", err)
		}
		return tx.ID(), nil
	}

	change, err := SubAmount(total, amount)
	if err != nil {
		return TxID{}, fmt.Errorf("ledger: withdraw: %w", err)
	}

	exchange := NewTransaction(inputs, []Output{
		{Account: account, SubAccount: Main, Amount: amount},
		{Account: account, SubAccount: Main, Amount: change},
	}, reference)
	if err := l.store.Store(exchange); err != nil {
		return TxID{}, fmt.Errorf("ledger: withdraw: exchange: %w", err)
	}

	spend := NewTransaction([]Input{{Output: OutputID{TxID: exchange.ID(), Index: 0}}}, nil, reference)
	if err := l.store.Store(spend); err != nil {
		return TxID{}, fmt.Errorf("ledger: withdraw: %w", err)
	}
	return spend.ID(), nil
}

// Dispute moves the amount referenced by an earlier deposit from Main
// to Disputed. It locates the most recent transaction bearing
// reference to determine the disputed amount, then spends that amount
// out of the account's *current* Main UTXOs — not literally the cited
// transaction's own outputs, which may since have been swept into
// other transactions (e.g. as change from an intervening withdrawal).
// The produced transaction(s) carry the same reference so resolve and
// chargeback can find the current holder of the funds.
func (l *Ledger) Dispute(account AccountId, reference string) (TxID, error) {
	return l.moveSubAccount(account, reference, Main, Disputed)
}

// Resolve returns disputed funds to Main. Symmetric to Dispute.
func (l *Ledger) Resolve(account AccountId, reference string) (TxID, error) {
	return l.moveSubAccount(account, reference, Disputed, Main)
}

// Chargeback moves disputed funds to the terminal Chargeback
// sub-account. No public operation ever spends from Chargeback.
func (l *Ledger) Chargeback(account AccountId, reference string) (TxID, error) {
	return l.moveSubAccount(account, reference, Disputed, Chargeback)
}

// moveSubAccount implements the shared shape of dispute/resolve/
// chargeback. It looks up the latest transaction for reference to
// learn the amount originally moved for (account, from), then selects
// that amount fresh from the account's current (account, from) UTXOs
// — the same coin-selection-plus-change mechanism Withdraw uses —
// and produces an output at (account, to) for that amount, carrying
// the same reference forward.
func (l *Ledger) moveSubAccount(account AccountId, reference string, from, to SubAccount) (TxID, error) {
	if reference == "" {
		return TxID{}, ErrEmptyReference
	}

	found, err := l.store.GetTxByReference(reference)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TxID{}, fmt.Errorf("ledger: %w", ErrUnknownReference)
		}
		return TxID{}, fmt.Errorf("ledger: lookup reference: %w", err)
	}

	var target Amount
	for _, out := range found.Outputs() {
		if out.Account != account || out.SubAccount != from {
			continue
		}
		target, err = AddAmount(target, out.Amount)
		if err != nil {
			return TxID{}, fmt.Errorf("ledger: %w", err)
		}
	}
	if target == 0 {
		return TxID{}, fmt.Errorf("ledger: %w", ErrInsufficientBalance)
	}

	unspent, err := l.store.GetUnspent(account, from)
	if err != nil {
		return TxID{}, fmt.Errorf("ledger: %w", err)
	}
	selected, total, ok := selectCoins(unspent, target)
	if !ok {
		return TxID{}, fmt.Errorf("ledger: %w", ErrInsufficientBalance)
	}
	inputs := inputsFrom(selected)

	if total == target {
		tx := NewTransaction(inputs, []Output{{Account: account, SubAccount: to, Amount: target}}, reference)
		if err := l.store.Store(tx); err != nil {
			return TxID{}, fmt.Errorf("ledger: %w", err)
		}
		return tx.ID(), nil
	}

	change, err := SubAmount(total, target)
	if err != nil {
		return TxID{}, fmt.Errorf("ledger: %w", err)
	}

	exchange := NewTransaction(inputs, []Output{
		{Account: account, SubAccount: from, Amount: target},
		{Account: account, SubAccount: from, Amount: change},
	}, reference)
	if err := l.store.Store(exchange); err != nil {
		return TxID{}, fmt.Errorf("ledger: exchange: %w", err)
	}

	move := NewTransaction(
		[]Input{{Output: OutputID{TxID: exchange.ID(), Index: 0}}},
		[]Output{{Account: account, SubAccount: to, Amount: target}},
		reference,
	)
	if err := l.store.Store(move); err != nil {
		return TxID{}, fmt.Errorf("ledger: %w", err)
	}
	return move.ID(), nil
}

// GetBalances returns the Main-sub-account balance of every account
// that currently or historically held Main funds. Disputed and
// Chargeback totals are never included — this is the Ledger's view of
// what a user can spend, distinct from Storage.GetAccounts' full view.
func (l *Ledger) GetBalances() (map[AccountId]Amount, error) {
	accounts, err := l.store.GetAccounts()
	if err != nil {
		return nil, fmt.Errorf("ledger: get balances: %w", err)
	}

	balances := make(map[AccountId]Amount, len(accounts))
	for _, a := range accounts {
		if a.SubAccount != Main {
			continue
		}
		balances[a.Account] = a.Amount
	}
	return balances, nil
}

// selectCoins greedily accumulates unspent outputs in the order given
// until the running total reaches amount. Returns ok=false if the
// full list is exhausted first.
func selectCoins(unspent []UnspentOutput, amount Amount) (selected []UnspentOutput, total Amount, ok bool) {
	for _, u := range unspent {
		selected = append(selected, u)
		var err error
		total, err = AddAmount(total, u.Amount)
		if err != nil {
			return nil, 0, false
		}
		if total >= amount {
			return selected, total, true
		}
	}
	return nil, 0, false
}

func inputsFrom(unspent []UnspentOutput) []Input {
	inputs := make([]Input, len(unspent))
	for i, u := range unspent {
		inputs[i] = Input{Output: u.ID}
	}
	return inputs
}
