package ledger

// Storage is the contract any backend must satisfy (§4.3 of
// SPEC_FULL.md). The Ledger façade is the only consumer of this
// interface; it holds no mutable state of its own and is safe to use
// concurrently exactly to the extent the chosen Storage implementation
// is.
type Storage interface {
	// Store commits tx atomically: either every referenced input is
	// marked spent and every output becomes visible as unspent, or
	// nothing changes. Returns ErrInputNotFound or ErrDoubleSpend on
	// the respective failure mode.
	Store(tx *Transaction) error

	// GetUnspent returns the unspent outputs of (account, sub) in
	// insertion order (oldest first).
	GetUnspent(account AccountId, sub SubAccount) ([]UnspentOutput, error)

	// GetTx looks up a transaction by its identity. Returns
	// ErrNotFound if no such transaction was ever stored.
	GetTx(id TxID) (*Transaction, error)

	// GetTxByReference returns the most recently stored transaction
	// bearing the given reference ("most recent wins", see §4.3).
	// Returns ErrNotFound if no transaction carries that reference.
	GetTxByReference(reference string) (*Transaction, error)

	// GetAccounts returns every (account, sub-account) pair that has
	// ever held an output, with its current unspent balance, ordered
	// ascending by AccountId then by the fixed sub-account ordering
	// (Main, Disputed, Chargeback).
	GetAccounts() ([]AccountBalance, error)
}
