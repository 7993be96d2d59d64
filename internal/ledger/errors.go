package ledger

import "errors"

// Error kinds surfaced by the core (§7 of SPEC_FULL.md). Callers
// should compare with errors.Is since storage backends and the Ledger
// façade wrap these with additional context via fmt.Errorf("...: %w").
var (
	// ErrInsufficientBalance is returned when a withdrawal or dispute
	// exceeds the available unspent amount on the required sub-account.
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")

	// ErrUnknownReference is returned when dispute/resolve/chargeback
	// cite a reference not indexed by storage.
	ErrUnknownReference = errors.New("ledger: unknown reference")

	// ErrInputNotFound is returned when a transaction references an
	// OutputID storage does not know about.
	ErrInputNotFound = errors.New("ledger: input not found")

	// ErrDoubleSpend is returned when a transaction references an
	// already-spent OutputID.
	ErrDoubleSpend = errors.New("ledger: output already spent")

	// ErrOverflow is returned when amount arithmetic would exceed the
	// 64-bit unsigned domain (or underflow below zero).
	ErrOverflow = errors.New("ledger: amount overflow")

	// ErrHashingFailure is reserved. No normal path triggers it: the
	// hashing primitive (chainhash.DoubleHashH) has no error return.
	ErrHashingFailure = errors.New("ledger: hashing failure")

	// ErrEmptyReference is returned when a public Ledger operation is
	// called with an empty reference string; the data model requires
	// every externally initiated transaction to carry one.
	ErrEmptyReference = errors.New("ledger: reference must not be empty")

	// ErrNotFound is the generic storage-contract failure mode for
	// GetTx and GetTxByReference when no matching transaction exists.
	ErrNotFound = errors.New("ledger: transaction not found")
)
