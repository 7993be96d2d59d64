// Package sqlitestore is a second conformant ledger.Storage backend,
// persisting the same contract as storage/memory to a SQLite database.
package sqlitestore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/klingon-exchange/ledger-engine/internal/ledger"
)

// Store is a SQLite-backed ledger.Storage.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS transactions (
	txid         BLOB PRIMARY KEY,
	reference    TEXT NOT NULL,
	timestamp_us INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tx_inputs (
	txid     BLOB NOT NULL,
	idx      INTEGER NOT NULL,
	ref_txid BLOB NOT NULL,
	ref_idx  INTEGER NOT NULL,
	PRIMARY KEY (txid, idx)
);

CREATE TABLE IF NOT EXISTS tx_outputs (
	txid          BLOB NOT NULL,
	idx           INTEGER NOT NULL,
	account       INTEGER NOT NULL,
	sub_account   INTEGER NOT NULL,
	amount        INTEGER NOT NULL,
	spent         INTEGER NOT NULL DEFAULT 0,
	spent_by_txid BLOB,
	PRIMARY KEY (txid, idx)
);

CREATE INDEX IF NOT EXISTS idx_tx_outputs_unspent ON tx_outputs(account, sub_account, spent);

CREATE TABLE IF NOT EXISTS reference_index (
	reference TEXT PRIMARY KEY,
	txid      BLOB NOT NULL
);
`

// Open opens (creating if necessary) a SQLite-backed Store at path.
// path may be a file path or ":memory:"; callers that need an
// isolated in-memory database for tests should also call
// db.SetMaxOpenConns(1) semantics, which Open applies itself since
// SQLite permits only one writer.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != ":memory:" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("sqlitestore: create data directory: %w", err)
		}
	}

	dsn := path
	if path != ":memory:" {
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: ping: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: init schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// Store implements ledger.Storage.Store. Every validation and mutation
// happens inside one database transaction, so a failure at any input
// rolls back the whole attempt per §4.3's atomicity requirement.
func (s *Store) Store(tx *ledger.Transaction) error {
	dbTx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("sqlitestore: begin: %w", err)
	}
	defer dbTx.Rollback() //nolint:errcheck // no-op once committed

	id := tx.ID()

	for i, in := range tx.Inputs() {
		var spent int
		err := dbTx.QueryRow(
			`SELECT spent FROM tx_outputs WHERE txid = ? AND idx = ?`,
			in.Output.TxID[:], in.Output.Index,
		).Scan(&spent)
		if err == sql.ErrNoRows {
			return fmt.Errorf("sqlitestore: input %s: %w", in.Output, ledger.ErrInputNotFound)
		}
		if err != nil {
			return fmt.Errorf("sqlitestore: check input: %w", err)
		}
		if spent != 0 {
			return fmt.Errorf("sqlitestore: input %s: %w", in.Output, ledger.ErrDoubleSpend)
		}

		if _, err := dbTx.Exec(
			`UPDATE tx_outputs SET spent = 1, spent_by_txid = ? WHERE txid = ? AND idx = ?`,
			id[:], in.Output.TxID[:], in.Output.Index,
		); err != nil {
			return fmt.Errorf("sqlitestore: mark spent: %w", err)
		}

		if _, err := dbTx.Exec(
			`INSERT INTO tx_inputs (txid, idx, ref_txid, ref_idx) VALUES (?, ?, ?, ?)`,
			id[:], i, in.Output.TxID[:], in.Output.Index,
		); err != nil {
			return fmt.Errorf("sqlitestore: record input: %w", err)
		}
	}

	if _, err := dbTx.Exec(
		`INSERT INTO transactions (txid, reference, timestamp_us) VALUES (?, ?, ?)`,
		id[:], tx.Reference(), tx.Timestamp(),
	); err != nil {
		return fmt.Errorf("sqlitestore: record transaction: %w", err)
	}

	for i, out := range tx.Outputs() {
		if _, err := dbTx.Exec(
			`INSERT INTO tx_outputs (txid, idx, account, sub_account, amount, spent) VALUES (?, ?, ?, ?, ?, 0)`,
			id[:], i, uint64(out.Account), uint8(out.SubAccount), uint64(out.Amount),
		); err != nil {
			return fmt.Errorf("sqlitestore: record output: %w", err)
		}
	}

	if _, err := dbTx.Exec(
		`INSERT INTO reference_index (reference, txid) VALUES (?, ?)
		 ON CONFLICT(reference) DO UPDATE SET txid = excluded.txid`,
		tx.Reference(), id[:],
	); err != nil {
		return fmt.Errorf("sqlitestore: update reference index: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("sqlitestore: commit: %w", err)
	}
	return nil
}

// GetUnspent implements ledger.Storage.GetUnspent, ordering by SQLite's
// implicit rowid to preserve insertion order.
func (s *Store) GetUnspent(account ledger.AccountId, sub ledger.SubAccount) ([]ledger.UnspentOutput, error) {
	rows, err := s.db.Query(
		`SELECT txid, idx, amount FROM tx_outputs
		 WHERE account = ? AND sub_account = ? AND spent = 0
		 ORDER BY rowid ASC`,
		uint64(account), uint8(sub),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: get unspent: %w", err)
	}
	defer rows.Close()

	var result []ledger.UnspentOutput
	for rows.Next() {
		var txidBytes []byte
		var idx uint32
		var amount uint64
		if err := rows.Scan(&txidBytes, &idx, &amount); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan unspent: %w", err)
		}
		var id ledger.TxID
		copy(id[:], txidBytes)
		result = append(result, ledger.UnspentOutput{
			ID:     ledger.OutputID{TxID: id, Index: idx},
			Amount: ledger.Amount(amount),
		})
	}
	return result, rows.Err()
}

// GetTx implements ledger.Storage.GetTx, reconstructing the
// transaction from its stored inputs/outputs/reference/timestamp.
func (s *Store) GetTx(id ledger.TxID) (*ledger.Transaction, error) {
	var reference string
	var timestamp uint64
	err := s.db.QueryRow(
		`SELECT reference, timestamp_us FROM transactions WHERE txid = ?`, id[:],
	).Scan(&reference, &timestamp)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("sqlitestore: tx %s: %w", id, ledger.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: get tx: %w", err)
	}

	inputs, err := s.loadInputs(id)
	if err != nil {
		return nil, err
	}
	outputs, err := s.loadOutputs(id)
	if err != nil {
		return nil, err
	}

	return ledger.NewTransactionAt(inputs, outputs, reference, timestamp), nil
}

// GetTxByReference implements ledger.Storage.GetTxByReference.
func (s *Store) GetTxByReference(reference string) (*ledger.Transaction, error) {
	var txidBytes []byte
	err := s.db.QueryRow(`SELECT txid FROM reference_index WHERE reference = ?`, reference).Scan(&txidBytes)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("sqlitestore: reference %q: %w", reference, ledger.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: get tx by reference: %w", err)
	}
	var id ledger.TxID
	copy(id[:], txidBytes)
	return s.GetTx(id)
}

// GetAccounts implements ledger.Storage.GetAccounts. sub_account is
// stored as the enum's underlying integer, so ORDER BY sub_account
// already yields the fixed Main/Disputed/Chargeback ordering.
func (s *Store) GetAccounts() ([]ledger.AccountBalance, error) {
	rows, err := s.db.Query(
		`SELECT account, sub_account, COALESCE(SUM(CASE WHEN spent = 0 THEN amount ELSE 0 END), 0)
		 FROM tx_outputs
		 GROUP BY account, sub_account
		 ORDER BY account ASC, sub_account ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: get accounts: %w", err)
	}
	defer rows.Close()

	var result []ledger.AccountBalance
	for rows.Next() {
		var account uint64
		var sub uint8
		var amount uint64
		if err := rows.Scan(&account, &sub, &amount); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan account: %w", err)
		}
		result = append(result, ledger.AccountBalance{
			Account:    ledger.AccountId(account),
			SubAccount: ledger.SubAccount(sub),
			Amount:     ledger.Amount(amount),
		})
	}
	return result, rows.Err()
}

func (s *Store) loadInputs(id ledger.TxID) ([]ledger.Input, error) {
	rows, err := s.db.Query(
		`SELECT ref_txid, ref_idx FROM tx_inputs WHERE txid = ? ORDER BY idx ASC`, id[:],
	)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: load inputs: %w", err)
	}
	defer rows.Close()

	var inputs []ledger.Input
	for rows.Next() {
		var refTxidBytes []byte
		var refIdx uint32
		if err := rows.Scan(&refTxidBytes, &refIdx); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan input: %w", err)
		}
		var refID ledger.TxID
		copy(refID[:], refTxidBytes)
		inputs = append(inputs, ledger.Input{Output: ledger.OutputID{TxID: refID, Index: refIdx}})
	}
	return inputs, rows.Err()
}

func (s *Store) loadOutputs(id ledger.TxID) ([]ledger.Output, error) {
	rows, err := s.db.Query(
		`SELECT account, sub_account, amount FROM tx_outputs WHERE txid = ? ORDER BY idx ASC`, id[:],
	)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: load outputs: %w", err)
	}
	defer rows.Close()

	var outputs []ledger.Output
	for rows.Next() {
		var account uint64
		var sub uint8
		var amount uint64
		if err := rows.Scan(&account, &sub, &amount); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan output: %w", err)
		}
		outputs = append(outputs, ledger.Output{
			Account:    ledger.AccountId(account),
			SubAccount: ledger.SubAccount(sub),
			Amount:     ledger.Amount(amount),
		})
	}
	return outputs, rows.Err()
}
