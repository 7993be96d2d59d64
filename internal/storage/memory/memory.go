// Package memory is the reference Storage implementation: an
// append-only transaction log backed by plain Go maps, guarded by a
// mutex. Its branch semantics (input-not-found, already-spent,
// duplicate-reference overwrite, insertion ordering) are part of the
// storage contract's surface, not an implementation detail.
package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/klingon-exchange/ledger-engine/internal/ledger"
)

type accountSubKey struct {
	account ledger.AccountId
	sub     ledger.SubAccount
}

// Store is the in-memory reference implementation of ledger.Storage.
// The zero value is not usable; construct with New.
type Store struct {
	mu sync.Mutex

	log []ledger.TxID
	txs map[ledger.TxID]*ledger.Transaction

	// outputs holds every output ever produced, regardless of spent
	// status, so input validation can distinguish "never existed"
	// from "already spent".
	outputs map[ledger.OutputID]ledger.Output
	spent   map[ledger.OutputID]struct{}

	// unspent holds, per (account, sub-account), the OutputIDs
	// currently unspent in insertion order.
	unspent map[accountSubKey][]ledger.OutputID

	// knownPairs tracks every (account, sub-account) that has ever
	// held an output, so GetAccounts can report zero balances for
	// pairs that were fully spent.
	knownPairs map[accountSubKey]struct{}

	byReference map[string]ledger.TxID
}

// New returns an empty in-memory Store.
func New() *Store {
	return &Store{
		txs:         make(map[ledger.TxID]*ledger.Transaction),
		outputs:     make(map[ledger.OutputID]ledger.Output),
		spent:       make(map[ledger.OutputID]struct{}),
		unspent:     make(map[accountSubKey][]ledger.OutputID),
		knownPairs:  make(map[accountSubKey]struct{}),
		byReference: make(map[string]ledger.TxID),
	}
}

// Store implements ledger.Storage.Store (§4.4 algorithm).
func (s *Store) Store(tx *ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inputs := tx.Inputs()

	// Validate every input before mutating anything: an output must
	// exist and must not already be spent, including by an earlier
	// input in this same transaction.
	pendingSpend := make(map[ledger.OutputID]struct{}, len(inputs))
	for _, in := range inputs {
		id := in.Output
		if _, exists := s.outputs[id]; !exists {
			return fmt.Errorf("memory: input %s: %w", id, ledger.ErrInputNotFound)
		}
		if _, spent := s.spent[id]; spent {
			return fmt.Errorf("memory: input %s: %w", id, ledger.ErrDoubleSpend)
		}
		if _, already := pendingSpend[id]; already {
			return fmt.Errorf("memory: input %s: %w", id, ledger.ErrDoubleSpend)
		}
		pendingSpend[id] = struct{}{}
	}

	for id := range pendingSpend {
		s.spent[id] = struct{}{}
		out := s.outputs[id]
		key := accountSubKey{out.Account, out.SubAccount}
		s.unspent[key] = removeOutputID(s.unspent[key], id)
	}

	id := tx.ID()
	for i, out := range tx.Outputs() {
		outID := ledger.OutputID{TxID: id, Index: uint32(i)}
		s.outputs[outID] = out
		key := accountSubKey{out.Account, out.SubAccount}
		s.knownPairs[key] = struct{}{}
		s.unspent[key] = append(s.unspent[key], outID)
	}

	s.txs[id] = tx
	s.log = append(s.log, id)
	s.byReference[tx.Reference()] = id

	return nil
}

// GetUnspent implements ledger.Storage.GetUnspent.
func (s *Store) GetUnspent(account ledger.AccountId, sub ledger.SubAccount) ([]ledger.UnspentOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.unspent[accountSubKey{account, sub}]
	result := make([]ledger.UnspentOutput, len(ids))
	for i, id := range ids {
		result[i] = ledger.UnspentOutput{ID: id, Amount: s.outputs[id].Amount}
	}
	return result, nil
}

// GetTx implements ledger.Storage.GetTx.
func (s *Store) GetTx(id ledger.TxID) (*ledger.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.txs[id]
	if !ok {
		return nil, fmt.Errorf("memory: tx %s: %w", id, ledger.ErrNotFound)
	}
	return tx, nil
}

// GetTxByReference implements ledger.Storage.GetTxByReference.
func (s *Store) GetTxByReference(reference string) (*ledger.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byReference[reference]
	if !ok {
		return nil, fmt.Errorf("memory: reference %q: %w", reference, ledger.ErrNotFound)
	}
	return s.txs[id], nil
}

// GetAccounts implements ledger.Storage.GetAccounts.
func (s *Store) GetAccounts() ([]ledger.AccountBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]accountSubKey, 0, len(s.knownPairs))
	for k := range s.knownPairs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].account != keys[j].account {
			return keys[i].account < keys[j].account
		}
		return keys[i].sub < keys[j].sub
	})

	result := make([]ledger.AccountBalance, 0, len(keys))
	for _, k := range keys {
		var total ledger.Amount
		for _, id := range s.unspent[k] {
			var err error
			total, err = ledger.AddAmount(total, s.outputs[id].Amount)
			if err != nil {
				return nil, fmt.Errorf("memory: balance of account %d %s: %w", k.account, k.sub, err)
			}
		}
		result = append(result, ledger.AccountBalance{Account: k.account, SubAccount: k.sub, Amount: total})
	}
	return result, nil
}

func removeOutputID(ids []ledger.OutputID, target ledger.OutputID) []ledger.OutputID {
	for i, id := range ids {
		if id == target {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
