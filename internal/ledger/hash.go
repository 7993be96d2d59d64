// Package ledger implements the UTXO transaction/storage core: content
// addressed transactions, the storage contract any backend must satisfy,
// and the Ledger façade that builds transactions for the public operations.
package ledger

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// hashSize is the width of the double-SHA-256 digest used throughout
// the engine for both field digests and transaction identity.
const hashSize = 32

// doubleHash computes h(b) = SHA256(SHA256(b)).
//
// chainhash.Hash reverses byte order on display (a Bitcoin-txid
// convention); the engine only wants the raw digest, so the result is
// converted to a plain [32]byte rather than carrying chainhash.Hash
// itself through the API.
func doubleHash(b []byte) [hashSize]byte {
	return [hashSize]byte(chainhash.DoubleHashH(b))
}
