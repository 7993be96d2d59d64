package ledger

import (
	"encoding/binary"
	"time"
)

// Transaction is an immutable tuple of inputs, outputs, a client
// reference and a microsecond timestamp. Its Identity (TxID) is a
// hash of those canonical fields, cached at construction time since
// nothing about a Transaction ever changes afterward.
type Transaction struct {
	inputs    []Input
	outputs   []Output
	reference string
	timestamp uint64
	id        TxID
}

// NewTransaction builds a Transaction, substituting the current wall
// clock (in microseconds) as its timestamp.
func NewTransaction(inputs []Input, outputs []Output, reference string) *Transaction {
	return NewTransactionAt(inputs, outputs, reference, nowMicros())
}

// NewTransactionAt builds a Transaction with an explicit timestamp,
// allowing deterministic construction in tests.
func NewTransactionAt(inputs []Input, outputs []Output, reference string, timestampMicros uint64) *Transaction {
	tx := &Transaction{
		inputs:    append([]Input(nil), inputs...),
		outputs:   append([]Output(nil), outputs...),
		reference: reference,
		timestamp: timestampMicros,
	}
	tx.id = computeTxID(tx.inputs, tx.outputs, tx.reference, tx.timestamp)
	return tx
}

func nowMicros() uint64 {
	return uint64(time.Now().UnixMicro())
}

// ID returns the transaction's cached content-addressed identity.
func (t *Transaction) ID() TxID { return t.id }

// Inputs returns a copy of the transaction's ordered input list.
func (t *Transaction) Inputs() []Input { return append([]Input(nil), t.inputs...) }

// Outputs returns a copy of the transaction's ordered output list.
func (t *Transaction) Outputs() []Output { return append([]Output(nil), t.outputs...) }

// Reference returns the client-supplied reference string.
func (t *Transaction) Reference() string { return t.reference }

// Timestamp returns the transaction's microsecond timestamp.
func (t *Transaction) Timestamp() uint64 { return t.timestamp }

// bytes serialises an Input as TxId‖index_le_u32 (36 bytes).
func (in Input) bytes() []byte {
	buf := make([]byte, hashSize+4)
	copy(buf, in.Output.TxID[:])
	binary.LittleEndian.PutUint32(buf[hashSize:], in.Output.Index)
	return buf
}

// bytes serialises an Output as account_le_u64‖sub_account_u8‖amount_le_u64 (17 bytes).
func (o Output) bytes() []byte {
	buf := make([]byte, 17)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(o.Account))
	buf[8] = byte(o.SubAccount)
	binary.LittleEndian.PutUint64(buf[9:17], uint64(o.Amount))
	return buf
}

func canonicalInputs(inputs []Input) []byte {
	buf := make([]byte, 0, len(inputs)*(hashSize+4))
	for _, in := range inputs {
		buf = append(buf, in.bytes()...)
	}
	return buf
}

func canonicalOutputs(outputs []Output) []byte {
	buf := make([]byte, 0, len(outputs)*17)
	for _, out := range outputs {
		buf = append(buf, out.bytes()...)
	}
	return buf
}

// computeTxID implements §4.2:
//
//	TxId = h( h(canonical(inputs)) ‖ h(canonical(outputs))
//	         ‖ h(reference_utf8) ‖ h(timestamp_le_u64) )
func computeTxID(inputs []Input, outputs []Output, reference string, timestamp uint64) TxID {
	hIn := doubleHash(canonicalInputs(inputs))
	hOut := doubleHash(canonicalOutputs(outputs))
	hRef := doubleHash([]byte(reference))

	var tsBuf [8]byte
	binary.LittleEndian.PutUint64(tsBuf[:], timestamp)
	hTs := doubleHash(tsBuf[:])

	combined := make([]byte, 0, hashSize*4)
	combined = append(combined, hIn[:]...)
	combined = append(combined, hOut[:]...)
	combined = append(combined, hRef[:]...)
	combined = append(combined, hTs[:]...)

	return TxID(doubleHash(combined))
}
