package events

import (
	"encoding/json"
	"time"

	"ledger/internal/ledger"
)

// Message announces one committed ledger mutation. It carries only the id;
// consumers fetch the record itself from the ledger database.
type Message struct {
	Seq           uint64    `json:"seq"`
	Op            ledger.Op `json:"op"`
	TransactionID string    `json:"transaction_id"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewMessage builds the message for a change.
func NewMessage(c ledger.Change) Message {
	return Message{
		Seq:           c.Seq,
		Op:            c.Op,
		TransactionID: c.ID,
		Timestamp:     c.At.UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// MessageFromJSON decodes a message and checks it names a transaction and
// a known operation.
func MessageFromJSON(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, err
	}
	if msg.TransactionID == "" {
		return Message{}, ErrMissingTransactionID
	}
	switch msg.Op {
	case ledger.OpInsert, ledger.OpUpdate, ledger.OpDelete:
	default:
		return Message{}, ErrUnknownOp
	}
	return msg, nil
}
