package amqp

import (
	"encoding/json"
	"time"

	"casheye/internal/core"
)

// LedgerAppendedMessage announces lines that were merged into the ledger.
// It carries the lines themselves because the ledger has no row ids a
// consumer could look up.
type LedgerAppendedMessage struct {
	Source    string             `json:"source"`
	Lines     []core.ReceiptLine `json:"lines"`
	Timestamp time.Time          `json:"timestamp"`
}

func NewLedgerAppendedMessage(source string, lines []core.ReceiptLine) *LedgerAppendedMessage {
	return &LedgerAppendedMessage{
		Source:    source,
		Lines:     lines,
		Timestamp: time.Now(),
	}
}

func (m *LedgerAppendedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerAppendedMessageFromJSON(data []byte) (*LedgerAppendedMessage, error) {
	var msg LedgerAppendedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
