package amqp

import (
	"encoding/json"
	"time"

	"github.com/mlaanderson/budget-v3/internal/importer"
)

// ImportBatchMessage carries one bulk import batch: the budget coordinates
// of the target account plus the externally sourced records to ingest.
type ImportBatchMessage struct {
	Owner     string          `json:"owner"`
	Budget    string          `json:"budget"`
	Account   string          `json:"account"`
	Items     []importer.Item `json:"items"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewImportBatchMessage creates a batch message for the given account.
func NewImportBatchMessage(owner, budget, account string, items []importer.Item) *ImportBatchMessage {
	return &ImportBatchMessage{
		Owner:     owner,
		Budget:    budget,
		Account:   account,
		Items:     items,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ImportBatchMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ImportBatchMessageFromJSON creates a message from JSON bytes
func ImportBatchMessageFromJSON(data []byte) (*ImportBatchMessage, error) {
	var msg ImportBatchMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
