package broadcast

import (
	"encoding/json"
	"time"

	"github.com/boddenberg/fintrack-go/internal/domain"
)

// StorageMessage is the AMQP payload for one storage change.
type StorageMessage struct {
	Key       string    `json:"key"`
	Value     *string   `json:"value"`
	Origin    string    `json:"origin"`
	Timestamp time.Time `json:"timestamp"`
}

// NewStorageMessage wraps a change for publishing.
func NewStorageMessage(change domain.StorageChange) *StorageMessage {
	return &StorageMessage{
		Key:       change.Key,
		Value:     change.Value,
		Origin:    change.Origin,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes.
func (m *StorageMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// Change returns the storage change carried by the message.
func (m *StorageMessage) Change() domain.StorageChange {
	return domain.StorageChange{Key: m.Key, Value: m.Value, Origin: m.Origin}
}

// StorageMessageFromJSON decodes a message received from the exchange.
func StorageMessageFromJSON(data []byte) (*StorageMessage, error) {
	var msg StorageMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
