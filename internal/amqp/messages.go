package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"foodlog/internal/core"
)

// Change operations carried by EntryChangedMessage.
const (
	OpAdd    = "add"
	OpRemove = "remove"
	OpImport = "import"
)

// EntryChangedMessage announces a committed change to one (date, name) row.
// Quantity is the value after the change; zero means the row was deleted.
type EntryChangedMessage struct {
	ID        string    `json:"id"`
	Date      string    `json:"date"`
	Name      string    `json:"name"`
	Quantity  int       `json:"quantity"`
	Op        string    `json:"op"`
	Timestamp time.Time `json:"timestamp"`
}

func NewEntryChangedMessage(day core.Day, name string, quantity int, op string) *EntryChangedMessage {
	return &EntryChangedMessage{
		ID:        uuid.NewString(),
		Date:      day.String(),
		Name:      name,
		Quantity:  quantity,
		Op:        op,
		Timestamp: time.Now().UTC(),
	}
}

// Day parses the message date.
func (m *EntryChangedMessage) Day() (core.Day, error) {
	return core.ParseDay(m.Date)
}

func (m *EntryChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func EntryChangedMessageFromJSON(data []byte) (*EntryChangedMessage, error) {
	var msg EntryChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
