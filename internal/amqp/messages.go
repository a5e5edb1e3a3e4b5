package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// Mutation operations carried in MutationEvent.Op.
const (
	OpCreate = "create"
	OpDelete = "delete"
)

// MutationEvent announces a transaction created or deleted by this client.
// It carries only ids; consumers fetch details from the collaborator.
type MutationEvent struct {
	Op            string    `json:"op"`
	TransactionID string    `json:"transaction_id"`
	UserID        string    `json:"user_id"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewMutationEvent creates an event stamped with the current time
func NewMutationEvent(op, transactionID, userID string) *MutationEvent {
	return &MutationEvent{
		Op:            op,
		TransactionID: transactionID,
		UserID:        userID,
		Timestamp:     time.Now().UTC(),
	}
}

func (m *MutationEvent) Validate() error {
	if m.Op != OpCreate && m.Op != OpDelete {
		return errors.New("unknown mutation op: " + m.Op)
	}
	if m.TransactionID == "" {
		return errors.New("missing transaction id")
	}
	return nil
}

// ToJSON converts the message to JSON bytes
func (m *MutationEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// MutationEventFromJSON decodes and validates a message body
func MutationEventFromJSON(data []byte) (*MutationEvent, error) {
	var msg MutationEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
