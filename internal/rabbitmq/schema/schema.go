package schema

import (
	"encoding/json"
	"time"
)

// ReminderDue is published for reminders routed to an external transport.
type ReminderDue struct {
	Recipient   string    `json:"recipient"`
	Payload     string    `json:"payload"`
	PublishedAt time.Time `json:"published_at"`
}

func (r *ReminderDue) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

func (r *ReminderDue) Unmarshal(data []byte) error {
	return json.Unmarshal(data, r)
}

// ReminderSubmitted is consumed from chat front ends to submit a text.
type ReminderSubmitted struct {
	OwnerID string `json:"owner_id"`
	Payload string `json:"payload"`
}

func (r *ReminderSubmitted) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

func (r *ReminderSubmitted) Unmarshal(data []byte) error {
	return json.Unmarshal(data, r)
}
