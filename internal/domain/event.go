package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type EventType string

const (
	EventCreated   EventType = "CREATED"
	EventUpdated   EventType = "UPDATED"
	EventDeleted   EventType = "DELETED"
	EventFinalized EventType = "FINALIZED"
	EventPickedUp  EventType = "PICKED_UP"
	EventConfirmed EventType = "CONFIRMED"
	EventExpired   EventType = "EXPIRED"
	EventCopied    EventType = "COPIED"
)

// Event is a lifecycle event recorded in the same transaction as the
// transition that produced it and relayed to the bus afterwards.
type Event struct {
	ID            int64             `json:"id"`
	ReservationID int64             `json:"reservation_id"`
	Type          EventType         `json:"type"`
	Version       int32             `json:"version"`
	Status        ReservationStatus `json:"status"`
	Payload       json.RawMessage   `json:"payload"`
	OccurredAt    time.Time         `json:"occurred_at"`
	PublishedAt   *time.Time        `json:"published_at,omitempty"`
	Attempts      int               `json:"-"`
	LastError     *string           `json:"-"`
}

// NewEvent snapshots r into an event of type t.
func NewEvent(t EventType, r *Reservation, at time.Time) (*Event, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal reservation snapshot: %w", err)
	}
	return &Event{
		ReservationID: r.ID,
		Type:          t,
		Version:       r.Version,
		Status:        r.Status,
		Payload:       payload,
		OccurredAt:    at,
	}, nil
}

// DedupKey identifies an event for idempotent consumers.
func (e *Event) DedupKey() string {
	return fmt.Sprintf("%d:%s:%d", e.ReservationID, e.Type, e.Version)
}

// Snapshot decodes the reservation carried in the payload.
func (e *Event) Snapshot() (*Reservation, error) {
	var r Reservation
	if err := json.Unmarshal(e.Payload, &r); err != nil {
		return nil, fmt.Errorf("decode reservation snapshot: %w", err)
	}
	return &r, nil
}
