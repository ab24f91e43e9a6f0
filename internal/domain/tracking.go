package domain

import "time"

type TrackingPoint struct {
	Seq        int       `json:"seq"`
	Latitude   float64   `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude  float64   `json:"longitude" validate:"gte=-180,lte=180"`
	RecordedAt time.Time `json:"recorded_at" validate:"required"`
}

// TrackingSession owns its points; Points[i].Seq == i+1.
type TrackingSession struct {
	ReservationID int64           `json:"reservation_id"`
	VehicleID     int64           `json:"vehicle_id"`
	OpenedAt      time.Time       `json:"opened_at"`
	ClosedAt      *time.Time      `json:"closed_at,omitempty"`
	Points        []TrackingPoint `json:"points"`
}

func (s *TrackingSession) Open() bool {
	return s.ClosedAt == nil
}
