package domain

import "time"

type OccupancyState string

const (
	OccupancyHold   OccupancyState = "HOLD"
	OccupancyActive OccupancyState = "ACTIVE"
)

// Occupancy is the ledger row for one reservation on one vehicle.
// The interval is half-open: [StartsAt, EndsAt).
type Occupancy struct {
	ReservationID int64          `json:"reservation_id"`
	VehicleID     int64          `json:"vehicle_id"`
	StartsAt      time.Time      `json:"starts_at"`
	EndsAt        time.Time      `json:"ends_at"`
	State         OccupancyState `json:"state"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Overlaps reports whether two half-open intervals intersect.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

func (o Occupancy) Overlaps(start, end time.Time) bool {
	return Overlaps(o.StartsAt, o.EndsAt, start, end)
}
