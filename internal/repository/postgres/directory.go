package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"rentacar-backend/internal/domain"
)

// Directory serves the read-only customer and vehicle lookups. Those tables
// are owned by other services; nothing here writes to them.
type Directory struct {
	db DBTX
}

func NewDirectory(db DBTX) *Directory {
	return &Directory{db: db}
}

func (d *Directory) GetCustomer(ctx context.Context, username string) (*domain.Customer, error) {
	c := &domain.Customer{}
	query := `SELECT username, role, eligibility_score FROM users WHERE username = $1`
	err := d.db.QueryRowContext(ctx, query, username).Scan(&c.Username, &c.Role, &c.EligibilityScore)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCustomerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: customer lookup: %v", domain.ErrExternalDependency, err)
	}
	return c, nil
}

func (d *Directory) GetVehicle(ctx context.Context, id int64) (*domain.Vehicle, error) {
	v := &domain.Vehicle{}
	query := `SELECT v.id, v.registration, v.status, m.id, m.make, m.model,
	          m.daily_rate_cents, m.weekly_rate_cents, m.monthly_rate_cents
	          FROM vehicles v JOIN car_models m ON m.id = v.car_model_id
	          WHERE v.id = $1`
	err := d.db.QueryRowContext(ctx, query, id).Scan(&v.ID, &v.Registration, &v.Status,
		&v.Model.ID, &v.Model.Make, &v.Model.Model,
		&v.Model.DailyRateCents, &v.Model.WeeklyRateCents, &v.Model.MonthlyRateCents)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrVehicleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: vehicle lookup: %v", domain.ErrExternalDependency, err)
	}
	return v, nil
}
