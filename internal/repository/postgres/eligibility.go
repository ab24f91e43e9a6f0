package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"rentacar-backend/internal/domain"
	"rentacar-backend/internal/repository"
)

type eligibilityRepository struct {
	db DBTX
}

func NewEligibilityRepository(db DBTX) repository.EligibilityRepository {
	return &eligibilityRepository{db: db}
}

func (r *eligibilityRepository) Adjust(ctx context.Context, username string, delta, floor, ceiling int) (int, error) {
	query := `UPDATE users SET eligibility_score = LEAST($4, GREATEST($3, eligibility_score + $2))
	          WHERE username = $1 RETURNING eligibility_score`
	var score int
	err := r.db.QueryRowContext(ctx, query, username, delta, floor, ceiling).Scan(&score)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrCustomerNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("adjust eligibility for %s: %w", username, err)
	}
	return score, nil
}

func (r *eligibilityRepository) Initialize(ctx context.Context, username string, score int) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET eligibility_score = $2 WHERE username = $1`, username, score)
	ok, err := affected(res, err)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrCustomerNotFound
	}
	return nil
}
