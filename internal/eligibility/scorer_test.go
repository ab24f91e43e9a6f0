package eligibility

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"rentacar-backend/internal/config"
	"rentacar-backend/internal/domain"
)

func newTestScorer() *Scorer {
	return NewScorer(config.EligibilityConfig{})
}

func TestCategoryFor(t *testing.T) {
	thresholds := []int64{4000, 6500, 9000, 15000}
	tests := []struct {
		metric   int64
		expected domain.CarCategory
	}{
		{0, domain.CarCategoryEconomy},
		{3999, domain.CarCategoryEconomy},
		{4000, domain.CarCategoryMidsize},
		{6499, domain.CarCategoryMidsize},
		{9000, domain.CarCategoryPremium},
		{14999, domain.CarCategoryPremium},
		{15000, domain.CarCategoryLuxury},
		{90000, domain.CarCategoryLuxury},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, CategoryFor(tt.metric, thresholds), "metric %d", tt.metric)
	}
}

func TestCompute(t *testing.T) {
	s := newTestScorer()

	t.Run("Damage scaled by category", func(t *testing.T) {
		st := domain.Settlement{WasVehicleDamaged: true, DamageLevel: 3}
		economy := s.Compute(st, domain.CarCategoryEconomy)
		luxury := s.Compute(st, domain.CarCategoryLuxury)

		assert.Equal(t, -21, economy) // 12 + 3*3
		assert.Equal(t, -42, luxury)
		assert.Less(t, luxury, economy)
	})

	t.Run("Clean settlement earns reward", func(t *testing.T) {
		for c := domain.CarCategoryEconomy; c <= domain.CarCategoryLuxury; c++ {
			assert.Equal(t, 2, s.Compute(domain.Settlement{}, c))
		}
	})

	t.Run("Rounds half away from zero", func(t *testing.T) {
		// 2 dirtiness levels = 4, midsize 1.25 => 5
		assert.Equal(t, -5, s.Compute(domain.Settlement{DirtinessLevel: 2}, domain.CarCategoryMidsize))
		// 1 dirtiness level = 2, midsize 1.25 => 2.5 => 3
		assert.Equal(t, -3, s.Compute(domain.Settlement{DirtinessLevel: 1}, domain.CarCategoryMidsize))
	})

	t.Run("Delta clamped at floor", func(t *testing.T) {
		st := domain.Settlement{
			WasDeliveryLate:       true,
			WasChargedFee:         true,
			WasVehicleDamaged:     true,
			WasInvolvedInAccident: true,
			DamageLevel:           5,
			DirtinessLevel:        5,
		}
		assert.Equal(t, -60, s.Compute(st, domain.CarCategoryLuxury))
	})
}

func TestApply(t *testing.T) {
	s := newTestScorer()

	assert.Equal(t, 52, s.Apply(50, 2))
	// Already at the ceiling: the reward is absorbed.
	assert.Equal(t, 100, s.Apply(100, s.Compute(domain.Settlement{}, domain.CarCategoryEconomy)))
	assert.Equal(t, 0, s.Apply(10, -42))
}

func TestNewScorerDefaults(t *testing.T) {
	s := newTestScorer()
	assert.Equal(t, 50, s.InitialScore())
	assert.Equal(t, 0, s.MinScore())
	assert.Equal(t, 100, s.MaxScore())
	assert.Equal(t, domain.CarCategoryFullsize, s.Categorize(domain.CarModel{DailyRateCents: 7000}))
}
