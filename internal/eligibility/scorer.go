package eligibility

import (
	"math"

	"rentacar-backend/internal/config"
	"rentacar-backend/internal/domain"
)

// Scorer folds drop-off settlement signals into an eligibility score delta.
type Scorer struct {
	cfg config.EligibilityConfig
}

func NewScorer(cfg config.EligibilityConfig) *Scorer {
	cfg.ApplyDefaults()
	return &Scorer{cfg: cfg}
}

// Categorize maps a car model's daily rate onto the ordered category table.
func (s *Scorer) Categorize(model domain.CarModel) domain.CarCategory {
	return CategoryFor(model.DailyRateCents, s.cfg.CategoryThresholds)
}

// CategoryFor returns the first category whose cut point is above metric.
func CategoryFor(metric int64, thresholds []int64) domain.CarCategory {
	for i, cut := range thresholds {
		if metric < cut {
			return domain.CarCategory(i)
		}
	}
	return domain.CarCategory(len(thresholds))
}

// Compute returns the signed delta for one settlement. A clean settlement
// earns the reward; otherwise the summed penalty is scaled by category.
func (s *Scorer) Compute(st domain.Settlement, category domain.CarCategory) int {
	penalty := s.penalty(st)
	if penalty == 0 {
		return s.clampDelta(s.cfg.CleanReward)
	}
	scaled := roundHalfAway(float64(penalty) * s.multiplier(category))
	return s.clampDelta(-scaled)
}

// Apply clamps score+delta into the configured score bounds.
func (s *Scorer) Apply(score, delta int) int {
	return clamp(score+delta, s.cfg.MinScore, s.cfg.MaxScore)
}

func (s *Scorer) InitialScore() int { return s.cfg.InitialScore }
func (s *Scorer) MinScore() int     { return s.cfg.MinScore }
func (s *Scorer) MaxScore() int     { return s.cfg.MaxScore }

func (s *Scorer) penalty(st domain.Settlement) int {
	p := 0
	if st.WasDeliveryLate {
		p += s.cfg.LatePenalty
	}
	if st.WasChargedFee {
		p += s.cfg.FeePenalty
	}
	if st.WasVehicleDamaged {
		p += s.cfg.DamagePenalty
	}
	if st.WasInvolvedInAccident {
		p += s.cfg.AccidentPenalty
	}
	p += st.DamageLevel * s.cfg.DamageLevelPenalty
	p += st.DirtinessLevel * s.cfg.DirtinessLevelPenalty
	return p
}

func (s *Scorer) multiplier(c domain.CarCategory) float64 {
	m := s.cfg.CategoryMultipliers
	switch {
	case int(c) < 0:
		return m[0]
	case int(c) >= len(m):
		return m[len(m)-1]
	}
	return m[c]
}

func (s *Scorer) clampDelta(d int) int {
	return clamp(d, s.cfg.MinDelta, s.cfg.MaxDelta)
}

func roundHalfAway(f float64) int {
	return int(math.Round(f))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
