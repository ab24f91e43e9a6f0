package domain

type VehicleStatus string

const (
	VehicleStatusAvailable   VehicleStatus = "AVAILABLE"
	VehicleStatusMaintenance VehicleStatus = "MAINTENANCE"
	VehicleStatusRetired     VehicleStatus = "RETIRED"
)

// CarCategory is ordered: a higher value scales eligibility penalties more.
type CarCategory int

const (
	CarCategoryEconomy CarCategory = iota
	CarCategoryMidsize
	CarCategoryFullsize
	CarCategoryPremium
	CarCategoryLuxury
)

var carCategoryNames = [...]string{"ECONOMY", "MIDSIZE", "FULLSIZE", "PREMIUM", "LUXURY"}

func (c CarCategory) String() string {
	if c < CarCategoryEconomy || c > CarCategoryLuxury {
		return "UNKNOWN"
	}
	return carCategoryNames[c]
}

// ParseCarCategory maps a category name back to its ordinal.
func ParseCarCategory(s string) (CarCategory, bool) {
	for i, n := range carCategoryNames {
		if n == s {
			return CarCategory(i), true
		}
	}
	return 0, false
}

// CarModel is read from the car model store; rates drive pricing and the
// category metric.
type CarModel struct {
	ID               int64  `json:"id"`
	Make             string `json:"make"`
	Model            string `json:"model"`
	DailyRateCents   int64  `json:"daily_rate_cents"`
	WeeklyRateCents  int64  `json:"weekly_rate_cents"`
	MonthlyRateCents int64  `json:"monthly_rate_cents"`
}

type Vehicle struct {
	ID           int64         `json:"id"`
	Registration string        `json:"registration"`
	Status       VehicleStatus `json:"status"`
	Model        CarModel      `json:"model"`
}

type CustomerRole string

const (
	RoleCustomer CustomerRole = "CUSTOMER"
	RoleStaff    CustomerRole = "STAFF"
)

// Customer is the identity lookup result used as a precondition for booking.
type Customer struct {
	Username         string       `json:"username"`
	Role             CustomerRole `json:"role"`
	EligibilityScore int          `json:"eligibility_score"`
}
