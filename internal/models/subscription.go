package models

// Subscription plans
const (
	PlanBasic      = "basic"
	PlanPro        = "pro"
	PlanEnterprise = "enterprise"
)

// ValidPlan reports whether name is a known subscription plan.
func ValidPlan(name string) bool {
	switch name {
	case PlanBasic, PlanPro, PlanEnterprise:
		return true
	}
	return false
}

// Plan describes a purchasable subscription plan as exposed by the billing
// provider's catalog.
type Plan struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	Interval string  `json:"interval"`
}
