package auth

import "github.com/payward/payward/internal/models"

// SubscriptionEntitlements gates paid features on live subscription state,
// applying the same staff exemption the login gate uses. Because Authenticate
// re-resolves the identity on every request, a subscription that lapses
// mid-session loses access on its next request, not at token expiry.
type SubscriptionEntitlements struct{}

func (SubscriptionEntitlements) IsEntitled(user *models.User) bool {
	return user.IsStaff() || user.HasActiveSubscription()
}
