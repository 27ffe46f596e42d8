package senders

import "RoostMail/internal/models"

// Identity names one of the four sending reputations. Each identity maps to a
// verified from address on its own subdomain.
type Identity string

const (
	IdentityTransactional Identity = "transactional"
	IdentityNotification  Identity = "notification"
	IdentityMarketing     Identity = "marketing"
	IdentitySystem        Identity = "system"
)

// For maps a template category to a sender identity. The mapping is total:
// unknown or empty categories fall back to the transactional identity so the
// processor never blocks on sender resolution.
func For(category models.TemplateCategory) Identity {
	switch category {
	case models.CategoryWelcome, models.CategoryOnboarding, models.CategorySystem:
		return IdentitySystem
	case models.CategoryEngagement, models.CategoryNetwork, models.CategoryAchievement:
		return IdentityNotification
	case models.CategoryEducational, models.CategoryDigest, models.CategoryPromotional:
		return IdentityMarketing
	default:
		return IdentityTransactional
	}
}

// Registry resolves identities to configured from addresses.
type Registry struct {
	addresses map[Identity]string
}

func NewRegistry(transactional, notification, marketing, system string) *Registry {
	return &Registry{
		addresses: map[Identity]string{
			IdentityTransactional: transactional,
			IdentityNotification:  notification,
			IdentityMarketing:     marketing,
			IdentitySystem:        system,
		},
	}
}

// From returns the from address for the given template category.
func (r *Registry) From(category models.TemplateCategory) string {
	return r.addresses[For(category)]
}

// Address returns the from address for an identity directly.
func (r *Registry) Address(id Identity) string {
	return r.addresses[id]
}
