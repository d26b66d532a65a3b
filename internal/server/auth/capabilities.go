package auth

import "github.com/mkravchenko/authd/internal/server/models"

// Capability is a coarse permission derived from an identity's role.
type Capability string

const (
	CapabilityStandard Capability = "standard"
	CapabilityAdmin    Capability = "admin"
)

// roleCapabilities maps each role to the capabilities it grants. An
// administrator covers everything a standard user may do.
var roleCapabilities = map[models.UserRole][]Capability{
	models.UserRoleStandard:      {CapabilityStandard},
	models.UserRoleAdministrator: {CapabilityStandard, CapabilityAdmin},
}

// RoleCapabilities returns the capability set granted by role. Unknown
// roles grant nothing.
func RoleCapabilities(role string) []Capability {
	return roleCapabilities[models.UserRole(role)]
}

// HasCapability reports whether role grants c.
func HasCapability(role string, c Capability) bool {
	for _, granted := range RoleCapabilities(role) {
		if granted == c {
			return true
		}
	}
	return false
}
