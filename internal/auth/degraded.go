package auth

import (
	"github.com/leofleet/fleet-console/internal/rbac"
)

// DegradedPolicy is the operator opt-in for issuing placeholder profiles
// when the identity API is unreachable. Disabled means fail closed.
type DegradedPolicy struct {
	Enabled     bool
	AdminEmails []string
	AdminIDs    []string
}

// Placeholder returns a deterministic profile for id/email, or nil when the
// policy is disabled. Allow-listed ids and emails become Admin; everyone
// else gets read access to vehicles and drivers.
func (d DegradedPolicy) Placeholder(id, email string) *rbac.Profile {
	if !d.Enabled || (id == "" && email == "") {
		return nil
	}
	p := &rbac.Profile{ID: id, Email: email}
	if d.isAdmin(id, email) {
		p.Role = rbac.RoleAdmin
		p.Roles = []string{rbac.RoleAdmin}
		p.Permissions = rbac.FullAccess()
	} else {
		p.Role = "Viewer"
		p.Permissions = rbac.Permissions{
			rbac.ModuleVehicle: {rbac.ActionRead},
			rbac.ModuleDriver:  {rbac.ActionRead},
		}
	}
	p.Normalize()
	return p
}

func (d DegradedPolicy) isAdmin(id, email string) bool {
	for _, allowed := range d.AdminIDs {
		if id != "" && allowed == id {
			return true
		}
	}
	email = rbac.NormalizeEmail(email)
	for _, allowed := range d.AdminEmails {
		if email != "" && rbac.NormalizeEmail(allowed) == email {
			return true
		}
	}
	return false
}
