package rbac

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NormalizeEmail lowercases and trims an email for comparison.
func NormalizeEmail(email string) string {
	return cases.Lower(language.Und).String(strings.TrimSpace(email))
}

// DisplayNameFromEmail derives a readable name from the email local-part.
func DisplayNameFromEmail(email string) string {
	local, _, _ := strings.Cut(NormalizeEmail(email), "@")
	parts := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	if len(parts) == 0 {
		return local
	}
	return cases.Title(language.Und).String(strings.Join(parts, " "))
}

// Normalize fills derived fields and canonicalizes the profile in place.
func (p *Profile) Normalize() {
	if p == nil {
		return
	}
	p.Email = NormalizeEmail(p.Email)
	p.Role = strings.TrimSpace(p.Role)
	if p.ID == "" {
		p.ID = p.Email
	}
	p.DisplayName = strings.TrimSpace(p.DisplayName)
	if p.DisplayName == "" {
		p.DisplayName = DisplayNameFromEmail(p.Email)
	}
	seen := make(map[string]struct{}, len(p.Roles))
	roles := make([]string, 0, len(p.Roles))
	for _, r := range p.Roles {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		roles = append(roles, r)
	}
	p.Roles = roles
	if p.Permissions == nil {
		p.Permissions = Permissions{}
	}
	for m, set := range p.Permissions {
		if strings.TrimSpace(string(m)) == "" {
			delete(p.Permissions, m)
			continue
		}
		labels := make([]string, len(set))
		for i, a := range set {
			labels[i] = string(a)
		}
		p.Permissions[m] = NewActionSet(labels...)
	}
}

// FullAccess returns grants for every action on every known module.
func FullAccess() Permissions {
	perms := make(Permissions, len(Modules()))
	for _, m := range Modules() {
		perms[m] = append(ActionSet(nil), Actions()...)
	}
	return perms
}

// hasAdminRole reports whether the primary role or any secondary role is Admin.
func (p *Profile) hasAdminRole() bool {
	if strings.EqualFold(p.Role, RoleAdmin) {
		return true
	}
	for _, r := range p.Roles {
		if strings.EqualFold(r, RoleAdmin) {
			return true
		}
	}
	return false
}
