package rbac

// Evaluator answers permission questions for resolved profiles. It never
// mutates a profile and performs no I/O. A nil Evaluator knows no
// super-admin addresses.
type Evaluator struct {
	superAdmins map[string]struct{}
}

// NewEvaluator builds an Evaluator; emails in superAdminEmails are always
// treated as Admin regardless of their stored grants.
func NewEvaluator(superAdminEmails []string) *Evaluator {
	set := make(map[string]struct{}, len(superAdminEmails))
	for _, e := range superAdminEmails {
		if e = NormalizeEmail(e); e != "" {
			set[e] = struct{}{}
		}
	}
	return &Evaluator{superAdmins: set}
}

// IsSuperAdminEmail reports whether email belongs to the configured super admins.
func (e *Evaluator) IsSuperAdminEmail(email string) bool {
	if e == nil || len(e.superAdmins) == 0 {
		return false
	}
	_, ok := e.superAdmins[NormalizeEmail(email)]
	return ok
}

// IsAdmin reports whether the profile qualifies for the Admin override.
func (e *Evaluator) IsAdmin(p *Profile) bool {
	if p == nil {
		return false
	}
	return p.hasAdminRole() || e.IsSuperAdminEmail(p.Email)
}

// HasPermission reports whether p may perform action on module.
func (e *Evaluator) HasPermission(p *Profile, module Module, action Action) bool {
	if p == nil {
		return false
	}
	if e.IsAdmin(p) {
		return true
	}
	return p.Permissions[module].Has(action)
}

// HasAnyPermission reports whether p holds at least one of actions on module.
func (e *Evaluator) HasAnyPermission(p *Profile, module Module, actions ...Action) bool {
	if p == nil {
		return false
	}
	if e.IsAdmin(p) {
		return true
	}
	granted := p.Permissions[module]
	for _, a := range actions {
		if granted.Has(a) {
			return true
		}
	}
	return false
}

// Capabilities lists the actions p may perform on every known module.
func (e *Evaluator) Capabilities(p *Profile) map[Module][]Action {
	caps := make(map[Module][]Action, len(Modules()))
	if p == nil {
		return caps
	}
	for _, m := range Modules() {
		actions := make([]Action, 0, len(Actions()))
		for _, a := range Actions() {
			if e.HasPermission(p, m, a) {
				actions = append(actions, a)
			}
		}
		caps[m] = actions
	}
	return caps
}

// ApplyOverride returns p elevated to Admin when its email is a super-admin
// address. Other profiles are returned unchanged. p itself is never modified.
func (e *Evaluator) ApplyOverride(p *Profile) *Profile {
	if p == nil || !e.IsSuperAdminEmail(p.Email) {
		return p
	}
	out := p.Clone()
	out.Role = RoleAdmin
	hasAdmin := false
	for _, r := range out.Roles {
		if r == RoleAdmin {
			hasAdmin = true
			break
		}
	}
	if !hasAdmin {
		out.Roles = append(out.Roles, RoleAdmin)
	}
	out.Permissions = FullAccess()
	return out
}
