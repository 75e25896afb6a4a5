package rbac

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Module names a permission-bearing area of the console.
type Module string

// Known modules.
const (
	ModuleUser       Module = "User"
	ModuleVehicle    Module = "Vehicle"
	ModuleDriver     Module = "Driver"
	ModuleReport     Module = "Report"
	ModuleInspection Module = "Inspection"
	ModuleInsurance  Module = "Insurance"
	ModuleService    Module = "Service"
	ModuleIssue      Module = "Issue"
)

// Modules lists every module an Admin is granted.
func Modules() []Module {
	return []Module{
		ModuleUser,
		ModuleVehicle,
		ModuleDriver,
		ModuleReport,
		ModuleInspection,
		ModuleInsurance,
		ModuleService,
		ModuleIssue,
	}
}

// Action is a verb from the fixed action vocabulary.
type Action string

// Action vocabulary.
const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionCreate Action = "create"
	ActionDelete Action = "delete"
	ActionSubmit Action = "submit"
	ActionCancel Action = "cancel"
	ActionAmend  Action = "amend"
)

// Actions returns the vocabulary in canonical order.
func Actions() []Action {
	return []Action{ActionRead, ActionWrite, ActionCreate, ActionDelete, ActionSubmit, ActionCancel, ActionAmend}
}

// ParseAction normalizes a raw action label. Unknown labels report false.
func ParseAction(raw string) (Action, bool) {
	a := Action(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Actions() {
		if a == known {
			return a, true
		}
	}
	return "", false
}

// RoleAdmin is the role label that grants every action on every module.
const RoleAdmin = "Admin"

// ActionSet holds the granted actions for one module.
type ActionSet []Action

// NewActionSet builds a normalized set from raw labels, dropping unknown ones.
func NewActionSet(raw ...string) ActionSet {
	seen := make(map[Action]struct{}, len(raw))
	for _, r := range raw {
		if a, ok := ParseAction(r); ok {
			seen[a] = struct{}{}
		}
	}
	set := make(ActionSet, 0, len(seen))
	for _, a := range Actions() {
		if _, ok := seen[a]; ok {
			set = append(set, a)
		}
	}
	return set
}

// Has reports whether the set contains action.
func (s ActionSet) Has(action Action) bool {
	for _, a := range s {
		if a == action {
			return true
		}
	}
	return false
}

// UnmarshalJSON accepts either a list of action labels or an object mapping
// labels to truthy flags (`{"read": 1, "write": 0}`).
func (s *ActionSet) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = ActionSet{}
		return nil
	}
	switch data[0] {
	case '[':
		var labels []string
		if err := json.Unmarshal(data, &labels); err != nil {
			return fmt.Errorf("rbac: action list: %w", err)
		}
		*s = NewActionSet(labels...)
		return nil
	case '{':
		var flags map[string]any
		if err := json.Unmarshal(data, &flags); err != nil {
			return fmt.Errorf("rbac: action flags: %w", err)
		}
		labels := make([]string, 0, len(flags))
		for label, v := range flags {
			if truthy(v) {
				labels = append(labels, label)
			}
		}
		*s = NewActionSet(labels...)
		return nil
	default:
		return fmt.Errorf("rbac: unexpected action set shape %q", string(data[:1]))
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		t = strings.ToLower(strings.TrimSpace(t))
		return t == "1" || t == "true" || t == "yes"
	default:
		return false
	}
}

// Permissions maps a module to its granted actions. A missing key means no grants.
type Permissions map[Module]ActionSet

// Profile is the identity and authorization snapshot of a signed-in user.
// A nil *Profile means "not authenticated".
type Profile struct {
	ID          string      `json:"id"`
	DisplayName string      `json:"displayName"`
	Email       string      `json:"email"`
	Role        string      `json:"role"`
	Roles       []string    `json:"roles"`
	Permissions Permissions `json:"permissions"`
}

// Clone returns a deep copy of the profile.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	out := *p
	out.Roles = append([]string(nil), p.Roles...)
	out.Permissions = make(Permissions, len(p.Permissions))
	for m, set := range p.Permissions {
		out.Permissions[m] = append(ActionSet(nil), set...)
	}
	return &out
}

// Equal reports whether two profiles carry the same identity and grants.
func (p *Profile) Equal(other *Profile) bool {
	if p == nil || other == nil {
		return p == other
	}
	if p.ID != other.ID || p.DisplayName != other.DisplayName || p.Email != other.Email || p.Role != other.Role {
		return false
	}
	if len(p.Roles) != len(other.Roles) || len(p.Permissions) != len(other.Permissions) {
		return false
	}
	for i := range p.Roles {
		if p.Roles[i] != other.Roles[i] {
			return false
		}
	}
	for m, set := range p.Permissions {
		theirs, ok := other.Permissions[m]
		if !ok || len(set) != len(theirs) {
			return false
		}
		for _, a := range set {
			if !theirs.Has(a) {
				return false
			}
		}
	}
	return true
}
