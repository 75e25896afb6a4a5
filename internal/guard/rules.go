package guard

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/leofleet/fleet-console/internal/rbac"
)

// Policy decides the outcome for paths no rule matches.
type Policy string

// Default policies.
const (
	PolicyAllow Policy = "allow"
	PolicyDeny  Policy = "deny"
)

// ParsePolicy validates a policy label.
func ParsePolicy(raw string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(raw))); p {
	case PolicyAllow, PolicyDeny:
		return p, nil
	case "":
		return PolicyAllow, nil
	default:
		return "", fmt.Errorf("guard: unknown default policy %q", raw)
	}
}

// Rule protects a path. Access needs any of Actions on Module; an empty
// Module only requires a signed-in user. A rule whose Path ends in "/new"
// also governs "<base>/edit/<id>" with the write action.
type Rule struct {
	Path    string        `yaml:"path"`
	Prefix  bool          `yaml:"prefix"`
	Module  rbac.Module   `yaml:"module"`
	Actions []rbac.Action `yaml:"actions"`
}

// DefaultRules is the built-in rule table of the dashboard.
func DefaultRules() []Rule {
	type section struct {
		path   string
		module rbac.Module
	}
	sections := []section{
		{"/dashboard/users", rbac.ModuleUser},
		{"/dashboard/vehicles", rbac.ModuleVehicle},
		{"/dashboard/drivers", rbac.ModuleDriver},
		{"/dashboard/inspections", rbac.ModuleInspection},
		{"/dashboard/insurance", rbac.ModuleInsurance},
		{"/dashboard/services", rbac.ModuleService},
		{"/dashboard/issues", rbac.ModuleIssue},
	}
	rules := make([]Rule, 0, 2*len(sections)+2)
	for _, s := range sections {
		rules = append(rules,
			Rule{Path: s.path + "/new", Module: s.module, Actions: []rbac.Action{rbac.ActionCreate}},
			Rule{Path: s.path, Prefix: true, Module: s.module, Actions: []rbac.Action{rbac.ActionRead}},
		)
	}
	return append(rules,
		Rule{Path: "/dashboard/reports", Prefix: true, Module: rbac.ModuleReport, Actions: []rbac.Action{rbac.ActionRead}},
		Rule{Path: "/dashboard", Prefix: true},
	)
}

type rulesFile struct {
	DefaultPolicy string `yaml:"default_policy"`
	Rules         []Rule `yaml:"rules"`
}

// LoadRules reads a YAML rule table and its default policy.
func LoadRules(path string) ([]Rule, Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("guard: read rules: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes a YAML rule table. The policy is empty when the file
// does not set one.
func ParseRules(data []byte) ([]Rule, Policy, error) {
	var file rulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, "", fmt.Errorf("guard: parse rules: %w", err)
	}
	var policy Policy
	if strings.TrimSpace(file.DefaultPolicy) != "" {
		parsed, err := ParsePolicy(file.DefaultPolicy)
		if err != nil {
			return nil, "", err
		}
		policy = parsed
	}
	for i := range file.Rules {
		if err := file.Rules[i].normalize(); err != nil {
			return nil, "", fmt.Errorf("guard: rule %d: %w", i, err)
		}
	}
	return file.Rules, policy, nil
}

func (r *Rule) normalize() error {
	r.Path = normalizePath(r.Path)
	r.Module = rbac.Module(strings.TrimSpace(string(r.Module)))
	if r.Module != "" && len(r.Actions) == 0 {
		return fmt.Errorf("%s: module %s needs at least one action", r.Path, r.Module)
	}
	for i, a := range r.Actions {
		parsed, ok := rbac.ParseAction(string(a))
		if !ok {
			return fmt.Errorf("%s: unknown action %q", r.Path, a)
		}
		r.Actions[i] = parsed
	}
	return nil
}
