// Package guard decides whether a dashboard path may be shown to a profile.
package guard

import (
	"fmt"
	"path"
	"strings"

	"github.com/leofleet/fleet-console/internal/rbac"
)

// Kind classifies a Decision.
type Kind string

// Decision kinds.
const (
	KindAllowed         Kind = "allowed"
	KindUnauthenticated Kind = "unauthenticated"
	KindUnauthorized    Kind = "unauthorized"
)

// Decision is the outcome of evaluating a path.
type Decision struct {
	Allow      bool   `json:"allow"`
	Kind       Kind   `json:"kind"`
	RedirectTo string `json:"redirectTo,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// Config configures a Guard.
type Config struct {
	Rules          []Rule
	DefaultPolicy  Policy
	LoginPath      string
	RedirectTarget string
}

// Guard evaluates paths against a first-match-wins rule table. It holds no
// mutable state.
type Guard struct {
	rules          []Rule
	policy         Policy
	evaluator      *rbac.Evaluator
	loginPath      string
	redirectTarget string
}

// New constructs a Guard. Nil rules fall back to DefaultRules.
func New(cfg Config, evaluator *rbac.Evaluator) *Guard {
	rules := cfg.Rules
	if rules == nil {
		rules = DefaultRules()
	}
	policy := cfg.DefaultPolicy
	if policy == "" {
		policy = PolicyAllow
	}
	g := &Guard{
		rules:          make([]Rule, len(rules)),
		policy:         policy,
		evaluator:      evaluator,
		loginPath:      defaultPath(cfg.LoginPath, "/login"),
		redirectTarget: defaultPath(cfg.RedirectTarget, "/dashboard"),
	}
	copy(g.rules, rules)
	for i := range g.rules {
		g.rules[i].Path = normalizePath(g.rules[i].Path)
	}
	return g
}

// Policy reports the default policy for unmatched paths.
func (g *Guard) Policy() Policy {
	return g.policy
}

// Evaluate decides whether p may open urlPath.
func (g *Guard) Evaluate(urlPath string, p *rbac.Profile) Decision {
	clean := normalizePath(urlPath)
	rule, actions, ok := g.match(clean)
	if !ok {
		if g.policy == PolicyAllow {
			return Decision{Allow: true, Kind: KindAllowed}
		}
		if p == nil {
			return g.unauthenticated()
		}
		return Decision{
			Kind:       KindUnauthorized,
			RedirectTo: g.redirectTarget,
			Reason:     "This page is not available.",
		}
	}
	if p == nil {
		return g.unauthenticated()
	}
	if rule.Module == "" || g.evaluator.HasAnyPermission(p, rule.Module, actions...) {
		return Decision{Allow: true, Kind: KindAllowed}
	}
	return Decision{
		Kind:       KindUnauthorized,
		RedirectTo: g.redirectTarget,
		Reason:     fmt.Sprintf("You do not have permission to %s %s records.", joinActions(actions), strings.ToLower(string(rule.Module))),
	}
}

func (g *Guard) unauthenticated() Decision {
	return Decision{
		Kind:       KindUnauthenticated,
		RedirectTo: g.loginPath,
		Reason:     "Please sign in to continue.",
	}
}

// match returns the first rule governing clean and the actions it requires.
func (g *Guard) match(clean string) (Rule, []rbac.Action, bool) {
	for _, r := range g.rules {
		if clean == r.Path {
			return r, r.Actions, true
		}
		if base, ok := strings.CutSuffix(r.Path, "/new"); ok && r.Module != "" {
			if id, ok := strings.CutPrefix(clean, base+"/edit/"); ok && id != "" && !strings.Contains(id, "/") {
				return r, []rbac.Action{rbac.ActionWrite}, true
			}
		}
		if r.Prefix && strings.HasPrefix(clean, strings.TrimSuffix(r.Path, "/")+"/") {
			return r, r.Actions, true
		}
	}
	return Rule{}, nil, false
}

// normalizePath strips query and fragment and cleans dot segments and
// trailing slashes.
func normalizePath(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	if !strings.HasPrefix(raw, "/") {
		raw = "/" + raw
	}
	return path.Clean(raw)
}

func joinActions(actions []rbac.Action) string {
	labels := make([]string, len(actions))
	for i, a := range actions {
		labels[i] = string(a)
	}
	return strings.Join(labels, " or ")
}

func defaultPath(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
