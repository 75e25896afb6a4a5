package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/leofleet/fleet-console/internal/guard"
	"github.com/leofleet/fleet-console/internal/rbac"
)

// RulesCheckOptions defines the flags of the rules check command.
type RulesCheckOptions struct {
	// File is a YAML rule table; empty checks the built-in table.
	File          string
	DefaultPolicy string
	Role          string
	// Grants are "Module:action,action" pairs for the sample profile.
	Grants     []string
	Anonymous  bool
	Paths      []string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// RulesCheckSummary describes the JSON response of rules check.
type RulesCheckSummary struct {
	OK        bool              `json:"ok"`
	Policy    string            `json:"policy"`
	Rules     int               `json:"rules"`
	Decisions []RulesPathResult `json:"decisions"`
}

// RulesPathResult is the guard decision for one sample path.
type RulesPathResult struct {
	Path string `json:"path"`
	guard.Decision
}

// RulesCheckCommand loads a rule table and evaluates sample paths against a
// profile assembled from the flags. The exit code is 1 for invalid input.
func RulesCheckCommand(opts RulesCheckOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	policy, err := guard.ParsePolicy(opts.DefaultPolicy)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "rules check: %v\n", err)
		return 1
	}
	var rules []guard.Rule
	if opts.File != "" {
		loaded, filePolicy, err := guard.LoadRules(opts.File)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "rules check: %v\n", err)
			return 1
		}
		rules = loaded
		if filePolicy != "" {
			policy = filePolicy
		}
	} else {
		rules = guard.DefaultRules()
	}

	var profile *rbac.Profile
	if !opts.Anonymous {
		perms, err := parseGrants(opts.Grants)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "rules check: %v\n", err)
			return 1
		}
		profile = &rbac.Profile{ID: "fleetctl", Email: "fleetctl@localhost", Role: opts.Role, Permissions: perms}
		profile.Normalize()
	}

	g := guard.New(guard.Config{Rules: rules, DefaultPolicy: policy}, rbac.NewEvaluator(nil))
	summary := RulesCheckSummary{OK: true, Policy: string(policy), Rules: len(rules)}
	for _, p := range opts.Paths {
		summary.Decisions = append(summary.Decisions, RulesPathResult{Path: p, Decision: g.Evaluate(p, profile)})
	}

	if opts.JSONOutput {
		enc := json.NewEncoder(opts.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "rules check: encode: %v\n", err)
			return 1
		}
		return 0
	}

	_, _ = fmt.Fprintf(opts.Stdout, "%d rules, default policy %s\n", summary.Rules, summary.Policy)
	for _, d := range summary.Decisions {
		verdict := "allow"
		if !d.Allow {
			verdict = fmt.Sprintf("%s -> %s", d.Kind, d.RedirectTo)
		}
		_, _ = fmt.Fprintf(opts.Stdout, "  %-40s %s\n", d.Path, verdict)
	}
	return 0
}

func parseGrants(raw []string) (rbac.Permissions, error) {
	perms := rbac.Permissions{}
	for _, grant := range raw {
		name, actions, ok := strings.Cut(grant, ":")
		if !ok {
			return nil, fmt.Errorf("grant %q: want Module:action[,action]", grant)
		}
		module, ok := parseModule(name)
		if !ok {
			return nil, fmt.Errorf("grant %q: unknown module", grant)
		}
		set := rbac.NewActionSet(strings.Split(actions, ",")...)
		if len(set) == 0 {
			return nil, fmt.Errorf("grant %q: no known actions", grant)
		}
		perms[module] = set
	}
	return perms, nil
}

func parseModule(raw string) (rbac.Module, bool) {
	raw = strings.TrimSpace(raw)
	for _, m := range rbac.Modules() {
		if strings.EqualFold(string(m), raw) {
			return m, true
		}
	}
	return "", false
}
