package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/spf13/pflag"

	"github.com/leofleet/fleet-console/cmd/fleetctl/cli"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}
	switch args[0] + " " + args[1] {
	case "rules check":
		return rulesCheck(args[2:], stdout, stderr)
	case "jobs stats", "jobs logout", "jobs retries":
		return jobsCommand(args[1], args[2:], stdout, stderr)
	default:
		printUsage(stderr)
		return 2
	}
}

func rulesCheck(args []string, stdout, stderr io.Writer) int {
	opts := cli.RulesCheckOptions{Stdout: stdout, Stderr: stderr}
	flagSet := pflag.NewFlagSet("rules check", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&opts.File, "file", os.Getenv("GUARD_RULES_FILE"), "YAML rule table (default: built-in rules)")
	flagSet.StringVar(&opts.DefaultPolicy, "policy", envOr("GUARD_DEFAULT_POLICY", "allow"), "policy for paths no rule matches")
	flagSet.StringVar(&opts.Role, "role", "", "role label of the sample profile")
	flagSet.StringArrayVar(&opts.Grants, "grant", nil, "Module:action[,action] grant of the sample profile (repeatable)")
	flagSet.BoolVar(&opts.Anonymous, "anonymous", false, "evaluate without a signed-in profile")
	flagSet.BoolVar(&opts.JSONOutput, "json", false, "print the summary as JSON")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	opts.Paths = flagSet.Args()
	return cli.RulesCheckCommand(opts)
}

func jobsCommand(name string, args []string, stdout, stderr io.Writer) int {
	var redisOpts asynq.RedisClientOpt
	var size int
	flagSet := pflag.NewFlagSet("jobs "+name, pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&redisOpts.Addr, "redis-addr", envOr("REDIS_ADDR", "127.0.0.1:6379"), "Redis address of the job queue")
	flagSet.StringVar(&redisOpts.Password, "redis-password", os.Getenv("REDIS_PASSWORD"), "Redis password")
	flagSet.IntVar(&redisOpts.DB, "redis-db", 0, "Redis database")
	flagSet.IntVar(&size, "size", 10, "number of tasks to list")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jobsCLI := cli.NewJobsCLI(redisOpts)
	defer func() { _ = jobsCLI.Close() }()

	var out any
	var err error
	switch name {
	case "stats":
		out, err = jobsCLI.InspectQueue()
	case "retries":
		out, err = jobsCLI.ListRetry(size)
	case "logout":
		if flagSet.NArg() != 1 {
			_, _ = fmt.Fprintln(stderr, "jobs logout: exactly one user id is required")
			return 2
		}
		out, err = jobsCLI.TriggerLogout(ctx, flagSet.Arg(0))
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "jobs %s: %v\n", name, err)
		return 1
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		_, _ = fmt.Fprintf(stderr, "jobs %s: encode: %v\n", name, err)
		return 1
	}
	return 0
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprint(w, `fleetctl: operator tools for the fleet console.

Usage:
  fleetctl rules check [--file rules.yaml] [--policy allow|deny] [--role R] [--grant Module:actions]... [--anonymous] [--json] PATH...
  fleetctl jobs stats [--redis-addr host:port]
  fleetctl jobs retries [--size N]
  fleetctl jobs logout USER_ID
`)
}
