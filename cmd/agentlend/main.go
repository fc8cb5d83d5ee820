package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"
)

const defaultConfigPath = "./agentlend.toml"

type globalOptions struct {
	configPath string
	from       string
	now        int64
}

type command struct {
	summary string
	// mutates commands persist state after a successful run.
	mutates bool
	run     func(a *app, args []string, stdout io.Writer) error
}

var commands = map[string]command{
	"register-agent":   {summary: "Register a new agent owned by --from", mutates: true, run: runRegisterAgent},
	"set-agent-active": {summary: "Activate or deactivate an agent", mutates: true, run: runSetAgentActive},
	"mint":             {summary: "Mint settlement tokens (owner only)", mutates: true, run: runMint},
	"approve":          {summary: "Approve the ledger to pull tokens from --from", mutates: true, run: runApprove},
	"balance":          {summary: "Show the token balance of an address", run: runBalance},
	"create-pool":      {summary: "Open the liquidity pool of an agent", mutates: true, run: runCreatePool},
	"supply":           {summary: "Supply liquidity to an agent pool", mutates: true, run: runSupply},
	"withdraw":         {summary: "Withdraw supplied principal", mutates: true, run: runWithdraw},
	"borrow":           {summary: "Request a loan against an agent pool", mutates: true, run: runBorrow},
	"quote":            {summary: "Preview the terms of a loan", run: runQuote},
	"repay":            {summary: "Repay an active loan", mutates: true, run: runRepay},
	"liquidate":        {summary: "Liquidate an overdue loan", mutates: true, run: runLiquidate},
	"claim":            {summary: "Claim earned interest", mutates: true, run: runClaim},
	"pool":             {summary: "Show an agent pool", run: runPool},
	"position":         {summary: "Show a lender position", run: runPosition},
	"loan":             {summary: "Show a loan", run: runLoan},
	"reputation":       {summary: "Show an agent's reputation and credit terms", run: runReputation},
	"fees":             {summary: "Show platform fee settings and balance", run: runFees},
	"set-fee":          {summary: "Update the platform fee rate (owner only)", mutates: true, run: runSetFee},
	"withdraw-fees":    {summary: "Withdraw accumulated platform fees (owner only)", mutates: true, run: runWithdrawFees},
	"set-pool-active":  {summary: "Activate or deactivate a pool", mutates: true, run: runSetPoolActive},
	"transfer-owner":   {summary: "Transfer ledger ownership (owner only)", mutates: true, run: runTransferOwner},
	"pause":            {summary: "Engage the ledger circuit breaker (owner only)", mutates: true, run: runPause},
	"unpause":          {summary: "Release the ledger circuit breaker (owner only)", mutates: true, run: runUnpause},
	"events":           {summary: "List archived events", run: runEvents},
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, rest, err := parseGlobalFlags(args, stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(stderr, "Error:", err)
		}
		return 1
	}
	if len(rest) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	name := rest[0]
	if name == "serve-metrics" {
		return exitCode(stderr, runServeMetrics(opts, rest[1:], stderr))
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "Unknown command: %s\n", name)
		fmt.Fprintln(stderr, usage())
		return 1
	}
	a, err := openApp(opts, stderr)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	defer a.close()
	return exitCode(stderr, a.exec(name, cmd, rest[1:], stdout))
}

func exitCode(stderr io.Writer, err error) int {
	if err == nil {
		return 0
	}
	if !errors.Is(err, flag.ErrHelp) {
		fmt.Fprintln(stderr, "Error:", err)
	}
	return 1
}

func parseGlobalFlags(args []string, stderr io.Writer) (globalOptions, []string, error) {
	fs := flag.NewFlagSet("agentlend", flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts := globalOptions{}
	fs.StringVar(&opts.configPath, "config", defaultConfigPath, "path to the TOML configuration file")
	fs.StringVar(&opts.from, "from", "", "hex address executing the command")
	fs.Int64Var(&opts.now, "now", 0, "override the ledger clock with a unix timestamp")
	fs.Usage = func() { fmt.Fprintln(stderr, usage()) }
	if err := fs.Parse(args); err != nil {
		return opts, nil, err
	}
	return opts, fs.Args(), nil
}

func (o globalOptions) clock() func() time.Time {
	if o.now > 0 {
		fixed := time.Unix(o.now, 0)
		return func() time.Time { return fixed }
	}
	return time.Now
}

func usage() string {
	names := make([]string, 0, len(commands)+1)
	for name := range commands {
		names = append(names, name)
	}
	names = append(names, "serve-metrics")
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("Usage:\n  agentlend [--config path] [--from address] [--now unix] <command> [flags]\n\nCommands:\n")
	for _, name := range names {
		summary := "Expose Prometheus metrics over HTTP"
		if cmd, ok := commands[name]; ok {
			summary = cmd.summary
		}
		fmt.Fprintf(&b, "  %-17s %s\n", name, summary)
	}
	return strings.TrimRight(b.String(), "\n")
}
