package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/stratafin/ledgercore/pkg/ledger"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// startServer is a variable to allow mocking in tests
var startServer = runServer

// Run dispatches the CLI. With no arguments it runs the server.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		startServer()
		return 0
	}

	switch args[1] {
	case "server", "serve":
		startServer()
		return 0
	case "verify":
		return runVerifyCmd(args[2:], stdout, stderr)
	case "balance":
		return runBalanceCmd(args[2:], stdout, stderr)
	case "snapshot":
		return runSnapshotCmd(args[2:], stdout, stderr)
	case "health":
		return runHealthCmd(stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		if args[1][0] == '-' {
			startServer()
			return 0
		}
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

// ANSI Colors
const (
	ColorReset = "\033[0m"
	ColorBold  = "\033[1m"
	ColorGreen = "\033[32m"
	ColorBlue  = "\033[34m"
	ColorCyan  = "\033[36m"
	ColorGray  = "\033[37m"
)

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sledgerd%s\n", ColorBold+ColorBlue, ColorReset)
	fmt.Fprintf(w, "%sEvent-sourced association ledger.%s\n", ColorGray, ColorReset)
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sUSAGE:%s\n", ColorBold, ColorReset)
	fmt.Fprintln(w, "  ledgerd <command> [flags]")
	fmt.Fprintln(w, "")

	printSection(w, "SERVER")
	printCommand(w, "server", "Run the ledger server (default)")
	printCommand(w, "health", "Check server health (HTTP)")

	printSection(w, "LEDGER")
	printCommand(w, "verify", "Verify event stream integrity (--tenant, --aggregate)")
	printCommand(w, "balance", "Reconstruct a member balance (--tenant, --member, --as-of)")
	printCommand(w, "snapshot", "Force a snapshot of an aggregate (--tenant, --aggregate)")

	printSection(w, "UTILITIES")
	printCommand(w, "help", "Show this help")
	fmt.Fprintln(w, "")
}

func printSection(w io.Writer, title string) {
	fmt.Fprintf(w, "%s%s:%s\n", ColorBold+ColorCyan, title, ColorReset)
}

func printCommand(w io.Writer, name, desc string) {
	fmt.Fprintf(w, "  %s%-10s%s %s\n", ColorGreen, name, ColorReset, desc)
}

func runVerifyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	tenantFlag := cmd.String("tenant", "", "Tenant ID (REQUIRED)")
	aggregateFlag := cmd.String("aggregate", "", "Aggregate ID (REQUIRED)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	tenantID, aggregateID, ok := parseStreamFlags(*tenantFlag, *aggregateFlag, stderr, cmd)
	if !ok {
		return 2
	}

	svc, closer, err := openService()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer closer()

	count, err := svc.VerifyHistoryIntegrity(context.Background(), tenantID, aggregateID)
	if err != nil {
		fmt.Fprintf(stderr, "Verification failed: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "OK: %d events verified\n", count)
	return 0
}

func runBalanceCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("balance", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	tenantFlag := cmd.String("tenant", "", "Tenant ID (REQUIRED)")
	memberFlag := cmd.String("member", "", "Member ID (REQUIRED)")
	asOfFlag := cmd.String("as-of", "", "Balance date, YYYY-MM-DD (default today)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	tenantID, memberID, ok := parseStreamFlags(*tenantFlag, *memberFlag, stderr, cmd)
	if !ok {
		return 2
	}

	asOf := ledger.DateOf(time.Now())
	if *asOfFlag != "" {
		parsed, err := ledger.ParseDate(*asOfFlag)
		if err != nil {
			fmt.Fprintf(stderr, "Error: bad --as-of date: %v\n", err)
			return 2
		}
		asOf = parsed
	}

	svc, closer, err := openService()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer closer()

	balance, err := svc.ReconstructBalance(context.Background(), tenantID, memberID, asOf)
	if err != nil {
		fmt.Fprintf(stderr, "Reconstruction failed: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Member %s as of %s (sequence %d)\n", memberID, asOf, balance.Sequence)
	fmt.Fprintf(stdout, "  paid:    %s\n", balance.TotalPaid)
	fmt.Fprintf(stdout, "  owed:    %s\n", balance.TotalOwed)
	fmt.Fprintf(stdout, "  balance: %s\n", balance.Balance)
	return 0
}

func runSnapshotCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("snapshot", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	tenantFlag := cmd.String("tenant", "", "Tenant ID (REQUIRED)")
	aggregateFlag := cmd.String("aggregate", "", "Aggregate ID (REQUIRED)")
	reason := cmd.String("reason", "manual", "Snapshot reason")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	tenantID, aggregateID, ok := parseStreamFlags(*tenantFlag, *aggregateFlag, stderr, cmd)
	if !ok {
		return 2
	}

	svc, closer, err := openService()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer closer()

	snap, err := svc.CreateSnapshot(context.Background(), tenantID, aggregateID, "cli", *reason)
	if err != nil {
		fmt.Fprintf(stderr, "Snapshot failed: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Snapshot %s at sequence %d\n", snap.SnapshotID, snap.AsOfSequence)
	return 0
}

func runHealthCmd(out, errOut io.Writer) int {
	resp, err := http.Get("http://localhost:8080/healthz")
	if err != nil {
		fmt.Fprintf(errOut, "Health check failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(errOut, "Health check failed: status %d\n", resp.StatusCode)
		return 1
	}
	fmt.Fprintln(out, "OK")
	return 0
}

func parseStreamFlags(tenantFlag, idFlag string, stderr io.Writer, cmd *flag.FlagSet) (uuid.UUID, uuid.UUID, bool) {
	if tenantFlag == "" || idFlag == "" {
		fmt.Fprintln(stderr, "Error: --tenant and the target ID flag are required")
		cmd.Usage()
		return uuid.Nil, uuid.Nil, false
	}
	tenantID, err := uuid.Parse(tenantFlag)
	if err != nil {
		fmt.Fprintf(stderr, "Error: bad tenant ID: %v\n", err)
		return uuid.Nil, uuid.Nil, false
	}
	id, err := uuid.Parse(idFlag)
	if err != nil {
		fmt.Fprintf(stderr, "Error: bad aggregate ID: %v\n", err)
		return uuid.Nil, uuid.Nil, false
	}
	return tenantID, id, true
}
