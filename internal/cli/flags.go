package cli

import (
	"flag"
	"io"
)

// ReconcileFlags are the flags of the reconcile command
type ReconcileFlags struct {
	ConfigPath     string
	BankFeed       string
	Invoices       string
	DryRun         bool
	IncludePending bool
	Watch          bool
	Verbose        bool
}

// ParseReconcileFlags parses reconcile flags from args (without the program name)
func ParseReconcileFlags(args []string, output io.Writer) (ReconcileFlags, error) {
	var flags ReconcileFlags
	fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&flags.ConfigPath, "config", "config.yaml", "Configuration file path (falls back to environment)")
	fs.StringVar(&flags.BankFeed, "bank", "", "Bank feed: camt.053 .xml or bank .csv")
	fs.StringVar(&flags.Invoices, "invoices", "", "Open invoice CSV export")
	fs.BoolVar(&flags.DryRun, "dry-run", false, "Score and report without writing to the ledger")
	fs.BoolVar(&flags.IncludePending, "include-pending", false, "Also reconcile pending (PDNG) statement entries")
	fs.BoolVar(&flags.Watch, "watch", false, "Keep running, re-matching review and unmatched payments whenever the alias file changes")
	fs.BoolVar(&flags.Verbose, "verbose", false, "Verbose output")
	if err := fs.Parse(args); err != nil {
		return flags, err
	}
	return flags, nil
}

// LedgerFlags are the flags shared by the ledger subcommands
type LedgerFlags struct {
	ConfigPath  string
	NewestFirst bool
	Limit       int
	JSON        bool
	Verbose     bool

	// serve only
	Addr string

	// append only
	EventType string
	SubjectID string
	Amount    string
	Operator  string
}

// ParseLedgerFlags parses flags for one ledger subcommand
func ParseLedgerFlags(command string, args []string, output io.Writer) (LedgerFlags, error) {
	var flags LedgerFlags
	fs := flag.NewFlagSet("ledger "+command, flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&flags.ConfigPath, "config", "config.yaml", "Configuration file path (falls back to environment)")
	fs.BoolVar(&flags.Verbose, "verbose", false, "Verbose output")

	switch command {
	case "list":
		fs.BoolVar(&flags.NewestFirst, "newest-first", false, "Show the most recent entries first")
		fs.IntVar(&flags.Limit, "limit", 0, "Maximum entries to show (0 = all)")
		fs.BoolVar(&flags.JSON, "json", false, "Print entries as JSON")
	case "append":
		fs.StringVar(&flags.EventType, "type", "", "Event type: MANUAL_OVERRIDE or DISPUTE")
		fs.StringVar(&flags.SubjectID, "invoice", "", "Invoice ID the event refers to")
		fs.StringVar(&flags.Amount, "amount", "0", "Amount involved")
		fs.StringVar(&flags.Operator, "operator", "", "Person recording the event")
	case "runs":
		fs.IntVar(&flags.Limit, "limit", 20, "Maximum runs to show")
	case "serve":
		fs.StringVar(&flags.Addr, "addr", ":9090", "Listen address for the operations API")
	}

	if err := fs.Parse(args); err != nil {
		return flags, err
	}
	return flags, nil
}
