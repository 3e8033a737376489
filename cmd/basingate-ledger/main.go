// Package main is the entry point for basingate-ledger, the upload-ledger
// export/import tool.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/basingate/basingate/internal/config"
	"github.com/basingate/basingate/internal/ledger"
	"github.com/basingate/basingate/internal/serialization"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: basingate-ledger <export|import> [flags]")
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "export":
		os.Exit(runExport(os.Args[2:]))
	case "import":
		os.Exit(runImport(os.Args[2:]))
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\nUsage: basingate-ledger <export|import> [flags]\n", command)
		os.Exit(1)
	}
}

func resolveLedgerPath(configPath, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return "", err
	}
	return cfg.Ledger.Path, nil
}

func runExport(args []string) int {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	configPath := fs.String("config", "basingate.yaml", "config file path")
	dbPath := fs.String("db", "", "ledger SQLite path (overrides config)")
	output := fs.String("output", "-", "output file path (- for stdout)")
	fs.Parse(args)

	dsn, err := resolveLedgerPath(*configPath, *dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading config: %v\n", err)
		return 1
	}

	l, err := ledger.Open(dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening ledger: %v\n", err)
		return 1
	}
	defer l.Close()

	var out *os.File
	if *output == "-" {
		out = os.Stdout
	} else {
		f, err := os.Create(*output)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating output file: %v\n", err)
			return 1
		}
		defer f.Close()
		out = f
	}

	if err := serialization.ExportLedger(context.Background(), l, out); err != nil {
		fmt.Fprintf(os.Stderr, "Error exporting: %v\n", err)
		return 1
	}
	if *output != "-" {
		fmt.Fprintf(os.Stderr, "Exported to %s\n", *output)
	}
	return 0
}

func runImport(args []string) int {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configPath := fs.String("config", "basingate.yaml", "config file path")
	dbPath := fs.String("db", "", "ledger SQLite path (overrides config)")
	input := fs.String("input", "-", "input file path (- for stdin)")
	fs.Parse(args)

	dsn, err := resolveLedgerPath(*configPath, *dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading config: %v\n", err)
		return 1
	}

	l, err := ledger.Open(dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening ledger: %v\n", err)
		return 1
	}
	defer l.Close()

	var in *os.File
	if *input == "-" {
		in = os.Stdin
	} else {
		f, err := os.Open(*input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening input file: %v\n", err)
			return 1
		}
		defer f.Close()
		in = f
	}

	result, err := serialization.ImportLedger(context.Background(), l, in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error importing: %v\n", err)
		return 1
	}

	fmt.Fprintf(os.Stderr, "uploads: %d imported, %d skipped\n", result.Imported, result.Skipped)
	return 0
}
