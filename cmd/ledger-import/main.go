// Command ledger-import loads transactions from a CSV file into the ledger
// database. Rows already present are skipped, so a file can be re-imported.
package main

import (
	"flag"
	"fmt"
	"os"

	"ledger/internal/backend"
	"ledger/internal/cli"
	"ledger/internal/importer"
	"ledger/internal/ledger"
	"ledger/internal/log"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] FILE.csv\n", os.Args[0])
		flag.PrintDefaults()
	}
	dryRun := flag.Bool("dry-run", false, "parse and report without writing")
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	path := flag.Arg(0)

	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig(cli.SetupLogger("info"))
	base := cli.SetupLogger(cfg.LogLevel)
	logger := base.WithComponent(log.ComponentImporter)

	f, err := os.Open(path)
	if err != nil {
		cli.Fatal(logger, "Failed to open CSV file", err)
	}
	defer f.Close()

	if *dryRun {
		rows, rowErrs, err := importer.Parse(f)
		if err != nil {
			cli.Fatal(logger, "Failed to read CSV file", err)
		}
		for _, re := range rowErrs {
			logger.Warn("Invalid row", "row", re.Row, "error", re.Error())
		}
		logger.Info("Dry run finished", "file", path, "valid", len(rows), "invalid", len(rowErrs))
		if len(rowErrs) > 0 {
			os.Exit(1)
		}
		return
	}

	if backend.BackendType(cfg.DataBackend) == backend.MemoryBackend {
		logger.Warn("Importing into the memory backend, records are discarded on exit")
	}

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	store, _ := cli.OpenStorage(ctx, base, cfg)
	l := ledger.New(store.Repository, ledger.WithLogger(base.WithComponent(log.ComponentLedger).Logger))

	report, err := importer.New(l, logger.Logger).Import(ctx, f)

	l.Close()
	if cerr := store.Cleanup(); cerr != nil {
		logger.Error("Failed to close storage", "error", cerr)
	}

	for _, re := range report.Errors {
		logger.Warn("Invalid row", "row", re.Row, "error", re.Error())
	}
	if err != nil {
		logger.Error("Import aborted", "error", err,
			"imported", report.Imported,
			"skipped", report.Skipped)
		os.Exit(1)
	}
	logger.Info("Import finished",
		"file", path,
		"imported", report.Imported,
		"skipped", report.Skipped,
		"invalid", len(report.Errors))
	if len(report.Errors) > 0 {
		os.Exit(1)
	}
}
