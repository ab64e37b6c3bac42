package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"cardwatch/internal/ingest"
	"cardwatch/internal/log"
	"cardwatch/internal/storage"
)

var (
	importInput string
	importDB    string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load a transactions CSV into the ledger",
	Long: `Import parses a CSV file of entity_key,timestamp,amount records and appends
them to the SQLite ledger in a single transaction. A malformed line rejects
the whole file.

Examples:
  cardwatch import --input transactions.csv
  cardwatch import --input transactions.csv --db ./data/cardwatch.db`,
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVarP(&importInput, "input", "i", "", "CSV file to import (default: CARDWATCH_INPUT)")
	importCmd.Flags().StringVar(&importDB, "db", "", "Ledger database path (default: LEDGER_DB_PATH)")
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := log.FromContext(ctx)
	lg := logger.WithComponent(log.ComponentCLI)

	input := appConfig.InputPath
	if importInput != "" {
		input = importInput
	}
	dbPath := appConfig.LedgerDBPath
	if importDB != "" {
		dbPath = importDB
	}

	started := time.Now()
	records, err := ingest.ReadFile(input)
	if err != nil {
		return fmt.Errorf("read %s: %w", input, err)
	}

	repo, err := storage.NewSQLiteRepository(dbPath, logger)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer repo.Close()

	n, err := repo.Insert(ctx, records)
	if err != nil {
		return fmt.Errorf("import into ledger: %w", err)
	}
	total, err := repo.Count(ctx)
	if err != nil {
		return err
	}

	lg.InfoContext(ctx, "Import completed",
		log.FieldOperation, log.OpImport,
		log.FieldPath, input,
		log.FieldRecords, n,
		"ledger_total", total,
		log.FieldDuration, time.Since(started).Milliseconds())
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d records (%d in ledger)\n", n, total)
	return nil
}
