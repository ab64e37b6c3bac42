package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"cardwatch/internal/alerts"
	"cardwatch/internal/amqp"
	"cardwatch/internal/config"
	"cardwatch/internal/core"
	"cardwatch/internal/detect"
	"cardwatch/internal/log"
	"cardwatch/internal/metrics"
	"cardwatch/internal/source"
)

var (
	scanThreshold   string
	scanStep        string
	scanStart       string
	scanEnd         string
	scanWorkers     int
	scanSource      string
	scanInput       string
	scanDB          string
	scanFormat      string
	scanAMQPURL     string
	scanMetricsFile string
	scanEvents      bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Flag cards whose spending in a 24h window exceeds the threshold",
	Long: `Scan loads transactions from a CSV file or the ledger and slides a 24 hour
window across the range, one center every --step. Every card whose total
inside some window is strictly greater than --threshold is printed once.

Without --start/--end the range runs from one step before the first
transaction to one step after the last, so every transaction is covered by
some window. When AMQP_URL (or --amqp-url) is set,
each flag event and a run summary are published to the alerts exchange.

Examples:
  cardwatch scan --threshold 500 --input transactions.csv
  cardwatch scan --threshold 500 --source ledger --start 2021-01-01 --end 2021-02-01
  cardwatch scan --threshold 500 --step 1h --workers 8 --format json`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringVarP(&scanThreshold, "threshold", "t", "", "Spending threshold (default: CARDWATCH_THRESHOLD)")
	scanCmd.Flags().StringVar(&scanStep, "step", "", "Distance between window centers, whole hours or a duration like 90m (default: CARDWATCH_STEP, required)")
	scanCmd.Flags().StringVar(&scanStart, "start", "", "Range start, date or timestamp (default: CARDWATCH_RANGE_START)")
	scanCmd.Flags().StringVar(&scanEnd, "end", "", "Range end, date or timestamp (default: CARDWATCH_RANGE_END)")
	scanCmd.Flags().IntVarP(&scanWorkers, "workers", "w", 1, "Parallel window scanners (default: CARDWATCH_WORKERS)")
	scanCmd.Flags().StringVar(&scanSource, "source", "csv", "Input source: csv or ledger (default: CARDWATCH_SOURCE)")
	scanCmd.Flags().StringVarP(&scanInput, "input", "i", "", "CSV input file (default: CARDWATCH_INPUT)")
	scanCmd.Flags().StringVar(&scanDB, "db", "", "Ledger database path (default: LEDGER_DB_PATH)")
	scanCmd.Flags().StringVar(&scanFormat, "format", "text", "Output format: text or json")
	scanCmd.Flags().StringVar(&scanAMQPURL, "amqp-url", "", "Publish alerts to this broker (default: AMQP_URL)")
	scanCmd.Flags().StringVar(&scanMetricsFile, "metrics-file", "", "Write Prometheus metrics to this file (default: METRICS_FILE)")
	scanCmd.Flags().BoolVar(&scanEvents, "events", false, "Log every (window, card) flag event")
}

// applyScanFlags copies explicitly set flags over the environment config.
func applyScanFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("threshold") {
		cfg.Threshold = scanThreshold
	}
	if flags.Changed("step") {
		cfg.Step = scanStep
	}
	if flags.Changed("start") {
		cfg.RangeStart = scanStart
	}
	if flags.Changed("end") {
		cfg.RangeEnd = scanEnd
	}
	if flags.Changed("workers") {
		cfg.Workers = scanWorkers
	}
	if flags.Changed("source") {
		cfg.Source = scanSource
	}
	if flags.Changed("input") {
		cfg.InputPath = scanInput
	}
	if flags.Changed("db") {
		cfg.LedgerDBPath = scanDB
	}
	if flags.Changed("amqp-url") {
		cfg.AMQPURL = scanAMQPURL
	}
	if flags.Changed("metrics-file") {
		cfg.MetricsFile = scanMetricsFile
	}
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := log.FromContext(ctx)
	lg := logger.WithComponent(log.ComponentCLI)

	// flags were applied and validated by the root PersistentPreRunE
	cfg := appConfig
	if scanFormat != "text" && scanFormat != "json" {
		return &core.ConfigError{Field: "format", Reason: fmt.Sprintf("%q: must be text or json", scanFormat)}
	}
	if cfg.Threshold == "" {
		return &core.ConfigError{Field: "threshold", Reason: "required (--threshold or CARDWATCH_THRESHOLD)"}
	}
	threshold, err := config.ParseThreshold(cfg.Threshold)
	if err != nil {
		return err
	}
	step, err := cfg.ScanStep()
	if err != nil {
		return err
	}

	srcCfg, err := source.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	src, err := source.Open(ctx, srcCfg, logger)
	if err != nil {
		return err
	}
	defer src.Close()

	rng, explicit, err := cfg.Range()
	if err != nil {
		return err
	}
	var records []core.Transaction
	if explicit {
		records, err = src.Source.Load(ctx, rng)
	} else {
		records, err = src.Source.LoadAll(ctx)
	}
	if err != nil {
		return fmt.Errorf("load transactions: %w", err)
	}
	if !explicit {
		var ok bool
		if rng, ok = source.SpanRange(records, step); !ok {
			return &core.ConfigError{Field: "range", Reason: "no transactions to derive it from; pass --start and --end"}
		}
	}
	lg.InfoContext(ctx, "Transactions loaded",
		log.FieldSource, srcCfg.Type.String(),
		log.FieldRecords, len(records))

	registry := prometheus.NewRegistry()
	opts := []detect.Option{
		detect.WithWorkers(cfg.Workers),
		detect.WithLogger(logger),
		detect.WithMetrics(metrics.New(registry)),
	}
	if scanEvents {
		opts = append(opts, detect.WithFlagHook(func(ctx context.Context, f core.Flag) {
			lg.InfoContext(ctx, "Flag raised", log.NewFields().
				WithWindow(f.Window()).
				WithFlag(f).
				ToSlice()...)
		}))
	}

	res, err := detect.New(opts...).Run(ctx, records, rng, threshold, step)
	if err != nil {
		return err
	}

	if err := writeScanResult(cmd.OutOrStdout(), res, scanFormat); err != nil {
		return fmt.Errorf("write result: %w", err)
	}

	var errs []error
	if cfg.AMQPURL != "" {
		errs = append(errs, publishAlerts(ctx, cfg, res, logger))
	}
	if cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsFile, registry); err != nil {
			errs = append(errs, fmt.Errorf("write metrics: %w", err))
		} else {
			lg.DebugContext(ctx, "Metrics written", log.FieldPath, cfg.MetricsFile)
		}
	}
	return errors.Join(errs...)
}

func publishAlerts(ctx context.Context, cfg *config.Config, res *detect.Result, logger *log.Logger) error {
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey, logger)
	if err != nil {
		return fmt.Errorf("connect alerts broker: %w", err)
	}
	defer client.Close()

	var pub alerts.Publisher = client
	if err := alerts.Dispatch(ctx, pub, res); err != nil {
		return fmt.Errorf("publish alerts: %w", err)
	}
	return nil
}

type scanOutput struct {
	RunID      string   `json:"run_id"`
	RangeStart string   `json:"range_start"`
	RangeEnd   string   `json:"range_end"`
	Step       string   `json:"step"`
	Threshold  string   `json:"threshold"`
	Windows    int      `json:"windows"`
	Records    int      `json:"records"`
	Entities   int      `json:"entities"`
	Flags      int      `json:"flags"`
	Flagged    []string `json:"flagged"`
	DurationMS int64    `json:"duration_ms"`
}

func writeScanResult(w io.Writer, res *detect.Result, format string) error {
	keys := res.Flagged.Keys()
	if format == "json" {
		if keys == nil {
			keys = []string{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(scanOutput{
			RunID:      res.RunID.String(),
			RangeStart: core.FormatTimestamp(res.Range.Start),
			RangeEnd:   core.FormatTimestamp(res.Range.End),
			Step:       res.Step.String(),
			Threshold:  core.FormatAmount(res.Threshold),
			Windows:    res.Windows,
			Records:    res.Records,
			Entities:   res.Entities,
			Flags:      len(res.Flags),
			Flagged:    keys,
			DurationMS: res.Elapsed.Milliseconds(),
		})
	}
	for _, k := range keys {
		if _, err := fmt.Fprintln(w, k); err != nil {
			return err
		}
	}
	return nil
}
