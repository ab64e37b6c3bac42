package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cardwatch/internal/cli"
	"cardwatch/internal/core"
	"cardwatch/internal/detect"
	"cardwatch/internal/ingest"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	for _, k := range []string{"CARDWATCH_THRESHOLD", "CARDWATCH_STEP", "CARDWATCH_RANGE_START", "CARDWATCH_RANGE_END", "AMQP_URL", "METRICS_FILE"} {
		t.Setenv(k, "")
	}
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeCSV(t *testing.T, records []core.Transaction) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tx.csv")
	if err := ingest.WriteFile(path, records); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestScanCommand_CSV(t *testing.T) {
	d := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	path := writeCSV(t, []core.Transaction{
		{EntityKey: "card_a", OccurredAt: d.Add(10 * time.Hour), Amount: decimal.NewFromInt(300)},
		{EntityKey: "card_a", OccurredAt: d.Add(20 * time.Hour), Amount: decimal.NewFromInt(300)},
		{EntityKey: "card_b", OccurredAt: d.Add(10 * time.Hour), Amount: decimal.NewFromInt(450)},
		{EntityKey: "card_c", OccurredAt: d.Add(30 * time.Hour), Amount: decimal.NewFromInt(501)},
	})
	metricsPath := filepath.Join(t.TempDir(), "cardwatch.prom")

	out, err := execute(t, "scan",
		"--threshold", "500",
		"--step", "6h",
		"--start", "", "--end", "",
		"--source", "csv",
		"--input", path,
		"--workers", "2",
		"--format", "text",
		"--amqp-url", "",
		"--metrics-file", metricsPath)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if got, want := strings.Fields(out), []string{"card_a", "card_c"}; strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("scan output = %v, want %v", got, want)
	}

	prom, err := os.ReadFile(metricsPath)
	if err != nil {
		t.Fatalf("metrics file: %v", err)
	}
	if !strings.Contains(string(prom), `cardwatch_scans_total{status="ok"} 1`) {
		t.Errorf("metrics file missing scan counter:\n%s", prom)
	}
}

func TestScanCommand_MissingThreshold(t *testing.T) {
	path := writeCSV(t, nil)
	_, err := execute(t, "scan",
		"--threshold", "",
		"--source", "csv",
		"--input", path,
		"--metrics-file", "")
	if !errors.Is(err, core.ErrInvalidConfig) {
		t.Fatalf("scan error = %v, want ErrInvalidConfig", err)
	}
	if cli.ExitCode(err) != cli.ExitUsage {
		t.Errorf("exit code = %d, want %d", cli.ExitCode(err), cli.ExitUsage)
	}
}

func TestScanCommand_MalformedInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	if err := os.WriteFile(path, []byte("card_a,yesterday,10\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := execute(t, "scan",
		"--threshold", "10",
		"--step", "6h",
		"--source", "csv",
		"--input", path,
		"--metrics-file", "")
	if !errors.Is(err, core.ErrParse) {
		t.Fatalf("scan error = %v, want ErrParse", err)
	}
}

func TestScanCommand_ZeroTimestampIsMalformedInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zero.csv")
	if err := os.WriteFile(path, []byte("card_a,0001-01-01T00:00:00,10\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := execute(t, "scan",
		"--threshold", "1",
		"--step", "6h",
		"--start", "", "--end", "",
		"--source", "csv",
		"--input", path,
		"--metrics-file", "")
	if !errors.Is(err, core.ErrParse) || !errors.Is(err, core.ErrZeroTimestamp) {
		t.Fatalf("scan error = %v, want ErrParse wrapping ErrZeroTimestamp", err)
	}
	if cli.ExitCode(err) != cli.ExitUsage {
		t.Errorf("exit code = %d, want %d", cli.ExitCode(err), cli.ExitUsage)
	}
}

func TestScanCommand_Step(t *testing.T) {
	d := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	path := writeCSV(t, []core.Transaction{
		{EntityKey: "card_a", OccurredAt: d.Add(10 * time.Hour), Amount: decimal.NewFromInt(300)},
		{EntityKey: "card_a", OccurredAt: d.Add(20 * time.Hour), Amount: decimal.NewFromInt(300)},
	})
	scan := func(step string) (string, error) {
		return execute(t, "scan",
			"--threshold", "500",
			"--step", step,
			"--start", "2021-01-01", "--end", "2021-01-02",
			"--source", "csv",
			"--input", path,
			"--format", "json",
			"--metrics-file", "")
	}

	t.Run("whole hours", func(t *testing.T) {
		out, err := scan("12")
		if err != nil {
			t.Fatalf("scan --step 12: %v", err)
		}
		var so scanOutput
		if err := json.Unmarshal([]byte(out), &so); err != nil {
			t.Fatalf("decode %q: %v", out, err)
		}
		if so.Step != "12h0m0s" || so.Windows != 1 || strings.Join(so.Flagged, ",") != "card_a" {
			t.Errorf("scan output = %+v", so)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := scan("six hours")
		if !errors.Is(err, core.ErrInvalidConfig) || cli.ExitCode(err) != cli.ExitUsage {
			t.Fatalf("scan error = %v, want a usage error", err)
		}
	})

	t.Run("missing", func(t *testing.T) {
		_, err := scan("")
		if !errors.Is(err, core.ErrInvalidConfig) || !strings.Contains(err.Error(), "step") {
			t.Fatalf("scan error = %v, want a required-step error", err)
		}
	})
}

func TestScanCommand_DerivedRangeCoversEveryTransaction(t *testing.T) {
	d := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	path := writeCSV(t, []core.Transaction{
		// early on the first day
		{EntityKey: "card_a", OccurredAt: d.Add(1 * time.Hour), Amount: decimal.NewFromInt(300)},
		{EntityKey: "card_a", OccurredAt: d.Add(3 * time.Hour), Amount: decimal.NewFromInt(300)},
		// late on the last day
		{EntityKey: "card_b", OccurredAt: d.Add(46 * time.Hour), Amount: decimal.NewFromInt(300)},
		{EntityKey: "card_b", OccurredAt: d.Add(47 * time.Hour), Amount: decimal.NewFromInt(300)},
		{EntityKey: "card_c", OccurredAt: d.Add(24 * time.Hour), Amount: decimal.NewFromInt(100)},
	})

	out, err := execute(t, "scan",
		"--threshold", "500",
		"--step", "24h",
		"--start", "", "--end", "",
		"--source", "csv",
		"--input", path,
		"--format", "text",
		"--metrics-file", "")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if got, want := strings.Fields(out), []string{"card_a", "card_b"}; strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("scan output = %v, want %v", got, want)
	}
}

func TestGenerateImportScan_Ledger(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "gen.csv")
	dbPath := filepath.Join(dir, "ledger.db")

	if _, err := execute(t, "generate",
		"--cards", "20",
		"--start", "2021-01-01", "--end", "2021-01-15",
		"--seed", "3",
		"--output", csvPath); err != nil {
		t.Fatalf("generate: %v", err)
	}

	out, err := execute(t, "import", "--input", csvPath, "--db", dbPath)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.HasPrefix(out, "imported ") {
		t.Errorf("import output = %q", out)
	}

	scanArgs := func(src string) []string {
		return []string{"scan",
			"--threshold", "250",
			"--step", "6h",
			"--start", "2021-01-03", "--end", "2021-01-12",
			"--source", src,
			"--input", csvPath,
			"--db", dbPath,
			"--workers", "1",
			"--format", "json",
			"--metrics-file", ""}
	}

	decode := func(out string) scanOutput {
		t.Helper()
		var so scanOutput
		if err := json.Unmarshal([]byte(out), &so); err != nil {
			t.Fatalf("decode %q: %v", out, err)
		}
		return so
	}

	fromCSV, err := execute(t, scanArgs("csv")...)
	if err != nil {
		t.Fatalf("scan csv: %v", err)
	}
	fromLedger, err := execute(t, scanArgs("ledger")...)
	if err != nil {
		t.Fatalf("scan ledger: %v", err)
	}

	a, b := decode(fromCSV), decode(fromLedger)
	if strings.Join(a.Flagged, ",") != strings.Join(b.Flagged, ",") {
		t.Errorf("csv flagged %v, ledger flagged %v", a.Flagged, b.Flagged)
	}
	if a.Windows != b.Windows || a.Windows != 35 {
		t.Errorf("windows = %d and %d, want 35", a.Windows, b.Windows)
	}
}

func TestWriteScanResult_EmptyJSON(t *testing.T) {
	d := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	res, err := detect.New().Run(context.Background(), nil,
		core.TimeRange{Start: d, End: d.Add(24 * time.Hour)}, decimal.NewFromInt(1), 6*time.Hour)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var buf bytes.Buffer
	if err := writeScanResult(&buf, res, "json"); err != nil {
		t.Fatalf("writeScanResult: %v", err)
	}
	if !strings.Contains(buf.String(), `"flagged": []`) {
		t.Errorf("output = %s", buf.String())
	}

	buf.Reset()
	if err := writeScanResult(&buf, res, "text"); err != nil || buf.Len() != 0 {
		t.Errorf("text output = %q, err %v", buf.String(), err)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil || !strings.HasPrefix(out, "cardwatch ") {
		t.Errorf("version = %q, %v", out, err)
	}
}
