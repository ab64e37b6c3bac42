// Package ingest reads and writes transactions as entity_key,timestamp,amount
// CSV records.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"cardwatch/internal/core"
)

// Header is written by Write and skipped by Read when it is the first record.
var Header = []string{"entity_key", "timestamp", "amount"}

// Read parses every record of r. The first malformed record aborts the read
// with a *core.ParseError; nothing is skipped.
func Read(r io.Reader) ([]core.Transaction, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	var out []core.Transaction
	first := true
	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var csvErr *csv.ParseError
			line := 0
			if errors.As(err, &csvErr) {
				line = csvErr.Line
			}
			return nil, &core.ParseError{Line: line, Field: "record", Err: err}
		}
		line, _ := reader.FieldPos(0)

		if first {
			first = false
			if isHeader(fields) {
				continue
			}
		}

		tx, err := ParseRecord(fields, line)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}

// ReadFile opens path and reads it with Read.
func ReadFile(path string) ([]core.Transaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open transactions file: %w", err)
	}
	defer f.Close()

	records, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return records, nil
}

// ParseRecord converts one entity_key,timestamp,amount record.
func ParseRecord(fields []string, line int) (core.Transaction, error) {
	if len(fields) != len(Header) {
		return core.Transaction{}, &core.ParseError{Line: line, Field: "record", Value: strings.Join(fields, ","), Err: core.ErrFieldCount}
	}

	key := strings.TrimSpace(fields[0])
	if key == "" {
		return core.Transaction{}, &core.ParseError{Line: line, Field: "entity_key", Value: fields[0], Err: core.ErrEmptyEntityKey}
	}

	ts, err := core.ParseTimestamp(fields[1])
	if err != nil {
		return core.Transaction{}, &core.ParseError{Line: line, Field: "timestamp", Value: fields[1], Err: err}
	}

	amount, err := core.ParseAmount(fields[2])
	if err != nil {
		return core.Transaction{}, &core.ParseError{Line: line, Field: "amount", Value: fields[2], Err: err}
	}

	tx, err := core.NewTransaction(key, ts, amount)
	if err != nil {
		return core.Transaction{}, &core.ParseError{Line: line, Field: core.FieldOf(err), Value: strings.Join(fields, ","), Err: err}
	}
	return tx, nil
}

// FormatRecord renders tx as CSV fields. ParseRecord(FormatRecord(tx)) == tx.
func FormatRecord(tx core.Transaction) []string {
	return []string{tx.EntityKey, core.FormatTimestamp(tx.OccurredAt), core.FormatAmount(tx.Amount)}
}

// Write emits Header followed by one record per transaction.
func Write(w io.Writer, records []core.Transaction) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, tx := range records {
		if err := writer.Write(FormatRecord(tx)); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteFile creates path and writes records to it.
func WriteFile(path string, records []core.Transaction) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create transactions file: %w", err)
	}
	if err := Write(f, records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func isHeader(fields []string) bool {
	if len(fields) != len(Header) {
		return false
	}
	for i, h := range Header {
		if !strings.EqualFold(strings.TrimSpace(fields[i]), h) {
			return false
		}
	}
	return true
}
