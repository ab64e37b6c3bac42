// Package storage keeps a SQLite ledger of transactions that scans can read
// back as their input.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"cardwatch/internal/core"
	"cardwatch/internal/log"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	logger  *log.Logger
}

func NewSQLiteRepository(dbPath string, logger *log.Logger) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	if logger == nil {
		logger = log.Discard()
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		logger:  logger.WithComponent(log.ComponentLedger),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Insert appends records in a single transaction. Either all rows land or none.
func (r *SQLiteRepository) Insert(ctx context.Context, records []core.Transaction) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := r.queries.WithTx(tx)
	for i, rec := range records {
		if err := rec.Validate(); err != nil {
			return 0, fmt.Errorf("record %d: %w", i, err)
		}
		if _, err := qtx.CreateTransaction(ctx, CreateTransactionParams{
			EntityKey:  rec.EntityKey,
			OccurredAt: core.FormatTimestamp(rec.OccurredAt),
			Amount:     core.FormatAmount(rec.Amount),
		}); err != nil {
			return 0, fmt.Errorf("insert record %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}

	r.logger.InfoContext(ctx, "Transactions saved to ledger", log.FieldRecords, len(records))
	return len(records), nil
}

// Load returns the records whose timestamp lies in [rng.Start, rng.End],
// ordered by time.
func (r *SQLiteRepository) Load(ctx context.Context, rng core.TimeRange) ([]core.Transaction, error) {
	rows, err := r.queries.ListTransactionsBetween(ctx,
		core.FormatTimestamp(rng.Start), core.FormatTimestamp(rng.End))
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return r.decode(ctx, rows)
}

// LoadAll returns every record in the ledger, ordered by time.
func (r *SQLiteRepository) LoadAll(ctx context.Context) ([]core.Transaction, error) {
	rows, err := r.queries.ListTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return r.decode(ctx, rows)
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	n, err := r.queries.CountTransactions(ctx)
	if err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return int(n), nil
}

func (r *SQLiteRepository) decode(ctx context.Context, rows []TransactionRow) ([]core.Transaction, error) {
	out := make([]core.Transaction, 0, len(rows))
	for _, row := range rows {
		tx, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	r.logger.DebugContext(ctx, "Transactions loaded from ledger", log.FieldRecords, len(out))
	return out, nil
}

// fromRow validates a stored row the same way a CSV line is validated. The
// row id stands in for the line number.
func fromRow(row TransactionRow) (core.Transaction, error) {
	line := int(row.ID)
	ts, err := core.ParseTimestamp(row.OccurredAt)
	if err != nil {
		return core.Transaction{}, &core.ParseError{Line: line, Field: "timestamp", Value: row.OccurredAt, Err: err}
	}
	amount, err := core.ParseAmount(row.Amount)
	if err != nil {
		return core.Transaction{}, &core.ParseError{Line: line, Field: "amount", Value: row.Amount, Err: err}
	}
	tx, err := core.NewTransaction(row.EntityKey, ts, amount)
	if err != nil {
		return core.Transaction{}, &core.ParseError{Line: line, Field: core.FieldOf(err), Value: row.EntityKey, Err: err}
	}
	return tx, nil
}
