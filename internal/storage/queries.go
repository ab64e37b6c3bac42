package storage

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	PrepareContext(context.Context, string) (*sql.Stmt, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type TransactionRow struct {
	ID         int64
	EntityKey  string
	OccurredAt string
	Amount     string
}

const createTransaction = `-- name: CreateTransaction :one
INSERT INTO transactions (entity_key, occurred_at, amount)
VALUES (?, ?, ?)
RETURNING id
`

type CreateTransactionParams struct {
	EntityKey  string
	OccurredAt string
	Amount     string
}

func (q *Queries) CreateTransaction(ctx context.Context, arg CreateTransactionParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, createTransaction, arg.EntityKey, arg.OccurredAt, arg.Amount)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const listTransactionsBetween = `-- name: ListTransactionsBetween :many
SELECT id, entity_key, occurred_at, amount
FROM transactions
WHERE occurred_at BETWEEN ? AND ?
ORDER BY occurred_at, id
`

// Timestamps are stored in a fixed-width layout, so text order is time order.
func (q *Queries) ListTransactionsBetween(ctx context.Context, from, to string) ([]TransactionRow, error) {
	return q.listTransactions(ctx, listTransactionsBetween, from, to)
}

const listTransactions = `-- name: ListTransactions :many
SELECT id, entity_key, occurred_at, amount
FROM transactions
ORDER BY occurred_at, id
`

func (q *Queries) ListTransactions(ctx context.Context) ([]TransactionRow, error) {
	return q.listTransactions(ctx, listTransactions)
}

func (q *Queries) listTransactions(ctx context.Context, query string, args ...interface{}) ([]TransactionRow, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []TransactionRow
	for rows.Next() {
		var i TransactionRow
		if err := rows.Scan(&i.ID, &i.EntityKey, &i.OccurredAt, &i.Amount); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countTransactions = `-- name: CountTransactions :one
SELECT COUNT(*) FROM transactions
`

func (q *Queries) CountTransactions(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countTransactions)
	var count int64
	err := row.Scan(&count)
	return count, err
}
