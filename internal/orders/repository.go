package orders

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists orders.
type Repository interface {
	Create(ctx context.Context, o Order) error
	Get(ctx context.Context, id string) (Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	UpdateStatus(ctx context.Context, id string, status Status, at time.Time) error
}

// PostgresRepository stores orders in PostgreSQL with the lines as JSONB.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed order repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const orderColumns = `id, user_id, status, items, total, pickup_time, created_at, updated_at`

// Create inserts a new order.
func (r *PostgresRepository) Create(ctx context.Context, o Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO orders (`+orderColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		o.ID, o.UserID, string(o.Status), items, o.Total, o.PickupTime.UTC(), o.CreatedAt.UTC(), o.UpdatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateID
	}
	return err
}

// Get fetches an order by id.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Order, error) {
	o, err := scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	return o, err
}

// ListByUser returns a user's orders, newest first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	rows, err := r.db.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// UpdateStatus moves an order to status.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, status Status, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`, id, string(status), at.UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o      Order
		status string
		items  []byte
	)
	if err := row.Scan(&o.ID, &o.UserID, &status, &items, &o.Total, &o.PickupTime, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return Order{}, err
	}
	o.Status = Status(status)
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return Order{}, err
	}
	return withAmounts(o), nil
}
