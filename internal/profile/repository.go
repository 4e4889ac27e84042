package profile

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when the requested profile data does not exist.
var ErrNotFound = errors.New("profile data not found")

// Repository persists addresses, preferences and payment methods.
type Repository interface {
	SaveAddress(ctx context.Context, address Address) error
	ListAddresses(ctx context.Context, userID string) ([]Address, error)
	SavePreferences(ctx context.Context, prefs Preferences) error
	GetPreferences(ctx context.Context, userID string) (Preferences, error)
	SavePaymentMethod(ctx context.Context, method PaymentMethod) error
	ListPaymentMethods(ctx context.Context, userID string) ([]PaymentMethod, error)
}

// PostgresRepository stores profile data in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// SaveAddress inserts or replaces an address.
func (r *PostgresRepository) SaveAddress(ctx context.Context, a Address) error {
	_, err := r.db.Exec(ctx, `INSERT INTO addresses (id, user_id, street, city, state, zip_code, landmark, lat, lng, is_default, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        ON CONFLICT (id) DO UPDATE SET street = EXCLUDED.street, city = EXCLUDED.city, state = EXCLUDED.state,
            zip_code = EXCLUDED.zip_code, landmark = EXCLUDED.landmark, lat = EXCLUDED.lat, lng = EXCLUDED.lng,
            is_default = EXCLUDED.is_default`,
		a.ID, a.UserID, a.Street, a.City, a.State, a.ZipCode, a.Landmark, a.Lat, a.Lng, a.IsDefault, a.CreatedAt.UTC())
	return err
}

// ListAddresses returns the user's addresses, default first.
func (r *PostgresRepository) ListAddresses(ctx context.Context, userID string) ([]Address, error) {
	rows, err := r.db.Query(ctx, `SELECT id, user_id, street, city, state, zip_code, landmark, lat, lng, is_default, created_at
        FROM addresses WHERE user_id = $1 ORDER BY is_default DESC, created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Address
	for rows.Next() {
		var (
			a         Address
			createdAt time.Time
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.Street, &a.City, &a.State, &a.ZipCode, &a.Landmark, &a.Lat, &a.Lng, &a.IsDefault, &createdAt); err != nil {
			return nil, err
		}
		a.CreatedAt = createdAt.UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

// SavePreferences upserts the user's preferences.
func (r *PostgresRepository) SavePreferences(ctx context.Context, p Preferences) error {
	_, err := r.db.Exec(ctx, `INSERT INTO preferences (user_id, fabric_care, avoid_mixing, fold_style, hanger_type, special_requests, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (user_id) DO UPDATE SET fabric_care = EXCLUDED.fabric_care, avoid_mixing = EXCLUDED.avoid_mixing,
            fold_style = EXCLUDED.fold_style, hanger_type = EXCLUDED.hanger_type,
            special_requests = EXCLUDED.special_requests, updated_at = EXCLUDED.updated_at`,
		p.UserID, p.FabricCare, p.AvoidMixing, p.FoldStyle, p.HangerType, p.SpecialRequests, p.UpdatedAt.UTC())
	return err
}

// GetPreferences fetches the user's preferences.
func (r *PostgresRepository) GetPreferences(ctx context.Context, userID string) (Preferences, error) {
	row := r.db.QueryRow(ctx, `SELECT user_id, fabric_care, avoid_mixing, fold_style, hanger_type, special_requests, updated_at
        FROM preferences WHERE user_id = $1`, userID)
	var (
		p         Preferences
		updatedAt time.Time
	)
	err := row.Scan(&p.UserID, &p.FabricCare, &p.AvoidMixing, &p.FoldStyle, &p.HangerType, &p.SpecialRequests, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Preferences{}, ErrNotFound
	}
	if err != nil {
		return Preferences{}, err
	}
	p.UpdatedAt = updatedAt.UTC()
	return p, nil
}

// SavePaymentMethod inserts a payment method. A default method demotes the others.
func (r *PostgresRepository) SavePaymentMethod(ctx context.Context, m PaymentMethod) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if m.IsDefault {
		if _, err := tx.Exec(ctx, `UPDATE payment_methods SET is_default = FALSE WHERE user_id = $1`, m.UserID); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(ctx, `INSERT INTO payment_methods (id, user_id, method, upi_id, card_last4, card_name, card_expiry, is_default, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		m.ID, m.UserID, m.Method, m.UPIID, m.CardLast4, m.CardName, m.CardExpiry, m.IsDefault, m.CreatedAt.UTC()); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ListPaymentMethods returns the user's payment methods, default first.
func (r *PostgresRepository) ListPaymentMethods(ctx context.Context, userID string) ([]PaymentMethod, error) {
	rows, err := r.db.Query(ctx, `SELECT id, user_id, method, upi_id, card_last4, card_name, card_expiry, is_default, created_at
        FROM payment_methods WHERE user_id = $1 ORDER BY is_default DESC, created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PaymentMethod
	for rows.Next() {
		var (
			m         PaymentMethod
			createdAt time.Time
		)
		if err := rows.Scan(&m.ID, &m.UserID, &m.Method, &m.UPIID, &m.CardLast4, &m.CardName, &m.CardExpiry, &m.IsDefault, &createdAt); err != nil {
			return nil, err
		}
		m.CreatedAt = createdAt.UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}
