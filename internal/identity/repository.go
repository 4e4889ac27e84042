package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrUserExists is returned when the email or phone is already registered.
	ErrUserExists = errors.New("an account with this email already exists")
	// ErrUserNotFound is returned when no account matches.
	ErrUserNotFound = errors.New("user not found")
	// ErrDemoIdentifierTaken is returned when the demo email is registered
	// to an account other than the demo one.
	ErrDemoIdentifierTaken = fmt.Errorf("demo identifier belongs to another account: %w", ErrUserExists)
)

// Repository persists users.
type Repository interface {
	Create(ctx context.Context, user User) error
	FindByID(ctx context.Context, id string) (User, error)
	FindByIdentifier(ctx context.Context, identifier string) (User, error)
	Update(ctx context.Context, user User) error
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, email, COALESCE(phone, ''), name, password_hash, is_new_user, marketing_opt_in, created_at`

// Create inserts a new user.
func (r *PostgresRepository) Create(ctx context.Context, user User) error {
	_, err := r.db.Exec(ctx, `INSERT INTO users (id, email, phone, name, password_hash, is_new_user, marketing_opt_in, created_at)
        VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8)`,
		user.ID, strings.ToLower(user.Email), user.Phone, user.Name, user.PasswordHash, user.IsNewUser, user.MarketingOptIn, user.CreatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrUserExists
	}
	return err
}

// FindByID fetches a user by identifier.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (User, error) {
	return r.scan(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// FindByIdentifier fetches a user by email or phone.
func (r *PostgresRepository) FindByIdentifier(ctx context.Context, identifier string) (User, error) {
	return r.scan(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1 OR phone = $2`,
		strings.ToLower(identifier), identifier))
}

// Update writes the mutable fields of user.
func (r *PostgresRepository) Update(ctx context.Context, user User) error {
	cmd, err := r.db.Exec(ctx, `UPDATE users SET email = $1, name = $2, is_new_user = $3 WHERE id = $4`,
		strings.ToLower(user.Email), user.Name, user.IsNewUser, user.ID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrUserExists
	}
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *PostgresRepository) scan(row pgx.Row) (User, error) {
	var (
		user      User
		createdAt time.Time
	)
	err := row.Scan(&user.ID, &user.Email, &user.Phone, &user.Name, &user.PasswordHash, &user.IsNewUser, &user.MarketingOptIn, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	user.CreatedAt = createdAt.UTC()
	return user, nil
}
