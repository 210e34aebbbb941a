package identity

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when no character matches the lookup.
	ErrNotFound = errors.New("character not found")
	// ErrNameTaken is returned when registering a name already in use.
	ErrNameTaken = errors.New("character name taken")
)

// Repository persists characters.
type Repository interface {
	Create(ctx context.Context, ch Character) error
	FindByName(ctx context.Context, name string) (Character, error)
	FindByID(ctx context.Context, id string) (Character, error)
	UpdateTokenVersion(ctx context.Context, id string, version int) error
	TouchLogin(ctx context.Context, id string, at time.Time) error
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new character.
func (r *PostgresRepository) Create(ctx context.Context, ch Character) error {
	_, err := r.db.Exec(ctx, `INSERT INTO characters (id, name, pin_hash, token_version, created_at)
        VALUES ($1, $2, $3, $4, $5)`, ch.ID, ch.Name, string(ch.PINHash), ch.TokenVersion, ch.CreatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrNameTaken
	}
	return err
}

// FindByName fetches a character by its unique name.
func (r *PostgresRepository) FindByName(ctx context.Context, name string) (Character, error) {
	return r.scan(r.db.QueryRow(ctx, `SELECT id, name, pin_hash, token_version, created_at, last_login
        FROM characters WHERE lower(name) = lower($1)`, name))
}

// FindByID fetches a character by id.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (Character, error) {
	return r.scan(r.db.QueryRow(ctx, `SELECT id, name, pin_hash, token_version, created_at, last_login
        FROM characters WHERE id = $1`, id))
}

func (r *PostgresRepository) scan(row pgx.Row) (Character, error) {
	var (
		ch   Character
		hash string
	)
	if err := row.Scan(&ch.ID, &ch.Name, &hash, &ch.TokenVersion, &ch.CreatedAt, &ch.LastLogin); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Character{}, ErrNotFound
		}
		return Character{}, err
	}
	ch.PINHash = []byte(hash)
	ch.CreatedAt = ch.CreatedAt.UTC()
	return ch, nil
}

// UpdateTokenVersion stores the character's current token generation.
func (r *PostgresRepository) UpdateTokenVersion(ctx context.Context, id string, version int) error {
	cmd, err := r.db.Exec(ctx, `UPDATE characters SET token_version = $1 WHERE id = $2`, version, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchLogin records a successful login.
func (r *PostgresRepository) TouchLogin(ctx context.Context, id string, at time.Time) error {
	cmd, err := r.db.Exec(ctx, `UPDATE characters SET last_login = $1 WHERE id = $2`, at.UTC(), id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
