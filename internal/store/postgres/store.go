package postgres

import (
	"context"
	"errors"
	"fmt"

	"wolf-backend/internal/config"
	"wolf-backend/internal/models"
	"wolf-backend/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Compile-time check to ensure PostgresStore implements store.Store
var _ store.Store = (*PostgresStore)(nil)

// uniqueViolation is the PostgreSQL error code for unique_violation.
const uniqueViolation = "23505"

type PostgresStore struct {
	db     *pgxpool.Pool
	logger *zap.SugaredLogger
}

func NewPostgresStore(db *pgxpool.Pool, logger *zap.SugaredLogger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

// Connect builds a tuned connection pool from cfg and pings it.
func Connect(ctx context.Context, dsn string, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns >= 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}

// GetUserByEmail retrieves a user by their email address.
// Returns store.ErrNotFound if the user does not exist.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT id, email, hashed_password, created_at, updated_at
		FROM users
		WHERE email = $1`

	user := &models.User{}
	err := s.db.QueryRow(ctx, query, email).Scan(
		&user.ID,
		&user.Email,
		&user.HashedPassword,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		s.logger.Errorf("GetUserByEmail: failed to query/scan user for email %s: %v", email, err)
		return nil, fmt.Errorf("database error fetching user by email: %w", err)
	}

	return user, nil
}

// CreateUser inserts a new user record into the database.
func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, email, hashed_password)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at`

	err := s.db.QueryRow(ctx, query,
		user.ID,
		user.Email,
		user.HashedPassword,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == uniqueViolation {
				return store.ErrDuplicate
			}
			s.logger.Errorf("CreateUser: PostgreSQL error for email %s: Code=%s, Message=%s, Detail=%s", user.Email, pgErr.Code, pgErr.Message, pgErr.Detail)
		} else {
			s.logger.Errorf("CreateUser: failed to execute insert for email %s: %v", user.Email, err)
		}
		return fmt.Errorf("database error creating user: %w", err)
	}

	s.logger.Infof("CreateUser: inserted user ID %s", user.ID)
	return nil
}
