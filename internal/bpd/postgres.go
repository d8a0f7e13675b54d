package bpd

import (
	"context"
	"errors"
	"fmt"

	"fjacquet/ebics-mt940/internal/logging"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
	CREATE TABLE IF NOT EXISTS bpd (
		country   INTEGER NOT NULL,
		bank_code INTEGER NOT NULL,
		version   INTEGER,
		data      TEXT NOT NULL,
		PRIMARY KEY (country, bank_code)
	)
`

// PostgresStore keeps BPD in the bpd table. The version is parsed once, on
// save.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// NewPostgresStore connects to dsn and checks the connection.
func NewPostgresStore(ctx context.Context, dsn string, logger logging.Logger) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	config.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	logger = logging.OrDefault(logger)
	logger.Info("Connected to BPD database", logging.Field{Key: logging.FieldEndpoint, Value: dsn})
	return &PostgresStore{pool: pool, logger: logger}, nil
}

// EnsureSchema creates the bpd table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create bpd table: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Version(ctx context.Context, country, code int) (int, bool, error) {
	var version *int
	err := s.pool.QueryRow(ctx,
		`SELECT version FROM bpd WHERE country = $1 AND bank_code = $2`,
		country, code,
	).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get bpd version: %w", err)
	}
	if version == nil {
		return 0, false, ErrNoVersion
	}
	return *version, true, nil
}

func (s *PostgresStore) Get(ctx context.Context, country, code int) (string, bool, error) {
	var data string
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM bpd WHERE country = $1 AND bank_code = $2`,
		country, code,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get bpd: %w", err)
	}
	return data, true, nil
}

func (s *PostgresStore) Save(ctx context.Context, country, code int, bpd string) error {
	var version *int
	if v, err := ParseVersion(bpd, s.logger); err == nil {
		version = &v
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO bpd (country, bank_code, version, data)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (country, bank_code)
		DO UPDATE SET version = EXCLUDED.version, data = EXCLUDED.data
	`, country, code, version, bpd)
	if err != nil {
		return fmt.Errorf("failed to save bpd: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, country, code int) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM bpd WHERE country = $1 AND bank_code = $2`,
		country, code,
	); err != nil {
		return fmt.Errorf("failed to delete bpd: %w", err)
	}
	return nil
}
