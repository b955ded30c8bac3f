package storage

import (
	"context"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"storage-cost/internal/errors"
)

// NewSQLiteStore opens (creating if needed) a SQLite database file
func NewSQLiteStore(ctx context.Context, path string, logger *zap.Logger) (*SQLStore, error) {
	if path == "" {
		return nil, errors.Config("sqlite store needs a path")
	}
	s, err := openSQL(ctx, sqliteDialect, path, logger)
	if err != nil {
		return nil, err
	}
	// one writer at a time
	s.db.SetMaxOpenConns(1)
	return s, nil
}

// NewPostgresStore connects to PostgreSQL
func NewPostgresStore(ctx context.Context, dsn string, logger *zap.Logger) (*SQLStore, error) {
	if dsn == "" {
		return nil, errors.Config("postgres store needs a DSN")
	}
	s, err := openSQL(ctx, postgresDialect, dsn, logger)
	if err != nil {
		return nil, err
	}
	s.db.SetMaxOpenConns(25)
	s.db.SetMaxIdleConns(5)
	s.db.SetConnMaxLifetime(5 * time.Minute)
	return s, nil
}
