package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/upb/rag-retrieval/config"
	"go.uber.org/zap"
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return &DB{
		DB:     db,
		logger: logger,
	}, nil
}

// NewDBFromConn wraps an existing pool, used by tests with sqlmock
func NewDBFromConn(db *sql.DB, logger *zap.Logger) *DB {
	return &DB{DB: db, logger: logger}
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}

	return nil
}

// Stats returns database connection pool statistics
func (db *DB) Stats() sql.DBStats {
	return db.DB.Stats()
}

// InitSchema creates the tables used by ingestion, search and the response cache.
// Vectors are stored as raw little-endian float32 bytes with their dimension in
// a separate column.
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
		-- Documents table
		CREATE TABLE IF NOT EXISTS documents (
			id UUID PRIMARY KEY,
			file_name VARCHAR(512) NOT NULL,
			path TEXT NOT NULL DEFAULT '',
			content_type VARCHAR(255) NOT NULL DEFAULT '',
			raw_text TEXT NOT NULL DEFAULT '',
			status VARCHAR(20) NOT NULL,
			chunk_count INTEGER NOT NULL DEFAULT 0,
			error TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Chunks table
		CREATE TABLE IF NOT EXISTS chunks (
			id UUID PRIMARY KEY,
			document_id UUID NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			chunk_index INTEGER NOT NULL CHECK (chunk_index >= 0),
			content TEXT NOT NULL,
			header_context TEXT,
			notes TEXT,
			details TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(document_id, chunk_index) DEFERRABLE INITIALLY DEFERRED
		);

		-- One embedding per chunk field
		CREATE TABLE IF NOT EXISTS chunk_embeddings (
			chunk_id UUID NOT NULL REFERENCES chunks(id) ON DELETE CASCADE,
			field_kind VARCHAR(20) NOT NULL,
			vector BYTEA NOT NULL,
			dimension INTEGER NOT NULL CHECK (dimension > 0),
			model VARCHAR(255) NOT NULL,
			pseudo BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (chunk_id, field_kind)
		);

		-- Response cache
		CREATE TABLE IF NOT EXISTS response_cache (
			id UUID PRIMARY KEY,
			query_text TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding BYTEA,
			dimension INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Indexes for performance
		CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
		CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at);
		CREATE INDEX IF NOT EXISTS idx_chunks_document_id ON chunks(document_id);
		CREATE INDEX IF NOT EXISTS idx_response_cache_query ON response_cache(query_text, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_response_cache_created_at ON response_cache(created_at);
	`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.logger.Info("database schema initialized successfully")
	return nil
}
