package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Repository provides common database operations
type Repository struct {
	conn *Connection
}

// NewRepository creates a new repository instance
func NewRepository(conn *Connection) *Repository {
	return &Repository{
		conn: conn,
	}
}

// Connection returns the underlying database connection
func (r *Repository) Connection() *Connection {
	return r.conn
}

// WithTransaction executes a function within a database transaction
func (r *Repository) WithTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	return r.WithTransactionOptions(ctx, nil, fn)
}

// WithTransactionOptions executes a function within a database transaction with specific options
func (r *Repository) WithTransactionOptions(ctx context.Context, opts *sql.TxOptions, fn func(*sql.Tx) error) error {
	tx, err := r.conn.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p) // Re-throw panic after rollback
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction failed: %v, rollback failed: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// RetryableOperation executes an operation with exponential backoff retry logic
func (r *Repository) RetryableOperation(ctx context.Context, maxRetries int, operation func() error) error {
	var lastErr error
	backoff := time.Millisecond * 100

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			// Wait with exponential backoff
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
				if backoff > time.Second*10 {
					backoff = time.Second * 10 // Cap at 10 seconds
				}
			}
		}

		lastErr = operation()
		if lastErr == nil {
			return nil // Success
		}

		// Only retry if the error is retryable
		if !IsRetryableError(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("operation failed after %d retries: %w", maxRetries, lastErr)
}

// HealthCheck performs a basic health check on the database
func (r *Repository) HealthCheck(ctx context.Context) error {
	// Test basic connectivity
	if err := r.conn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	// Test a simple query
	var result int
	err := r.conn.QueryRowContext(ctx, "SELECT 1").Scan(&result)
	if err != nil {
		return fmt.Errorf("database query test failed: %w", err)
	}

	if result != 1 {
		return fmt.Errorf("database query returned unexpected result: %d", result)
	}

	return nil
}

// GetConnectionStats returns database connection pool statistics
func (r *Repository) GetConnectionStats() sql.DBStats {
	return r.conn.Stats()
}
