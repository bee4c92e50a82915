package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

type PoolStats struct {
	MaxOpenConns      int           `json:"max_open_connections"`
	OpenConns         int           `json:"open_connections"`
	InUse             int           `json:"in_use"`
	Idle              int           `json:"idle"`
	WaitCount         int64         `json:"wait_count"`
	WaitDuration      time.Duration `json:"wait_duration"`
	MaxIdleClosed     int64         `json:"max_idle_closed"`
	MaxLifetimeClosed int64         `json:"max_lifetime_closed"`
}

type HealthCheck struct {
	Status       string        `json:"status"`
	ResponseTime time.Duration `json:"response_time"`
	Error        string        `json:"error,omitempty"`
	Stats        PoolStats     `json:"stats"`
	Warnings     []string      `json:"warnings,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
}

const (
	queryMaxAttempts  = 3
	queryRetryBackoff = 100 * time.Millisecond
)

func (db *DB) GetPoolStats() PoolStats {
	return poolStatsOf(db.Stats())
}

func poolStatsOf(stats sql.DBStats) PoolStats {
	return PoolStats{
		MaxOpenConns:      stats.MaxOpenConnections,
		OpenConns:         stats.OpenConnections,
		InUse:             stats.InUse,
		Idle:              stats.Idle,
		WaitCount:         stats.WaitCount,
		WaitDuration:      stats.WaitDuration,
		MaxIdleClosed:     stats.MaxIdleClosed,
		MaxLifetimeClosed: stats.MaxLifetimeClosed,
	}
}

// HealthCheck pings the database and reports pool pressure. A check-in
// store that cannot answer a ping within the timeout is reported unhealthy.
func (db *DB) HealthCheck(ctx context.Context) HealthCheck {
	start := time.Now()
	stats := db.Stats()
	healthCheck := HealthCheck{
		Timestamp: start,
		Stats:     poolStatsOf(stats),
		Warnings:  PoolWarnings(stats),
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := db.PingContext(pingCtx)
	healthCheck.ResponseTime = time.Since(start)

	if err != nil {
		healthCheck.Status = "unhealthy"
		healthCheck.Error = err.Error()
		slog.Error("Database health check failed", "error", err)
	} else {
		healthCheck.Status = "healthy"
	}

	return healthCheck
}

// PoolWarnings lists signs of connection pool exhaustion.
func PoolWarnings(stats sql.DBStats) []string {
	var warnings []string

	if stats.MaxOpenConnections > 0 && stats.InUse > int(float64(stats.MaxOpenConnections)*0.9) {
		warnings = append(warnings, fmt.Sprintf("high connection usage: %d of %d in use", stats.InUse, stats.MaxOpenConnections))
	}
	if stats.WaitCount > 0 && stats.WaitDuration > time.Second {
		warnings = append(warnings, fmt.Sprintf("high wait time: %d waits totalling %s", stats.WaitCount, stats.WaitDuration))
	}
	if stats.MaxIdleClosed > 1000 {
		warnings = append(warnings, fmt.Sprintf("%d idle connections closed, consider raising DB_MAX_IDLE_CONNS", stats.MaxIdleClosed))
	}

	for _, w := range warnings {
		slog.Warn("Database pool warning", "warning", w)
	}
	return warnings
}

// QueryWithRetry runs a read query, retrying connection-level failures.
// Writes must not go through here: a retried write is not idempotent.
func (db *DB) QueryWithRetry(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	var lastErr error
	for attempt := 1; attempt <= queryMaxAttempts; attempt++ {
		rows, err := db.QueryContext(ctx, query, args...)
		if err == nil {
			return rows, nil
		}

		lastErr = err
		if !IsRetryableError(err) {
			return nil, fmt.Errorf("non-retryable error on attempt %d: %w", attempt, err)
		}

		if attempt < queryMaxAttempts {
			slog.Warn("Database query failed, retrying",
				"attempt", attempt, "max_attempts", queryMaxAttempts, "error", err)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * queryRetryBackoff):
			}
		}
	}

	return nil, fmt.Errorf("query failed after %d attempts: %w", queryMaxAttempts, lastErr)
}

var retryableErrors = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"timeout",
	"driver: bad connection",
}

// IsRetryableError reports connection-related errors that might be temporary.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := err.Error()
	for _, retryable := range retryableErrors {
		if strings.Contains(errStr, retryable) {
			return true
		}
	}
	return false
}
