package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// EnsureSubscriptionTables creates the subscriptions and deliveries tables if they don't exist.
// A subscription has at most one delivery row per calendar day.
func (db *DB) EnsureSubscriptionTables(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS subscriptions (
			id UUID PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			subscription_type VARCHAR(50) NOT NULL,
			duration_months INTEGER NOT NULL CHECK (duration_months BETWEEN 1 AND 12),
			status VARCHAR(20) NOT NULL DEFAULT 'active',
			start_date TIMESTAMPTZ NOT NULL,
			subscription_end_date TIMESTAMPTZ,
			next_delivery_date TIMESTAMPTZ,
			pause_date TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_subscriptions_user ON subscriptions(user_id);
		CREATE INDEX IF NOT EXISTS idx_subscriptions_status ON subscriptions(status);

		CREATE TABLE IF NOT EXISTS deliveries (
			id UUID PRIMARY KEY,
			subscription_id UUID NOT NULL REFERENCES subscriptions(id) ON DELETE CASCADE,
			delivery_date DATE NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'scheduled',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (subscription_id, delivery_date)
		);
		CREATE INDEX IF NOT EXISTS idx_deliveries_date ON deliveries(delivery_date);
	`

	if _, err := db.Conn.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create subscription tables: %w", err)
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// DateParam formats a delivery day for a DATE column using its own calendar date
func DateParam(t time.Time) string {
	return t.Format(time.DateOnly)
}

// DateIn rebuilds a DATE value scanned by lib/pq as midnight in loc
func DateIn(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
