package database

import (
	"context"
	"fmt"

	"github.com/AnuragDani/juice-subscriptions/internal/models"
)

// EnsureSettingsTable creates delivery_schedule_settings if it doesn't exist
func (db *DB) EnsureSettingsTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS delivery_schedule_settings (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			subscription_type VARCHAR(50) NOT NULL,
			delivery_gap_days INTEGER NOT NULL DEFAULT 0 CHECK (delivery_gap_days >= 0),
			is_daily BOOLEAN NOT NULL DEFAULT false,
			description TEXT NOT NULL DEFAULT '',
			is_active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_delivery_settings_type
			ON delivery_schedule_settings(subscription_type, is_active);
	`

	if _, err := db.Conn.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create delivery_schedule_settings table: %w", err)
	}
	return nil
}

// SeedSettings inserts defaults when the settings table is empty
func (db *DB) SeedSettings(ctx context.Context, defaults []models.DeliveryScheduleSetting) (int, error) {
	var count int
	if err := db.Conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM delivery_schedule_settings`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count delivery settings: %w", err)
	}
	if count > 0 {
		return 0, nil
	}

	for _, s := range defaults {
		if _, err := db.UpsertSetting(ctx, s); err != nil {
			return 0, err
		}
	}
	return len(defaults), nil
}

// ListActiveSettings returns active settings, oldest first so the first row per type is stable
func (db *DB) ListActiveSettings(ctx context.Context) ([]models.DeliveryScheduleSetting, error) {
	return db.listSettings(ctx, true)
}

// ListSettings returns every setting for the admin view
func (db *DB) ListSettings(ctx context.Context) ([]models.DeliveryScheduleSetting, error) {
	return db.listSettings(ctx, false)
}

func (db *DB) listSettings(ctx context.Context, activeOnly bool) ([]models.DeliveryScheduleSetting, error) {
	query := `
		SELECT id, subscription_type, delivery_gap_days, is_daily, description,
			   is_active, created_at, updated_at
		FROM delivery_schedule_settings`

	if activeOnly {
		query += " WHERE is_active = true"
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := db.Conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list delivery settings: %w", err)
	}
	defer rows.Close()

	settings := []models.DeliveryScheduleSetting{}
	for rows.Next() {
		var s models.DeliveryScheduleSetting
		if err := rows.Scan(
			&s.ID, &s.SubscriptionType, &s.DeliveryGapDays, &s.IsDaily, &s.Description,
			&s.IsActive, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan delivery setting: %w", err)
		}
		settings = append(settings, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating delivery settings: %w", err)
	}

	return settings, nil
}

// UpsertSetting updates the oldest row for the subscription type, or inserts one
func (db *DB) UpsertSetting(ctx context.Context, s models.DeliveryScheduleSetting) (*models.DeliveryScheduleSetting, error) {
	update := `
		UPDATE delivery_schedule_settings
		SET delivery_gap_days = $2, is_daily = $3, description = $4, is_active = $5, updated_at = NOW()
		WHERE id = (
			SELECT id FROM delivery_schedule_settings
			WHERE subscription_type = $1
			ORDER BY created_at ASC, id ASC
			LIMIT 1
		)
		RETURNING id, subscription_type, delivery_gap_days, is_daily, description, is_active, created_at, updated_at`

	var out models.DeliveryScheduleSetting
	err := db.Conn.QueryRowContext(ctx, update,
		s.SubscriptionType, s.DeliveryGapDays, s.IsDaily, s.Description, s.IsActive,
	).Scan(&out.ID, &out.SubscriptionType, &out.DeliveryGapDays, &out.IsDaily, &out.Description,
		&out.IsActive, &out.CreatedAt, &out.UpdatedAt)
	if err == nil {
		return &out, nil
	}
	if !isNoRows(err) {
		return nil, fmt.Errorf("failed to update delivery setting: %w", err)
	}

	insert := `
		INSERT INTO delivery_schedule_settings (subscription_type, delivery_gap_days, is_daily, description, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, subscription_type, delivery_gap_days, is_daily, description, is_active, created_at, updated_at`

	err = db.Conn.QueryRowContext(ctx, insert,
		s.SubscriptionType, s.DeliveryGapDays, s.IsDaily, s.Description, s.IsActive,
	).Scan(&out.ID, &out.SubscriptionType, &out.DeliveryGapDays, &out.IsDaily, &out.Description,
		&out.IsActive, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert delivery setting: %w", err)
	}
	return &out, nil
}
