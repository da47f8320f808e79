package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AnuragDani/juice-subscriptions/internal/database"
	"github.com/AnuragDani/juice-subscriptions/internal/delivery"
	"github.com/AnuragDani/juice-subscriptions/internal/models"
)

// DB persists subscriptions and their delivery rows
type DB struct {
	*database.DB
	loc *time.Location
}

// NewDB wraps a connection; loc is the store time zone used for DATE columns
func NewDB(conn *database.DB, loc *time.Location) *DB {
	return &DB{DB: conn, loc: loc}
}

const subscriptionColumns = `
	id, user_id, subscription_type, duration_months, status, start_date,
	subscription_end_date, next_delivery_date, pause_date, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (db *DB) scanSubscription(row rowScanner) (*models.Subscription, error) {
	var s models.Subscription
	var endDate, nextDelivery, pauseDate sql.NullTime

	err := row.Scan(
		&s.ID, &s.UserID, &s.SubscriptionType, &s.DurationMonths, &s.Status, &s.StartDate,
		&endDate, &nextDelivery, &pauseDate, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.StartDate = s.StartDate.In(db.loc)
	if endDate.Valid {
		t := endDate.Time.In(db.loc)
		s.SubscriptionEndDate = &t
	}
	if nextDelivery.Valid {
		t := nextDelivery.Time.In(db.loc)
		s.NextDeliveryDate = &t
	}
	if pauseDate.Valid {
		t := pauseDate.Time.In(db.loc)
		s.PauseDate = &t
	}
	return &s, nil
}

// ============== Subscription Operations ==============

// CreateSubscription inserts the subscription and one delivery row per date
func (db *DB) CreateSubscription(ctx context.Context, sub *models.Subscription, dates []time.Time) (*models.Subscription, error) {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}

	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO subscriptions (
				id, user_id, subscription_type, duration_months, status, start_date,
				subscription_end_date, next_delivery_date, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())`

		if _, err := tx.ExecContext(ctx, query,
			sub.ID, sub.UserID, sub.SubscriptionType, sub.DurationMonths, sub.Status,
			sub.StartDate, sub.SubscriptionEndDate, sub.NextDeliveryDate,
		); err != nil {
			return fmt.Errorf("failed to create subscription: %w", err)
		}

		_, err := database.InsertDeliveries(ctx, tx, sub.ID, dates)
		return err
	})
	if err != nil {
		return nil, err
	}

	return db.GetSubscription(ctx, sub.ID)
}

// GetSubscription retrieves a subscription by ID
func (db *DB) GetSubscription(ctx context.Context, id string) (*models.Subscription, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrSubscriptionNotFound
	}

	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`

	sub, err := db.scanSubscription(db.Conn.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

// ListSubscriptions retrieves subscriptions with optional filters
func (db *DB) ListSubscriptions(ctx context.Context, userID string, status string) ([]models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE 1=1`

	args := []interface{}{}
	argNum := 1

	if userID != "" {
		query += fmt.Sprintf(" AND user_id = $%d", argNum)
		args = append(args, userID)
		argNum++
	}

	if status != "" {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, status)
	}

	query += " ORDER BY created_at DESC"

	rows, err := db.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	subscriptions := []models.Subscription{}
	for rows.Next() {
		sub, err := db.scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subscriptions = append(subscriptions, *sub)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscriptions: %w", err)
	}

	return subscriptions, nil
}

// ListDeliveries returns delivery rows on or after from, ordered by date
func (db *DB) ListDeliveries(ctx context.Context, subscriptionID string, from time.Time) ([]models.Delivery, error) {
	query := `
		SELECT id, subscription_id, delivery_date, status, created_at
		FROM deliveries
		WHERE subscription_id = $1 AND delivery_date >= $2::date
		ORDER BY delivery_date ASC`

	rows, err := db.Conn.QueryContext(ctx, query, subscriptionID, database.DateParam(from.In(db.loc)))
	if err != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	defer rows.Close()

	deliveries := []models.Delivery{}
	for rows.Next() {
		var d models.Delivery
		if err := rows.Scan(&d.ID, &d.SubscriptionID, &d.DeliveryDate, &d.Status, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		d.DeliveryDate = database.DateIn(d.DeliveryDate, db.loc)
		deliveries = append(deliveries, d)
	}

	return deliveries, rows.Err()
}

// PauseSubscription moves a subscription from fromStatus to toStatus, stamps
// the pause date and cancels scheduled deliveries after the pause day
func (db *DB) PauseSubscription(ctx context.Context, id, fromStatus, toStatus string, pausedAt time.Time) (*models.Subscription, int, error) {
	var canceled int64

	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE subscriptions
			SET status = $3, pause_date = $4, next_delivery_date = NULL, updated_at = NOW()
			WHERE id = $1 AND status = $2`,
			id, fromStatus, toStatus, pausedAt)
		if err != nil {
			return fmt.Errorf("failed to pause subscription: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ErrStatusConflict
		}

		result, err = tx.ExecContext(ctx, `
			UPDATE deliveries SET status = $3
			WHERE subscription_id = $1 AND status = $4 AND delivery_date > $2::date`,
			id, database.DateParam(pausedAt.In(db.loc)), models.DeliveryStatusCanceled, models.DeliveryStatusScheduled)
		if err != nil {
			return fmt.Errorf("failed to cancel deliveries: %w", err)
		}
		canceled, _ = result.RowsAffected()
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	sub, err := db.GetSubscription(ctx, id)
	return sub, int(canceled), err
}

// ReactivateSubscription moves a subscription from fromStatus back to active,
// writes the extended end date and replaces future delivery rows with dates
func (db *DB) ReactivateSubscription(ctx context.Context, id, fromStatus string, update delivery.ReactivationUpdate, dates []time.Time) (*models.Subscription, int, error) {
	var created int

	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE subscriptions
			SET status = $3, pause_date = NULL, subscription_end_date = $4,
				next_delivery_date = $5, updated_at = NOW()
			WHERE id = $1 AND status = $2`,
			id, fromStatus, models.SubscriptionStatusActive, update.ExtendedEndDate, update.NextDeliveryDate)
		if err != nil {
			return fmt.Errorf("failed to reactivate subscription: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ErrStatusConflict
		}

		if _, err := tx.ExecContext(ctx, `
			DELETE FROM deliveries
			WHERE subscription_id = $1 AND delivery_date >= $2::date AND status IN ($3, $4)`,
			id, database.DateParam(update.NextDeliveryDate.In(db.loc)),
			models.DeliveryStatusScheduled, models.DeliveryStatusCanceled,
		); err != nil {
			return fmt.Errorf("failed to discard future deliveries: %w", err)
		}

		created, err = database.InsertDeliveries(ctx, tx, id, dates)
		return err
	})
	if err != nil {
		return nil, 0, err
	}

	sub, err := db.GetSubscription(ctx, id)
	return sub, created, err
}
