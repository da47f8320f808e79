package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/AnuragDani/juice-subscriptions/internal/database"
	"github.com/AnuragDani/juice-subscriptions/internal/models"
)

// DB holds the sweep queries over the shared subscription tables
type DB struct {
	*database.DB
	loc *time.Location
}

// NewDB wraps a connection; loc is the store time zone used for DATE columns
func NewDB(conn *database.DB, loc *time.Location) *DB {
	return &DB{DB: conn, loc: loc}
}

// EnsureSweepRunsTable creates the sweep_runs table if it doesn't exist
func (db *DB) EnsureSweepRunsTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS sweep_runs (
			id UUID PRIMARY KEY,
			trigger_source VARCHAR(20) NOT NULL,
			status VARCHAR(30) NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ,
			expired INTEGER NOT NULL DEFAULT 0,
			topped_up INTEGER NOT NULL DEFAULT 0,
			deliveries_added INTEGER NOT NULL DEFAULT 0,
			errors INTEGER NOT NULL DEFAULT 0,
			last_error TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_sweep_runs_started ON sweep_runs(started_at DESC);
	`

	if _, err := db.Conn.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create sweep_runs table: %w", err)
	}
	return nil
}

// ListLapsedPaused returns paused subscriptions paused before the given instant
func (db *DB) ListLapsedPaused(ctx context.Context, pausedBefore time.Time, limit int) ([]models.Subscription, error) {
	query := `
		SELECT id, user_id, subscription_type, status, pause_date, subscription_end_date
		FROM subscriptions
		WHERE status = $1 AND pause_date IS NOT NULL AND pause_date < $2
		ORDER BY pause_date ASC
		LIMIT $3`

	rows, err := db.Conn.QueryContext(ctx, query, models.SubscriptionStatusPaused, pausedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list lapsed subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []models.Subscription
	for rows.Next() {
		var s models.Subscription
		var pauseDate, endDate sql.NullTime
		if err := rows.Scan(&s.ID, &s.UserID, &s.SubscriptionType, &s.Status, &pauseDate, &endDate); err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		if pauseDate.Valid {
			t := pauseDate.Time.In(db.loc)
			s.PauseDate = &t
		}
		if endDate.Valid {
			t := endDate.Time.In(db.loc)
			s.SubscriptionEndDate = &t
		}
		subs = append(subs, s)
	}

	return subs, rows.Err()
}

// ExpireSubscription marks a paused subscription expired and cancels its
// scheduled deliveries from the given day on
func (db *DB) ExpireSubscription(ctx context.Context, id string, from time.Time) (int, error) {
	var canceled int64

	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE subscriptions
			SET status = $2, next_delivery_date = NULL, updated_at = NOW()
			WHERE id = $1 AND status = $3`,
			id, models.SubscriptionStatusExpired, models.SubscriptionStatusPaused)
		if err != nil {
			return fmt.Errorf("failed to expire subscription: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ErrNotPaused
		}

		result, err = tx.ExecContext(ctx, `
			UPDATE deliveries SET status = $3
			WHERE subscription_id = $1 AND status = $4 AND delivery_date >= $2::date`,
			id, database.DateParam(from.In(db.loc)), models.DeliveryStatusCanceled, models.DeliveryStatusScheduled)
		if err != nil {
			return fmt.Errorf("failed to cancel deliveries: %w", err)
		}
		canceled, _ = result.RowsAffected()
		return nil
	})

	return int(canceled), err
}

// ListTopUpCandidates returns active subscriptions whose last scheduled
// delivery falls before the horizon and whose next step still lands on or
// before their end date. Finished schedules never match, so they cannot
// crowd live ones out of the batch.
func (db *DB) ListTopUpCandidates(ctx context.Context, q TopUpQuery) ([]TopUpCandidate, error) {
	query := `
		WITH steps AS (
			SELECT * FROM unnest($6::text[], $7::int[]) AS t(subscription_type, step)
		)
		SELECT s.id, s.user_id, s.subscription_type, s.status, s.subscription_end_date, MAX(d.delivery_date)
		FROM subscriptions s
		JOIN deliveries d ON d.subscription_id = s.id AND d.status IN ($2, $3)
		LEFT JOIN steps st ON st.subscription_type = s.subscription_type
		WHERE s.status = $1 AND s.subscription_end_date IS NOT NULL AND s.subscription_end_date >= $5
		GROUP BY s.id, s.user_id, s.subscription_type, s.status, s.subscription_end_date, st.step
		HAVING MAX(d.delivery_date) < $4::date
			AND MAX(d.delivery_date) + COALESCE(st.step, 1) <= s.subscription_end_date
		ORDER BY MAX(d.delivery_date) ASC
		LIMIT $8`

	types := make([]string, 0, len(q.Steps))
	steps := make([]int64, 0, len(q.Steps))
	for subscriptionType, step := range q.Steps {
		types = append(types, subscriptionType)
		steps = append(steps, int64(step))
	}

	rows, err := db.Conn.QueryContext(ctx, query,
		models.SubscriptionStatusActive, models.DeliveryStatusScheduled, models.DeliveryStatusDelivered,
		database.DateParam(q.Horizon.In(db.loc)), q.Earliest,
		pq.Array(types), pq.Array(steps), q.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list top-up candidates: %w", err)
	}
	defer rows.Close()

	var candidates []TopUpCandidate
	for rows.Next() {
		var c TopUpCandidate
		var endDate time.Time
		if err := rows.Scan(&c.Subscription.ID, &c.Subscription.UserID, &c.Subscription.SubscriptionType,
			&c.Subscription.Status, &endDate, &c.LastDelivery); err != nil {
			return nil, fmt.Errorf("failed to scan top-up candidate: %w", err)
		}
		end := endDate.In(db.loc)
		c.Subscription.SubscriptionEndDate = &end
		c.LastDelivery = database.DateIn(c.LastDelivery, db.loc)
		candidates = append(candidates, c)
	}

	return candidates, rows.Err()
}

// AppendDeliveries inserts new scheduled rows and returns how many were created
func (db *DB) AppendDeliveries(ctx context.Context, id string, dates []time.Time) (int, error) {
	var created int
	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		created, err = database.InsertDeliveries(ctx, tx, id, dates)
		return err
	})
	return created, err
}

// RecordRun stores a finished sweep run
func (db *DB) RecordRun(ctx context.Context, run *SweepRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}

	query := `
		INSERT INTO sweep_runs (id, trigger_source, status, started_at, completed_at, expired, topped_up, deliveries_added, errors, last_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''))`

	_, err := db.Conn.ExecContext(ctx, query,
		run.ID, run.Trigger, run.Status, run.StartedAt, run.CompletedAt,
		run.Expired, run.ToppedUp, run.DeliveriesAdded, run.Errors, run.LastError)
	if err != nil {
		return fmt.Errorf("failed to record sweep run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent sweep runs
func (db *DB) ListRuns(ctx context.Context, limit int) ([]SweepRun, error) {
	query := `
		SELECT id, trigger_source, status, started_at, completed_at, expired, topped_up,
			   deliveries_added, errors, COALESCE(last_error, '')
		FROM sweep_runs
		ORDER BY started_at DESC
		LIMIT $1`

	rows, err := db.Conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sweep runs: %w", err)
	}
	defer rows.Close()

	runs := []SweepRun{}
	for rows.Next() {
		var r SweepRun
		var completedAt sql.NullTime
		if err := rows.Scan(&r.ID, &r.Trigger, &r.Status, &r.StartedAt, &completedAt,
			&r.Expired, &r.ToppedUp, &r.DeliveriesAdded, &r.Errors, &r.LastError); err != nil {
			return nil, fmt.Errorf("failed to scan sweep run: %w", err)
		}
		if completedAt.Valid {
			t := completedAt.Time
			r.CompletedAt = &t
		}
		runs = append(runs, r)
	}

	return runs, rows.Err()
}
