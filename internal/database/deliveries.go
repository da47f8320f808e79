package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const deliveryStatusScheduled = "scheduled"

// InsertDeliveries adds scheduled delivery rows inside tx, skipping days that
// already have one, and returns how many rows were created
func InsertDeliveries(ctx context.Context, tx *sql.Tx, subscriptionID string, dates []time.Time) (int, error) {
	if len(dates) == 0 {
		return 0, nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO deliveries (id, subscription_id, delivery_date, status, created_at)
		VALUES ($1, $2, $3::date, $4, NOW())
		ON CONFLICT (subscription_id, delivery_date) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare delivery insert: %w", err)
	}
	defer stmt.Close()

	created := 0
	for _, d := range dates {
		result, err := stmt.ExecContext(ctx, uuid.New().String(), subscriptionID, DateParam(d), deliveryStatusScheduled)
		if err != nil {
			return created, fmt.Errorf("failed to insert delivery %s: %w", DateParam(d), err)
		}
		if n, _ := result.RowsAffected(); n > 0 {
			created++
		}
	}
	return created, nil
}
