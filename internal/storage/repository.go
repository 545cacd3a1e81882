package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	upsertCycleSQL = `INSERT INTO cycles (
        bucket_ts,
        rows_fetched,
        alerts_emitted,
        status,
        error
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    ON CONFLICT (bucket_ts) DO UPDATE
    SET
        rows_fetched   = EXCLUDED.rows_fetched,
        alerts_emitted = EXCLUDED.alerts_emitted,
        status         = EXCLUDED.status,
        error          = EXCLUDED.error;`

	insertAlertSQL = `INSERT INTO alerts (
        id,
        player,
        team_pos,
        kind,
        add_delta,
        drop_delta,
        add_rate_per_min,
        drop_rate_per_min,
        observed_ts
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9
    )
    ON CONFLICT (id) DO NOTHING;`

	listRecentAlertsSQL = `SELECT
        id,
        player,
        team_pos,
        kind,
        add_delta,
        drop_delta,
        add_rate_per_min,
        drop_rate_per_min,
        observed_ts,
        created_at
    FROM alerts
    ORDER BY observed_ts DESC
    LIMIT $1;`

	listAlertsBetweenSQL = `SELECT
        id,
        player,
        team_pos,
        kind,
        add_delta,
        drop_delta,
        add_rate_per_min,
        drop_rate_per_min,
        observed_ts,
        created_at
    FROM alerts
    WHERE observed_ts >= $1
      AND observed_ts < $2
    ORDER BY observed_ts;`

	deleteAlertsBeforeSQL = `DELETE FROM alerts WHERE observed_ts < $1;`

	countAlertsSQL = `SELECT COUNT(*) FROM alerts;`
)

// CycleStore defines operations for per-cycle audit summaries.
type CycleStore interface {
	UpsertCycle(ctx context.Context, sample CycleSample) error
}

// AlertStore defines operations for alert auditing.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) error
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	ListAlertsBetween(ctx context.Context, from, to time.Time) ([]AlertRecord, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error
}

// Store aggregates access to cycle summaries and alert records.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// UpsertCycle persists or updates a cycle summary.
func (s *Store) UpsertCycle(ctx context.Context, sample CycleSample) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var errMsg interface{}
	if sample.Error != nil {
		errMsg = *sample.Error
	}

	_, execErr := pool.Exec(ctx, upsertCycleSQL,
		sample.Bucket,
		sample.RowsFetched,
		sample.AlertsEmitted,
		sample.Status,
		errMsg,
	)
	if execErr != nil {
		return fmt.Errorf("upsert cycle: %w", execErr)
	}
	return nil
}

// InsertAlert persists an alert emission.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var teamPos interface{}
	if alert.TeamPos != "" {
		teamPos = alert.TeamPos
	}

	_, execErr := pool.Exec(ctx, insertAlertSQL,
		alert.ID,
		alert.Player,
		teamPos,
		alert.Kind,
		alert.AddDelta,
		alert.DropDelta,
		alert.AddRate.String(),
		alert.DropRate.String(),
		alert.Observed,
	)
	if execErr != nil {
		return fmt.Errorf("insert alert: %w", execErr)
	}
	return nil
}

// ListRecentAlerts lists most recent alerts ordered by descending time.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	return collectAlerts(rows)
}

// ListAlertsBetween lists alerts within a time window.
func (s *Store) ListAlertsBetween(ctx context.Context, from, to time.Time) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listAlertsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list alerts between: %w", queryErr)
	}
	defer rows.Close()

	return collectAlerts(rows)
}

// DeleteAlertsBefore deletes historical alerts.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete alerts before: %w", execErr)
	}
	return nil
}

// CountAlerts counts stored alerts.
func (s *Store) CountAlerts(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countAlertsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count alerts: %w", scanErr)
	}
	return count, nil
}

func collectAlerts(rows pgx.Rows) ([]AlertRecord, error) {
	alerts := make([]AlertRecord, 0)
	for rows.Next() {
		rec, scanErr := scanAlert(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

func scanAlert(rows pgx.Rows) (AlertRecord, error) {
	var (
		rec         AlertRecord
		teamPos     sql.NullString
		addRateStr  string
		dropRateStr string
	)

	if err := rows.Scan(
		&rec.ID,
		&rec.Player,
		&teamPos,
		&rec.Kind,
		&rec.AddDelta,
		&rec.DropDelta,
		&addRateStr,
		&dropRateStr,
		&rec.Observed,
		&rec.CreatedAt,
	); err != nil {
		return AlertRecord{}, err
	}

	if teamPos.Valid {
		rec.TeamPos = teamPos.String
	}

	var convErr error
	rec.AddRate, convErr = decimal.NewFromString(addRateStr)
	if convErr != nil {
		return AlertRecord{}, fmt.Errorf("parse add rate: %w", convErr)
	}
	rec.DropRate, convErr = decimal.NewFromString(dropRateStr)
	if convErr != nil {
		return AlertRecord{}, fmt.Errorf("parse drop rate: %w", convErr)
	}

	return rec, nil
}
