package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Toltar/energy-monitoring-app/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLite implements UsageStore and ThresholdStore using an SQLite database.
// When a change feed is attached, every successful usage write is mirrored to
// it as INSERT or MODIFY events in write order.
type SQLite struct {
	db     *sql.DB
	feed   ChangeFeed
	logger *slog.Logger
}

// NewSQLite opens or creates an SQLite database at the given path.
func NewSQLite(dbPath string) (*SQLite, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db, logger: slog.Default()}, nil
}

// AttachChangeFeed mirrors subsequent usage writes to the given feed. A feed
// publish failure is logged and never fails the originating write.
func (s *SQLite) AttachChangeFeed(feed ChangeFeed, logger *slog.Logger) {
	s.feed = feed
	if logger != nil {
		s.logger = logger
	}
}

func (s *SQLite) PutUsage(ctx context.Context, record *model.UsageRecord) error {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	// Existence check and upsert share a transaction so a concurrent write
	// cannot flip the event kind between them.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin usage write: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	err = tx.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM usage_records WHERE user_id = ? AND date = ?)",
		record.UserID, record.Date,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check existing usage record: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO usage_records (user_id, date, usage, timestamp)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id, date) DO UPDATE SET
		   usage = excluded.usage,
		   timestamp = excluded.timestamp`,
		record.UserID, record.Date, record.Usage, record.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("put usage record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit usage write: %w", err)
	}

	s.emitChanges(ctx, []model.ChangeEvent{changeEvent(record, exists)})
	return nil
}

func (s *SQLite) BatchPutUsage(ctx context.Context, records []*model.UsageRecord) error {
	if len(records) == 0 {
		return nil
	}
	if len(records) > MaxBatchSize {
		return fmt.Errorf("batch of %d records exceeds limit of %d", len(records), MaxBatchSize)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch write: %w", err)
	}
	defer tx.Rollback()

	events := make([]model.ChangeEvent, 0, len(records))
	for _, record := range records {
		if record.Timestamp.IsZero() {
			record.Timestamp = time.Now().UTC()
		}

		var exists bool
		err := tx.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM usage_records WHERE user_id = ? AND date = ?)",
			record.UserID, record.Date,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check existing usage record: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO usage_records (user_id, date, usage, timestamp)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT(user_id, date) DO UPDATE SET
			   usage = excluded.usage,
			   timestamp = excluded.timestamp`,
			record.UserID, record.Date, record.Usage, record.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("batch put usage record: %w", err)
		}

		events = append(events, changeEvent(record, exists))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch write: %w", err)
	}

	s.emitChanges(ctx, events)
	return nil
}

func (s *SQLite) QueryUsage(ctx context.Context, userID string, from, to time.Time) ([]model.UsageRecord, error) {
	query := "SELECT user_id, date, usage, timestamp FROM usage_records WHERE user_id = ?"
	args := []any{userID}
	if !from.IsZero() {
		query += " AND date >= ?"
		args = append(args, from.UTC().Format(time.RFC3339))
	}
	if !to.IsZero() {
		query += " AND date <= ?"
		args = append(args, to.UTC().Format(time.RFC3339))
	}
	query += " ORDER BY date"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	defer rows.Close()

	var records []model.UsageRecord
	for rows.Next() {
		var r model.UsageRecord
		if err := rows.Scan(&r.UserID, &r.Date, &r.Usage, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan usage row: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *SQLite) GetThreshold(ctx context.Context, userID string) (*model.ThresholdAlertConfig, error) {
	var cfg model.ThresholdAlertConfig
	err := s.db.QueryRowContext(ctx,
		"SELECT user_id, email, threshold FROM threshold_alerts WHERE user_id = ?",
		userID,
	).Scan(&cfg.UserID, &cfg.Email, &cfg.Threshold)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get threshold config: %w", err)
	}
	return &cfg, nil
}

func (s *SQLite) SetThreshold(ctx context.Context, cfg *model.ThresholdAlertConfig) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO threshold_alerts (user_id, email, threshold, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   email = excluded.email,
		   threshold = excluded.threshold,
		   updated_at = excluded.updated_at`,
		cfg.UserID, cfg.Email, cfg.Threshold, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set threshold config: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) emitChanges(ctx context.Context, events []model.ChangeEvent) {
	if s.feed == nil {
		return
	}
	if err := s.feed.PublishChanges(ctx, events); err != nil {
		s.logger.Error("change feed publish failed", "events", len(events), "error", err)
	}
}

func changeEvent(record *model.UsageRecord, existed bool) model.ChangeEvent {
	kind := model.EventInsert
	if existed {
		kind = model.EventModify
	}
	return model.ChangeEvent{Kind: kind, NewImage: record.Payload()}
}
