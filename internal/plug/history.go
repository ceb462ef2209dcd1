package plug

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
	historyTimeLayout   = "2006-01-02T15:04:05.000000000Z07:00"
)

// HistoryEntry is one recorded gateway operation.
//
// History is an audit trail only. The state cache is never rebuilt from it.
type HistoryEntry struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"device_id"`
	Action    Action    `json:"action"`
	Method    Method    `json:"method,omitempty"`
	Source    Source    `json:"source,omitempty"`
	IsOn      bool      `json:"is_on"`
	Error     string    `json:"error,omitempty"`
	ElapsedMS int64     `json:"elapsed_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryRepository stores and retrieves operation history.
//
// Implementations must be thread-safe and use UTC timestamps.
type HistoryRepository interface {
	// Append stores entry. An empty ID or zero CreatedAt is filled in.
	Append(ctx context.Context, entry HistoryEntry) error

	// List returns up to limit entries for deviceID, newest first.
	List(ctx context.Context, deviceID string, limit int) ([]HistoryEntry, error)

	// Prune deletes entries older than olderThan and returns the count.
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SQLiteHistoryRepository implements HistoryRepository on the
// plug_history table.
type SQLiteHistoryRepository struct {
	db *sql.DB
}

// NewSQLiteHistoryRepository creates a repository backed by db.
func NewSQLiteHistoryRepository(db *sql.DB) *SQLiteHistoryRepository {
	return &SQLiteHistoryRepository{db: db}
}

// Append inserts a history entry.
func (r *SQLiteHistoryRepository) Append(ctx context.Context, entry HistoryEntry) error {
	if entry.DeviceID == "" {
		return errors.New("device id is required")
	}
	if entry.Action == "" {
		return errors.New("action is required")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO plug_history (id, device_id, action, method, source, is_on, error, elapsed_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.DeviceID,
		string(entry.Action),
		string(entry.Method),
		string(entry.Source),
		boolToInt(entry.IsOn),
		entry.Error,
		entry.ElapsedMS,
		entry.CreatedAt.UTC().Format(historyTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting plug history: %w", err)
	}
	return nil
}

// List returns recent entries for a device, newest first. limit defaults to
// 50 and is capped at 200.
func (r *SQLiteHistoryRepository) List(ctx context.Context, deviceID string, limit int) ([]HistoryEntry, error) {
	if deviceID == "" {
		return nil, errors.New("device id is required")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device_id, action, method, source, is_on, error, elapsed_ms, created_at
		 FROM plug_history
		 WHERE device_id = ?
		 ORDER BY created_at DESC
		 LIMIT ?`,
		deviceID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying plug history: %w", err)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0, limit)
	for rows.Next() {
		var (
			entry                  HistoryEntry
			action, method, source string
			isOn                   int
			createdAt              string
		)
		if err := rows.Scan(&entry.ID, &entry.DeviceID, &action, &method, &source, &isOn, &entry.Error, &entry.ElapsedMS, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning plug history: %w", err)
		}
		entry.Action = Action(action)
		entry.Method = Method(method)
		entry.Source = Source(source)
		entry.IsOn = isOn != 0

		entry.CreatedAt, err = time.Parse(historyTimeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating plug history: %w", err)
	}
	return entries, nil
}

// Prune deletes entries older than olderThan.
func (r *SQLiteHistoryRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, errors.New("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(historyTimeLayout)
	result, err := r.db.ExecContext(ctx, "DELETE FROM plug_history WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting plug history: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

// HistoryRecorder appends one entry per gateway operation.
type HistoryRecorder struct {
	repo   HistoryRepository
	logger Logger
}

// NewHistoryRecorder returns a Recorder writing to repo.
func NewHistoryRecorder(repo HistoryRepository, logger Logger) *HistoryRecorder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &HistoryRecorder{repo: repo, logger: logger}
}

// Record implements Recorder. Write failures are logged and dropped.
func (h *HistoryRecorder) Record(ctx context.Context, ev Event) {
	entry := EntryFromEvent(ev)
	if err := h.repo.Append(context.WithoutCancel(ctx), entry); err != nil {
		h.logger.Warn("failed to record plug history",
			"device_id", ev.DeviceID,
			"action", string(ev.Action),
			"error", err,
		)
	}
}

// EntryFromEvent converts a gateway event into a history entry.
func EntryFromEvent(ev Event) HistoryEntry {
	entry := HistoryEntry{
		DeviceID:  ev.DeviceID,
		Action:    ev.Action,
		Method:    ev.Result.Method,
		IsOn:      ev.Result.IsOn,
		ElapsedMS: ev.Elapsed.Milliseconds(),
		CreatedAt: ev.Result.Timestamp,
	}
	if ev.Result.Status != nil {
		entry.Source = ev.Result.Status.Source
	}
	if ev.Err != nil {
		entry.Error = ev.Err.Error()
	}
	return entry
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
