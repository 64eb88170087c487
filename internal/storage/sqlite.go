package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"lettercast/internal/model"
	"lettercast/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

const itemColumns = `id, url, title, source, source_name, status, error_msg, audio_path,
	collected_at, completed_at, delivered_at`

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer per run; a single connection also keeps ":memory:" databases intact.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db, now: time.Now}, nil
}

// OpenReadOnly opens the database at path without creating, migrating or
// writing to it. A missing file yields an empty in-memory database, so a
// caller that only reads sees no stored URLs.
func OpenReadOnly(path string) (*SQLite, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return NewSQLite(":memory:")
	} else if err != nil {
		return nil, fmt.Errorf("stat database: %w", err)
	}

	db, err := sql.Open("sqlite", "file:"+(&url.URL{Path: path}).EscapedPath()+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	var n int
	if err := db.QueryRow(`SELECT count(*) FROM processed_urls`).Scan(&n); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database %s is not migrated: %w", path, err)
	}

	return &SQLite{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection. Any later call panics.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLite) conn() *sql.DB {
	if s.db == nil {
		panic("storage: database is not open")
	}
	return s.db
}

// IsDuplicate reports whether a row with the URL's hash already exists.
func (s *SQLite) IsDuplicate(ctx context.Context, url string) (bool, error) {
	var one int
	err := s.conn().QueryRowContext(ctx,
		`SELECT 1 FROM processed_urls WHERE url_hash = ?`, URLHash(url),
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check duplicate: %w", err)
	}
	return true, nil
}

// Save inserts a new pending row and populates the item's ID and Status.
// A zero CollectedAt is replaced with the current time.
func (s *SQLite) Save(ctx context.Context, item *model.CollectedItem) (int64, error) {
	if item.CollectedAt.IsZero() {
		item.CollectedAt = s.now()
	}
	collected := item.CollectedAt.UTC().Format(timeLayout)

	res, err := s.conn().ExecContext(ctx,
		`INSERT INTO processed_urls (url, url_hash, title, source, source_name, status, collected_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.URL, URLHash(item.URL), item.Title, string(item.Source), item.SourceName,
		string(model.StatusPending), collected,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("insert %s: %w", item.URL, ErrDuplicate)
		}
		return 0, fmt.Errorf("insert item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	item.ID = id
	item.Status = model.StatusPending
	item.CollectedAt, _ = time.Parse(timeLayout, collected)
	return id, nil
}

// Get returns a single item by its ID.
func (s *SQLite) Get(ctx context.Context, id int64) (*model.CollectedItem, error) {
	row := s.conn().QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM processed_urls WHERE id = ?`, id,
	)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get item %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// UpdateStatus moves an item to status and writes the optional fields.
// completed_at is set only when status is completed.
func (s *SQLite) UpdateStatus(ctx context.Context, id int64, status model.Status, upd StatusUpdate) error {
	if !status.Valid() {
		return fmt.Errorf("unknown status %q: %w", status, ErrInvalidTransition)
	}

	tx, err := s.conn().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM processed_urls WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update item %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}
	if !model.Status(current).CanTransition(status) {
		return fmt.Errorf("item %d %s -> %s: %w", id, current, status, ErrInvalidTransition)
	}

	var completedAt *string
	if status == model.StatusCompleted {
		v := s.now().UTC().Format(timeLayout)
		completedAt = &v
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE processed_urls SET status = ?, error_msg = ?, audio_path = ?, completed_at = ?
		 WHERE id = ?`,
		string(status), upd.ErrorMsg, upd.AudioPath, completedAt, id,
	); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return tx.Commit()
}

// MarkDelivered clears the audio path of a completed item and records the delivery time.
func (s *SQLite) MarkDelivered(ctx context.Context, id int64) error {
	res, err := s.conn().ExecContext(ctx,
		`UPDATE processed_urls SET audio_path = NULL, delivered_at = ?
		 WHERE id = ? AND status = ?`,
		s.now().UTC().Format(timeLayout), id, string(model.StatusCompleted),
	)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("mark delivered %d: %w", id, ErrNotFound)
	}
	return nil
}

// GetPending returns all pending items ordered by collection time.
func (s *SQLite) GetPending(ctx context.Context) ([]model.CollectedItem, error) {
	rows, err := s.conn().QueryContext(ctx,
		`SELECT `+itemColumns+` FROM processed_urls WHERE status = ? ORDER BY collected_at, id`,
		string(model.StatusPending),
	)
	if err != nil {
		return nil, fmt.Errorf("query pending: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanItems(rows)
}

// GetCompletedWithoutDelivery returns completed items that still hold an audio file.
func (s *SQLite) GetCompletedWithoutDelivery(ctx context.Context) ([]model.CollectedItem, error) {
	rows, err := s.conn().QueryContext(ctx,
		`SELECT `+itemColumns+` FROM processed_urls
		 WHERE status = ? AND audio_path IS NOT NULL ORDER BY collected_at, id`,
		string(model.StatusCompleted),
	)
	if err != nil {
		return nil, fmt.Errorf("query undelivered: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanItems(rows)
}

// GetRecentCount returns the number of items collected within the last hours.
func (s *SQLite) GetRecentCount(ctx context.Context, hours int) (int, error) {
	since := s.now().UTC().Add(-time.Duration(hours) * time.Hour).Format(timeLayout)
	var count int
	err := s.conn().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM processed_urls WHERE collected_at >= ?`, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count recent: %w", err)
	}
	return count, nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanItem(row scannable) (*model.CollectedItem, error) {
	var it model.CollectedItem
	var source, status, collected string
	var errMsg, audioPath, completed, delivered sql.NullString
	err := row.Scan(&it.ID, &it.URL, &it.Title, &source, &it.SourceName, &status, &errMsg, &audioPath,
		&collected, &completed, &delivered)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan item: %w", err)
	}
	it.Source = model.SourceType(source)
	it.Status = model.Status(status)
	if errMsg.Valid {
		it.ErrorMsg = &errMsg.String
	}
	if audioPath.Valid {
		it.AudioPath = &audioPath.String
	}
	it.CollectedAt, _ = time.Parse(timeLayout, collected)
	it.CompletedAt = parseNullTime(completed)
	it.DeliveredAt = parseNullTime(delivered)
	return &it, nil
}

func scanItems(rows *sql.Rows) ([]model.CollectedItem, error) {
	var items []model.CollectedItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

func parseNullTime(v sql.NullString) *time.Time {
	if !v.Valid {
		return nil
	}
	t, err := time.Parse(timeLayout, v.String)
	if err != nil {
		return nil
	}
	return &t
}
