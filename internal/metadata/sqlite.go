package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore keeps metadata in an embedded SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore wraps an opened and migrated database handle.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

// CreateEntry inserts a new entry stamped with the current time.
func (s *SQLiteStore) CreateEntry(ctx context.Context, length int, deleteDate time.Time) (Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	entry := Entry{
		ID:         uuid.NewString(),
		Length:     length,
		UploadDate: normalize(s.now()),
		DeleteDate: normalize(deleteDate),
	}

	query := `INSERT INTO entry (id, length, upload_date, delete_date) VALUES (?, ?, ?, ?);`
	_, err := s.db.ExecContext(ctx, query, entry.ID, entry.Length, formatTime(entry.UploadDate), formatTime(entry.DeleteDate))
	if err != nil {
		if isSQLiteConstraint(err, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, "UNIQUE") {
			return Entry{}, ErrConflict
		}
		return Entry{}, fmt.Errorf("create entry: %w", err)
	}
	return entry, nil
}

// CreateFile inserts a file row under entryID.
func (s *SQLiteStore) CreateFile(ctx context.Context, entryID, name string, size int64) (File, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	file := File{ID: uuid.NewString(), EntryID: entryID, Name: name, Size: size}

	query := `INSERT INTO file (id, entry_id, name, size) VALUES (?, ?, ?, ?);`
	if _, err := s.db.ExecContext(ctx, query, file.ID, file.EntryID, file.Name, file.Size); err != nil {
		switch {
		case isSQLiteConstraint(err, sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY, "FOREIGN KEY"):
			return File{}, ErrEntryNotFound
		case isSQLiteConstraint(err, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, "UNIQUE"):
			return File{}, ErrConflict
		}
		return File{}, fmt.Errorf("create file: %w", err)
	}
	return file, nil
}

// GetEntry returns the entry unless it is missing or already expired.
func (s *SQLiteStore) GetEntry(ctx context.Context, id string) (Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `
SELECT id, length, upload_date, delete_date
FROM entry
WHERE id = ? AND delete_date >= ?;`

	var (
		entry              Entry
		uploaded, deleteAt string
	)
	err := s.db.QueryRowContext(ctx, query, id, formatTime(s.now())).Scan(&entry.ID, &entry.Length, &uploaded, &deleteAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, ErrEntryNotFound
		}
		return Entry{}, fmt.Errorf("get entry: %w", err)
	}

	if entry.UploadDate, err = parseTime(uploaded); err != nil {
		return Entry{}, fmt.Errorf("parse upload date: %w", err)
	}
	if entry.DeleteDate, err = parseTime(deleteAt); err != nil {
		return Entry{}, fmt.Errorf("parse delete date: %w", err)
	}
	return entry, nil
}

// ListFileIDs returns the entry's file ids in insertion order.
func (s *SQLiteStore) ListFileIDs(ctx context.Context, entryID string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM file WHERE entry_id = ? ORDER BY rowid;`, entryID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	ids, err := scanIDs(rows)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrEntryNotFound
	}
	return ids, nil
}

// GetFile fetches a single file row.
func (s *SQLiteStore) GetFile(ctx context.Context, id string) (File, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	var file File
	err := s.db.QueryRowContext(ctx, `SELECT id, entry_id, name, size FROM file WHERE id = ?;`, id).
		Scan(&file.ID, &file.EntryID, &file.Name, &file.Size)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return File{}, ErrFileNotFound
		}
		return File{}, fmt.Errorf("get file: %w", err)
	}
	return file, nil
}

// DeleteFile removes a file row.
func (s *SQLiteStore) DeleteFile(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `DELETE FROM file WHERE id = ?;`, id)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	return requireAffected(res, ErrFileNotFound)
}

// ListExpiredEntryIDs returns entries whose delete date is before asOf.
func (s *SQLiteStore) ListExpiredEntryIDs(ctx context.Context, asOf time.Time) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM entry WHERE delete_date < ? ORDER BY delete_date;`, formatTime(asOf))
	if err != nil {
		return nil, fmt.Errorf("list expired entries: %w", err)
	}
	return scanIDs(rows)
}

// DeleteEntry removes an entry row. Its files must already be gone.
func (s *SQLiteStore) DeleteEntry(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `DELETE FROM entry WHERE id = ?;`, id)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return requireAffected(res, ErrEntryNotFound)
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanIDs(rows *sql.Rows) ([]string, error) {
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ids: %w", err)
	}
	return ids, nil
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// isSQLiteConstraint matches an extended constraint code, falling back to the
// message when the driver only reports the primary SQLITE_CONSTRAINT code.
func isSQLiteConstraint(err error, extended int, marker string) bool {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	code := serr.Code()
	if code == extended {
		return true
	}
	return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(serr.Error(), marker)
}
