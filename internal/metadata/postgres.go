package metadata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
)

var _ Store = (*PostgresStore)(nil)

// PostgresStore keeps metadata in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresStore builds a store over a migrated pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, now: time.Now}
}

// CreateEntry inserts a new entry stamped with the current time.
func (s *PostgresStore) CreateEntry(ctx context.Context, length int, deleteDate time.Time) (Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `
INSERT INTO entry (id, length, upload_date, delete_date)
VALUES ($1, $2, $3, $4)
RETURNING id, length, upload_date, delete_date;`

	var entry Entry
	err := s.pool.QueryRow(ctx, query, uuid.NewString(), length, normalize(s.now()), normalize(deleteDate)).
		Scan(&entry.ID, &entry.Length, &entry.UploadDate, &entry.DeleteDate)
	if err != nil {
		return Entry{}, translatePgError("create entry", err)
	}
	entry.UploadDate = entry.UploadDate.UTC()
	entry.DeleteDate = entry.DeleteDate.UTC()
	return entry, nil
}

// CreateFile inserts a file row under entryID.
func (s *PostgresStore) CreateFile(ctx context.Context, entryID, name string, size int64) (File, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `
INSERT INTO file (id, entry_id, name, size)
VALUES ($1, $2, $3, $4)
RETURNING id, entry_id, name, size;`

	var file File
	err := s.pool.QueryRow(ctx, query, uuid.NewString(), entryID, name, size).
		Scan(&file.ID, &file.EntryID, &file.Name, &file.Size)
	if err != nil {
		return File{}, translatePgError("create file", err)
	}
	return file, nil
}

// GetEntry returns the entry unless it is missing or already expired.
func (s *PostgresStore) GetEntry(ctx context.Context, id string) (Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `
SELECT id, length, upload_date, delete_date
FROM entry
WHERE id = $1 AND delete_date >= $2;`

	var entry Entry
	err := s.pool.QueryRow(ctx, query, id, normalize(s.now())).
		Scan(&entry.ID, &entry.Length, &entry.UploadDate, &entry.DeleteDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrEntryNotFound
		}
		return Entry{}, fmt.Errorf("get entry: %w", err)
	}
	entry.UploadDate = entry.UploadDate.UTC()
	entry.DeleteDate = entry.DeleteDate.UTC()
	return entry, nil
}

// ListFileIDs returns the entry's file ids in insertion order.
func (s *PostgresStore) ListFileIDs(ctx context.Context, entryID string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	ids, err := s.queryIDs(ctx, `SELECT id FROM file WHERE entry_id = $1 ORDER BY seq;`, entryID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	if len(ids) == 0 {
		return nil, ErrEntryNotFound
	}
	return ids, nil
}

// GetFile fetches a single file row.
func (s *PostgresStore) GetFile(ctx context.Context, id string) (File, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	var file File
	err := s.pool.QueryRow(ctx, `SELECT id, entry_id, name, size FROM file WHERE id = $1;`, id).
		Scan(&file.ID, &file.EntryID, &file.Name, &file.Size)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return File{}, ErrFileNotFound
		}
		return File{}, fmt.Errorf("get file: %w", err)
	}
	return file, nil
}

// DeleteFile removes a file row.
func (s *PostgresStore) DeleteFile(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `DELETE FROM file WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFileNotFound
	}
	return nil
}

// ListExpiredEntryIDs returns entries whose delete date is before asOf.
func (s *PostgresStore) ListExpiredEntryIDs(ctx context.Context, asOf time.Time) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	ids, err := s.queryIDs(ctx, `SELECT id FROM entry WHERE delete_date < $1 ORDER BY delete_date;`, asOf.UTC())
	if err != nil {
		return nil, fmt.Errorf("list expired entries: %w", err)
	}
	return ids, nil
}

// DeleteEntry removes an entry row. Its files must already be gone.
func (s *PostgresStore) DeleteEntry(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `DELETE FROM entry WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// Ping checks the pool.
func (s *PostgresStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()
	return s.pool.Ping(ctx)
}

// Close releases all pooled connections.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func translatePgError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgForeignKeyViolation:
			return ErrEntryNotFound
		case pgUniqueViolation:
			return ErrConflict
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
