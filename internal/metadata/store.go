package metadata

import (
	"context"
	"time"
)

const repoTimeout = 5 * time.Second

// timeLayout is fixed width so lexical order of stored text equals time order.
const timeLayout = "2006-01-02T15:04:05.000Z"

// Store persists entries and files. Implementations must treat expired
// entries as missing on read.
type Store interface {
	CreateEntry(ctx context.Context, length int, deleteDate time.Time) (Entry, error)
	CreateFile(ctx context.Context, entryID, name string, size int64) (File, error)
	GetEntry(ctx context.Context, id string) (Entry, error)
	ListFileIDs(ctx context.Context, entryID string) ([]string, error)
	GetFile(ctx context.Context, id string) (File, error)
	DeleteFile(ctx context.Context, id string) error
	ListExpiredEntryIDs(ctx context.Context, asOf time.Time) ([]string, error)
	DeleteEntry(ctx context.Context, id string) error
	Ping(ctx context.Context) error
	Close() error
}

func normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

func formatTime(t time.Time) string {
	return normalize(t).Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
