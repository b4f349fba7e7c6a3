package upload

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/abduss/sharefiles/internal/metadata"
	"github.com/abduss/sharefiles/internal/metrics"
	"go.uber.org/zap"
)

// DefaultMaxRetention bounds how far in the future a delete date may be.
const DefaultMaxRetention = 14 * 24 * time.Hour

type metadataStore interface {
	CreateEntry(ctx context.Context, length int, deleteDate time.Time) (metadata.Entry, error)
	CreateFile(ctx context.Context, entryID, name string, size int64) (metadata.File, error)
	GetEntry(ctx context.Context, id string) (metadata.Entry, error)
	GetFile(ctx context.Context, id string) (metadata.File, error)
}

type blobStore interface {
	Append(ctx context.Context, entryID, fileID string, data []byte) error
}

// Service handles entry declaration and chunk ingestion. It keeps no state
// between requests beyond the metadata and blob stores.
type Service struct {
	meta         metadataStore
	blobs        blobStore
	logger       *zap.Logger
	now          func() time.Time
	maxRetention time.Duration
}

// NewService constructs an upload service.
func NewService(meta metadataStore, blobs blobStore, logger *zap.Logger, maxRetention time.Duration) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetention <= 0 {
		maxRetention = DefaultMaxRetention
	}
	return &Service{
		meta:         meta,
		blobs:        blobs,
		logger:       logger,
		now:          time.Now,
		maxRetention: maxRetention,
	}
}

// ParseDeleteDate parses an ISO-8601 timestamp as sent by clients.
func ParseDeleteDate(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidDeleteDate, err)
	}
	return t, nil
}

// CreateEntry declares a batch of length files expiring at deleteDate.
func (s *Service) CreateEntry(ctx context.Context, length int, deleteDate time.Time) (metadata.Entry, error) {
	if length < 0 {
		return metadata.Entry{}, fmt.Errorf("%w: negative length", ErrInvalidEntry)
	}

	now := s.now()
	if deleteDate.Before(now) || deleteDate.After(now.Add(s.maxRetention)) {
		return metadata.Entry{}, ErrInvalidDeleteDate
	}

	entry, err := s.meta.CreateEntry(ctx, length, deleteDate)
	if err != nil {
		return metadata.Entry{}, fmt.Errorf("create entry: %w", err)
	}

	metrics.EntriesCreated.Inc()
	s.logger.Info("entry created",
		zap.String("entry_id", entry.ID),
		zap.Int("length", entry.Length),
		zap.Time("delete_date", entry.DeleteDate),
	)
	return entry, nil
}

// AppendChunk stores one chunk and returns the file id the client must echo
// on the following chunks. A chunk without FileID starts a new file.
func (s *Service) AppendChunk(ctx context.Context, chunk Chunk) (string, error) {
	if strings.TrimSpace(chunk.EntryID) == "" || strings.TrimSpace(chunk.Name) == "" || chunk.Size < 0 || chunk.Index < 0 {
		return "", ErrInvalidChunk
	}

	if _, err := s.meta.GetEntry(ctx, chunk.EntryID); err != nil {
		if errors.Is(err, metadata.ErrEntryNotFound) {
			return "", ErrEntryNotFound
		}
		return "", fmt.Errorf("get entry: %w", err)
	}

	data, err := base64.StdEncoding.DecodeString(chunk.Payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidChunk, err)
	}

	fileID, err := s.resolveFile(ctx, chunk)
	if err != nil {
		return "", err
	}

	if err := s.blobs.Append(ctx, chunk.EntryID, fileID, data); err != nil {
		return "", fmt.Errorf("append chunk %d of %s: %w", chunk.Index, fileID, err)
	}

	metrics.ChunksReceived.Inc()
	metrics.ChunkBytes.Add(float64(len(data)))
	s.logger.Debug("chunk appended",
		zap.String("entry_id", chunk.EntryID),
		zap.String("file_id", fileID),
		zap.Int("chunk_ind", chunk.Index),
		zap.Int("bytes", len(data)),
	)
	return fileID, nil
}

func (s *Service) resolveFile(ctx context.Context, chunk Chunk) (string, error) {
	if chunk.FileID == "" {
		file, err := s.meta.CreateFile(ctx, chunk.EntryID, chunk.Name, chunk.Size)
		if err != nil {
			if errors.Is(err, metadata.ErrEntryNotFound) {
				return "", ErrEntryNotFound
			}
			return "", fmt.Errorf("create file: %w", err)
		}
		return file.ID, nil
	}

	file, err := s.meta.GetFile(ctx, chunk.FileID)
	if err != nil {
		if errors.Is(err, metadata.ErrFileNotFound) {
			return "", ErrFileNotFound
		}
		return "", fmt.Errorf("get file: %w", err)
	}
	if file.EntryID != chunk.EntryID {
		return "", ErrFileNotFound
	}
	return file.ID, nil
}
