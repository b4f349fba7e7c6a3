package download

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/abduss/sharefiles/internal/metadata"
	"go.uber.org/zap"
)

// DefaultArchiveName names the zip when no override is configured.
const DefaultArchiveName = "share-those-files"

type metadataStore interface {
	GetEntry(ctx context.Context, id string) (metadata.Entry, error)
	ListFileIDs(ctx context.Context, entryID string) ([]string, error)
	GetFile(ctx context.Context, id string) (metadata.File, error)
}

type blobStore interface {
	Open(ctx context.Context, entryID, fileID string) (io.ReadCloser, error)
}

// Service resolves entries and assembles their files into a zip stream.
type Service struct {
	meta   metadataStore
	blobs  blobStore
	logger *zap.Logger
	opts   Options
}

// NewService constructs a download service.
func NewService(meta metadataStore, blobs blobStore, logger *zap.Logger, opts Options) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.ArchiveName = sanitizeArchiveName(opts.ArchiveName)
	if opts.CompressionLevel < -1 || opts.CompressionLevel > 9 {
		opts.CompressionLevel = -1
	}
	return &Service{meta: meta, blobs: blobs, logger: logger, opts: opts}
}

// ArchiveFilename is the name sent in Content-Disposition.
func (s *Service) ArchiveFilename() string {
	return s.opts.ArchiveName + ".zip"
}

// Resolve returns a live entry and its file ids in upload order. It fails
// with ErrEntryNotFound for unknown, expired or empty entries.
func (s *Service) Resolve(ctx context.Context, entryID string) (metadata.Entry, []string, error) {
	if entryID == "" {
		return metadata.Entry{}, nil, ErrEntryNotFound
	}

	entry, err := s.meta.GetEntry(ctx, entryID)
	if err != nil {
		return metadata.Entry{}, nil, translate("get entry", err)
	}
	ids, err := s.meta.ListFileIDs(ctx, entryID)
	if err != nil {
		return metadata.Entry{}, nil, translate("list files", err)
	}
	return entry, ids, nil
}

// Describe returns the entry together with its file rows.
func (s *Service) Describe(ctx context.Context, entryID string) (EntryInfo, error) {
	entry, ids, err := s.Resolve(ctx, entryID)
	if err != nil {
		return EntryInfo{}, err
	}

	files := make([]metadata.File, 0, len(ids))
	for _, id := range ids {
		file, err := s.meta.GetFile(ctx, id)
		if err != nil {
			return EntryInfo{}, fmt.Errorf("get file %s: %w", id, err)
		}
		files = append(files, file)
	}
	return EntryInfo{Entry: entry, Files: files}, nil
}

// Stream runs WriteArchive in its own goroutine and returns the read side of
// an unbuffered pipe. The producer advances only as fast as the caller reads.
// Closing the reader stops the producer at its next write.
func (s *Service) Stream(ctx context.Context, entry metadata.Entry, fileIDs []string) io.ReadCloser {
	pr, pw := io.Pipe()

	go func() {
		err := s.WriteArchive(ctx, entry, fileIDs, pw)
		if err != nil {
			s.logger.Warn("archive aborted",
				zap.String("entry_id", entry.ID),
				zap.Error(err),
			)
		}
		pw.CloseWithError(err)
	}()

	return pr
}

func translate(op string, err error) error {
	if errors.Is(err, metadata.ErrEntryNotFound) {
		return ErrEntryNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
