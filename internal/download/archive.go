package download

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/abduss/sharefiles/internal/blob"
	"github.com/abduss/sharefiles/internal/metadata"
	"github.com/klauspost/compress/flate"
)

const (
	maxEntryNameLen   = 240
	maxArchiveNameLen = 120
)

// WriteArchive writes a zip of fileIDs to w, one file at a time. The next
// file is opened only after the previous one was fully copied and closed.
// On error the central directory is never written, so w holds a truncated
// archive.
func (s *Service) WriteArchive(ctx context.Context, entry metadata.Entry, fileIDs []string, w io.Writer) error {
	zw := zip.NewWriter(w)
	method := zip.Deflate
	if s.opts.CompressionLevel == 0 {
		method = zip.Store
	} else {
		level := s.opts.CompressionLevel
		zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
			return flate.NewWriter(out, level)
		})
	}

	names := newNameSet()
	for _, id := range fileIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.addFile(ctx, zw, entry, id, method, names); err != nil {
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}
	return nil
}

func (s *Service) addFile(ctx context.Context, zw *zip.Writer, entry metadata.Entry, fileID string, method uint16, names *nameSet) error {
	file, err := s.meta.GetFile(ctx, fileID)
	if err != nil {
		return fmt.Errorf("get file %s: %w", fileID, err)
	}

	src, err := s.blobs.Open(ctx, entry.ID, fileID)
	if err != nil {
		if errors.Is(err, blob.ErrBlobNotFound) {
			return fmt.Errorf("%w: %s", ErrBlobMissing, fileID)
		}
		return fmt.Errorf("open blob %s: %w", fileID, err)
	}
	defer src.Close()

	dst, err := zw.CreateHeader(&zip.FileHeader{
		Name:     names.claim(sanitizeEntryName(file.Name, fileID)),
		Method:   method,
		Modified: entry.UploadDate,
	})
	if err != nil {
		return fmt.Errorf("add %s to archive: %w", fileID, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("copy %s into archive: %w", fileID, err)
	}
	return nil
}

// sanitizeEntryName keeps client names relative and inside the archive.
func sanitizeEntryName(name, fallback string) string {
	name = strings.ToValidUTF8(name, "")
	name = strings.ReplaceAll(name, "\x00", "")
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Clean("/" + name)
	name = strings.Trim(name, "/")
	if name == "" || name == "." {
		return fallback
	}
	return truncateName(name, maxEntryNameLen)
}

func sanitizeArchiveName(name string) string {
	name = strings.ToValidUTF8(strings.TrimSpace(name), "")
	name = strings.TrimSuffix(name, ".zip")
	name = strings.NewReplacer("\x00", "", "/", "-", "\\", "-", "\"", "").Replace(name)
	name = strings.Trim(name, ". ")
	if name == "" {
		return DefaultArchiveName
	}
	return truncateName(name, maxArchiveNameLen)
}

// truncateName shortens name to at most limit bytes on a rune boundary,
// keeping a short extension intact.
func truncateName(name string, limit int) string {
	if len(name) <= limit {
		return name
	}

	ext := path.Ext(name)
	if len(ext) > limit/4 {
		ext = ""
	}
	base := name[:len(name)-len(ext)]

	cut := limit - len(ext)
	for cut > 0 && !utf8.RuneStart(base[cut]) {
		cut--
	}
	return base[:cut] + ext
}

// nameSet renames duplicates "a.txt" -> "a (1).txt" so extractors keep both.
type nameSet struct {
	seen map[string]struct{}
}

func newNameSet() *nameSet {
	return &nameSet{seen: make(map[string]struct{})}
}

func (n *nameSet) claim(name string) string {
	candidate := name
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		if _, taken := n.seen[candidate]; !taken {
			n.seen[candidate] = struct{}{}
			return candidate
		}
		candidate = base + " (" + strconv.Itoa(i) + ")" + ext
	}
}
