package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/minio/minio-go/v7"
)

var _ Store = (*MinIOStore)(nil)

type objectAPI interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error)
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	BucketExists(ctx context.Context, bucketName string) (bool, error)
}

// minioClient narrows *minio.Client to objectAPI.
type minioClient struct {
	client *minio.Client
}

func (c minioClient) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	return c.client.PutObject(ctx, bucketName, objectName, reader, objectSize, opts)
}

func (c minioClient) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	return c.client.GetObject(ctx, bucketName, objectName, opts)
}

func (c minioClient) ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	return c.client.ListObjects(ctx, bucketName, opts)
}

func (c minioClient) RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error {
	return c.client.RemoveObject(ctx, bucketName, objectName, opts)
}

func (c minioClient) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	return c.client.BucketExists(ctx, bucketName)
}

// MinIOStore emulates append on object storage: every Append becomes a new
// part object <entryID>/<fileID>/<index> and Open concatenates the parts.
type MinIOStore struct {
	api    objectAPI
	bucket string
}

// NewMinIOStore builds a store writing into bucket.
func NewMinIOStore(client *minio.Client, bucket string) *MinIOStore {
	return &MinIOStore{api: minioClient{client: client}, bucket: bucket}
}

func blobPrefix(entryID, fileID string) string {
	return entryID + "/" + fileID + "/"
}

func partName(entryID, fileID string, index int) string {
	return fmt.Sprintf("%s%010d", blobPrefix(entryID, fileID), index)
}

// Append stores data as the next part. Callers serialize appends per file.
func (s *MinIOStore) Append(ctx context.Context, entryID, fileID string, data []byte) error {
	if err := validateKey(entryID, fileID); err != nil {
		return err
	}
	parts, err := s.listParts(ctx, blobPrefix(entryID, fileID))
	if err != nil {
		return err
	}

	name := partName(entryID, fileID, len(parts))
	_, err = s.api.PutObject(ctx, s.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return fmt.Errorf("put part %s: %w", name, err)
	}
	return nil
}

func (s *MinIOStore) Open(ctx context.Context, entryID, fileID string) (io.ReadCloser, error) {
	if err := validateKey(entryID, fileID); err != nil {
		return nil, err
	}
	parts, err := s.listParts(ctx, blobPrefix(entryID, fileID))
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return nil, ErrBlobNotFound
	}
	return &partsReader{ctx: ctx, store: s, parts: parts}, nil
}

func (s *MinIOStore) Remove(ctx context.Context, entryID, fileID string) error {
	if err := validateKey(entryID, fileID); err != nil {
		return err
	}
	parts, err := s.listParts(ctx, blobPrefix(entryID, fileID))
	if err != nil {
		return err
	}
	if len(parts) == 0 {
		return ErrBlobNotFound
	}
	return s.removeAll(ctx, parts)
}

func (s *MinIOStore) RemoveEntry(ctx context.Context, entryID string) error {
	if err := validateKey(entryID); err != nil {
		return err
	}
	objects, err := s.listParts(ctx, entryID+"/")
	if err != nil {
		return err
	}
	return s.removeAll(ctx, objects)
}

func (s *MinIOStore) Ping(ctx context.Context) error {
	ok, err := s.api.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !ok {
		return fmt.Errorf("bucket %q does not exist", s.bucket)
	}
	return nil
}

func (s *MinIOStore) listParts(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	for obj := range s.api.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, obj.Err)
		}
		names = append(names, obj.Key)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MinIOStore) removeAll(ctx context.Context, names []string) error {
	var errs []error
	for _, name := range names {
		if err := s.api.RemoveObject(ctx, s.bucket, name, minio.RemoveObjectOptions{}); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// partsReader opens one part at a time so only a single object is in flight.
type partsReader struct {
	ctx   context.Context
	store *MinIOStore
	parts []string
	cur   io.ReadCloser
}

func (r *partsReader) Read(p []byte) (int, error) {
	for {
		if r.cur == nil {
			if len(r.parts) == 0 {
				return 0, io.EOF
			}
			obj, err := r.store.api.GetObject(r.ctx, r.store.bucket, r.parts[0], minio.GetObjectOptions{})
			if err != nil {
				return 0, fmt.Errorf("get part %s: %w", r.parts[0], err)
			}
			r.cur = obj
			r.parts = r.parts[1:]
		}

		n, err := r.cur.Read(p)
		if errors.Is(err, io.EOF) {
			r.cur.Close()
			r.cur = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (r *partsReader) Close() error {
	r.parts = nil
	if r.cur == nil {
		return nil
	}
	err := r.cur.Close()
	r.cur = nil
	return err
}
