package client

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/abduss/sharefiles/internal/blob"
	"github.com/abduss/sharefiles/internal/config"
	"github.com/abduss/sharefiles/internal/download"
	"github.com/abduss/sharefiles/internal/metadata"
	"github.com/abduss/sharefiles/internal/server"
	"github.com/abduss/sharefiles/internal/storage"
	"github.com/abduss/sharefiles/internal/sweeper"
	"github.com/abduss/sharefiles/internal/upload"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type harness struct {
	meta    *metadata.SQLiteStore
	blobs   *blob.FSStore
	srv     *httptest.Server
	uploads atomic.Int32
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	log := zaptest.NewLogger(t)

	db, err := storage.NewSQLite(context.Background(), filepath.Join(dir, "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	blobs, err := blob.NewFSStore(filepath.Join(dir, "blobs"))
	require.NoError(t, err)

	h := &harness{meta: metadata.NewSQLiteStore(db), blobs: blobs}
	locked := blob.WithLocker(blobs, blob.NewKeyedMutex())

	var cfg config.Config
	router := server.NewRouter(server.Dependencies{
		Config:   cfg,
		Logger:   log,
		Metadata: h.meta,
		Blobs:    blobs,
		Upload:   upload.NewService(h.meta, locked, log, 0),
		Download: download.NewService(h.meta, blobs, log, download.Options{}),
	})

	h.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/upload" {
			h.uploads.Add(1)
		}
		router.ServeHTTP(w, r)
	}))
	t.Cleanup(h.srv.Close)
	return h
}

func unzip(t *testing.T, data []byte) map[string][]byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	out := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		body, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		out[f.Name] = body
	}
	return out
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

func TestUploadFileChunkBoundaries(t *testing.T) {
	const chunk = 4
	cases := []struct {
		size   int
		chunks int32
	}{
		{0, 1},
		{1, 1},
		{chunk - 1, 1},
		{chunk, 1},
		{chunk + 1, 2},
		{3*chunk + 2, 4},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprintf("size_%d", tc.size), func(t *testing.T) {
			h := newHarness(t)
			c := New(h.srv.URL, WithChunkSize(chunk))
			ctx := context.Background()

			entryID, err := c.CreateEntry(ctx, 1, time.Now().Add(time.Hour))
			require.NoError(t, err)
			h.uploads.Store(0)

			data := randomBytes(t, tc.size)
			var reported int64
			fileID, err := c.UploadFile(ctx, entryID, "f.bin", int64(tc.size), bytes.NewReader(data),
				func(_ string, sent, total int64) {
					reported = sent
					assert.Equal(t, int64(tc.size), total)
				})
			require.NoError(t, err)
			assert.NotEmpty(t, fileID)
			assert.Equal(t, tc.chunks, h.uploads.Load())
			assert.Equal(t, int64(tc.size), reported)

			rc, err := h.blobs.Open(ctx, entryID, fileID)
			require.NoError(t, err)
			stored, err := io.ReadAll(rc)
			rc.Close()
			require.NoError(t, err)
			assert.Equal(t, data, stored)
		})
	}
}

func TestUploadAndDownloadRoundTrip(t *testing.T) {
	h := newHarness(t)
	c := New(h.srv.URL, WithChunkSize(3))
	ctx := context.Background()

	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(a, []byte("hi"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("bye, world"), 0o644))

	entryID, err := c.Upload(ctx, time.Now().Add(time.Hour), []string{a, b}, nil)
	require.NoError(t, err)

	info, err := c.Entry(ctx, entryID)
	require.NoError(t, err)
	assert.Equal(t, 2, info.Entry.Length)
	require.Len(t, info.Files, 2)
	assert.Equal(t, "a.txt", info.Files[0].Name)
	assert.Equal(t, int64(10), info.Files[1].Size)

	for attempt := 0; attempt < 2; attempt++ {
		var buf bytes.Buffer
		n, err := c.Download(ctx, entryID, &buf)
		require.NoError(t, err)
		assert.Equal(t, int64(buf.Len()), n)
		assert.Equal(t, map[string][]byte{"a.txt": []byte("hi"), "b.txt": []byte("bye, world")}, unzip(t, buf.Bytes()))
	}
}

func TestConcurrentUploadsIntoOneEntry(t *testing.T) {
	h := newHarness(t)
	c := New(h.srv.URL, WithChunkSize(7))
	ctx := context.Background()

	entryID, err := c.CreateEntry(ctx, 2, time.Now().Add(time.Hour))
	require.NoError(t, err)

	files := map[string][]byte{
		"one.bin": randomBytes(t, 500),
		"two.bin": randomBytes(t, 333),
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(files))
	for name, data := range files {
		name, data := name, data
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.UploadFile(ctx, entryID, name, int64(len(data)), bytes.NewReader(data), nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var buf bytes.Buffer
	_, err = c.Download(ctx, entryID, &buf)
	require.NoError(t, err)
	assert.Equal(t, files, unzip(t, buf.Bytes()))
}

func TestUploadRejectsUnknownEntry(t *testing.T) {
	h := newHarness(t)
	c := New(h.srv.URL)
	ctx := context.Background()

	_, err := c.UploadFile(ctx, "does-not-exist", "a.txt", 2, bytes.NewReader([]byte("hi")), nil)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Code)

	_, err = h.meta.ListFileIDs(ctx, "does-not-exist")
	assert.ErrorIs(t, err, metadata.ErrEntryNotFound, "no file row was created")
}

func TestCreateEntryRejectsDeleteDateOutsideWindow(t *testing.T) {
	h := newHarness(t)
	c := New(h.srv.URL)
	ctx := context.Background()

	for _, when := range []time.Time{time.Now().Add(-time.Hour), time.Now().Add(30 * 24 * time.Hour)} {
		_, err := c.CreateEntry(ctx, 1, when)
		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusBadRequest, se.Code)
	}
}

func TestUploadRequiresFiles(t *testing.T) {
	c := New("http://127.0.0.1:0")
	_, err := c.Upload(context.Background(), time.Now().Add(time.Hour), nil, nil)
	assert.Error(t, err)
}

func TestExpiredEntryIsNotDownloadable(t *testing.T) {
	h := newHarness(t)
	c := New(h.srv.URL)
	ctx := context.Background()

	entry, err := h.meta.CreateEntry(ctx, 1, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	file, err := h.meta.CreateFile(ctx, entry.ID, "a.txt", 2)
	require.NoError(t, err)
	require.NoError(t, h.blobs.Append(ctx, entry.ID, file.ID, []byte("hi")))

	_, err = c.Download(ctx, entry.ID, io.Discard)
	assert.ErrorIs(t, err, ErrEntryNotFound)
	_, err = c.Entry(ctx, entry.ID)
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestSweptEntryDisappears(t *testing.T) {
	h := newHarness(t)
	c := New(h.srv.URL)
	ctx := context.Background()

	entryID, err := c.CreateEntry(ctx, 1, time.Now().Add(time.Hour))
	require.NoError(t, err)
	fileID, err := c.UploadFile(ctx, entryID, "a.txt", 2, bytes.NewReader([]byte("hi")), nil)
	require.NoError(t, err)

	s := sweeper.New(h.meta, h.blobs, nil, sweeper.Config{})
	assert.Equal(t, sweeper.Result{}, s.Sweep(ctx), "live entries are left alone")

	expired, err := h.meta.CreateEntry(ctx, 1, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	gone, err := h.meta.CreateFile(ctx, expired.ID, "old.txt", 3)
	require.NoError(t, err)
	require.NoError(t, h.blobs.Append(ctx, expired.ID, gone.ID, []byte("old")))

	res := s.Sweep(ctx)
	assert.Equal(t, sweeper.Result{Entries: 1, Files: 1}, res)

	_, err = h.blobs.Open(ctx, expired.ID, gone.ID)
	assert.ErrorIs(t, err, blob.ErrBlobNotFound)
	rc, err := h.blobs.Open(ctx, entryID, fileID)
	require.NoError(t, err)
	rc.Close()
}

func TestShareURLEscapesEntryID(t *testing.T) {
	c := New("http://example.test/")
	assert.Equal(t, "http://example.test/download?entryId=a+b%26c", c.ShareURL("a b&c"))
}

func TestStatusErrorMessage(t *testing.T) {
	err := error(&StatusError{Op: "upload chunk", Code: 413, Body: "Request too large"})
	assert.Equal(t, "upload chunk: server returned 413: Request too large", err.Error())

	var se *StatusError
	assert.True(t, errors.As(fmt.Errorf("wrap: %w", err), &se))
}
