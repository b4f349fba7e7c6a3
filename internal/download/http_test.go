package download

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestServer(t *testing.T, svc *Service) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r.Group(""), svc, zaptest.NewLogger(t))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestDownloadHandlerStreamsZip(t *testing.T) {
	fx := newFixture(t)
	svc := NewService(fx.meta, fx.blobs, nil, Options{})
	entry := fx.seed(t, testFile{"a.txt", []byte("hi")}, testFile{"b.txt", []byte("bye")})
	srv := newTestServer(t, svc)

	resp, err := http.Get(srv.URL + "/download?entryId=" + entry.ID)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/zip", resp.Header.Get("Content-Type"))
	assert.Equal(t, `attachment; filename="share-those-files.zip"`, resp.Header.Get("Content-Disposition"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a.txt": "hi", "b.txt": "bye"}, readZip(t, body))
}

func TestDownloadHandlerUnknownEntry(t *testing.T) {
	fx := newFixture(t)
	srv := newTestServer(t, NewService(fx.meta, fx.blobs, nil, Options{}))

	for _, query := range []string{"", "?entryId=", "?entryId=missing"} {
		resp, err := http.Get(srv.URL + "/download" + query)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "query %q", query)
	}
}

func TestDownloadHandlerFailsBeforeFirstByte(t *testing.T) {
	fx := newFixture(t)
	entry := fx.seed(t, testFile{"a.txt", []byte("hi")})
	svc := NewService(fx.meta, failingBlobs{err: errors.New("disk gone")}, nil, Options{})
	srv := newTestServer(t, svc)

	resp, err := http.Get(srv.URL + "/download?entryId=" + entry.ID)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Content-Disposition"))
}

// brokenAfter serves n random bytes and then fails.
type brokenAfter struct {
	n int
}

func (b brokenAfter) Open(context.Context, string, string) (io.ReadCloser, error) {
	return io.NopCloser(io.MultiReader(
		io.LimitReader(rand.Reader, int64(b.n)),
		errReader{errors.New("sector unreadable")},
	)), nil
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

func TestDownloadHandlerTruncatesOnMidStreamFailure(t *testing.T) {
	fx := newFixture(t)
	entry := fx.seed(t, testFile{"big.bin", nil})
	svc := NewService(fx.meta, brokenAfter{n: 256 << 10}, nil, Options{CompressionLevel: 0})
	srv := newTestServer(t, svc)

	resp, err := http.Get(srv.URL + "/download?entryId=" + entry.ID)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, err = io.ReadAll(resp.Body)
	assert.Error(t, err, "client must observe a truncated transfer")
}

func TestDescribeHandler(t *testing.T) {
	fx := newFixture(t)
	entry := fx.seed(t, testFile{"a.txt", []byte("hi")}, testFile{"b.txt", []byte("bye")})
	srv := newTestServer(t, NewService(fx.meta, fx.blobs, nil, Options{}))

	resp, err := http.Get(srv.URL + "/entries/" + entry.ID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var info EntryInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, entry.ID, info.Entry.ID)
	require.Len(t, info.Files, 2)
	assert.Equal(t, "a.txt", info.Files[0].Name)
	assert.Equal(t, int64(3), info.Files[1].Size)

	missing, err := http.Get(srv.URL + "/entries/missing")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(missing.Body).Decode(&body))
	assert.Equal(t, "entry not found", body["error"])
}

func TestDownloadHandlerRecorderWithoutHijack(t *testing.T) {
	fx := newFixture(t)
	entry := fx.seed(t, testFile{"big.bin", nil})
	svc := NewService(fx.meta, brokenAfter{n: 256 << 10}, nil, Options{CompressionLevel: 0})

	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r.Group(""), svc, nil)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/download?entryId="+entry.ID, nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Greater(t, rr.Body.Len(), 0)
}
