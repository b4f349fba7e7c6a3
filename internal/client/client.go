package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/abduss/sharefiles/internal/download"
)

// DefaultChunkSize is the raw byte size of one uploaded chunk.
const DefaultChunkSize = 1 << 20

const maxErrorBody = 4 << 10

// Client talks to a sharefiles API.
type Client struct {
	baseURL   string
	http      *http.Client
	chunkSize int
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithChunkSize sets the raw chunk size. Non-positive values are ignored.
func WithChunkSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.chunkSize = n
		}
	}
}

// New builds a client for baseURL, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{},
		chunkSize: DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Progress reports bytes sent for the named file.
type Progress func(name string, sent, total int64)

// ShareURL is the link that downloads the entry's archive.
func (c *Client) ShareURL(entryID string) string {
	return c.baseURL + "/download?entryId=" + url.QueryEscape(entryID)
}

// CreateEntry declares a batch of length files.
func (c *Client) CreateEntry(ctx context.Context, length int, deleteDate time.Time) (string, error) {
	return c.postUpload(ctx, "create entry", map[string]any{
		"length":     length,
		"deleteDate": deleteDate.UTC().Format(time.RFC3339Nano),
	})
}

type chunkPayload struct {
	ID       string `json:"id,omitempty"`
	EntryID  string `json:"entryId"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	Chunk    string `json:"chunk"`
	ChunkInd int    `json:"chunkInd"`
}

// UploadFile sends r in strictly sequential chunks and returns the file id.
// An empty file is sent as a single empty chunk.
func (c *Client) UploadFile(ctx context.Context, entryID, name string, size int64, r io.Reader, progress Progress) (string, error) {
	buf := make([]byte, c.chunkSize)
	payload := chunkPayload{EntryID: entryID, Name: name, Size: size}
	var sent int64

	for index := 0; ; index++ {
		n, readErr := io.ReadFull(r, buf)
		last := errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF)
		if readErr != nil && !last {
			return payload.ID, fmt.Errorf("read %s: %w", name, readErr)
		}
		// io.EOF with nothing read ends the file unless it is the very first chunk
		if n == 0 && errors.Is(readErr, io.EOF) && index > 0 {
			return payload.ID, nil
		}

		payload.ChunkInd = index
		payload.Chunk = base64.StdEncoding.EncodeToString(buf[:n])
		id, err := c.postUpload(ctx, "upload chunk", payload)
		if err != nil {
			return payload.ID, err
		}
		payload.ID = id

		sent += int64(n)
		if progress != nil {
			progress(name, sent, size)
		}
		if last {
			return payload.ID, nil
		}
	}
}

// Upload creates an entry holding every file at paths and returns its id.
func (c *Client) Upload(ctx context.Context, deleteDate time.Time, paths []string, progress Progress) (string, error) {
	if len(paths) == 0 {
		return "", errors.New("no files to upload")
	}

	entryID, err := c.CreateEntry(ctx, len(paths), deleteDate)
	if err != nil {
		return "", err
	}

	for _, p := range paths {
		if err := c.uploadPath(ctx, entryID, p, progress); err != nil {
			return entryID, err
		}
	}
	return entryID, nil
}

func (c *Client) uploadPath(ctx context.Context, entryID, path string, progress Progress) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}

	_, err = c.UploadFile(ctx, entryID, filepath.Base(path), info.Size(), f, progress)
	return err
}

// Download streams the entry's zip archive into w.
func (c *Client) Download(ctx context.Context, entryID string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ShareURL(entryID), nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest {
		return 0, ErrEntryNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return 0, statusError("download", resp)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("download interrupted after %d bytes: %w", n, err)
	}
	return n, nil
}

// Entry fetches the entry description and its file list.
func (c *Client) Entry(ctx context.Context, entryID string) (download.EntryInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/entries/"+url.PathEscape(entryID), nil)
	if err != nil {
		return download.EntryInfo{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return download.EntryInfo{}, fmt.Errorf("get entry: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return download.EntryInfo{}, ErrEntryNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return download.EntryInfo{}, statusError("get entry", resp)
	}

	var info download.EntryInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return download.EntryInfo{}, fmt.Errorf("decode entry: %w", err)
	}
	return info, nil
}

func (c *Client) postUpload(ctx context.Context, op string, body any) (string, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("%s: encode: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", statusError(op, resp)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%s: decode: %w", op, err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("%s: empty id in response", op)
	}
	return out.ID, nil
}

func statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Op: op, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}
