package upload

import (
	"errors"
	"net/http"

	"github.com/abduss/sharefiles/internal/logger"
	"github.com/abduss/sharefiles/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"
)

const (
	invalidRequestBody = "Invalid request"
	uploadFailedBody   = "Upload failed"
	tooLargeBody       = "Request too large"
)

// DefaultMaxBodyBytes fits a 1 MiB chunk after base64 inflation plus envelope.
const DefaultMaxBodyBytes int64 = 4 << 20

// RegisterRoutes mounts POST /upload. Extra handlers run before the upload
// handler (rate limiting, for instance).
func RegisterRoutes(group *gin.RouterGroup, service *Service, log *zap.Logger, maxBodyBytes int64, before ...gin.HandlerFunc) {
	if log == nil {
		log = zap.NewNop()
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	handler := &httpHandler{service: service, logger: log, maxBodyBytes: maxBodyBytes}
	handlers := append(append([]gin.HandlerFunc{}, before...), handler.upload)
	group.POST("/upload", handlers...)
}

type httpHandler struct {
	service      *Service
	logger       *zap.Logger
	maxBodyBytes int64
}

func (h *httpHandler) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes)

	var entryReq EntryRequest
	entryErr := c.ShouldBindBodyWith(&entryReq, binding.JSON)
	if entryErr == nil {
		h.createEntry(c, entryReq)
		return
	}

	var maxErr *http.MaxBytesError
	if errors.As(entryErr, &maxErr) {
		metrics.UploadFailures.WithLabelValues("too_large").Inc()
		c.String(http.StatusRequestEntityTooLarge, tooLargeBody)
		return
	}

	var chunkReq ChunkRequest
	if err := c.ShouldBindBodyWith(&chunkReq, binding.JSON); err != nil {
		metrics.UploadFailures.WithLabelValues("invalid").Inc()
		logger.WithRequest(h.logger, c).Debug("upload payload matches no shape", zap.Error(err))
		c.String(http.StatusBadRequest, invalidRequestBody)
		return
	}

	h.appendChunk(c, chunkReq)
}

func (h *httpHandler) createEntry(c *gin.Context, req EntryRequest) {
	deleteDate, err := ParseDeleteDate(req.DeleteDate)
	if err != nil {
		h.fail(c, err)
		return
	}

	entry, err := h.service.CreateEntry(c.Request.Context(), *req.Length, deleteDate)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, IDResponse{ID: entry.ID})
}

func (h *httpHandler) appendChunk(c *gin.Context, req ChunkRequest) {
	fileID, err := h.service.AppendChunk(c.Request.Context(), req.toChunk())
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, IDResponse{ID: fileID})
}

func (h *httpHandler) fail(c *gin.Context, err error) {
	log := logger.WithRequest(h.logger, c)

	switch {
	case errors.Is(err, ErrInvalidDeleteDate), errors.Is(err, ErrInvalidEntry), errors.Is(err, ErrInvalidChunk):
		metrics.UploadFailures.WithLabelValues("invalid").Inc()
		log.Info("upload rejected", zap.Error(err))
		c.String(http.StatusBadRequest, invalidRequestBody)
	case errors.Is(err, ErrEntryNotFound), errors.Is(err, ErrFileNotFound):
		metrics.UploadFailures.WithLabelValues("not_found").Inc()
		log.Info("upload rejected", zap.Error(err))
		c.String(http.StatusBadRequest, invalidRequestBody)
	default:
		metrics.UploadFailures.WithLabelValues("storage").Inc()
		log.Error("upload failed", zap.Error(err))
		c.String(http.StatusInternalServerError, uploadFailedBody)
	}
}
