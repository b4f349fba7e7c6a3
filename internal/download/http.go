package download

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/abduss/sharefiles/internal/logger"
	"github.com/abduss/sharefiles/internal/metrics"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RegisterRoutes mounts GET /download and GET /entries/:entryID.
func RegisterRoutes(group *gin.RouterGroup, service *Service, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	handler := &httpHandler{service: service, logger: log}
	group.GET("/download", handler.download)
	group.GET("/entries/:entryID", handler.describe)
}

type httpHandler struct {
	service *Service
	logger  *zap.Logger
}

func (h *httpHandler) download(c *gin.Context) {
	log := logger.WithRequest(h.logger, c)
	ctx := c.Request.Context()

	entry, ids, err := h.service.Resolve(ctx, c.Query("entryId"))
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			metrics.Downloads.WithLabelValues("not_found").Inc()
			c.String(http.StatusBadRequest, "Entry not found")
			return
		}
		metrics.Downloads.WithLabelValues("error").Inc()
		log.Error("resolve entry", zap.Error(err))
		c.String(http.StatusInternalServerError, "Download failed")
		return
	}

	rc := h.service.Stream(ctx, entry, ids)
	defer rc.Close()

	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", h.service.ArchiveFilename()))
	c.Header("Cache-Control", "no-store")

	n, err := io.Copy(c.Writer, rc)
	metrics.ArchiveBytes.Add(float64(n))
	if err == nil {
		metrics.Downloads.WithLabelValues("ok").Inc()
		log.Info("archive streamed",
			zap.String("entry_id", entry.ID),
			zap.Int("files", len(ids)),
			zap.Int64("bytes", n),
		)
		return
	}

	metrics.Downloads.WithLabelValues("aborted").Inc()
	log.Warn("archive stream aborted",
		zap.String("entry_id", entry.ID),
		zap.Int64("bytes", n),
		zap.Error(err),
	)

	if !c.Writer.Written() {
		c.Writer.Header().Del("Content-Disposition")
		c.Writer.Header().Del("Content-Type")
		c.String(http.StatusInternalServerError, "Download failed")
		return
	}
	abortConnection(c)
}

// abortConnection drops the client connection so a streamed body that
// already started is seen as truncated rather than complete.
func abortConnection(c *gin.Context) {
	c.Abort()
	defer func() {
		// gin's Hijack panics when the underlying writer cannot hijack
		_ = recover()
	}()

	c.Writer.Flush()
	conn, _, err := c.Writer.Hijack()
	if err != nil {
		return
	}
	conn.Close()
}

func (h *httpHandler) describe(c *gin.Context) {
	info, err := h.service.Describe(c.Request.Context(), c.Param("entryID"))
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
			return
		}
		logger.WithRequest(h.logger, c).Error("describe entry", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load entry"})
		return
	}

	c.JSON(http.StatusOK, info)
}
