package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nhdinh03/Download-Video/api/middleware"
	"github.com/nhdinh03/Download-Video/internal/domain"
)

// VideoService is the orchestration surface the video handler drives
type VideoService interface {
	NewRequest(platform, rawURL string) (*domain.DownloadRequest, error)
	CheckTools(ctx context.Context, req *domain.DownloadRequest, download bool) error
	StartStream(ctx context.Context, req *domain.DownloadRequest, sink domain.EventSink) error
	Preview(ctx context.Context, req *domain.DownloadRequest) (*domain.PreviewResult, error)
}

// FileStore hands out downloaded files exactly once
type FileStore interface {
	Claim(name string) (io.ReadCloser, os.FileInfo, func(completed bool), error)
}

// VideoHandler handles preview, streaming download and file retrieval requests
type VideoHandler struct {
	service  VideoService
	files    FileStore
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewVideoHandler creates a new video handler
func NewVideoHandler(service VideoService, files FileStore, corsOrigins []string, logger *zap.Logger) *VideoHandler {
	return &VideoHandler{
		service: service,
		files:   files,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return middleware.OriginAllowed(corsOrigins, r.Header.Get("Origin"))
			},
		},
		logger: logger,
	}
}

// PreviewRequest is the body of a preview request
type PreviewRequest struct {
	URL string `json:"url" binding:"required"`
}

// PreviewFailure is returned when the extractor ran but could not resolve the video
type PreviewFailure struct {
	Error        string `json:"error"`
	Code         string `json:"code"`
	Title        string `json:"title"`
	ThumbnailURL string `json:"thumbnailUrl"`
}

// Preview handles POST /api/:platform/preview
func (h *VideoHandler) Preview(c *gin.Context) {
	var body PreviewRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, domain.InvalidInput(domain.MessageInvalidURL))
		return
	}

	req, err := h.service.NewRequest(c.Param("platform"), body.URL)
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.service.Preview(c.Request.Context(), req)
	if err != nil {
		if result != nil && domain.KindOf(err) == domain.KindProcessFailure {
			c.JSON(http.StatusBadGateway, PreviewFailure{
				Error:        domain.MessageOf(err),
				Code:         string(domain.KindProcessFailure),
				Title:        result.Title,
				ThumbnailURL: result.ThumbnailURL,
			})
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Stream handles GET /api/:platform/download/stream
func (h *VideoHandler) Stream(c *gin.Context) {
	req, err := h.service.NewRequest(c.Param("platform"), c.Query("url"))
	if err != nil {
		respondError(c, err)
		return
	}

	sink := NewSSESink(c.Writer)
	if err := h.service.StartStream(c.Request.Context(), req, sink); err != nil {
		respondError(c, err)
		return
	}

	select {
	case <-sink.Done():
	case <-c.Request.Context().Done():
		// The download keeps running; its file stays available for retrieval
		sink.Close()
		h.logger.Info("Stream client disconnected", zap.String("request_id", req.ID))
	}
}

// StreamWS handles GET /api/:platform/download/ws
func (h *VideoHandler) StreamWS(c *gin.Context) {
	req, err := h.service.NewRequest(c.Param("platform"), c.Query("url"))
	if err != nil {
		respondError(c, err)
		return
	}
	// Check tools before upgrading so failures are still plain HTTP errors
	if err := h.service.CheckTools(c.Request.Context(), req, true); err != nil {
		respondError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("Failed to upgrade WebSocket", zap.String("request_id", req.ID), zap.Error(err))
		return
	}
	sink := NewWSSink(conn)
	defer sink.Close()

	if err := h.service.StartStream(context.Background(), req, sink); err != nil {
		sink.Emit(domain.Failure(domain.MessageOf(err)))
		return
	}

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sink.Done():
			return
		case <-sink.Gone():
			h.logger.Info("WebSocket client disconnected", zap.String("request_id", req.ID))
			return
		case <-ticker.C:
			if err := sink.Ping(); err != nil {
				return
			}
		}
	}
}

// File handles GET /api/:platform/download?filename= and GET /files/:filename.
// The file is deleted once it has been sent in full; an interrupted transfer leaves it for the reclaimer.
func (h *VideoHandler) File(c *gin.Context) {
	name := c.Param("filename")
	if name == "" {
		name = c.Query("filename")
	}
	if err := domain.ValidateFilename(name); err != nil {
		respondError(c, err)
		return
	}

	reader, info, release, err := h.files.Claim(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: domain.MessageFileNotFound, Code: "not_found"})
			return
		}
		h.logger.Error("Failed to open file", zap.String("file", name), zap.Error(err))
		respondError(c, err)
		return
	}
	completed := false
	defer func() { release(completed) }()

	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	c.DataFromReader(http.StatusOK, info.Size(), contentType, reader, map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="%s"`, name),
	})

	written := int64(c.Writer.Size())
	if written < 0 {
		written = 0
	}
	if completed = written == info.Size(); !completed {
		h.logger.Warn("File transfer interrupted", zap.String("file", name),
			zap.Int64("written", written), zap.Int64("size", info.Size()))
		return
	}
	h.logger.Info("File served", zap.String("file", name), zap.Int64("size", info.Size()))
}
