package http

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatdispatch/internal/config"
	"github.com/vovakirdan/chatdispatch/internal/metrics"
	"github.com/vovakirdan/chatdispatch/internal/utils"
)

// multipartOverhead leaves room for boundaries and headers around the file part.
const multipartOverhead = 1 << 20

// UploadHandlers stores files shared through fileMessage.
type UploadHandlers struct {
	cfg config.UploadConfig
	log *zerolog.Logger
}

// NewUploadHandlers creates upload handlers writing under cfg.Dir.
func NewUploadHandlers(cfg config.UploadConfig, logger *zerolog.Logger) *UploadHandlers {
	return &UploadHandlers{cfg: cfg, log: logger}
}

// UploadResponse describes a stored file. URL, OriginalName and FileSize are
// what a client passes on to fileMessage.
type UploadResponse struct {
	URL          string `json:"url"`
	OriginalName string `json:"originalName"`
	FileSize     int64  `json:"fileSize"`
	MimeType     string `json:"mimeType"`
}

// Upload handles a single-file multipart upload.
// POST /upload
func (h *UploadHandlers) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.MaxBytes+multipartOverhead)

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "File too large"})
			return
		}
		h.log.Debug().Err(err).Msg("upload without file")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "No file uploaded"})
		return
	}
	if header.Size > h.cfg.MaxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "File too large"})
		return
	}

	src, err := header.Open()
	if err != nil {
		h.log.Error().Err(err).Msg("open uploaded file")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	defer src.Close()

	mtype, err := mimetype.DetectReader(src)
	if err != nil {
		h.log.Error().Err(err).Msg("detect upload mime type")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		h.log.Error().Err(err).Msg("rewind uploaded file")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	name := utils.NewID() + strings.ToLower(filepath.Ext(header.Filename))
	written, err := h.store(src, name)
	if err != nil {
		h.log.Error().Err(err).Str("file", name).Msg("store upload")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	metrics.UploadBytes.Add(float64(written))

	h.log.Info().
		Str("file", name).
		Str("original_name", header.Filename).
		Int64("size", written).
		Str("mime", mtype.String()).
		Str("username", c.GetString(ContextKeyUsername)).
		Msg("file uploaded")

	c.JSON(http.StatusOK, UploadResponse{
		URL:          strings.TrimRight(h.cfg.BaseURL, "/") + "/" + name,
		OriginalName: header.Filename,
		FileSize:     written,
		MimeType:     mtype.String(),
	})
}

func (h *UploadHandlers) store(src io.Reader, name string) (int64, error) {
	if err := os.MkdirAll(h.cfg.Dir, 0o755); err != nil {
		return 0, err
	}
	dst, err := os.Create(filepath.Join(h.cfg.Dir, name))
	if err != nil {
		return 0, err
	}
	written, err := io.Copy(dst, src)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	return written, err
}
