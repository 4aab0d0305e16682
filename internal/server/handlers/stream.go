package handlers

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	apperr "github.com/cinedex/cinedex/internal/errors"
)

const streamChunkSize = 1024 * 1024

// mimeTypes maps video extensions to their content type. Unknown extensions
// fall back to video/mp4 so browsers still attempt playback.
var mimeTypes = map[string]string{
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".ogg":  "video/ogg",
	".ogv":  "video/ogg",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".wmv":  "video/x-ms-wmv",
	".flv":  "video/x-flv",
	".mkv":  "video/x-matroska",
	".m4v":  "video/x-m4v",
	".mpg":  "video/mpeg",
	".mpeg": "video/mpeg",
}

func videoMIMEType(path string) string {
	if mt, ok := mimeTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return mt
	}
	return "video/mp4"
}

// byteRange is a validated half-open request span, inclusive on both ends.
type byteRange struct {
	start int64
	end   int64
}

func (r byteRange) length() int64 {
	return r.end - r.start + 1
}

var errInvalidRange = fmt.Errorf("invalid range")

// parseRange parses a Range header against a known file size. It supports
// the bytes=N-, bytes=-N (suffix, last N bytes) and bytes=N-M forms. Any
// range that does not satisfy 0 <= start <= end < size is invalid.
func parseRange(header string, size int64) (byteRange, error) {
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return byteRange{}, errInvalidRange
	}
	startStr, endStr, ok := strings.Cut(strings.TrimSpace(spec), "-")
	if !ok {
		return byteRange{}, errInvalidRange
	}

	if startStr == "" {
		// suffix form: last N bytes
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 {
			return byteRange{}, errInvalidRange
		}
		if n > size {
			n = size
		}
		return byteRange{start: size - n, end: size - 1}, nil
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil {
		return byteRange{}, errInvalidRange
	}
	end := size - 1
	if endStr != "" {
		if end, err = strconv.ParseInt(endStr, 10, 64); err != nil {
			return byteRange{}, errInvalidRange
		}
	}

	if start < 0 || start > end || end >= size {
		return byteRange{}, errInvalidRange
	}
	return byteRange{start: start, end: end}, nil
}

// StreamVideo serves a video file with HTTP range support for seeking.
func (h *Handlers) StreamVideo(c *gin.Context) {
	video, err := h.catalog.GetByID(c.Param("id"))
	if err != nil {
		apperr.HandleError(c, err)
		return
	}

	execPath := h.translator.ToExecutionPath(video.Path)
	file, err := os.Open(execPath)
	if err != nil {
		h.log.Warn("video file missing on disk", "id", video.ID, "path", execPath)
		apperr.HandleError(c, apperr.NewFileMissing(video.Path))
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		apperr.HandleError(c, apperr.NewFileMissing(video.Path))
		return
	}
	size := info.Size()

	c.Header("Accept-Ranges", "bytes")
	c.Header("Content-Type", videoMIMEType(execPath))

	rangeHeader := c.GetHeader("Range")
	if rangeHeader == "" {
		c.Header("Content-Length", strconv.FormatInt(size, 10))
		c.Status(http.StatusOK)
		h.copyChunks(c, file, size)
		return
	}

	span, err := parseRange(rangeHeader, size)
	if err != nil {
		c.Header("Content-Range", fmt.Sprintf("bytes */%d", size))
		c.JSON(http.StatusRequestedRangeNotSatisfiable, gin.H{
			"error": "The requested range is invalid",
		})
		return
	}

	if _, err := file.Seek(span.start, io.SeekStart); err != nil {
		apperr.HandleError(c, apperr.NewFileMissing(video.Path))
		return
	}
	c.Header("Content-Range", fmt.Sprintf("bytes %d-%d/%d", span.start, span.end, size))
	c.Header("Content-Length", strconv.FormatInt(span.length(), 10))
	c.Status(http.StatusPartialContent)
	h.copyChunks(c, file, span.length())
}

// copyChunks streams exactly n bytes in bounded chunks. Client disconnects
// show up as write errors and just end the copy.
func (h *Handlers) copyChunks(c *gin.Context, file *os.File, n int64) {
	buf := make([]byte, streamChunkSize)
	if _, err := io.CopyBuffer(c.Writer, io.LimitReader(file, n), buf); err != nil {
		h.log.Debug("stream interrupted", "error", err)
	}
}

// GetThumbnail serves a JPEG thumbnail, generating one on demand. The
// response carries the video duration so players can render a scrubber
// before the stream opens.
func (h *Handlers) GetThumbnail(c *gin.Context) {
	videoID := c.Query("video_id")
	if videoID == "" {
		apperr.HandleError(c, apperr.NewInputValidation("video_id", "Cannot find thumbnail without video_id"))
		return
	}

	video, err := h.catalog.GetByID(videoID)
	if err != nil {
		apperr.HandleError(c, err)
		return
	}

	execPath := h.translator.ToExecutionPath(video.Path)
	if _, err := os.Stat(execPath); err != nil {
		h.log.Warn("video file missing on disk", "id", video.ID, "path", execPath)
		apperr.HandleError(c, apperr.NewFileMissing(video.Path))
		return
	}

	duration := h.tools.EnsureDuration(c.Request.Context(), h.catalog, video, execPath)

	// thumbnail_id is reserved for an object-storage cache of generated
	// frames; until one exists every request renders a fresh frame.
	frame, err := h.tools.Thumbnail(c.Request.Context(), execPath)
	if err != nil {
		apperr.HandleError(c, err)
		return
	}

	c.Header("X-Video-Duration", strconv.FormatFloat(duration, 'f', -1, 64))
	c.Header("Cache-Control", "public, max-age=3600")
	c.Data(http.StatusOK, "image/jpeg", frame)
}
