package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

var (
	documentTypes  = []string{"image/", "application/pdf"}
	recordingTypes = []string{"audio/", "video/"}
)

func (h *handler) uploadImage(c *gin.Context) {
	data, filename, ok := h.readUpload(c, documentTypes)
	if !ok {
		return
	}

	sessionID := c.PostForm("session_id")
	url, err := h.svc.UploadDocument(c.Request.Context(), sessionID, c.PostForm("doc_type"), filename, data)
	if err != nil {
		writeError(c, sessionID, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

func (h *handler) uploadRecording(c *gin.Context) {
	data, filename, ok := h.readUpload(c, recordingTypes)
	if !ok {
		return
	}

	sessionID := c.PostForm("session_id")
	url, err := h.svc.UploadRecording(c.Request.Context(), sessionID, c.PostForm("recording_type"), filename, data)
	if err != nil {
		writeError(c, sessionID, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// readUpload reads the "file" part, enforcing the size cap and the accepted
// media type prefixes. It writes the error response itself.
func (h *handler) readUpload(c *gin.Context, accepted []string) ([]byte, string, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)

	file, err := c.FormFile("file")
	if err != nil {
		if isTooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload exceeds size limit"})
			return nil, "", false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return nil, "", false
	}

	data, err := readFileHeader(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read upload"})
		return nil, "", false
	}

	contentType := file.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	if !hasPrefix(contentType, accepted) {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "unsupported content type " + contentType})
		return nil, "", false
	}
	return data, file.Filename, true
}

func readFileHeader(file *multipart.FileHeader) ([]byte, error) {
	src, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return io.ReadAll(src)
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large")
}

func hasPrefix(contentType string, accepted []string) bool {
	contentType = strings.ToLower(contentType)
	for _, prefix := range accepted {
		if strings.HasPrefix(contentType, prefix) {
			return true
		}
	}
	return false
}
