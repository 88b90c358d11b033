package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/example/kyc-voice/internal/logging"
	"github.com/example/kyc-voice/internal/usecase"
)

type stepRequest struct {
	SessionID    string `json:"session_id"`
	AadhaarImage string `json:"aadhaar_image"`
	PANImage     string `json:"pan_image"`
	FaceImage    string `json:"face_image"`
}

type stepFunc func(ctx context.Context, sessionID string, image []byte) (*usecase.StepResult, error)

func (h *handler) processAadhaar(c *gin.Context) {
	h.runStep(c, "aadhaar_image", func(r stepRequest) string { return r.AadhaarImage }, h.svc.ProcessAadhaar)
}

func (h *handler) processPAN(c *gin.Context) {
	h.runStep(c, "pan_image", func(r stepRequest) string { return r.PANImage }, h.svc.ProcessPAN)
}

func (h *handler) processFace(c *gin.Context) {
	h.runStep(c, "face_image", func(r stepRequest) string { return r.FaceImage }, h.svc.ProcessFace)
}

// stepBodyLimit is the JSON body cap for a step: the base64 form of a
// maxUpload-sized image plus room for the other fields.
func (h *handler) stepBodyLimit() int64 {
	return h.maxUpload/3*4 + 8<<10
}

func (h *handler) runStep(c *gin.Context, field string, pick func(stepRequest) string, run stepFunc) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.stepBodyLimit())

	var req stepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if isTooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body exceeds size limit"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	encoded := pick(req)
	if encoded == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": field + " is required"})
		return
	}
	image, err := decodeDataURL(encoded)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": field + " is not valid base64"})
		return
	}

	result, err := run(c.Request.Context(), req.SessionID, image)
	if err != nil {
		writeError(c, req.SessionID, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *handler) getDetails(c *gin.Context) {
	details, err := h.svc.GetDetails(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		_ = c.Error(err)
		c.JSON(statusFor(err), gin.H{"details": gin.H{}, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"details": details})
}

func (h *handler) confirm(c *gin.Context) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	if err := h.svc.Confirm(c.Request.Context(), req.SessionID); err != nil {
		writeError(c, req.SessionID, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *handler) stats(c *gin.Context) {
	summary, err := h.svc.Summary(c.Request.Context())
	if err != nil {
		writeError(c, "", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// decodeDataURL accepts both data:image/png;base64,... URLs and bare base64.
func decodeDataURL(value string) ([]byte, error) {
	if idx := strings.LastIndex(value, ","); idx >= 0 {
		value = value[idx+1:]
	}
	value = strings.TrimSpace(value)
	data, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return base64.RawStdEncoding.DecodeString(strings.TrimRight(value, "="))
	}
	return data, nil
}

func statusFor(err error) int {
	var (
		validationErr   *usecase.ValidationError
		vendorErr       *usecase.VendorError
		preconditionErr *usecase.PreconditionFailedError
		unavailableErr  *usecase.ProviderUnavailableError
	)
	switch {
	case errors.As(err, &validationErr), errors.As(err, &vendorErr), errors.As(err, &preconditionErr):
		return http.StatusBadRequest
	case errors.Is(err, usecase.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, usecase.ErrStepInProgress):
		return http.StatusConflict
	case errors.As(err, &unavailableErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, sessionID string, err error) {
	_ = c.Error(err)
	status := statusFor(err)

	var (
		vendorErr       *usecase.VendorError
		preconditionErr *usecase.PreconditionFailedError
	)
	switch {
	case errors.As(err, &vendorErr):
		c.JSON(status, gin.H{"session_id": vendorErr.SessionID, "status": vendorErr.Status, "error": vendorErr.Message})
	case errors.As(err, &preconditionErr):
		c.JSON(status, gin.H{"session_id": preconditionErr.SessionID, "status": preconditionErr.Status, "error": preconditionErr.Message})
	default:
		if id := sessionOf(err); id != "" {
			sessionID = id
		}
		if sessionID == "" {
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(status, gin.H{"session_id": sessionID, "error": err.Error()})
	}
}

// sessionOf returns the session a failed step ran under. Aadhaar assigns a
// new id when the request carried none.
func sessionOf(err error) string {
	var (
		storageErr     *usecase.StorageError
		unavailableErr *usecase.ProviderUnavailableError
		opErr          *logging.OperationError
	)
	switch {
	case errors.As(err, &storageErr):
		return storageErr.SessionID
	case errors.As(err, &unavailableErr):
		return unavailableErr.SessionID
	case errors.As(err, &opErr):
		return opErr.SessionID
	}
	return ""
}
