package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/example/kyc-voice/internal/tts"
)

func (h *handler) synthesize(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"audio_b64": nil, "error": "invalid JSON body"})
		return
	}

	audio, err := h.tts.Synthesize(c.Request.Context(), req.Text)
	if err != nil {
		_ = c.Error(err)
		var vendorErr *tts.VendorError
		switch {
		case errors.Is(err, tts.ErrEmptyText):
			c.JSON(http.StatusBadRequest, gin.H{"audio_b64": nil, "error": err.Error()})
		case errors.Is(err, tts.ErrCreditsExhausted):
			c.JSON(http.StatusPaymentRequired, gin.H{"audio_b64": nil, "error": err.Error()})
		case errors.As(err, &vendorErr):
			c.JSON(http.StatusInternalServerError, gin.H{"audio_b64": nil, "error": vendorErr.Message, "vendor_status": vendorErr.StatusCode})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"audio_b64": nil, "error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"audio_b64": audio})
}
