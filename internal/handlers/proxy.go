package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/example/kyc-voice/internal/idfy"
)

func (h *handler) proxyAadhaar(c *gin.Context) {
	h.proxySingle(c, h.proxy.ProxyAadhaar)
}

func (h *handler) proxyPAN(c *gin.Context) {
	h.proxySingle(c, h.proxy.ProxyPAN)
}

func (h *handler) proxyLiveness(c *gin.Context) {
	h.proxySingle(c, h.proxy.ProxyLiveness)
}

func (h *handler) proxyFaceMatch(c *gin.Context) {
	sessionID, image1, image2 := c.PostForm("session_id"), c.PostForm("image1_url"), c.PostForm("image2_url")
	if sessionID == "" || image1 == "" || image2 == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id, image1_url and image2_url are required"})
		return
	}
	status, body, err := h.proxy.ProxyFaceMatch(c.Request.Context(), sessionID, image1, image2)
	writeProxied(c, status, body, err)
}

type singleImageProxy func(ctx context.Context, sessionID, imageURL string) (int, json.RawMessage, error)

func (h *handler) proxySingle(c *gin.Context, submit singleImageProxy) {
	sessionID, imageURL := c.PostForm("session_id"), c.PostForm("image_url")
	if sessionID == "" || imageURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id and image_url are required"})
		return
	}
	status, body, err := submit(c.Request.Context(), sessionID, imageURL)
	writeProxied(c, status, body, err)
}

func writeProxied(c *gin.Context, status int, body json.RawMessage, err error) {
	if err != nil {
		_ = c.Error(err)
		var transportErr *idfy.TransportError
		if errors.As(err, &transportErr) {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(status, "application/json", body)
}
