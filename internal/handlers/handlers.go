package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/example/kyc-voice/internal/usecase"
)

// MaxUploadSize is the default cap on multipart upload bodies.
const MaxUploadSize = 20 << 20

// KYCService is the orchestration surface the routes call into.
type KYCService interface {
	ProcessAadhaar(ctx context.Context, sessionID string, image []byte) (*usecase.StepResult, error)
	ProcessPAN(ctx context.Context, sessionID string, image []byte) (*usecase.StepResult, error)
	ProcessFace(ctx context.Context, sessionID string, image []byte) (*usecase.StepResult, error)
	GetDetails(ctx context.Context, sessionID string) (map[string]string, error)
	Confirm(ctx context.Context, sessionID string) error
	UploadDocument(ctx context.Context, sessionID, docType, filename string, data []byte) (string, error)
	UploadRecording(ctx context.Context, sessionID, recordingType, filename string, data []byte) (string, error)
	Summary(ctx context.Context) (*usecase.Summary, error)
}

// Synthesizer turns prompt text into base64 encoded audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (string, error)
}

// VendorProxy forwards raw task submissions to the verification provider.
type VendorProxy interface {
	ProxyAadhaar(ctx context.Context, sessionID, imageURL string) (int, json.RawMessage, error)
	ProxyPAN(ctx context.Context, sessionID, imageURL string) (int, json.RawMessage, error)
	ProxyLiveness(ctx context.Context, sessionID, imageURL string) (int, json.RawMessage, error)
	ProxyFaceMatch(ctx context.Context, sessionID, image1URL, image2URL string) (int, json.RawMessage, error)
}

// Options tunes route registration.
type Options struct {
	// MaxUploadSize caps multipart bodies. Zero means MaxUploadSize.
	MaxUploadSize int64
	// OperatorGuard protects the confirmation and stats routes. Nil means open.
	OperatorGuard gin.HandlerFunc
	// Metrics serves the Prometheus exposition on /metrics when set.
	Metrics http.Handler
}

type handler struct {
	svc       KYCService
	tts       Synthesizer
	proxy     VendorProxy
	maxUpload int64
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, svc KYCService, tts Synthesizer, proxy VendorProxy, opts Options) {
	h := &handler{svc: svc, tts: tts, proxy: proxy, maxUpload: opts.MaxUploadSize}
	if h.maxUpload <= 0 {
		h.maxUpload = MaxUploadSize
	}
	guard := opts.OperatorGuard
	if guard == nil {
		guard = func(c *gin.Context) { c.Next() }
	}

	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization"},
	}))

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "KYC Voice Backend Running"})
	})
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	kyc := router.Group("/kyc")
	kyc.POST("/process-aadhaar", h.processAadhaar)
	kyc.POST("/process-pan", h.processPAN)
	kyc.POST("/process-face", h.processFace)
	kyc.GET("/get-details/:session_id", h.getDetails)
	kyc.POST("/update", guard, h.confirm)
	kyc.GET("/stats", guard, h.stats)

	upload := router.Group("/upload")
	upload.POST("/image", h.uploadImage)
	upload.POST("/recording", h.uploadRecording)

	router.POST("/cartesia/tts", h.synthesize)

	idfyGroup := router.Group("/idfy")
	idfyGroup.POST("/aadhaar", h.proxyAadhaar)
	idfyGroup.POST("/pan", h.proxyPAN)
	idfyGroup.POST("/liveness", h.proxyLiveness)
	idfyGroup.POST("/face_match", h.proxyFaceMatch)
}
