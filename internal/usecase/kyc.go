package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/kyc-voice/internal/auth"
	"github.com/example/kyc-voice/internal/idfy"
	"github.com/example/kyc-voice/internal/imageprocessor"
	"github.com/example/kyc-voice/internal/logging"
	"github.com/example/kyc-voice/internal/metrics"
	"github.com/example/kyc-voice/internal/repository"
	"github.com/example/kyc-voice/internal/sessionlock"
)

// Step statuses returned to the client.
const (
	StatusAadhaarProcessed = "aadhaar_processed"
	StatusPANProcessed     = "pan_processed"
	StatusFaceProcessed    = "face_processed"
)

const recordingFullProcess = "full_process"

// Repository defines the persistence operations needed by the use case.
type Repository interface {
	CreateSession(ctx context.Context, sessionID, status string) error
	UpdateSessionStatus(ctx context.Context, sessionID, status string) error
	SaveDocument(ctx context.Context, doc *repository.KYCDocument) error
	LatestDocument(ctx context.Context, sessionID, docType string) (*repository.KYCDocument, error)
	ListDocuments(ctx context.Context, sessionID string) ([]repository.KYCDocument, error)
	SaveFaceCheck(ctx context.Context, check *repository.FaceCheck) error
	SaveRecording(ctx context.Context, recording *repository.Recording) error
	CountSessionsByStatus(ctx context.Context) (map[string]int64, error)
}

// ObjectStorage uploads captures and returns their public URLs.
type ObjectStorage interface {
	UploadImage(ctx context.Context, sessionID, docType string, data []byte) (string, error)
	UploadDocument(ctx context.Context, sessionID, filename string, data []byte) (string, error)
	UploadRecording(ctx context.Context, sessionID, filename string, data []byte) (string, error)
}

// Verifier runs a vendor task to completion.
type Verifier interface {
	SubmitAndPoll(ctx context.Context, kind idfy.TaskKind, taskID string, data map[string]any) (idfy.Result, error)
}

// StepResult is the outcome of a successful KYC step.
type StepResult struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	FaceMatch *bool  `json:"face_match,omitempty"`
}

// KYCUseCase sequences the Aadhaar, PAN and face steps of a session.
type KYCUseCase struct {
	repo      Repository
	storage   ObjectStorage
	verifier  Verifier
	extractor imageprocessor.FaceExtractor
	locker    sessionlock.Locker
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewKYCUseCase constructs a new use case instance. A nil extractor disables
// face extraction and a nil locker disables the per-session step lock.
func NewKYCUseCase(repo Repository, storage ObjectStorage, verifier Verifier, extractor imageprocessor.FaceExtractor, locker sessionlock.Locker, m *metrics.Metrics, logger *zap.Logger) *KYCUseCase {
	if extractor == nil {
		extractor = imageprocessor.Unavailable{}
	}
	if locker == nil {
		locker = sessionlock.Noop{}
	}
	return &KYCUseCase{
		repo:      repo,
		storage:   storage,
		verifier:  verifier,
		extractor: extractor,
		locker:    locker,
		metrics:   m,
		logger:    logger.Named("kyc_usecase"),
	}
}

// ProcessAadhaar uploads the Aadhaar capture, opens the session, stores the
// reference face when one can be cropped and extracts the card fields.
// An empty sessionID starts a new session.
func (uc *KYCUseCase) ProcessAadhaar(ctx context.Context, sessionID string, image []byte) (*StepResult, error) {
	if len(image) == 0 {
		return nil, &ValidationError{Field: "aadhaar_image", Message: "image is required"}
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	release, err := uc.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	opLogger := logging.WithOperation(uc.logger, "usecase.process_aadhaar", sessionID)

	aadhaarURL, err := uc.storage.UploadImage(ctx, sessionID, repository.DocAadhaar, image)
	if err != nil {
		opLogger.Error("aadhaar upload failed", zap.Error(err))
		return nil, &StorageError{SessionID: sessionID, Operation: "upload aadhaar image", Err: err}
	}

	if err := uc.repo.CreateSession(ctx, sessionID, repository.StatusProcessing); err != nil {
		opLogger.Warn("session creation failed", zap.Error(err))
	}

	uc.storeAadhaarFace(ctx, sessionID, image, opLogger)

	result, err := uc.verifier.SubmitAndPoll(ctx, idfy.TaskAadhaar, sessionID+"_aadhaar", map[string]any{
		"document1": aadhaarURL,
		"consent":   "yes",
	})
	if err != nil {
		return nil, uc.providerFailure(ctx, sessionID, "aadhaar", repository.DocAadhaar, aadhaarURL, repository.StatusAadhaarFailed, err, opLogger)
	}
	if result.Failed() {
		return nil, uc.vendorFailure(ctx, sessionID, "aadhaar", repository.DocAadhaar, aadhaarURL, repository.StatusAadhaarFailed,
			fullResponse(result), result.Error(), result.Message(), opLogger)
	}

	output := result.ExtractionOutput()
	doc := &repository.KYCDocument{
		SessionID: sessionID,
		DocType:   repository.DocAadhaar,
		ImageURL:  aadhaarURL,
		ExtractedData: repository.JSONMap{
			"full_response":  fullResponse(result),
			"full_name":      idfy.Field(output, "name_on_card"),
			"aadhaar_number": idfy.Field(output, "id_number"),
			"dob":            idfy.Field(output, "date_of_birth"),
			"gender":         idfy.Field(output, "gender"),
			"address":        idfy.Field(output, "address"),
		},
	}
	if err := uc.repo.SaveDocument(ctx, doc); err != nil {
		opLogger.Error("failed to persist aadhaar document", zap.Error(err))
		return nil, &StorageError{SessionID: sessionID, Operation: "save aadhaar document", Err: err}
	}

	uc.metrics.IncrementStep("aadhaar", StatusAadhaarProcessed)
	opLogger.Info("aadhaar processed")
	return &StepResult{SessionID: sessionID, Status: StatusAadhaarProcessed}, nil
}

// ProcessPAN uploads the PAN capture and extracts the card fields.
func (uc *KYCUseCase) ProcessPAN(ctx context.Context, sessionID string, image []byte) (*StepResult, error) {
	if err := requireStepInput(sessionID, "pan_image", image); err != nil {
		return nil, err
	}

	release, err := uc.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	opLogger := logging.WithOperation(uc.logger, "usecase.process_pan", sessionID)

	panURL, err := uc.storage.UploadImage(ctx, sessionID, repository.DocPAN, image)
	if err != nil {
		opLogger.Error("pan upload failed", zap.Error(err))
		return nil, &StorageError{SessionID: sessionID, Operation: "upload pan image", Err: err}
	}

	result, err := uc.verifier.SubmitAndPoll(ctx, idfy.TaskPAN, sessionID+"_pan", map[string]any{
		"document1": panURL,
	})
	if err != nil {
		return nil, uc.providerFailure(ctx, sessionID, "pan", repository.DocPAN, panURL, repository.StatusPANFailed, err, opLogger)
	}
	if result.Failed() {
		return nil, uc.vendorFailure(ctx, sessionID, "pan", repository.DocPAN, panURL, repository.StatusPANFailed,
			fullResponse(result), result.Error(), result.Message(), opLogger)
	}

	output := result.ExtractionOutput()
	doc := &repository.KYCDocument{
		SessionID: sessionID,
		DocType:   repository.DocPAN,
		ImageURL:  panURL,
		ExtractedData: repository.JSONMap{
			"full_response": fullResponse(result),
			"full_name":     idfy.Field(output, "name_on_card"),
			"pan_number":    idfy.Field(output, "id_number"),
			"dob":           idfy.Field(output, "date_of_birth"),
		},
	}
	if err := uc.repo.SaveDocument(ctx, doc); err != nil {
		opLogger.Error("failed to persist pan document", zap.Error(err))
		return nil, &StorageError{SessionID: sessionID, Operation: "save pan document", Err: err}
	}

	uc.metrics.IncrementStep("pan", StatusPANProcessed)
	opLogger.Info("pan processed")
	return &StepResult{SessionID: sessionID, Status: StatusPANProcessed}, nil
}

// ProcessFace compares a live capture with the face cropped from the Aadhaar
// card. It requires a stored aadhaar_face document for the session.
func (uc *KYCUseCase) ProcessFace(ctx context.Context, sessionID string, image []byte) (*StepResult, error) {
	if err := requireStepInput(sessionID, "face_image", image); err != nil {
		return nil, err
	}

	release, err := uc.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	opLogger := logging.WithOperation(uc.logger, "usecase.process_face", sessionID)

	faceURL, err := uc.storage.UploadImage(ctx, sessionID, repository.DocFace, image)
	if err != nil {
		opLogger.Error("face upload failed", zap.Error(err))
		return nil, &StorageError{SessionID: sessionID, Operation: "upload face image", Err: err}
	}

	reference, err := uc.repo.LatestDocument(ctx, sessionID, repository.DocAadhaarFace)
	switch {
	case errors.Is(err, repository.ErrNotFound) || (err == nil && reference.ImageURL == ""):
		opLogger.Warn("no aadhaar face stored for session")
		uc.metrics.IncrementStep("face", "precondition_failed")
		return nil, &PreconditionFailedError{SessionID: sessionID, Status: repository.StatusFaceFailed, Message: FaceNotFoundMessage}
	case err != nil:
		opLogger.Error("failed to read aadhaar face", zap.Error(err))
		return nil, &StorageError{SessionID: sessionID, Operation: "read aadhaar face", Err: err}
	}

	result, err := uc.verifier.SubmitAndPoll(ctx, idfy.TaskFaceCompare, sessionID+"_face", map[string]any{
		"document1": reference.ImageURL,
		"document2": faceURL,
	})
	if err != nil {
		return nil, uc.providerFailure(ctx, sessionID, "face", "", faceURL, repository.StatusFaceFailed, err, opLogger)
	}

	matched := idfy.FaceMatched(result)
	check := &repository.FaceCheck{
		SessionID:       sessionID,
		LivenessResult:  repository.JSONMap{},
		FaceMatchResult: faceMatchColumn(result),
		RiskFlag:        !matched,
	}

	if result.Failed() {
		if err := uc.repo.SaveFaceCheck(ctx, check); err != nil {
			opLogger.Warn("failed to persist failed face check", zap.Error(err))
		}
		return nil, uc.vendorFailure(ctx, sessionID, "face", "", faceURL, repository.StatusFaceFailed,
			nil, result.Error(), result.Message(), opLogger)
	}

	if err := uc.repo.SaveFaceCheck(ctx, check); err != nil {
		opLogger.Error("failed to persist face check", zap.Error(err))
		return nil, &StorageError{SessionID: sessionID, Operation: "save face check", Err: err}
	}

	uc.metrics.IncrementStep("face", StatusFaceProcessed)
	opLogger.Info("face processed", zap.Bool("face_match", matched))
	return &StepResult{SessionID: sessionID, Status: StatusFaceProcessed, FaceMatch: &matched}, nil
}

// GetDetails builds the confirmation screen fields from the stored documents.
// Rows are applied oldest first so the newest row of a type wins.
func (uc *KYCUseCase) GetDetails(ctx context.Context, sessionID string) (map[string]string, error) {
	if sessionID == "" {
		return nil, &ValidationError{Field: "session_id", Message: "session_id is required"}
	}

	docs, err := uc.repo.ListDocuments(ctx, sessionID)
	if err != nil {
		logging.WithOperation(uc.logger, "usecase.get_details", sessionID).Error("failed to list documents", zap.Error(err))
		return nil, &StorageError{SessionID: sessionID, Operation: "list documents", Err: err}
	}

	details := map[string]string{
		"aadhaar_name":   idfy.NotAvailable,
		"aadhaar_number": idfy.NotAvailable,
		"aadhaar_dob":    idfy.NotAvailable,
		"pan_number":     idfy.NotAvailable,
		"pan_name":       idfy.NotAvailable,
	}
	for _, doc := range docs {
		switch doc.DocType {
		case repository.DocAadhaar:
			details["aadhaar_name"] = displayValue(doc.ExtractedData, "full_name")
			details["aadhaar_number"] = displayValue(doc.ExtractedData, "aadhaar_number")
			details["aadhaar_dob"] = displayValue(doc.ExtractedData, "dob")
		case repository.DocPAN:
			details["pan_number"] = displayValue(doc.ExtractedData, "pan_number")
			details["pan_name"] = displayValue(doc.ExtractedData, "full_name")
		}
	}
	return details, nil
}

// Confirm marks the session confirmed. Confirmation is only ever explicit.
func (uc *KYCUseCase) Confirm(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return &ValidationError{Field: "session_id", Message: "session_id is required"}
	}

	opLogger := logging.WithOperation(uc.logger, "usecase.confirm", sessionID)
	err := uc.repo.UpdateSessionStatus(ctx, sessionID, repository.StatusConfirmed)
	switch {
	case errors.Is(err, repository.ErrSessionNotFound):
		opLogger.Warn("confirm for unknown session")
		return ErrSessionNotFound
	case err != nil:
		opLogger.Error("failed to confirm session", zap.Error(err))
		return &StorageError{SessionID: sessionID, Operation: "confirm session", Err: err}
	}

	uc.metrics.IncrementStep("confirm", repository.StatusConfirmed)
	if operator, ok := auth.GetOperator(ctx); ok {
		opLogger = opLogger.With(zap.String("operator", operator))
	}
	opLogger.Info("session confirmed")
	return nil
}

// UploadDocument stores a raw client file and records it as a document of docType.
func (uc *KYCUseCase) UploadDocument(ctx context.Context, sessionID, docType, filename string, data []byte) (string, error) {
	switch {
	case sessionID == "":
		return "", &ValidationError{Field: "session_id", Message: "session_id is required"}
	case docType == "":
		return "", &ValidationError{Field: "doc_type", Message: "doc_type is required"}
	case len(data) == 0:
		return "", &ValidationError{Field: "file", Message: "file is empty"}
	}

	opLogger := logging.WithOperation(uc.logger, "usecase.upload_document", sessionID)

	url, err := uc.storage.UploadDocument(ctx, sessionID, filename, data)
	if err != nil {
		opLogger.Error("document upload failed", zap.Error(err))
		return "", &StorageError{SessionID: sessionID, Operation: "upload document", Err: err}
	}

	doc := &repository.KYCDocument{SessionID: sessionID, DocType: docType, ImageURL: url}
	if err := uc.repo.SaveDocument(ctx, doc); err != nil {
		opLogger.Error("failed to persist uploaded document", zap.Error(err))
		return "", &StorageError{SessionID: sessionID, Operation: "save uploaded document", Err: err}
	}
	return url, nil
}

// UploadRecording stores a session recording. Full-process recordings are
// also linked to the session.
func (uc *KYCUseCase) UploadRecording(ctx context.Context, sessionID, recordingType, filename string, data []byte) (string, error) {
	switch {
	case sessionID == "":
		return "", &ValidationError{Field: "session_id", Message: "session_id is required"}
	case recordingType == "":
		return "", &ValidationError{Field: "recording_type", Message: "recording_type is required"}
	case len(data) == 0:
		return "", &ValidationError{Field: "file", Message: "file is empty"}
	}

	opLogger := logging.WithOperation(uc.logger, "usecase.upload_recording", sessionID)

	url, err := uc.storage.UploadRecording(ctx, sessionID, filename, data)
	if err != nil {
		opLogger.Error("recording upload failed", zap.Error(err))
		return "", &StorageError{SessionID: sessionID, Operation: "upload recording", Err: err}
	}

	if recordingType == recordingFullProcess {
		recording := &repository.Recording{SessionID: sessionID, ScreenRecordingURL: url, MicAudioURL: url}
		if err := uc.repo.SaveRecording(ctx, recording); err != nil {
			opLogger.Warn("failed to link recording to session", zap.Error(err))
		}
	}
	return url, nil
}

func (uc *KYCUseCase) acquire(ctx context.Context, sessionID string) (func(), error) {
	release, err := uc.locker.Acquire(ctx, sessionID)
	if errors.Is(err, sessionlock.ErrLocked) {
		return nil, ErrStepInProgress
	}
	if err != nil {
		return nil, err
	}
	return release, nil
}

// storeAadhaarFace crops the reference face and records it. Every failure is
// logged and swallowed; the face step reports the missing reference later.
func (uc *KYCUseCase) storeAadhaarFace(ctx context.Context, sessionID string, image []byte, opLogger *zap.Logger) {
	start := time.Now()
	face, err := uc.extractor.ExtractFace(image)
	uc.metrics.IncrementFaceExtraction(imageprocessor.Outcome(err))
	if err != nil {
		opLogger.Warn("aadhaar face extraction failed", zap.Error(err))
		return
	}
	opLogger.Debug("aadhaar face extracted", zap.Int("bytes", len(face)), zap.Duration("took", time.Since(start)))

	faceURL, err := uc.storage.UploadImage(ctx, sessionID, repository.DocAadhaarFace, face)
	if err != nil {
		opLogger.Warn("aadhaar face upload failed", zap.Error(err))
		return
	}

	doc := &repository.KYCDocument{
		SessionID:     sessionID,
		DocType:       repository.DocAadhaarFace,
		ImageURL:      faceURL,
		ExtractedData: repository.JSONMap{"source": "opencv_haar_cascade"},
	}
	if err := uc.repo.SaveDocument(ctx, doc); err != nil {
		opLogger.Warn("failed to persist aadhaar face", zap.Error(err))
	}
}

// vendorFailure annotates the session after the provider reported a failed
// task. docType is empty when the step keeps no document row for failures.
func (uc *KYCUseCase) vendorFailure(ctx context.Context, sessionID, step, docType, imageURL, status string, response, vendorErr any, message string, opLogger *zap.Logger) error {
	opLogger.Warn("verification provider reported failure", zap.String("status", status), zap.String("message", message))

	if docType != "" {
		doc := &repository.KYCDocument{
			SessionID: sessionID,
			DocType:   docType,
			ImageURL:  imageURL,
			ExtractedData: repository.JSONMap{
				"full_response": response,
				"error":         vendorErr,
				"error_message": message,
			},
		}
		if err := uc.repo.SaveDocument(ctx, doc); err != nil {
			opLogger.Warn("failed to persist failed document", zap.Error(err))
		}
	}

	if err := uc.repo.UpdateSessionStatus(ctx, sessionID, status); err != nil {
		opLogger.Warn("failed to annotate session status", zap.Error(err))
	}

	uc.metrics.IncrementStep(step, status)
	return &VendorError{SessionID: sessionID, Status: status, Message: message}
}

// providerFailure maps a SubmitAndPoll error. Submission rejections carry a
// vendor message and are handled like failed tasks.
func (uc *KYCUseCase) providerFailure(ctx context.Context, sessionID, step, docType, imageURL, status string, err error, opLogger *zap.Logger) error {
	var apiErr *idfy.APIError
	if errors.As(err, &apiErr) {
		var vendorErr any = apiErr.Body["error"]
		return uc.vendorFailure(ctx, sessionID, step, docType, imageURL, status, apiErr.Body, vendorErr, apiErr.Message, opLogger)
	}

	var transportErr *idfy.TransportError
	if errors.As(err, &transportErr) {
		opLogger.Error("verification provider unavailable", zap.Error(err))
		uc.metrics.IncrementStep(step, "provider_unavailable")
		return &ProviderUnavailableError{SessionID: sessionID, Step: step, Err: err}
	}

	opLogger.Error("verification task failed", zap.Error(err))
	uc.metrics.IncrementStep(step, "error")
	return logging.NewOperationError("usecase."+step, sessionID, err)
}

func requireStepInput(sessionID, field string, image []byte) error {
	if sessionID == "" {
		return &ValidationError{Field: "session_id", Message: "session_id is required"}
	}
	if len(image) == 0 {
		return &ValidationError{Field: field, Message: "image is required"}
	}
	return nil
}

// fullResponse is the vendor document, or its raw shape when there was none.
func fullResponse(result idfy.Result) any {
	if doc := result.Doc(); doc != nil {
		return doc
	}
	return result.Raw()
}

func faceMatchColumn(result idfy.Result) repository.JSONMap {
	if doc := result.Doc(); doc != nil {
		return repository.JSONMap(doc)
	}
	return repository.JSONMap{"raw": result.Raw()}
}

func displayValue(data repository.JSONMap, key string) string {
	switch value := data[key].(type) {
	case nil:
		return idfy.NotAvailable
	case string:
		if value == "" {
			return idfy.NotAvailable
		}
		return value
	default:
		return fmt.Sprint(value)
	}
}
