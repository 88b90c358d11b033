package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/kyc-voice/internal/retry"
)

var (
	// ErrNotFound is returned when no document matches a lookup.
	ErrNotFound = errors.New("record not found")
	// ErrSessionNotFound is returned when a status update matches no session.
	ErrSessionNotFound = errors.New("session not found")
)

// KYCRepository persists sessions, documents, face checks and recordings.
type KYCRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewKYCRepository creates a repository with the default retry policy.
func NewKYCRepository(db *gorm.DB, logger *zap.Logger) *KYCRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KYCRepository{
		db:             db,
		logger:         logger.Named("repository"),
		retryAttempts:  retry.DefaultPolicy.Attempts,
		initialBackoff: retry.DefaultPolicy.InitialBackoff,
		maxBackoff:     retry.DefaultPolicy.MaxBackoff,
	}
}

// AutoMigrate ensures the schema is available.
func (r *KYCRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&KYCSession{}, &KYCDocument{}, &FaceCheck{}, &Recording{})
}

// CreateSession inserts the session unless it already exists.
func (r *KYCRepository) CreateSession(ctx context.Context, sessionID, status string) error {
	return r.executeWithRetry(ctx, "repository.create_session", sessionID, func() error {
		return r.db.WithContext(ctx).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "session_id"}}, DoNothing: true}).
			Create(&KYCSession{SessionID: sessionID, Status: status}).Error
	})
}

// UpdateSessionStatus sets the status of an existing session.
func (r *KYCRepository) UpdateSessionStatus(ctx context.Context, sessionID, status string) error {
	var affected int64
	err := r.executeWithRetry(ctx, "repository.update_session_status", sessionID, func() error {
		result := r.db.WithContext(ctx).
			Model(&KYCSession{}).
			Where("session_id = ?", sessionID).
			Updates(map[string]any{"status": status, "updated_at": time.Now().UTC()})
		affected = result.RowsAffected
		return result.Error
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// SaveDocument appends a document row.
func (r *KYCRepository) SaveDocument(ctx context.Context, doc *KYCDocument) error {
	if doc.ExtractedData == nil {
		doc.ExtractedData = JSONMap{}
	}
	return r.executeWithRetry(ctx, "repository.save_document", doc.SessionID, func() error {
		return r.db.WithContext(ctx).Create(doc).Error
	})
}

// LatestDocument returns the newest row of docType for the session.
func (r *KYCRepository) LatestDocument(ctx context.Context, sessionID, docType string) (*KYCDocument, error) {
	var docs []KYCDocument
	err := r.executeWithRetry(ctx, "repository.latest_document", sessionID, func() error {
		return r.db.WithContext(ctx).
			Where("session_id = ? AND doc_type = ?", sessionID, docType).
			Order("id DESC").
			Limit(1).
			Find(&docs).Error
	})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return &docs[0], nil
}

// ListDocuments returns every document of the session in insertion order.
func (r *KYCRepository) ListDocuments(ctx context.Context, sessionID string) ([]KYCDocument, error) {
	var docs []KYCDocument
	err := r.executeWithRetry(ctx, "repository.list_documents", sessionID, func() error {
		return r.db.WithContext(ctx).
			Where("session_id = ?", sessionID).
			Order("id ASC").
			Find(&docs).Error
	})
	return docs, err
}

// SaveFaceCheck appends a face comparison row.
func (r *KYCRepository) SaveFaceCheck(ctx context.Context, check *FaceCheck) error {
	if check.LivenessResult == nil {
		check.LivenessResult = JSONMap{}
	}
	return r.executeWithRetry(ctx, "repository.save_face_check", check.SessionID, func() error {
		return r.db.WithContext(ctx).Create(check).Error
	})
}

// SaveRecording appends a recording row.
func (r *KYCRepository) SaveRecording(ctx context.Context, recording *Recording) error {
	return r.executeWithRetry(ctx, "repository.save_recording", recording.SessionID, func() error {
		return r.db.WithContext(ctx).Create(recording).Error
	})
}

// CountSessionsByStatus groups sessions by their current status.
func (r *KYCRepository) CountSessionsByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := r.executeWithRetry(ctx, "repository.count_sessions", "", func() error {
		return r.db.WithContext(ctx).
			Model(&KYCSession{}).
			Select("status, COUNT(*) AS count").
			Group("status").
			Scan(&rows).Error
	})
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// Ping checks database connectivity.
func (r *KYCRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *KYCRepository) executeWithRetry(ctx context.Context, operation, sessionID string, fn func() error) error {
	return retry.Do(ctx, retry.Policy{
		Attempts:       r.retryAttempts,
		InitialBackoff: r.initialBackoff,
		MaxBackoff:     r.maxBackoff,
	}, r.logger, operation, sessionID, fn)
}
