package repository

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Session statuses.
const (
	StatusProcessing    = "processing"
	StatusAadhaarFailed = "aadhaar_failed"
	StatusPANFailed     = "pan_failed"
	StatusFaceFailed    = "face_failed"
	StatusConfirmed     = "confirmed"
)

// Document types written by the KYC steps.
const (
	DocAadhaar     = "aadhaar"
	DocAadhaarFace = "aadhaar_face"
	DocPAN         = "pan"
	DocFace        = "face"
)

// JSONMap is a JSON object column.
type JSONMap map[string]any

// Value implements driver.Valuer.
func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return "{}", nil
	}
	encoded, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(encoded), nil
}

// Scan implements sql.Scanner.
func (j *JSONMap) Scan(value any) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*j = JSONMap{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported JSON column type %T", value)
	}

	decoded := JSONMap{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return err
		}
	}
	*j = decoded
	return nil
}

// GormDBDataType picks jsonb on Postgres and plain JSON elsewhere.
func (JSONMap) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "JSONB"
	}
	return "JSON"
}

// KYCSession is the status row of one onboarding attempt.
type KYCSession struct {
	ID        uint      `gorm:"primaryKey"`
	SessionID string    `gorm:"column:session_id;uniqueIndex;size:64;not null"`
	Status    string    `gorm:"column:status;size:32;not null"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (KYCSession) TableName() string {
	return "kyc_sessions"
}

// KYCDocument is one uploaded image and whatever was extracted from it.
// Rows are append-only.
type KYCDocument struct {
	ID            uint      `gorm:"primaryKey"`
	SessionID     string    `gorm:"column:session_id;index;size:64;not null"`
	DocType       string    `gorm:"column:doc_type;size:64;not null"`
	ImageURL      string    `gorm:"column:image_url;type:text"`
	ExtractedData JSONMap   `gorm:"column:extracted_data"`
	CreatedAt     time.Time `gorm:"column:created_at"`
}

func (KYCDocument) TableName() string {
	return "kyc_documents"
}

// FaceCheck records one face comparison attempt.
type FaceCheck struct {
	ID              uint      `gorm:"primaryKey"`
	SessionID       string    `gorm:"column:session_id;index;size:64;not null"`
	LivenessResult  JSONMap   `gorm:"column:liveness_result"`
	FaceMatchResult JSONMap   `gorm:"column:face_match_result"`
	RiskFlag        bool      `gorm:"column:risk_flag"`
	CreatedAt       time.Time `gorm:"column:created_at"`
}

func (FaceCheck) TableName() string {
	return "kyc_face_checks"
}

// Recording points at a full-process screen and microphone capture.
type Recording struct {
	ID                 uint      `gorm:"primaryKey"`
	SessionID          string    `gorm:"column:session_id;index;size:64;not null"`
	ScreenRecordingURL string    `gorm:"column:screen_recording_url;type:text"`
	MicAudioURL        string    `gorm:"column:mic_audio_url;type:text"`
	CreatedAt          time.Time `gorm:"column:created_at"`
}

func (Recording) TableName() string {
	return "kyc_recordings"
}
