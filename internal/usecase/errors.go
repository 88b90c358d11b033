package usecase

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned when confirming an unknown session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrStepInProgress is returned when another step of the same session holds the lock.
	ErrStepInProgress = errors.New("another step is in progress for this session")
)

// FaceNotFoundMessage is shown when the face step runs before an Aadhaar face was stored.
const FaceNotFoundMessage = "Aadhaar face not found. Please recapture Aadhaar."

// ValidationError reports missing or malformed input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// VendorError means the verification provider reported a failure for a step.
// The session has already been annotated with Status.
type VendorError struct {
	SessionID string
	Status    string
	Message   string
}

func (e *VendorError) Error() string {
	return fmt.Sprintf("%s: %s", e.Status, e.Message)
}

// PreconditionFailedError means a step ran before the data it depends on exists.
type PreconditionFailedError struct {
	SessionID string
	Status    string
	Message   string
}

func (e *PreconditionFailedError) Error() string {
	return e.Message
}

// StorageError wraps object storage and database failures on the critical path.
type StorageError struct {
	SessionID string
	Operation string
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Operation, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ProviderUnavailableError means the verification provider could not be reached
// or answered with something unreadable.
type ProviderUnavailableError struct {
	SessionID string
	Step      string
	Err       error
}

func (e *ProviderUnavailableError) Error() string {
	return fmt.Sprintf("verification provider unavailable during %s: %v", e.Step, e.Err)
}

func (e *ProviderUnavailableError) Unwrap() error {
	return e.Err
}
