package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a DomainError with the same code and message.
// This lets wrapped instances created with NewDomainErrorWithCause match the
// package-level sentinels through errors.Is.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Wrap returns a copy of the sentinel carrying err as its cause.
func (e *DomainError) Wrap(err error) *DomainError {
	return NewDomainErrorWithCause(e.Code, e.Message, err)
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeAlreadyExists    = "ALREADY_EXISTS"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeInvalidOperation = "INVALID_OPERATION"
	ErrCodeUpstream         = "UPSTREAM_ERROR"
)

// Validation errors
var (
	ErrNoEvidence           = NewDomainError(ErrCodeValidation, "no evidence files provided")
	ErrInvalidContext       = NewDomainError(ErrCodeValidation, "invalid attachment context")
	ErrInvalidUpload        = NewDomainError(ErrCodeValidation, "invalid multipart upload")
	ErrInvalidDocumentPath  = NewDomainError(ErrCodeValidation, "invalid document path")
	ErrMissingRequiredField = NewDomainError(ErrCodeValidation, "missing required field")
)

// Not found errors
var (
	ErrDocumentNotFound = NewDomainError(ErrCodeNotFound, "document not found")
)

// Already exists errors
var (
	ErrVersionConflict = NewDomainError(ErrCodeAlreadyExists, "knowledge version already exists")
)

// Pipeline stage errors. ErrUnitAnalysis and ErrRouterParse never leave their
// stage; they exist so logs and tests can name the absorbed failure.
var (
	ErrDurationProbe  = NewDomainError(ErrCodeInternalError, "could not determine video duration")
	ErrSliceCut       = NewDomainError(ErrCodeInternalError, "video slice cut failed")
	ErrArtifactFailed = NewDomainError(ErrCodeUpstream, "evidence artifact failed to process")
	ErrUnitAnalysis   = NewDomainError(ErrCodeUpstream, "unit analysis failed")
	ErrReduction      = NewDomainError(ErrCodeUpstream, "result reduction failed")
	ErrRouterParse    = NewDomainError(ErrCodeUpstream, "router decision could not be parsed")
	ErrGeneration     = NewDomainError(ErrCodeUpstream, "content generation failed")
	ErrStoreWrite     = NewDomainError(ErrCodeInternalError, "knowledge store write failed")
)
