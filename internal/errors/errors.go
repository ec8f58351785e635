package errors

import (
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// RepoNotFound indicates the repository root does not exist or is not a directory
	RepoNotFound ErrorCode = "REPO_NOT_FOUND"
	// PathEscape indicates a path resolved outside the repository root
	PathEscape ErrorCode = "PATH_ESCAPE"
	// WalkFailed indicates the file tree walk could not complete
	WalkFailed ErrorCode = "WALK_FAILED"
	// DetectorFailed indicates a fact detector failed hard
	DetectorFailed ErrorCode = "DETECTOR_FAILED"
	// CacheUnavailable indicates the disk cache could not be opened
	CacheUnavailable ErrorCode = "CACHE_UNAVAILABLE"
	// RunNotFound indicates no pipeline run exists with the given ID
	RunNotFound ErrorCode = "RUN_NOT_FOUND"
	// RunConflict indicates an illegal run state transition was attempted
	RunConflict ErrorCode = "RUN_CONFLICT"
	// InvalidChange indicates a change descriptor could not be parsed
	InvalidChange ErrorCode = "INVALID_CHANGE"
	// InvalidRequest indicates a malformed API request body or parameter
	InvalidRequest ErrorCode = "INVALID_REQUEST"
	// Timeout indicates analysis exceeded its deadline
	Timeout ErrorCode = "TIMEOUT"
	// Unauthorized indicates a missing or invalid API token
	Unauthorized ErrorCode = "UNAUTHORIZED"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// FixActionType represents the type of fix action
type FixActionType string

const (
	// RunCommand suggests running a command
	RunCommand FixActionType = "run-command"
	// OpenDocs suggests opening documentation
	OpenDocs FixActionType = "open-docs"
)

// FixAction represents a suggested fix for an error
type FixAction struct {
	Type        FixActionType `json:"type"`
	Command     string        `json:"command,omitempty"`
	Safe        bool          `json:"safe,omitempty"`
	Description string        `json:"description,omitempty"`
	URL         string        `json:"url,omitempty"`
}

// RiqError represents a riq error with code, message, and suggestions
type RiqError struct {
	Code           ErrorCode   `json:"code"`
	Message        string      `json:"message"`
	Details        interface{} `json:"details,omitempty"`
	SuggestedFixes []FixAction `json:"suggestedFixes,omitempty"`
	cause          error       // Underlying error (not exported to JSON)
}

// NewRiqError creates a new RiqError
func NewRiqError(code ErrorCode, message string, cause error, suggestedFixes []FixAction) *RiqError {
	return &RiqError{
		Code:           code,
		Message:        message,
		cause:          cause,
		SuggestedFixes: suggestedFixes,
	}
}

// Error implements the error interface
func (e *RiqError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *RiqError) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *RiqError) WithDetails(details interface{}) *RiqError {
	e.Details = details
	return e
}

// ErrorActions maps error codes to suggested fix actions
var ErrorActions = map[ErrorCode][]FixAction{
	RepoNotFound: {
		{
			Type:        RunCommand,
			Command:     "riq analyze --repo <path>",
			Safe:        true,
			Description: "Point riq at an existing repository root",
		},
	},
	RunNotFound: {
		{
			Type:        RunCommand,
			Command:     "riq runs",
			Safe:        true,
			Description: "List known analysis runs",
		},
	},
	CacheUnavailable: {
		{
			Type:        RunCommand,
			Command:     "riq cache stats",
			Safe:        true,
			Description: "Inspect cache state and storage path",
		},
	},
	InvalidChange: {
		{
			Type:        RunCommand,
			Command:     "riq estimate --help",
			Safe:        true,
			Description: "Show the accepted change descriptor syntax",
		},
	},
	Unauthorized: {
		{
			Type:        RunCommand,
			Command:     "riq serve --generate-token",
			Safe:        false,
			Description: "Generate a fresh API token and store its hash",
		},
	},
}

// GetSuggestedFixes returns suggested fixes for an error code
func GetSuggestedFixes(code ErrorCode) []FixAction {
	if fixes, ok := ErrorActions[code]; ok {
		return fixes
	}
	return nil
}
