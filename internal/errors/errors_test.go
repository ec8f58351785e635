package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestNewRiqError(t *testing.T) {
	cause := errors.New("underlying error")
	fixes := []FixAction{{Type: RunCommand, Command: "riq runs"}}

	err := NewRiqError(RunNotFound, "no run with that ID", cause, fixes)

	if err.Code != RunNotFound {
		t.Errorf("Code = %v, want %v", err.Code, RunNotFound)
	}
	if err.Message != "no run with that ID" {
		t.Errorf("Message = %q, want %q", err.Message, "no run with that ID")
	}
	if len(err.SuggestedFixes) != 1 {
		t.Errorf("len(SuggestedFixes) = %d, want 1", len(err.SuggestedFixes))
	}
}

func TestRiqError_Error(t *testing.T) {
	tests := []struct {
		name      string
		code      ErrorCode
		message   string
		cause     error
		wantParts []string
	}{
		{
			name:      "with cause",
			code:      CacheUnavailable,
			message:   "cannot open cache database",
			cause:     errors.New("disk I/O error"),
			wantParts: []string{"CACHE_UNAVAILABLE", "cannot open cache database", "disk I/O error"},
		},
		{
			name:      "without cause",
			code:      PathEscape,
			message:   "path resolves outside repository",
			cause:     nil,
			wantParts: []string{"PATH_ESCAPE", "path resolves outside repository"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewRiqError(tt.code, tt.message, tt.cause, nil)
			got := err.Error()

			for _, part := range tt.wantParts {
				if !strings.Contains(got, part) {
					t.Errorf("Error() = %q, want to contain %q", got, part)
				}
			}
		})
	}
}

func TestRiqError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := NewRiqError(InternalError, "something went wrong", cause, nil)

	unwrapped := err.Unwrap()
	if unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}

	// Test nil cause
	errNoCause := NewRiqError(Timeout, "analysis timed out", nil, nil)
	if errNoCause.Unwrap() != nil {
		t.Errorf("Unwrap() on error without cause should return nil")
	}
}

func TestRiqError_WithDetails(t *testing.T) {
	err := NewRiqError(WalkFailed, "walk aborted", nil, nil)
	details := map[string]int{"filesSeen": 412, "cap": 300}

	result := err.WithDetails(details)

	// Check that it returns the same error (for chaining)
	if result != err {
		t.Error("WithDetails should return the same error for chaining")
	}

	// Check details are set
	if err.Details == nil {
		t.Error("Details should be set")
	}
}

func TestGetSuggestedFixes(t *testing.T) {
	tests := []struct {
		code    ErrorCode
		wantNil bool
		wantLen int
	}{
		{RepoNotFound, false, 1},
		{RunNotFound, false, 1},
		{CacheUnavailable, false, 1},
		{InvalidChange, false, 1},
		{Unauthorized, false, 1},
		{PathEscape, true, 0},      // No predefined fixes
		{DetectorFailed, true, 0},  // No predefined fixes
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			fixes := GetSuggestedFixes(tt.code)

			if tt.wantNil && fixes != nil {
				t.Errorf("GetSuggestedFixes(%v) = %v, want nil", tt.code, fixes)
			}
			if !tt.wantNil && len(fixes) != tt.wantLen {
				t.Errorf("GetSuggestedFixes(%v) len = %d, want %d", tt.code, len(fixes), tt.wantLen)
			}
		})
	}
}

func TestErrorCodes(t *testing.T) {
	// Ensure all error codes are unique
	codes := []ErrorCode{
		RepoNotFound,
		PathEscape,
		WalkFailed,
		DetectorFailed,
		CacheUnavailable,
		RunNotFound,
		RunConflict,
		InvalidChange,
		Timeout,
		Unauthorized,
		InternalError,
	}

	seen := make(map[ErrorCode]bool)
	for _, code := range codes {
		if seen[code] {
			t.Errorf("Duplicate error code: %v", code)
		}
		seen[code] = true

		// Ensure each code is a non-empty string
		if string(code) == "" {
			t.Error("Error code should not be empty")
		}
	}
}

func TestErrorActionsMap(t *testing.T) {
	// Verify each entry has valid fix actions
	for code, fixes := range ErrorActions {
		if len(fixes) == 0 {
			t.Errorf("ErrorActions[%v] has no fix actions", code)
		}
		for i, fix := range fixes {
			if fix.Type == "" {
				t.Errorf("ErrorActions[%v][%d].Type is empty", code, i)
			}
		}
	}
}
