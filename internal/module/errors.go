package module

import (
	"errors"
	"fmt"
)

// BuildError represents an error detected while building modules or bundles.
//
// Build errors include:
//   - Missing module: every source provider declined an identifier
//   - Duplicate module: two different sources claim one canonical identifier
//   - Output locked: another build holds the output directory
//   - Cold cache: an artifact was published before it was built
//
// Only some codes are fatal; the builder downgrades MODULE_NOT_FOUND to a
// warning plus a stub module.
type BuildError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// ModuleID identifies the affected module, when there is one.
	ModuleID string

	// Details contains additional context.
	Details map[string]string
}

// ErrorCode categorizes build errors.
type ErrorCode string

const (
	ErrCodeModuleNotFound     ErrorCode = "MODULE_NOT_FOUND"
	ErrCodeDuplicateModule    ErrorCode = "DUPLICATE_MODULE"
	ErrCodeDuplicateDirective ErrorCode = "DUPLICATE_DIRECTIVE"
	ErrCodeOutputLocked       ErrorCode = "OUTPUT_LOCKED"
	ErrCodeColdCache          ErrorCode = "COLD_CACHE"
	ErrCodeInvalidID          ErrorCode = "INVALID_ID"
)

// Error implements the error interface.
func (e *BuildError) Error() string {
	if e.ModuleID != "" {
		return fmt.Sprintf("%s: %s (module=%s)", e.Code, e.Message, e.ModuleID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// HasCode reports whether err wraps a BuildError with the given code.
func HasCode(err error, code ErrorCode) bool {
	var be *BuildError
	if errors.As(err, &be) {
		return be.Code == code
	}
	return false
}

// IsNotFound returns true if err is a missing-module error.
func IsNotFound(err error) bool { return HasCode(err, ErrCodeModuleNotFound) }

// IsDuplicate returns true if err reports two sources for one canonical ID.
func IsDuplicate(err error) bool { return HasCode(err, ErrCodeDuplicateModule) }

// IsLocked returns true if err reports a held output directory.
func IsLocked(err error) bool { return HasCode(err, ErrCodeOutputLocked) }

// NewNotFoundError creates a BuildError for an identifier no provider resolved.
func NewNotFoundError(id string) *BuildError {
	return &BuildError{
		Code:     ErrCodeModuleNotFound,
		Message:  "no source provider resolved the module",
		ModuleID: id,
	}
}

// NewDuplicateError creates a BuildError for a canonical ID registered twice
// with divergent content.
func NewDuplicateError(id, firstHash, secondHash string) *BuildError {
	return &BuildError{
		Code:     ErrCodeDuplicateModule,
		Message:  "canonical identifier registered with two different hashes",
		ModuleID: id,
		Details: map[string]string{
			"first_hash":  firstHash,
			"second_hash": secondHash,
		},
	}
}

// NewDuplicateDirectiveError creates a BuildError for two files declaring
// the same identifier.
func NewDuplicateDirectiveError(id, firstPath, secondPath string) *BuildError {
	return &BuildError{
		Code:     ErrCodeDuplicateDirective,
		Message:  fmt.Sprintf("identifier declared by both %s and %s", firstPath, secondPath),
		ModuleID: id,
		Details: map[string]string{
			"first_path":  firstPath,
			"second_path": secondPath,
		},
	}
}

// NewLockedError creates a BuildError for an output directory held by
// another build.
func NewLockedError(dir, detail string) *BuildError {
	msg := fmt.Sprintf("output directory %s currently in use", dir)
	if detail != "" {
		msg += " (" + detail + ")"
	}
	return &BuildError{
		Code:    ErrCodeOutputLocked,
		Message: msg,
		Details: map[string]string{"dir": dir},
	}
}

// NewColdCacheError creates a BuildError for publishing an unbuilt key.
func NewColdCacheError(key string) *BuildError {
	return &BuildError{
		Code:    ErrCodeColdCache,
		Message: "artifact must be built before it is published",
		Details: map[string]string{"key": key},
	}
}

// NewInvalidIDError creates a BuildError for a malformed identifier.
func NewInvalidIDError(id, reason string) *BuildError {
	return &BuildError{
		Code:     ErrCodeInvalidID,
		Message:  reason,
		ModuleID: id,
	}
}
