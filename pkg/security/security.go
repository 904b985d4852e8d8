// Package security provides validation, sanitization, and limits for the botjobs engine.
package security

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/tannerhat/botjobs/pkg/core"
)

// Limits enforced at the enqueue and executor boundaries.
const (
	// MaxKindLength is the maximum length for job kinds
	MaxKindLength = 255

	// MaxPayloadSize is the maximum size in bytes for job payloads (1MB)
	MaxPayloadSize = 1 << 20

	// MaxAttempts is the hard limit for the attempt budget
	MaxAttempts = 100

	// MaxConcurrency is the hard limit for batch execution concurrency
	MaxConcurrency = 1000

	// MaxBatchLimit is the hard limit for jobs claimed per run
	MaxBatchLimit = 10000

	// MaxErrorMessageLength is the maximum length for stored failure reasons
	MaxErrorMessageLength = 4096
)

// validKind matches alphanumeric, hyphens, underscores, and dots
var validKind = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_\-\.]*$`)

// ValidateKind validates a job kind
func ValidateKind(kind string) error {
	if kind == "" {
		return core.ErrInvalidKind
	}
	if len(kind) > MaxKindLength {
		return core.ErrKindTooLong
	}
	if !validKind.MatchString(kind) {
		return core.ErrInvalidKind
	}
	return nil
}

// SanitizeErrorMessage truncates and sanitizes failure reasons for storage
func SanitizeErrorMessage(msg string) string {
	if msg == "" {
		return ""
	}

	// Remove any null bytes or control characters (except newlines)
	var sanitized strings.Builder
	sanitized.Grow(len(msg))

	for _, r := range msg {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			sanitized.WriteRune(r)
		}
	}

	result := sanitized.String()

	// Truncate if too long
	if utf8.RuneCountInString(result) > MaxErrorMessageLength {
		runes := []rune(result)
		result = string(runes[:MaxErrorMessageLength-3]) + "..."
	}

	return result
}

// ClampAttempts ensures the attempt budget is within limits
func ClampAttempts(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxAttempts {
		return MaxAttempts
	}
	return n
}

// ClampConcurrency ensures concurrency is within limits
func ClampConcurrency(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxConcurrency {
		return MaxConcurrency
	}
	return n
}

// ClampBatchLimit ensures the per-run claim limit is within limits
func ClampBatchLimit(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxBatchLimit {
		return MaxBatchLimit
	}
	return n
}
