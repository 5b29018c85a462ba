package models

import (
	"github.com/myrjola/profilescan/internal/errors"
	"strings"
)

var (
	ErrUnknownAssessmentType = errors.NewSentinel("unknown assessment type")
	ErrUnknownQuestion       = errors.NewSentinel("unknown question")
	ErrInvalidResponse       = errors.NewSentinel("invalid response")
	ErrIncompleteResponses   = errors.NewSentinel("incomplete responses")
	ErrInvalidState          = errors.NewSentinel("invalid assessment state")
	ErrNotFound              = errors.NewSentinel("not found")
	ErrRetakeCooldown        = errors.NewSentinel("retake cooldown active")

	// ErrAlreadyProcessing and ErrStaleVersion are safe to retry.
	ErrAlreadyProcessing = errors.NewSentinel("assessment already processing")
	ErrStaleVersion      = errors.NewSentinel("stale assessment version")

	// ErrInvariantViolation signals a bug and must never be swallowed.
	ErrInvariantViolation = errors.NewSentinel("invariant violation")
)

// IncompleteResponsesError lists the required questions that have no response.
type IncompleteResponsesError struct {
	Missing []string
}

func (e *IncompleteResponsesError) Error() string {
	return ErrIncompleteResponses.Error() + ": missing " + strings.Join(e.Missing, ", ")
}

func (e *IncompleteResponsesError) Is(target error) bool {
	return target == ErrIncompleteResponses
}

// IsRetryable reports whether the caller may retry the operation as is.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrAlreadyProcessing) || errors.Is(err, ErrStaleVersion)
}
