package research

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrGeneration = errors.New("query generation failed")
	ErrSearch     = errors.New("search failed")
	ErrExtraction = errors.New("learning extraction failed")

	// Timeouts are distinguishable but still match their parent failure.
	ErrSearchTimeout     = fmt.Errorf("%w: timeout", ErrSearch)
	ErrExtractionTimeout = fmt.Errorf("%w: timeout", ErrExtraction)

	ErrInvalidTask = errors.New("invalid research task")
)

// IsTimeout reports whether err came from a capability exceeding its deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrSearchTimeout) ||
		errors.Is(err, ErrExtractionTimeout) ||
		errors.Is(err, context.DeadlineExceeded)
}

// classify wraps err in the failure sentinel for a capability, promoting
// deadline expiry to the matching timeout sentinel.
func classify(err, failure, timeout error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, failure) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", timeout, err)
	}
	return fmt.Errorf("%w: %w", failure, err)
}
