package service

import (
	"errors"
	"fmt"

	"github.com/jmylchreest/companion-api/internal/models"
)

// ErrStorage marks a persistence failure. Wrapped errors keep the cause.
var ErrStorage = errors.New("storage error")

// Sentinels for configuration problems; match with errors.Is.
var (
	ErrUnknownTier    = models.ErrUnknownTier
	ErrUnknownFeature = errors.New("unknown feature")
	ErrMissingLimits  = errors.New("missing limits")
)

var (
	// ErrDuplicatePayment is returned when a charge id has already been applied.
	ErrDuplicatePayment = errors.New("payment already applied")
	// ErrTrialNotEligible is returned when a trial cannot be granted.
	ErrTrialNotEligible = errors.New("user not eligible for trial")
	// ErrInvalidArgument is returned for malformed input such as empty user ids.
	ErrInvalidArgument = errors.New("invalid argument")
)

// ConfigurationError reports a request that references an unknown tier,
// feature or limits bundle.
type ConfigurationError struct {
	Kind  error // one of ErrUnknownTier, ErrUnknownFeature, ErrMissingLimits
	Value string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%v: %q", e.Kind, e.Value)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Kind
}

func unknownTier(value string) error {
	return &ConfigurationError{Kind: ErrUnknownTier, Value: value}
}

func unknownFeature(value string) error {
	return &ConfigurationError{Kind: ErrUnknownFeature, Value: value}
}

// storageErr wraps a repository failure so callers can match ErrStorage.
func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

func invalidArg(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
