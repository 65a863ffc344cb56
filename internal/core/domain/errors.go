package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrCorpusMissing       = errors.New("knowledge corpus missing")
	ErrCorpusCorrupt       = errors.New("knowledge corpus corrupt")
	ErrNotFound            = errors.New("not found")
	ErrTemporary           = errors.New("temporary failure")
	ErrProviderUnavailable = errors.New("provider unavailable")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
