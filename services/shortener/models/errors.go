package models

import (
	"errors"
	"fmt"
)

var (
	ErrAliasTaken          = errors.New("alias is already in use")
	ErrAliasSpaceExhausted = errors.New("could not generate a free alias")
	ErrNotFound            = errors.New("link not found")
	ErrDeadlineExceeded    = errors.New("resolution deadline exceeded")
	ErrLookupFailed        = errors.New("link lookup failed")
	ErrInvalidInput        = errors.New("invalid input")
	ErrQuotaExceeded       = errors.New("quota exceeded")
)

type QuotaKind string

const (
	QuotaLinks            QuotaKind = "links"
	QuotaQRCodes          QuotaKind = "qrCodes"
	QuotaCustomBackHalves QuotaKind = "customBackHalves"
)

type QuotaExceededError struct {
	Kind  QuotaKind
	Limit int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: %s limit of %d reached for this period", e.Kind, e.Limit)
}

func (e *QuotaExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}
