package models

import "errors"

// Error kinds shared by every component. Callers wrap them with context and
// match with errors.Is.
var (
	ErrValidation       = errors.New("queue monitor: validation failed")
	ErrConfiguration    = errors.New("queue monitor: configuration error")
	ErrPersistence      = errors.New("queue monitor: persistence failed")
	ErrDelivery         = errors.New("queue monitor: delivery failed")
	ErrUnknownEventKind = errors.New("queue monitor: unknown event kind")
)
