package service

import "errors"

// Sentinel kinds returned by the service. Engine and store kinds
// (bac.ErrInvalidProfile, repository.ErrNotFound, ...) pass through wrapped.
var (
	ErrNotStarted     = errors.New("service not started")
	ErrBackpressure   = errors.New("ingestion queue full")
	ErrInvalidSession = errors.New("invalid session")
	ErrInvalidRequest = errors.New("invalid request")
)
