package service

import "errors"

var (
	ErrBatchNotFound = errors.New("batch not found")
	ErrUnknownTarget = errors.New("target is not part of this batch")
	ErrNotRetryable  = errors.New("only failed targets can be retried")
	ErrRetryInFlight = errors.New("a retry for this target is already running")
	ErrNotEligible   = errors.New("target has no completed artifact to register")
)
