package service

import "errors"

// Sentinel errors returned by the Service.
var (
	ErrSourceUnavailable = errors.New("frame source unavailable")
	ErrAlreadyCapturing  = errors.New("already capturing")
	ErrNotCapturing      = errors.New("not capturing")
	ErrNoCapturedFrame   = errors.New("no captured frame")
	ErrNotPersisted      = errors.New("gallery not persisted")
)
