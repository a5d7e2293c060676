package detect

import "errors"

// Sentinel errors returned by the Detector.
var (
	ErrNoFaceDetected = errors.New("no face detected")
	ErrNoImage        = errors.New("no image")
)
