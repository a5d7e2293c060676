package deepface

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the client.
var (
	ErrUnavailable     = errors.New("deepface service unavailable")
	ErrInvalidResponse = errors.New("invalid deepface response")
)

// statusError is a non-2xx reply from the service.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("deepface returned status %d: %s", e.code, e.body)
}

func (e *statusError) clientError() bool {
	return e.code >= 400 && e.code < 500
}
