package frontend

import "errors"

var (
	// ErrTargetBusy is returned when a second frontend tries to attach.
	ErrTargetBusy = errors.New("target already has a frontend attached")

	// ErrMissingContentLength is returned for a frame without a length header.
	ErrMissingContentLength = errors.New("missing Content-Length header")

	// ErrServerStarted is returned when starting a server twice.
	ErrServerStarted = errors.New("server already started")
)
