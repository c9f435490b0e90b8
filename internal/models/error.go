package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Device registration errors
	ErrInvalidQRCode             = errors.New("qr master code is not valid")
	ErrExpiredQRVersion          = errors.New("qr master code belongs to a deactivated version")
	ErrDuplicateManualIdentifier = errors.New("manual identifier already used in this branch")
	ErrMissingRegistrationFields = errors.New("required registration fields are missing")

	// Rate limiting
	ErrRateLimitExceeded = errors.New("too many failed attempts")
)
