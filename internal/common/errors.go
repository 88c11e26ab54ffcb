// Package common defines shared constants and sentinel errors used across
// smugglebox components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Sandbox errors.
	ErrForbidden = errors.New("forbidden")
	ErrNotFound  = errors.New("not found")

	// Upload framing errors, all reported to the client as bad requests.
	ErrUnsupportedContentType = errors.New("expected multipart/form-data")
	ErrMalformedMultipart     = errors.New("malformed multipart data")
	ErrMissingFilename        = errors.New("filename not provided")

	ErrInvalidKey = errors.New("invalid key")
)
