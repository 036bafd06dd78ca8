package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")
)

// InvalidCredentialsMessage is the single message rendered for every
// authentication failure: unknown user, bad password, bad or expired OTP.
// Distinct causes are logged internally but never surfaced to the caller.
const InvalidCredentialsMessage = "invalid credentials"
