package anchor

import "errors"

var (
	ErrEnforcedPause          = errors.New("anchor: enforced pause")
	ErrExpectedPause          = errors.New("anchor: expected pause")
	ErrUnauthorized           = errors.New("anchor: unauthorized")
	ErrSignatureExpired       = errors.New("anchor: signature expired")
	ErrInvalidSignature       = errors.New("anchor: invalid signature")
	ErrInvalidSignatureFormat = errors.New("anchor: invalid signature format")
	ErrInvalidDataHash        = errors.New("anchor: invalid data hash")
	ErrRateLimitExceeded      = errors.New("anchor: rate limit exceeded")
	ErrTooSoon                = errors.New("anchor: too soon")
	ErrInvalidInput           = errors.New("anchor: invalid input")
)

// Reason maps an error to the stable code used in metrics labels and API
// responses. Unknown errors map to "internal".
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrEnforcedPause):
		return "EnforcedPause"
	case errors.Is(err, ErrExpectedPause):
		return "ExpectedPause"
	case errors.Is(err, ErrUnauthorized):
		return "Unauthorized"
	case errors.Is(err, ErrSignatureExpired):
		return "SignatureExpired"
	case errors.Is(err, ErrInvalidSignature), errors.Is(err, ErrInvalidSignatureFormat):
		return "InvalidSignature"
	case errors.Is(err, ErrInvalidDataHash):
		return "InvalidDataHash"
	case errors.Is(err, ErrRateLimitExceeded):
		return "RateLimitExceeded"
	case errors.Is(err, ErrTooSoon):
		return "TooSoon"
	case errors.Is(err, ErrInvalidInput):
		return "InvalidInput"
	default:
		return "internal"
	}
}
