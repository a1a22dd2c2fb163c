package arbiter

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Oracle failure classes.
var (
	ErrRateLimited       = errors.New("oracle rate limited")
	ErrPermissionDenied  = errors.New("oracle permission denied")
	ErrInvalidCredential = errors.New("oracle credential invalid")
	ErrModelUnavailable  = errors.New("oracle model unavailable")
	ErrOracleDisabled    = errors.New("oracle disabled")
	ErrMalformedVerdict  = errors.New("oracle verdict malformed")
)

var credentialMarkers = []string{
	"API_KEY_INVALID",
	"API_KEY_NOT_FOUND",
	"API key expired",
	"reported as leaked",
	"UNAUTHENTICATED",
}

// Classify wraps err with the failure class it belongs to. Errors that match
// no class are returned unchanged and count as transient.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if class := classOf(err); class != nil && !errors.Is(err, class) {
		return fmt.Errorf("%w: %w", class, err)
	}
	return err
}

// Permanent reports whether err disables the oracle for the process lifetime.
func Permanent(err error) bool {
	return errors.Is(err, ErrInvalidCredential) ||
		errors.Is(err, ErrPermissionDenied) ||
		errors.Is(err, ErrModelUnavailable) ||
		errors.Is(err, ErrOracleDisabled)
}

func classOf(err error) error {
	for _, sentinel := range []error{ErrRateLimited, ErrPermissionDenied, ErrInvalidCredential, ErrModelUnavailable, ErrMalformedVerdict} {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}

	msg := err.Error()
	for _, m := range credentialMarkers {
		if strings.Contains(msg, m) {
			return ErrInvalidCredential
		}
	}

	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.ResourceExhausted:
			return ErrRateLimited
		case codes.Unauthenticated:
			return ErrInvalidCredential
		case codes.PermissionDenied:
			return ErrPermissionDenied
		case codes.NotFound, codes.Unimplemented:
			return ErrModelUnavailable
		}
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusTooManyRequests:
			return ErrRateLimited
		case http.StatusUnauthorized:
			return ErrInvalidCredential
		case http.StatusForbidden:
			return ErrPermissionDenied
		case http.StatusNotFound:
			return ErrModelUnavailable
		}
	}

	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "quota"), strings.Contains(lower, "rate limit"):
		return ErrRateLimited
	case strings.Contains(msg, "PERMISSION_DENIED"):
		return ErrPermissionDenied
	case strings.Contains(msg, "is not found"), strings.Contains(msg, "not supported"):
		return ErrModelUnavailable
	}
	return nil
}
