package opb

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrSDKUnavailable is returned when no API factory is configured, which is
// the Go rendition of the optional OpenPlantBook SDK being missing. Any
// external call fails immediately with it.
var ErrSDKUnavailable = errors.New("openplantbook client unavailable")

// ErrPermissionDenied is the dedicated permission-denied signal from the
// underlying API. It always classifies as an authentication failure.
var ErrPermissionDenied = errors.New("permission denied")

// AuthError marks a failure reclassified as an authentication problem. The
// caller reacts by triggering re-authentication against the parent
// credentials; the original failure is preserved for logging.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether err is, or wraps, an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// authMarkers are the error-text substrings recognized as authentication
// failures, matched case-insensitively. The list is necessarily approximate;
// it covers the messages the OpenPlantBook API and its SDK are known to emit
// and should not be expanded speculatively.
var authMarkers = []string{
	"unauthorized",
	"authentication",
	"invalid credentials",
	"access denied",
	"forbidden",
	"401",
	"403",
	"invalid api key",
	"invalid client",
	"token expired",
	"authentication failed",
	"wrong client id",
	"wrong secret",
	"no plantbook token",
	"permission denied",
	"wrong client id or secret",
	"no token available",
	"token not found",
	"invalid token",
	"expired token",
}

// classify reclassifies failures from the underlying API: the dedicated
// permission-denied signals always become AuthError, then the lowercased
// message is matched against authMarkers. Anything else propagates unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPermissionDenied) || errors.Is(err, os.ErrPermission) {
		return &AuthError{Err: err}
	}
	text := strings.ToLower(err.Error())
	for _, marker := range authMarkers {
		if strings.Contains(text, marker) {
			return &AuthError{Err: err}
		}
	}
	return err
}
