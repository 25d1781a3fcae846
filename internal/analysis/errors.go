package analysis

import (
	"errors"
	"fmt"

	"github.com/shyim/vitals-dashboard/internal/models"
)

type Kind string

const (
	KindCredentialMissing Kind = "credential_missing"
	KindCredentialInvalid Kind = "credential_invalid"
	KindNetworkOrHTTP     Kind = "network_or_http_failure"
	KindTimeout           Kind = "timeout"
	KindMalformedResponse Kind = "malformed_response"
)

var (
	ErrInvalidURL    = errors.New("invalid url")
	ErrInvalidDevice = errors.New("unsupported device type")
)

// Error classifies why a data source could not produce a report.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Surfaced reports whether the user should see this error. Missing
// credentials, network failures and malformed responses degrade silently.
func (e *Error) Surfaced() bool {
	return e.Kind == KindCredentialInvalid || e.Kind == KindTimeout
}

// UserMessage is the text shown for surfaced kinds.
func (e *Error) UserMessage(device models.Device) string {
	switch e.Kind {
	case KindCredentialInvalid:
		return "The configured API key is the placeholder value. Replace it with your actual Google PageSpeed API key to load real data."
	case KindTimeout:
		other := models.DeviceDesktop
		if device == models.DeviceDesktop {
			other = models.DeviceMobile
		}
		return fmt.Sprintf("The performance analysis timed out for %s. Try again or switch to %s analysis.", device, other)
	case KindCredentialMissing:
		return "No API key configured, showing sample data."
	case KindMalformedResponse:
		return "The performance API returned no recognizable metrics."
	default:
		return "The performance API could not be reached, showing sample data."
	}
}

// KindOf returns the classification of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
