// errors.go -- Login flow error taxonomy.
//
// Flow steps return *FlowError values instead of writing responses; the HTTP
// handlers turn them into the platform's response shape at the very end.
package auth

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/MGallo-Code/voiceauth/internal/config"
	"github.com/MGallo-Code/voiceauth/internal/oauth"
	"github.com/MGallo-Code/voiceauth/internal/statetoken"
)

// ErrorKind classifies a flow failure.
type ErrorKind int

const (
	KindValidation ErrorKind = iota + 1
	KindConfiguration
	KindUpstream
	KindUnexpected
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindConfiguration:
		return "configuration_error"
	case KindUpstream:
		return "upstream_error"
	default:
		return "unexpected_error"
	}
}

// FlowError is the failure result of a login flow.
// Message is safe to show clients; Err is for logs only.
type FlowError struct {
	Kind    ErrorKind
	Status  int
	Message string
	Err     error
}

func (e *FlowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *FlowError) Unwrap() error { return e.Err }

func validationError(msg string, err error) *FlowError {
	return &FlowError{Kind: KindValidation, Status: http.StatusBadRequest, Message: msg, Err: err}
}

// configurationError uses 400 for caller-fixable problems and 500 for server ones.
func configurationError(status int, msg string, err error) *FlowError {
	return &FlowError{Kind: KindConfiguration, Status: status, Message: msg, Err: err}
}

func upstreamError(err error) *FlowError {
	return &FlowError{Kind: KindUpstream, Status: http.StatusBadGateway, Message: "token endpoint error", Err: err}
}

func unexpectedError(err error) *FlowError {
	return &FlowError{Kind: KindUnexpected, Status: http.StatusInternalServerError, Message: "internal server error", Err: err}
}

// Client-facing messages.
const (
	msgMissingParams     = "Missing required parameters"
	msgMissingCookie     = "Missing state cookie"
	msgInvalidState      = "Invalid/expired state token"
	msgStateMismatch     = "State mismatch"
	msgStateReused       = "State already used"
	msgInvalidPlatform   = "Invalid platform"
	msgUnsupported       = "Unsupported provider"
	msgProviderDenied    = "Authorization denied by provider"
	msgServerMisconfig   = "Server configuration error"
	msgMalformedJSONBody = "Malformed request body"
)

// classify maps any error from a flow step onto the taxonomy.
func classify(err error) *FlowError {
	var fe *FlowError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &fe):
		return fe
	case errors.Is(err, statetoken.ErrStateMismatch):
		return validationError(msgStateMismatch, err)
	case errors.Is(err, statetoken.ErrInvalidToken):
		return validationError(msgInvalidState, err)
	case errors.Is(err, statetoken.ErrMissingSecret):
		return configurationError(http.StatusInternalServerError, msgServerMisconfig, err)
	case errors.Is(err, config.ErrProviderConfigNotFound):
		return configurationError(http.StatusBadRequest, msgInvalidPlatform, err)
	case errors.Is(err, oauth.ErrMisconfigured):
		return configurationError(http.StatusInternalServerError, msgServerMisconfig, err)
	case errors.Is(err, oauth.ErrTokenEndpoint):
		return upstreamError(err)
	default:
		return unexpectedError(err)
	}
}
