// errors_test.go
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/MGallo-Code/voiceauth/internal/apptoken"
	"github.com/MGallo-Code/voiceauth/internal/config"
	"github.com/MGallo-Code/voiceauth/internal/oauth"
	"github.com/MGallo-Code/voiceauth/internal/statetoken"
)

// failingMinter implements IdentityMinter and always fails.
type failingMinter struct{}

func (failingMinter) Mint(apptoken.Subject) (string, *apptoken.Claims, error) {
	return "", nil, errors.New("JWT secret not configured")
}

func (failingMinter) TTL() time.Duration { return time.Hour }

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantKind   ErrorKind
		wantStatus int
		wantMsg    string
	}{
		{"state mismatch", statetoken.ErrStateMismatch, KindValidation, 400, "State mismatch"},
		{"invalid state", fmt.Errorf("%w: token is expired", statetoken.ErrInvalidToken), KindValidation, 400, "Invalid/expired state token"},
		{"missing secret", statetoken.ErrMissingSecret, KindConfiguration, 500, "Server configuration error"},
		{"unknown platform", fmt.Errorf("%w: google/tv", config.ErrProviderConfigNotFound), KindConfiguration, 400, "Invalid platform"},
		{"misconfigured provider", fmt.Errorf("%w: bad key", oauth.ErrMisconfigured), KindConfiguration, 500, "Server configuration error"},
		{"upstream", &oauth.UpstreamError{Status: 401}, KindUpstream, 502, "token endpoint error"},
		{"anything else", errors.New("boom"), KindUnexpected, 500, "internal server error"},
		{"already classified", validationError(msgStateReused, nil), KindValidation, 400, "State already used"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fe := classify(tt.err)
			if fe.Kind != tt.wantKind {
				t.Errorf("kind: expected %s, got %s", tt.wantKind, fe.Kind)
			}
			if fe.Status != tt.wantStatus {
				t.Errorf("status: expected %d, got %d", tt.wantStatus, fe.Status)
			}
			if fe.Message != tt.wantMsg {
				t.Errorf("message: expected %q, got %q", tt.wantMsg, fe.Message)
			}
		})
	}

	if classify(nil) != nil {
		t.Error("classify(nil) should be nil")
	}
}

func TestFlowError_Unwrap(t *testing.T) {
	fe := upstreamError(&oauth.UpstreamError{Status: 500})
	if !errors.Is(fe, oauth.ErrTokenEndpoint) {
		t.Error("FlowError should unwrap to its cause")
	}
	if fe.Status != http.StatusBadGateway {
		t.Errorf("status: expected 502, got %d", fe.Status)
	}
}
