// mocks.go
//
// Shared in-memory implementations of the auth capability interfaces.
// Imported by test files across packages to avoid duplicate mock definitions.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/MGallo-Code/voiceauth/internal/config"
	"github.com/MGallo-Code/voiceauth/internal/oauth"
	"github.com/MGallo-Code/voiceauth/internal/store"
)

// MockProvider implements oauth.Provider.
// Set Tokens/Identity for the happy path; *Err fields inject failures.
// PanicOn makes Exchange or ExtractIdentity panic ("exchange" | "extract").
type MockProvider struct {
	ProviderName string
	CookieName   string

	Tokens      *oauth.TokenSet
	ExchangeErr error
	Identity    *oauth.Identity
	ExtractErr  error
	PanicOn     string

	mu            sync.Mutex
	ExchangeCalls []oauth.ExchangeRequest
	ExtractHints  []oauth.IdentityHints
}

// NewMockProvider returns a provider that exchanges any code for an access
// token and extracts identity.
func NewMockProvider(name string, identity *oauth.Identity) *MockProvider {
	return &MockProvider{
		ProviderName: name,
		CookieName:   name[:1] + "_oidc_state",
		Tokens:       &oauth.TokenSet{AccessToken: "mock-access-token", TokenType: "Bearer", IDToken: "mock-id-token"},
		Identity:     identity,
	}
}

func (m *MockProvider) Name() string            { return m.ProviderName }
func (m *MockProvider) StateCookieName() string { return m.CookieName }

func (m *MockProvider) Exchange(_ context.Context, req oauth.ExchangeRequest) (*oauth.TokenSet, error) {
	m.mu.Lock()
	m.ExchangeCalls = append(m.ExchangeCalls, req)
	m.mu.Unlock()
	if m.PanicOn == "exchange" {
		panic("mock exchange panic")
	}
	if m.ExchangeErr != nil {
		return nil, m.ExchangeErr
	}
	return m.Tokens, nil
}

func (m *MockProvider) ExtractIdentity(_ context.Context, _ *oauth.TokenSet, _ config.ProviderConfig, hints oauth.IdentityHints) (*oauth.Identity, error) {
	m.mu.Lock()
	m.ExtractHints = append(m.ExtractHints, hints)
	m.mu.Unlock()
	if m.PanicOn == "extract" {
		panic("mock extract panic")
	}
	if m.ExtractErr != nil {
		return nil, m.ExtractErr
	}
	if m.Identity == nil {
		return nil, oauth.ErrNoIdentity
	}
	id := *m.Identity
	return &id, nil
}

// LastExchange returns the most recent exchange request and whether one happened.
func (m *MockProvider) LastExchange() (oauth.ExchangeRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.ExchangeCalls) == 0 {
		return oauth.ExchangeRequest{}, false
	}
	return m.ExchangeCalls[len(m.ExchangeCalls)-1], true
}

// MockRecorder implements auth.IdentityRecorder and signals each call on Done.
type MockRecorder struct {
	Err  error
	Done chan store.LoginEvent

	mu     sync.Mutex
	Events []store.LoginEvent
}

// NewMockRecorder returns a recorder whose Done channel buffers n events.
func NewMockRecorder(n int) *MockRecorder {
	return &MockRecorder{Done: make(chan store.LoginEvent, n)}
}

func (m *MockRecorder) RecordLogin(_ context.Context, ev store.LoginEvent) error {
	m.mu.Lock()
	m.Events = append(m.Events, ev)
	m.mu.Unlock()
	if m.Done != nil {
		select {
		case m.Done <- ev:
		default:
		}
	}
	return m.Err
}

// Wait returns the next recorded event or false after timeout.
func (m *MockRecorder) Wait(timeout time.Duration) (store.LoginEvent, bool) {
	select {
	case ev := <-m.Done:
		return ev, true
	case <-time.After(timeout):
		return store.LoginEvent{}, false
	}
}

// MockReplayGuard implements auth.ReplayGuard with an in-memory set.
type MockReplayGuard struct {
	Err error

	mu   sync.Mutex
	used map[string]time.Duration
}

func NewMockReplayGuard() *MockReplayGuard {
	return &MockReplayGuard{used: make(map[string]time.Duration)}
}

func (m *MockReplayGuard) Consume(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if m.Err != nil {
		return false, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.used[key]; ok {
		return false, nil
	}
	m.used[key] = ttl
	return true, nil
}

// TTL returns the ttl recorded for key.
func (m *MockReplayGuard) TTL(key string) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ttl, ok := m.used[key]
	return ttl, ok
}

// MockHealth implements auth.HealthChecker.
type MockHealth struct {
	Err error
}

func (m MockHealth) CheckHealth(context.Context) error { return m.Err }
