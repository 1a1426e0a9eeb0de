// helpers_test.go

// Shared fixtures and assertions for auth handler tests.
package auth

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MGallo-Code/voiceauth/internal/apptoken"
	"github.com/MGallo-Code/voiceauth/internal/config"
	"github.com/MGallo-Code/voiceauth/internal/oauth"
	"github.com/MGallo-Code/voiceauth/internal/statetoken"
	"github.com/MGallo-Code/voiceauth/internal/testutil"
	"github.com/go-chi/chi/v5"
)

const testJWTSecret = "test-jwt-secret-at-least-32-bytes!"

// testClock is a settable clock shared by the issuer, minter and handler.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fixture is a Handler wired to mock providers and static configs.
type fixture struct {
	h      *Handler
	google *testutil.MockProvider
	apple  *testutil.MockProvider
	minter *apptoken.Minter
	clock  *testClock
	router http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := newTestClock()

	google := testutil.NewMockProvider("google", &oauth.Identity{
		ID: "g-123", Email: "x@y.com", EmailVerified: true, Name: "Xavier", Provider: "google", Source: "id_token",
	})
	apple := testutil.NewMockProvider("apple", &oauth.Identity{
		ID: "a-456", Email: "relay@privaterelay.appleid.com", EmailVerified: true, Provider: "apple", IsPrivateEmail: true, Source: "id_token",
	})

	configs := config.NewStaticRegistry(
		config.ProviderConfig{Provider: "google", Platform: "web", ClientID: "g-web"},
		config.ProviderConfig{Provider: "google", Platform: "android", ClientID: "g-android", DeepLinkScheme: "voiceapp"},
		config.ProviderConfig{Provider: "google", Platform: "ios", ClientID: "g-ios", DeepLinkScheme: "voiceapp", NativeResponse: config.NativeJSON},
		config.ProviderConfig{Provider: "apple", Platform: "web", ClientID: "a-web"},
		config.ProviderConfig{Provider: "apple", Platform: "ios", ClientID: "a-ios", DeepLinkScheme: "voiceapp"},
	)

	minter := apptoken.NewMinter([]byte(testJWTSecret), apptoken.DefaultTTL, []string{"admin@example.com"})
	minter.SetClock(clock.Now)

	h := NewHandler(configs, minter, google, apple)
	h.States["google"] = statetoken.NewIssuer([]byte("google-state-key"), statetoken.WithClock(clock.Now))
	h.States["apple"] = statetoken.NewIssuer([]byte("apple-state-key"), statetoken.WithClock(clock.Now))
	h.Now = clock.Now

	return &fixture{h: h, google: google, apple: apple, minter: minter, clock: clock, router: testRouter(h)}
}

// staticConfigs returns a registry with one config carrying redirectURI.
func staticConfigs(t *testing.T, provider, platform, redirectURI string) *config.Registry {
	t.Helper()
	return config.NewStaticRegistry(config.ProviderConfig{
		Provider: provider, Platform: platform, ClientID: provider + "-" + platform, RedirectURI: redirectURI,
	})
}

// testRouter mounts the handler the same way main does.
func testRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", h.CheckHealth)
	r.Route("/auth/{provider}", func(r chi.Router) {
		r.Get("/state", h.IssueState)
		r.Post("/state", h.IssueState)
		r.Get("/callback", h.Callback)
		r.Post("/callback", h.Callback)
		r.Post("/exchange", h.Exchange)
		r.Get("/config", h.ProviderConfig)
	})
	r.Route("/user", func(r chi.Router) {
		r.Use(h.RequireAuth)
		r.Get("/current", h.CurrentUser)
		r.Post("/logout", h.Logout)
	})
	return r
}

func (f *fixture) do(r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)
	return w
}

// issueState calls /state and returns the nonce and the state cookie.
func (f *fixture) issueState(t *testing.T, provider, query string) (string, *http.Cookie) {
	t.Helper()
	w := f.do(httptest.NewRequest(http.MethodGet, "/auth/"+provider+"/state?"+query, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("state: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp stateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("state: decoding body: %v", err)
	}
	c := findCookie(w, f.providerCookie(provider))
	if c == nil {
		t.Fatal("state: cookie not set")
	}
	return resp.State, c
}

func (f *fixture) providerCookie(provider string) string {
	return f.h.Providers[provider].StateCookieName()
}

// callbackGET builds a GET callback request with the given query and cookie.
func callbackGET(provider string, q url.Values, cookie *http.Cookie) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/auth/"+provider+"/callback?"+q.Encode(), nil)
	if cookie != nil {
		r.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
	}
	return r
}

// callbackPOST builds a form_post callback.
func callbackPOST(provider string, form url.Values, cookie *http.Cookie) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/auth/"+provider+"/callback", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != nil {
		r.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
	}
	return r
}

func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// --- Assertions ---

// assertMessage checks a plain {"message": ...} JSON response.
func assertMessage(t *testing.T, w *httptest.ResponseRecorder, status int, expectedMsg string) {
	t.Helper()
	if w.Code != status {
		t.Errorf("status: expected %d, got %d", status, w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type: expected application/json, got %q", ct)
	}
	body, _ := io.ReadAll(w.Body)
	expected := fmt.Sprintf(`{"message":"%s"}`, expectedMsg)
	if strings.TrimSpace(string(body)) != expected {
		t.Errorf("body: expected %q, got %q", expected, string(body))
	}
}

func assertBadRequest(t *testing.T, w *httptest.ResponseRecorder, expectedMsg string) {
	t.Helper()
	assertMessage(t, w, http.StatusBadRequest, expectedMsg)
}

func assertUnauthorized(t *testing.T, w *httptest.ResponseRecorder) {
	t.Helper()
	assertMessage(t, w, http.StatusUnauthorized, "unauthorized")
}

// assertHTMLResult checks an HTML result page with status and a fragment.
func assertHTMLResult(t *testing.T, w *httptest.ResponseRecorder, status int, fragment string) {
	t.Helper()
	if w.Code != status {
		t.Errorf("status: expected %d, got %d", status, w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: expected text/html, got %q", ct)
	}
	if cc := w.Header().Get("Cache-Control"); cc != "no-store" {
		t.Errorf("Cache-Control: expected no-store, got %q", cc)
	}
	if !strings.Contains(w.Body.String(), fragment) {
		t.Errorf("body: expected to contain %q, got %q", fragment, w.Body.String())
	}
}

// assertStateCookieCleared checks the provider state cookie was expired.
func assertStateCookieCleared(t *testing.T, w *httptest.ResponseRecorder, name string) {
	t.Helper()
	c := findCookie(w, name)
	if c == nil {
		t.Fatalf("%s: expected clearing cookie, none set", name)
	}
	if c.MaxAge >= 0 {
		t.Errorf("%s: expected MaxAge < 0, got %d", name, c.MaxAge)
	}
	if c.Value != "" {
		t.Errorf("%s: expected empty value, got %q", name, c.Value)
	}
}

// assertNoAuthCookie checks no application token was handed out.
func assertNoAuthCookie(t *testing.T, w *httptest.ResponseRecorder) {
	t.Helper()
	if c := findCookie(w, AuthCookieName); c != nil && c.MaxAge >= 0 {
		t.Errorf("auth_token cookie should not be set, got %q", c.Value)
	}
}

// decodeEnvelope parses a JSON login envelope.
func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) loginEnvelope {
	t.Helper()
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("Content-Type: expected application/json, got %q", ct)
	}
	var env loginEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decoding envelope: %v (body %q)", err, w.Body.String())
	}
	return env
}
