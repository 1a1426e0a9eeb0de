// exchange_handler_test.go

// unit tests for POST /auth/{provider}/exchange.
package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MGallo-Code/voiceauth/internal/oauth"
)

func exchangeReq(provider, body string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/auth/"+provider+"/exchange", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func TestExchange_RawTokens(t *testing.T) {
	f := newFixture(t)

	w := f.do(exchangeReq("google", `{"code":"abc","code_verifier":"v","redirect_uri":"com.example.app:/cb","platform":"android"}`))

	if w.Code != http.StatusOK {
		t.Fatalf("status: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var tokens oauth.TokenSet
	if err := json.Unmarshal(w.Body.Bytes(), &tokens); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if tokens.AccessToken != "mock-access-token" || tokens.IDToken != "mock-id-token" {
		t.Errorf("tokens: got %+v", tokens)
	}

	req, _ := f.google.LastExchange()
	if req.CodeVerifier != "v" || req.RedirectURI != "com.example.app:/cb" || req.Config.Platform != "android" {
		t.Errorf("exchange request: got %+v", req)
	}
	if findCookie(w, "g_oidc_state") != nil {
		t.Error("exchange must not touch the state cookie")
	}
}

func TestExchange_IssueToken(t *testing.T) {
	f := newFixture(t)

	w := f.do(exchangeReq("apple", `{"code":"abc","redirect_uri":"https://x/cb","platform":"ios","issue_token":true,"user":"{\"name\":{\"firstName\":\"Ada\"}}"}`))

	if w.Code != http.StatusOK {
		t.Fatalf("status: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	env := decodeEnvelope(t, w)
	if !env.Success || env.Data == nil {
		t.Fatalf("expected success envelope, got %+v", env)
	}
	claims, err := f.minter.Verify(env.Data.Token)
	if err != nil {
		t.Fatalf("token does not verify: %v", err)
	}
	if claims.Provider != "apple" || claims.Platform != "ios" || claims.Subject != "a-456" {
		t.Errorf("claims: got %+v", claims)
	}
	if !env.Data.UserInfo.IsPrivateEmail {
		t.Error("user_info should carry is_private_email")
	}
	if len(f.apple.ExtractHints) != 1 || !strings.Contains(f.apple.ExtractHints[0].UserBlob, "Ada") {
		t.Errorf("user blob not forwarded: %+v", f.apple.ExtractHints)
	}
}

func TestExchange_Failures(t *testing.T) {
	t.Run("missing code", func(t *testing.T) {
		f := newFixture(t)
		w := f.do(exchangeReq("google", `{"redirect_uri":"https://x/cb"}`))
		assertEnvelopeError(t, w, http.StatusBadRequest, "Missing required parameters")
	})

	t.Run("missing redirect_uri", func(t *testing.T) {
		f := newFixture(t)
		w := f.do(exchangeReq("google", `{"code":"abc"}`))
		assertEnvelopeError(t, w, http.StatusBadRequest, "Missing required parameters")
	})

	t.Run("malformed body", func(t *testing.T) {
		f := newFixture(t)
		w := f.do(exchangeReq("google", `not json`))
		assertEnvelopeError(t, w, http.StatusBadRequest, "Malformed request body")
	})

	t.Run("unknown platform", func(t *testing.T) {
		f := newFixture(t)
		w := f.do(exchangeReq("google", `{"code":"abc","redirect_uri":"https://x/cb","platform":"tv"}`))
		assertEnvelopeError(t, w, http.StatusBadRequest, "Invalid platform")
	})

	t.Run("upstream rejection", func(t *testing.T) {
		f := newFixture(t)
		f.google.ExchangeErr = &oauth.UpstreamError{Status: 401, Code: "invalid_grant"}
		w := f.do(exchangeReq("google", `{"code":"abc","redirect_uri":"https://x/cb"}`))
		assertEnvelopeError(t, w, http.StatusBadGateway, "token endpoint error")
	})

	t.Run("misconfigured provider", func(t *testing.T) {
		f := newFixture(t)
		f.apple.ExchangeErr = errors.Join(oauth.ErrMisconfigured, errors.New("reading key"))
		w := f.do(exchangeReq("apple", `{"code":"abc","redirect_uri":"https://x/cb"}`))
		assertEnvelopeError(t, w, http.StatusInternalServerError, "Server configuration error")
	})
}

func assertEnvelopeError(t *testing.T, w *httptest.ResponseRecorder, status int, msg string) {
	t.Helper()
	if w.Code != status {
		t.Errorf("status: expected %d, got %d", status, w.Code)
	}
	env := decodeEnvelope(t, w)
	if env.Success || env.Error == nil {
		t.Fatalf("expected failure envelope, got %+v", env)
	}
	if env.Error.Message != msg {
		t.Errorf("error message: expected %q, got %q", msg, env.Error.Message)
	}
	if env.Data != nil {
		t.Error("failure envelope must not carry data")
	}
}
