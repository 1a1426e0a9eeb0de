// responses.go -- Package-wide HTTP response helpers.
//
// Plain JSON helpers are shared by every endpoint. Login results (success or
// failure) go through respondLogin/respondFailure, which pick the platform's
// shape: HTML page for web, deep link or JSON envelope for native apps.
package auth

import (
	"embed"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MGallo-Code/voiceauth/internal/config"
	"github.com/MGallo-Code/voiceauth/internal/oauth"
	"github.com/go-chi/render"
)

//go:embed templates/result.html
var templatesFS embed.FS

var resultPage = template.Must(template.ParseFS(templatesFS, "templates/result.html"))

type messageBody struct {
	Message string `json:"message"`
}

// writeMessage writes {"message": msg} with status.
func writeMessage(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, messageBody{Message: msg})
}

// InternalServerError logs the error and returns a generic 500 JSON response.
// Never exposes internal error details to prevent information leakage.
func InternalServerError(w http.ResponseWriter, r *http.Request, err error) {
	logError(r, "internal server error", "error", err)
	writeMessage(w, r, http.StatusInternalServerError, "internal server error")
}

// BadRequest returns a 400 JSON response with the given message.
// Use for client input validation failures.
func BadRequest(w http.ResponseWriter, r *http.Request, message string) {
	writeMessage(w, r, http.StatusBadRequest, message)
}

// Unauthorized returns a 401 JSON response with a generic message.
func Unauthorized(w http.ResponseWriter, r *http.Request, message string) {
	writeMessage(w, r, http.StatusUnauthorized, message)
}

// OK returns a 200 JSON response with the given message.
func OK(w http.ResponseWriter, r *http.Request, message string) {
	writeMessage(w, r, http.StatusOK, message)
}

// flowErrorJSON writes a FlowError as a plain message response, logging server-side causes.
func flowErrorJSON(w http.ResponseWriter, r *http.Request, fe *FlowError) {
	logFlowError(r, fe)
	writeMessage(w, r, fe.Status, fe.Message)
}

// logFlowError logs at a level matching the failure kind.
func logFlowError(r *http.Request, fe *FlowError) {
	switch fe.Kind {
	case KindValidation:
		logWarn(r, "login flow rejected", "kind", fe.Kind.String(), "reason", fe.Message, "error", fe.Err)
	case KindUpstream:
		logWarn(r, "login flow upstream failure", "kind", fe.Kind.String(), "error", fe.Err)
	case KindUnexpected:
		logError(r, "login flow failed", "severity", "critical", "kind", fe.Kind.String(), "error", fe.Err)
	default:
		logError(r, "login flow failed", "kind", fe.Kind.String(), "status", fe.Status, "error", fe.Err)
	}
}

// --- Login result shapes ---

type responseShape int

const (
	shapeHTML responseShape = iota
	shapeJSON
	shapeDeepLink
)

// selectShape picks the response shape. platform is "" until the state token
// has been verified; the Accept header decides in that window.
func selectShape(r *http.Request, platform string, cfg *config.ProviderConfig) responseShape {
	switch {
	case platform == "":
		if render.GetAcceptedContentType(r) == render.ContentTypeJSON {
			return shapeJSON
		}
		return shapeHTML
	case platform == "web":
		return shapeHTML
	case cfg != nil && cfg.UseDeepLink():
		return shapeDeepLink
	default:
		return shapeJSON
	}
}

// UserInfo is the identity as returned to clients.
type UserInfo struct {
	oauth.Identity
	Platform  string `json:"platform"`
	Namespace string `json:"va-dir,omitempty"`
	IsAdmin   bool   `json:"isAdmin"`
}

type loginData struct {
	UserInfo   UserInfo   `json:"user_info"`
	Token      string     `json:"token"`
	Timestamp  string     `json:"timestamp"`
	Provider   string     `json:"provider"`
	ClientInfo ClientInfo `json:"client_info"`
}

type errorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// loginEnvelope is the JSON body for both outcomes, so clients parse one shape.
type loginEnvelope struct {
	Success   bool         `json:"success"`
	Data      *loginData   `json:"data,omitempty"`
	Error     *errorDetail `json:"error,omitempty"`
	Provider  string       `json:"provider,omitempty"`
	Timestamp string       `json:"timestamp,omitempty"`
}

// pageResult is what the HTML page exposes to its script as window.authResult.
type pageResult struct {
	Success  bool      `json:"success"`
	Token    string    `json:"token,omitempty"`
	Provider string    `json:"provider,omitempty"`
	Platform string    `json:"platform,omitempty"`
	UserInfo *UserInfo `json:"user_info,omitempty"`
	Error    string    `json:"error,omitempty"`
}

type pageData struct {
	Title     string
	Message   string
	Result    pageResult
	ReturnURL string
}

func userInfoFor(l *Login) UserInfo {
	return UserInfo{
		Identity:  *l.Identity,
		Platform:  l.Platform,
		Namespace: l.Claims.Namespace,
		IsAdmin:   l.Claims.IsAdmin,
	}
}

// respondLogin renders a successful login in the platform's shape.
func (h *Handler) respondLogin(w http.ResponseWriter, r *http.Request, l *Login, cfg *config.ProviderConfig) {
	info := buildClientInfo(l.Platform, l.Provider, l.Identity.Name)
	ui := userInfoFor(l)

	switch selectShape(r, l.Platform, cfg) {
	case shapeDeepLink:
		q := url.Values{}
		q.Set("success", "true")
		q.Set("token", l.Token)
		q.Set("provider", l.Provider)
		q.Set("name", l.Identity.Name)
		q.Set("va_dir", l.Claims.Namespace)
		http.Redirect(w, r, deepLink(cfg.DeepLinkScheme, q), http.StatusFound)

	case shapeJSON:
		writeLoginJSON(w, r, l)

	default:
		h.setAuthCookie(w, l.Token, h.Minter.TTL())
		writePage(w, r, http.StatusOK, pageData{
			Title:   info.Title,
			Message: info.Heading,
			Result: pageResult{
				Success:  true,
				Token:    l.Token,
				Provider: l.Provider,
				Platform: l.Platform,
				UserInfo: &ui,
			},
			ReturnURL: safeReturnURL(l.ReturnURL),
		})
	}
}

// respondFailure renders fe in the same shape a success would have used.
func (h *Handler) respondFailure(w http.ResponseWriter, r *http.Request, provider, platform string, cfg *config.ProviderConfig, fe *FlowError) {
	logFlowError(r, fe)

	switch selectShape(r, platform, cfg) {
	case shapeDeepLink:
		q := url.Values{}
		q.Set("success", "false")
		q.Set("error", fe.Message)
		q.Set("provider", provider)
		http.Redirect(w, r, deepLink(cfg.DeepLinkScheme, q), http.StatusFound)

	case shapeJSON:
		h.writeFailureJSON(w, r, provider, fe)

	default:
		writePage(w, r, fe.Status, pageData{
			Title:   "Authentication Failed",
			Message: fe.Message,
			Result: pageResult{
				Success:  false,
				Provider: provider,
				Platform: platform,
				Error:    fe.Message,
			},
		})
	}
}

func writeLoginJSON(w http.ResponseWriter, r *http.Request, l *Login) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, loginEnvelope{
		Success: true,
		Data: &loginData{
			UserInfo:   userInfoFor(l),
			Token:      l.Token,
			Timestamp:  l.IssuedAt.UTC().Format(time.RFC3339),
			Provider:   l.Provider,
			ClientInfo: buildClientInfo(l.Platform, l.Provider, l.Identity.Name),
		},
	})
}

func (h *Handler) writeFailureJSON(w http.ResponseWriter, r *http.Request, provider string, fe *FlowError) {
	render.Status(r, fe.Status)
	render.JSON(w, r, loginEnvelope{
		Success:   false,
		Error:     &errorDetail{Type: fe.Kind.String(), Message: fe.Message},
		Provider:  provider,
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}

func writePage(w http.ResponseWriter, r *http.Request, status int, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := resultPage.Execute(w, data); err != nil {
		logError(r, "rendering result page", "error", err)
	}
}

func deepLink(scheme string, q url.Values) string {
	return scheme + "://auth/callback?" + q.Encode()
}

// safeReturnURL allows same-origin absolute paths only.
func safeReturnURL(u string) string {
	if !strings.HasPrefix(u, "/") || strings.HasPrefix(u, "//") || strings.HasPrefix(u, "/\\") {
		return ""
	}
	return u
}
