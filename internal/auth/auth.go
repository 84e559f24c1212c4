package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"tenantgate/internal/config"

	"github.com/coreos/go-oidc"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const (
	stateCookie   = "oauthstate"
	idTokenCookie = "id_token"

	// SessionHeader lets API clients without cookies pin a session.
	SessionHeader = "X-Session-ID"

	devSubject = "dev-user"
	devEmail   = "dev@localhost"
)

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Identity is the authenticated caller of a request.
type Identity struct {
	Subject   string
	Email     string
	SessionID string
}

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity stored by RequireAuth.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok && id.Subject != ""
}

// Auth contains configuration and helpers for performing OpenID Connect
// authentication against the configured issuer.
type Auth struct {
	oauth2Config  *oauth2.Config
	verifier      *oidc.IDTokenVerifier
	apiVerifier   *oidc.IDTokenVerifier
	logger        Logger
	sessionCookie string
	authBypass    bool

	// OnLogout runs before the session cookie is cleared.
	OnLogout func(sessionID string)
}

// New creates a new Auth object using values from the application
// configuration. Outside the DEV bypass it connects to the issuer and prepares
// the ID token verifiers.
func New(ctx context.Context, cfg *config.Config, logger Logger) (*Auth, error) {
	shouldBypass := cfg.IsDev() && cfg.DevModeBypass

	a := &Auth{
		logger:        logger,
		sessionCookie: cfg.Session.CookieName,
		authBypass:    shouldBypass,
	}
	if a.sessionCookie == "" {
		a.sessionCookie = "tg_session"
	}
	if shouldBypass {
		return a, nil
	}

	if cfg.Auth.OktaDomain == "" || cfg.Auth.ClientID == "" ||
		cfg.Auth.ClientSecret == "" || cfg.Auth.RedirectURL == "" {
		return nil, errors.New("auth configuration is incomplete")
	}

	provider, err := oidc.NewProvider(ctx, cfg.Auth.OktaDomain)
	if err != nil {
		return nil, err
	}

	a.oauth2Config = &oauth2.Config{
		ClientID:     cfg.Auth.ClientID,
		ClientSecret: cfg.Auth.ClientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  cfg.Auth.RedirectURL,
		Scopes:       LoginScopes,
	}
	a.verifier = provider.Verifier(&oidc.Config{ClientID: cfg.Auth.ClientID})
	// Access tokens carry the API audience, not the client id.
	a.apiVerifier = provider.Verifier(&oidc.Config{SkipClientIDCheck: true})

	return a, nil
}

// Bypass reports whether requests are authenticated as the dev user.
func (a *Auth) Bypass() bool {
	return a.authBypass
}

// LoginHandler initiates the OAuth2 authorization code flow. A random state
// value is stored in a cookie to mitigate CSRF attacks.
func (a *Auth) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if a.authBypass {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	state, err := generateState()
	if err != nil {
		http.Error(w, "failed to generate state", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		HttpOnly: true,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, a.oauth2Config.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// CallbackHandler verifies the state parameter, exchanges the code for tokens,
// validates the ID token and stores it in a cookie.
func (a *Auth) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	if a.authBypass {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	cookie, err := r.Cookie(stateCookie)
	if err != nil || r.URL.Query().Get("state") != cookie.Value {
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}

	token, err := a.oauth2Config.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		a.logError("token exchange failed", "error", err)
		http.Error(w, "token exchange failed", http.StatusInternalServerError)
		return
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		http.Error(w, "no id_token in token response", http.StatusInternalServerError)
		return
	}

	if _, err := a.verifier.Verify(r.Context(), rawIDToken); err != nil {
		http.Error(w, "failed to verify id token", http.StatusUnauthorized)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     idTokenCookie,
		Value:    rawIDToken,
		HttpOnly: true,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	})
	// a fresh login starts a fresh session
	a.setSessionCookie(w, uuid.NewString())

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// RequireAuth is middleware that authenticates the caller from a bearer token
// or the ID token cookie and stores the Identity in the request context.
// Browsers without a cookie are sent to /login; other clients get a 401.
func (a *Auth) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id Identity

		if a.authBypass {
			id = Identity{Subject: devSubject, Email: devEmail}
		} else {
			var token *oidc.IDToken
			var err error

			if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
				token, err = a.apiVerifier.Verify(r.Context(), strings.TrimPrefix(authHeader, "Bearer "))
			} else {
				cookie, cerr := r.Cookie(idTokenCookie)
				if cerr != nil {
					if wantsHTML(r) {
						http.Redirect(w, r, "/login", http.StatusSeeOther)
						return
					}
					http.Error(w, "authentication required", http.StatusUnauthorized)
					return
				}
				token, err = a.verifier.Verify(r.Context(), cookie.Value)
			}
			if err != nil {
				a.logDebug("token rejected", "error", err)
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			var claims struct {
				Email string `json:"email"`
			}
			if err := token.Claims(&claims); err != nil {
				http.Error(w, "failed to parse token claims", http.StatusUnauthorized)
				return
			}
			id = Identity{Subject: token.Subject, Email: claims.Email}
		}

		if id.Subject == "" {
			http.Error(w, "token has no subject", http.StatusUnauthorized)
			return
		}
		id.SessionID = a.sessionID(w, r, id.Subject)

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// sessionID picks the session of a request: the session cookie, then the
// session header, then one session per subject. Cookie-less browsers get a
// new cookie.
func (a *Auth) sessionID(w http.ResponseWriter, r *http.Request, subject string) string {
	if c, err := r.Cookie(a.sessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	if h := strings.TrimSpace(r.Header.Get(SessionHeader)); h != "" {
		return h
	}
	if strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		return "sub:" + subject
	}
	sid := uuid.NewString()
	a.setSessionCookie(w, sid)
	return sid
}

func (a *Auth) setSessionCookie(w http.ResponseWriter, sid string) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.sessionCookie,
		Value:    sid,
		HttpOnly: true,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	})
}

// LogoutHandler ends the session, clears the auth cookies and redirects to the
// home page.
func (a *Auth) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(a.sessionCookie); err == nil && c.Value != "" && a.OnLogout != nil {
		a.OnLogout(c.Value)
	}
	for _, name := range []string{idTokenCookie, a.sessionCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:   name,
			Value:  "",
			Path:   "/",
			MaxAge: -1,
		})
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func (a *Auth) logDebug(msg string, args ...any) {
	if a.logger != nil {
		a.logger.Debug(msg, args...)
	}
}

func (a *Auth) logError(msg string, args ...any) {
	if a.logger != nil {
		a.logger.Error(msg, args...)
	}
}

func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
