package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/ecoshop/storefront/internal/platform/requestctx"
	"github.com/ecoshop/storefront/internal/services"
)

const defaultSessionCookie = "ECOSHOP_SESSION"

// SessionCookie configures the storefront session cookie.
type SessionCookie struct {
	Name   string
	Secure bool
	MaxAge time.Duration
}

func (c SessionCookie) name() string {
	if name := strings.TrimSpace(c.Name); name != "" {
		return name
	}
	return defaultSessionCookie
}

// SessionMiddleware puts a valid session id from the cookie on the request context.
// Unknown or malformed cookies are ignored; a new session is only issued when a cart
// endpoint needs one.
func SessionMiddleware(cookie SessionCookie) func(http.Handler) http.Handler {
	name := cookie.name()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if c, err := r.Cookie(name); err == nil && services.ValidSessionID(c.Value) {
				r = r.WithContext(requestctx.WithSessionID(r.Context(), c.Value))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// sessionIssuer hands out session ids lazily.
type sessionIssuer struct {
	cookie   SessionCookie
	sessions services.CartSessions
}

// ensure returns the request's session id, issuing a cookie for a new one when absent.
func (s sessionIssuer) ensure(w http.ResponseWriter, r *http.Request) string {
	if id := requestctx.SessionID(r.Context()); id != "" {
		return id
	}
	id := s.sessions.NewSessionID()
	c := &http.Cookie{
		Name:     s.cookie.name(),
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if s.cookie.MaxAge > 0 {
		c.MaxAge = int(s.cookie.MaxAge / time.Second)
	}
	http.SetCookie(w, c)
	return id
}

// current returns the session's existing cart without creating one.
func (s sessionIssuer) current(r *http.Request) (*services.CartStore, bool) {
	id := requestctx.SessionID(r.Context())
	if id == "" {
		return nil, false
	}
	return s.sessions.Peek(id)
}
