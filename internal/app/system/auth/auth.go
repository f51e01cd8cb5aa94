// internal/app/system/auth/auth.go

// Package auth guards the console API. There is a single operator
// credential: a password exchanged for a signed session cookie at
// POST /login, plus an optional static bearer token for non-browser
// callers like the bot host. The login screens themselves live in the
// consoles; this package only enforces the check.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	sessionName = "renewhub-session"
	operatorKey = "is_operator"
)

// ErrBadCredentials is returned by SignIn for a wrong password.
var ErrBadCredentials = errors.New("wrong password")

// Manager owns the cookie store and the operator credential.
type Manager struct {
	store        *sessions.CookieStore
	passwordHash []byte
	apiToken     string
	log          *zap.Logger
}

// NewManager builds the session manager. An empty sessionKey gets a
// volatile random key (sessions then do not survive restarts). An empty
// password disables the guard entirely, which is only sensible in local
// development; a warning is logged.
func NewManager(sessionKey, domain, password, apiToken string, secure bool, logger *zap.Logger) (*Manager, error) {
	key := []byte(sessionKey)
	if len(key) == 0 {
		key = securecookie.GenerateRandomKey(32)
		if key == nil {
			return nil, fmt.Errorf("could not generate a session key")
		}
		logger.Warn("session key not configured; using a volatile generated key")
	} else if len(key) < 32 {
		logger.Warn("session key is short; 32+ chars recommended",
			zap.Int("length", len(key)))
	}

	store := sessions.NewCookieStore(key)
	opts := &sessions.Options{
		Domain:   domain,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if secure {
		opts.SameSite = http.SameSiteNoneMode
	}
	store.Options = opts

	m := &Manager{store: store, apiToken: apiToken, log: logger}

	if password == "" {
		logger.Warn("admin password not configured; console API is unguarded")
	} else {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hashing admin password: %w", err)
		}
		m.passwordHash = hash
	}
	return m, nil
}

// Enabled reports whether the guard is active.
func (m *Manager) Enabled() bool { return m.passwordHash != nil }

// SignIn checks the password and marks the session as an operator session.
func (m *Manager) SignIn(w http.ResponseWriter, r *http.Request, password string) error {
	if !m.Enabled() {
		return nil
	}
	if err := bcrypt.CompareHashAndPassword(m.passwordHash, []byte(password)); err != nil {
		return ErrBadCredentials
	}

	sess, _ := m.store.Get(r, sessionName)
	sess.Values[operatorKey] = true
	return sess.Save(r, w)
}

// SignOut clears the operator session.
func (m *Manager) SignOut(w http.ResponseWriter, r *http.Request) error {
	sess, _ := m.store.Get(r, sessionName)
	sess.Values[operatorKey] = false
	sess.Options.MaxAge = -1
	return sess.Save(r, w)
}

// IsOperator reports whether the request carries a valid operator session
// or the configured bearer token.
func (m *Manager) IsOperator(r *http.Request) bool {
	if !m.Enabled() {
		return true
	}
	if m.apiToken != "" {
		if tok, ok := bearerToken(r); ok &&
			subtle.ConstantTimeCompare([]byte(tok), []byte(m.apiToken)) == 1 {
			return true
		}
	}
	sess, _ := m.store.Get(r, sessionName)
	isOp, _ := sess.Values[operatorKey].(bool)
	return isOp
}

// RequireOperator is middleware that rejects non-operator requests with a
// plain 401. Console callers are APIs, not browsers, so there is no
// redirect dance.
func (m *Manager) RequireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.IsOperator(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):], true
	}
	return "", false
}
