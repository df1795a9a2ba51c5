package oauth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// StateCookieName carries the anti-forgery state between the login
// redirect and the provider callback
const StateCookieName = "fieldserve_oauth_state"

// ErrStateMismatch is returned when the callback state does not match
// the cookie set at login
var ErrStateMismatch = errors.New("oauth state mismatch")

// stateTTL bounds how long a login redirect stays usable
const stateTTL = 10 * time.Minute

// GenerateState returns a random state value
func GenerateState() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// SetStateCookie stores the state on the browser for the callback to
// present
func SetStateCookie(w http.ResponseWriter, state string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     StateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   int(stateTTL.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearStateCookie removes the state cookie once the callback is done
func ClearStateCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     StateCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// VerifyState compares the callback's state parameter against the
// cookie in constant time
func VerifyState(r *http.Request, state string) error {
	if state == "" {
		return ErrStateMismatch
	}

	cookie, err := r.Cookie(StateCookieName)
	if err != nil {
		return ErrStateMismatch
	}

	if subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
		return ErrStateMismatch
	}
	return nil
}
