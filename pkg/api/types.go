package api

import (
	"net/http"
	"time"

	"github.com/aquaops/fieldserve/pkg/auth"
	"github.com/aquaops/fieldserve/pkg/invitations"
)

// invitationView is the wire shape of an invitation in responses. The
// token is never included; it travels only in the invite email.
type invitationView struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func viewInvitation(inv *invitations.Invitation) invitationView {
	return invitationView{
		ID:        inv.ID,
		Email:     inv.Email,
		Name:      inv.Name,
		Role:      string(inv.Role),
		Status:    string(inv.Status),
		CreatedAt: inv.CreatedAt,
		ExpiresAt: inv.ExpiresAt,
	}
}

// verificationView is what a valid token resolves to on the wire
type verificationView struct {
	InvitationID int64     `json:"invitationId"`
	Name         string    `json:"name,omitempty"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	Organization string    `json:"organization"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

func viewVerification(v *invitations.VerificationResult) verificationView {
	return verificationView{
		InvitationID: v.InvitationID,
		Name:         v.Name,
		Email:        v.Email,
		Role:         string(v.Role),
		Organization: v.OrganizationName,
		ExpiresAt:    v.ExpiresAt,
	}
}

// setSessionCookie installs the session token on the browser
func setSessionCookie(w http.ResponseWriter, session *auth.Session, secure bool, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    session.Token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie logs the browser out
func clearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
