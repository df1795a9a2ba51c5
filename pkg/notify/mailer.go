package notify

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/aquaops/fieldserve/pkg/invitations"
)

// Mailer delivers transactional email
type Mailer interface {
	SendInvitation(ctx context.Context, inv *invitations.Invitation, orgName string) error
}

// LogMailer is a Mailer that records sends instead of delivering them.
// Used in development and as the fallback when no provider is
// configured.
type LogMailer struct {
	baseURL string
	logger  *logrus.Logger
}

// NewLogMailer creates a LogMailer. baseURL is the public address the
// accept link is built against.
func NewLogMailer(baseURL string, logger *logrus.Logger) *LogMailer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogMailer{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// SendInvitation logs the invitation instead of emailing it. The token
// itself is not logged; the accept URL is reconstructable by the
// recipient only.
func (m *LogMailer) SendInvitation(_ context.Context, inv *invitations.Invitation, orgName string) error {
	m.logger.WithFields(logrus.Fields{
		"invitation_id": inv.ID,
		"email":         inv.Email,
		"role":          string(inv.Role),
		"organization":  orgName,
		"expires_at":    inv.ExpiresAt,
	}).Info("invitation email suppressed, no mail provider configured")
	return nil
}

// AcceptURL builds the link an invitation email points at
func AcceptURL(baseURL, token string) string {
	return fmt.Sprintf("%s/invitations/accept?token=%s",
		strings.TrimSuffix(baseURL, "/"), url.QueryEscape(token))
}
