package notify

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aquaops/fieldserve/pkg/auth"
	"github.com/aquaops/fieldserve/pkg/invitations"
)

func TestLogMailer_SendInvitation(t *testing.T) {
	logger, hook := logrustest.NewNullLogger()
	mailer := NewLogMailer("https://app.example.com/", logger)

	inv := &invitations.Invitation{
		ID:        5,
		Token:     "secret-token",
		Email:     "tech@example.com",
		Role:      auth.RoleTechnician,
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}
	require.NoError(t, mailer.SendInvitation(context.Background(), inv, "Blue Wave Pools"))

	require.Len(t, hook.Entries, 1)
	entry := hook.LastEntry()
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "tech@example.com", entry.Data["email"])
	assert.Equal(t, "Blue Wave Pools", entry.Data["organization"])
	assert.NotContains(t, entry.Message, "secret-token")
	assert.NotContains(t, entry.Data, "token")
}

func TestAcceptURL(t *testing.T) {
	url := AcceptURL("https://app.example.com/", "ab/cd")
	assert.Equal(t, "https://app.example.com/invitations/accept?token=ab%2Fcd", url)
}
