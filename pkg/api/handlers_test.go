package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/aquaops/fieldserve/pkg/auth"
	"github.com/aquaops/fieldserve/pkg/contextkeys"
	"github.com/aquaops/fieldserve/pkg/invitations"
	"github.com/aquaops/fieldserve/pkg/notify"
	"github.com/aquaops/fieldserve/pkg/observability"
	"github.com/aquaops/fieldserve/pkg/onboarding"
	"github.com/aquaops/fieldserve/pkg/orgs"
	"github.com/aquaops/fieldserve/pkg/pending"
	"github.com/aquaops/fieldserve/pkg/rbac"
)

// fakeInviteStore is an in-memory invitations.Store
type fakeInviteStore struct {
	invitations.Store

	byID      map[int64]*invitations.Invitation
	byToken   map[string]*invitations.VerificationResult
	verifyErr error
	createErr error
	cancelErr error
	accepted  []int64
	cancelled []int64
	nextID    int64
}

func newFakeInviteStore() *fakeInviteStore {
	return &fakeInviteStore{
		byID:    make(map[int64]*invitations.Invitation),
		byToken: make(map[string]*invitations.VerificationResult),
		nextID:  1,
	}
}

func (f *fakeInviteStore) Create(ctx context.Context, inv *invitations.Invitation, ttl time.Duration) error {
	if f.createErr != nil {
		return f.createErr
	}
	inv.ID = f.nextID
	f.nextID++
	inv.Token = "tok-test"
	inv.Status = invitations.StatusPending
	inv.CreatedAt = time.Now().UTC()
	inv.ExpiresAt = time.Now().UTC().Add(ttl)
	f.byID[inv.ID] = inv
	return nil
}

func (f *fakeInviteStore) Get(ctx context.Context, id int64) (*invitations.Invitation, error) {
	inv, ok := f.byID[id]
	if !ok {
		return nil, invitations.ErrNotFound
	}
	return inv, nil
}

func (f *fakeInviteStore) Verify(ctx context.Context, token string) (*invitations.VerificationResult, error) {
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	result, ok := f.byToken[token]
	if !ok {
		return nil, invitations.ErrNotFound
	}
	return result, nil
}

func (f *fakeInviteStore) MarkAccepted(ctx context.Context, id int64) error {
	f.accepted = append(f.accepted, id)
	return nil
}

func (f *fakeInviteStore) Cancel(ctx context.Context, id int64) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeInviteStore) ListByOrganization(ctx context.Context, orgID int64) ([]*invitations.Invitation, error) {
	var out []*invitations.Invitation
	for _, inv := range f.byID {
		if inv.OrganizationID == orgID {
			out = append(out, inv)
		}
	}
	return out, nil
}

// fakeOrgService is an in-memory orgs.Service; unimplemented methods
// come from the embedded nil interface and panic if reached
type fakeOrgService struct {
	orgs.Service

	byID    map[int64]*orgs.Organization
	members map[int64][]*orgs.Member
	created []*orgs.Organization
	deleted []int64
	nextID  int64
}

func newFakeOrgService() *fakeOrgService {
	return &fakeOrgService{
		byID:    make(map[int64]*orgs.Organization),
		members: make(map[int64][]*orgs.Member),
		nextID:  1,
	}
}

func (f *fakeOrgService) CreateOrganization(ctx context.Context, org *orgs.Organization) error {
	org.ID = f.nextID
	f.nextID++
	f.byID[org.ID] = org
	f.created = append(f.created, org)
	return nil
}

func (f *fakeOrgService) GetOrganization(ctx context.Context, id int64) (*orgs.Organization, error) {
	org, ok := f.byID[id]
	if !ok {
		return nil, orgs.ErrOrgNotFound
	}
	return org, nil
}

func (f *fakeOrgService) DeleteOrganization(ctx context.Context, id int64) error {
	delete(f.byID, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeOrgService) SetSubscription(ctx context.Context, orgID int64, subscriptionID string) error {
	org, ok := f.byID[orgID]
	if !ok {
		return orgs.ErrOrgNotFound
	}
	org.SubscriptionID = &subscriptionID
	return nil
}

func (f *fakeOrgService) DeactivateOrganization(ctx context.Context, id int64) error {
	org, ok := f.byID[id]
	if !ok {
		return orgs.ErrOrgNotFound
	}
	org.Active = false
	return nil
}

func (f *fakeOrgService) ListMembers(ctx context.Context, orgID int64) ([]*orgs.Member, error) {
	return f.members[orgID], nil
}

// fakeUserStore is an in-memory auth.UserStore
type fakeUserStore struct {
	auth.UserStore

	byEmail    map[string]*auth.User
	byExternal map[string]*auth.User
	createErr  error
	nextID     int64
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		byEmail:    make(map[string]*auth.User),
		byExternal: make(map[string]*auth.User),
		nextID:     1,
	}
}

func (f *fakeUserStore) add(user *auth.User) *auth.User {
	if user.ID == 0 {
		user.ID = f.nextID
		f.nextID++
	}
	f.byEmail[user.Email] = user
	if user.ExternalID != nil {
		f.byExternal[*user.ExternalID] = user
	}
	return user
}

func (f *fakeUserStore) CreateUser(ctx context.Context, user *auth.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	if _, exists := f.byEmail[user.Email]; exists {
		return auth.ErrDuplicateUser
	}
	f.add(user)
	return nil
}

func (f *fakeUserStore) GetUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	user, ok := f.byEmail[email]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	return user, nil
}

func (f *fakeUserStore) GetUserByID(ctx context.Context, id int64) (*auth.User, error) {
	for _, user := range f.byEmail {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, auth.ErrUserNotFound
}

func (f *fakeUserStore) GetUserByExternalID(ctx context.Context, externalID string) (*auth.User, error) {
	user, ok := f.byExternal[externalID]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	return user, nil
}

func (f *fakeUserStore) DeleteUser(ctx context.Context, id int64) error {
	for email, user := range f.byEmail {
		if user.ID == id {
			delete(f.byEmail, email)
		}
	}
	return nil
}

func (f *fakeUserStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	for _, user := range f.byEmail {
		if user.Username == username {
			return true, nil
		}
	}
	return false, nil
}

// fakePendingCache is an in-memory pending.Cache
type fakePendingCache struct {
	staged map[string]*pending.User
}

func newFakePendingCache() *fakePendingCache {
	return &fakePendingCache{staged: make(map[string]*pending.User)}
}

func (f *fakePendingCache) Store(ctx context.Context, user *pending.User) error {
	f.staged[user.ExternalID] = user
	return nil
}

func (f *fakePendingCache) Get(ctx context.Context, externalID string) (*pending.User, error) {
	user, ok := f.staged[externalID]
	if !ok {
		return nil, pending.ErrPendingNotFound
	}
	return user, nil
}

func (f *fakePendingCache) Remove(ctx context.Context, externalID string) error {
	delete(f.staged, externalID)
	return nil
}

// fakeMailer records invitation emails
type fakeMailer struct {
	sent []string
	err  error
}

var _ notify.Mailer = (*fakeMailer)(nil)

func (f *fakeMailer) SendInvitation(ctx context.Context, inv *invitations.Invitation, orgName string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, inv.Email)
	return nil
}

// fixture wires fakes into real handler dependencies
type fixture struct {
	users    *fakeUserStore
	invites  *fakeInviteStore
	orgs     *fakeOrgService
	pending  *fakePendingCache
	mailer   *fakeMailer
	sessions *auth.SessionManager
	checker  *rbac.Checker
	orch     *onboarding.Orchestrator
	registry *prometheus.Registry
	metrics  *observability.Metrics
	config   HandlerConfig
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	registry := prometheus.NewRegistry()
	f := &fixture{
		users:    newFakeUserStore(),
		invites:  newFakeInviteStore(),
		orgs:     newFakeOrgService(),
		pending:  newFakePendingCache(),
		mailer:   &fakeMailer{},
		sessions: auth.NewSessionManager(client, time.Hour),
		checker:  rbac.NewChecker(nil),
		registry: registry,
		metrics:  observability.NewMetrics(registry),
		config: HandlerConfig{
			InvitationTTL: 7 * 24 * time.Hour,
			SessionTTL:    time.Hour,
		},
	}
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	f.orch = onboarding.NewOrchestrator(f.pending, f.invites, f.orgs, f.users,
		f.sessions, logger, f.metrics)
	return f
}

func (f *fixture) invitationHandlers() *InvitationHandlers {
	return NewInvitationHandlers(f.invites, f.orgs, f.mailer, f.orch,
		f.checker, f.metrics, f.config)
}

func (f *fixture) oauthHandlers() *OAuthHandlers {
	return NewOAuthHandlers(nil, f.pending, f.users, f.sessions, f.orch,
		f.invites, f.metrics, f.config)
}

func (f *fixture) authHandlers() *AuthHandlers {
	return NewAuthHandlers(f.users, f.sessions, f.checker, f.config)
}

// asUser attaches an authenticated user to the request context the way
// the session middleware would
func asUser(r *http.Request, user *auth.User) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), contextkeys.UserKey, user))
}

// withOrg attaches a resolved organization the way the org context
// middleware would
func withOrg(r *http.Request, org *orgs.Organization) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), contextkeys.OrgKey, org))
}

func orgAdmin(orgID int64) *auth.User {
	return &auth.User{
		ID:             10,
		Username:       "admin",
		Email:          "admin@example.com",
		Role:           auth.RoleOrgAdmin,
		OrganizationID: &orgID,
		Active:         true,
	}
}

func sessionCookie(t *testing.T, rr *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.SessionCookieName {
			return c
		}
	}
	require.FailNow(t, "no session cookie set")
	return nil
}
