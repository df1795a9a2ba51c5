package oauth

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// GoogleIssuer is Google's OIDC issuer URL
const GoogleIssuer = "https://accounts.google.com"

// Config holds the Google OAuth client settings
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// IssuerURL overrides the issuer for tests; empty means Google.
	IssuerURL string
}

// Validate checks that the client is fully configured
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("client id is required")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("client secret is required")
	}
	if c.RedirectURL == "" {
		return fmt.Errorf("redirect url is required")
	}
	return nil
}

// Profile is the subset of identity claims the app consumes
type Profile struct {
	ExternalID    string `json:"external_id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	PhotoURL      string `json:"photo_url,omitempty"`
}

// Google performs the OIDC handshake against Google
type Google struct {
	oauth2Config *oauth2.Config
	verifier     *oidc.IDTokenVerifier
}

// NewGoogle discovers the provider and builds the OAuth client
func NewGoogle(ctx context.Context, config Config) (*Google, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid oauth config: %w", err)
	}

	issuer := config.IssuerURL
	if issuer == "" {
		issuer = GoogleIssuer
	}

	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	return &Google{
		oauth2Config: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  config.RedirectURL,
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: config.ClientID}),
	}, nil
}

// AuthCodeURL builds the authorization URL for the given state
func (g *Google) AuthCodeURL(state string) string {
	return g.oauth2Config.AuthCodeURL(state)
}

// Exchange trades the callback code for a verified profile
func (g *Google) Exchange(ctx context.Context, code string) (*Profile, error) {
	token, err := g.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("missing id_token in token response")
	}

	idToken, err := g.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify id token: %w", err)
	}

	var claims idClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}

	return profileFromClaims(idToken.Subject, claims)
}

// idClaims are the Google ID token claims we read
type idClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
}

// profileFromClaims maps verified claims onto a Profile
func profileFromClaims(subject string, claims idClaims) (*Profile, error) {
	if subject == "" {
		return nil, fmt.Errorf("missing subject in id token")
	}
	if claims.Email == "" {
		return nil, fmt.Errorf("missing email in id token")
	}

	name := claims.Name
	if name == "" {
		name = joinName(claims.GivenName, claims.FamilyName)
	}
	if name == "" {
		name = claims.Email
	}

	return &Profile{
		ExternalID:    subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          name,
		PhotoURL:      claims.Picture,
	}, nil
}

func joinName(given, family string) string {
	switch {
	case given == "":
		return family
	case family == "":
		return given
	default:
		return given + " " + family
	}
}
