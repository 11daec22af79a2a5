// Package oidc implements login.Provider for any OpenID Connect issuer that
// supports discovery.
package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/ohgun/credgate/login"
	"golang.org/x/oauth2"
)

// Config configures a discovered OIDC provider.
type Config struct {
	// Name is the provider segment used in routes, e.g. "google".
	Name         string
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Scopes defaults to openid, profile and email.
	Scopes []string

	HTTPClient *http.Client
}

// Provider exchanges authorization codes and verifies the returned ID token.
type Provider struct {
	name         string
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config
	httpClient   *http.Client
}

// New runs issuer discovery and returns a Provider.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.HTTPClient != nil {
		ctx = oidc.ClientContext(ctx, cfg.HTTPClient)
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc: discover %s: %w", cfg.IssuerURL, err)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	return &Provider{
		name:     cfg.Name,
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
		},
		httpClient: cfg.HTTPClient,
	}, nil
}

func (c Config) validate() error {
	switch {
	case c.Name == "":
		return errors.New("oidc: name is required")
	case c.IssuerURL == "":
		return errors.New("oidc: issuer_url is required")
	case c.ClientID == "":
		return errors.New("oidc: client_id is required")
	case c.ClientSecret == "":
		return errors.New("oidc: client_secret is required")
	case c.RedirectURL == "":
		return errors.New("oidc: redirect_url is required")
	}
	return nil
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) AuthCodeURL(state string) string {
	return p.oauth2Config.AuthCodeURL(state)
}

type idClaims struct {
	Subject           string `json:"sub"`
	Email             string `json:"email"`
	Name              string `json:"name"`
	Nickname          string `json:"nickname"`
	PreferredUsername string `json:"preferred_username"`
	Picture           string `json:"picture"`
}

// Exchange trades code for tokens and builds the profile from the verified
// ID token claims.
func (p *Provider) Exchange(ctx context.Context, code string) (login.Profile, error) {
	if p.httpClient != nil {
		ctx = oidc.ClientContext(ctx, p.httpClient)
	}

	token, err := p.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return login.Profile{}, fmt.Errorf("oidc: token exchange: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return login.Profile{}, errors.New("oidc: missing id_token in response")
	}
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return login.Profile{}, fmt.Errorf("oidc: verify id_token: %w", err)
	}

	var claims idClaims
	if err := idToken.Claims(&claims); err != nil {
		return login.Profile{}, fmt.Errorf("oidc: parse claims: %w", err)
	}

	nickname := claims.Nickname
	if nickname == "" {
		nickname = claims.PreferredUsername
	}
	return login.Profile{
		Provider:          p.name,
		ProviderSubjectID: idToken.Subject,
		Email:             claims.Email,
		DisplayName:       claims.Name,
		Nickname:          nickname,
		AvatarURL:         claims.Picture,
	}, nil
}
