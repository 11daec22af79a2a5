// Package naver implements login.Provider for Naver Login.
package naver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ohgun/credgate/login"
	"golang.org/x/oauth2"
)

const (
	Name = "naver"

	DefaultAuthURL     = "https://nid.naver.com/oauth2.0/authorize"
	DefaultTokenURL    = "https://nid.naver.com/oauth2.0/token"
	DefaultUserInfoURL = "https://openapi.naver.com/v1/nid/me"
)

// Config configures the Naver provider. Endpoint URLs default to the public
// Naver endpoints.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	AuthURL     string
	TokenURL    string
	UserInfoURL string

	// HTTPClient is used for the token and profile calls. Nil uses http.DefaultClient.
	HTTPClient *http.Client
}

// Provider exchanges Naver authorization codes for profiles.
type Provider struct {
	oauth2Config *oauth2.Config
	userInfoURL  string
	httpClient   *http.Client
}

// New validates cfg and returns a Provider.
func New(cfg Config) (*Provider, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("naver: client_id is required")
	}
	if cfg.ClientSecret == "" {
		return nil, errors.New("naver: client_secret is required")
	}
	if cfg.RedirectURL == "" {
		return nil, errors.New("naver: redirect_url is required")
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = DefaultUserInfoURL
	}

	return &Provider{
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			RedirectURL: cfg.RedirectURL,
		},
		userInfoURL: cfg.UserInfoURL,
		httpClient:  cfg.HTTPClient,
	}, nil
}

func (p *Provider) Name() string { return Name }

// AuthCodeURL returns the Naver authorization URL for state.
func (p *Provider) AuthCodeURL(state string) string {
	return p.oauth2Config.AuthCodeURL(state)
}

type profileResponse struct {
	ResultCode string `json:"resultcode"`
	Message    string `json:"message"`
	Response   struct {
		ID           string `json:"id"`
		Email        string `json:"email"`
		Name         string `json:"name"`
		Nickname     string `json:"nickname"`
		ProfileImage string `json:"profile_image"`
	} `json:"response"`
}

// Exchange trades code for an access token and fetches the member profile.
func (p *Provider) Exchange(ctx context.Context, code string) (login.Profile, error) {
	if p.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}

	token, err := p.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return login.Profile{}, fmt.Errorf("naver: token exchange: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return login.Profile{}, err
	}
	resp, err := p.oauth2Config.Client(ctx, token).Do(req)
	if err != nil {
		return login.Profile{}, fmt.Errorf("naver: profile request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return login.Profile{}, fmt.Errorf("naver: profile request failed with status %d: %s", resp.StatusCode, body)
	}

	var out profileResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return login.Profile{}, fmt.Errorf("naver: decode profile: %w", err)
	}
	if out.ResultCode != "00" {
		return login.Profile{}, fmt.Errorf("naver: profile result %s: %s", out.ResultCode, out.Message)
	}
	if out.Response.ID == "" {
		return login.Profile{}, errors.New("naver: profile has no id")
	}

	return login.Profile{
		Provider:          Name,
		ProviderSubjectID: out.Response.ID,
		Email:             out.Response.Email,
		DisplayName:       out.Response.Name,
		Nickname:          out.Response.Nickname,
		AvatarURL:         out.Response.ProfileImage,
	}, nil
}
