package oauth2

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	loginBaseURL = "https://login.microsoftonline.com"
	graphMeURL   = "https://graph.microsoft.com/v1.0/me"
)

// DefaultScopes covers OneDrive read access plus offline_access so a
// refresh token is issued.
var DefaultScopes = []string{
	"offline_access",
	"User.Read",
	"Files.Read.All",
}

// MicrosoftProvider implements Provider against the Microsoft identity
// platform v2.0 endpoints.
type MicrosoftProvider struct {
	config     ProviderConfig
	httpClient *http.Client
}

// NewMicrosoftProvider creates a provider for the given app registration.
// Authority is "common" for multi-tenant apps or a directory tenant id.
func NewMicrosoftProvider(cfg ProviderConfig) *MicrosoftProvider {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes
	}
	if cfg.Authority == "" {
		cfg.Authority = "common"
	}
	return &MicrosoftProvider{
		config: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (p *MicrosoftProvider) authorizeURL() string {
	return fmt.Sprintf("%s/%s/oauth2/v2.0/authorize", loginBaseURL, p.config.Authority)
}

func (p *MicrosoftProvider) tokenURL() string {
	return fmt.Sprintf("%s/%s/oauth2/v2.0/token", loginBaseURL, p.config.Authority)
}

// BuildAuthURL constructs the authorization URL with a random state.
func (p *MicrosoftProvider) BuildAuthURL(redirectURL string) (string, string, error) {
	state, err := generateState()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate state: %w", err)
	}

	params := url.Values{}
	params.Set("client_id", p.config.ClientID)
	params.Set("response_type", "code")
	params.Set("redirect_uri", redirectURL)
	params.Set("response_mode", "query")
	params.Set("scope", strings.Join(p.config.Scopes, " "))
	params.Set("state", state)

	return p.authorizeURL() + "?" + params.Encode(), state, nil
}

// ExchangeCode exchanges an authorization code for tokens.
func (p *MicrosoftProvider) ExchangeCode(ctx context.Context, code, redirectURL string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("client_id", p.config.ClientID)
	form.Set("client_secret", p.config.ClientSecret)
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", redirectURL)
	form.Set("scope", strings.Join(p.config.Scopes, " "))

	return p.requestToken(ctx, form)
}

// RefreshToken exchanges a refresh token for a new access token.
func (p *MicrosoftProvider) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	if refreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	form := url.Values{}
	form.Set("client_id", p.config.ClientID)
	form.Set("client_secret", p.config.ClientSecret)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("scope", strings.Join(p.config.Scopes, " "))

	return p.requestToken(ctx, form)
}

func (p *MicrosoftProvider) requestToken(ctx context.Context, form url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", p.tokenURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		var errResp struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			return nil, fmt.Errorf("token endpoint error %d: %s - %s", resp.StatusCode, errResp.Error, errResp.ErrorDescription)
		}
		return nil, fmt.Errorf("token endpoint error %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		TokenType    string `json:"token_type"`
		ExpiresIn    int    `json:"expires_in"`
		Scope        string `json:"scope"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}

	return &TokenResponse{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
		TokenType:    tokenResp.TokenType,
		ExpiresIn:    tokenResp.ExpiresIn,
		Scope:        tokenResp.Scope,
	}, nil
}

// GetAccountInfo retrieves the signed-in user's principal name via Graph /me.
func (p *MicrosoftProvider) GetAccountInfo(ctx context.Context, accessToken string) (*AccountInfo, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", graphMeURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("profile request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("profile request error %d: %s", resp.StatusCode, string(body))
	}

	var profile struct {
		UserPrincipalName string `json:"userPrincipalName"`
		DisplayName       string `json:"displayName"`
		Mail              string `json:"mail"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}

	upn := profile.UserPrincipalName
	if upn == "" {
		upn = profile.Mail
	}

	return &AccountInfo{
		UserPrincipalName: upn,
		DisplayName:       profile.DisplayName,
	}, nil
}

func generateState() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
