package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bizboard/auth-server/internal/logger"
	"github.com/bizboard/auth-server/internal/model"
)

var _ model.IdentityProvider = (*Provider)(nil)

// Provider adapts an OAuth2-style identity provider: password grant for
// login, refresh_token grant for rotation, userinfo for profiles.
type Provider struct {
	baseURL      string
	clientID     string
	clientSecret string
	client       *http.Client
	logger       *logger.Logger
}

// NewProvider creates a provider adapter with a bounded HTTP timeout.
func NewProvider(baseURL, clientID, clientSecret string, timeout time.Duration, logger *logger.Logger) *Provider {
	return &Provider{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		client:       &http.Client{Timeout: timeout},
		logger:       logger,
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (p *Provider) Authenticate(ctx context.Context, creds model.Credentials) (model.TokenBundle, error) {
	form := url.Values{
		"grant_type": {"password"},
		"username":   {creds.Email},
		"password":   {creds.Password},
	}

	bundle, status, apiErr, err := p.tokenRequest(ctx, form)
	if err != nil {
		return model.TokenBundle{}, fmt.Errorf("failed to reach identity provider: %w", err)
	}
	if status != http.StatusOK {
		if status == http.StatusBadRequest || status == http.StatusUnauthorized {
			p.logger.Info("identity provider rejected login",
				"error", apiErr.Error)
			return model.TokenBundle{}, model.ErrInvalidCredentials
		}
		return model.TokenBundle{}, fmt.Errorf("identity provider returned status %d", status)
	}
	if bundle.AccessToken == "" || bundle.RefreshToken == "" {
		return model.TokenBundle{}, fmt.Errorf("identity provider returned incomplete token bundle")
	}

	return bundle, nil
}

// Rotate exchanges refresh material for a new bundle. Failures are
// classified: the caller destroys the session on expired/invalid and keeps
// it on transient.
func (p *Provider) Rotate(ctx context.Context, refreshSecret string) (model.TokenBundle, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshSecret},
	}

	bundle, status, apiErr, err := p.tokenRequest(ctx, form)
	if err != nil {
		return model.TokenBundle{}, &model.RefreshError{Kind: model.RefreshErrorTransient, Message: err.Error()}
	}

	switch {
	case status == http.StatusOK:
		if bundle.AccessToken == "" {
			return model.TokenBundle{}, &model.RefreshError{Kind: model.RefreshErrorTransient, Message: "no access token in rotation response"}
		}
		return bundle, nil
	case status >= http.StatusInternalServerError:
		return model.TokenBundle{}, &model.RefreshError{
			Kind:    model.RefreshErrorTransient,
			Message: fmt.Sprintf("identity provider returned status %d", status),
		}
	case apiErr.Error == "invalid_grant":
		if strings.Contains(strings.ToLower(apiErr.ErrorDescription), "expired") {
			return model.TokenBundle{}, &model.RefreshError{Kind: model.RefreshErrorExpired, Message: apiErr.ErrorDescription}
		}
		return model.TokenBundle{}, &model.RefreshError{Kind: model.RefreshErrorInvalid, Message: apiErr.ErrorDescription}
	default:
		return model.TokenBundle{}, &model.RefreshError{
			Kind:    model.RefreshErrorInvalid,
			Message: fmt.Sprintf("%s: %s", apiErr.Error, apiErr.ErrorDescription),
		}
	}
}

func (p *Provider) Profile(ctx context.Context, accessToken string) (model.Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/oauth2/userInfo", nil)
	if err != nil {
		return model.Profile{}, fmt.Errorf("failed to build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return model.Profile{}, fmt.Errorf("failed to fetch user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.Profile{}, fmt.Errorf("userinfo returned status %d", resp.StatusCode)
	}

	var body struct {
		Sub       string `json:"sub"`
		Email     string `json:"email"`
		Name      string `json:"name"`
		GivenName string `json:"given_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return model.Profile{}, fmt.Errorf("failed to decode user info: %w", err)
	}
	if body.Sub == "" {
		return model.Profile{}, fmt.Errorf("userinfo response missing subject")
	}

	displayName := body.Name
	if displayName == "" {
		displayName = body.GivenName
	}
	if displayName == "" && body.Email != "" {
		displayName = strings.Split(body.Email, "@")[0]
	}

	return model.Profile{
		Subject:     body.Sub,
		Email:       body.Email,
		DisplayName: displayName,
	}, nil
}

func (p *Provider) tokenRequest(ctx context.Context, form url.Values) (model.TokenBundle, int, errorResponse, error) {
	form.Set("client_id", p.clientID)
	if p.clientSecret != "" {
		form.Set("client_secret", p.clientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return model.TokenBundle{}, 0, errorResponse{}, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return model.TokenBundle{}, 0, errorResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return model.TokenBundle{}, resp.StatusCode, apiErr, nil
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return model.TokenBundle{}, resp.StatusCode, errorResponse{}, fmt.Errorf("failed to decode token response: %w", err)
	}

	return model.TokenBundle{
		AccessToken:  body.AccessToken,
		IDToken:      body.IDToken,
		RefreshToken: body.RefreshToken,
		ExpiresIn:    body.ExpiresIn,
		TokenType:    body.TokenType,
	}, resp.StatusCode, errorResponse{}, nil
}
