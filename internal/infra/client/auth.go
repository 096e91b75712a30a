package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/boddenberg/fintrack-go/internal/domain"
)

// Login exchanges credentials for tokens. POST /auth/login.
func (c *Client) Login(ctx context.Context, creds domain.LoginCredentials) (*domain.AuthResult, error) {
	data, err := c.call(ctx, request{op: "auth.login", method: http.MethodPost, path: "/auth/login", body: creds})
	if err != nil {
		return nil, err
	}
	return decodeAuthResult(data)
}

// Register creates the account and returns its tokens. POST /auth/register.
func (c *Client) Register(ctx context.Context, reg domain.RegisterData) (*domain.AuthResult, error) {
	data, err := c.call(ctx, request{op: "auth.register", method: http.MethodPost, path: "/auth/register", body: reg})
	if err != nil {
		return nil, err
	}
	return decodeAuthResult(data)
}

// Me validates the stored token and returns the profile. GET /auth/me.
func (c *Client) Me(ctx context.Context) (*domain.User, error) {
	data, err := c.call(ctx, request{op: "auth.me", method: http.MethodGet, path: "/auth/me", auth: true})
	if err != nil {
		return nil, err
	}
	user, err := decodeOne[domain.User](data, "user")
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, &domain.ErrApp{Status: http.StatusOK, Message: "resposta sem usuário"}
	}
	return user, nil
}

// Logout asks the backend to invalidate the session. POST /auth/logout.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.call(ctx, request{op: "auth.logout", method: http.MethodPost, path: "/auth/logout", auth: true})
	return err
}

// Refresh trades a refresh token for a new access token. POST /auth/refresh.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (string, error) {
	body := map[string]string{"refresh_token": refreshToken}
	data, err := c.call(ctx, request{op: "auth.refresh", method: http.MethodPost, path: "/auth/refresh", body: body})
	if err != nil {
		return "", err
	}
	var res domain.RefreshResult
	if err := json.Unmarshal(data, &res); err != nil {
		return "", fmt.Errorf("decode refresh: %w", err)
	}
	if res.AccessToken == "" {
		return "", &domain.ErrAuth{Message: "Refresh token inválido"}
	}
	return res.AccessToken, nil
}

func decodeAuthResult(data json.RawMessage) (*domain.AuthResult, error) {
	var res domain.AuthResult
	if len(data) == 0 {
		return nil, &domain.ErrApp{Status: http.StatusOK, Message: "resposta sem dados"}
	}
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decode auth result: %w", err)
	}
	if access, _ := res.Tokens(); access == "" {
		return nil, &domain.ErrApp{Status: http.StatusOK, Message: "resposta sem token de acesso"}
	}
	return &res, nil
}
