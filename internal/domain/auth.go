package domain

import (
	"regexp"
	"strings"
)

// ============================================================
// Auth: request / response types for /auth/*
// ============================================================

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const minPasswordLength = 6

// User is the authenticated profile returned by /auth/me.
type User struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Email     string  `json:"email"`
	Avatar    *string `json:"avatar,omitempty"`
	CreatedAt string  `json:"createdAt,omitempty"`
}

// LoginCredentials is the body for POST /auth/login.
type LoginCredentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate applies the client-side rules before the credentials are sent.
func (c *LoginCredentials) Validate() error {
	c.Email = strings.TrimSpace(c.Email)
	if !emailPattern.MatchString(c.Email) {
		return &ErrValidation{Field: "email", Message: "Email inválido"}
	}
	if len(c.Password) < minPasswordLength {
		return &ErrValidation{Field: "password", Message: "Senha deve ter pelo menos 6 caracteres"}
	}
	return nil
}

// RegisterData is the body for POST /auth/register. The backend checks the
// confirmation again.
type RegisterData struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// Validate applies the client-side rules before the data is sent.
func (d *RegisterData) Validate() error {
	d.Email = strings.TrimSpace(d.Email)
	if n := len([]rune(strings.TrimSpace(d.Name))); n < 2 || n > 50 {
		return &ErrValidation{Field: "name", Message: "Nome deve ter entre 2 e 50 caracteres"}
	}
	if !emailPattern.MatchString(d.Email) {
		return &ErrValidation{Field: "email", Message: "Email inválido"}
	}
	if len(d.Password) < minPasswordLength {
		return &ErrValidation{Field: "password", Message: "Senha deve ter pelo menos 6 caracteres"}
	}
	if d.Password != d.ConfirmPassword {
		return &ErrValidation{Field: "confirmPassword", Message: "As senhas não coincidem"}
	}
	return nil
}

// AuthResult is the data of a successful login or registration.
// The backend has sent the tokens both as access_token and as token.
type AuthResult struct {
	User         *User  `json:"user"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Token        string `json:"token,omitempty"`
	RefreshAlt   string `json:"refreshToken,omitempty"`
}

// Tokens returns the access and refresh tokens, whichever field carried them.
func (r *AuthResult) Tokens() (access, refresh string) {
	access, refresh = r.AccessToken, r.RefreshToken
	if access == "" {
		access = r.Token
	}
	if refresh == "" {
		refresh = r.RefreshAlt
	}
	return access, refresh
}

// RefreshResult is the data of POST /auth/refresh.
type RefreshResult struct {
	AccessToken string `json:"access_token"`
}
