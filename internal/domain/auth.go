package domain

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type CustomClaims struct {
	UserID string `json:"user_id"`
	// OrganizationID ограничивает токен данными одной организации.
	// Пустая строка + scope "admin" = доступ ко всем организациям (консоль).
	OrganizationID string          `json:"organization_id,omitempty"`
	Scopes         map[string]bool `json:"scopes"` // "admin": true, "verify.submit": true
	jwt.RegisteredClaims
}

// Secure Token Issuing
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"` // Всегда "Bearer"
	ExpiresIn   int64  `json:"expires_in"`
}

type User struct {
	ID             string          `json:"id"`
	Username       string          `json:"username"`
	PasswordHash   string          `json:"-"` // Никогда не отправляем на фронт
	OrganizationID string          `json:"organization_id,omitempty"`
	Scopes         map[string]bool `json:"scopes"`
	CreatedAt      time.Time       `json:"created_at"`
}
