package auth

import (
	"crypto/rsa"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/xela07ax/veritas-trust-engine/internal/domain"
)

// Issuer, который консоль проставляет в каждый выданный токен.
// Verifier отклоняет токены других эмитентов.
const tokenIssuer = "veritas-console"

// BaseValidator проверяет RS256 токены, выданные консолью.
// Публичного ключа достаточно — verifier токены не выпускает.
type BaseValidator struct {
	publicKey *rsa.PublicKey
}

func NewBaseValidator(pubKey *rsa.PublicKey) *BaseValidator {
	return &BaseValidator{publicKey: pubKey}
}

// VerifyToken реализует интерфейс auth.TokenValidator: подпись, срок
// жизни и issuer. Возвращает claims с организацией и scopes пользователя.
func (v *BaseValidator) VerifyToken(tokenStr string) (*domain.CustomClaims, error) {
	raw := strings.TrimSpace(strings.TrimPrefix(tokenStr, "Bearer "))

	claims := &domain.CustomClaims{}
	token, err := jwt.ParseWithClaims(raw, claims,
		func(t *jwt.Token) (interface{}, error) { return v.publicKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// ParseRSAPublicKey читает PEM публичного ключа (проверка подписи).
func ParseRSAPublicKey(data []byte) (*rsa.PublicKey, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("rsa public key is not configured")
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("parse rsa public key: %w", err)
	}
	return key, nil
}

// ParseRSAPrivateKey читает PEM приватного ключа (подпись, только Console API).
func ParseRSAPrivateKey(data []byte) (*rsa.PrivateKey, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("rsa private key is not configured")
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("parse rsa private key: %w", err)
	}
	return key, nil
}
