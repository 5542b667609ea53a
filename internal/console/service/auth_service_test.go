package service

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/xela07ax/veritas-trust-engine/internal/domain"
	"github.com/xela07ax/veritas-trust-engine/internal/infra/auth"
)

type memUsers struct {
	users map[string]*domain.User
}

func (m *memUsers) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return m.users[username], nil
}

func newTestAuth(t *testing.T) (*AuthService, *auth.BaseValidator) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	repo := &memUsers{users: map[string]*domain.User{
		"auditor": {
			ID:             "u-1",
			Username:       "auditor",
			PasswordHash:   string(hash),
			OrganizationID: "org-1",
			Scopes:         map[string]bool{"rules.manage": true},
		},
	}}

	return NewAuthService(repo, key, time.Hour), auth.NewBaseValidator(&key.PublicKey)
}

// Выданный токен должен проходить проверку валидатором движка
// и нести организацию пользователя.
func TestAuthServiceIssuesVerifiableToken(t *testing.T) {
	svc, validator := newTestAuth(t)

	resp, err := svc.GenerateToken(context.Background(), "auditor", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Greater(t, resp.ExpiresIn, int64(0))

	claims, err := validator.VerifyToken("Bearer " + resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "org-1", claims.OrganizationID)
	assert.True(t, claims.Scopes["rules.manage"])
}

func TestAuthServiceWrongPassword(t *testing.T) {
	svc, _ := newTestAuth(t)

	_, err := svc.GenerateToken(context.Background(), "auditor", "wrong")
	assert.Error(t, err)
}

func TestAuthServiceUnknownUser(t *testing.T) {
	svc, _ := newTestAuth(t)

	_, err := svc.GenerateToken(context.Background(), "ghost", "s3cret")
	assert.Error(t, err)
}
