package auth

import (
	"context"
	"net/http"

	"github.com/xela07ax/veritas-trust-engine/internal/domain"
	"go.uber.org/zap"
)

// TokenValidator — интерфейс, который реализуют и движок верификации, и консоль
type TokenValidator interface {
	VerifyToken(tokenStr string) (*domain.CustomClaims, error)
}

// Ключи контекста (свой тип, чтобы избежать коллизий)
type ctxKey string

const (
	ctxKeyClaims ctxKey = "auth_claims"
)

func NewMiddleware(v TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := v.VerifyToken(authHeader)
			if err != nil {
				logger.Warn("auth failure", zap.Error(err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			// Прокидываем данные в контекст
			ctx := context.WithValue(r.Context(), ctxKeyClaims, claims)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ContextWithClaims кладет claims в контекст (путь мимо HTTP-middleware:
// внутренние вызовы и тесты хендлеров).
func ContextWithClaims(ctx context.Context, claims *domain.CustomClaims) context.Context {
	return context.WithValue(ctx, ctxKeyClaims, claims)
}

// ClaimsFromContext безопасно достает claims в хендлерах.
func ClaimsFromContext(ctx context.Context) *domain.CustomClaims {
	if c, ok := ctx.Value(ctxKeyClaims).(*domain.CustomClaims); ok {
		return c
	}
	return nil
}

// CanAccessOrganization проверяет, что токен имеет право на данные организации.
func CanAccessOrganization(claims *domain.CustomClaims, orgID string) bool {
	if claims == nil {
		return false
	}
	if claims.Scopes["admin"] {
		return true
	}
	return claims.OrganizationID != "" && claims.OrganizationID == orgID
}
