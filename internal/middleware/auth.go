// Package middleware содержит HTTP middleware сервиса состояния витрины.
package middleware

import (
	"context"
	"crypto/rand"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/mmeshcher/storefront-state/internal/model"
)

type contextKey string

const identityKey contextKey = "identity"

const (
	// SessionCookieName задаёт cookie, из которой берётся токен при отсутствии заголовка Authorization.
	SessionCookieName = "session_token"
	sessionTTL        = 30 * 24 * time.Hour
)

// RoleAdmin обозначает роль, которой разрешено управлять заказами, остатками и промокодами.
const RoleAdmin = "ADMIN"

// Identity описывает аутентифицированного пользователя запроса.
type Identity struct {
	UserID string
	Role   string
}

// IdentityResolver по токену сессии возвращает идентичность пользователя.
// Любая ошибка означает отказ в аутентификации.
type IdentityResolver interface {
	Resolve(token string) (Identity, error)
}

type sessionClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWTResolver выпускает и проверяет токены сессии HS256.
type JWTResolver struct {
	secretKey []byte
	ttl       time.Duration
}

// NewJWTResolver создаёт резолвер с указанным ключом. При пустом ключе генерируется случайный.
func NewJWTResolver(secret string) *JWTResolver {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &JWTResolver{
		secretKey: key,
		ttl:       sessionTTL,
	}
}

// Issue выпускает токен сессии для пользователя.
func (j *JWTResolver) Issue(userID, role string) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secretKey)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return token, nil
}

// Resolve проверяет подпись и срок действия токена.
func (j *JWTResolver) Resolve(token string) (Identity, error) {
	var claims sessionClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return j.secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", model.ErrNotAuthenticated, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return Identity{}, model.ErrNotAuthenticated
	}

	return Identity{UserID: claims.Subject, Role: claims.Role}, nil
}

// AuthMiddleware выполняет проверку аутентификации по токену сессии
// из заголовка Authorization или cookie.
type AuthMiddleware struct {
	resolver IdentityResolver
}

// NewAuthMiddleware создаёт middleware аутентификации.
func NewAuthMiddleware(resolver IdentityResolver) *AuthMiddleware {
	return &AuthMiddleware{resolver: resolver}
}

// Middleware добавляет идентичность пользователя в контекст запроса.
// Отсутствующий и недействительный токен неразличимы для клиента.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := tokenFromRequest(r)
		if token == "" {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		identity, err := a.resolver.Resolve(token)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin пропускает только запросы с ролью ADMIN.
func (a *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		if identity.Role != RoleAdmin {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func tokenFromRequest(r *http.Request) string {
	if authz := r.Header.Get("Authorization"); authz != "" {
		parts := strings.SplitN(authz, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return ""
		}
		return strings.TrimSpace(parts[1])
	}

	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// IdentityFromContext извлекает идентичность пользователя из контекста запроса.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// GetUserIDFromContext извлекает идентификатор пользователя из контекста запроса.
func GetUserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := IdentityFromContext(ctx)
	if !ok || id.UserID == "" {
		return "", false
	}
	return id.UserID, true
}

// WithIdentity кладёт идентичность в контекст. Используется в тестах обработчиков.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

var _ IdentityResolver = (*JWTResolver)(nil)
