package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/NicolasHaas/portalmod/pkg/model"
)

var (
	ErrMissingToken     = errors.New("missing bearer token")
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token expired")
	ErrInvalidSignature = errors.New("invalid token signature")
)

// TokenProvider issues and validates HS256 API tokens. The subject of a
// token is the acting user's ID.
type TokenProvider struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenProvider creates a provider signing with key.
func NewTokenProvider(key []byte, issuer string, ttl time.Duration) *TokenProvider {
	return &TokenProvider{key: key, issuer: issuer, ttl: ttl, now: time.Now}
}

// GenerateToken returns a signed token for userID.
func (p *TokenProvider) GenerateToken(userID string) (string, error) {
	now := p.now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   userID,
		Issuer:    p.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken checks tokenString and returns its subject.
func (p *TokenProvider) ValidateToken(tokenString string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(p.now),
		jwt.WithExpirationRequired(),
	}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}

	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSignature
		}
		return p.key, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return "", ErrInvalidSignature
		}
		return "", ErrInvalidToken
	}
	if !token.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

type ctxKey int

const actorKey ctxKey = iota

// actorFrom returns the authenticated user stored by AuthMiddleware.
func actorFrom(ctx context.Context) (*model.UserRecord, bool) {
	u, ok := ctx.Value(actorKey).(*model.UserRecord)
	return u, ok
}

// AuthMiddleware resolves the bearer token to an acting user. Unknown users
// and app-banned users are rejected.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			s.writeError(w, r, ErrMissingToken)
			return
		}
		userID, err := s.tokens.ValidateToken(strings.TrimSpace(raw))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		actor, err := s.svc.Actor(r.Context(), userID)
		if err != nil {
			s.writeError(w, r, asAuthError(err))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey, actor)))
	})
}
