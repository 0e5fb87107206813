// Package auth authenticates API callers with HS256 bearer tokens and
// carries the resulting actor on the request context.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/tesoro/internal/clock"
	"github.com/MrJamesThe3rd/tesoro/internal/http/respond"
	"github.com/MrJamesThe3rd/tesoro/internal/logger"
	"github.com/MrJamesThe3rd/tesoro/internal/user"
)

var ErrInvalidToken = errors.New("invalid token")

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   uuid.UUID
	Role user.Role
}

type Claims struct {
	Role user.Role `json:"role"`
	jwt.RegisteredClaims
}

type Authenticator struct {
	secret []byte
	clk    clock.Clock
}

func New(secret string, clk clock.Clock) *Authenticator {
	return &Authenticator{secret: []byte(secret), clk: clk}
}

// Issue signs a token for actor valid for ttl.
func (a *Authenticator) Issue(actor Actor, ttl time.Duration) (string, error) {
	now := a.clk.Now()
	claims := Claims{
		Role: actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}

	return token, nil
}

func (a *Authenticator) Parse(tokenString string) (Actor, error) {
	var claims Claims

	_, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.clk.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Actor{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil || id == uuid.Nil {
		return Actor{}, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}

	role := claims.Role
	if role == "" {
		role = user.RoleUser
	}

	return Actor{ID: id, Role: role}, nil
}

// Middleware rejects requests without a valid bearer token.
func (a *Authenticator) Middleware(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				respond.Unauthorized(w, log, "missing bearer token")
				return
			}

			actor, err := a.Parse(token)
			if err != nil {
				log.Debug("rejected token", "error", err)
				respond.Unauthorized(w, log, "invalid or expired token")

				return
			}

			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}

	return ""
}

type ctxKey struct{}

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, actor)
}

// ActorFrom returns the actor set by Middleware.
func ActorFrom(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(ctxKey{}).(Actor)
	return actor, ok
}
