package middlewares

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/geocoder89/medledger/internal/actorctx"
	"github.com/geocoder89/medledger/internal/apperr"
	"github.com/geocoder89/medledger/internal/auth"
	"github.com/geocoder89/medledger/internal/authz"
	"github.com/gin-gonic/gin"
)

// Keep these small so tests can fake them easily.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

type ActorResolver interface {
	ResolveActor(ctx context.Context, claims *auth.Claims) (authz.Actor, error)
}

type AuthMiddleware struct {
	jwt    TokenVerifier
	actors ActorResolver
}

func NewAuthMiddleware(jwt TokenVerifier, actors ActorResolver) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwt, actors: actors}
}

func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			abortUnauthorized(c, "unauthorized", "Missing or invalid Authorization header")
			return
		}

		raw := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
		if raw == "" {
			abortUnauthorized(c, "unauthorized", "Missing or invalid access token")
			return
		}

		claims, err := m.jwt.Verify(raw)
		if err != nil {
			if errors.Is(err, auth.ErrExpired) {
				abortUnauthorized(c, "token_expired", "Access token has expired")
				return
			}
			abortUnauthorized(c, "invalid_token", "Invalid access token")
			return
		}

		actor, err := m.actors.ResolveActor(c.Request.Context(), claims)
		if err != nil {
			appErr := apperr.As(err)
			if errors.Is(appErr, apperr.ErrUnauthenticated) {
				abortUnauthorized(c, appErr.Code, appErr.Message)
				return
			}
			abortWithError(c, http.StatusInternalServerError, "internal_error", "Could not resolve identity")
			return
		}

		// Stash the actor on both contexts: gin's for handlers, the request's for logs and services.
		c.Set(CtxActor, actor)
		c.Request = c.Request.WithContext(actorctx.With(c.Request.Context(), actor))

		c.Next()
	}
}

// ActorFromContext spares handlers the magic key.
func ActorFromContext(c *gin.Context) (authz.Actor, bool) {
	v, ok := c.Get(CtxActor)
	if !ok {
		return authz.Actor{}, false
	}
	a, ok := v.(authz.Actor)
	return a, ok
}

func abortUnauthorized(c *gin.Context, code, message string) {
	abortWithError(c, http.StatusUnauthorized, code, message)
}
