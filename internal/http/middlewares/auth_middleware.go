package middlewares

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/geocoder89/accounthub/internal/actorctx"
	"github.com/geocoder89/accounthub/internal/config"
	"github.com/geocoder89/accounthub/internal/domain/user"
	"github.com/gin-gonic/gin"
)

// Small interfaces so tests can fake them easily.
type TokenVerifier interface {
	Verify(token string) (userID string, err error)
}

type UserResolver interface {
	FindByID(ctx context.Context, id string) (user.User, error)
}

type DenialObserver interface {
	ObserveGateDenial(code string)
}

// Denial codes returned in the error envelope.
const (
	CodeTokenAbsent     = "token_absent"
	CodeTokenInvalid    = "token_invalid"
	CodeUserNotFound    = "user_not_found"
	CodeAccountDisabled = "account_disabled"
	CodeForbidden       = "forbidden"
)

// Gate authenticates callers from a bearer token and authorizes
// role-gated routes. It holds no per-request state.
type Gate struct {
	tokens TokenVerifier
	users  UserResolver
	obs    DenialObserver
}

func NewGate(tokens TokenVerifier, users UserResolver, obs DenialObserver) *Gate {
	return &Gate{tokens: tokens, users: users, obs: obs}
}

func (g *Gate) deny(c *gin.Context, status int, code, message string) {
	if g.obs != nil {
		g.obs.ObserveGateDenial(code)
	}
	abortJSON(c, status, code, message)
}

func (g *Gate) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			g.deny(c, http.StatusUnauthorized, CodeTokenAbsent, "Not authorized, token missing.")
			return
		}

		userID, err := g.tokens.Verify(raw)
		if err != nil {
			g.deny(c, http.StatusUnauthorized, CodeTokenInvalid, "Not authorized, token invalid.")
			return
		}

		lookupCtx, cancel := config.WithTimeout(c.Request.Context(), config.StoreTimeout)
		u, err := g.users.FindByID(lookupCtx, userID)
		cancel()
		switch {
		case errors.Is(err, user.ErrNotFound):
			g.deny(c, http.StatusUnauthorized, CodeUserNotFound, "User not found.")
			return
		case errors.Is(err, user.ErrStoreUnavailable):
			slog.Default().ErrorContext(c.Request.Context(), "gate: store unavailable", "err", err)
			abortJSON(c, http.StatusServiceUnavailable, "store_unavailable", "Service temporarily unavailable, try again later.")
			return
		case err != nil:
			slog.Default().ErrorContext(c.Request.Context(), "gate: resolve user", "err", err)
			abortJSON(c, http.StatusInternalServerError, "internal_error", "Could not resolve user.")
			return
		}

		if !u.IsActive {
			g.deny(c, http.StatusUnauthorized, CodeAccountDisabled, "Account is deactivated.")
			return
		}

		u.PasswordHash = ""
		c.Set(CtxUser, u)
		c.Request = c.Request.WithContext(actorctx.WithUser(c.Request.Context(), u))

		c.Next()
	}
}

// RequireRole must run after RequireAuth.
func (g *Gate) RequireRole(required user.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := CurrentUser(c)
		if !ok {
			g.deny(c, http.StatusUnauthorized, CodeTokenAbsent, "Missing identity context.")
			return
		}
		if u.Role != required {
			g.deny(c, http.StatusForbidden, CodeForbidden, "Access denied, "+required.String()+" role required.")
			return
		}
		c.Next()
	}
}

// CurrentUser returns the caller resolved by RequireAuth.
func CurrentUser(c *gin.Context) (user.User, bool) {
	v, ok := c.Get(CtxUser)
	if !ok {
		return user.User{}, false
	}
	u, ok := v.(user.User)
	return u, ok
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}

	token = strings.TrimSpace(token)
	return token, token != ""
}

func abortJSON(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success":   false,
		"code":      code,
		"message":   message,
		"requestId": c.GetString(CtxRequestID),
	})
}
