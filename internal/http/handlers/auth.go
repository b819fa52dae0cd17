package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/geocoder89/accounthub/internal/config"
	"github.com/geocoder89/accounthub/internal/domain/user"
	"github.com/geocoder89/accounthub/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

type Registrar interface {
	Create(ctx context.Context, name, email, plain string) (user.User, error)
}

type Authenticator interface {
	Authenticate(ctx context.Context, email, plain string) (user.User, error)
}

type TokenIssuer interface {
	Issue(userID string) (string, error)
}

type AuthMetrics interface {
	ObserveLogin(result string)
	ObserveRegistration(result string)
}

type AuthHandler struct {
	registrar Registrar
	authn     Authenticator
	tokens    TokenIssuer
	metrics   AuthMetrics
}

// metrics may be nil.
func NewAuthHandler(registrar Registrar, authn Authenticator, tokens TokenIssuer, metrics AuthMetrics) *AuthHandler {
	return &AuthHandler{
		registrar: registrar,
		authn:     authn,
		tokens:    tokens,
		metrics:   metrics,
	}
}

type authResponse struct {
	User  user.User `json:"user"`
	Token string    `json:"token"`
}

func (h *AuthHandler) Register(ctx *gin.Context) {
	var req user.RegisterRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), config.StoreTimeout)
	defer cancel()

	u, err := h.registrar.Create(cctx, req.Name, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			h.observeRegistration("email_taken")
		} else {
			h.observeRegistration("error")
		}
		RespondDomainError(ctx, err, "Could not create user.")
		return
	}
	h.observeRegistration("ok")

	token, err := h.tokens.Issue(u.ID)
	if err != nil {
		RespondDomainError(ctx, err, "Could not issue token.")
		return
	}

	RespondCreated(ctx, authResponse{User: u, Token: token})
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req user.LoginRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), config.StoreTimeout)
	defer cancel()

	u, err := h.authn.Authenticate(cctx, req.Email, req.Password)
	switch {
	case errors.Is(err, user.ErrInvalidCredentials):
		h.observeLogin("invalid_credentials")
		RespondUnauthorized(ctx, "invalid_credentials", "Invalid email or password.")
		return
	case errors.Is(err, user.ErrAccountDisabled):
		h.observeLogin("account_disabled")
		RespondUnauthorized(ctx, middlewares.CodeAccountDisabled, "Account is deactivated.")
		return
	case err != nil:
		h.observeLogin("error")
		RespondDomainError(ctx, err, "Could not log in.")
		return
	}

	token, err := h.tokens.Issue(u.ID)
	if err != nil {
		h.observeLogin("error")
		RespondDomainError(ctx, err, "Could not issue token.")
		return
	}
	h.observeLogin("ok")

	RespondOK(ctx, authResponse{User: u, Token: token})
}

func (h *AuthHandler) Me(ctx *gin.Context) {
	u, ok := middlewares.CurrentUser(ctx)
	if !ok {
		RespondUnauthorized(ctx, middlewares.CodeTokenAbsent, "Not authorized.")
		return
	}

	RespondOKWithETag(ctx, gin.H{"user": u})
}

// Logout is acknowledged only. Tokens are stateless, so the client
// discards its copy and the token stays valid until it expires.
func (h *AuthHandler) Logout(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"success": true, "message": "Logged out. Discard the token on the client."})
}

func (h *AuthHandler) observeLogin(result string) {
	if h.metrics != nil {
		h.metrics.ObserveLogin(result)
	}
}

func (h *AuthHandler) observeRegistration(result string) {
	if h.metrics != nil {
		h.metrics.ObserveRegistration(result)
	}
}
