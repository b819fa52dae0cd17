package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/geocoder89/accounthub/internal/domain/user"
	"github.com/geocoder89/accounthub/internal/security"
	"github.com/gin-gonic/gin"
)

// Every response carries "success". Failures add a machine-readable code,
// a human message and, for validation, the offending fields.
type APIError struct {
	Success   bool        `json:"success"`
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Errors    interface{} `json:"errors,omitempty"`
	RequestID string      `json:"requestId,omitempty"`
}

func requestIDFrom(ctx *gin.Context) string {
	if s := ctx.GetString("request_id"); s != "" {
		return s
	}

	return ctx.GetHeader("X-Request-Id")
}

func RespondOK(ctx *gin.Context, data interface{}) {
	ctx.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func RespondCreated(ctx *gin.Context, data interface{}) {
	ctx.JSON(http.StatusCreated, gin.H{"success": true, "data": data})
}

func RespondMessage(ctx *gin.Context, message string) {
	ctx.JSON(http.StatusOK, gin.H{"success": true, "message": message})
}

func RespondError(ctx *gin.Context, status int, code, message string, details interface{}) {
	ctx.AbortWithStatusJSON(status, APIError{
		Success:   false,
		Code:      code,
		Message:   message,
		Errors:    details,
		RequestID: requestIDFrom(ctx),
	})
}

func RespondBadRequest(ctx *gin.Context, code, message string, details interface{}) {
	RespondError(ctx, http.StatusBadRequest, code, message, details)
}

func RespondUnauthorized(ctx *gin.Context, code, message string) {
	RespondError(ctx, http.StatusUnauthorized, code, message, nil)
}

func RespondForbidden(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusForbidden, "forbidden", message, nil)
}

func RespondNotFound(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusNotFound, "not_found", message, nil)
}

func RespondServiceUnavailable(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusServiceUnavailable, "store_unavailable", message, nil)
}

func RespondInternal(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusInternalServerError, "internal_error", message, nil)
}

// RespondDomainError maps the user package's sentinel errors onto the HTTP
// contract. Anything unrecognized is logged and reported as a 500 without
// leaking the underlying error.
func RespondDomainError(ctx *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, user.ErrStoreUnavailable):
		slog.Default().ErrorContext(ctx.Request.Context(), "store unavailable",
			"request_id", requestIDFrom(ctx), "err", err)
		RespondServiceUnavailable(ctx, "Service temporarily unavailable, try again later.")
	case errors.Is(err, user.ErrNotFound):
		RespondNotFound(ctx, "User not found.")
	case errors.Is(err, user.ErrEmailTaken):
		RespondBadRequest(ctx, "email_taken", "A user with this email already exists.", nil)
	case errors.Is(err, user.ErrSelfAction):
		RespondBadRequest(ctx, "self_action", "You cannot perform this action on your own account.", nil)
	case errors.Is(err, user.ErrInvalidRole):
		RespondBadRequest(ctx, "invalid_role", "Role must be one of: user, admin.", nil)
	case errors.Is(err, security.ErrPasswordTooLong):
		RespondBadRequest(ctx, "validation_error", "Password is too long.", []FieldError{{
			Field:   "password",
			Rule:    "password",
			Message: validationMessage("password", ""),
		}})
	case errors.Is(err, user.ErrForbidden):
		RespondForbidden(ctx, "Admin role required.")
	default:
		slog.Default().ErrorContext(ctx.Request.Context(), fallback,
			"request_id", requestIDFrom(ctx), "err", err)
		RespondInternal(ctx, fallback)
	}
}
