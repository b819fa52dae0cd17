package handlers

import (
	"context"
	"errors"

	"github.com/geocoder89/accounthub/internal/accounts"
	"github.com/geocoder89/accounthub/internal/config"
	"github.com/geocoder89/accounthub/internal/domain/user"
	"github.com/geocoder89/accounthub/internal/http/middlewares"
	"github.com/geocoder89/accounthub/internal/utils"
	"github.com/gin-gonic/gin"
)

type UserService interface {
	UpdateProfile(ctx context.Context, id string, p user.ProfileUpdate) (user.User, error)
	ChangeOwnPassword(ctx context.Context, id, current, newPlain string) error
	AsAdmin(actor user.User) (*accounts.AdminActions, error)
}

type UsersHandler struct {
	svc UserService
}

func NewUsersHandler(svc UserService) *UsersHandler {
	return &UsersHandler{svc: svc}
}

func (h *UsersHandler) caller(ctx *gin.Context) (user.User, bool) {
	u, ok := middlewares.CurrentUser(ctx)
	if !ok {
		RespondUnauthorized(ctx, middlewares.CodeTokenAbsent, "Not authorized.")
	}
	return u, ok
}

// admin resolves the caller into the admin capability. The route is
// already role-gated; this keeps the handler correct if mounted without it.
func (h *UsersHandler) admin(ctx *gin.Context) (*accounts.AdminActions, bool) {
	u, ok := h.caller(ctx)
	if !ok {
		return nil, false
	}

	actions, err := h.svc.AsAdmin(u)
	if err != nil {
		RespondDomainError(ctx, err, "Could not authorize request.")
		return nil, false
	}
	return actions, true
}

func (h *UsersHandler) UpdateProfile(ctx *gin.Context) {
	u, ok := h.caller(ctx)
	if !ok {
		return
	}

	var req user.UpdateProfileRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), config.StoreTimeout)
	defer cancel()

	updated, err := h.svc.UpdateProfile(cctx, u.ID, req.ToProfileUpdate())
	if err != nil {
		RespondDomainError(ctx, err, "Could not update profile.")
		return
	}

	RespondOK(ctx, gin.H{"user": updated})
}

func (h *UsersHandler) ChangePassword(ctx *gin.Context) {
	u, ok := h.caller(ctx)
	if !ok {
		return
	}

	var req user.ChangePasswordRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), config.StoreTimeout)
	defer cancel()

	err := h.svc.ChangeOwnPassword(cctx, u.ID, req.CurrentPassword, req.NewPassword)
	if errors.Is(err, accounts.ErrWrongCurrentPassword) {
		RespondBadRequest(ctx, "wrong_current_password", "Current password is incorrect.", nil)
		return
	}
	if err != nil {
		RespondDomainError(ctx, err, "Could not change password.")
		return
	}

	RespondMessage(ctx, "Password changed.")
}

type listUsersQuery struct {
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Cursor string `form:"cursor"`
}

func (h *UsersHandler) List(ctx *gin.Context) {
	actions, ok := h.admin(ctx)
	if !ok {
		return
	}

	var qp listUsersQuery
	if err := ctx.ShouldBindQuery(&qp); err != nil {
		RespondBadRequest(ctx, "validation_error", "Invalid query parameters.", parseBindError(err, &qp))
		return
	}

	q := user.ListQuery{Limit: qp.Limit}
	if qp.Cursor != "" {
		c, err := utils.DecodeUserCursor(qp.Cursor)
		if err != nil {
			RespondBadRequest(ctx, "invalid_cursor", "Cursor is invalid.", nil)
			return
		}
		q.After = &c
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), config.StoreTimeout)
	defer cancel()

	page, err := actions.List(cctx, q)
	if err != nil {
		RespondDomainError(ctx, err, "Could not list users.")
		return
	}

	var next *string
	if page.Next != nil {
		s, err := utils.EncodeUserCursor(*page.Next)
		if err != nil {
			RespondDomainError(ctx, err, "Could not list users.")
			return
		}
		next = &s
	}

	RespondOK(ctx, gin.H{"users": page.Users, "count": len(page.Users), "nextCursor": next})
}

func (h *UsersHandler) Get(ctx *gin.Context) {
	actions, ok := h.admin(ctx)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), config.StoreTimeout)
	defer cancel()

	u, err := actions.Get(cctx, ctx.Param("id"))
	if err != nil {
		RespondDomainError(ctx, err, "Could not load user.")
		return
	}

	RespondOKWithETag(ctx, gin.H{"user": u})
}

func (h *UsersHandler) ChangeRole(ctx *gin.Context) {
	actions, ok := h.admin(ctx)
	if !ok {
		return
	}

	var req user.ChangeRoleRequest
	if !BindJSON(ctx, &req) {
		return
	}

	role, err := user.ParseRole(req.Role)
	if err != nil {
		RespondDomainError(ctx, err, "Could not change role.")
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), config.StoreTimeout)
	defer cancel()

	u, err := actions.ChangeRole(cctx, ctx.Param("id"), role)
	if err != nil {
		RespondDomainError(ctx, err, "Could not change role.")
		return
	}

	RespondOK(ctx, gin.H{"user": u})
}

func (h *UsersHandler) ChangeStatus(ctx *gin.Context) {
	actions, ok := h.admin(ctx)
	if !ok {
		return
	}

	var req user.ChangeStatusRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), config.StoreTimeout)
	defer cancel()

	u, err := actions.SetActive(cctx, ctx.Param("id"), *req.IsActive)
	if err != nil {
		RespondDomainError(ctx, err, "Could not change status.")
		return
	}

	RespondOK(ctx, gin.H{"user": u})
}

func (h *UsersHandler) Delete(ctx *gin.Context) {
	actions, ok := h.admin(ctx)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), config.StoreTimeout)
	defer cancel()

	if err := actions.Delete(cctx, ctx.Param("id")); err != nil {
		RespondDomainError(ctx, err, "Could not delete user.")
		return
	}

	RespondMessage(ctx, "User deleted.")
}
