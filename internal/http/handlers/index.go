package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Index lists the public surface of the API.
func Index(version string) gin.HandlerFunc {
	endpoints := gin.H{
		"auth": gin.H{
			"register": "POST /api/auth/register",
			"login":    "POST /api/auth/login",
			"me":       "GET /api/auth/me",
			"logout":   "POST /api/auth/logout",
		},
		"users": gin.H{
			"list":           "GET /api/users (admin)",
			"get":            "GET /api/users/:id (admin)",
			"updateProfile":  "PUT /api/users/profile",
			"changePassword": "PUT /api/users/change-password",
			"changeRole":     "PUT /api/users/:id/role (admin)",
			"changeStatus":   "PUT /api/users/:id/status (admin)",
			"delete":         "DELETE /api/users/:id (admin)",
		},
		"health": gin.H{
			"server": "GET /api/health/server",
			"db":     "GET /api/health/db",
		},
		"docs": "GET /docs",
	}

	return func(ctx *gin.Context) {
		RespondOK(ctx, gin.H{
			"name":      "accounthub",
			"version":   version,
			"endpoints": endpoints,
		})
	}
}

func NoRoute(ctx *gin.Context) {
	RespondError(ctx, http.StatusNotFound, "route_not_found", "Route "+ctx.Request.Method+" "+ctx.Request.URL.Path+" not found.", nil)
}

func NoMethod(ctx *gin.Context) {
	RespondError(ctx, http.StatusMethodNotAllowed, "method_not_allowed", "Method "+ctx.Request.Method+" not allowed.", nil)
}

// Recovery keeps the JSON envelope when a handler panics.
func Recovery(ctx *gin.Context, _ any) {
	RespondInternal(ctx, "Internal server error.")
}
