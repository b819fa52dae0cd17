package http

import (
	"github.com/geocoder89/accounthub/internal/accounts"
	"github.com/geocoder89/accounthub/internal/auth"
	"github.com/geocoder89/accounthub/internal/domain/user"
	"github.com/geocoder89/accounthub/internal/http/handlers"
	"github.com/geocoder89/accounthub/internal/http/middlewares"
	"github.com/geocoder89/accounthub/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

type RouterDeps struct {
	Env          string
	ServiceName  string
	Version      string
	CORSOrigins  []string
	MaxBodyBytes int64
	Tracing      bool

	Accounts *accounts.Service
	Tokens   *auth.Manager
	Health   *handlers.HealthHandler

	// Prom and Gatherer are optional; without them /metrics is not mounted.
	Prom     *observability.Prom
	Gatherer prometheus.Gatherer
}

func NewRouter(d RouterDeps) *gin.Engine {
	if d.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	handlers.RegisterValidators()

	r := gin.New()
	r.HandleMethodNotAllowed = true

	r.Use(gin.CustomRecovery(handlers.Recovery))
	if d.Tracing {
		r.Use(otelgin.Middleware(d.ServiceName))
	}
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger())
	if d.Prom != nil {
		r.Use(d.Prom.GinHandleMiddleware())
	}
	r.Use(middlewares.SecurityHeaders(d.Env == "prod"))
	r.Use(middlewares.CORS(d.CORSOrigins))
	r.Use(middlewares.MaxBodyBytes(d.MaxBodyBytes))
	r.Use(middlewares.RequireJSON())

	r.NoRoute(handlers.NoRoute)
	r.NoMethod(handlers.NoMethod)

	r.GET("/", handlers.Index(d.Version))
	r.GET("/healthz", d.Health.Healthz)
	r.GET("/readyz", d.Health.Readyz)
	r.GET("/docs", handlers.SwaggerUI)
	r.GET("/docs/openapi.yaml", handlers.OpenAPISpec)
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	// a nil *Prom satisfies the observer interfaces as a no-op
	gate := middlewares.NewGate(d.Tokens, d.Accounts, d.Prom)
	authH := handlers.NewAuthHandler(d.Accounts, d.Accounts, d.Tokens, d.Prom)
	usersH := handlers.NewUsersHandler(d.Accounts)

	api := r.Group("/api")

	health := api.Group("/health")
	health.GET("/server", d.Health.Server)
	health.GET("/db", d.Health.DB)

	authG := api.Group("/auth")
	authG.POST("/register", authH.Register)
	authG.POST("/login", authH.Login)
	authG.GET("/me", gate.RequireAuth(), authH.Me)
	authG.POST("/logout", gate.RequireAuth(), authH.Logout)

	users := api.Group("/users", gate.RequireAuth())
	users.PUT("/profile", usersH.UpdateProfile)
	users.PUT("/change-password", usersH.ChangePassword)

	admin := users.Group("", gate.RequireRole(user.RoleAdmin))
	admin.GET("", usersH.List)
	admin.GET("/:id", usersH.Get)
	admin.PUT("/:id/role", usersH.ChangeRole)
	admin.PUT("/:id/status", usersH.ChangeStatus)
	admin.DELETE("/:id", usersH.Delete)

	return r
}
