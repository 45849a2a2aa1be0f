package main

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"

	"github.com/inkwell/inkwell-api/internal/admin"
	"github.com/inkwell/inkwell-api/internal/database"
	"github.com/inkwell/inkwell-api/internal/events"
	"github.com/inkwell/inkwell-api/internal/handlers"
	"github.com/inkwell/inkwell-api/internal/middleware"
	"github.com/inkwell/inkwell-api/internal/ratelimit"
)

const serviceName = "inkwell-api"

type routerDeps struct {
	log        *zap.Logger
	limiter    *ratelimit.Limiter
	gate       *admin.Gate
	resolver   middleware.UserResolver
	posts      database.PostSearcher
	health     *handlers.HealthChecker
	flood      *middleware.FloodGuard
	publisher  events.Publisher
	trustProxy bool
	enableHSTS bool
	frontend   string
	tracing    bool
}

func newRouter(d routerDeps) http.Handler {
	r := mux.NewRouter()

	// Registration order is execution order: the first Use is outermost.
	if d.tracing {
		r.Use(otelmux.Middleware(serviceName))
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(d.log))
	r.Use(middleware.ErrorHandler(d.log))
	r.Use(middleware.Hardening(middleware.HardeningOptions{EnableHSTS: d.enableHSTS, Logger: d.log}))
	r.Use(middleware.OptionalAuth(d.resolver, d.log))
	r.Use(middleware.Audit(d.log, d.publisher, d.trustProxy))

	r.HandleFunc("/healthz", d.health.HealthCheck).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	if d.flood != nil {
		api.Use(d.flood.Middleware())
	}

	tier := func(name string) func(http.Handler) http.Handler {
		return middleware.RateLimit(d.limiter, name, d.trustProxy, d.log)
	}
	requireAdmin := admin.Require(d.gate)

	authHandler := handlers.NewAuthHandler()
	authRouter := api.PathPrefix("/auth").Subrouter()
	authRouter.Use(tier(ratelimit.TierAuth))
	authRouter.Use(middleware.RequireUser)
	authHandler.RegisterRoutes(authRouter)

	search := handlers.NewSearchHandler(d.posts, d.log)
	api.Handle("/search", tier(ratelimit.TierSearch)(http.HandlerFunc(search.Search))).Methods(http.MethodGet)

	var rates handlers.RateSource
	if d.flood != nil {
		rates = d.flood
	}
	adminHandler := handlers.NewAdminHandler(d.limiter, d.health, rates, d.log)
	adminRouter := api.PathPrefix("/admin").Subrouter()
	adminRouter.Handle("/check",
		tier(ratelimit.TierAPI)(requireAdmin(http.HandlerFunc(adminHandler.Check))),
	).Methods(http.MethodGet)
	adminRouter.Handle("/monitoring",
		tier(ratelimit.TierAdminMonitoring)(requireAdmin(http.HandlerFunc(adminHandler.Monitoring))),
	).Methods(http.MethodGet)
	adminRouter.Handle("/ratelimit/{tier}/{key}",
		tier(ratelimit.TierAPI)(requireAdmin(http.HandlerFunc(adminHandler.Unblock))),
	).Methods(http.MethodDelete)

	return middleware.CORS(d.frontend, d.log)(r)
}
