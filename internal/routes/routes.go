package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nikhil/doussel/internal/handlers"
	"github.com/nikhil/doussel/internal/logger"
	"github.com/nikhil/doussel/internal/metrics"
	"github.com/nikhil/doussel/internal/middleware"
	authRoute "github.com/nikhil/doussel/internal/routes/Auth"
	teamroutes "github.com/nikhil/doussel/internal/routes/TeamRoutes"
	adminRoutes "github.com/nikhil/doussel/internal/routes/admin"
	channnelRoutes "github.com/nikhil/doussel/internal/routes/channels"
	cronRoutes "github.com/nikhil/doussel/internal/routes/cron"
	expenseRoutes "github.com/nikhil/doussel/internal/routes/expenses"
	favoriteRoutes "github.com/nikhil/doussel/internal/routes/favorites"
	leaseRoutes "github.com/nikhil/doussel/internal/routes/leases"
	notificationRoutes "github.com/nikhil/doussel/internal/routes/notifications"
	propertyRoutes "github.com/nikhil/doussel/internal/routes/properties"
	tenantRoutes "github.com/nikhil/doussel/internal/routes/tenant"
	userRoutes "github.com/nikhil/doussel/internal/routes/user"
)

// List of all route registration functions
var routeModules = []func(*mux.Router, *handlers.Handlers, *middleware.Set){
	authRoute.RegisterAuthRoutes,
	userRoutes.UserProfileRoutes,
	teamroutes.TeamRoutes,
	propertyRoutes.PropertyRoutes,
	adminRoutes.AdminRoutes,
	favoriteRoutes.FavoriteRoutes,
	leaseRoutes.LeaseRoutes,
	channnelRoutes.ChannelRoutes,
	tenantRoutes.TenantRoutes,
	notificationRoutes.NotificationRoutes,
	expenseRoutes.ExpenseRoutes,
	cronRoutes.CronRoutes,
	registerWebSocketRoutes,
}

// RegisterAllRoutes builds the router with the shared middleware chain.
func RegisterAllRoutes(h *handlers.Handlers, mw *middleware.Set, log *logger.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.RequestID, middleware.RequestLogger(log), metrics.InstrumentHandler)

	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/healthz", h.Health.Healthz).Methods(http.MethodGet)

	for _, register := range routeModules {
		register(router, h, mw)
	}

	return router
}

// registerWebSocketRoutes authenticates through the "token" query parameter
// or the tenant cookie.
func registerWebSocketRoutes(router *mux.Router, h *handlers.Handlers, mw *middleware.Set) {
	router.Handle("/ws", mw.WebSocketAuth(http.HandlerFunc(h.WebSocket.HandleWebSocket))).Methods(http.MethodGet)
}
