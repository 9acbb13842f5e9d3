// Package app wires configuration, storage and services into a running
// application shared by the HTTP server and the job commands.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"

	"github.com/nikhil/doussel/internal/cache"
	"github.com/nikhil/doussel/internal/config"
	"github.com/nikhil/doussel/internal/database"
	"github.com/nikhil/doussel/internal/handlers"
	"github.com/nikhil/doussel/internal/logger"
	"github.com/nikhil/doussel/internal/mailer"
	"github.com/nikhil/doussel/internal/middleware"
	"github.com/nikhil/doussel/internal/models"
	"github.com/nikhil/doussel/internal/ratelimit"
	"github.com/nikhil/doussel/internal/routes"
	adminService "github.com/nikhil/doussel/internal/service/admin"
	services "github.com/nikhil/doussel/internal/service/auth"
	channelService "github.com/nikhil/doussel/internal/service/channels"
	expenseService "github.com/nikhil/doussel/internal/service/expenses"
	favoriteService "github.com/nikhil/doussel/internal/service/favorites"
	importService "github.com/nikhil/doussel/internal/service/imports"
	leaseService "github.com/nikhil/doussel/internal/service/leases"
	messageService "github.com/nikhil/doussel/internal/service/messages"
	notificationService "github.com/nikhil/doussel/internal/service/notifications"
	propertyService "github.com/nikhil/doussel/internal/service/properties"
	rentalService "github.com/nikhil/doussel/internal/service/rentals"
	teamService "github.com/nikhil/doussel/internal/service/team"
	profileService "github.com/nikhil/doussel/internal/service/users"
)

// Services holds every domain service.
type Services struct {
	Auth          *services.AuthService
	Profiles      *profileService.ProfileService
	Teams         *teamService.TeamService
	Properties    *propertyService.PropertyService
	Favorites     *favoriteService.FavoriteService
	Leases        *leaseService.LeaseService
	Rentals       *rentalService.RentalService
	Notifications *notificationService.NotificationService
	Messages      *messageService.MessageService
	Conversations *channelService.ChannelService
	Expenses      *expenseService.ExpenseService
	Imports       *importService.ImportService
	Admin         *adminService.AdminService
}

type App struct {
	Config   *config.Config
	DB       *sqlx.DB
	Redis    *redis.Client
	Hub      *models.Hub
	Tokens   *middleware.TokenManager
	Services *Services
	Log      *logger.Logger
}

// New connects to the database and Redis and builds the services. Redis is
// optional: without it the cache is a no-op and rate limits are kept in memory.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logger.NewLogger("app")

	db, err := database.Open(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	var (
		redisClient *redis.Client
		store       cache.CacheInterface = cache.NoopCache{}
		limiter     ratelimit.Limiter    = ratelimit.NewMemoryLimiter()
	)
	if cfg.RedisAddr != "" {
		redisClient, err = cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Warn("Redis unavailable, falling back to in-process cache and limiter", "error", err)
		} else {
			store = cache.NewRedisCache(redisClient, "doussel:")
			limiter = ratelimit.NewRedisLimiter(redisClient, "doussel:rl:", logger.NewLogger("rate-limiter"))
		}
	}

	hub := models.NewHub()
	tokens := middleware.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL)
	mail := mailer.NewLogMailer(logger.NewLogger("mailer"))

	s := &Services{}
	s.Auth = services.NewAuthService(db, tokens, cfg.AdminEmail)
	s.Profiles = profileService.NewProfileService(db)
	s.Teams = teamService.NewTeamService(db, store, cfg.CacheTTL)
	s.Notifications = notificationService.NewNotificationService(db, hub, cfg.AdminEmail)
	s.Properties = propertyService.NewPropertyService(db, store, cfg.CacheTTL, s.Teams, s.Notifications)
	s.Favorites = favoriteService.NewFavoriteService(db, limiter)
	s.Leases = leaseService.NewLeaseService(db, s.Teams, mail, store, cfg.AppURL)
	s.Rentals = rentalService.NewRentalService(db, s.Leases, s.Teams, s.Notifications, mail, store, cfg.CacheTTL)
	s.Messages = messageService.NewMessageService(db, s.Leases, hub, s.Notifications)
	s.Conversations = channelService.NewChannelService(db)
	s.Expenses = expenseService.NewExpenseService(db, s.Teams, store)
	s.Imports = importService.NewImportService(db, s.Teams, s.Leases, store)
	s.Admin = adminService.NewAdminService(db)

	return &App{
		Config:   cfg,
		DB:       db,
		Redis:    redisClient,
		Hub:      hub,
		Tokens:   tokens,
		Services: s,
		Log:      log,
	}, nil
}

// Handlers builds the HTTP handlers over the services.
func (a *App) Handlers() *handlers.Handlers {
	s := a.Services
	return &handlers.Handlers{
		Auth:         handlers.NewAuthHandler(s.Auth),
		Profile:      handlers.NewProfileHandler(s.Profiles),
		Team:         handlers.NewTeamHandler(s.Teams),
		Property:     handlers.NewPropertyHandler(s.Properties),
		Admin:        handlers.NewAdminHandler(s.Admin, s.Profiles),
		Favorite:     handlers.NewFavoriteHandler(s.Favorites),
		Lease:        handlers.NewLeaseHandler(s.Leases),
		Rental:       handlers.NewRentalHandler(s.Rentals),
		Message:      handlers.NewMessageHandler(s.Messages, s.Conversations),
		Tenant:       handlers.NewTenantHandler(s.Leases, s.Messages, a.Config.IsProduction()),
		Notification: handlers.NewNotificationHandler(s.Notifications),
		Expense:      handlers.NewExpenseHandler(s.Expenses, s.Imports),
		Import:       handlers.NewImportHandler(s.Imports),
		Cron:         handlers.NewCronHandler(s.Rentals),
		Health:       handlers.NewHealthHandler(a.DB),
		WebSocket:    handlers.NewWebSocketHandler(a.Hub, s.Leases, a.Config.AppURL),
	}
}

// Router builds the full HTTP router. The returned limiter must have its
// cleanup loop started by the caller.
func (a *App) Router() (http.Handler, *middleware.RateLimiter) {
	leases := a.Services.Leases
	validate := func(ctx context.Context, raw string) (*models.TenantSession, error) {
		return leases.ValidateToken(ctx, raw, leaseService.ClientInfo{})
	}
	cron := middleware.CronAuth(a.Config.CronSecret, a.Config.IsDevelopment(), logger.NewLogger("cron-auth"))

	mw := middleware.NewSet(a.Tokens, validate, cron)
	limiter := middleware.NewRateLimiter(a.Config.RateLimitRPS, a.Config.RateLimitBurst, logger.NewLogger("http-rate-limiter"))
	mw.RateLimit = limiter.Handler

	return routes.RegisterAllRoutes(a.Handlers(), mw, logger.NewLogger("http")), limiter
}

// Close releases the database and Redis connections.
func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Log.Warn("Closing Redis", "error", err)
		}
	}
	if err := a.DB.Close(); err != nil {
		a.Log.Warn("Closing database", "error", err)
	}
}

// ShutdownTimeout bounds graceful HTTP shutdown.
const ShutdownTimeout = 15 * time.Second
