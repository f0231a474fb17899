package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"vidtube/api/internal/apperr"
	"vidtube/api/internal/cache"
	"vidtube/api/internal/config"
	"vidtube/api/internal/middleware"
	"vidtube/api/internal/models"
	"vidtube/api/internal/repository"
	"vidtube/api/internal/security"
	"vidtube/api/internal/service"
	"vidtube/api/internal/storage"
)

// Shared handler failures that do not originate in the service layer.
var (
	errInvalidBody    = apperr.Validation("invalid request body")
	errAvatarRequired = apperr.Validation("avatar file is required")
	errNoAuthContext  = apperr.Unauthorized("authentication required")
)

type HandlerSet struct {
	log     zerolog.Logger
	cfg     *config.AppConfig
	auth    *service.AuthService
	media   *service.MediaService
	users   *repository.UserRepository
	cookies *security.CookieTransport
	db      *pgxpool.Pool
	cache   *redis.Client
}

func NewHandlerSet(log zerolog.Logger, db *pgxpool.Pool, cacheClient *redis.Client, store *storage.ObjectStore, cfg *config.AppConfig) HandlerSet {
	userRepo := repository.NewUserRepository(db)
	limiter := cache.NewLoginLimiter(cacheClient, cfg.Security.LoginAttemptLimit, cfg.Security.LoginAttemptWindow)

	return HandlerSet{
		log:     log,
		cfg:     cfg,
		auth:    service.NewAuthService(userRepo, limiter, cfg, log),
		media:   service.NewMediaService(store, log),
		users:   userRepo,
		cookies: security.NewCookieTransport(cfg.Cookie, cfg.Security),
		db:      db,
		cache:   cacheClient,
	}
}

func (h HandlerSet) Routes(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	v1 := router.Group("/v1")

	users := v1.Group("/users")
	users.POST("/register", h.Register)
	users.POST("/login", h.Login)
	users.POST("/refresh-token", h.Refresh)

	protected := v1.Group("/users")
	protected.Use(middleware.Auth(h.cfg, h.users, h.cookies))
	protected.POST("/logout", h.Logout)
	protected.POST("/change-password", h.ChangePassword)
	protected.GET("/me", h.Me)
	protected.PATCH("/account", h.UpdateAccount)
	protected.PATCH("/avatar", h.UpdateAvatar)
	protected.PATCH("/cover-image", h.UpdateCoverImage)
}

// currentUser reads the user the auth middleware resolved for this request.
func currentUser(c *gin.Context) (models.User, bool) {
	val, exists := c.Get(middleware.CurrentUserKey)
	if !exists {
		return models.User{}, false
	}
	user, ok := val.(models.User)
	return user, ok
}
