// Package server собирает HTTP API: маршруты, проверки прав и служебные эндпоинты
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Ultrahd-dev/helpdesk/internal/apperr"
	"github.com/Ultrahd-dev/helpdesk/internal/auth"
	"github.com/Ultrahd-dev/helpdesk/internal/config"
	"github.com/Ultrahd-dev/helpdesk/internal/httpx"
	"github.com/Ultrahd-dev/helpdesk/internal/metrics"
	"github.com/Ultrahd-dev/helpdesk/internal/notifications"
	"github.com/Ultrahd-dev/helpdesk/internal/reports"
	"github.com/Ultrahd-dev/helpdesk/internal/users/handlers"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Pinger проверка доступности БД для /healthz
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps зависимости HTTP слоя
type Deps struct {
	Config   config.ServerConfig
	Log      *logrus.Entry
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	DB       Pinger

	Auth          *auth.Middleware
	AuthHandler   *handlers.AuthHandler
	UserHandler   *handlers.UserHandler
	Reports       *reports.Handler
	Notifications *notifications.Handler
}

// New создает http.Server с роутером, обернутым в otelhttp
func New(d Deps) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", d.Config.Port),
		Handler:      otelhttp.NewHandler(NewRouter(d), "helpdesk-api"),
		ReadTimeout:  d.Config.ReadTimeout,
		WriteTimeout: d.Config.WriteTimeout,
	}
}

// NewRouter регистрирует все маршруты API
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(
		gin.CustomRecovery(func(c *gin.Context, rec any) {
			httpx.Error(c, apperr.Internal("panic", fmt.Errorf("%v", rec)))
		}),
		requestLogger(d.Log),
		d.Metrics.Middleware(),
		cors.New(corsConfig(d.Config.CORSOrigins)),
	)

	r.NoRoute(func(c *gin.Context) {
		httpx.Error(c, apperr.NotFound("Маршрут не найден"))
	})

	r.GET("/healthz", healthz(d.DB))
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))

	api := r.Group("/api/v1")

	authAPI := api.Group("/auth")
	authAPI.POST("/register", d.AuthHandler.Register)
	authAPI.POST("/login", d.AuthHandler.Login)
	authAPI.GET("/profile", d.Auth.Authenticate(), d.AuthHandler.Profile)

	protected := api.Group("", d.Auth.Authenticate())

	reportsAPI := protected.Group("/reports")
	reportsAPI.GET("", d.Reports.List)
	reportsAPI.POST("", d.Reports.Create)
	reportsAPI.GET("/:id", d.Reports.Get)
	reportsAPI.PUT("/:id", d.Reports.Update)
	reportsAPI.DELETE("/:id", d.Reports.Delete)
	reportsAPI.PUT("/:id/assign", d.Reports.Assign)
	reportsAPI.GET("/:id/comments", d.Reports.ListComments)
	reportsAPI.POST("/:id/comments", d.Reports.AddComment)

	protected.GET("/dashboard/stats", d.Reports.Stats)

	usersAPI := protected.Group("/users")
	usersAPI.GET("", d.Auth.Require(auth.ListUsers), d.UserHandler.List)
	usersAPI.GET("/technicians", d.Auth.Require(auth.ListUsers), d.UserHandler.Technicians)
	usersAPI.POST("", d.Auth.Require(auth.ManageUsers), d.UserHandler.Create)
	usersAPI.PUT("/:id", d.Auth.Require(auth.ManageUsers), d.UserHandler.Update)
	usersAPI.DELETE("/:id", d.Auth.Require(auth.ManageUsers), d.UserHandler.Delete)

	notificationsAPI := protected.Group("/notifications", d.Auth.Require(auth.SendTestNotifications))
	notificationsAPI.POST("/email", d.Notifications.Send)
	notificationsAPI.GET("/reports/:id", d.Notifications.ListByReport)

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization")
	cfg.MaxAge = 12 * time.Hour
	return cfg
}

func healthz(db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// requestLogger пишет одну строку на запрос; внутренние ошибки из c.Errors уровнем error
func requestLogger(log *logrus.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}
		if id, ok := auth.IdentityFrom(c); ok {
			fields["user_id"] = id.UserID
		}
		entry := log.WithFields(fields)

		switch {
		case len(c.Errors) > 0:
			entry.WithError(c.Errors.Last().Err).Error("Ошибка обработки запроса")
		case c.Writer.Status() >= http.StatusInternalServerError:
			entry.Error("Запрос завершился ошибкой")
		default:
			entry.Info("Запрос обработан")
		}
	}
}
