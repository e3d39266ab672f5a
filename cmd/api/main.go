// Package main запускает HTTP API службы поддержки и служебный gRPC сервер
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Ultrahd-dev/helpdesk/internal/auth"
	"github.com/Ultrahd-dev/helpdesk/internal/config"
	"github.com/Ultrahd-dev/helpdesk/internal/database"
	"github.com/Ultrahd-dev/helpdesk/internal/grpc"
	"github.com/Ultrahd-dev/helpdesk/internal/jwt"
	"github.com/Ultrahd-dev/helpdesk/internal/logger"
	"github.com/Ultrahd-dev/helpdesk/internal/metrics"
	"github.com/Ultrahd-dev/helpdesk/internal/notifications"
	"github.com/Ultrahd-dev/helpdesk/internal/reports"
	"github.com/Ultrahd-dev/helpdesk/internal/server"
	"github.com/Ultrahd-dev/helpdesk/internal/users"
	"github.com/Ultrahd-dev/helpdesk/internal/users/handlers"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

func main() {
	configPath := pflag.StringP("config", "c", "./configs/config.yaml", "путь к файлу конфигурации")
	pflag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.New("helpdesk-api", "info").WithError(err).Fatal("Ошибка загрузки конфигурации")
	}

	log := logger.New("helpdesk-api", cfg.Log.Level)
	if logger.ParseLevel(cfg.Log.Level) < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		log.WithError(err).Fatal("Ошибка подключения к базе данных")
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.WithError(err).Error("Ошибка закрытия соединения с БД")
		}
	}()

	m := metrics.New(prometheus.DefaultRegisterer)
	if err := m.ObserveDB(db); err != nil {
		log.WithError(err).Warn("Не удалось зарегистрировать метрики пула соединений")
	}

	// Инициализируем компоненты
	jwtManager := jwt.NewManager(cfg.JWT.Secret, cfg.JWT.Expiration)

	userRepo := users.NewRepository(db)
	userService := users.NewService(userRepo, log.WithField("component", "users"))

	mailer, err := notifications.NewMailer(cfg.Mail, log.WithField("component", "mailer"))
	if err != nil {
		log.WithError(err).Fatal("Ошибка настройки почты")
	}

	reportRepo := reports.NewRepository(db)
	deliveries := notifications.NewRepository(db)
	dispatcher := notifications.NewDispatcher(reportRepo, userService, deliveries, mailer, m,
		log.WithField("component", "notifications"),
		notifications.Options{
			Workers:     cfg.Notifications.Workers,
			QueueSize:   cfg.Notifications.QueueSize,
			SendTimeout: cfg.Notifications.SendTimeout,
			BaseURL:     cfg.Mail.BaseURL,
		})

	reportService := reports.NewService(reportRepo, userService, dispatcher, log.WithField("component", "reports"))

	httpServer := server.New(server.Deps{
		Config:        cfg.Server,
		Log:           log.WithField("component", "http"),
		Metrics:       m,
		Gatherer:      prometheus.DefaultGatherer,
		DB:            db,
		Auth:          auth.NewMiddleware(jwtManager, userService, log.WithField("component", "auth")),
		AuthHandler:   handlers.NewAuthHandler(userService, jwtManager),
		UserHandler:   handlers.NewUserHandler(userService),
		Reports:       reports.NewHandler(reportService),
		Notifications: notifications.NewHandler(dispatcher, deliveries),
	})

	grpcServer := grpc.NewServer(log.WithField("component", "grpc"))
	go grpcServer.Watch(ctx, db, 15*time.Second)

	go func() {
		if err := grpcServer.Start(cfg.Server.GRPCPort); err != nil {
			log.WithError(err).Error("gRPC сервер остановлен с ошибкой")
			stop()
		}
	}()

	go func() {
		log.WithField("port", cfg.Server.Port).Info("Запуск HTTP сервера")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("HTTP сервер остановлен с ошибкой")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Получен сигнал завершения, останавливаем сервер...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Ошибка остановки HTTP сервера")
	}
	grpcServer.Stop()

	// Запросы завершены, новых событий не будет: дослать очередь
	if err := dispatcher.Close(shutdownCtx); err != nil {
		log.WithError(err).Warn("Часть уведомлений не отправлена")
	}

	log.Info("Сервер остановлен")
}
