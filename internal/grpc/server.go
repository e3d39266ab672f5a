// Package grpc поднимает служебный gRPC сервер: health check и reflection
package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// ServiceName имя сервиса в health check
const ServiceName = "helpdesk.api"

// Pinger проверка доступности хранилища
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Server gRPC сервер с health и reflection
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	log        *logrus.Entry
}

// NewServer создает сервер; до первой проверки сервис считается недоступным
func NewServer(log *logrus.Entry) *Server {
	s := &Server{
		health: health.NewServer(),
		log:    log,
	}
	s.grpcServer = grpc.NewServer(grpc.UnaryInterceptor(s.logUnary))

	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	reflection.Register(s.grpcServer)

	s.SetServing(false)
	return s
}

// SetServing переключает статус общего и именованного сервиса
func (s *Server) SetServing(ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Watch периодически проверяет БД и обновляет статус, пока ctx не отменен
func (s *Server) Watch(ctx context.Context, db Pinger, interval time.Duration) {
	check := func() {
		pingCtx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()

		err := db.PingContext(pingCtx)
		if err != nil {
			s.log.WithError(err).Warn("База данных недоступна")
		}
		s.SetServing(err == nil)
	}

	check()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}

// Start слушает порт и блокируется до остановки сервера
func (s *Server) Start(port int) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("ошибка создания TCP слушателя: %w", err)
	}
	return s.Serve(lis)
}

// Serve обслуживает уже открытый listener до Stop
func (s *Server) Serve(lis net.Listener) error {
	s.log.WithField("addr", lis.Addr().String()).Info("Запуск gRPC сервера")
	if err := s.grpcServer.Serve(lis); err != nil {
		return fmt.Errorf("ошибка запуска gRPC сервера: %w", err)
	}
	return nil
}

// Stop переводит health в NOT_SERVING и дожидается завершения вызовов
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}

func (s *Server) logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)

	entry := s.log.WithFields(logrus.Fields{
		"method":  info.FullMethod,
		"code":    status.Code(err).String(),
		"latency": time.Since(start).String(),
	})
	if err != nil {
		entry.WithError(err).Warn("gRPC вызов завершился ошибкой")
	} else {
		entry.Debug("gRPC вызов")
	}
	return resp, err
}
