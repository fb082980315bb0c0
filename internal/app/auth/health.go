package auth

import (
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServer — gRPC-сервер со стандартным сервисом grpc.health.v1.Health.
type HealthServer struct {
	grpcServer *grpc.Server
	health     *health.Server
	listener   net.Listener
}

// NewHealthServer открывает listener на address и регистрирует сервис здоровья.
// Начальный статус NOT_SERVING.
func NewHealthServer(address string) (*HealthServer, error) {
	lis, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	return &HealthServer{grpcServer: srv, health: hs, listener: lis}, nil
}

// Addr возвращает фактический адрес listener.
func (h *HealthServer) Addr() string {
	return h.listener.Addr().String()
}

// Serve блокируется до остановки сервера.
func (h *HealthServer) Serve() error {
	return h.grpcServer.Serve(h.listener)
}

// SetServing переключает статус сервиса.
func (h *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", status)
}

// Stop переводит статус в NOT_SERVING и корректно останавливает сервер.
func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.grpcServer.GracefulStop()
}
