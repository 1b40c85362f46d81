package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/fanbridge/internal/device"
	"github.com/nerrad567/fanbridge/internal/history"
	"github.com/nerrad567/fanbridge/internal/infrastructure/config"
	"github.com/nerrad567/fanbridge/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// CommandGateway issues fan commands. *device.Gateway satisfies it.
type CommandGateway interface {
	SetMode(ctx context.Context, mode string) (device.Mode, error)
	SetThreshold(ctx context.Context, raw any) (float64, error)
	SetControl(ctx context.Context, control string) (device.Control, error)
}

// ConnectionChecker reports broker connectivity. *mqtt.Client satisfies it.
type ConnectionChecker interface {
	IsConnected() bool
}

// HistoryStats exposes writer counters. *history.Writer satisfies it.
type HistoryStats interface {
	Stats() history.Stats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	Logger    *logging.Logger
	Aggregate *device.Aggregate
	Gateway   CommandGateway
	History   history.Repository
	Formatter *history.Formatter
	MQTT      ConnectionChecker // optional
	Writer    HistoryStats      // optional
	Version   string
}

// Server is the HTTP API server for fanbridge.
//
// It owns the router, the WebSocket hub and one http.Server per listener.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	agg       *device.Aggregate
	gateway   CommandGateway
	history   history.Repository
	formatter *history.Formatter
	mqtt      ConnectionChecker
	writer    HistoryStats
	version   string
	hub       *Hub

	mu      sync.Mutex
	servers []*http.Server
	addrs   []net.Addr
	cancel  context.CancelFunc // stops the hub on Close()
}

// New creates a new API server with the given dependencies and registers
// its WebSocket hub as a listener on the aggregate.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Aggregate == nil {
		return nil, fmt.Errorf("device aggregate is required")
	}
	if deps.Gateway == nil {
		return nil, fmt.Errorf("command gateway is required")
	}
	if deps.History == nil {
		return nil, fmt.Errorf("history repository is required")
	}
	if deps.Formatter == nil {
		return nil, fmt.Errorf("history formatter is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		agg:       deps.Aggregate,
		gateway:   deps.Gateway,
		history:   deps.History,
		formatter: deps.Formatter,
		mqtt:      deps.MQTT,
		writer:    deps.Writer,
		version:   deps.Version,
	}

	s.hub = NewHub(s.wsCfg, s.logger)
	s.agg.AddListener(s.hub)

	return s, nil
}

// Handler returns the router. Every listener serves the same handler.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds every configured listener and serves in the background.
//
// Binding happens before Start returns, so a port already in use is
// reported here rather than logged later.
func (s *Server) Start(ctx context.Context) error {
	ports := []int{s.cfg.Port}
	if s.cfg.HistoryPort != 0 {
		ports = append(ports, s.cfg.HistoryPort)
	}

	listeners := make([]net.Listener, 0, len(ports))
	for _, port := range ports {
		addr := fmt.Sprintf("%s:%d", s.cfg.Host, port)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			for _, l := range listeners {
				l.Close() //nolint:errcheck // Unwinding a failed start
			}
			return fmt.Errorf("listening on %s: %w", addr, err)
		}
		listeners = append(listeners, ln)
	}

	var hubCtx context.Context
	hubCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(hubCtx)

	router := s.buildRouter()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ln := range listeners {
		srv := &http.Server{
			Addr:              ln.Addr().String(),
			Handler:           router,
			ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
			ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
			WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
			IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
		}
		s.servers = append(s.servers, srv)
		s.addrs = append(s.addrs, ln.Addr())

		go s.serve(srv, ln)
	}

	return nil
}

func (s *Server) serve(srv *http.Server, ln net.Listener) {
	var err error
	if s.cfg.TLS.Enabled {
		s.logger.Info("API server starting with TLS", "address", srv.Addr, "cert", s.cfg.TLS.CertFile)
		err = srv.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
	} else {
		s.logger.Info("API server starting", "address", srv.Addr)
		err = srv.Serve(ln)
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("API server error", "address", srv.Addr, "error", err)
	}
}

// Addrs returns the bound listener addresses after Start.
func (s *Server) Addrs() []net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]net.Addr(nil), s.addrs...)
}

// Close gracefully shuts down every listener.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	s.mu.Lock()
	servers := s.servers
	s.servers = nil
	s.mu.Unlock()

	if len(servers) == 0 {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	var errs []error
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutting down %s: %w", srv.Addr, err))
		}
	}
	return errors.Join(errs...)
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.servers) == 0 {
		return fmt.Errorf("api server not started")
	}
	return nil
}
