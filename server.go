package ascart

import (
	"context"
	"errors"
	"sync"

	"pkt.systems/ascart/core"
	"pkt.systems/ascart/httpapi"
	"pkt.systems/ascart/internal/logx"
	"pkt.systems/ascart/internal/tui"
	"pkt.systems/ascart/internal/widget"
	"pkt.systems/ascart/schema"
	"pkt.systems/pslog"
)

// Server composes the bridge with its presentation surfaces.
type Server interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error
	Bridge() core.Bridge
}

// ServerConfig configures the compositor.
type ServerConfig struct {
	Bridge schema.BridgeConfig
	HTTP   httpapi.Config
}

// ServerDeps captures dependencies required to build the server.
type ServerDeps struct {
	BridgeDeps core.BridgeDeps
}

// ServerOption toggles compositor components.
type ServerOption func(*serverOptions)

type serverOptions struct {
	enableHTTP bool
	screen     *tui.Screen
}

// WithHTTP enables the HTTP API, control page and browser widgets.
func WithHTTP() ServerOption {
	return func(o *serverOptions) { o.enableHTTP = true }
}

// WithTerminal presents widgets on screen.
func WithTerminal(screen *tui.Screen) ServerOption {
	return func(o *serverOptions) { o.screen = screen }
}

// New constructs a composable ascart server.
func New(cfg ServerConfig, deps ServerDeps, opts ...ServerOption) (Server, error) {
	options := serverOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if !options.enableHTTP && options.screen == nil {
		return nil, errors.New("no presentation surfaces enabled")
	}

	bridgeDeps := deps.BridgeDeps
	var hub *httpapi.Hub
	if options.enableHTTP {
		hub = httpapi.NewHub(cfg.HTTP.HubHistory, bridgeDeps.Logger)
	}
	factories := make([]widget.SurfaceFactory, 0, 3)
	if bridgeDeps.Surfaces != nil {
		factories = append(factories, bridgeDeps.Surfaces)
	}
	if hub != nil {
		factories = append(factories, hub)
	}
	if options.screen != nil {
		factories = append(factories, options.screen)
	}
	if len(factories) == 1 {
		bridgeDeps.Surfaces = factories[0]
	} else {
		bridgeDeps.Surfaces = surfaceFanout{factories: factories}
	}

	bridge, err := core.NewBridge(cfg.Bridge, bridgeDeps)
	if err != nil {
		return nil, err
	}

	var httpSrv *httpapi.Server
	if hub != nil {
		bridge.OnBackendMessage(hub.OnBackendMessage)
		bridge.OnWorkerState(hub.OnWorkerState)
		httpSrv = httpapi.NewServer(cfg.HTTP, bridge, hub)
	}

	return &compositeServer{
		cfg:     cfg,
		options: options,
		bridge:  bridge,
		httpSrv: httpSrv,
		logger:  logx.Or(bridgeDeps.Logger),
	}, nil
}

type compositeServer struct {
	cfg     ServerConfig
	options serverOptions
	bridge  core.Bridge
	httpSrv *httpapi.Server
	logger  pslog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	errCh   chan error
	started bool
}

func (s *compositeServer) Bridge() core.Bridge {
	return s.bridge
}

func (s *compositeServer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		s.logger.Warn("server start rejected", "reason", "already started")
		return errors.New("server already started")
	}
	s.ctx, s.cancel = context.WithCancel(pslog.ContextWithLogger(ctx, s.logger))
	s.errCh = make(chan error, 2)
	s.started = true
	s.mu.Unlock()

	log := s.logger
	log.Info(
		"server start",
		"http", s.options.enableHTTP,
		"terminal", s.options.screen != nil,
		"worker", s.cfg.Bridge.WorkerBinary,
		"policy", s.cfg.Bridge.Policy,
		"http_addr", s.cfg.HTTP.Addr,
		"http_base_path", s.cfg.HTTP.BasePath,
	)
	if err := s.bridge.Start(s.ctx); err != nil {
		log.Error("worker start failed", "err", err)
		s.cancel()
		return err
	}
	if s.options.enableHTTP && s.httpSrv != nil {
		go func() {
			if err := httpapi.ListenAndServe(s.ctx, s.cfg.HTTP.Addr, s.httpSrv.Handler()); err != nil {
				log.Error("http server failed", "err", err)
				s.errCh <- err
			}
		}()
	}
	return nil
}

func (s *compositeServer) Wait() error {
	s.mu.Lock()
	ctx := s.ctx
	errCh := s.errCh
	started := s.started
	s.mu.Unlock()
	if !started {
		return errors.New("server not started")
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil {
			s.logger.Error("server stopped", "err", err)
			_ = s.Stop(context.Background())
			return err
		}
		return nil
	}
}

// Stop closes every widget, stops the worker and shuts down listeners.
func (s *compositeServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	started := s.started
	s.mu.Unlock()
	if !started {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	log := s.logger
	log.Info("server stop requested")
	err := s.bridge.Close(ctx)
	if err != nil {
		log.Warn("bridge close failed", "err", err)
	} else {
		log.Info("bridge closed")
	}
	if s.options.screen != nil {
		s.options.screen.Close()
	}
	if cancel != nil {
		cancel()
	}
	log.Info("server stopped")
	return err
}
