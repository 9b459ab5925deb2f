package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/atomic"

	"github.com/bnema/formflow/internal/adapters/transport/websocket"
	"github.com/bnema/formflow/internal/application"
	"github.com/bnema/formflow/internal/domain"
	"github.com/bnema/formflow/internal/metrics"
	"github.com/bnema/formflow/internal/screens/demo"
)

const (
	statsInterval   = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

type serveOptions struct {
	addr   string
	locale string
}

func newServeCmd(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve form sessions over websockets",
		Long:  "Accept websocket clients on /ws, one form session per connection, and expose health and Prometheus metrics endpoints.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := wireApp(ctx, root.configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if opts.addr != "" {
				a.cfg.Server.Address = opts.addr
			}

			srv, err := newServer(ctx, a, opts.locale)
			if err != nil {
				return err
			}

			listener, err := net.Listen("tcp", a.cfg.Server.Address)
			if err != nil {
				_ = srv.shutdown(context.Background())
				return fmt.Errorf("listen on %s: %w", a.cfg.Server.Address, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "listening on %s\n", listener.Addr())

			return srv.serve(ctx, listener)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "listen address (overrides server.address)")
	cmd.Flags().StringVar(&opts.locale, "locale", "en", "locale used for cached forms")

	return cmd
}

// server ties the websocket hub to one engine running the guild flow.
type server struct {
	app    *app
	hub    *websocket.Hub
	engine *application.Engine
	router *sessionRouter
	http   *http.Server
}

func newServer(ctx context.Context, a *app, locale string) (*server, error) {
	hub := websocket.NewHub(websocket.Options{
		Logger:  a.logger.Logger,
		Metrics: a.metrics,
	})

	engine, err := a.newEngine(ctx, hub, hub)
	if err != nil {
		_ = a.store.Close()
		return nil, err
	}

	flow := demo.NewFlow(demo.NewRegistry(demoGuilds(a.clock.Now())...), locale, a.clock)
	router := &sessionRouter{engine: engine, flow: flow, draining: atomic.NewBool(false)}
	hub.Attach(router)

	s := &server{app: a, hub: hub, engine: engine, router: router}
	s.http = &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", s.hub)
	mux.HandleFunc("/healthz", s.health)
	if s.app.cfg.Metrics.Enabled {
		mux.Handle(s.app.cfg.Metrics.Path, metrics.Handler(s.app.registry))
	}
	return mux
}

type healthResponse struct {
	Status      string `json:"status"`
	Sessions    int    `json:"sessions"`
	Connections int    `json:"connections"`
	Timeouts    int    `json:"timeouts"`
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.Stats(r.Context())
	resp := healthResponse{
		Status:      "ok",
		Sessions:    stats.ActiveSessions,
		Connections: s.hub.Len(),
		Timeouts:    stats.PendingTimeouts,
	}
	status := http.StatusOK
	if err != nil {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
		s.app.logger.Warn("health check failed", "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// serve blocks until ctx is cancelled or the listener fails, then shuts
// everything down.
func (s *server) serve(ctx context.Context, listener net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.Serve(listener)
	}()

	statsCtx, stopStats := context.WithCancel(ctx)
	defer stopStats()
	go s.reportStats(statsCtx)

	s.app.logger.Info("server started", "addr", listener.Addr().String(), "backend", s.app.cfg.State.Backend)

	var serveErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("serve http: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return errors.Join(serveErr, s.shutdown(shutdownCtx))
}

func (s *server) shutdown(ctx context.Context) error {
	var errs []error
	if err := s.http.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown http: %w", err))
	}
	s.router.draining.Store(true)
	if err := s.hub.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close websocket hub: %w", err))
	}
	if err := s.engine.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown engine: %w", err))
	}
	s.app.logger.Info("server stopped")
	return errors.Join(errs...)
}

func (s *server) reportStats(ctx context.Context) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := s.engine.Stats(ctx)
			if err != nil {
				s.app.logger.Warn("collect stats failed", "error", err)
				continue
			}
			s.app.logger.Debug("engine stats",
				"sessions", stats.ActiveSessions,
				"timeouts", stats.PendingTimeouts,
				"state_entries", stats.StateEntries,
				"cache_size", stats.Cache.Size,
				"cache_hit_rate", stats.Cache.HitRate,
				"connections", s.hub.Len(),
			)
		}
	}
}

// sessionRouter starts every new connection on the guild menu and feeds
// its responses to the engine. While draining, disconnects keep session
// state so the shutdown snapshot still holds it.
type sessionRouter struct {
	engine   *application.Engine
	flow     *demo.Flow
	draining *atomic.Bool
}

func (r *sessionRouter) Connected(ctx context.Context, id domain.SessionID) error {
	return r.engine.Session(id).Open(ctx, r.flow.Root())
}

func (r *sessionRouter) Respond(ctx context.Context, id domain.SessionID, resp domain.Response) error {
	return r.engine.Session(id).Submit(ctx, resp)
}

func (r *sessionRouter) Disconnected(ctx context.Context, id domain.SessionID) error {
	if r.draining.Load() {
		return nil
	}
	return r.engine.Disconnect(ctx, id)
}
