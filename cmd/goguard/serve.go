package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/goGuard/metrics/export/prometheus"
	"github.com/MrEthical07/goGuard/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return withApp(ctx, *configPath, serve)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	log := a.logger.With(zap.String("component", "server"))

	if err := a.engine.PrimeRevocationCache(ctx); err != nil {
		log.Warn("revocation cache prime failed", zap.Error(err))
	}
	a.engine.Start(ctx)
	go runPurge(ctx, a)

	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           newRouter(a),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newRouter(a *app) http.Handler {
	h := &handlers{engine: a.engine, logger: a.logger.Named("http")}

	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.RealIP, chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Method(http.MethodGet, "/metrics", prometheus.Handler(prometheus.NewCollector(a.engine)))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Guard(a.engine, middleware.WithMaxBodyBytes(a.cfg.Server.MaxBodyBytes)))

		r.Post("/auth/signup", h.signup)
		r.Post("/auth/confirm", h.confirm)
		r.Post("/auth/login", h.login)
		r.Post("/auth/refresh", h.refresh)
		r.Post("/auth/logout", h.logout)
		r.Post("/api/audit/clientlog", h.clientLog)

		r.Get("/user/{userId}/tokens", h.listTokens)
		r.Delete("/user/{userId}/tokens/{tokenId}", h.revokeToken)
		r.Post("/user/{userId}/password", h.changePassword)
		r.Post("/user/{userId}/logout-all", h.logoutAll)

		r.Get("/admin/banned", h.banned)
		r.Delete("/admin/banned/{ip}", h.unban)
		r.Put("/admin/users/{userId}/enabled", h.setEnabled)
		r.Get("/admin/audit/{stream}", h.auditQuery)
	})

	return r
}

// runPurge deletes stale unconfirmed signups until ctx is done.
func runPurge(ctx context.Context, a *app) {
	interval := a.cfg.Server.PurgeInterval
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := a.engine.PurgeUnconfirmed(ctx)
			if err != nil {
				a.logger.Warn("purge unconfirmed failed", zap.String("component", "purge"), zap.Error(err))
				continue
			}
			if n > 0 {
				a.logger.Info("purged unconfirmed accounts", zap.String("component", "purge"), zap.Int64("count", n))
			}
		}
	}
}
