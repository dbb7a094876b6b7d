// Command clinic-server runs the clinic visit and station-queue API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinicstack/clinic/internal/config"
	"github.com/clinicstack/clinic/internal/domain/patient"
	"github.com/clinicstack/clinic/internal/domain/visit"
	"github.com/clinicstack/clinic/internal/platform/auth"
	"github.com/clinicstack/clinic/internal/platform/db"
	"github.com/clinicstack/clinic/internal/platform/middleware"
	"github.com/clinicstack/clinic/internal/platform/websocket"
	"github.com/clinicstack/clinic/migrations"
)

func main() {
	root := &cobra.Command{
		Use:   "clinic-server",
		Short: "Clinic visit lifecycle and station queue API",
	}

	root.AddCommand(serveCmd(), migrateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func migrateCmd() *cobra.Command {
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database schema",
	}

	migrate.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, log, err := bootstrap()
				if err != nil {
					return err
				}

				pool, err := db.NewPool(cmd.Context(), poolConfig(cfg), log)
				if err != nil {
					return err
				}
				defer pool.Close()

				return db.NewMigrator(pool, migrations.FS, log).Up(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show applied migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, log, err := bootstrap()
				if err != nil {
					return err
				}

				pool, err := db.NewPool(cmd.Context(), poolConfig(cfg), log)
				if err != nil {
					return err
				}
				defer pool.Close()

				applied, err := db.NewMigrator(pool, migrations.FS, log).Status(cmd.Context())
				if err != nil {
					return err
				}

				for _, m := range applied {
					fmt.Printf("%s  %s  %s\n", m.Version, m.AppliedAt.Format(time.RFC3339), m.Name)
				}
				return nil
			},
		},
	)

	return migrate
}

func bootstrap() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}

	var log zerolog.Logger
	if cfg.IsDev() {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	} else {
		log = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	return cfg, log, nil
}

func poolConfig(cfg *config.Config) db.PoolConfig {
	return db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	}
}

func runServer(ctx context.Context) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, poolConfig(cfg), log)
	if err != nil {
		return err
	}
	defer pool.Close()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(log))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(log))
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.CORSOriginList(),
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, "X-Request-ID"},
	}))

	db.NewHealthHandler(pool).RegisterRoutes(e)

	// Live transport.
	hub := websocket.NewHub()
	websocket.NewHandler(hub).RegisterRoutes(e.Group(""))

	// Domain wiring.
	visitRepo := visit.NewRepo(pool)
	views := visit.NewViews(cfg.QueueLookback())
	feed := visit.NewFeed(visitRepo, views, log)
	visitSvc := visit.NewService(visitRepo, views, feed, log)

	patientRepo := patient.NewRepo(pool)
	patientSvc := patient.NewService(patientRepo, log)

	api := e.Group("/api/v1")
	if cfg.IsDev() && cfg.JWTSecret == "" {
		log.Warn().Msg("running with development auth, all requests are admin")
		api.Use(auth.DevAuthMiddleware())
	} else {
		api.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.JWTSecret),
		}))
	}

	visit.NewHandler(visitSvc, log).RegisterRoutes(api)
	patient.NewHandler(patientSvc, log).RegisterRoutes(api)

	// Feed -> hub bridge.
	broadcaster := visit.NewBroadcaster(visitSvc, &hubPublisher{hub: hub}, log)
	broadcastDone := make(chan error, 1)
	go func() { broadcastDone <- broadcaster.Run(ctx) }()

	serverErr := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		log.Info().Str("addr", addr).Str("env", cfg.Env).Msg("server listening")
		serverErr <- e.Start(addr)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return err
	}

	select {
	case <-broadcastDone:
	case <-shutdownCtx.Done():
	}
	return nil
}

// hubPublisher adapts the websocket hub to the visit feed without the
// domain package importing the transport.
type hubPublisher struct {
	hub *websocket.Hub
}

func (p *hubPublisher) PublishSnapshot(ctx context.Context, station visit.Station, visits []*visit.Visit) error {
	data, err := json.Marshal(visits)
	if err != nil {
		return err
	}
	return p.hub.Publish(ctx, websocket.Event{
		Type:      "queue.snapshot",
		Station:   string(station),
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
}
