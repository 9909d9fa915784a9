package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectoinject/ectocontainer"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/harborcrm/clover/internal/database"
	"github.com/harborcrm/clover/internal/repositories/mergeaudit"
	"github.com/harborcrm/clover/pkg/engine"
	"github.com/harborcrm/clover/pkg/middleware"
	"github.com/harborcrm/clover/pkg/routes/audit"
	"github.com/harborcrm/clover/pkg/routes/groups"
	"github.com/harborcrm/clover/pkg/routes/health"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the review API",
	Long: `Serve exposes the duplicate review surface over HTTP: live detection
results at /groups and the committed merge history at /audit. The API never
merges anything; writes stay behind the merge command.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	container, err := buildContainer(a)
	if err != nil {
		return err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(a.logger)

	e.Use(otelecho.Middleware(a.cfg.AppName))
	e.Use(middleware.RequestContext())
	e.Use(middleware.Inject(container))
	e.Use(middleware.Logger(a.logger))
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: a.cfg.AllowOrigins,
	}))

	health.Register(e.Group("/health"))
	groups.Register(e.Group("/groups"))
	audit.Register(e.Group("/audit"))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.Port),
		ReadTimeout:  time.Duration(a.cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(a.cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:  time.Duration(a.cfg.HttpServerIdleTimeoutSeconds) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.StartServer(server)
	}()
	a.logger.WithFields(map[string]any{"port": a.cfg.Port}).Info("Review API listening")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-quit:
		a.logger.Info("Shutting down review API")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}

	return nil
}

func buildContainer(a *app) (ectocontainer.DIContainer, error) {
	container, err := ectoinject.NewDIDefaultContainer()
	if err != nil {
		return nil, err
	}

	if err := ectoinject.RegisterInstance[database.DB](container, a.db); err != nil {
		return nil, err
	}
	if err := ectoinject.RegisterInstance[ectologger.Logger](container, a.logger); err != nil {
		return nil, err
	}
	if err := ectoinject.RegisterInstance[*mergeaudit.Repository](container, a.audits); err != nil {
		return nil, err
	}
	if err := ectoinject.RegisterInstance[*engine.Engine](container, a.engine); err != nil {
		return nil, err
	}

	return container, nil
}
