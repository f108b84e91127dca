package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"github.com/iliyamo/entrance-ticketing/internal/config"
	"github.com/iliyamo/entrance-ticketing/internal/handler"
	"github.com/iliyamo/entrance-ticketing/internal/intent"
	"github.com/iliyamo/entrance-ticketing/internal/router"
)

var serveWithScheduler bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API on APP_PORT.

The retention and ticket expiry scheduler normally runs in the worker. Pass
--with-scheduler to run it inside the API process instead, e.g. for a
single-instance deployment.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveWithScheduler, "with-scheduler", false, "also run the retention and ticket expiry scheduler")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := config.NewRedisClient()
	var backend intent.Backend
	if rdb != nil {
		defer rdb.Close()
		backend = intent.NewRedisBackend(rdb)
	} else {
		log.Printf("serve: redis unavailable, booking intents kept in memory; rate limiting and cache disabled")
		backend = intent.NewMemoryBackend()
	}

	rec := a.reconciler()
	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())
	router.RegisterRoutes(e, router.Handlers{
		Payments:     handler.NewPaymentHandler(rec),
		Orders:       handler.NewOrderHandler(a.orders, a.tickets, rec),
		Capacity:     handler.NewCapacityHandler(a.slots, a.generator, a.clock),
		Reservations: handler.NewReservationHandler(a.capacity, a.reservations, a.orders, a.clock),
		Intents:      handler.NewIntentHandler(backend, a.clock, a.cfg.BookingIntentTTL),
		Ready:        handler.Ready(a.db),
	}, router.Options{
		JWTSecret: a.cfg.JWTSecret,
		Redis:     rdb,
		RateLimit: config.LoadRateLimitConfig(),
		Cache:     config.LoadCacheConfig(),
	})

	if serveWithScheduler {
		go a.scheduler().Run(ctx)
	}

	addr := ":" + a.cfg.Port
	log.Printf("listening on %s (env=%s, tz=%s)", addr, a.cfg.Env, a.clock.Location())
	errc := make(chan error, 1)
	go func() { errc <- e.Start(addr) }()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Printf("serve: shutting down")
	return e.Shutdown(shutdownCtx)
}
