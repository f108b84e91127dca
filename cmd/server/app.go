package main

import (
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/iliyamo/entrance-ticketing/internal/capacity"
	"github.com/iliyamo/entrance-ticketing/internal/clock"
	"github.com/iliyamo/entrance-ticketing/internal/config"
	"github.com/iliyamo/entrance-ticketing/internal/database"
	"github.com/iliyamo/entrance-ticketing/internal/events"
	"github.com/iliyamo/entrance-ticketing/internal/numbering"
	"github.com/iliyamo/entrance-ticketing/internal/payment"
	"github.com/iliyamo/entrance-ticketing/internal/reconcile"
	"github.com/iliyamo/entrance-ticketing/internal/repository"
	"github.com/iliyamo/entrance-ticketing/internal/retention"
)

// app is the wiring shared by the commands that touch the database.
type app struct {
	cfg   config.Config
	db    *sql.DB
	clock *clock.Authority

	orders       *repository.OrderRepo
	tickets      *repository.TicketRepo
	slots        *repository.CapacityRepo
	reservations *repository.ReservationRepo
	capacity     *capacity.Store
	generator    *capacity.Generator
}

func openApp() (*app, error) {
	cfg := config.Load()
	clk, err := clock.Load(cfg.BusinessTZ)
	if err != nil {
		return nil, err
	}
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	slots := repository.NewCapacityRepo(db)
	gen, err := capacity.NewGenerator(slots, clk, cfg.CapacityTimeSlots)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("CAPACITY_TIME_SLOTS: %w", err)
	}
	return &app{
		cfg:          cfg,
		db:           db,
		clock:        clk,
		orders:       repository.NewOrderRepo(db),
		tickets:      repository.NewTicketRepo(db),
		slots:        slots,
		reservations: repository.NewReservationRepo(db),
		capacity:     capacity.NewStore(slots),
		generator:    gen,
	}, nil
}

func (a *app) Close() error { return a.db.Close() }

func (a *app) reconciler() *reconcile.Reconciler {
	var gw payment.Gateway
	if a.cfg.GatewayBaseURL != "" {
		gw = payment.NewHTTPGateway(a.cfg.GatewayBaseURL, a.cfg.GatewayServerKey, &http.Client{Timeout: 10 * time.Second})
	}
	return reconcile.New(reconcile.Deps{
		Verifier:     payment.NewVerifier(a.cfg.GatewayServerKey),
		Orders:       a.orders,
		Tickets:      a.tickets,
		Numbering:    numbering.NewAssigner(repository.NewBucketRepo(a.db)),
		Capacity:     a.capacity,
		Clock:        a.clock,
		Reservations: a.reservations,
		Audit:        repository.NewWebhookLogRepo(a.db),
		Publisher:    events.NewPublisher(a.cfg.AMQPURL),
		Gateway:      gw,
	})
}

func (a *app) scheduler() retention.Scheduler {
	rc := config.LoadRetentionConfig()
	th := retention.Thresholds{
		WebhookLogs:          rc.WebhookLogs,
		PendingReservations:  rc.PendingReservations,
		TerminalReservations: rc.TerminalReservations,
		StockHolds:           rc.StockHolds,
	}
	return retention.Scheduler{
		Sweeper:        retention.NewSweeper(retention.Targets(repository.NewRetentionRepo(a.db), th), a.clock.Now),
		SweepInterval:  rc.Interval,
		Clock:          a.clock,
		Tickets:        a.tickets,
		ExpiryInterval: rc.ExpiryInterval,
	}
}
