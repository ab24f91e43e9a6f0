package cli

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-playground/validator/v10"

	"rentacar-backend/internal/config"
	"rentacar-backend/internal/eligibility"
	"rentacar-backend/internal/gateway"
	"rentacar-backend/internal/jobs"
	"rentacar-backend/internal/ledger"
	"rentacar-backend/internal/logger"
	"rentacar-backend/internal/repository"
	"rentacar-backend/internal/repository/memory"
	"rentacar-backend/internal/repository/postgres"
	"rentacar-backend/internal/service"
	"rentacar-backend/internal/tracking"
)

// backend is what a storage driver provides.
type backend interface {
	repository.Transactor
	repository.CustomerDirectory
	repository.VehicleDirectory
	repository.TrackingRepository
}

// app holds the wired components shared by the commands.
type app struct {
	cfg          *config.Config
	db           *sql.DB
	store        backend
	gateway      *gateway.Client
	reservations *service.Reservations
	payments     *service.Payments
	tracking     *tracking.Service
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	return cfg, nil
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}
	if cfg.Database.Driver == "memory" {
		logger.Warn("Using in-memory store; data is lost on exit")
		a.store = memory.NewStore()
	} else {
		logger.Info("Connecting to database...", "driver", cfg.Database.Driver, "host", cfg.Database.Host, "port", cfg.Database.Port, "database", cfg.Database.Database)
		db, err := postgres.Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		logger.Info("Database connection established")
		a.db = db
		a.store = postgres.NewStore(db)
	}

	validate := validator.New()
	a.gateway = gateway.New(cfg.Gateway)
	a.reservations = service.NewReservationService(
		a.store,
		a.store,
		a.store,
		ledger.New(nil),
		eligibility.NewScorer(cfg.Eligibility),
		a.gateway,
		validate,
		cfg.Reservation,
	)
	a.payments = service.NewPaymentService(a.store, a.reservations, validate)
	a.tracking = tracking.NewService(a.store, validate)
	return a, nil
}

func (a *app) jobRunner() *jobs.JobRunner {
	return jobs.NewJobRunner(a.store, a.reservations, a.cfg)
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
}

// withSignals returns a context cancelled on SIGINT or SIGTERM.
func withSignals(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

// instanceID names this process for outbox leases.
func instanceID(component string) string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%s-%d", component, host, os.Getpid())
}
