package cli

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	grpcapi "rentacar-backend/internal/api/grpc"
	httpapi "rentacar-backend/internal/api/http"
	"rentacar-backend/internal/events"
	"rentacar-backend/internal/logger"
	"rentacar-backend/internal/outbox"
	"rentacar-backend/internal/security"
)

func NewServeCmd(configPath *string) *cobra.Command {
	var noRelays bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and gRPC APIs, payment outbox and event relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := withSignals(cmd.Context())
			defer stop()

			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			cfg := a.cfg
			logger.Info("Starting rental reservation core...", "http", cfg.GetServerAddress(), "grpc", cfg.GetGRPCAddress(), "event_sink", cfg.Events.Sink)

			// HTTP
			tm := security.NewTokenManager(cfg.Auth.Secret, cfg.Auth.Issuer)
			deps := map[string]httpapi.Pinger{}
			if a.db != nil {
				deps["database"] = a.db
			}
			router := mux.NewRouter()
			httpapi.NewHandler(a.reservations, a.payments, a.tracking).
				RegisterRoutes(router, httpapi.NewAuthMiddleware(tm, cfg.Auth.WebhookSecret), httpapi.HealthHandler("rentald", deps))
			httpSrv := &http.Server{
				Addr:    cfg.GetServerAddress(),
				Handler: otelhttp.NewHandler(router, "rentald"),
			}

			var sink events.Sink
			if !noRelays {
				if sink, err = events.NewSink(cfg.Events); err != nil {
					return err
				}
				defer sink.Close()
			}

			// gRPC
			grpcSrv, health := grpcapi.NewServer(a.reservations, tm)
			lis, err := net.Listen("tcp", cfg.GetGRPCAddress())
			if err != nil {
				logger.Error("Failed to listen", "error", err, "address", cfg.GetGRPCAddress())
				return err
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logger.Info("HTTP server listening", "address", httpSrv.Addr)
				if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				logger.Info("gRPC server listening", "address", cfg.GetGRPCAddress())
				return grpcSrv.Serve(lis)
			})

			if !noRelays {
				payRelay := outbox.NewRelay(a.store, a.gateway, a.payments, instanceID("payments"), cfg.Outbox)
				evRelay := events.NewRelay(a.store, sink, instanceID("events"), cfg.Events)
				g.Go(func() error { return payRelay.Run(gctx) })
				g.Go(func() error { return evRelay.Run(gctx) })
			}
			grpcapi.SetServing(health, true)

			<-gctx.Done()
			logger.Info("Shutting down...")
			grpcapi.SetServing(health, false)

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP shutdown failed", "error", err)
			}
			grpcSrv.GracefulStop()

			err = g.Wait()
			logger.Info("Server stopped")
			return err
		},
	}
	cmd.Flags().BoolVar(&noRelays, "no-relays", false, "Serve the API only; run the outbox and event relays elsewhere")
	return cmd
}
