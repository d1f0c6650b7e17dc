package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	httpapi "storage-booking-backend/internal/api/http"
	"storage-booking-backend/internal/cache"
	"storage-booking-backend/internal/config"
	"storage-booking-backend/internal/logger"
	"storage-booking-backend/internal/metrics"
	"storage-booking-backend/internal/repository"
	"storage-booking-backend/internal/repository/memory"
	"storage-booking-backend/internal/repository/postgres"
	"storage-booking-backend/internal/security"
	"storage-booking-backend/internal/seed"
	"storage-booking-backend/internal/service"

	_ "github.com/lib/pq"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	lg := logger.New(cfg.Log.Level, cfg.Log.Format, os.Stdout)
	lg.Info("Starting storage booking backend...", "log_level", cfg.Log.Level, "log_format", cfg.Log.Format)
	lg.Info("Server configuration", "http_address", cfg.GetHTTPAddress(), "grpc_address", cfg.GetGRPCAddress())

	store, closeStore, err := openStore(cfg, lg)
	if err != nil {
		lg.Error("Failed to open store", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	rec := metrics.NewRecorder()

	// Availability read cache
	var availabilityCache service.AvailabilityCache
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		if err := client.Ping(context.Background()).Err(); err != nil {
			lg.Warn("Redis not reachable, availability cache will miss until it is", "addr", cfg.Redis.Addr, "error", err)
		}
		availabilityCache = cache.NewAvailabilityCache(client, cfg.CacheTTL(), logger.WithComponent(lg, "cache"))
		lg.Info("Availability cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.CacheTTL())
	}

	// Initialize Email Service
	var emailSvc service.EmailService
	if cfg.Mail.SendGridAPIKey != "" {
		emailSvc = service.NewSendGridEmailService(cfg.Mail.SendGridAPIKey, cfg.Mail.From, cfg.Mail.FromName)
	} else {
		lg.Info("SendGrid API key not set, notifications are logged only")
		emailSvc = service.NewLogEmailService(logger.WithComponent(lg, "email"))
	}
	notifier := service.NewMailNotifier(store.Repositories().Users, emailSvc, cfg.Mail.OpsMailbox, cfg.MailTimeout(), logger.WithComponent(lg, "notifier"))

	// Initialize Services
	serviceLog := logger.WithComponent(lg, "booking")
	availabilitySvc := service.NewAvailabilityService(store, availabilityCache, rec, serviceLog)
	bookingSvc := service.NewBookingService(store, notifier, availabilityCache, rec, serviceLog, time.Now)

	// HTTP API
	apiLog := logger.WithComponent(lg, "http")
	tokenManager := security.NewTokenManager(cfg.JWT.Secret, cfg.AccessTokenTTL())
	router := httpapi.NewRouter(
		httpapi.NewBookingHandler(availabilitySvc, bookingSvc, apiLog),
		httpapi.NewAuthMiddleware(tokenManager, store.Repositories().Roles, apiLog),
		rec,
	)
	httpServer := &http.Server{
		Addr:              cfg.GetHTTPAddress(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// gRPC health endpoint for orchestrator health checks
	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	reflection.Register(grpcServer)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		lg.Info("HTTP server listening", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.Server.GRPCPort != 0 {
		g.Go(func() error {
			lis, err := net.Listen("tcp", cfg.GetGRPCAddress())
			if err != nil {
				return err
			}
			healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
			lg.Info("gRPC health server listening", "address", cfg.GetGRPCAddress())
			return grpcServer.Serve(lis)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		lg.Info("Shutting down...")
		healthSrv.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		grpcServer.GracefulStop()
		return err
	})

	if err := g.Wait(); err != nil {
		lg.Error("Server stopped with error", "error", err)
	}

	notifier.Wait()
	lg.Info("Server stopped. Goodbye!")
}

// openStore returns the configured store and a function releasing it.
func openStore(cfg *config.Config, lg *slog.Logger) (repository.Store, func(), error) {
	if cfg.Database.Driver == config.DriverMemory {
		lg.Warn("Using in-memory store, data is lost on restart")
		store := memory.NewStore()
		if cfg.Database.SeedFile != "" {
			data, err := seed.Load(cfg.Database.SeedFile)
			if err != nil {
				return nil, nil, err
			}
			data.ApplyMemory(store)
			lg.Info("Seeded in-memory store", "file", cfg.Database.SeedFile, "users", len(data.Users), "items", len(data.Items))
		}
		return store, func() {}, nil
	}

	lg.Info("Connecting to database...", "host", cfg.Database.Host, "port", cfg.Database.Port, "database", cfg.Database.Database, "user", cfg.Database.User)
	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	lg.Info("Database connection established")

	return postgres.NewStore(db, cfg.Database.MaxTxRetries, logger.WithComponent(lg, "postgres")), func() { db.Close() }, nil
}
