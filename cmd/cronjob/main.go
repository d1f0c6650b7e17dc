package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"storage-booking-backend/internal/config"
	"storage-booking-backend/internal/jobs"
	"storage-booking-backend/internal/logger"
	"storage-booking-backend/internal/repository/postgres"
	"storage-booking-backend/internal/scheduler"
	"storage-booking-backend/internal/service"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	runOnce := flag.String("run-once", "", "Run a specific job once and exit (e.g., 'send-overdue-reminders', 'all-nightly')")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Database.Driver != config.DriverPostgres {
		log.Fatalf("Cronjob runner needs the postgres store, got %q", cfg.Database.Driver)
	}

	// Initialize logger
	lg := logger.New(cfg.Log.Level, cfg.Log.Format, os.Stdout)
	lg.Info("Starting booking cronjob runner...", "log_level", cfg.Log.Level)

	// Initialize Database
	lg.Info("Connecting to database...", "host", cfg.Database.Host, "port", cfg.Database.Port)
	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		lg.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		lg.Error("Failed to ping database", "error", err)
		os.Exit(1)
	}
	lg.Info("Database connection established")

	store := postgres.NewStore(db, cfg.Database.MaxTxRetries, logger.WithComponent(lg, "postgres"))

	// Initialize Services
	var emailSvc service.EmailService
	if cfg.Mail.SendGridAPIKey != "" {
		emailSvc = service.NewSendGridEmailService(cfg.Mail.SendGridAPIKey, cfg.Mail.From, cfg.Mail.FromName)
	} else {
		emailSvc = service.NewLogEmailService(logger.WithComponent(lg, "email"))
	}
	notifier := service.NewMailNotifier(store.Repositories().Users, emailSvc, cfg.Mail.OpsMailbox, cfg.MailTimeout(), logger.WithComponent(lg, "notifier"))
	bookingSvc := service.NewBookingService(store, notifier, nil, nil, logger.WithComponent(lg, "booking"), time.Now)

	// Initialize Job Runner
	jobRunner := jobs.NewJobRunner(bookingSvc, cfg, logger.WithComponent(lg, "jobs"))

	// Check if running a single job
	if *runOnce != "" {
		lg.Info("Running job once", "job", *runOnce)
		runJobOnce(jobRunner, *runOnce)
		notifier.Wait()
		lg.Info("Job execution completed", "job", *runOnce)
		return
	}

	// Initialize Scheduler
	cronScheduler, err := scheduler.NewScheduler(jobRunner, lg)
	if err != nil {
		lg.Error("Failed to create scheduler", "error", err)
		os.Exit(1)
	}

	cronScheduler.Start()
	lg.Info("Cronjob scheduler is running. Press Ctrl+C to stop.")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// Graceful shutdown
	lg.Info("Shutting down cronjob scheduler...")
	cronScheduler.Stop()
	notifier.Wait()
	lg.Info("Cronjob scheduler stopped. Goodbye!")
}

// runJobOnce runs a specific job once and exits
func runJobOnce(jobRunner *jobs.JobRunner, jobName string) {
	switch jobName {
	case "send-overdue-reminders":
		jobRunner.SendOverdueReminders()
	case "all-nightly":
		jobRunner.RunAllNightlyJobs()
	default:
		fmt.Printf("Unknown job %q. Available jobs:\n", jobName)
		fmt.Printf("  - send-overdue-reminders\n")
		fmt.Printf("  - all-nightly\n")
		os.Exit(1)
	}
}
