package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mailsequence/config"
	"mailsequence/middleware"
	"mailsequence/routes"
	"mailsequence/sequencer"
	"mailsequence/utils"
	"mailsequence/worker"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	logger := log.New(os.Stdout, "SERVER: ", log.Ldate|log.Ltime|log.Lshortfile)

	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	if config.AppConfig.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.AppConfig.SentryDSN,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			logger.Printf("Sentry initialization failed: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := config.ConnectRedis(ctx); err != nil {
		logger.Fatalf("Failed to connect to redis: %v", err)
	}

	// Locks and worker wake-ups go through Redis when it is available so
	// several instances can share the job table.
	var (
		locker   sequencer.Locker
		notifier sequencer.Notifier
		wakeups  <-chan struct{}
	)
	if config.Redis != nil {
		locker = sequencer.NewRedisLocker(config.Redis, config.AppConfig.Engine.LockTTL, config.AppConfig.Engine.LockWait)
		redisNotifier := worker.NewRedisNotifier(config.Redis, log.New(os.Stdout, "SCHEDULER: ", log.LstdFlags))
		notifier = redisNotifier
		wakeups = redisNotifier.Subscribe(ctx)
	} else {
		locker = sequencer.NewMemoryLocker()
		channelNotifier := worker.NewChannelNotifier()
		notifier = channelNotifier
		wakeups = channelNotifier.Wakeups()
	}

	engine := sequencer.NewEngine(
		sequencer.NewGormStore(config.DB),
		locker,
		notifier,
		sequencer.Options{
			Order:        sequencer.ParseOrderMode(config.AppConfig.Engine.SequenceOrder),
			Spacing:      config.AppConfig.Engine.EmailSpacing,
			StrictLabels: config.AppConfig.Engine.StrictLabels,
		},
		log.New(os.Stdout, "SEQUENCE: ", log.LstdFlags),
	)

	if config.AppConfig.Worker.Enabled {
		smtp := config.AppConfig.SMTP
		mailer := utils.NewSMTPMailer(utils.SMTPConfig{
			Host:      smtp.Host,
			Port:      smtp.Port,
			Username:  smtp.Username,
			Password:  smtp.Password,
			FromEmail: smtp.FromEmail,
			FromName:  smtp.FromName,
			Timeout:   smtp.Timeout,
		})

		schedulerWorker := worker.NewSchedulerWorker(
			worker.NewGormJobStore(config.DB),
			mailer,
			log.New(os.Stdout, "SCHEDULER: ", log.LstdFlags),
			worker.Config{
				WorkerID:     config.AppConfig.Worker.ID,
				PollInterval: config.AppConfig.Worker.PollInterval,
				BatchSize:    config.AppConfig.Worker.BatchSize,
				StaleAfter:   config.AppConfig.Worker.StaleAfter,
			},
		)
		schedulerWorker.Wakeups = wakeups
		go schedulerWorker.Start(ctx)
	}

	app := fiber.New()
	app.Use(recover.New())
	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:   config.AppConfig.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "X-Requested-With"},
		ExposedHeaders:   []string{"Content-Length"},
		MaxAge:           3600,
	}))

	routes.SetupRoutes(app, engine)

	go func() {
		<-ctx.Done()
		logger.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Printf("Server shutdown failed: %v", err)
		}
	}()

	logger.Printf("🚀 Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen("0.0.0.0:" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
