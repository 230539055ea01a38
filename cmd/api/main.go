package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/robfig/cron/v3"
	config "github.com/tutorhub/api/configs"
	"github.com/tutorhub/api/database"
	"github.com/tutorhub/api/events"
	"github.com/tutorhub/api/handlers"
	"github.com/tutorhub/api/jobs"
	"github.com/tutorhub/api/logger"
	"github.com/tutorhub/api/middleware"
	"github.com/tutorhub/api/notifications"
	"github.com/tutorhub/api/payments"
	"github.com/tutorhub/api/routes"
	"github.com/tutorhub/api/services"
	"github.com/tutorhub/api/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("failed to load config")
	}
	log := logger.New(cfg.Logging.Level, cfg.Logging.Pretty)
	logger.Log = log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	if err := database.Migrate(db, cfg.Database, log); err != nil {
		log.Fatal().Err(err).Msg("database migration failed")
	}
	if err := database.SeedAdmin(db, cfg.Admin, log); err != nil {
		log.Fatal().Err(err).Msg("admin seed failed")
	}

	store, locker, closeCache := buildCache(cfg, log)
	defer closeCache()

	uploader, err := buildUploader(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("storage setup failed")
	}

	bus := events.NewLocalBus(log)
	publisher, err := buildPublisher(cfg, bus, log)
	if err != nil {
		log.Fatal().Err(err).Msg("event publisher setup failed")
	}
	defer publisher.Close()

	gateway := payments.NewPaystack(cfg.Paystack.BaseURL, cfg.Paystack.SecretKey, log)
	policy := services.BookingPolicy{
		LiveExpiry:      cfg.Booking.LiveExpiry,
		ScheduledExpiry: cfg.Booking.ScheduledExpiry,
		NoShowGrace:     cfg.Booking.NoShowGrace,
		Currency:        cfg.Paystack.Currency,
		DefaultPrice:    cfg.Paystack.DefaultPrice,
		CallbackURL:     cfg.Paystack.CallbackURL,
	}

	refunds := services.NewRefundService(db, gateway, publisher, cfg.Booking.RefundMaxAttempts, log)
	bookings := services.NewBookingService(db, gateway, refunds, publisher, policy, log)
	bookings.TutorCache = store
	receipts := services.NewReceiptService(db, uploader, log)

	hub := websocket.NewHub(log)
	go hub.Run(ctx)

	mailer := notifications.NewMailer(cfg.Email, log)
	dispatcher := notifications.NewDispatcher(db, mailer, hub, receipts, log)
	if err := events.Subscribe(ctx, bus, cfg.Events.Topic, log, dispatcher.Handle); err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe notifications")
	}

	scheduler := cron.New()
	runner := jobs.NewRunner(locker, log)
	schedules := jobs.Schedules{
		Sweep:       cfg.Booking.SweepSchedule,
		RefundRetry: cfg.Booking.RefundRetrySchedule,
		Reminder:    cfg.Booking.ReminderSchedule,
	}
	if err := jobs.Register(scheduler, runner, schedules, bookings, refunds, jobs.NewReminders(db, mailer, log)); err != nil {
		log.Fatal().Err(err).Msg("failed to schedule jobs")
	}
	scheduler.Start()

	h := &handlers.Handler{
		DB:            db,
		Accounts:      services.NewAccountService(db, cfg.JWT.Secret, cfg.JWT.TTL, log),
		Tutors:        services.NewTutorService(db, gateway, uploader, store, cfg.Redis.CacheTTL, cfg.Paystack.PercentageCharge, log),
		Bookings:      bookings,
		Refunds:       refunds,
		Dashboards:    services.NewDashboardService(db, policy, cfg.Booking.DashboardPageSize),
		Hub:           hub,
		WebhookSecret: cfg.Paystack.SecretKey,
		Log:           log.With().Str("component", "http").Logger(),
	}

	app := fiber.New(fiber.Config{
		AppName:       "TutorHub",
		CaseSensitive: true,
		StrictRouting: true,
		BodyLimit:     12 << 20,
		ReadTimeout:   cfg.Server.ReadTimeout,
		WriteTimeout:  cfg.Server.WriteTimeout,
		IdleTimeout:   cfg.Server.IdleTimeout,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			log.Error().Err(err).Str("path", c.Path()).Str("method", c.Method()).Msg("unhandled error")
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
				"code":  "internal",
			})
		},
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:  cfg.Server.AllowOrigins,
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowMethods:  "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		ExposeHeaders: "Content-Length, Content-Disposition",
		MaxAge:        86400,
	}))
	app.Use(recover.New())
	app.Use(middleware.RequestLogger(log))
	app.Use(middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst).Handler())

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "success",
			"message": "Welcome to TutorHub API",
		})
	})
	routes.Register(app, h, cfg.JWT.Secret)

	go func() {
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			log.Fatal().Err(err).Msg("server failed to start")
		}
	}()
	log.Info().Str("port", cfg.Server.Port).Msg("server is running")

	<-ctx.Done()
	log.Info().Msg("shutting down")

	stopped := scheduler.Stop()
	if err := app.ShutdownWithTimeout(15 * time.Second); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	select {
	case <-stopped.Done():
	case <-time.After(30 * time.Second):
		log.Warn().Msg("jobs still running at shutdown")
	}
}
