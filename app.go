package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"accounts/internal/config"
	"accounts/internal/database"
	"accounts/internal/handlers"
	"accounts/internal/middleware"
	"accounts/internal/repositories"
	"accounts/internal/services"
	"accounts/pkg/mailer"
	"accounts/pkg/rabbitmq"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/streadway/amqp"
)

const (
	healthTimeout   = 2 * time.Second
	deliveryTimeout = 30 * time.Second
)

// healthCheck reports whether the backing store is reachable.
type healthCheck func(ctx context.Context) error

// dependencies groups the store and email transport selected by configuration.
type dependencies struct {
	users  repositories.UserRepository
	resets repositories.ResetTokenRepository
	sender mailer.Sender
	health healthCheck

	closers []func() error
}

// Close releases every opened connection in reverse order.
func (d *dependencies) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			log.Printf("Error closing dependency: %v", err)
		}
	}
	d.closers = nil
}

func buildDependencies(ctx context.Context, cfg *config.Config) (*dependencies, error) {
	deps := &dependencies{}
	if err := buildStore(ctx, cfg, deps); err != nil {
		deps.Close()
		return nil, err
	}
	if err := buildSender(ctx, cfg, deps); err != nil {
		deps.Close()
		return nil, err
	}
	return deps, nil
}

func buildStore(ctx context.Context, cfg *config.Config, deps *dependencies) error {
	switch cfg.DatabaseDriver {
	case config.DriverMemory:
		users := repositories.NewMemoryUserRepository()
		deps.users = users
		deps.resets = repositories.NewMemoryResetTokenRepository(users)
		deps.health = func(context.Context) error { return nil }
		log.Println("Using in-memory store; data is lost on restart")

	case config.DriverPostgres, config.DriverSQLite:
		db, err := database.OpenGORM(cfg)
		if err != nil {
			return err
		}
		deps.closers = append(deps.closers, func() error { return database.CloseGORM(db) })
		deps.users = repositories.NewGORMUserRepository(db)
		deps.resets = repositories.NewGORMResetTokenRepository(db)
		deps.health = func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}

	case config.DriverMongo:
		client, err := database.ConnectMongo(ctx, cfg)
		if err != nil {
			return err
		}
		deps.closers = append(deps.closers, func() error { return client.Disconnect(context.Background()) })

		db := client.Database(cfg.MongoDatabase)
		users := repositories.NewMongoUserRepository(db)
		resets := repositories.NewMongoResetTokenRepository(db)
		if err := users.EnsureIndexes(ctx); err != nil {
			return err
		}
		if err := resets.EnsureIndexes(ctx); err != nil {
			return err
		}
		deps.users = users
		deps.resets = resets
		deps.health = func(ctx context.Context) error { return client.Ping(ctx, nil) }

	default:
		return fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}
	return nil
}

func buildSender(ctx context.Context, cfg *config.Config, deps *dependencies) error {
	switch cfg.EmailTransport {
	case config.TransportLog:
		deps.sender = mailer.NewLogSender()

	case config.TransportSMTP:
		deps.sender = newSMTPSender(cfg)

	case config.TransportAMQP:
		client, err := rabbitmq.NewClient(rabbitmq.Config{URL: cfg.RabbitMQURL, Queue: cfg.EmailQueue})
		if err != nil {
			return err
		}
		deps.closers = append(deps.closers, client.Close)
		deps.sender = mailer.NewQueueSender(client)

		var delivery mailer.Sender = mailer.NewLogSender()
		if cfg.EmailHost != "" {
			delivery = newSMTPSender(cfg)
		} else {
			log.Println("EMAIL_HOST is not set; queued emails will only be logged")
		}
		worker := mailer.NewQueueWorker(delivery)
		err = client.Consume(func(msg amqp.Delivery) error {
			deliverCtx, cancel := context.WithTimeout(ctx, deliveryTimeout)
			defer cancel()
			return worker.Deliver(deliverCtx, msg.Body)
		})
		if err != nil {
			return err
		}

	default:
		return fmt.Errorf("unsupported email transport %q", cfg.EmailTransport)
	}
	return nil
}

func newSMTPSender(cfg *config.Config) *mailer.SMTPSender {
	return mailer.NewSMTPSender(mailer.SMTPConfig{
		Host:     cfg.EmailHost,
		Port:     cfg.EmailPort,
		Username: cfg.EmailUser,
		Password: cfg.EmailPassword,
	})
}

// newApp builds the Fiber app with middleware and all routes registered.
func newApp(cfg *config.Config, accountService *services.AccountService, health healthCheck) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ErrorHandler: handlers.ErrorHandler,
	})

	// --- Middleware ---
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.FrontendURL,
		AllowCredentials: true,
	}))

	// --- Health Check Endpoint ---
	app.Get("/health", func(c *fiber.Ctx) error {
		status, code := "healthy", fiber.StatusOK
		if health != nil {
			ctx, cancel := context.WithTimeout(c.UserContext(), healthTimeout)
			defer cancel()
			if err := health(ctx); err != nil {
				log.Printf("Health check failed: %v", err)
				status, code = "unhealthy", fiber.StatusServiceUnavailable
			}
		}
		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// --- API Routes ---
	extract := middleware.FirstOf(
		middleware.FromCookie(middleware.SessionCookie),
		middleware.FromBearerHeader(),
	)
	accountHandler := handlers.NewAccountHandler(accountService, handlers.HandlerOptions{
		CookieSecure:   cfg.CookieSecure,
		RequestTimeout: cfg.RequestTimeout,
		TokenExtractor: extract,
	})

	api := app.Group("/api")
	accountHandler.RegisterRoutes(api, middleware.AuthRequired(accountService, extract))

	return app
}
