// Package app wires the products service together: store, users service
// client, event notifier and the Fiber HTTP application.
package app

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"products/internal/config"
	"products/internal/database"
	"products/internal/events"
	"products/internal/handlers"
	"products/internal/health"
	"products/internal/identity"
	"products/internal/middleware"
	"products/internal/repositories"
	"products/internal/services"
	"products/pkg/rabbitmq"
)

// Deps are the collaborators of the HTTP application.
type Deps struct {
	Log      logrus.FieldLogger
	Products *services.ProductService
	Sessions middleware.SessionValidator
	Health   *health.Checker
}

// New builds the Fiber application with every route registered.
func New(d Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "products-service",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(d.Log),
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.RequestLogger(d.Log))

	if d.Health != nil {
		app.Get("/health", d.Health.Handler())
	}

	productHandler := handlers.NewProductHandler(d.Products, d.Log)
	productHandler.RegisterRoutes(app, middleware.SessionRequired(d.Sessions, d.Log))

	return app
}

// errorHandler renders errors that escape a handler, such as unknown routes
// and recovered panics, as JSON.
func errorHandler(log logrus.FieldLogger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "Internal server error"
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			message = fe.Message
		}
		if code >= fiber.StatusInternalServerError {
			log.WithError(err).WithField("path", c.Path()).Error("Unhandled error")
		}
		return c.Status(code).JSON(fiber.Map{"message": message})
	}
}

// Service is a fully wired products service ready to serve.
type Service struct {
	App    *fiber.App
	Events *events.Notifier

	cfg    *config.Config
	log    logrus.FieldLogger
	db     *gorm.DB
	broker *rabbitmq.Client
}

// Build opens every backend named by cfg and assembles the service. A broker
// that cannot be reached disables event publishing instead of failing.
func Build(cfg *config.Config, log logrus.FieldLogger) (*Service, error) {
	s := &Service{cfg: cfg, log: log}

	repo, err := s.openStore()
	if err != nil {
		return nil, err
	}

	var publisher events.Publisher
	if cfg.BrokerEnabled() {
		client, err := rabbitmq.NewClient(rabbitmq.Config{
			URL:       cfg.RabbitMQURL,
			Exchanges: events.Exchanges(),
		}, log)
		if err != nil {
			log.WithError(err).Warn("RabbitMQ unavailable, events will not be published")
		} else {
			s.broker = client
			publisher = client
		}
	} else {
		log.Info("RABBITMQ_URL not set, events will not be published")
	}
	s.Events = events.NewNotifier(publisher, log)

	users := identity.NewClient(cfg.UsersServiceURL, cfg.UsersServiceTimeout, log)
	products := services.NewProductService(repo, s.Events, users)

	s.App = New(Deps{
		Log:      log,
		Products: products,
		Sessions: users,
		Health:   s.healthChecks(),
	})
	return s, nil
}

// openStore picks the product repository for the configured driver.
func (s *Service) openStore() (repositories.ProductRepository, error) {
	if s.cfg.DatabaseDriver == database.DriverMemory {
		s.log.Warn("Using the in-memory product store, data will not survive a restart")
		return repositories.NewInMemoryProductRepository(), nil
	}

	db, err := database.Open(s.cfg.DatabaseDriver, s.cfg.DatabaseDSN, s.log)
	if err != nil {
		return nil, err
	}
	if s.cfg.DatabaseAutoMigrate {
		if err := database.Migrate(db); err != nil {
			_ = database.Close(db)
			return nil, err
		}
	}
	s.db = db
	return repositories.NewGORMProductRepository(db), nil
}

func (s *Service) healthChecks() *health.Checker {
	h := health.New()
	if s.db != nil {
		h.Add("database", 2*time.Second, func(ctx context.Context) error {
			return database.Ping(ctx, s.db)
		})
	}
	if s.broker != nil {
		h.AddOptional("rabbitmq", time.Second, func(context.Context) error {
			if s.broker.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		})
	}
	return h
}

// Run serves HTTP until ctx is cancelled, then shuts down within the
// configured timeout.
func (s *Service) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.cfg.AppPort).Info("Starting server")
		errCh <- s.App.Listen(s.cfg.AppPort)
	}()

	select {
	case err := <-errCh:
		s.Close()
		return errors.Wrap(err, "server failed")
	case <-ctx.Done():
	}

	s.log.WithField("timeout", s.cfg.ShutdownTimeout).Info("Shutting down server...")
	err := s.App.ShutdownWithTimeout(s.cfg.ShutdownTimeout)
	s.Close()
	if err != nil {
		return errors.Wrap(err, "shutdown")
	}
	s.log.Info("Server gracefully stopped")
	return nil
}

// Close releases the broker connection and the database pool.
func (s *Service) Close() {
	if s.broker != nil {
		if err := s.broker.Close(); err != nil {
			s.log.WithError(err).Warn("Error closing RabbitMQ connection")
		}
	}
	if s.db != nil {
		if err := database.Close(s.db); err != nil {
			s.log.WithError(err).Warn("Error closing database")
		}
	}
}
