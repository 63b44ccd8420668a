package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	availabilityCommands "github.com/felixgeelhaar/slotwise/internal/availability/application/commands"
	availabilityQueries "github.com/felixgeelhaar/slotwise/internal/availability/application/queries"
	availabilityServices "github.com/felixgeelhaar/slotwise/internal/availability/application/services"
	bookingCommands "github.com/felixgeelhaar/slotwise/internal/booking/application/commands"
	bookingQueries "github.com/felixgeelhaar/slotwise/internal/booking/application/queries"
	bookingServices "github.com/felixgeelhaar/slotwise/internal/booking/application/services"
	"github.com/felixgeelhaar/slotwise/internal/booking/infrastructure/redislock"
	calendarApp "github.com/felixgeelhaar/slotwise/internal/calendar/application"
	calendarSubs "github.com/felixgeelhaar/slotwise/internal/calendar/application/subscribers"
	googleCalendar "github.com/felixgeelhaar/slotwise/internal/calendar/infrastructure/google"
	microsoftCalendar "github.com/felixgeelhaar/slotwise/internal/calendar/infrastructure/microsoft"
	calendarSetup "github.com/felixgeelhaar/slotwise/internal/calendar/setup"
	sharedDomain "github.com/felixgeelhaar/slotwise/internal/shared/domain"
	sharedCrypto "github.com/felixgeelhaar/slotwise/internal/shared/infrastructure/crypto"
	"github.com/felixgeelhaar/slotwise/internal/shared/infrastructure/database"
	_ "github.com/felixgeelhaar/slotwise/internal/shared/infrastructure/database/postgres" // Register PostgreSQL driver
	_ "github.com/felixgeelhaar/slotwise/internal/shared/infrastructure/database/sqlite"   // Register SQLite driver
	"github.com/felixgeelhaar/slotwise/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/slotwise/internal/shared/infrastructure/migrations"
	"github.com/felixgeelhaar/slotwise/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/slotwise/pkg/config"
	"github.com/felixgeelhaar/slotwise/pkg/observability"
)

// Container holds all application dependencies.
type Container struct {
	Config  *config.Config
	Logger  *slog.Logger
	Clock   sharedDomain.Clock
	Metrics *observability.InMemoryMetrics
	Health  *observability.HealthRegistry

	// Database
	DBConn   database.Connection
	DBDriver database.Driver

	// Redis, nil when the in-process locker is used.
	RedisClient *redis.Client

	Repos *Repositories

	// Messaging. InProcessBus is set when no broker is configured; it is
	// then also the EventPublisher.
	EventPublisher  eventbus.Publisher
	InProcessBus    *eventbus.InProcessBus
	OutboxProcessor *outbox.Processor

	// Calendars
	ProviderRegistry   *calendarApp.ProviderRegistry
	Breakers           *calendarApp.BreakerSet
	Calendars          *calendarApp.Calendars
	ConnectCalendar    *calendarApp.ConnectCalendarService
	DisconnectCalendar *calendarApp.DisconnectCalendarService
	DetectConflicts    *calendarApp.ConflictDetector

	// Availability
	BusyLoader      *availabilityServices.BusyLoader
	UpsertSchedule  *availabilityCommands.UpsertScheduleHandler
	UpsertEventType *availabilityCommands.UpsertEventTypeHandler
	ComputeSlots    *availabilityQueries.ComputeSlotsHandler

	// Booking
	Locker         bookingServices.Locker
	Reserver       *bookingServices.Reserver
	CreateBooking  *bookingCommands.CreateBookingHandler
	CancelBooking  *bookingCommands.CancelBookingHandler
	ConfirmBooking *bookingCommands.ConfirmBookingHandler
	DeclineBooking *bookingCommands.DeclineBookingHandler
	ListBookings   *bookingQueries.ListBookingsHandler

	// Subscribers
	CalendarPushSubscriber *calendarSubs.CalendarPushSubscriber
}

// Option customizes a Container before it is wired.
type Option func(*Container)

// WithClock replaces the system clock.
func WithClock(clock sharedDomain.Clock) Option {
	return func(c *Container) { c.Clock = clock }
}

// NewContainer creates and wires all dependencies.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Container, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Container{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewInMemoryMetrics(),
		Health:  observability.NewHealthRegistry(),
	}
	for _, opt := range opts {
		opt(c)
	}

	conn, err := database.NewConnection(ctx, database.Config{
		URL:        cfg.DatabaseURL,
		SQLitePath: cfg.SQLitePath,
		MaxConns:   cfg.DatabaseMaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	c.DBConn = conn
	c.DBDriver = conn.Driver()
	logger.Info("connected to database", "driver", c.DBDriver)

	if cfg.AutoMigrate {
		if err := migrations.Run(ctx, conn, logger); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	c.Repos, err = NewRepositoryFactory(conn, c.Clock).Build()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	if err := c.initLocker(ctx); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.initEventBus(); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.initCalendars(); err != nil {
		c.Close()
		return nil, err
	}
	c.initHandlers()
	c.initSubscribers()
	c.registerHealthChecks()

	logger.Info("container initialized",
		"driver", c.DBDriver,
		"locker", lockerKind(c.RedisClient),
		"bus", busKind(c.InProcessBus),
		"providers", c.ProviderRegistry.SupportedProviders(),
	)
	return c, nil
}

// initLocker selects the distributed locker when Redis is configured. The
// in-process locker only serializes writers inside one process.
func (c *Container) initLocker(ctx context.Context) error {
	cfg := c.Config
	if cfg.RedisURL == "" {
		c.Locker = bookingServices.NewKeyedLocker()
		if !cfg.LocalMode() {
			c.Logger.Warn("REDIS_URL not set; reservations are only serialized within this process")
		}
		return nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	c.RedisClient = client
	c.Locker = redislock.New(client, redislock.Config{TTL: cfg.LockTTL}, c.Logger)
	c.Logger.Info("connected to Redis")
	return nil
}

func (c *Container) initEventBus() error {
	cfg := c.Config
	if cfg.RabbitMQURL == "" {
		c.InProcessBus = eventbus.NewInProcessBus(c.Logger)
		c.EventPublisher = c.InProcessBus
	} else {
		publisher, err := eventbus.NewRabbitMQPublisher(cfg.RabbitMQURL, c.Logger)
		if err != nil {
			return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		c.EventPublisher = publisher
	}

	c.OutboxProcessor = outbox.NewProcessor(c.Repos.Outbox, c.EventPublisher, outbox.ProcessorConfig{
		PollInterval:    cfg.OutboxPollInterval,
		BatchSize:       cfg.OutboxBatchSize,
		MaxRetries:      cfg.OutboxMaxRetries,
		RetentionDays:   cfg.OutboxRetentionDays,
		CleanupInterval: cfg.OutboxCleanupInterval,
	}, c.Logger, c.Metrics).WithClock(c.Clock)
	return nil
}

func (c *Container) initCalendars() error {
	cfg := c.Config

	var cipher calendarApp.Cipher
	if cfg.EncryptionKey != "" {
		keyring, err := sharedCrypto.ParseKeyring(cfg.EncryptionKey)
		if err != nil {
			return fmt.Errorf("invalid SLOTWISE_ENCRYPTION_KEY: %w", err)
		}
		c.Logger.Debug("credential keyring loaded", "primary_key", keyring.PrimaryKeyID())
		cipher = keyring
	} else {
		c.Logger.Warn("SLOTWISE_ENCRYPTION_KEY not set; calendars with credentials cannot be connected")
	}
	sealer := calendarApp.NewCredentialSealer(cipher)

	c.ProviderRegistry = calendarApp.NewProviderRegistry()
	providers := calendarSetup.ProviderConfig{
		CalDAV: cfg.CalDAVEnabled,
		Clock:  c.Clock,
		Logger: c.Logger,
	}
	if cfg.GoogleClientID != "" && cfg.GoogleClientSecret != "" {
		providers.Google = googleCalendar.OAuthConfig(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.OAuthRedirectURL)
	}
	if cfg.MicrosoftClientID != "" && cfg.MicrosoftClientSecret != "" {
		providers.Microsoft = microsoftCalendar.OAuthConfig(cfg.MicrosoftClientID, cfg.MicrosoftClientSecret, cfg.OAuthRedirectURL, cfg.MicrosoftTenant)
	}
	calendarSetup.RegisterProviders(c.ProviderRegistry, providers)

	c.Breakers = calendarApp.NewBreakerSet(calendarApp.BreakerConfig{
		MaxFailures:      uint32(max(cfg.BreakerMaxFailures, 1)),
		OpenTimeout:      cfg.BreakerOpenTimeout,
		HalfOpenRequests: 1,
	}, c.Logger, c.Metrics)

	repo := c.Repos.ConnectedCalendar
	c.Calendars = calendarApp.NewCalendars(repo, c.ProviderRegistry, sealer, c.Breakers, c.Logger)
	c.ConnectCalendar = calendarApp.NewConnectCalendarService(repo, c.Repos.Outbox, c.Repos.UnitOfWork, sealer, c.Clock, c.Logger)
	c.DisconnectCalendar = calendarApp.NewDisconnectCalendarService(repo, c.Repos.Outbox, c.Repos.UnitOfWork, c.Clock, c.Logger)
	c.DetectConflicts = calendarApp.NewConflictDetector(c.Calendars, c.Repos.Bookings, c.Logger)
	return nil
}

func (c *Container) initHandlers() {
	cfg := c.Config
	r := c.Repos

	policy, err := availabilityServices.ParseFailurePolicy(cfg.BusySourceFailurePolicy)
	if err != nil {
		c.Logger.Warn("unknown busy-source failure policy, assuming busy", "policy", cfg.BusySourceFailurePolicy)
	}
	collector := availabilityServices.NewBusyCollector(availabilityServices.CollectorConfig{
		Timeout:     cfg.BusySourceTimeout,
		Concurrency: cfg.BusySourceConcurrency,
		Policy:      policy,
	}, c.Logger, c.Metrics)
	c.BusyLoader = availabilityServices.NewBusyLoader(r.Bookings, c.Calendars, collector)

	c.UpsertSchedule = availabilityCommands.NewUpsertScheduleHandler(r.Schedules, r.UnitOfWork, c.Clock)
	c.UpsertEventType = availabilityCommands.NewUpsertEventTypeHandler(r.EventTypes, r.Schedules, r.UnitOfWork, c.Clock)
	c.ComputeSlots = availabilityQueries.NewComputeSlotsHandler(r.EventTypes, r.Schedules, c.BusyLoader, c.Clock, c.Logger, c.Metrics)

	c.Reserver = bookingServices.NewReserver(r.Bookings, r.Outbox, r.UnitOfWork, c.Locker, c.Clock, bookingServices.ReserverConfig{
		MaxAttempts: cfg.ReserveMaxAttempts,
		BackoffBase: cfg.ReserveBackoffBase,
		BackoffMax:  cfg.ReserveBackoffMax,
		Timeout:     cfg.ReserveTimeout,
	}, c.Logger, c.Metrics)
	c.CreateBooking = bookingCommands.NewCreateBookingHandler(
		r.EventTypes,
		availabilityServices.NewSlotVerifier(r.Schedules, c.BusyLoader),
		c.Reserver,
		bookingServices.NewRecurrenceExpander(cfg.RecurrenceMaxOccurrences),
		c.Clock,
		c.Logger,
	)
	c.CancelBooking = bookingCommands.NewCancelBookingHandler(r.Bookings, r.Outbox, r.UnitOfWork, c.Clock, c.Logger)
	c.ConfirmBooking = bookingCommands.NewConfirmBookingHandler(r.Bookings, r.Outbox, r.UnitOfWork, c.Clock)
	c.DeclineBooking = bookingCommands.NewDeclineBookingHandler(r.Bookings, r.Outbox, r.UnitOfWork, c.Clock)
	c.ListBookings = bookingQueries.NewListBookingsHandler(r.Bookings)
}

func (c *Container) initSubscribers() {
	c.CalendarPushSubscriber = calendarSubs.NewCalendarPushSubscriber(c.Calendars, c.Repos.EventTypes, c.Logger, c.Metrics)
	if c.InProcessBus != nil {
		for _, h := range c.Subscribers() {
			c.InProcessBus.Subscribe(h)
		}
	}
}

// Subscribers returns the handlers that consume domain events.
func (c *Container) Subscribers() []eventbus.Handler {
	return []eventbus.Handler{c.CalendarPushSubscriber}
}

func (c *Container) registerHealthChecks() {
	c.Health.Register("database", pingCheck(c.DBConn.Ping))
	if c.RedisClient != nil {
		c.Health.Register("redis", pingCheck(func(ctx context.Context) error {
			return c.RedisClient.Ping(ctx).Err()
		}))
	}
}

func pingCheck(ping func(context.Context) error) observability.HealthChecker {
	return func(ctx context.Context) observability.HealthCheckResult {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		start := time.Now()
		if err := ping(ctx); err != nil {
			return observability.HealthCheckResult{
				Status:   observability.HealthStatusUnhealthy,
				Message:  err.Error(),
				Duration: time.Since(start),
			}
		}
		return observability.HealthCheckResult{Status: observability.HealthStatusHealthy, Duration: time.Since(start)}
	}
}

// Close releases all resources.
func (c *Container) Close() {
	if c.OutboxProcessor != nil {
		c.OutboxProcessor.Stop()
	}
	if c.EventPublisher != nil {
		if err := c.EventPublisher.Close(); err != nil {
			c.Logger.Warn("failed to close event publisher", "error", err)
		}
	}
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			c.Logger.Warn("failed to close Redis client", "error", err)
		}
	}
	if c.DBConn != nil {
		if err := c.DBConn.Close(); err != nil {
			c.Logger.Warn("failed to close database", "error", err)
		}
	}
}

func lockerKind(client *redis.Client) string {
	if client != nil {
		return "redis"
	}
	return "in-process"
}

func busKind(bus *eventbus.InProcessBus) string {
	if bus != nil {
		return "in-process"
	}
	return "rabbitmq"
}
