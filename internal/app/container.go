package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Tsipchain/driver-platform/domain"
	"github.com/Tsipchain/driver-platform/internal/config"
	httpx "github.com/Tsipchain/driver-platform/internal/http"
	"github.com/Tsipchain/driver-platform/internal/http/handlers"
	"github.com/Tsipchain/driver-platform/internal/http/middleware"
	"github.com/Tsipchain/driver-platform/internal/infrastructure/audit"
	"github.com/Tsipchain/driver-platform/internal/infrastructure/auth"
	"github.com/Tsipchain/driver-platform/internal/infrastructure/database"
	"github.com/Tsipchain/driver-platform/internal/infrastructure/notifications"
	"github.com/Tsipchain/driver-platform/internal/infrastructure/repositories"
	"github.com/Tsipchain/driver-platform/internal/phone"
	"github.com/Tsipchain/driver-platform/internal/services"
)

// Container holds all dependencies
type Container struct {
	// Config
	Config *config.Config
	Logger *zap.Logger
	Clock  domain.Clock

	// Infrastructure
	DB          *gorm.DB
	RedisClient *redis.Client
	KafkaWriter *kafka.Writer
	Casbin      *auth.CasbinService
	Hasher      domain.Hasher
	Normalizer  *phone.Normalizer
	Audit       domain.AuditLogger

	// Repositories
	DriverRepo        domain.DriverRepository
	SessionRepo       domain.SessionRepository
	AttemptRepo       domain.AttemptRepository
	OperatorTokenRepo domain.OperatorTokenRepository
	OrganizationRepo  domain.OrganizationRepository
	TxManager         domain.TxManager

	// Services
	EmailSvc    domain.NotificationService
	SMSSvc      domain.NotificationService
	CodeSender  domain.CodeSender
	OTPSvc      domain.OTPService
	SessionSvc  domain.SessionService
	AuthSvc     domain.AuthService
	RateLimiter  domain.RateLimiter
	LoginLimiter domain.RateLimiter
	TrialSvc     domain.TrialService
	ScopeSvc    domain.ScopeResolver
	OperatorSvc domain.OperatorService
	PolicySvc   domain.PolicyService
}

// NewContainer creates and initializes all dependencies
func NewContainer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	container := &Container{
		Config: cfg,
		Logger: logger,
		Clock:  services.NewSystemClock(),
	}

	// Initialize infrastructure
	if err := container.initDatabase(); err != nil {
		return nil, err
	}
	if err := container.initRedis(ctx); err != nil {
		container.Close()
		return nil, err
	}
	if err := container.initCasbin(); err != nil {
		container.Close()
		return nil, err
	}
	container.Hasher = auth.NewHasher(cfg.TrialHashSalt)
	container.initAudit()
	container.initNotifications()

	// Initialize repositories
	container.initRepositories()

	// Initialize services
	container.initServices()

	return container, nil
}

func (c *Container) initDatabase() error {
	db, err := database.Open(c.Config.DSN)
	if err != nil {
		return err
	}
	if err := database.AutoMigrate(db); err != nil {
		return err
	}
	c.DB = db
	return nil
}

// initRedis connects only when sessions live in Redis
func (c *Container) initRedis(ctx context.Context) error {
	if c.Config.SessionBackend != "redis" {
		return nil
	}
	client, err := database.NewRedis(ctx, c.Config.RedisAddr, c.Config.RedisPassword, c.Config.RedisDB)
	if err != nil {
		return err
	}
	c.RedisClient = client
	return nil
}

func (c *Container) initCasbin() error {
	cas, err := auth.NewCasbinService(c.DB, c.Config.CasbinModelPath)
	if err != nil {
		return err
	}
	c.Casbin = cas
	return nil
}

func (c *Container) initAudit() {
	sinks := []domain.AuditLogger{audit.NewZapAuditLogger(c.Logger)}
	if len(c.Config.KafkaBrokers) > 0 {
		c.KafkaWriter = audit.NewKafkaWriter(c.Config.KafkaBrokers, c.Config.KafkaTopic, c.Logger)
		sinks = append(sinks, audit.NewKafkaAuditLogger(c.KafkaWriter, c.Config.KafkaTopic))
		c.Logger.Info("audit events published to kafka", zap.Strings("brokers", c.Config.KafkaBrokers), zap.String("topic", c.Config.KafkaTopic))
	}
	// client addresses leave the process only as salted hashes
	c.Audit = audit.NewRedactingAuditLogger(c.Hasher, audit.NewMultiAuditLogger(c.Logger, sinks...))
}

// initNotifications leaves a transport nil when it is not configured so
// delivery falls through to the next channel.
func (c *Container) initNotifications() {
	if c.Config.SMTPConfigured() {
		c.EmailSvc = notifications.NewSMTPService(notifications.SMTPOptions{
			Host:     c.Config.SMTPHost,
			Port:     c.Config.SMTPPort,
			User:     c.Config.SMTPUser,
			Password: c.Config.SMTPPassword,
			From:     c.Config.SMTPFrom,
			UseSSL:   c.Config.SMTPUseSSL,
			Timeout:  c.Config.SMTPTimeout,
		})
	} else if c.Config.SMTPEnabled {
		c.Logger.Warn("smtp enabled but incomplete, email delivery disabled")
	}
	if c.Config.TwilioConfigured() {
		c.SMSSvc = notifications.NewTwilioService(c.Config.TwilioSID, c.Config.TwilioToken, c.Config.TwilioFrom)
	}
}

func (c *Container) initRepositories() {
	c.DriverRepo = repositories.NewDriverRepository(c.DB)
	c.AttemptRepo = repositories.NewAttemptRepository(c.DB)
	c.OperatorTokenRepo = repositories.NewOperatorTokenRepository(c.DB)
	c.OrganizationRepo = repositories.NewOrganizationRepository(c.DB)
	c.TxManager = repositories.NewTxManager(c.DB)
	if c.RedisClient != nil {
		c.SessionRepo = repositories.NewRedisSessionRepository(c.RedisClient)
	} else {
		c.SessionRepo = repositories.NewSessionRepository(c.DB)
	}
}

func (c *Container) initServices() {
	cfg := c.Config
	c.Normalizer = phone.NewNormalizer(cfg.CountryCode)

	c.CodeSender = services.NewCodeDelivery(c.EmailSvc, c.SMSSvc, c.Audit, c.Clock, c.Logger, services.CodeDeliveryConfig{
		Production:  cfg.IsProduction(),
		DevShowCode: cfg.DevShowCode,
	})
	c.OTPSvc = services.NewOTPService(c.DriverRepo, c.TxManager, c.Clock, c.Audit, c.Logger, services.OTPConfig{
		TTL:            cfg.OTP_TTL,
		ResendCooldown: cfg.OTP_ResendCooldown,
		FixedCode:      cfg.DevFixedCode,
		Production:     cfg.IsProduction(),
	})
	c.SessionSvc = services.NewSessionService(c.SessionRepo, c.DriverRepo, c.Clock, c.Audit, c.Logger)
	c.LoginLimiter = services.NewLoginRateLimiter(c.AttemptRepo, c.TxManager, c.Hasher, c.Clock, c.Logger, services.LoginRateLimitConfig{
		WindowShort: cfg.LoginWindowShort,
		WindowLong:  cfg.LoginWindowLong,
		Limits:      services.LoginRateLimits(cfg.LoginLimits),
	})

	// Initialize auth service (depends on all other driver services)
	c.AuthSvc = services.NewAuthService(
		c.DriverRepo,
		c.OrganizationRepo,
		c.TxManager,
		c.OTPSvc,
		c.CodeSender,
		c.SessionSvc,
		c.LoginLimiter,
		c.Normalizer,
		c.Clock,
		c.Audit,
		c.Logger,
		services.AuthConfig{AllowEmailPhoneReassign: cfg.AllowEmailPhoneReassign},
	)

	c.RateLimiter = services.NewRateLimiter(c.AttemptRepo, c.TxManager, c.Hasher, c.Clock, c.Logger, services.RateLimitConfig{
		WindowShort: cfg.TrialWindowShort,
		WindowLong:  cfg.TrialWindowLong,
		Limits:      services.RateLimits(cfg.TrialLimits),
	})
	c.TrialSvc = services.NewTrialService(c.RateLimiter, c.OrganizationRepo, c.Normalizer, c.Clock, c.Audit, c.Logger, services.TrialConfig{
		TrialPeriod: cfg.TrialPeriod,
	})

	c.ScopeSvc = services.NewScopeResolver(c.OperatorTokenRepo, c.Hasher, c.Clock, c.Audit, c.Logger, cfg.AdminToken)
	c.OperatorSvc = services.NewOperatorService(c.DriverRepo, c.Clock, c.Audit, c.Logger)
	c.PolicySvc = services.NewPolicyService(c.Casbin.E)
}

// Router builds the HTTP engine over the container's services
func (c *Container) Router() (*gin.Engine, error) {
	gin.SetMode(c.Config.GinMode)

	r := httpx.BuildRouter(
		httpx.Handlers{
			Auth:     handlers.NewAuthHandlers(c.AuthSvc, c.Logger),
			Trials:   handlers.NewTrialHandlers(c.TrialSvc),
			Operator: handlers.NewOperatorHandlers(c.OperatorSvc, c.ScopeSvc, c.Logger),
			Policies: handlers.NewPolicyHandlers(c.PolicySvc),
		},
		middleware.NewSessionAuthMW(c.SessionSvc),
		middleware.NewOperatorMW(c.ScopeSvc, services.NewCasbinEnforcerWrapper(c.Casbin.E), c.Audit, c.Clock, c.Logger),
		c.Logger,
	)
	if err := r.SetTrustedProxies(c.Config.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}
	return r, nil
}

// Close closes all connections
func (c *Container) Close() error {
	if c.KafkaWriter != nil {
		if err := c.KafkaWriter.Close(); err != nil {
			c.Logger.Warn("failed to flush kafka audit writer", zap.Error(err))
		}
	}

	if c.RedisClient != nil {
		c.RedisClient.Close()
	}

	if c.DB != nil {
		sqlDB, err := c.DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}

	return nil
}
