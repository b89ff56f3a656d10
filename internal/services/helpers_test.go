package services

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Tsipchain/driver-platform/domain"
	"github.com/Tsipchain/driver-platform/internal/infrastructure/auth"
	"github.com/Tsipchain/driver-platform/internal/infrastructure/repositories"
	"github.com/Tsipchain/driver-platform/internal/mocks"
	"github.com/Tsipchain/driver-platform/internal/phone"
)

var baseTime = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

// testEnv wires real repositories over an in-memory database
type testEnv struct {
	db         *gorm.DB
	clock      *FixedClock
	audit      *mocks.MockAuditLogger
	logger     *zap.Logger
	tx         domain.TxManager
	drivers    domain.DriverRepository
	sessions   domain.SessionRepository
	attempts   domain.AttemptRepository
	orgs       domain.OrganizationRepository
	tokens     domain.OperatorTokenRepository
	hasher     domain.Hasher
	normalizer *phone.Normalizer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access pool: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(repositories.Models()...); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}

	return &testEnv{
		db:         db,
		clock:      NewFixedClock(baseTime),
		audit:      mocks.NewMockAuditLogger(),
		logger:     zap.NewNop(),
		tx:         repositories.NewTxManager(db),
		drivers:    repositories.NewDriverRepository(db),
		sessions:   repositories.NewSessionRepository(db),
		attempts:   repositories.NewAttemptRepository(db),
		orgs:       repositories.NewOrganizationRepository(db),
		tokens:     repositories.NewOperatorTokenRepository(db),
		hasher:     auth.NewHasher("test-salt"),
		normalizer: phone.NewNormalizer("+30"),
	}
}

func (e *testEnv) otpService(cfg OTPConfig) domain.OTPService {
	if cfg.TTL == 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.ResendCooldown == 0 {
		cfg.ResendCooldown = 120 * time.Second
	}
	return NewOTPService(e.drivers, e.tx, e.clock, e.audit, e.logger, cfg)
}

func (e *testEnv) createDriver(t *testing.T, d *domain.Driver) *domain.Driver {
	t.Helper()
	if d.Role == "" {
		d.Role = domain.DefaultDriverRole
	}
	d.State = domain.Unverified
	d.OTP = domain.NoPendingCode{}
	if err := e.drivers.Create(context.Background(), d); err != nil {
		t.Fatalf("failed to create driver: %v", err)
	}
	return d
}

// issue runs Issue the way callers do, under the driver row lock
func (e *testEnv) issue(t *testing.T, svc domain.OTPService, phoneNumber string) *domain.CodeIssue {
	t.Helper()
	var out *domain.CodeIssue
	err := e.tx.WithinTransaction(context.Background(), func(ctx context.Context) error {
		d, err := e.drivers.FindByPhoneForUpdate(ctx, phoneNumber)
		if err != nil {
			return err
		}
		out, err = svc.Issue(ctx, d, domain.DeliveryLog)
		return err
	})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	return out
}

func (e *testEnv) pendingCode(t *testing.T, phoneNumber string) string {
	t.Helper()
	d, err := e.drivers.FindByPhone(context.Background(), phoneNumber)
	if err != nil {
		t.Fatalf("failed to load driver: %v", err)
	}
	issued, ok := d.OTP.(domain.CodeIssued)
	if !ok {
		t.Fatalf("driver %s has no pending code", phoneNumber)
	}
	return issued.Code
}

func uintPtr(v uint) *uint {
	return &v
}
