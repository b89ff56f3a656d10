package domain

import (
	"context"
	"time"
)

// DriverRepository defines driver data access operations
type DriverRepository interface {
	Create(ctx context.Context, driver *Driver) error
	FindByID(ctx context.Context, id uint) (*Driver, error)
	FindByPhone(ctx context.Context, phone string) (*Driver, error)
	FindByEmail(ctx context.Context, email string) (*Driver, error)
	// FindByPhoneForUpdate loads the driver row and holds a write lock on it
	// for the lifetime of the surrounding transaction.
	FindByPhoneForUpdate(ctx context.Context, phone string) (*Driver, error)
	// FindByPendingPhoneForUpdate locks the newest driver waiting to move to phone
	FindByPendingPhoneForUpdate(ctx context.Context, phone string) (*Driver, error)
	SetPendingPhone(ctx context.Context, driverID uint, phone string) error
	UpdateProfile(ctx context.Context, driver *Driver) error
	// SaveIssuedCode stores code only if no code was sent after cooldownCutoff
	// and clears any pending phone. It returns ErrConcurrentUpdate when
	// another request won the race.
	SaveIssuedCode(ctx context.Context, driverID uint, code CodeIssued, sentAt, cooldownCutoff time.Time) error
	// ConsumeCode clears a live matching code and marks the driver verified.
	// With adoptPendingPhone only an email-delivered code matches, and the
	// pending phone becomes the driver's phone. It returns
	// ErrInvalidOrExpired when no live code matched.
	ConsumeCode(ctx context.Context, driverID uint, code string, now time.Time, adoptPendingPhone bool) error
	// UpdateCodeChannel records the channel a still-pending code actually went out on
	UpdateCodeChannel(ctx context.Context, driverID uint, code string, channel DeliveryChannel) error
	IncrementFailedAttempts(ctx context.Context, driverID uint) error
	ListPending(ctx context.Context, filter DriverFilter) ([]*Driver, error)
	Approve(ctx context.Context, driverID uint) error
}

// DriverFilter narrows operator listings to a scope
type DriverFilter struct {
	GroupTag       string
	OrganizationID *uint
	Limit          int
}

// SessionRepository defines session data access operations
type SessionRepository interface {
	Create(ctx context.Context, session *Session) error
	// Touch refreshes last_seen_at and returns the session, or ErrSessionNotFound
	Touch(ctx context.Context, token string, now time.Time) (*Session, error)
	IsRevoked(ctx context.Context, token string) (bool, error)
	// Revoke records the revocation and removes the live session as one unit
	Revoke(ctx context.Context, token string, now time.Time) error
}

// AttemptQuery selects attempts of Action newer than Since matching every
// non-empty hash
type AttemptQuery struct {
	Action    AttemptAction
	IPHash    string
	EmailHash string
	PhoneHash string
	Since     time.Time
	Statuses  []AttemptStatus
}

// AttemptRepository is the rate limiter's attempt log
type AttemptRepository interface {
	// Lock serializes checks sharing any of keys until the surrounding
	// transaction ends
	Lock(ctx context.Context, keys ...string) error
	Append(ctx context.Context, attempt *TrialAttempt) error
	// Settle moves a pending attempt to its outcome
	Settle(ctx context.Context, id uint, status AttemptStatus, orgID *uint, errorCode string) error
	Count(ctx context.Context, q AttemptQuery) (int64, error)
	// Oldest returns the earliest matching attempt, or ErrAttemptNotFound
	Oldest(ctx context.Context, q AttemptQuery) (*TrialAttempt, error)
}

// OperatorTokenRepository defines operator credential storage
type OperatorTokenRepository interface {
	Create(ctx context.Context, token *OperatorToken) error
	FindByHash(ctx context.Context, hash string) (*OperatorToken, error)
	TouchLastUsed(ctx context.Context, id uint, now time.Time) error
}

// OrganizationRepository defines tenant storage used by trial provisioning
type OrganizationRepository interface {
	Create(ctx context.Context, org *Organization) error
	FindByID(ctx context.Context, id uint) (*Organization, error)
	FindBySlug(ctx context.Context, slug string) (*Organization, error)
}

// TxManager runs fn inside a database transaction carried on ctx.
// Repositories called with that ctx join the transaction.
type TxManager interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// NotificationService defines notification operations
type NotificationService interface {
	SendSMS(ctx context.Context, to, message string) error
	SendEmail(ctx context.Context, to, subject, body string) error
}

// CodeRecipient is who a code is delivered to
type CodeRecipient struct {
	Phone string
	Email string
	Name  string
}

// CodeSender delivers issued codes. Transport failures fall back to log
// delivery and are never returned.
type CodeSender interface {
	// Plan returns the channel a code for email would be sent over
	Plan(email string) DeliveryChannel
	// Deliver sends code and returns the channel actually used
	Deliver(ctx context.Context, to CodeRecipient, code CodeIssued) DeliveryChannel
}

// Hasher is a salted one-way hash
type Hasher interface {
	Hash(value string) string
}

// OTPService defines the one-time code state machine
type OTPService interface {
	// Issue generates and persists a code for the locked driver, honoring the cooldown
	Issue(ctx context.Context, driver *Driver, channel DeliveryChannel) (*CodeIssue, error)
	// Verify consumes code for phone. Every failure is ErrInvalidOrExpired.
	Verify(ctx context.Context, phone, code string) (*Driver, error)
}

// SessionService defines session lifecycle operations
type SessionService interface {
	Create(ctx context.Context, driverID uint) (string, error)
	Resolve(ctx context.Context, token string) (*Driver, error)
	Revoke(ctx context.Context, token string) error
}

// AuthService orchestrates code requests, verification and profile updates
type AuthService interface {
	RequestCode(ctx context.Context, in RequestCodeInput) (*CodeRequestResult, error)
	VerifyCode(ctx context.Context, in VerifyCodeInput) (*AuthResult, error)
	Logout(ctx context.Context, token string) error
	UpdateName(ctx context.Context, driverID uint, name string) (*Driver, error)
	FindDriver(ctx context.Context, driverID uint) (*Driver, error)
}

// RateLimiter defines the sliding-window admission checks
type RateLimiter interface {
	// Check evaluates the rules. A denial is logged; an allowed decision
	// reserves a pending attempt in the same transaction.
	Check(ctx context.Context, req AttemptRequest) (RateLimitDecision, error)
	// Record settles the attempt reserved by an allowed decision
	Record(ctx context.Context, decision RateLimitDecision, status AttemptStatus, orgID *uint, errorCode string) error
}

// TrialService provisions trial organizations behind the rate limiter
type TrialService interface {
	CreateTrial(ctx context.Context, in TrialInput) (*TrialResult, error)
}

// ScopeResolver maps a presented operator credential to a scope
type ScopeResolver interface {
	Resolve(ctx context.Context, presented string) (*OperatorScope, error)
	IssueToken(ctx context.Context, role, groupTag string, orgID *uint, ttl time.Duration) (string, *OperatorToken, error)
}

// OperatorService exposes scoped driver management
type OperatorService interface {
	PendingDrivers(ctx context.Context, scope *OperatorScope, groupTag string, limit int) ([]*Driver, error)
	ApproveDriver(ctx context.Context, scope *OperatorScope, driverID uint) (*Driver, error)
}

// PolicyService defines authorization policy operations
type PolicyService interface {
	AddPolicy(role, resource, action string) error
	RemovePolicy(role, resource, action string) error
	CheckPermission(role, resource, action string) (bool, error)
	GetPolicies() [][]string
}

// CasbinEnforcer interface defines the methods we need from Casbin enforcer
type CasbinEnforcer interface {
	AddPolicy(params ...interface{}) (bool, error)
	RemovePolicy(params ...interface{}) (bool, error)
	Enforce(rvals ...interface{}) (bool, error)
	GetPolicy() ([][]string, error)
	SavePolicy() error
}
