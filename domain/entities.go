package domain

import "time"

// VerificationState tracks whether a driver has ever proven control of their phone
type VerificationState string

const (
	Unverified VerificationState = "unverified"
	Verified   VerificationState = "verified"
)

// DefaultDriverRole is assigned when a signup does not carry a role
const DefaultDriverRole = "taxi"

// Driver represents an authenticating identity keyed by canonical phone
type Driver struct {
	ID             uint
	Phone          string
	Email          string
	EmailVerified  bool
	PendingPhone   string // adopted once an email-delivered code is verified through it
	Name           string
	Role           string
	State          VerificationState
	OTP            OTPState
	FailedAttempts int
	LastCodeSentAt *time.Time
	LastLoginAt    *time.Time
	GroupTag       string
	OrganizationID *uint
	Approved       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsVerified reports whether the driver completed at least one verification
func (d *Driver) IsVerified() bool {
	return d.State == Verified
}

// Summary is the identity view returned to clients after verification
type Summary struct {
	ID             uint   `json:"id"`
	Name           string `json:"name"`
	Role           string `json:"role"`
	Phone          string `json:"phone"`
	GroupTag       string `json:"group_tag,omitempty"`
	OrganizationID *uint  `json:"organization_id,omitempty"`
	Approved       bool   `json:"approved"`
}

// Summarize builds the client-facing identity summary
func (d *Driver) Summarize() Summary {
	return Summary{
		ID:             d.ID,
		Name:           d.Name,
		Role:           d.Role,
		Phone:          d.Phone,
		GroupTag:       d.GroupTag,
		OrganizationID: d.OrganizationID,
		Approved:       d.Approved,
	}
}

// Session represents an opaque bearer token bound to a driver
type Session struct {
	Token      string
	DriverID   uint
	CreatedAt  time.Time
	LastSeenAt time.Time
}

// RevocationEntry records a token that must never resolve again
type RevocationEntry struct {
	Token     string
	RevokedAt time.Time
}

// AttemptStatus is the recorded outcome of a rate-limited attempt
type AttemptStatus string

const (
	// AttemptPending is reserved by an allowed check until the outcome is known
	AttemptPending   AttemptStatus = "pending"
	AttemptAccepted  AttemptStatus = "accepted"
	AttemptCreated   AttemptStatus = "created"
	AttemptDenied    AttemptStatus = "denied"
	AttemptError     AttemptStatus = "error"
	AttemptThrottled AttemptStatus = "throttled"
	AttemptVerified  AttemptStatus = "verified"
	AttemptFailed    AttemptStatus = "failed"
)

// SuccessfulAttemptStatuses are the statuses counted by success-only rules.
// Pending attempts count until they settle.
var SuccessfulAttemptStatuses = []AttemptStatus{AttemptPending, AttemptAccepted, AttemptCreated}

// FailedAttemptStatuses are the statuses counted by failure-only rules
var FailedAttemptStatuses = []AttemptStatus{AttemptPending, AttemptFailed}

// TrialAttempt is one row of the abuse log. Rows are appended and only
// ever settled from pending to their outcome.
// Only salted hashes of the requester dimensions are ever stored.
type TrialAttempt struct {
	ID             uint
	CreatedAt      time.Time
	Action         AttemptAction
	IPHash         string
	EmailHash      string
	PhoneHash      string
	Status         AttemptStatus
	RetryAfter     *int
	OrganizationID *uint
	ErrorCode      string
}

// OperatorToken is a persisted, hashed operator credential with its scope
type OperatorToken struct {
	ID             uint
	TokenHash      string
	Role           string
	GroupTag       string
	OrganizationID *uint
	CreatedAt      time.Time
	LastUsedAt     *time.Time
	ExpiresAt      *time.Time
}

// Expired reports whether the token is past its expiry at now
func (t *OperatorToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && t.ExpiresAt.Before(now)
}

// Operator roles
const (
	OperatorRoleAdmin    = "admin"
	OperatorRoleOperator = "operator"
	OperatorRoleViewer   = "viewer"
)

// OperatorScope constrains what an operator-facing call may touch.
// A global scope carries no organization or tag filter.
type OperatorScope struct {
	Global         bool
	Role           string
	GroupTag       string
	OrganizationID *uint
}

// Permits reports whether the scope covers driver
func (s *OperatorScope) Permits(d *Driver) bool {
	if s.Global {
		return true
	}
	if s.OrganizationID != nil && (d.OrganizationID == nil || *d.OrganizationID != *s.OrganizationID) {
		return false
	}
	if s.GroupTag != "" && d.GroupTag != s.GroupTag {
		return false
	}
	return true
}

// Organization is the minimal tenant record created by trial provisioning
type Organization struct {
	ID              uint
	Name            string
	Slug            string
	Type            string
	Status          string
	DefaultGroupTag string
	PlanStatus      string
	TrialEndsAt     *time.Time
	CreatedAt       time.Time
}
