package domain

import (
	"fmt"
	"time"
)

// DeliveryChannel is the transport a code was, or was meant to be, delivered over
type DeliveryChannel string

const (
	DeliveryEmail DeliveryChannel = "email"
	DeliverySMS   DeliveryChannel = "sms"
	DeliveryLog   DeliveryChannel = "log"
)

// OTPState is the per-driver one-time code lifecycle.
// It is either NoPendingCode or CodeIssued.
type OTPState interface {
	otpState()
}

// NoPendingCode means no code is outstanding for the driver
type NoPendingCode struct{}

func (NoPendingCode) otpState() {}

// CodeIssued holds an outstanding code. Code and ExpiresAt are always both set.
type CodeIssued struct {
	Code      string
	ExpiresAt time.Time
	Channel   DeliveryChannel
}

func (CodeIssued) otpState() {}

// NewCodeIssued builds an issued-code state, rejecting a half-populated one
func NewCodeIssued(code string, expiresAt time.Time, channel DeliveryChannel) (CodeIssued, error) {
	if code == "" {
		return CodeIssued{}, fmt.Errorf("issued code: empty code")
	}
	if expiresAt.IsZero() {
		return CodeIssued{}, fmt.Errorf("issued code: missing expiry")
	}
	if channel == "" {
		channel = DeliveryLog
	}
	return CodeIssued{Code: code, ExpiresAt: expiresAt, Channel: channel}, nil
}

// Live reports whether the code is still usable at now
func (c CodeIssued) Live(now time.Time) bool {
	return c.ExpiresAt.After(now)
}

// IssueOutcome distinguishes a fresh code from a cooldown rejection
type IssueOutcome string

const (
	OutcomeIssued      IssueOutcome = "issued"
	OutcomeTooSoon     IssueOutcome = "too_soon"
	OutcomeRateLimited IssueOutcome = "rate_limited"
)

// CodeIssue is the result of asking the state machine for a new code
type CodeIssue struct {
	Outcome    IssueOutcome
	RetryAfter int
	Issued     CodeIssued
}

// CodeRequestResult is what a RequestCode caller receives
type CodeRequestResult struct {
	Outcome         IssueOutcome
	Rule            RuleCode
	RetryAfter      int
	Delivery        DeliveryChannel
	MaskedRecipient string
}

// RequestCodeInput carries a signup/login code request
type RequestCodeInput struct {
	Phone          string
	Email          string
	Name           string
	Role           string
	OrganizationID *uint
	IP             string
}

// VerifyCodeInput carries a code verification
type VerifyCodeInput struct {
	Phone string
	Code  string
	IP    string
}

// AuthResult is a verification outcome. Denied is set, and nothing else,
// when the login limiter refused the attempt.
type AuthResult struct {
	Driver       *Driver
	SessionToken string
	Denied       *RateLimitDecision
}
