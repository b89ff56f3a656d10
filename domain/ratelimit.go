package domain

// RuleCode identifies the sliding-window rule that denied a request
type RuleCode string

const (
	RuleIPShort      RuleCode = "TRIAL_RATE_LIMIT_IP_SHORT"
	RuleEmailShort   RuleCode = "TRIAL_RATE_LIMIT_EMAIL_SHORT"
	RuleIPEmailShort RuleCode = "TRIAL_RATE_LIMIT_IP_EMAIL_SHORT"
	RulePhoneShort   RuleCode = "TRIAL_RATE_LIMIT_PHONE_SHORT"
	RuleIPLong       RuleCode = "TRIAL_RATE_LIMIT_IP_LONG"
	RuleEmailLong    RuleCode = "TRIAL_RATE_LIMIT_EMAIL_LONG"
	RulePhoneLong    RuleCode = "TRIAL_RATE_LIMIT_PHONE_LONG"
)

// Login rules guard code requests and verifications
const (
	RuleLoginIPShort      RuleCode = "LOGIN_RATE_LIMIT_IP_SHORT"
	RuleLoginIPPhoneShort RuleCode = "LOGIN_RATE_LIMIT_IP_PHONE_SHORT"
	RuleLoginPhoneShort   RuleCode = "LOGIN_RATE_LIMIT_PHONE_SHORT"
	RuleLoginIPLong       RuleCode = "LOGIN_RATE_LIMIT_IP_LONG"
	RuleLoginPhoneLong    RuleCode = "LOGIN_RATE_LIMIT_PHONE_LONG"
)

// AttemptAction separates independent limiters sharing the attempt log
type AttemptAction string

const (
	ActionTrial AttemptAction = "trial"
	ActionLogin AttemptAction = "login"
)

// AttemptRequest identifies the requester of a rate-limited attempt.
// Values are raw here and hashed before they reach the attempt log.
type AttemptRequest struct {
	IP    string
	Email string
	Phone string
}

// RateLimitDecision is a first-class allow/deny verdict. An allowed
// decision carries the pending attempt it reserved.
type RateLimitDecision struct {
	Allowed    bool
	Rule       RuleCode
	RetryAfter int
	AttemptID  uint
}

// Allow is the passing decision
func Allow() RateLimitDecision {
	return RateLimitDecision{Allowed: true}
}

// Deny builds a denial for rule with a retry-after in seconds
func Deny(rule RuleCode, retryAfter int) RateLimitDecision {
	return RateLimitDecision{Allowed: false, Rule: rule, RetryAfter: retryAfter}
}

// TrialInput is a trial organization creation request
type TrialInput struct {
	Name  string
	Type  string
	Email string
	Phone string
	IP    string
}

// TrialResult is the outcome of a trial creation request
type TrialResult struct {
	Decision     RateLimitDecision
	Organization *Organization
	Status       AttemptStatus
}
