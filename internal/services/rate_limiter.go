package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Tsipchain/driver-platform/domain"
)

// RateLimits are the per-rule attempt ceilings
type RateLimits struct {
	IPShort      int
	EmailShort   int
	IPEmailShort int
	PhoneShort   int
	IPLong       int
	EmailLong    int
	PhoneLong    int
}

// RateLimitConfig describes the two sliding windows and their limits
type RateLimitConfig struct {
	WindowShort time.Duration
	WindowLong  time.Duration
	Limits      RateLimits
}

// LoginRateLimits are the ceilings guarding code requests and verifications
type LoginRateLimits struct {
	IPShort      int
	IPPhoneShort int
	// PhoneShort and PhoneLong count failed verifications only
	PhoneShort int
	IPLong     int
	PhoneLong  int
}

// LoginRateLimitConfig describes the login windows and their limits
type LoginRateLimitConfig struct {
	WindowShort time.Duration
	WindowLong  time.Duration
	Limits      LoginRateLimits
}

type rateRule struct {
	code     domain.RuleCode
	window   time.Duration
	limit    int
	byIP     bool
	byEmail  bool
	byPhone  bool
	statuses []domain.AttemptStatus
}

// RateLimiterImpl implements domain.RateLimiter over the attempt log
type RateLimiterImpl struct {
	attempts  domain.AttemptRepository
	txManager domain.TxManager
	hasher    domain.Hasher
	clock     domain.Clock
	logger    *zap.Logger
	action    domain.AttemptAction
	rules     []rateRule
}

// NewRateLimiter creates the trial limiter evaluating the rules in fixed order
func NewRateLimiter(
	attempts domain.AttemptRepository,
	txManager domain.TxManager,
	hasher domain.Hasher,
	clock domain.Clock,
	logger *zap.Logger,
	config RateLimitConfig,
) domain.RateLimiter {
	short, long, l := config.WindowShort, config.WindowLong, config.Limits
	success := domain.SuccessfulAttemptStatuses
	return &RateLimiterImpl{
		attempts:  attempts,
		txManager: txManager,
		hasher:    hasher,
		clock:     clock,
		logger:    logger.Named("rate-limiter"),
		action:    domain.ActionTrial,
		rules: []rateRule{
			{code: domain.RuleIPShort, window: short, limit: l.IPShort, byIP: true},
			{code: domain.RuleEmailShort, window: short, limit: l.EmailShort, byEmail: true, statuses: success},
			{code: domain.RuleIPEmailShort, window: short, limit: l.IPEmailShort, byIP: true, byEmail: true},
			{code: domain.RulePhoneShort, window: short, limit: l.PhoneShort, byPhone: true, statuses: success},
			{code: domain.RuleIPLong, window: long, limit: l.IPLong, byIP: true},
			{code: domain.RuleEmailLong, window: long, limit: l.EmailLong, byEmail: true, statuses: success},
			{code: domain.RulePhoneLong, window: long, limit: l.PhoneLong, byPhone: true, statuses: success},
		},
	}
}

// NewLoginRateLimiter creates the limiter consulted before a code is issued
// or verified. Phone rules count failed verifications, so guessing a code
// locks the phone while IP rules cap raw volume.
func NewLoginRateLimiter(
	attempts domain.AttemptRepository,
	txManager domain.TxManager,
	hasher domain.Hasher,
	clock domain.Clock,
	logger *zap.Logger,
	config LoginRateLimitConfig,
) domain.RateLimiter {
	short, long, l := config.WindowShort, config.WindowLong, config.Limits
	failed := domain.FailedAttemptStatuses
	return &RateLimiterImpl{
		attempts:  attempts,
		txManager: txManager,
		hasher:    hasher,
		clock:     clock,
		logger:    logger.Named("login-limiter"),
		action:    domain.ActionLogin,
		rules: []rateRule{
			{code: domain.RuleLoginIPShort, window: short, limit: l.IPShort, byIP: true},
			{code: domain.RuleLoginIPPhoneShort, window: short, limit: l.IPPhoneShort, byIP: true, byPhone: true},
			{code: domain.RuleLoginPhoneShort, window: short, limit: l.PhoneShort, byPhone: true, statuses: failed},
			{code: domain.RuleLoginIPLong, window: long, limit: l.IPLong, byIP: true},
			{code: domain.RuleLoginPhoneLong, window: long, limit: l.PhoneLong, byPhone: true, statuses: failed},
		},
	}
}

type hashedRequest struct {
	ip, email, phone string
}

func (r *RateLimiterImpl) hash(req domain.AttemptRequest) hashedRequest {
	var h hashedRequest
	h.ip = r.hasher.Hash(strings.TrimSpace(req.IP))
	if email := normalizeEmail(req.Email); email != "" {
		h.email = r.hasher.Hash(email)
	}
	if p := strings.TrimSpace(req.Phone); p != "" {
		h.phone = r.hasher.Hash(p)
	}
	return h
}

// lockKeys are the dimensions whose counters this request reads
func (r *RateLimiterImpl) lockKeys(h hashedRequest) []string {
	keys := []string{string(r.action) + ":ip:" + h.ip}
	if h.email != "" {
		keys = append(keys, string(r.action)+":email:"+h.email)
	}
	if h.phone != "" {
		keys = append(keys, string(r.action)+":phone:"+h.phone)
	}
	return keys
}

// Check implements domain.RateLimiter. Counting and logging happen under
// per-dimension locks in one transaction, so concurrent requests for the
// same key see each other's attempts. The first failing rule wins.
func (r *RateLimiterImpl) Check(ctx context.Context, req domain.AttemptRequest) (domain.RateLimitDecision, error) {
	h := r.hash(req)
	decision := domain.Allow()

	err := r.txManager.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := r.attempts.Lock(ctx, r.lockKeys(h)...); err != nil {
			return err
		}

		now := r.clock.Now()
		attempt := &domain.TrialAttempt{
			CreatedAt: now,
			Action:    r.action,
			IPHash:    h.ip,
			EmailHash: h.email,
			PhoneHash: h.phone,
			Status:    domain.AttemptPending,
		}
		for _, rule := range r.rules {
			q, applies := rule.query(r.action, h, now)
			if !applies {
				continue
			}
			count, err := r.attempts.Count(ctx, q)
			if err != nil {
				return err
			}
			if count < int64(rule.limit) {
				continue
			}

			retry, err := r.retryAfter(ctx, q, rule.window, now)
			if err != nil {
				return err
			}
			decision = domain.Deny(rule.code, retry)
			attempt.Status = domain.AttemptDenied
			attempt.RetryAfter = &retry
			attempt.ErrorCode = string(rule.code)
			return r.attempts.Append(ctx, attempt)
		}

		if err := r.attempts.Append(ctx, attempt); err != nil {
			return err
		}
		decision.AttemptID = attempt.ID
		return nil
	})
	if err != nil {
		return domain.RateLimitDecision{}, fmt.Errorf("failed to evaluate rate limits: %w", err)
	}

	if !decision.Allowed {
		r.logger.Info("attempt denied",
			zap.String("action", string(r.action)),
			zap.String("rule", string(decision.Rule)),
			zap.Int("retry_after", decision.RetryAfter))
	}
	return decision, nil
}

// Record implements domain.RateLimiter. Denials were logged by Check and
// are left as they are.
func (r *RateLimiterImpl) Record(ctx context.Context, decision domain.RateLimitDecision, status domain.AttemptStatus, orgID *uint, errorCode string) error {
	if !decision.Allowed || decision.AttemptID == 0 {
		return nil
	}
	if err := r.attempts.Settle(ctx, decision.AttemptID, status, orgID, errorCode); err != nil {
		return fmt.Errorf("failed to record %s attempt: %w", r.action, err)
	}
	return nil
}

// retryAfter is the time until the oldest counted attempt leaves the window
func (r *RateLimiterImpl) retryAfter(ctx context.Context, q domain.AttemptQuery, window time.Duration, now time.Time) (int, error) {
	oldest, err := r.attempts.Oldest(ctx, q)
	if errors.Is(err, domain.ErrAttemptNotFound) {
		return ceilSeconds(window), nil
	}
	if err != nil {
		return 0, err
	}
	return ceilSeconds(window - now.Sub(oldest.CreatedAt)), nil
}

func (rule rateRule) query(action domain.AttemptAction, h hashedRequest, now time.Time) (domain.AttemptQuery, bool) {
	q := domain.AttemptQuery{Action: action, Since: now.Add(-rule.window)}
	if rule.byIP {
		q.IPHash = h.ip
	}
	if rule.byEmail {
		if h.email == "" {
			return q, false
		}
		q.EmailHash = h.email
	}
	if rule.byPhone {
		if h.phone == "" {
			return q, false
		}
		q.PhoneHash = h.phone
	}
	q.Statuses = rule.statuses
	return q, true
}

func ceilSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
