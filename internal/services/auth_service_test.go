package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Tsipchain/driver-platform/domain"
	"github.com/Tsipchain/driver-platform/internal/mocks"
)

var relaxedLoginLimits = LoginRateLimitConfig{
	WindowShort: time.Minute,
	WindowLong:  time.Hour,
	Limits:      LoginRateLimits{IPShort: 100, IPPhoneShort: 100, PhoneShort: 100, IPLong: 100, PhoneLong: 100},
}

// authService wires the real collaborators. email and sms may be nil.
func (e *testEnv) authService(email, sms domain.NotificationService, cfg AuthConfig) domain.AuthService {
	return e.limitedAuthService(email, sms, cfg, relaxedLoginLimits)
}

func (e *testEnv) limitedAuthService(email, sms domain.NotificationService, cfg AuthConfig, limits LoginRateLimitConfig) domain.AuthService {
	sender := NewCodeDelivery(email, sms, e.audit, e.clock, e.logger, CodeDeliveryConfig{})
	sessions := NewSessionService(e.sessions, e.drivers, e.clock, e.audit, e.logger)
	limiter := NewLoginRateLimiter(e.attempts, e.tx, e.hasher, e.clock, e.logger, limits)
	return NewAuthService(e.drivers, e.orgs, e.tx, e.otpService(OTPConfig{}), sender, sessions, limiter, e.normalizer, e.clock, e.audit, e.logger, cfg)
}

func TestAuthServiceImpl_RequestCode(t *testing.T) {
	tests := []struct {
		name           string
		input          domain.RequestCodeInput
		email          func() domain.NotificationService
		expectDelivery domain.DeliveryChannel
		expectMasked   string
		expectedError  error
	}{
		{
			name:           "new driver without transports",
			input:          domain.RequestCodeInput{Phone: "0123456789", Name: "Nikos"},
			expectDelivery: domain.DeliveryLog,
			expectMasked:   "***6789",
		},
		{
			name:  "email delivery",
			input: domain.RequestCodeInput{Phone: "+30123456789", Email: " Nikos@Example.com"},
			email: func() domain.NotificationService {
				return mocks.NewMockNotificationService()
			},
			expectDelivery: domain.DeliveryEmail,
			expectMasked:   "n***@example.com",
		},
		{
			name:  "email failure falls back to log",
			input: domain.RequestCodeInput{Phone: "+30123456789", Email: "nikos@example.com"},
			email: func() domain.NotificationService {
				m := mocks.NewMockNotificationService()
				m.SendEmailFunc = func(to, subject, body string) error { return errors.New("smtp down") }
				return m
			},
			expectDelivery: domain.DeliveryLog,
			expectMasked:   "n***@example.com",
		},
		{
			name:          "invalid phone",
			input:         domain.RequestCodeInput{Phone: "12ab"},
			expectedError: domain.ErrInvalidPhone,
		},
		{
			name:          "unknown organization",
			input:         domain.RequestCodeInput{Phone: "+30123456789", OrganizationID: uintPtr(42)},
			expectedError: domain.ErrInvalidOrganization,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			var email domain.NotificationService
			if tt.email != nil {
				email = tt.email()
			}
			svc := env.authService(email, nil, AuthConfig{})

			res, err := svc.RequestCode(context.Background(), tt.input)
			if tt.expectedError != nil {
				if !errors.Is(err, tt.expectedError) {
					t.Fatalf("expected %v, got %v", tt.expectedError, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Outcome != domain.OutcomeIssued {
				t.Fatalf("expected issued, got %s", res.Outcome)
			}
			if res.Delivery != tt.expectDelivery {
				t.Errorf("expected delivery %s, got %s", tt.expectDelivery, res.Delivery)
			}
			if res.MaskedRecipient != tt.expectMasked {
				t.Errorf("expected masked %q, got %q", tt.expectMasked, res.MaskedRecipient)
			}

			d, err := env.drivers.FindByPhone(context.Background(), "+30123456789")
			if err != nil {
				t.Fatalf("driver not stored under canonical phone: %v", err)
			}
			if issued := d.OTP.(domain.CodeIssued); issued.Channel != tt.expectDelivery {
				t.Errorf("stored channel %s, expected %s", issued.Channel, tt.expectDelivery)
			}
			if len(env.audit.Events(domain.DriverSignupEvent)) != 1 {
				t.Error("expected one signup event")
			}
		})
	}
}

func TestAuthServiceImpl_RequestCodeCooldown(t *testing.T) {
	env := newTestEnv(t)
	svc := env.authService(nil, nil, AuthConfig{})
	ctx := context.Background()

	if _, err := svc.RequestCode(ctx, domain.RequestCodeInput{Phone: "0123456789"}); err != nil {
		t.Fatalf("first request failed: %v", err)
	}
	first := env.pendingCode(t, "+30123456789")

	env.clock.Advance(45 * time.Second)
	res, err := svc.RequestCode(ctx, domain.RequestCodeInput{Phone: "+30 123 456 789"})
	if err != nil {
		t.Fatalf("second request failed: %v", err)
	}
	if res.Outcome != domain.OutcomeTooSoon || res.RetryAfter != 75 {
		t.Errorf("expected too_soon with 75s, got %s %d", res.Outcome, res.RetryAfter)
	}
	if env.pendingCode(t, "+30123456789") != first {
		t.Error("cooldown must keep the pending code")
	}

	env.clock.Advance(75 * time.Second)
	res, err = svc.RequestCode(ctx, domain.RequestCodeInput{Phone: "0030123456789"})
	if err != nil || res.Outcome != domain.OutcomeIssued {
		t.Fatalf("expected a new code after cooldown, got %+v %v", res, err)
	}
	if len(env.audit.Events(domain.DriverSignupEvent)) != 1 {
		t.Error("all three spellings must map to one driver")
	}
}

func TestAuthServiceImpl_VerifyCode(t *testing.T) {
	env := newTestEnv(t)
	email := mocks.NewMockNotificationService()
	svc := env.authService(email, nil, AuthConfig{})
	ctx := context.Background()

	if _, err := svc.RequestCode(ctx, domain.RequestCodeInput{Phone: "0123456789", Email: "nikos@example.com", Name: "Nikos"}); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	code := env.pendingCode(t, "+30123456789")

	if _, err := svc.VerifyCode(ctx, domain.VerifyCodeInput{Phone: "0123456789", Code: "000000"}); !errors.Is(err, domain.ErrInvalidOrExpired) {
		t.Errorf("expected ErrInvalidOrExpired for wrong code, got %v", err)
	}
	if _, err := svc.VerifyCode(ctx, domain.VerifyCodeInput{Phone: "+30999999999", Code: code}); !errors.Is(err, domain.ErrInvalidOrExpired) {
		t.Errorf("expected the same error for an unknown phone, got %v", err)
	}

	res, err := svc.VerifyCode(ctx, domain.VerifyCodeInput{Phone: "+30 123456789", Code: code})
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !hexToken.MatchString(res.SessionToken) {
		t.Errorf("unexpected token %q", res.SessionToken)
	}
	if !res.Driver.IsVerified() || !res.Driver.EmailVerified || res.Driver.Name != "Nikos" {
		t.Errorf("unexpected driver %+v", res.Driver)
	}

	if err := svc.Logout(ctx, res.SessionToken); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if len(env.audit.Events(domain.DriverLogoutEvent)) != 1 {
		t.Error("expected a logout event")
	}
	if err := svc.Logout(ctx, res.SessionToken); err != nil {
		t.Errorf("repeated logout must succeed, got %v", err)
	}
}

func TestAuthServiceImpl_EmailReassignment(t *testing.T) {
	tests := []struct {
		name          string
		allow         bool
		emailVerified bool
		smsOnly       bool
		expectMoved   bool
	}{
		{name: "disabled", allow: false, emailVerified: true},
		{name: "unverified email", allow: true, emailVerified: false},
		{name: "code would not go to the email", allow: true, emailVerified: true, smsOnly: true},
		{name: "verified email moves", allow: true, emailVerified: true, expectMoved: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			old := env.createDriver(t, &domain.Driver{Phone: "+30111111111", Email: "nikos@example.com"})
			old.EmailVerified = tt.emailVerified
			if err := env.drivers.UpdateProfile(ctx, old); err != nil {
				t.Fatalf("failed to seed: %v", err)
			}

			var svc domain.AuthService
			if tt.smsOnly {
				svc = env.authService(nil, mocks.NewMockNotificationService(), AuthConfig{AllowEmailPhoneReassign: tt.allow})
			} else {
				svc = env.authService(mocks.NewMockNotificationService(), nil, AuthConfig{AllowEmailPhoneReassign: tt.allow})
			}
			res, err := svc.RequestCode(ctx, domain.RequestCodeInput{Phone: "+30222222222", Email: "nikos@example.com"})
			if err != nil || res.Outcome != domain.OutcomeIssued {
				t.Fatalf("request failed: %+v, %v", res, err)
			}

			if !tt.expectMoved {
				created, err := env.drivers.FindByPhone(ctx, "+30222222222")
				if err != nil {
					t.Fatalf("expected a new driver on the new phone: %v", err)
				}
				if created.ID == old.ID {
					t.Error("expected a separate driver")
				}
				kept, err := env.drivers.FindByPhone(ctx, "+30111111111")
				if err != nil || kept.PendingPhone != "" {
					t.Errorf("expected the old driver untouched, got %+v, %v", kept, err)
				}
				return
			}

			// nothing moves until the emailed code is verified
			if _, err := env.drivers.FindByPhone(ctx, "+30222222222"); !errors.Is(err, domain.ErrDriverNotFound) {
				t.Fatalf("expected no driver on the new phone yet, got %v", err)
			}
			code := env.pendingCode(t, "+30111111111")

			if _, err := svc.VerifyCode(ctx, domain.VerifyCodeInput{Phone: "+30222222222", Code: "000000"}); !errors.Is(err, domain.ErrInvalidOrExpired) {
				t.Fatalf("expected a wrong code to fail, got %v", err)
			}
			if _, err := env.drivers.FindByPhone(ctx, "+30111111111"); err != nil {
				t.Fatalf("a failed verification must keep the old phone: %v", err)
			}

			out, err := svc.VerifyCode(ctx, domain.VerifyCodeInput{Phone: "+30222222222", Code: code})
			if err != nil {
				t.Fatalf("verify failed: %v", err)
			}
			if out.Driver.ID != old.ID || out.Driver.Phone != "+30222222222" {
				t.Errorf("expected driver %d on the new phone, got %+v", old.ID, out.Driver)
			}
			if _, err := env.drivers.FindByPhone(ctx, "+30111111111"); !errors.Is(err, domain.ErrDriverNotFound) {
				t.Errorf("old phone lookup returned %v", err)
			}
			if len(env.audit.Events(domain.PhoneReassignedEvent)) != 1 {
				t.Error("expected a phone reassignment event")
			}
		})
	}
}

func TestAuthServiceImpl_LoginRateLimit(t *testing.T) {
	env := newTestEnv(t)
	limits := LoginRateLimitConfig{
		WindowShort: time.Minute,
		WindowLong:  time.Hour,
		Limits:      LoginRateLimits{IPShort: 20, IPPhoneShort: 10, PhoneShort: 3, IPLong: 100, PhoneLong: 10},
	}
	svc := env.limitedAuthService(nil, nil, AuthConfig{}, limits)
	ctx := context.Background()

	if _, err := svc.RequestCode(ctx, domain.RequestCodeInput{Phone: "0123456789", IP: "10.0.0.1"}); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	code := env.pendingCode(t, "+30123456789")

	for i := 0; i < 3; i++ {
		res, err := svc.VerifyCode(ctx, domain.VerifyCodeInput{Phone: "0123456789", Code: "000000", IP: "10.0.0.1"})
		if !errors.Is(err, domain.ErrInvalidOrExpired) {
			t.Fatalf("attempt %d: expected ErrInvalidOrExpired, got %+v, %v", i, res, err)
		}
	}

	// the phone is locked out even for the right code and another address
	res, err := svc.VerifyCode(ctx, domain.VerifyCodeInput{Phone: "+30123456789", Code: code, IP: "10.0.0.2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Denied == nil || res.Denied.Rule != domain.RuleLoginPhoneShort || res.Driver != nil {
		t.Fatalf("expected a %s denial, got %+v", domain.RuleLoginPhoneShort, res)
	}
	if res.Denied.RetryAfter != 60 {
		t.Errorf("expected retry_after 60, got %d", res.Denied.RetryAfter)
	}

	req, err := svc.RequestCode(ctx, domain.RequestCodeInput{Phone: "+30123456789", IP: "10.0.0.3"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Outcome != domain.OutcomeRateLimited || req.Rule != domain.RuleLoginPhoneShort {
		t.Errorf("expected code requests to be limited too, got %+v", req)
	}
	if len(env.audit.Events(domain.CodeRateLimitedEvent)) != 2 {
		t.Error("expected both denials to be audited")
	}
	if env.pendingCode(t, "+30123456789") != code {
		t.Error("a denied attempt must not touch the pending code")
	}

	env.clock.Advance(61 * time.Second)
	ok, err := svc.VerifyCode(ctx, domain.VerifyCodeInput{Phone: "+30123456789", Code: code, IP: "10.0.0.1"})
	if err != nil || ok.Denied != nil || ok.SessionToken == "" {
		t.Fatalf("expected the window to reopen, got %+v, %v", ok, err)
	}
}

func TestAuthServiceImpl_RequestCodeJoinsOrganization(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	org := &domain.Organization{Name: "Fleet", Slug: "fleet", Status: "active", CreatedAt: baseTime}
	if err := env.orgs.Create(ctx, org); err != nil {
		t.Fatalf("failed to seed org: %v", err)
	}
	inactive := &domain.Organization{Name: "Closed", Slug: "closed", Status: "inactive", CreatedAt: baseTime}
	if err := env.orgs.Create(ctx, inactive); err != nil {
		t.Fatalf("failed to seed org: %v", err)
	}
	svc := env.authService(nil, nil, AuthConfig{})

	if _, err := svc.RequestCode(ctx, domain.RequestCodeInput{Phone: "+30123456789", OrganizationID: &inactive.ID}); !errors.Is(err, domain.ErrInvalidOrganization) {
		t.Errorf("expected ErrInvalidOrganization, got %v", err)
	}
	if _, err := svc.RequestCode(ctx, domain.RequestCodeInput{Phone: "+30123456789", OrganizationID: &org.ID}); err != nil {
		t.Fatalf("request failed: %v", err)
	}

	d, _ := env.drivers.FindByPhone(ctx, "+30123456789")
	if d.OrganizationID == nil || *d.OrganizationID != org.ID || d.Approved {
		t.Errorf("expected pending member of org %d, got %+v", org.ID, d)
	}
}

func TestAuthServiceImpl_UpdateName(t *testing.T) {
	env := newTestEnv(t)
	svc := env.authService(nil, nil, AuthConfig{})
	d := env.createDriver(t, &domain.Driver{Phone: "+30123456789"})

	if _, err := svc.UpdateName(context.Background(), d.ID, "   "); !errors.Is(err, domain.ErrMissingField) {
		t.Errorf("expected ErrMissingField, got %v", err)
	}
	got, err := svc.UpdateName(context.Background(), d.ID, " Maria ")
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if got.Name != "Maria" {
		t.Errorf("expected trimmed name, got %q", got.Name)
	}
	if _, err := svc.UpdateName(context.Background(), 999, "x"); !errors.Is(err, domain.ErrDriverNotFound) {
		t.Errorf("expected ErrDriverNotFound, got %v", err)
	}
}
