package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Tsipchain/driver-platform/internal/app"
	"github.com/Tsipchain/driver-platform/internal/config"
)

const adminSecret = "e2e-admin-secret"

// TestServer runs the fully wired API over a private in-memory database
type TestServer struct {
	Server *httptest.Server
	Logs   *observer.ObservedLogs
	t      *testing.T
}

func testConfig() *config.Config {
	return &config.Config{
		Port:               "0",
		GinMode:            gin.TestMode,
		Env:                "development",
		LogLevel:           "debug",
		DSN:                ":memory:",
		SessionBackend:     "sql",
		OTP_TTL:            10 * time.Minute,
		OTP_ResendCooldown: 120 * time.Second,
		CountryCode:        "+30",
		TrialHashSalt:      "e2e-salt",
		TrialWindowShort:   15 * time.Minute,
		TrialWindowLong:    24 * time.Hour,
		TrialLimits: config.RateLimits{
			IPShort:      5,
			EmailShort:   3,
			IPEmailShort: 2,
			PhoneShort:   2,
			IPLong:       25,
			EmailLong:    6,
			PhoneLong:    6,
		},
		TrialPeriod:      14 * 24 * time.Hour,
		LoginWindowShort: 10 * time.Minute,
		LoginWindowLong:  time.Hour,
		LoginLimits: config.LoginLimits{
			IPShort:      20,
			IPPhoneShort: 10,
			PhoneShort:   5,
			IPLong:       100,
			PhoneLong:    20,
		},
		AdminToken: adminSecret,
		KafkaTopic: "driver-audit",
	}
}

// NewTestServer builds the container exactly as the binary does, with an
// observed logger so tests can read log-delivered codes.
func NewTestServer(t *testing.T, mutate func(*config.Config)) *TestServer {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}

	core, logs := observer.New(zapcore.DebugLevel)
	c, err := app.NewContainer(context.Background(), cfg, zap.New(core))
	require.NoError(t, err)

	r, err := c.Router()
	require.NoError(t, err)

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		_ = c.Close()
	})
	return &TestServer{Server: srv, Logs: logs, t: t}
}

// Do sends a JSON request and decodes the JSON response body
func (s *TestServer) Do(method, path string, body interface{}, headers map[string]string) (int, http.Header, map[string]interface{}) {
	s.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.Server.URL+path, &buf)
	require.NoError(s.t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.Server.Client().Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	if resp.ContentLength != 0 {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp.StatusCode, resp.Header, out
}

// LastCode returns the most recent code written by log delivery for phone
func (s *TestServer) LastCode(phone string) string {
	s.t.Helper()

	entries := s.Logs.FilterMessage("[DEV] login code").All()
	for i := len(entries) - 1; i >= 0; i-- {
		fields := entries[i].ContextMap()
		if fields["phone"] == phone {
			code, _ := fields["code"].(string)
			return code
		}
	}
	s.t.Fatalf("no logged code for %s", phone)
	return ""
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func adminHeader(token string) map[string]string {
	return map[string]string{"X-Admin-Token": token}
}
