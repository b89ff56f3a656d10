package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/Tsipchain/driver-platform/domain"
)

// DefaultPath is used when CONFIG_PATH is not set
const DefaultPath = "config/config.yml"

type AppConfig struct {
	Port           int      `yaml:"port" env:"PORT"`
	GinMode        string   `yaml:"gin_mode" env:"GIN_MODE"`
	Env            string   `yaml:"env" env:"DRIVER_ENV"`
	TrustedProxies []string `yaml:"trusted_proxies" env:"TRUSTED_PROXIES" envSeparator:","`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn" env:"DATABASE_DSN"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
}

type SessionConfig struct {
	Backend string `yaml:"backend" env:"SESSION_BACKEND"`
}

type OTPConfig struct {
	TTL            string `yaml:"ttl" env:"DRIVER_OTP_TTL"`
	ResendCooldown string `yaml:"resend_cooldown" env:"DRIVER_OTP_RESEND_COOLDOWN"`
	CountryCode    string `yaml:"country_code" env:"DRIVER_COUNTRY_CODE"`
	DevFixedCode   string `yaml:"dev_fixed_code" env:"DRIVER_DEV_FIXED_OTP"`
	DevShowCode    bool   `yaml:"dev_show_code" env:"DEV_SHOW_CODE"`
}

type TrialConfig struct {
	HashSalt        string `yaml:"hash_salt" env:"TRIAL_HASH_SALT"`
	WindowShortSec  int    `yaml:"window_short_sec" env:"TRIAL_RL_WINDOW_SHORT_SEC"`
	WindowLongSec   int    `yaml:"window_long_sec" env:"TRIAL_RL_WINDOW_LONG_SEC"`
	MaxIPShort      int    `yaml:"max_ip_short" env:"TRIAL_RL_MAX_IP_SHORT"`
	MaxEmailShort   int    `yaml:"max_email_short" env:"TRIAL_RL_MAX_EMAIL_SHORT"`
	MaxIPEmailShort int    `yaml:"max_ip_email_short" env:"TRIAL_RL_MAX_IP_EMAIL_SHORT"`
	MaxPhoneShort   int    `yaml:"max_phone_short" env:"TRIAL_RL_MAX_PHONE_SHORT"`
	MaxIPLong       int    `yaml:"max_ip_long" env:"TRIAL_RL_MAX_IP_LONG"`
	MaxEmailLong    int    `yaml:"max_email_long" env:"TRIAL_RL_MAX_EMAIL_LONG"`
	MaxPhoneLong    int    `yaml:"max_phone_long" env:"TRIAL_RL_MAX_PHONE_LONG"`
	TrialPeriodDays int    `yaml:"trial_period_days" env:"TRIAL_PERIOD_DAYS"`
}

// LoginConfig bounds code requests and verifications
type LoginConfig struct {
	WindowShortSec  int `yaml:"window_short_sec" env:"LOGIN_RL_WINDOW_SHORT_SEC"`
	WindowLongSec   int `yaml:"window_long_sec" env:"LOGIN_RL_WINDOW_LONG_SEC"`
	MaxIPShort      int `yaml:"max_ip_short" env:"LOGIN_RL_MAX_IP_SHORT"`
	MaxIPPhoneShort int `yaml:"max_ip_phone_short" env:"LOGIN_RL_MAX_IP_PHONE_SHORT"`
	MaxPhoneShort   int `yaml:"max_phone_short" env:"LOGIN_RL_MAX_PHONE_SHORT"`
	MaxIPLong       int `yaml:"max_ip_long" env:"LOGIN_RL_MAX_IP_LONG"`
	MaxPhoneLong    int `yaml:"max_phone_long" env:"LOGIN_RL_MAX_PHONE_LONG"`
}

type SecurityConfig struct {
	AdminToken              string `yaml:"admin_token" env:"DRIVER_ADMIN_TOKEN"`
	AllowEmailPhoneReassign bool   `yaml:"allow_email_phone_reassign" env:"DRIVER_ALLOW_EMAIL_PHONE_REASSIGN"`
}

type SMTPConfig struct {
	Enabled  bool   `yaml:"enabled" env:"DRIVER_SMTP_ENABLED"`
	Host     string `yaml:"host" env:"DRIVER_SMTP_HOST"`
	Port     int    `yaml:"port" env:"DRIVER_SMTP_PORT"`
	User     string `yaml:"user" env:"DRIVER_SMTP_USER"`
	Password string `yaml:"password" env:"DRIVER_SMTP_PASSWORD"`
	From     string `yaml:"from" env:"DRIVER_SMTP_FROM"`
	UseSSL   bool   `yaml:"use_ssl" env:"DRIVER_SMTP_USE_SSL"`
	Timeout  string `yaml:"timeout" env:"DRIVER_SMTP_TIMEOUT"`
}

type TwilioConfig struct {
	AccountSID string `yaml:"account_sid" env:"TWILIO_ACCOUNT_SID"`
	AuthToken  string `yaml:"auth_token" env:"TWILIO_AUTH_TOKEN"`
	FromNumber string `yaml:"from_number" env:"TWILIO_FROM_NUMBER"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" envSeparator:","`
	Topic   string   `yaml:"topic" env:"KAFKA_AUDIT_TOPIC"`
}

type CasbinConfig struct {
	ModelPath string `yaml:"model_path" env:"CASBIN_MODEL_PATH"`
}

type ConfigFile struct {
	App      AppConfig      `yaml:"app"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Session  SessionConfig  `yaml:"session"`
	OTP      OTPConfig      `yaml:"otp"`
	Trial    TrialConfig    `yaml:"trial"`
	Login    LoginConfig    `yaml:"login"`
	Security SecurityConfig `yaml:"security"`
	SMTP     SMTPConfig     `yaml:"smtp"`
	Twilio   TwilioConfig   `yaml:"twilio"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Casbin   CasbinConfig   `yaml:"casbin"`
}

// RateLimits holds the per-rule thresholds of the trial limiter
type RateLimits struct {
	IPShort      int
	EmailShort   int
	IPEmailShort int
	PhoneShort   int
	IPLong       int
	EmailLong    int
	PhoneLong    int
}

// LoginLimits holds the per-rule thresholds of the login limiter.
// Phone limits count failed verifications only.
type LoginLimits struct {
	IPShort      int
	IPPhoneShort int
	PhoneShort   int
	IPLong       int
	PhoneLong    int
}

// Config is built once at startup and passed to every component constructor
type Config struct {
	Port           string
	GinMode        string
	Env            string
	TrustedProxies []string
	LogLevel       string
	LogFormat      string

	DSN            string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	SessionBackend string

	OTP_TTL            time.Duration
	OTP_ResendCooldown time.Duration
	CountryCode        string
	DevFixedCode       string
	DevShowCode        bool

	TrialHashSalt    string
	TrialWindowShort time.Duration
	TrialWindowLong  time.Duration
	TrialLimits      RateLimits
	TrialPeriod      time.Duration

	LoginWindowShort time.Duration
	LoginWindowLong  time.Duration
	LoginLimits      LoginLimits

	AdminToken              string
	AllowEmailPhoneReassign bool

	SMTPEnabled  bool
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string
	SMTPUseSSL   bool
	SMTPTimeout  time.Duration

	TwilioSID   string
	TwilioToken string
	TwilioFrom  string

	KafkaBrokers []string
	KafkaTopic   string

	CasbinModelPath string

	// Warnings collects non-fatal adjustments made while loading
	Warnings []string
}

var sixDigits = regexp.MustCompile(`^\d{6}$`)

// Defaults returns the built-in configuration file values
func Defaults() ConfigFile {
	return ConfigFile{
		App:      AppConfig{Port: 8080, GinMode: "release", Env: "development"},
		Log:      LogConfig{Level: "info", Format: "console"},
		Database: DatabaseConfig{DSN: "file:driver.db?_busy_timeout=5000"},
		Redis:    RedisConfig{Addr: "localhost:6379"},
		Session:  SessionConfig{Backend: "sql"},
		OTP: OTPConfig{
			TTL:            "10m",
			ResendCooldown: "120s",
			CountryCode:    "+30",
		},
		Trial: TrialConfig{
			WindowShortSec:  900,
			WindowLongSec:   86400,
			MaxIPShort:      5,
			MaxEmailShort:   3,
			MaxIPEmailShort: 2,
			MaxPhoneShort:   2,
			MaxIPLong:       25,
			MaxEmailLong:    6,
			MaxPhoneLong:    6,
			TrialPeriodDays: 14,
		},
		Login: LoginConfig{
			WindowShortSec:  600,
			WindowLongSec:   3600,
			MaxIPShort:      20,
			MaxIPPhoneShort: 10,
			MaxPhoneShort:   5,
			MaxIPLong:       100,
			MaxPhoneLong:    20,
		},
		SMTP:  SMTPConfig{Port: 465, UseSSL: true, Timeout: "10s"},
		Kafka: KafkaConfig{Topic: "driver-audit"},
	}
}

// Load reads the YAML file at CONFIG_PATH (or DefaultPath), overlays the
// environment and validates the result.
func Load() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = DefaultPath
	}
	return LoadFrom(path)
}

// LoadFrom is Load with an explicit file path. A missing file means defaults.
func LoadFrom(path string) (*Config, error) {
	configFile, err := loadConfigFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := env.Parse(configFile); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	return build(configFile)
}

func build(f *ConfigFile) (*Config, error) {
	otpTTL, err := time.ParseDuration(f.OTP.TTL)
	if err != nil {
		return nil, fmt.Errorf("invalid OTP TTL: %w", err)
	}

	cooldown, err := time.ParseDuration(f.OTP.ResendCooldown)
	if err != nil {
		return nil, fmt.Errorf("invalid OTP resend cooldown: %w", err)
	}

	smtpTimeout, err := parseDuration(f.SMTP.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP timeout: %w", err)
	}

	cfg := &Config{
		Port:           fmt.Sprintf("%d", f.App.Port),
		GinMode:        f.App.GinMode,
		Env:            strings.ToLower(strings.TrimSpace(f.App.Env)),
		TrustedProxies: f.App.TrustedProxies,
		LogLevel:       f.Log.Level,
		LogFormat:      f.Log.Format,

		DSN:            f.Database.DSN,
		RedisAddr:      f.Redis.Addr,
		RedisPassword:  f.Redis.Password,
		RedisDB:        f.Redis.DB,
		SessionBackend: strings.ToLower(f.Session.Backend),

		OTP_TTL:            otpTTL,
		OTP_ResendCooldown: cooldown,
		CountryCode:        f.OTP.CountryCode,
		DevFixedCode:       strings.TrimSpace(f.OTP.DevFixedCode),
		DevShowCode:        f.OTP.DevShowCode,

		TrialHashSalt:    strings.TrimSpace(f.Trial.HashSalt),
		TrialWindowShort: time.Duration(f.Trial.WindowShortSec) * time.Second,
		TrialWindowLong:  time.Duration(f.Trial.WindowLongSec) * time.Second,
		TrialLimits: RateLimits{
			IPShort:      f.Trial.MaxIPShort,
			EmailShort:   f.Trial.MaxEmailShort,
			IPEmailShort: f.Trial.MaxIPEmailShort,
			PhoneShort:   f.Trial.MaxPhoneShort,
			IPLong:       f.Trial.MaxIPLong,
			EmailLong:    f.Trial.MaxEmailLong,
			PhoneLong:    f.Trial.MaxPhoneLong,
		},
		TrialPeriod: time.Duration(f.Trial.TrialPeriodDays) * 24 * time.Hour,

		LoginWindowShort: time.Duration(f.Login.WindowShortSec) * time.Second,
		LoginWindowLong:  time.Duration(f.Login.WindowLongSec) * time.Second,
		LoginLimits: LoginLimits{
			IPShort:      f.Login.MaxIPShort,
			IPPhoneShort: f.Login.MaxIPPhoneShort,
			PhoneShort:   f.Login.MaxPhoneShort,
			IPLong:       f.Login.MaxIPLong,
			PhoneLong:    f.Login.MaxPhoneLong,
		},

		AdminToken:              strings.TrimSpace(f.Security.AdminToken),
		AllowEmailPhoneReassign: f.Security.AllowEmailPhoneReassign,

		SMTPEnabled:  f.SMTP.Enabled,
		SMTPHost:     strings.TrimSpace(f.SMTP.Host),
		SMTPPort:     f.SMTP.Port,
		SMTPUser:     f.SMTP.User,
		SMTPPassword: f.SMTP.Password,
		SMTPFrom:     strings.TrimSpace(f.SMTP.From),
		SMTPUseSSL:   f.SMTP.UseSSL,
		SMTPTimeout:  smtpTimeout,

		TwilioSID:   f.Twilio.AccountSID,
		TwilioToken: f.Twilio.AuthToken,
		TwilioFrom:  f.Twilio.FromNumber,

		KafkaBrokers: f.Kafka.Brokers,
		KafkaTopic:   f.Kafka.Topic,

		CasbinModelPath: f.Casbin.ModelPath,
	}

	if cfg.SMTPFrom == "" {
		cfg.SMTPFrom = strings.TrimSpace(cfg.SMTPUser)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.IsProduction() {
		if c.TrialHashSalt == "" {
			return fmt.Errorf("TRIAL_HASH_SALT must be set in production: %w", domain.ErrMissingSecret)
		}
		if c.DevFixedCode != "" {
			c.Warnings = append(c.Warnings, "dev fixed code ignored in production")
			c.DevFixedCode = ""
		}
		c.DevShowCode = false
	}

	if c.DevFixedCode != "" && !sixDigits.MatchString(c.DevFixedCode) {
		c.Warnings = append(c.Warnings, "dev fixed code ignored: expected 6 digits")
		c.DevFixedCode = ""
	}

	if c.OTP_TTL <= 0 {
		return errors.New("OTP TTL must be positive")
	}
	if c.OTP_ResendCooldown < 0 {
		return errors.New("OTP resend cooldown must not be negative")
	}
	if c.TrialWindowShort <= 0 || c.TrialWindowLong <= 0 {
		return errors.New("trial rate limit windows must be positive")
	}

	l := c.TrialLimits
	for name, v := range map[string]int{
		"ip_short": l.IPShort, "email_short": l.EmailShort, "ip_email_short": l.IPEmailShort,
		"phone_short": l.PhoneShort, "ip_long": l.IPLong, "email_long": l.EmailLong, "phone_long": l.PhoneLong,
	} {
		if v <= 0 {
			return fmt.Errorf("trial limit %s must be positive", name)
		}
	}

	if c.LoginWindowShort <= 0 || c.LoginWindowLong <= 0 {
		return errors.New("login rate limit windows must be positive")
	}
	ll := c.LoginLimits
	for name, v := range map[string]int{
		"ip_short": ll.IPShort, "ip_phone_short": ll.IPPhoneShort, "phone_short": ll.PhoneShort,
		"ip_long": ll.IPLong, "phone_long": ll.PhoneLong,
	} {
		if v <= 0 {
			return fmt.Errorf("login limit %s must be positive", name)
		}
	}

	switch c.SessionBackend {
	case "sql", "redis":
	default:
		return fmt.Errorf("unknown session backend %q", c.SessionBackend)
	}
	return nil
}

// IsProduction reports whether the deployment is flagged production
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// SMTPConfigured reports whether every SMTP setting needed to send mail is present
func (c *Config) SMTPConfigured() bool {
	return c.SMTPEnabled && c.SMTPHost != "" && c.SMTPPort > 0 &&
		c.SMTPUser != "" && c.SMTPPassword != "" && c.SMTPFrom != ""
}

// TwilioConfigured reports whether SMS delivery can be used
func (c *Config) TwilioConfigured() bool {
	return c.TwilioSID != "" && c.TwilioToken != "" && c.TwilioFrom != ""
}

func loadConfigFile(path string) (*ConfigFile, error) {
	config := Defaults()

	bytes, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &config, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read config file at %s: %w", path, err)
	}

	if err := yaml.Unmarshal(bytes, &config); err != nil {
		return nil, fmt.Errorf("could not parse config yaml: %w", err)
	}

	return &config, nil
}

// parseDuration accepts a Go duration or a bare number of seconds
func parseDuration(v string) (time.Duration, error) {
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(v)
}
