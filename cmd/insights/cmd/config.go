package cmd

import (
	"time"

	"insights-backend/internal/cache"
	"insights-backend/internal/db"
	"insights-backend/internal/enrichment"
	"insights-backend/internal/ingest"
	"insights-backend/internal/mirror"
	"insights-backend/internal/notify"
	"insights-backend/internal/scrapers/linkedin"
	"insights-backend/internal/session"
)

type SessionConfig struct {
	session.Credentials
	// CookieFile is where the credential artifact is kept.
	CookieFile                 string `json:"cookie_file"`
	StepTimeoutSeconds         int    `json:"step_timeout_seconds"`
	VerificationTimeoutSeconds int    `json:"verification_timeout_seconds"`
	VerificationPollSeconds    int    `json:"verification_poll_seconds"`
	// FailureCooldownMinutes is how long a failed session waits before trying again on
	// its own, a negative value waits for an operator.
	FailureCooldownMinutes int `json:"failure_cooldown_minutes"`
}

type NotifyConfig struct {
	Smtp notify.SmtpConfig `json:"smtp"`
}

type IngestConfig struct {
	MaxConcurrent    int `json:"max_concurrent"`
	RetryAttempts    int `json:"retry_attempts"`
	RetryBaseDelayMs int `json:"retry_base_delay_ms"`
}

type ServeConfig struct {
	Addr string `json:"addr"`
	// RefreshSchedule is a cron spec, empty disables scheduled refreshes.
	RefreshSchedule string `json:"refresh_schedule"`
	// Organizations are refreshed on schedule, empty means every persisted one.
	Organizations      []string `json:"organizations"`
	RefreshConcurrency int      `json:"refresh_concurrency"`
}

type Config struct {
	Database   db.Config         `json:"database"`
	Cache      cache.Config      `json:"cache"`
	Linkedin   linkedin.Config   `json:"linkedin"`
	Session    SessionConfig     `json:"session"`
	Enrichment enrichment.Config `json:"enrichment"`
	Mirror     mirror.Config     `json:"mirror"`
	Notify     NotifyConfig      `json:"notify"`
	Ingest     IngestConfig      `json:"ingest"`
	Serve      ServeConfig       `json:"serve"`
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func (c Config) withDefaults() Config {
	if c.Database.File == "" && c.Database.Url == "" {
		c.Database.File = "insights.db"
	}
	if c.Session.CookieFile == "" {
		c.Session.CookieFile = ".insights/cookies.json"
	}
	if c.Serve.Addr == "" {
		c.Serve.Addr = "127.0.0.1:8080"
	}
	return c
}

func (c SessionConfig) manager() session.Config {
	config := session.DefaultConfig()
	config.Credentials = c.Credentials
	if c.StepTimeoutSeconds > 0 {
		config.StepTimeout = seconds(c.StepTimeoutSeconds)
	}
	if c.VerificationTimeoutSeconds > 0 {
		config.VerificationTimeout = seconds(c.VerificationTimeoutSeconds)
	}
	if c.VerificationPollSeconds > 0 {
		config.VerificationPollInterval = seconds(c.VerificationPollSeconds)
	}
	switch {
	case c.FailureCooldownMinutes > 0:
		config.FailureCooldown = time.Duration(c.FailureCooldownMinutes) * time.Minute
	case c.FailureCooldownMinutes < 0:
		config.FailureCooldown = 0
	}
	return config
}

func (c IngestConfig) service() ingest.Config {
	config := ingest.DefaultConfig()
	if c.MaxConcurrent > 0 {
		config.MaxConcurrent = c.MaxConcurrent
	}
	if c.RetryAttempts > 0 {
		config.Retry.MaxAttempts = c.RetryAttempts
	}
	if c.RetryBaseDelayMs > 0 {
		config.Retry.BaseDelay = time.Duration(c.RetryBaseDelayMs) * time.Millisecond
	}
	return config
}
