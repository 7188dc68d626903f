package config

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateIdentity(); err != nil {
		return err
	}
	if err := c.validatePolicies(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateAPI() error {
	parsed, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return fmt.Errorf("api.base_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("api.base_url must use http or https, got %q", c.API.BaseURL)
	}
	if parsed.Host == "" {
		return errors.New("api.base_url must include a host")
	}
	if c.API.LinkRouteFree == c.API.LinkRoutePro {
		return errors.New("api.link_route_free and api.link_route_pro must differ")
	}
	return nil
}

func (c *Config) validateIdentity() error {
	switch c.Identity.Tier {
	case "free", "pro":
		return nil
	default:
		return fmt.Errorf("identity.tier must be \"free\" or \"pro\", got %q", c.Identity.Tier)
	}
}

func (c *Config) validatePolicies() error {
	if err := ensurePositiveMap(map[string]int{
		"api.request_timeout_seconds":           c.API.RequestTimeoutSeconds,
		"monitor.poll_interval_seconds":         c.Monitor.PollIntervalSeconds,
		"monitor.max_consecutive_errors":        c.Monitor.MaxConsecutiveErrors,
		"submit.max_attempts":                   c.Submit.MaxAttempts,
		"submit.retry_base_delay_ms":            c.Submit.RetryBaseDelayMillis,
		"submit.retry_max_delay_ms":             c.Submit.RetryMaxDelayMillis,
		"submit.upload_target_attempts":         c.Submit.UploadTargetAttempts,
		"submit.upload_target_validity_seconds": c.Submit.UploadTargetValiditySeconds,
		"submit.credential_issue_attempts":      c.Submit.CredentialIssueAttempts,
		"cache.max_age_hours":                   c.Cache.MaxAgeHours,
		"notifications.request_timeout_seconds": c.Notifications.RequestTimeoutSeconds,
	}); err != nil {
		return err
	}
	if c.Submit.RetryMaxDelayMillis < c.Submit.RetryBaseDelayMillis {
		return errors.New("submit.retry_max_delay_ms must be at least submit.retry_base_delay_ms")
	}
	if c.Chat.ProMessageLimit < 0 {
		return errors.New("chat.pro_message_limit must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be \"console\" or \"json\", got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not recognised", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
