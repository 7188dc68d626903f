package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAPI()
	c.normalizeIdentity()
	c.normalizePush()
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeAPI() {
	if value, ok := os.LookupEnv("EARMARK_API_BASE_URL"); ok && strings.TrimSpace(value) != "" {
		c.API.BaseURL = value
	}
	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	if c.API.BaseURL == "" {
		c.API.BaseURL = defaultAPIBaseURL
	}
	c.API.LinkRouteFree = normalizeRoute(c.API.LinkRouteFree, defaultLinkRouteFree)
	c.API.LinkRoutePro = normalizeRoute(c.API.LinkRoutePro, defaultLinkRoutePro)
}

func (c *Config) normalizeIdentity() {
	if c.Identity.PaymentUserID == "" {
		if value, ok := os.LookupEnv("EARMARK_PAYMENT_USER_ID"); ok {
			c.Identity.PaymentUserID = value
		}
	}
	c.Identity.PaymentUserID = strings.TrimSpace(c.Identity.PaymentUserID)
	c.Identity.Tier = strings.ToLower(strings.TrimSpace(c.Identity.Tier))
	if c.Identity.Tier == "" {
		c.Identity.Tier = defaultTier
	}
}

func (c *Config) normalizePush() {
	if c.Push.Token == "" {
		if value, ok := os.LookupEnv("EARMARK_PUSH_TOKEN"); ok {
			c.Push.Token = value
		}
	}
	c.Push.Bind = strings.TrimSpace(c.Push.Bind)
	c.Push.Token = strings.TrimSpace(c.Push.Token)
	c.Push.Path = normalizeRoute(c.Push.Path, defaultPushPath)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func normalizeRoute(route, fallback string) string {
	route = strings.TrimSpace(route)
	if route == "" {
		return fallback
	}
	if !strings.HasPrefix(route, "/") {
		route = "/" + route
	}
	return route
}
