package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"earmark/internal/analysis"
	"earmark/internal/config"
	"earmark/internal/logging"
	"earmark/internal/workflow"
)

type commandContext struct {
	configFlag *string
	tierFlag   *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag, tierFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		tierFlag:   tierFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.tierFlag != nil && strings.TrimSpace(*c.tierFlag) != "" {
			tier, err := analysis.ParseTier(*c.tierFlag)
			if err != nil {
				c.configErr = fmt.Errorf("--tier: %w", err)
				return
			}
			cfg.Identity.Tier = string(tier)
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger, c.loggerErr = logging.NewFromConfig(cfg)
	})
	return c.logger, c.loggerErr
}

// withStack assembles the workflow stack for the duration of fn.
func (c *commandContext) withStack(fn func(*workflow.Stack) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return err
	}
	stack, err := workflow.Assemble(cfg, logger)
	if err != nil {
		return err
	}
	defer stack.Close()
	return fn(stack)
}

// withInstanceLock runs fn while holding the single-instance lock so only
// one process follows persisted jobs at a time.
func (c *commandContext) withInstanceLock(fn func() error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	lock, err := workflow.AcquireInstanceLock(cfg.LockPath())
	if err != nil {
		return err
	}
	defer lock.Release()
	return fn()
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
