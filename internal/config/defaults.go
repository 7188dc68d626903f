package config

const (
	defaultAPIBaseURL             = "https://api.ai-spy.xyz"
	defaultRequestTimeoutSeconds  = 30
	defaultLinkRouteFree          = "/analyze-link"
	defaultLinkRoutePro           = "/analyze-link-pro"
	defaultTier                   = "free"
	defaultStateDir               = "~/.local/share/earmark"
	defaultLogDir                 = "~/.local/share/earmark/logs"
	defaultPollIntervalSeconds    = 2
	defaultMaxConsecutiveErrors   = 3
	defaultSubmitMaxAttempts      = 3
	defaultRetryBaseDelayMillis   = 1000
	defaultRetryMaxDelayMillis    = 8000
	defaultUploadTargetAttempts   = 2
	defaultUploadTargetValiditySe = 10
	defaultCredentialIssueTries   = 2
	defaultCacheMaxAgeHours       = 24
	defaultPushPath               = "/v1/push"
	defaultChatProMessageLimit    = 10
	defaultNotifyTimeoutSeconds   = 10
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		API: API{
			BaseURL:               defaultAPIBaseURL,
			RequestTimeoutSeconds: defaultRequestTimeoutSeconds,
			LinkRouteFree:         defaultLinkRouteFree,
			LinkRoutePro:          defaultLinkRoutePro,
		},
		Identity: Identity{
			Tier: defaultTier,
		},
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Monitor: Monitor{
			PollIntervalSeconds:  defaultPollIntervalSeconds,
			MaxConsecutiveErrors: defaultMaxConsecutiveErrors,
		},
		Submit: Submit{
			MaxAttempts:                 defaultSubmitMaxAttempts,
			RetryBaseDelayMillis:        defaultRetryBaseDelayMillis,
			RetryMaxDelayMillis:         defaultRetryMaxDelayMillis,
			UploadTargetAttempts:        defaultUploadTargetAttempts,
			UploadTargetValiditySeconds: defaultUploadTargetValiditySe,
			CredentialIssueAttempts:     defaultCredentialIssueTries,
		},
		Cache: Cache{
			MaxAgeHours: defaultCacheMaxAgeHours,
		},
		Push: Push{
			Path: defaultPushPath,
		},
		Chat: Chat{
			ProMessageLimit: defaultChatProMessageLimit,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNotifyTimeoutSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
