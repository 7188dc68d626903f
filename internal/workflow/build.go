package workflow

import (
	"fmt"
	"log/slog"

	"earmark/internal/analysis"
	"earmark/internal/auth"
	"earmark/internal/cache"
	"earmark/internal/config"
	"earmark/internal/monitor"
	"earmark/internal/notifications"
	"earmark/internal/push"
	"earmark/internal/services/aispy"
	"earmark/internal/store"
	"earmark/internal/submit"
	"earmark/internal/upload"
)

// Stack is the fully wired set of components for one process.
type Stack struct {
	Config    *config.Config
	Client    *aispy.Client
	Auth      *auth.Manager
	Store     *store.Store
	Cache     *cache.Cache
	Monitor   *monitor.Monitor
	Submitter *submit.Submitter
	Push      *push.Server
	Runner    *Runner
}

// Assemble builds every component from cfg. Callers own Close.
func Assemble(cfg *config.Config, logger *slog.Logger) (*Stack, error) {
	tier, err := analysis.ParseTier(cfg.Identity.Tier)
	if err != nil {
		return nil, fmt.Errorf("identity.tier: %w", err)
	}

	st, err := store.Open(cfg)
	if err != nil {
		return nil, err
	}

	baseDelay, maxDelay := cfg.RetryBackoff()
	client := aispy.NewClient(aispy.Config{
		BaseURL:        cfg.API.BaseURL,
		TimeoutSeconds: cfg.API.RequestTimeoutSeconds,
		LinkRouteFree:  cfg.API.LinkRouteFree,
		LinkRoutePro:   cfg.API.LinkRoutePro,
	},
		aispy.WithRetryMaxAttempts(cfg.Submit.MaxAttempts),
		aispy.WithRetryBackoff(baseDelay, maxDelay),
		aispy.WithLogger(logger),
	)

	manager, err := auth.NewManager(client,
		auth.WithStore(auth.NewFileStore(cfg.CredentialPath(), logger)),
		auth.WithPaymentUserID(cfg.Identity.PaymentUserID),
		auth.WithIssueAttempts(cfg.Submit.CredentialIssueAttempts),
		auth.WithLogger(logger),
	)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("credential manager: %w", err)
	}
	client.SetAuthorizer(manager)

	registry := submit.NewRegistry()
	gateway := upload.NewGateway(client,
		upload.WithTargetAttempts(cfg.Submit.UploadTargetAttempts),
		upload.WithTargetValidity(cfg.UploadTargetValidity()),
		upload.WithLogger(logger),
	)
	submitter := submit.New(client, gateway, registry, submit.WithLogger(logger))

	mon := monitor.New(client,
		monitor.WithPollInterval(cfg.PollInterval()),
		monitor.WithPolicy(monitor.Policy{MaxConsecutiveErrors: cfg.Monitor.MaxConsecutiveErrors}),
		monitor.WithPrecompleted(registry),
		monitor.WithLogger(logger),
	)
	resultCache := cache.New(st, cache.WithLogger(logger))

	runner := NewRunner(Deps{
		Store:     st,
		Cache:     resultCache,
		Submitter: submitter,
		Monitor:   mon,
		Notifier:  notifications.NewService(cfg),
	}, tier, cfg.CacheMaxAge(), logger)

	return &Stack{
		Config:    cfg,
		Client:    client,
		Auth:      manager,
		Store:     st,
		Cache:     resultCache,
		Monitor:   mon,
		Submitter: submitter,
		Push:      push.New(cfg.Push, mon, client, logger),
		Runner:    runner,
	}, nil
}

// Close releases the store.
func (s *Stack) Close() error {
	if s == nil {
		return nil
	}
	return s.Store.Close()
}
