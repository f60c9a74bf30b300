package service

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pharmguard-mcp-server/internal/domain"
	"github.com/pharmguard-mcp-server/pkg/external"
)

// NewConfiguredExplainer builds the explanation adapter for cfg. A configured
// collaborator is wrapped with the completion cache and a circuit breaker;
// cache may be nil. The returned name is the active provider, or "none".
func NewConfiguredExplainer(
	cfg domain.ExplanationConfig,
	cache domain.ExplanationCache,
	cacheTTL time.Duration,
	logger *logrus.Logger,
) (*ExplanationAdapter, string, error) {
	generator, unavailable, err := external.NewTextGenerator(cfg)
	if err != nil {
		return nil, "", err
	}

	var opts []ExplanationOption
	if cfg.Timeout > 0 {
		opts = append(opts, WithExplanationTimeout(cfg.Timeout))
	}

	if generator == nil {
		logger.WithField("reason", unavailable).Warn("Explanation collaborator disabled")
		opts = append(opts, WithUnavailableMessage(unavailable))
		return NewExplanationAdapter(nil, logger, opts...), external.ProviderNone, nil
	}

	resilient := external.NewResilientGenerator(generator, cache, cacheTTL, external.DefaultCircuitBreakerConfig(), logger)
	logger.WithFields(logrus.Fields{
		"provider": generator.Name(),
		"cached":   cache != nil,
	}).Info("Explanation collaborator configured")

	return NewExplanationAdapter(resilient, logger, opts...), generator.Name(), nil
}
