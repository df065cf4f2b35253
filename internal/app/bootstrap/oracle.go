package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/booking-agent/internal/config"
	"github.com/wolfman30/booking-agent/internal/llm"
	"github.com/wolfman30/booking-agent/pkg/logging"
)

const (
	ProviderGemini  = "gemini"
	ProviderBedrock = "bedrock"
)

// Oracle is the provider set resolved at startup.
type Oracle struct {
	Chat     llm.Oracle
	Embedder llm.Embedder
	Models   llm.Models
	closers  []func()
}

func (o *Oracle) Close() {
	for _, c := range o.closers {
		c()
	}
}

// ProviderModels returns the tier model ids configured for provider.
func ProviderModels(cfg *appconfig.Config, provider string) llm.Models {
	if provider == ProviderBedrock {
		return llm.Models{
			Cheap:     cfg.BedrockCheapModel,
			Capable:   cfg.BedrockCapableModel,
			Embedding: cfg.BedrockEmbeddingModel,
		}
	}
	return llm.Models{
		Cheap:     cfg.GeminiCheapModel,
		Capable:   cfg.GeminiCapableModel,
		Embedding: cfg.GeminiEmbeddingModel,
	}
}

// BuildOracle picks the primary provider and an optional fallback from
// config. Embeddings always come from the primary so stored vectors and
// queries share one model.
func BuildOracle(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*Oracle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	primaryName := strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	if primaryName == "" {
		primaryName = ProviderGemini
	}

	out := &Oracle{Models: ProviderModels(cfg, primaryName)}
	primary, embedder, closer, err := buildProvider(ctx, cfg, primaryName)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		out.closers = append(out.closers, closer)
	}
	out.Chat = primary
	out.Embedder = embedder

	fallbackName := strings.ToLower(strings.TrimSpace(cfg.LLMFallbackProvider))
	if fallbackName != "" && fallbackName != primaryName {
		secondary, _, closer, err := buildProvider(ctx, cfg, fallbackName)
		if err != nil {
			logger.Warn("fallback oracle unavailable", "provider", fallbackName, "error", err)
		} else {
			if closer != nil {
				out.closers = append(out.closers, closer)
			}
			out.Chat = llm.NewFallbackOracle(primary, secondary, logger)
		}
	}
	logger.Info("oracle configured", "provider", primaryName, "fallback", fallbackName,
		"cheap_model", out.Models.Cheap, "capable_model", out.Models.Capable)
	return out, nil
}

func buildProvider(ctx context.Context, cfg *appconfig.Config, name string) (llm.Oracle, llm.Embedder, func(), error) {
	models := ProviderModels(cfg, name)
	switch name {
	case ProviderGemini:
		g, err := llm.NewGeminiOracle(ctx, cfg.GoogleAPIKey, models)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("bootstrap: gemini: %w", err)
		}
		return g, g, func() { _ = g.Close() }, nil
	case ProviderBedrock:
		awsCfg, err := LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("bootstrap: load aws config: %w", err)
		}
		client := bedrockruntime.NewFromConfig(awsCfg)
		return llm.NewBedrockOracle(client, models), llm.NewBedrockEmbedder(client, models.Embedding), nil, nil
	default:
		return nil, nil, nil, fmt.Errorf("bootstrap: unknown llm provider %q", name)
	}
}
