package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"bidsmith/handler"
	appconfig "bidsmith/internal/config"
	"bidsmith/internal/integrations/gemini"
	"bidsmith/internal/integrations/openai"
	"bidsmith/internal/integrations/paramstore"
	"bidsmith/internal/ledger"
	"bidsmith/internal/llm"
	"bidsmith/internal/pipeline"
	"bidsmith/internal/repository"
	"bidsmith/internal/usecase"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

type app struct {
	handler *handler.Handler
}

func wireApp(ctx context.Context, cfg appconfig.Config) (*app, error) {
	logger := slog.Default()

	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	params, err := paramstore.New(awsssm.NewFromConfig(awsCfg), cfg.ParamPrefix)
	if err != nil {
		return nil, fmt.Errorf("wire parameter store: %w", err)
	}
	store, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.StateTable)
	if err != nil {
		return nil, fmt.Errorf("wire state store: %w", err)
	}
	ldg, err := ledger.New(store, ledger.WithStartingBalance(cfg.StartingBalance), ledger.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("wire ledger: %w", err)
	}

	backends, err := wireBackends(cfg, params)
	if err != nil {
		return nil, err
	}
	gen, err := llm.NewClient(backends, logger)
	if err != nil {
		return nil, fmt.Errorf("wire llm client: %w", err)
	}
	router, err := wireRouter(ctx, cfg, params, logger)
	if err != nil {
		return nil, err
	}
	prompts, err := usecase.NewPromptBook(params, cfg.ParamPrefix, 0, logger)
	if err != nil {
		return nil, fmt.Errorf("wire prompt book: %w", err)
	}

	analysis, err := pipeline.NewAnalysis(gen, router, prompts,
		pipeline.WithConcurrentPrescore(cfg.ConcurrentPrescore),
		pipeline.WithAnalysisLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("wire analysis pipeline: %w", err)
	}
	draft, err := pipeline.NewDraft(gen, router, prompts, logger)
	if err != nil {
		return nil, fmt.Errorf("wire draft pipeline: %w", err)
	}

	analyzeSvc, err := usecase.NewAnalyzeService(ldg, store, analysis, cfg.MinSourceChars, logger)
	if err != nil {
		return nil, fmt.Errorf("wire analyze service: %w", err)
	}
	chatSvc, err := usecase.NewChatService(ldg, store, draft, logger)
	if err != nil {
		return nil, fmt.Errorf("wire chat service: %w", err)
	}
	proposalSvc, err := usecase.NewProposalService(ldg, store, draft, logger)
	if err != nil {
		return nil, fmt.Errorf("wire proposal service: %w", err)
	}
	balanceSvc, err := usecase.NewBalanceService(ldg)
	if err != nil {
		return nil, fmt.Errorf("wire balance service: %w", err)
	}

	internalSecret, err := paramstore.NewSecret(params, params.Param("internal-api-secret"))
	if err != nil {
		return nil, fmt.Errorf("wire internal secret: %w", err)
	}
	auth, err := handler.NewCallerResolver(cfg.IdentityHeader, internalSecret)
	if err != nil {
		return nil, fmt.Errorf("wire caller resolver: %w", err)
	}

	h, err := handler.NewHandler(handler.Services{
		Analyze:  analyzeSvc,
		Chat:     chatSvc,
		Proposal: proposalSvc,
		Balance:  balanceSvc,
	}, auth, logger)
	if err != nil {
		return nil, fmt.Errorf("wire handler: %w", err)
	}
	return &app{handler: h}, nil
}

// wireBackends registers the generation backends for the routing mode. Cloud
// keys are fetched lazily on first use.
func wireBackends(cfg appconfig.Config, params *paramstore.Client) (map[string]llm.Backend, error) {
	local, err := openai.NewClient(paramstore.StaticSecret(""), openai.WithBaseURL(cfg.LocalBaseURL))
	if err != nil {
		return nil, fmt.Errorf("wire local backend: %w", err)
	}
	backends := map[string]llm.Backend{llm.ProviderLocal: local}
	if cfg.RoutingMode == llm.ModeLocal {
		return backends, nil
	}

	secret := func(name string) (*paramstore.Secret, error) {
		s, err := paramstore.NewSecret(params, params.Param(name))
		if err != nil {
			return nil, fmt.Errorf("wire %s: %w", name, err)
		}
		return s, nil
	}

	openaiKey, err := secret("open-ai-token")
	if err != nil {
		return nil, err
	}
	openaiClient, err := openai.NewClient(openaiKey)
	if err != nil {
		return nil, fmt.Errorf("wire openai backend: %w", err)
	}

	openRouterKey, err := secret("openrouter-token")
	if err != nil {
		return nil, err
	}
	openRouterClient, err := openai.NewClient(openRouterKey,
		openai.WithBaseURL(openRouterBaseURL),
		openai.WithHeader("X-Title", "bidsmith"))
	if err != nil {
		return nil, fmt.Errorf("wire openrouter backend: %w", err)
	}

	geminiKey, err := secret("gemini-token")
	if err != nil {
		return nil, err
	}
	geminiClient, err := gemini.NewClient(geminiKey)
	if err != nil {
		return nil, fmt.Errorf("wire gemini backend: %w", err)
	}

	backends[llm.ProviderOpenAI] = openaiClient
	backends[llm.ProviderOpenRouter] = openRouterClient
	backends[llm.ProviderGemini] = geminiClient
	return backends, nil
}

// wireRouter builds the route table. In cloud mode an optional YAML override
// stored under config/model_routes replaces individual default entries.
func wireRouter(ctx context.Context, cfg appconfig.Config, params *paramstore.Client, logger *slog.Logger) (*llm.Router, error) {
	if cfg.RoutingMode == llm.ModeLocal {
		router, err := llm.NewRouter(llm.ModeLocal, llm.LocalRoutes(cfg.LocalModel))
		if err != nil {
			return nil, fmt.Errorf("wire local router: %w", err)
		}
		return router, nil
	}

	routes := llm.DefaultRoutes()
	raw, ok, err := paramstore.Optional(ctx, params, params.Param("config/model_routes"))
	switch {
	case err != nil:
		logger.Warn("model route override unavailable, using defaults", "err", err)
	case ok:
		override, err := llm.ParseRoutes([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("wire router: %w", err)
		}
		routes = routes.Merge(override)
		logger.Info("model route override applied", "roles", len(override))
	}

	router, err := llm.NewRouter(llm.ModeCloud, routes)
	if err != nil {
		return nil, fmt.Errorf("wire router: %w", err)
	}
	return router, nil
}
