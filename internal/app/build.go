package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/ent0n29/cheapchat/internal/chat"
	"github.com/ent0n29/cheapchat/internal/config"
	"github.com/ent0n29/cheapchat/internal/documents"
	"github.com/ent0n29/cheapchat/internal/extract"
	"github.com/ent0n29/cheapchat/internal/httpapi"
	"github.com/ent0n29/cheapchat/internal/llm"
	"github.com/ent0n29/cheapchat/internal/memory"
	"github.com/ent0n29/cheapchat/internal/observability"
	"github.com/ent0n29/cheapchat/internal/store"
	"github.com/ent0n29/cheapchat/internal/tempfiles"
	"github.com/ent0n29/cheapchat/internal/websearch"
)

type BuildResult struct {
	Config    config.Config
	API       *httpapi.Server
	Chat      *chat.Service
	Memory    *memory.Manager
	Documents *documents.Service
	Metrics   *observability.Metrics
	StoreMode string

	// Cleanup should be called on shutdown to release external resources (DB, temp files, fetch cache).
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	st, err := store.NewStore(ctx, store.Options{
		Mode:        cfg.StoreMode,
		SQLitePath:  cfg.SQLitePath,
		DatabaseURL: cfg.DatabaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("store init failed: %w", err)
	}

	mem := memory.NewManager(st, cfg.ProfileMaxChars)
	mem.SetHook(metrics.ObserveMemoryEvent)

	registry := tempfiles.NewRegistry(cfg.TempTTL)
	registry.SetObserver(metrics.ObserveTempFile)

	docs, err := documents.NewService(
		st,
		registry,
		extract.New(cfg.PDFToTextPath, cfg.PDFToPPMPath, cfg.TesseractPath),
		cfg.TempDir,
		cfg.DocumentMaxChars,
	)
	if err != nil {
		registry.Close()
		_ = st.Close()
		return nil, fmt.Errorf("documents init failed: %w", err)
	}

	llmCfg := llm.Config{
		Provider:         cfg.LLMProvider,
		OpenAIKey:        cfg.OpenAIAPIKey,
		OpenAIBaseURL:    cfg.OpenAIBaseURL,
		AnthropicKey:     cfg.AnthropicAPIKey,
		AnthropicBaseURL: cfg.AnthropicBaseURL,
		STTModel:         cfg.ModelSTT,
		TTSModel:         cfg.ModelTTS,
		ImageModel:       cfg.ModelImage,
	}
	chatClient, err := llm.NewChatClient(llmCfg)
	if err != nil {
		registry.Close()
		_ = st.Close()
		return nil, fmt.Errorf("llm init failed: %w", err)
	}

	previewer, err := websearch.NewPreviewer(websearch.PreviewConfig{
		Timeout:  cfg.PreviewTimeout,
		MaxChars: cfg.PreviewMaxChars,
		CacheTTL: cfg.PreviewCacheTTL,
	})
	if err != nil {
		registry.Close()
		_ = st.Close()
		return nil, fmt.Errorf("preview cache init failed: %w", err)
	}

	svc := chat.NewService(chat.Config{
		DefaultModel:  cfg.ModelText,
		Models:        cfg.ModelChoices,
		HistoryLimit:  cfg.HistoryLimit,
		TitleMaxChars: cfg.TitleMaxChars,
		SearchResults: cfg.SearchResults,
		Voices:        cfg.TTSVoices,
		DefaultVoice:  cfg.TTSDefaultVoice,
	}, chat.Deps{
		Store:   st,
		Memory:  mem,
		Chat:    chatClient,
		Media:   llm.NewMediaClient(llmCfg),
		Search:  websearch.New(cfg.SearchProvider),
		Preview: previewer,
		Docs:    docs,
		Tokens:  llm.NewTokenCounter(""),
		Metrics: metrics,
	})

	mode := storeModeName(st)
	api := httpapi.New(cfg, httpapi.Deps{
		Chat:      svc,
		Memory:    mem,
		Documents: docs,
		Metrics:   metrics,
		StoreMode: mode,
	})

	cleanup := func() error {
		var errs []string
		registry.Close()
		previewer.Close()
		if err := st.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:    cfg,
		API:       api,
		Chat:      svc,
		Memory:    mem,
		Documents: docs,
		Metrics:   metrics,
		StoreMode: mode,
		Cleanup:   cleanup,
	}, nil
}

func storeModeName(st store.Store) string {
	switch st.(type) {
	case *store.PostgresStore:
		return "postgres"
	case *store.SQLiteStore:
		return "sqlite"
	default:
		return "memory"
	}
}
