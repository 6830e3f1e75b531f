// Package main is the composition root that wires the runtime's
// packages (store, tools, guardrails, tracing, the LLM provider, the
// agent loop, the agent card registry, and the handoff engine) into
// one process.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lumenforge/agentrt/internal/agent"
	"github.com/lumenforge/agentrt/internal/agent/providers"
	"github.com/lumenforge/agentrt/internal/agentcard"
	"github.com/lumenforge/agentrt/internal/config"
	"github.com/lumenforge/agentrt/internal/guardrail"
	"github.com/lumenforge/agentrt/internal/handoff"
	"github.com/lumenforge/agentrt/internal/store"
	"github.com/lumenforge/agentrt/internal/tools"
	"github.com/lumenforge/agentrt/internal/trace"
	"github.com/lumenforge/agentrt/pkg/models"
)

var (
	version    = "dev"
	configPath string
)

func main() {
	root := &cobra.Command{
		Use:   "agentrt",
		Short: "Agent runtime: ReAct loop, tool dispatch, and multi-agent handoff",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "agentrt.yaml", "path to the runtime's YAML config")
	root.AddCommand(newServeCommand(), newStatusCommand())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the resolved configuration and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			fmt.Printf("agentrt %s\n", version)
			fmt.Printf("agent_id: %s\n", cfg.Server.AgentID)
			fmt.Printf("store: %s\n", cfg.Store.Driver)
			fmt.Printf("llm provider: %s\n", cfg.LLM.Provider)
			return nil
		},
	}
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Wire the runtime and block until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			rt, err := buildRuntime(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			rt.log.Info("runtime ready", "agent_id", cfg.Server.AgentID, "llm_provider", cfg.LLM.Provider)
			<-cmd.Context().Done()
			rt.log.Info("shutting down")
			return nil
		},
	}
}

func loadConfig() (config.Config, error) {
	if _, err := os.Stat(configPath); err != nil {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

// runtime holds every composed subsystem for one process.
type runtime struct {
	log           *slog.Logger
	store         store.Store
	registry      *tools.Registry
	tracer        *trace.Tracer
	engine        *handoff.Engine
	cards         *agentcard.Registry
	loop          *agent.Loop
	shutdownTrace func(context.Context) error
}

func (r *runtime) Close() {
	if closer, ok := r.store.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			r.log.Warn("close store", "error", err)
		}
	}
	if r.shutdownTrace != nil {
		if err := r.shutdownTrace(context.Background()); err != nil {
			r.log.Warn("shutdown otlp exporter", "error", err)
		}
	}
}

// buildRuntime assembles one runtime from cfg: a persistence backend,
// an empty tool registry ready for RegisterRaw calls, a console tracer
// (also exporting over OTLP when cfg.Tracing.Endpoint is set), an LLM
// provider matching cfg.LLM.Provider, an agent loop over that
// provider, and a handoff engine sharing the same agent card registry.
func buildRuntime(ctx context.Context, cfg config.Config) (*runtime, error) {
	log := newLogger(cfg.Logging)

	var st store.Store
	switch cfg.Store.Driver {
	case "sqlite":
		sqlStore, err := store.OpenSQLStore(cfg.Store.Path, store.SQLStoreOptions{})
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		st = sqlStore
	default:
		st = store.NewMemoryStore()
	}

	registry := tools.NewRegistry(log)
	exporter := trace.Exporter(trace.ConsoleExporter{})
	var shutdownTrace func(context.Context) error
	if cfg.Tracing.Endpoint != "" {
		otlp, err := trace.NewOTLPExporter(ctx, cfg.Server.AgentID, cfg.Tracing.Endpoint, cfg.Tracing.Insecure)
		if err != nil {
			return nil, fmt.Errorf("otlp exporter: %w", err)
		}
		exporter = trace.MultiExporter{trace.ConsoleExporter{}, otlp}
		shutdownTrace = otlp.Shutdown
	}
	tracer := trace.New(exporter)

	llmFunc, err := buildLLMFunc(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}

	loop := agent.New(llmFunc, registry, agent.LoopConfig{
		Guardrails: guardrail.Engine{},
		Tracer:     tracer,
		AgentID:    cfg.Server.AgentID,
	})

	cards := agentcard.NewRegistry()
	if err := cards.Register(&agentcard.Runtime{
		Card: models.AgentCard{
			AgentID:       cfg.Server.AgentID,
			Visibility:    models.VisibilityPublic,
			HandoffPolicy: models.HandoffAuto,
		},
		Run: func(ctx context.Context, userInput string, history []models.Message, extraContext string) (models.AgentResult, error) {
			return loop.Run(ctx, agent.RunInput{UserInput: userInput, History: history, ExtraContext: extraContext})
		},
	}); err != nil {
		return nil, fmt.Errorf("register agent card: %w", err)
	}

	var signingKey []byte
	if cfg.Handoff.SigningKey != "" {
		signingKey = []byte(cfg.Handoff.SigningKey)
	}
	engine := handoff.New(handoff.Config{
		Registry:           cards,
		Tracer:             tracer,
		IdempotencyTTL:     cfg.Handoff.IdempotencyTTL,
		MaxHopCount:        cfg.Handoff.MaxHopCount,
		CrossOwnerDisabled: cfg.Handoff.CrossOwnerDisabled,
		SigningKey:         signingKey,
	})

	return &runtime{
		log: log, store: st, registry: registry, tracer: tracer, engine: engine, cards: cards, loop: loop,
		shutdownTrace: shutdownTrace,
	}, nil
}

func buildLLMFunc(ctx context.Context, cfg config.LLMConfig) (agent.LLMFunc, error) {
	switch cfg.Provider {
	case "openai":
		p, err := providers.NewOpenAIProvider(providers.OpenAIConfig{
			APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, DefaultModel: cfg.DefaultModel,
			MaxTokens: cfg.MaxTokens, MaxRetries: cfg.MaxRetries, RetryDelay: cfg.RetryDelay,
		})
		if err != nil {
			return nil, fmt.Errorf("openai provider: %w", err)
		}
		return p.Complete, nil
	case "bedrock":
		p, err := providers.NewBedrockProvider(ctx, providers.BedrockConfig{
			Region: cfg.Region, DefaultModel: cfg.DefaultModel,
			MaxTokens: cfg.MaxTokens, MaxRetries: cfg.MaxRetries, RetryDelay: cfg.RetryDelay,
		})
		if err != nil {
			return nil, fmt.Errorf("bedrock provider: %w", err)
		}
		return p.Complete, nil
	default:
		p, err := providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, DefaultModel: cfg.DefaultModel,
			MaxTokens: cfg.MaxTokens, MaxRetries: cfg.MaxRetries, RetryDelay: cfg.RetryDelay,
		})
		if err != nil {
			return nil, fmt.Errorf("anthropic provider: %w", err)
		}
		return p.Complete, nil
	}
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler).With("component", "cmd.agentrt")
}
