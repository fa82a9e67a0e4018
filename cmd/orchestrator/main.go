// Command orchestrator runs the StockBuddy multi-agent orchestration
// service: an HTTP server exposing SSE-streamed conversation turns and a
// task-cancellation endpoint, backed by SQLite-persisted conversations and
// timeline items, an in-memory task/schedule store, and a registry of
// remote specialist agents reached over the JSON-RPC/A2A protocol.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/stockbuddy/orchestrator/config"
	"github.com/stockbuddy/orchestrator/conversation/sqlite"
	"github.com/stockbuddy/orchestrator/executor"
	itemsqlite "github.com/stockbuddy/orchestrator/itemstore/sqlite"
	"github.com/stockbuddy/orchestrator/llm"
	"github.com/stockbuddy/orchestrator/orchestrator"
	"github.com/stockbuddy/orchestrator/planner"
	"github.com/stockbuddy/orchestrator/remoteagent"
	"github.com/stockbuddy/orchestrator/remoteagent/registry"
	schedulertemporal "github.com/stockbuddy/orchestrator/scheduler/temporal"
	"github.com/stockbuddy/orchestrator/task/inmem"
	"github.com/stockbuddy/orchestrator/telemetry"
	"github.com/stockbuddy/orchestrator/transport"
	"github.com/stockbuddy/orchestrator/triager"
	temporalclient "go.temporal.io/sdk/client"
)

var manifestPathFlag string
var listenAddrFlag string

func main() {
	root := &cobra.Command{
		Use:     "orchestrator",
		Short:   "Run the StockBuddy multi-agent orchestration service",
		Version: "0.1.0",
		RunE:    run,
	}
	root.Flags().StringVar(&manifestPathFlag, "agents", "", "path to the remote agent manifest YAML (overrides AGENT_MANIFEST_PATH)")
	root.Flags().StringVar(&listenAddrFlag, "listen", "", "HTTP listen address (overrides LISTEN_ADDR)")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "orchestrator:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if manifestPathFlag != "" {
		cfg.AgentManifestPath = manifestPathFlag
	}
	if listenAddrFlag != "" {
		cfg.ListenAddr = listenAddrFlag
	}

	log := telemetry.NewClueLogger()

	convStore, err := sqlite.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open conversation store: %w", err)
	}
	defer convStore.Close()

	items, err := itemsqlite.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open item store: %w", err)
	}
	defer items.Close()

	taskStore := inmem.New()

	manifestRaw, err := os.ReadFile(cfg.AgentManifestPath)
	if err != nil {
		return fmt.Errorf("read agent manifest %s: %w", cfg.AgentManifestPath, err)
	}
	agents, err := registry.Load(manifestRaw)
	if err != nil {
		return fmt.Errorf("load agent manifest: %w", err)
	}

	model, clarifier, err := buildModel(cfg)
	if err != nil {
		return err
	}
	model.SetAgentCards(agentCards(agents))

	pl := planner.New(agents, model, clarifier)
	tr := triager.New(model)
	ex := executor.New(agents, taskStore, log)
	tracer := telemetry.NewOTELTracer()
	ex.SetConversations(convStore)
	ex.SetMetrics(telemetry.NewOTELMetrics())
	ex.SetTracer(tracer)
	ex.SetLocale(cfg.Timezone, cfg.Lang)

	if cfg.TemporalHostPort != "" {
		stop, err := attachTemporalScheduler(ctx, cfg, log, ex)
		if err != nil {
			return fmt.Errorf("attach temporal scheduler: %w", err)
		}
		defer stop()
	}

	orch := orchestrator.New(convStore, items, tr, pl, ex, log, cfg.ExecutionContextTTL)
	orch.SetTracer(tracer)
	orch.StartContextSweeper(ctx, time.Minute)

	mux := http.NewServeMux()
	mux.Handle("/turns", transport.NewTurnHandler(orch))
	mux.Handle("/tasks/", transport.NewServer(taskStore, items, log))

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "orchestrator: listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// attachTemporalScheduler connects to the Temporal frontend named by
// cfg.TemporalHostPort, starts a worker for the recurring-task workflow, and
// swaps it into ex as the scheduler.Engine recurring tasks re-invoke
// through, so a process restart resumes a recurring task's schedule instead
// of losing it. The returned func stops the worker and closes the client.
func attachTemporalScheduler(ctx context.Context, cfg config.Config, log telemetry.Logger, ex *executor.Executor) (func(), error) {
	c, err := temporalclient.Dial(temporalclient.Options{HostPort: cfg.TemporalHostPort})
	if err != nil {
		return nil, fmt.Errorf("dial temporal at %s: %w", cfg.TemporalHostPort, err)
	}

	engine := schedulertemporal.New(c, cfg.TemporalTaskQueue)
	if err := engine.Start(); err != nil {
		c.Close()
		return nil, fmt.Errorf("start temporal worker: %w", err)
	}
	ex.SetEngine(engine)

	log.Info(ctx, "orchestrator: recurring tasks scheduled via temporal", "host_port", cfg.TemporalHostPort)
	return func() {
		engine.Stop()
		c.Close()
	}, nil
}

// buildModel wires the Anthropic-backed model shared by the Triager and
// Planner.
func buildModel(cfg config.Config) (*llm.Model, planner.Clarifier, error) {
	if cfg.AnthropicAPIKey == "" {
		return nil, nil, errors.New("ANTHROPIC_API_KEY is required")
	}
	model, err := llm.NewFromAPIKey(cfg.AnthropicAPIKey, cfg.AnthropicModel, cfg.AnthropicMaxTokens)
	if err != nil {
		return nil, nil, fmt.Errorf("build anthropic model: %w", err)
	}
	return model, nopClarifier{}, nil
}

// agentCards collects every registered agent's capability card for the
// triage/planning prompts.
func agentCards(reg remoteagent.Registry) []remoteagent.AgentCard {
	var cards []remoteagent.AgentCard
	for _, name := range reg.Names() {
		if _, card, err := reg.Lookup(name); err == nil {
			cards = append(cards, card)
		}
	}
	return cards
}

// nopClarifier declines every clarification request; the scheduling-
// confirmation gate and inadequate-plan guidance messages cover the
// Human-in-the-Loop cases this service actually needs today.
type nopClarifier struct{}

func (nopClarifier) RequestClarification(_ context.Context, prompt string) (string, error) {
	return "", fmt.Errorf("clarification not supported: %s", prompt)
}
