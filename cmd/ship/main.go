package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"ship/internal/archive"
	"ship/internal/config"
	"ship/internal/llm"
	"ship/internal/llm/router"
	httpserver "ship/internal/server/http"
	"ship/internal/session"
	"ship/internal/ship/app"
	"ship/internal/utils"
)

var version = "dev"

var (
	green = color.New(color.FgGreen).SprintFunc()
	cyan  = color.New(color.FgCyan).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
	bold  = color.New(color.Bold).SprintFunc()
)

type serveFlags struct {
	configPath string
	host       string
	port       int
	debug      bool
}

func main() {
	root := &cobra.Command{
		Use:           "ship",
		Short:         "SHIP orchestration server: design, spec, plan and generate products",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCommand(), newVersionCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, red("Error: ")+err.Error())
		os.Exit(1)
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the ship version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ship %s\n", version)
		},
	}
}

func newServeCommand() *cobra.Command {
	flags := serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestration HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), flags, cmd.Flags().Changed("host"), cmd.Flags().Changed("port"))
		},
	}
	cmd.Flags().StringVarP(&flags.configPath, "config", "c", "", "path to config file (default ~/.ship/config.json)")
	cmd.Flags().StringVar(&flags.host, "host", "", "listen host")
	cmd.Flags().IntVar(&flags.port, "port", 0, "listen port")
	cmd.Flags().BoolVar(&flags.debug, "debug", false, "verbose request logging")
	return cmd
}

func runServe(ctx context.Context, flags serveFlags, hostSet, portSet bool) error {
	opts := []config.Option{}
	if flags.configPath != "" {
		opts = append(opts, config.WithConfigPath(flags.configPath))
	}
	opts = append(opts, config.WithOverride(func(cfg *config.RuntimeConfig) {
		if hostSet {
			cfg.Host = flags.host
		}
		if portSet {
			cfg.Port = flags.port
		}
	}))

	cfg, err := config.Load(opts...)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := utils.NewComponentLogger("Main")

	store, err := session.NewFileStore(cfg.SessionDir)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}

	factory := llm.NewFactory(llm.Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Timeout: cfg.RequestTimeout,
	})
	modelRouter := router.NewSingleModel(cfg.LLMProvider, cfg.LLMModel, cfg.LLMSmallModel)

	events := app.NewEventBroadcaster(cfg.EventReplaySize)
	runner := app.NewAgentRunner(factory, modelRouter, events)
	orchestrator := app.NewOrchestrator(app.OrchestratorConfig{
		Store:        store,
		Phases:       app.NewPhaseRunner(store, factory, modelRouter, events),
		Scheduler:    app.NewAgentScheduler(runner, app.NewIntegrationReviewer(), events, cfg.MaxParallelAgents),
		Events:       events,
		Webhooks:     app.NewWebhookNotifier(cfg.Webhooks),
		MaxFixPasses: cfg.MaxFixPasses,
	})

	server := httpserver.NewServer(orchestrator, archive.NewZipPackager(), httpserver.Config{
		Host:           cfg.Host,
		Port:           cfg.Port,
		AllowedOrigins: cfg.AllowedOrigins,
		Debug:          flags.debug,
		ReadTimeout:    30 * time.Second,
	})

	fmt.Printf("%s %s\n", bold("ship"), version)
	fmt.Printf("%s http://%s:%d\n", green("Listening on"), cfg.Host, cfg.Port)
	fmt.Printf("%s %s/%s (small: %s)\n", cyan("Models:"), cfg.LLMProvider, cfg.LLMModel, cfg.LLMSmallModel)
	fmt.Printf("%s %s\n", cyan("Sessions:"), cfg.SessionDir)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("Received %s, shutting down", sig)
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	fmt.Println(green("Server stopped cleanly"))
	return nil
}
