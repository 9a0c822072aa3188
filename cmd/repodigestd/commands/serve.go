package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/roasbeef/repodigest/internal/config"
	"github.com/roasbeef/repodigest/internal/db"
	"github.com/roasbeef/repodigest/internal/github"
	"github.com/roasbeef/repodigest/internal/mcp"
	"github.com/roasbeef/repodigest/internal/orchestrator"
	"github.com/roasbeef/repodigest/internal/store"
	"github.com/roasbeef/repodigest/internal/summarizer"
	"github.com/roasbeef/repodigest/internal/web"
	"github.com/spf13/cobra"
)

var (
	// listenAddr overrides the HTTP listen address from the config.
	listenAddr string

	// mcpStdio additionally serves the MCP tools over stdio.
	mcpStdio bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the report daemon",
	Long: `Starts the HTTP API and, optionally, an MCP server on stdio. The
SQLite cache is opened (and migrated) on startup.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(
		&listenAddr, "listen", "",
		"HTTP listen address (overrides config)",
	)
	serveCmd.Flags().BoolVar(
		&mcpStdio, "mcp", false,
		"Also serve MCP tools over stdio",
	)
}

// loadConfig reads the YAML config honoring the --config and --db flags.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFrom(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if dbPath != "" {
		cfg.DBPath = dbPath
	}

	return cfg, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("unable to load config: %w", err)
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}

	// When MCP runs on stdio, stdout belongs to the protocol, so logs go
	// to stderr either way.
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	database, err := db.Open(cfg.DBPath, logger)
	if err != nil {
		return fmt.Errorf("unable to open database: %w", err)
	}
	defer database.Close()

	sectionStore := store.NewSQLStore(
		database, store.ExpiryPolicy{
			SummaryTTL: cfg.Report.SummaryTTL,
		}, logger,
	)

	fetcher, err := github.NewFetcher(
		cfg.GitHub.Token, logger,
		github.WithMaxItems(cfg.GitHub.MaxItems),
	)
	if err != nil {
		return fmt.Errorf("unable to create github client: %w", err)
	}

	model := summarizer.NewOpenAISummarizer(summarizer.Config{
		APIKey:         cfg.OpenAI.APIKey,
		Model:          cfg.OpenAI.Model,
		MaxConcurrent:  summarizer.DefaultMaxConcurrent,
		RequestTimeout: summarizer.DefaultRequestTimeout,
	}, logger)

	orch := orchestrator.New(orchestrator.Config{
		GenerationTimeout: cfg.Report.GenerationTimeout,
		MaxPeople:         cfg.Report.MaxPeople,
	}, sectionStore, fetcher, model, logger)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	webServer := web.NewServer(
		&web.Config{Addr: cfg.ListenAddr}, orch, sectionStore, logger,
	)

	webErr := make(chan error, 1)
	go func() {
		logger.Info("starting web server", "addr", cfg.ListenAddr)
		if err := webServer.Start(); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {

			webErr <- err
		}
	}()
	go func() {
		<-ctx.Done()
		webServer.Shutdown(context.Background())
	}()

	if mcpStdio {
		logger.Info("starting mcp server on stdio")
		mcpServer := mcp.NewServer(orch)
		if err := mcpServer.Run(ctx, &sdkmcp.StdioTransport{}); err != nil {
			return fmt.Errorf("mcp server: %w", err)
		}
		return nil
	}

	select {
	case err := <-webErr:
		return fmt.Errorf("web server: %w", err)
	case <-ctx.Done():
		return nil
	}
}
