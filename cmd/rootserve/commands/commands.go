package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rootserve/core/internal/adapters/filesystem"
	httpadapter "github.com/rootserve/core/internal/adapters/http"
	"github.com/rootserve/core/internal/adapters/markdown"
	"github.com/rootserve/core/internal/application/services"
	"github.com/rootserve/core/internal/domain/entities"
	"github.com/rootserve/core/internal/domain/registry"
	"github.com/rootserve/core/internal/infrastructure/config"
	"github.com/rootserve/core/internal/infrastructure/logger"
	"github.com/rootserve/core/internal/infrastructure/metrics"
	"github.com/rootserve/core/internal/infrastructure/server"
	"github.com/rootserve/core/internal/ports"
)

const defaultConfigFile = "config.json"

// Set at build time with -ldflags "-X .../commands.Version=...".
var (
	Version   = "dev"
	GitCommit = "development"
)

// AddConfigFlag registers the persistent --config flag on the root command
func AddConfigFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().StringP("config", "c", defaultConfigFile, "Path to the JSON configuration file")
}

// configPath returns the --config value. A missing default file falls back
// to defaults and environment variables; an explicit one must exist.
func configPath(cmd *cobra.Command) (string, error) {
	flag := cmd.Flag("config")
	if flag == nil {
		return "", nil
	}
	path := flag.Value.String()
	if flag.Changed {
		return path, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	return path, nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := configPath(cmd)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// newContentService builds the registries once and hands them to the
// content pipeline; nothing mutates them afterwards.
func newContentService(cfg *config.Config, fs ports.FileSystem, appLogger *logger.Logger) *services.ContentService {
	return services.NewContentService(services.ContentOptions{
		RootDirectory:  cfg.RootDirectory,
		Redirects:      entities.NewRedirectTable(cfg.Redirects),
		MIMETypes:      registry.NewMIMETypes(cfg.MIMETypes),
		Postprocessors: registry.NewPostprocessors(markdown.Postprocessors()),
	}, fs, appLogger.WithComponent("content"))
}

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the content server",
		Long:  "Serve the root directory on the configured address, plus the admin endpoints when metrics are enabled",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			appLogger, err := logger.New(cfg.Logger)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer appLogger.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runServer(ctx, cfg, appLogger)
		},
	}
}

func runServer(ctx context.Context, cfg *config.Config, appLogger *logger.Logger) error {
	m := metrics.New()
	content := newContentService(cfg, filesystem.NewOS(), appLogger)
	listener := server.NewListener(content, cfg.Server, cfg.Security, m, appLogger)

	errCh := make(chan error, 2)

	var admin *server.AdminServer
	if cfg.Metrics.Enabled {
		admin = server.NewAdmin(cfg, m, listener, appLogger)
		go func() {
			if err := admin.Start(cfg.Metrics.Address()); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("admin server: %w", err)
			}
		}()
	}

	appLogger.Infow("Starting rootserve",
		"address", cfg.Server.Address(),
		"root", cfg.RootDirectory,
		"redirects", len(cfg.Redirects),
		"environment", cfg.App.Environment,
	)

	go func() {
		if err := listener.ListenAndServe(cfg.Server.Address()); err != nil && !errors.Is(err, server.ErrListenerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		appLogger.Info("Shutdown signal received")
	case runErr = <-errCh:
		appLogger.Errorw("Server failed", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := listener.Shutdown(shutdownCtx); err != nil {
		appLogger.Warnw("Listener shutdown incomplete", "error", err)
	}
	if admin != nil {
		if err := admin.Shutdown(shutdownCtx); err != nil {
			appLogger.Warnw("Admin shutdown incomplete", "error", err)
		}
	}

	appLogger.Info("Server stopped")
	return runErr
}

// NewResolveCommand creates the resolve command
func NewResolveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <request-path>",
		Short: "Show how a request path would be answered",
		Long:  "Run a request path through redirects and the sandboxed root without starting the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			content := newContentService(cfg, filesystem.NewOS(), logger.NewNop())
			out := content.Resolve(cmd.Context(), entities.Request{Method: "GET", Path: args[0], Version: httpadapter.DefaultVersion})

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "status:  %d %s\n", out.Status, httpadapter.StatusText(out.Status))
			if out.Path != "" {
				fmt.Fprintf(w, "path:    %s\n", out.Path)
				fmt.Fprintf(w, "kind:    %s\n", out.Kind)
			}
			for _, h := range out.Headers {
				fmt.Fprintf(w, "header:  %s: %s\n", h.Name, h.Value)
			}
			fmt.Fprintf(w, "body:    %d bytes\n", len(out.Body))
			if out.Err != nil {
				fmt.Fprintf(w, "error:   %v\n", out.Err)
			}
			return nil
		},
	}
}

// NewRenderCommand creates the render command
func NewRenderCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "render <file>",
		Short: "Print a file as it would be served",
		Long:  "Run a file through the postprocessor for its extension and write the result to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := filesystem.NewOS().ReadFile(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}

			postprocessors := registry.NewPostprocessors(markdown.Postprocessors())
			out, _ := postprocessors.Apply(registry.Extension(args[0]), data)

			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print rootserve version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "rootserve %s\n", Version)
			fmt.Fprintf(cmd.OutOrStdout(), "Git Commit: %s\n", GitCommit)
		},
	}
}
