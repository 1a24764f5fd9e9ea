package cmd

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
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-linker/internal/app"
	"github.com/JakeFAU/catalog-linker/internal/config"
	"github.com/JakeFAU/catalog-linker/internal/linker"
	"github.com/JakeFAU/catalog-linker/internal/logging"
)

// Runtime is the application surface the commands use. It allows a fake
// runtime to be injected during tests.
type Runtime interface {
	Logger() *zap.Logger
	Handler() http.Handler
	Execute(ctx context.Context, strategy linker.Strategy, startPage int) (string, error)
	Close(ctx context.Context) error
}

// newRuntime is the application factory, replaced in tests.
var newRuntime = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (Runtime, error) {
	return app.NewApp(ctx, cfg, logger)
}

type runtimeKeyType struct{}

type configKeyType struct{}

const shutdownTimeout = 15 * time.Second

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "linker",
		Short: "Links remote streaming catalog pages to canonical catalog entries.",
		Long: `linker reconciles the AnimeVSub catalog against the local canonical
catalog. It can sweep the remote library index, search the remote site for
each local entry, or serve an HTTP API that triggers either run.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			rt, err := newRuntime(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			ctx := context.WithValue(cmd.Context(), runtimeKeyType{}, rt)
			ctx = context.WithValue(ctx, configKeyType{}, cfg)
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return nil
			}
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := rt.Close(ctx); err != nil {
				rt.Logger().Warn("shutdown incomplete", zap.Error(err))
			}
			_ = rt.Logger().Sync()
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (environment variables use the LINKER_ prefix)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSweepCmd())
	cmd.AddCommand(newSearchCmd())
	return cmd
}

func resolveRuntime(ctx context.Context) (Runtime, error) {
	rt, ok := ctx.Value(runtimeKeyType{}).(Runtime)
	if !ok || rt == nil {
		return nil, errors.New("application services not initialized")
	}
	return rt, nil
}

func resolveConfig(ctx context.Context) config.Config {
	cfg, _ := ctx.Value(configKeyType{}).(config.Config)
	return cfg
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the running command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "linker: %v\n", err)
		os.Exit(1)
	}
}
