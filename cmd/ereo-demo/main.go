// Command ereo-demo serves a small demo API: a health query, an echo
// mutation, a ticker subscription, and one server function. It exists
// to exercise the framework end to end and as copyable wiring for
// real hosts.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ereojs/ereo/pkg/metrics"
	"github.com/ereojs/ereo/pkg/ratelimit"
	"github.com/ereojs/ereo/pkg/router"
	"github.com/ereojs/ereo/pkg/server"
	"github.com/ereojs/ereo/pkg/serverfn"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ereo-demo",
		Short:         "Run the ereo demo RPC server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context())
		},
	}

	flags := cmd.Flags()
	flags.String("addr", ":8080", "listen address")
	flags.String("endpoint", "/rpc", "RPC endpoint path")
	flags.Bool("metrics", false, "expose Prometheus metrics on /metrics")
	flags.Bool("debug", false, "log at debug level")
	flags.String("config", "", "config file (yaml)")

	for _, name := range []string{"addr", "endpoint", "metrics", "debug", "config"} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
	viper.SetEnvPrefix("EREO")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	return cmd
}

func run(ctx context.Context) error {
	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	}

	logCfg := zap.NewProductionConfig()
	if viper.GetBool("debug") {
		logCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, err := logCfg.Build()
	if err != nil {
		return err
	}
	defer logger.Sync()

	store := ratelimit.NewStore(ratelimit.StoreConfig{Logger: logger})

	var collector metrics.Collector = metrics.Nop{}
	var exposer metrics.Exposer
	if viper.GetBool("metrics") {
		prom := metrics.NewPrometheus("ereo_demo")
		collector = prom
		exposer = prom
	}

	rpc := router.New(demoRoutes(), router.Config{
		Logger:  logger,
		Metrics: collector,
	})

	registry := serverfn.NewRegistry(serverfn.RegistryConfig{
		Logger:  logger,
		Limiter: store,
	})
	registerGreet(registry)

	srv := server.New(server.Config{
		Addr:             viper.GetString("addr"),
		Endpoint:         viper.GetString("endpoint"),
		Logger:           logger,
		Router:           rpc,
		Registry:         registry,
		Metrics:          exposer,
		EnableWebSockets: true,
		Store:            store,
		ReadTimeout:      10 * time.Second,
		IdleTimeout:      60 * time.Second,
	})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
