package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Veraticus/runway/internal/common"
	"github.com/Veraticus/runway/internal/config"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	var (
		cfgFile       string
		metricsServer *http.Server
	)

	rootCmd := &cobra.Command{
		Use:   "runway",
		Short: "🛫 Cash runway forecasting with what-if scenarios",
		Long: `runway keeps a weekly forecast of future cash events and lets you ask
"what if?": lose a client, hire someone, get paid late. Each scenario is
layered over the forecast, checked against your rules, and only written
back to your events when you commit it.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := initConfig(cfgFile); err != nil {
				return err
			}
			cfg, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			if err := setupLogging(cfg); err != nil {
				return fmt.Errorf("failed to setup logging: %w", err)
			}
			if cfg.MetricsAddr != "" {
				metricsServer = startMetrics(cfg.MetricsAddr)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if metricsServer == nil {
				return nil
			}
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return metricsServer.Shutdown(ctx)
		},
	}

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: $HOME/.config/runway/config.yaml)")
	flags.String("db", "", "database path (default: "+config.DefaultDatabasePath+")")
	flags.String("user", "", "user the events and scenarios belong to")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "console", "log format (console, json)")
	flags.String("as-of", "", "forecast as of this date (YYYY-MM-DD) instead of now")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address while the command runs")

	// Bind flags to viper
	_ = viper.BindPFlag("database.path", flags.Lookup("db"))
	_ = viper.BindPFlag("user.id", flags.Lookup("user"))
	_ = viper.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", flags.Lookup("log-format"))
	_ = viper.BindPFlag("forecast.as_of", flags.Lookup("as-of"))
	_ = viper.BindPFlag("metrics.addr", flags.Lookup("metrics-addr"))

	// Add commands
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(eventsCmd())
	rootCmd.AddCommand(cashCmd())
	rootCmd.AddCommand(forecastCmd())
	rootCmd.AddCommand(rulesCmd())
	rootCmd.AddCommand(scenarioCmd())
	rootCmd.AddCommand(checkpointCmd())
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

func main() {
	// Set up signal handling
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("Received interrupt signal, shutting down gracefully...")
		cancel()
	}()

	err := newRootCmd().ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig(cfgFile string) error {
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}

		// Search for config in standard locations
		viper.AddConfigPath(fmt.Sprintf("%s/.config/runway", home))
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	// RUNWAY_DATABASE_PATH overrides database.path, and so on.
	viper.SetEnvPrefix("RUNWAY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	return nil
}

func setupLogging(cfg *config.Config) error {
	level, err := common.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	return common.SetupLogger(level, cfg.LogFormat)
}

func startMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("Metrics listener stopped", "addr", addr, "error", err)
		}
	}()
	slog.Debug("Serving metrics", "addr", addr)
	return srv
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "runway %s\n", version)
		},
	}
}
