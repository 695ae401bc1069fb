package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"bunkr-rpc/client"
	"bunkr-rpc/config"
	"bunkr-rpc/logging"
)

var globalFlags struct {
	ConfigPath string
	URL        string
	Token      string
	Endpoints  []string
	LogLevel   string
	Timeout    time.Duration
}

var rootCmd = &cobra.Command{
	Use:           "bunkrctl",
	Short:         "Talk to a bunkr server over its duplex session",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&globalFlags.ConfigPath, "config", "c", "", "TOML config file")
	rootCmd.PersistentFlags().StringVar(&globalFlags.URL, "url", "", "server base URL serving layout.json")
	rootCmd.PersistentFlags().StringVar(&globalFlags.Token, "token", os.Getenv("BUNKR_ACCESS_TOKEN"), "access token (default $BUNKR_ACCESS_TOKEN)")
	rootCmd.PersistentFlags().StringSliceVar(&globalFlags.Endpoints, "endpoint", nil, "static socket endpoint, skips discovery")
	rootCmd.PersistentFlags().StringVar(&globalFlags.LogLevel, "log-level", "", "debug|info|warn|error")
	rootCmd.PersistentFlags().DurationVar(&globalFlags.Timeout, "timeout", 30*time.Second, "connect and call timeout, 0 waits forever")

	rootCmd.AddCommand(layoutCmd)
	rootCmd.AddCommand(watchCmd)
	for _, cmd := range verbCmds() {
		rootCmd.AddCommand(cmd)
	}
}

// loadConfig reads the configuration and validates it.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := readConfig(cmd)
	if err != nil {
		return config.Config{}, err
	}
	return cfg, cfg.Validate()
}

// readConfig reads --config if given and applies flag overrides on top.
func readConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if globalFlags.ConfigPath != "" {
		loaded, err := config.Load(globalFlags.ConfigPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("url") {
		cfg.URL = globalFlags.URL
	}
	if flags.Changed("token") || cfg.AccessToken == "" {
		cfg.AccessToken = globalFlags.Token
	}
	if flags.Changed("endpoint") {
		cfg.Endpoints = globalFlags.Endpoints
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = globalFlags.LogLevel
	}
	return cfg, nil
}

func newLogger(cfg config.Config) zerolog.Logger {
	return logging.New("bunkrctl", cfg.LogLevel, nil)
}

// commandContext bounds a command by --timeout.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	if globalFlags.Timeout <= 0 {
		return context.WithCancel(cmd.Context())
	}
	return context.WithTimeout(cmd.Context(), globalFlags.Timeout)
}

// connect builds a client from the command's configuration and waits for CONNECTED.
func connect(ctx context.Context, cmd *cobra.Command) (*client.Client, zerolog.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	log := newLogger(cfg)

	cli, err := client.NewFromConfig(cfg, client.WithLogger(log))
	if err != nil {
		return nil, log, err
	}
	if err := cli.Connect(ctx); err != nil {
		cli.Close()
		return nil, log, fmt.Errorf("connect: %w", err)
	}
	return cli, log, nil
}
