package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/s0up4200/alclient/assemblyline"
	"github.com/s0up4200/alclient/config"
	"github.com/s0up4200/alclient/filter"
	"github.com/s0up4200/alclient/logging"
)

var (
	cfgFile  string
	logLevel string
	cfg      *config.Config
	logger   = zerolog.Nop()
	conn     *assemblyline.Connection
	filters  *filter.Manager
	closeLog = func() error { return nil }
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "alclient",
	Short: "Command line client for the Assemblyline v4 API",
	Long: `alclient talks to an Assemblyline v4 server: it logs in with a password,
API key or OAuth token, keeps the session alive and lets you call any API
endpoint, filter list responses and project payloads with jq.`,
	SilenceUsage:       true,
	PersistentPostRunE: shutdownApp,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// Interrupts cancel in-flight requests, including retry backoff.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
}

// initializeApp loads the configuration, sets up logging and connects to
// the server. Commands that talk to Assemblyline use it as PreRunE. cobra
// skips PersistentPostRunE when PreRunE fails, so a failed setup releases
// what it acquired itself.
func initializeApp(cmd *cobra.Command, args []string) error {
	if err := setupApp(cmd); err != nil {
		if cerr := shutdownApp(cmd, args); cerr != nil {
			logger.Warn().Err(cerr).Msg("Failed to close log file")
		}
		return err
	}
	return nil
}

func setupApp(cmd *cobra.Command) error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = logLevel
	}

	l, closeFn, err := logging.New(cfg.Logging, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	logger, closeLog = l, closeFn

	filters = filter.NewManager()
	if err := filters.RegisterFilters(cfg.Filters); err != nil {
		return fmt.Errorf("invalid filter in config: %w", err)
	}

	cred, err := credentialFromConfig(cfg.Auth)
	if err != nil {
		return err
	}

	opts, err := connectionOptions(cfg.Server)
	if err != nil {
		return err
	}

	conn, err = assemblyline.Connect(cmd.Context(), cfg.Server.URL, cred, logger, opts...)
	if err != nil {
		return err
	}

	return nil
}

// shutdownApp releases whatever initializeApp acquired. It is safe to call
// more than once.
func shutdownApp(cmd *cobra.Command, args []string) error {
	if conn != nil {
		conn.Close()
		conn = nil
	}
	if filters != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := filters.Close(ctx); err != nil {
			logger.Warn().Err(err).Msg("Filter workers did not stop in time")
		}
		filters = nil
	}

	closeFn := closeLog
	closeLog = func() error { return nil }
	return closeFn()
}
