package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jrsteele09/go-card-console/credentials/filestore"
	"github.com/jrsteele09/go-card-console/internal/config"
	"github.com/jrsteele09/go-card-console/server"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	apiBaseURL     string
	credentialsDir string
	logLevel       string

	cfg config.Static
)

var rootCmd = &cobra.Command{
	Use:   "card-console",
	Short: "Card management console",
	Long: `card-console signs operators in to the card management backend, keeps the
session alive between runs and serves the console views over HTTP.

Configuration comes from the environment (API_BASE_URL, CREDENTIALS_DIR,
MAX_RETRIES, DEFAULT_SESSION_TIMEOUT, ...) and may be overridden with flags.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Defaults()
		if apiBaseURL != "" {
			cfg.APIBaseURL = apiBaseURL
		}
		if credentialsDir != "" {
			cfg.CredentialsDir = credentialsDir
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		setupLogging(cfg)
		return nil
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiBaseURL, "api", "", "Identity provider / API base URL (overrides API_BASE_URL)")
	rootCmd.PersistentFlags().StringVar(&credentialsDir, "credentials-dir", "", "Where the session is persisted (overrides CREDENTIALS_DIR)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "trace, debug, info, warn or error (overrides LOG_LEVEL)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(statusCmd)
}

func setupLogging(c config.Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(c.GetLogLevel()))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

// openConsole wires the auth core over the on-disk credential store.
func openConsole(c config.Config, options ...server.ConsoleOption) (*server.Console, error) {
	store, err := filestore.New(c.GetCredentialsDir())
	if err != nil {
		return nil, errors.Wrap(err, "failed to open credential store")
	}
	return server.NewConsole(c, store, options...)
}
