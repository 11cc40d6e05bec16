package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/paynet/cnab/pkg/application"
)

var (
	// Version information (set by ldflags)
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// Global flags
	configFile string
	logLevel   string
	baseDir    string

	// Application context
	app *application.Ingest
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "cnab",
		Short:   "CNAB ingest and settlement tool",
		Long:    `A unified CLI for ingesting CNAB 240/400 bank files, validating and persisting their contents, and settling the extracted boletos.`,
		Version: fmt.Sprintf("%s (built %s, commit %s)", Version, BuildTime, GitCommit),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initializeApp()
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is ./cnab.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&baseDir, "base-dir", "", "base directory for ingest data")

	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(NewProcessCmd())
	rootCmd.AddCommand(NewDetectCmd())
	rootCmd.AddCommand(NewValidateCmd())
	rootCmd.AddCommand(NewInspectCmd())
	rootCmd.AddCommand(NewBoletoCmd())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func initConfig() {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("cnab")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("CNAB")
	viper.AutomaticEnv()

	_ = viper.ReadInConfig()
}

func initializeApp() error {
	if baseDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		baseDir = filepath.Join(homeDir, ".cnab")
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return fmt.Errorf("failed to create base directory: %w", err)
	}

	logger, err := newLogger(logLevel)
	if err != nil {
		return err
	}

	app = application.New()
	app.Setup(baseDir, logger, viper.GetViper())
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg.Level = lvl
	return cfg.Build()
}
