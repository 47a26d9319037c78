package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/sourcecheck/internal/logging"
	"github.com/ppiankov/sourcecheck/internal/model"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// version is set at build time
var version = "v0.1.0"

var (
	cfgFile  string
	verbose  bool
	logLevel string
	logJSON  bool
)

// envKeys are the config keys that can be set through SOURCECHECK_* variables
var envKeys = []string{
	"llm.provider",
	"llm.model",
	"llm.api_key",
	"llm.base_url",
	"session.backend",
	"session.redis_addr",
	"session.tab_id",
	"server.addr",
	"output.log_level",
	"cache.disk_dir",
}

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "sourcecheck",
	Short: "sourcecheck - check a selected claim against its cited sources",
	Long: `sourcecheck takes a passage of text and the candidate source URLs around it,
fetches the sources, rewrites the passage so it stands on its own, and asks a
language model whether the sources support it.

The verdict is one of supported, unsupported, partial or inconclusive, with
quotes from the fetched sources as evidence. A claim with no fetchable source
is always inconclusive.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version number of sourcecheck.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("sourcecheck %s\n", version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.sourcecheck/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "log as JSON")

	// Bind flags to viper
	_ = viper.BindPFlag("output.verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("output.log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("output.log_json", rootCmd.PersistentFlags().Lookup("log-json"))

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		// Search for config in home directory
		viper.AddConfigPath(filepath.Join(home, ".sourcecheck"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Read in environment variables that match SOURCECHECK_*
	viper.SetEnvPrefix("SOURCECHECK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		_ = viper.BindEnv(key)
	}
	viper.AutomaticEnv()

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig overlays the config file, environment and flags onto the defaults
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if verbose && cfg.Output.LogLevel == model.DefaultConfig().Output.LogLevel {
		cfg.Output.LogLevel = "debug"
	}
	return cfg, nil
}

// newLogger builds the logger for cfg
func newLogger(cfg *model.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.Output.LogLevel, cfg.Output.LogJSON)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return logger, nil
}

// setup loads config and the logger in one step
func setup() (*model.Config, *zap.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
