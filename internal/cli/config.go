package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/sourcecheck/internal/model"
	"github.com/ppiankov/sourcecheck/internal/settings"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var (
	settingsProvider   string
	settingsModel      string
	settingsMaxSources int
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage sourcecheck configuration",
	Long: `Manage sourcecheck configuration files and settings.

Configuration hierarchy (highest to lowest priority):
1. CLI flags
2. Saved settings (~/.sourcecheck/settings.yaml)
3. Environment variables (SOURCECHECK_*)
4. Config file (~/.sourcecheck/config.yaml)
5. Defaults`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current configuration including all sources (defaults, config file, env vars, flags).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		configFile := viper.ConfigFileUsed()
		if configFile != "" {
			fmt.Fprintf(os.Stderr, "Configuration file: %s\n\n", configFile)
		} else {
			fmt.Fprintf(os.Stderr, "No configuration file found (using defaults)\n\n")
		}

		// Never echo credentials
		if cfg.LLM.APIKey != "" {
			cfg.LLM.APIKey = maskKey(cfg.LLM.APIKey)
		}

		fmt.Println("═══════════════════════════════════════════════════════════")
		fmt.Println("  Current Configuration")
		fmt.Println("═══════════════════════════════════════════════════════════")
		fmt.Println()

		yamlData, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		fmt.Println(string(yamlData))

		store, err := openSettings()
		if err != nil {
			return err
		}
		saved, err := store.Load()
		if err != nil {
			return fmt.Errorf("load settings: %w", err)
		}

		fmt.Println("═══════════════════════════════════════════════════════════")
		fmt.Println("  Saved Settings")
		fmt.Println("═══════════════════════════════════════════════════════════")
		fmt.Println()
		fmt.Printf("  Provider:     %s\n", orDash(saved.Provider))
		fmt.Printf("  Model:        %s\n", orDash(saved.Model))
		fmt.Printf("  API key:      %s\n", orDash(maskKey(saved.APIKey)))
		if saved.MaxSources > 0 {
			fmt.Printf("  Max sources:  %d\n", saved.MaxSources)
		}
		fmt.Println()

		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize default configuration file",
	Long:  `Create a default configuration file at ~/.sourcecheck/config.yaml with all available options.`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("error finding home directory: %w", err)
		}

		configDir := filepath.Join(home, ".sourcecheck")
		configPath := filepath.Join(configDir, "config.yaml")

		// Check if config already exists
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("config file already exists: %s\nUse 'sourcecheck config show' to view it, or delete it first to recreate", configPath)
		}

		if err := os.MkdirAll(configDir, 0755); err != nil {
			return fmt.Errorf("error creating config directory: %w", err)
		}

		f, err := os.Create(configPath)
		if err != nil {
			return fmt.Errorf("error creating config file: %w", err)
		}
		defer func() {
			if closeErr := f.Close(); closeErr != nil && err == nil {
				err = fmt.Errorf("close config file: %w", closeErr)
			}
		}()

		// Helper for writing with error checking
		printf := func(format string, a ...interface{}) {
			if err != nil {
				return
			}
			_, err = fmt.Fprintf(f, format, a...)
		}

		printf("# sourcecheck Configuration File\n")
		printf("# See https://github.com/ppiankov/sourcecheck for full documentation\n")
		printf("#\n")
		printf("# Configuration hierarchy (highest to lowest priority):\n")
		printf("#   1. CLI flags\n")
		printf("#   2. Saved settings (sourcecheck config set)\n")
		printf("#   3. Environment variables (SOURCECHECK_*)\n")
		printf("#   4. This config file\n")
		printf("#   5. Built-in defaults\n\n")

		yamlData, mErr := yaml.Marshal(model.DefaultConfig())
		if mErr != nil {
			return fmt.Errorf("error marshaling config: %w", mErr)
		}
		if err == nil {
			if _, wErr := f.Write(yamlData); wErr != nil {
				return fmt.Errorf("error writing config: %w", wErr)
			}
		}

		printf("\n# API Keys (recommended to use environment variables or `sourcecheck config set-key`):\n")
		printf("#   export OPENAI_API_KEY=sk-...\n")
		printf("#   export ANTHROPIC_API_KEY=sk-ant-...\n")
		printf("#   export GEMINI_API_KEY=...\n")
		printf("#   export OLLAMA_BASE_URL=http://localhost:11434\n")

		if err != nil {
			return err
		}

		fmt.Printf("✓ Created default configuration: %s\n", configPath)
		fmt.Printf("\nTo view the configuration:\n")
		fmt.Printf("  sourcecheck config show\n")
		fmt.Printf("\nTo customize, edit the file with your preferred editor:\n")
		fmt.Printf("  $EDITOR %s\n", configPath)
		fmt.Printf("\n")

		return nil
	},
}

var configSetKeyCmd = &cobra.Command{
	Use:   "set-key <api-key>",
	Short: "Save the LLM API key",
	Long: `Save the API key for the LLM provider to ~/.sourcecheck/settings.yaml.
Pass - to read the key from standard input.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		if key == "-" {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("read key: %w", err)
			}
			key = string(data)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return fmt.Errorf("empty API key")
		}
		return saveSettings(settings.Settings{
			Provider: settingsProvider,
			APIKey:   key,
			Model:    settingsModel,
		})
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Save provider, model or source cap",
	Long:  `Save the LLM provider, model and maximum number of sources to ~/.sourcecheck/settings.yaml.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		next := settings.Settings{
			Provider:   settingsProvider,
			Model:      settingsModel,
			MaxSources: settingsMaxSources,
		}
		if next == (settings.Settings{}) {
			return fmt.Errorf("nothing to save: pass --provider, --model or --max-sources")
		}
		return saveSettings(next)
	},
}

// saveSettings sends the settings through the coordinator so the provider is rebuilt
// with them before they are reported as saved
func saveSettings(next settings.Settings) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if err := a.client.SaveSettings(context.Background(), next); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}

	state, err := a.client.State(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("✓ Settings saved (credentials configured: %v)\n", state.APIKeySet)
	return nil
}

func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configSetKeyCmd)
	configCmd.AddCommand(configSetCmd)

	for _, c := range []*cobra.Command{configSetKeyCmd, configSetCmd} {
		c.Flags().StringVar(&settingsProvider, "provider", "", "LLM provider (openai, anthropic, ollama, gemini)")
		c.Flags().StringVar(&settingsModel, "model", "", "LLM model name")
	}
	configSetCmd.Flags().IntVar(&settingsMaxSources, "max-sources", 0, "maximum number of sources per claim")
}
