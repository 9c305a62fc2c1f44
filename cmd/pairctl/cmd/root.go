// Package cmd implements the pairctl CLI commands.
package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/GoZippy/ZippyViewer-sub003/internal/version"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/keystore"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/store"
)

var (
	// Global flags
	outputFormat string
	dbPath       string
	keyPath      string
	cfgPath      string

	// Shared state opened by the root command
	pairStore *store.Store
	keyFile   *keystore.FileKeyStore
	cfg       *Config
)

var rootCmd = &cobra.Command{
	Use:   "pairctl",
	Short: "Device pairing and session authorization CLI",
	Long: `pairctl manages the pairing state of a controlled device.

It provides commands to initialize the device identity, issue and revoke
operator invites, inspect pairing records, mint and validate session
tickets, and verify pairing receipts.`,
	Version:      version.String(),
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip store initialization for completion commands
		if cmd.Name() == "completion" || cmd.Name() == "help" || cmd.Name() == "version" {
			return nil
		}

		var err error
		cfg, err = LoadConfig(cfgPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		path := dbPath
		if path == "" {
			path = cfg.DB
		}
		if path == "" {
			path = store.DefaultPath()
		}
		pairStore, err = store.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}

		kp := keyPath
		if kp == "" {
			kp = cfg.KeyFile
		}
		if kp == "" {
			kp = defaultKeyPath()
		}
		keyFile = keystore.NewFileKeyStore(kp)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if pairStore != nil {
			pairStore.Close()
		}
	},
}

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for pairctl.

To load completions:

Bash:
  # Add to ~/.bashrc:
  source <(pairctl completion bash)

Zsh:
  # Add to ~/.zshrc:
  source <(pairctl completion zsh)

Fish:
  # Add to ~/.config/fish/completions/:
  pairctl completion fish > ~/.config/fish/completions/pairctl.fish

PowerShell:
  # Add to your PowerShell profile:
  pairctl completion powershell | Out-String | Invoke-Expression`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletion(os.Stdout)
		case "zsh":
			return rootCmd.GenZshCompletion(os.Stdout)
		case "fish":
			return rootCmd.GenFishCompletion(os.Stdout, true)
		case "powershell":
			return rootCmd.GenPowerShellCompletionWithDesc(os.Stdout)
		default:
			return fmt.Errorf("unknown shell: %s", args[0])
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "Output format: text, json, yaml")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: ~/.local/share/pairctl/pairctl.db)")
	rootCmd.PersistentFlags().StringVar(&keyPath, "key-file", "", "Identity key file path (default: ~/.config/pairctl/identity.pem)")
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Config file path (default: ~/.config/pairctl/config.yaml)")
	rootCmd.AddCommand(completionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// OutputFormat reports the selected output format for error rendering.
func OutputFormat() string {
	return outputFormat
}

// formatOutput handles output formatting based on the --output flag.
// It returns true if the structured formats already rendered the data;
// text output is handled by each command.
func formatOutput(data interface{}) (bool, error) {
	switch outputFormat {
	case "json":
		return true, outputJSON(data)
	case "yaml":
		return true, outputYAML(data)
	default:
		return false, nil
	}
}

func outputJSON(data interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func outputYAML(data interface{}) error {
	out, err := yaml.Marshal(data)
	if err != nil {
		return err
	}
	fmt.Print(string(out))
	return nil
}
