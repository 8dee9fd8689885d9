package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lucasnoah/ideaforge/internal/config"
	"github.com/lucasnoah/ideaforge/internal/prompt"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Validate and inspect the forge configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		errs := config.Validate(cfg)
		if len(errs) == 0 {
			cmd.Println("Configuration is valid.")
			return nil
		}

		cmd.Println("Validation errors:")
		for _, e := range errs {
			cmd.Printf("  - %s\n", e)
		}
		return fmt.Errorf("config has %d validation error(s)", len(errs))
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved configuration with defaults and environment merged",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.LLM.APIKey != "" {
			cfg.LLM.APIKey = "<redacted>"
		}
		if cfg.Storage.DSN != "" {
			cfg.Storage.DSN = "<redacted>"
		}
		if jsonOutput() {
			return printJSON(cmd.OutOrStdout(), cfg)
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshalling config: %w", err)
		}

		cmd.Print(string(data))
		return nil
	},
}

var configTemplatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Write the built-in prompt templates out for editing",
	Long: `Write every built-in prompt template into --dir (default templates_dir).
Existing files are left untouched, so edited overrides survive a re-run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("dir")
		if dir == "" {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			dir = cfg.TemplatesDir
		}
		if dir == "" {
			return fmt.Errorf("--dir is required when templates_dir is not configured")
		}
		written, err := prompt.Install(dir)
		if err != nil {
			return err
		}
		cmd.Printf("Wrote %d of %d template(s) to %s\n", len(written), len(prompt.Names()), dir)
		return nil
	},
}

func init() {
	configTemplatesCmd.Flags().String("dir", "", "directory to write templates into")
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configTemplatesCmd)
}
