package cli

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "forge",
	Short: "forge: resumable generation pipelines for product ideas",
	Long: `forge turns a product idea and its analysis into foundation documents,
content pieces and research findings, validates the idea on an assumption
canvas and publishes finished pieces to a git repository.

Runs are resumable: a run that pauses on its time budget or crashes picks up
where it left off on the next "resume" or cron tick.

Every config value can be overridden with a FORGE_ environment variable, e.g.
FORGE_STORAGE_BACKEND=sqlite or FORGE_LLM_API_KEY=...`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	viper.SetEnvPrefix("FORGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to forge config file")
	rootCmd.PersistentFlags().Bool("json", false, "print machine-readable JSON")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ideaCmd)
	rootCmd.AddCommand(calendarCmd)
	rootCmd.AddCommand(foundationCmd)
	rootCmd.AddCommand(contentCmd)
	rootCmd.AddCommand(researchCmd)
	rootCmd.AddCommand(pipelineCmd)
	rootCmd.AddCommand(canvasCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(configCmd)
}
