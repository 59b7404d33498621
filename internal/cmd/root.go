package cmd

import (
	"strings"

	"github.com/Iron-Ham/phasebuild/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "phasebuild",
	Short: "Phased build orchestrator for multi-project workspaces",
	Long: `phasebuild runs the phases of a workspace (build, test, lint, ...) across
its projects as one dependency graph, executing independent operations in
parallel and skipping projects whose inputs did not change.

In watch mode it keeps running and rebuilds the affected projects whenever
their files change.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/phasebuild/phasebuild.config.yaml)")
	rootCmd.PersistentFlags().StringP("workspace", "w", "", "workspace file (default is ./phasebuild.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("paths.workspace_file", rootCmd.PersistentFlags().Lookup("workspace"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(config.FileName)
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath(config.ConfigDir())
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("PHASEBUILD")
	// Replace dots with underscores for nested keys in env vars
	// e.g., PHASEBUILD_EXECUTION_PARALLELISM for execution.parallelism
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
