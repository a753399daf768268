// Package cmd implements the stageflow CLI. Commands wire the engine
// packages together; all workflow semantics live below this layer.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stageflow/stageflow/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "stageflow",
	Short: "Staged product-development workflow runner",
	Long: `Stageflow drives a product idea through a fixed twelve-step
development pipeline, from brainstorming to launch plan. Each step's
output is checkpointed, failed runs resume where they stopped, and any
step can be skipped or supplied manually.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is <project-dir>/stageflow.yaml)")
	rootCmd.PersistentFlags().StringP("dir", "d", "", "project directory (default is the working directory)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("project.dir", rootCmd.PersistentFlags().Lookup("dir"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("stageflow")
		viper.SetConfigType("yaml")
		if dir := viper.GetString("project.dir"); dir != "" {
			viper.AddConfigPath(dir)
		}
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("STAGEFLOW")
	// Replace dots with underscores for nested keys in env vars
	// e.g., STAGEFLOW_RETRY_MAX_RETRIES for retry.max_retries
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
