// judge-cli is the command-line interface for the judge service.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "judge-cli",
		Short: "Code execution judge CLI",
		Long:  "Command-line interface for submitting code and administering the judge service.",
	}

	// Global flags
	rootCmd.PersistentFlags().String("server", getEnvDefault("JUDGE_SERVER_URL", "http://localhost:8080"), "Judge server URL")
	rootCmd.PersistentFlags().String("config", "", "Path to configuration file (admin commands)")

	// Add commands
	rootCmd.AddCommand(newSubmitCmd())
	rootCmd.AddCommand(newGetCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newDeleteCmd())
	rootCmd.AddCommand(newLanguagesCmd())
	rootCmd.AddCommand(newInfoCmd())
	rootCmd.AddCommand(newWorkersCmd())
	rootCmd.AddCommand(newSeedCmd())
	rootCmd.AddCommand(newRatelimitCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func getEnvDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
