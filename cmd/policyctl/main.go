package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	relayURL string
	apiKey   string
	userID   string
	rootCmd  = &cobra.Command{
		Use:   "policyctl",
		Short: "policyctl - policy table generation from the command line",
		Long: `policyctl submits policy table render jobs to the relay, follows their
progress and publishes the finished tables. Settings come from config.yaml
and the environment, like the API server; flags override them.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&relayURL, "relay-url", "", "relay base url (overrides RELAY_BASE_URL)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "relay api key (overrides RELAY_API_KEY)")
	rootCmd.PersistentFlags().StringVar(&userID, "user", os.Getenv("USER"), "user id forwarded to the relay")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
