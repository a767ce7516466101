package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sensor-map-sync",
	Short: "Keep a local cache of SmartCitizen air-quality readings in sync",
	Long: `sensor-map-sync fetches geo-tagged readings of SmartCitizen kits,
drops low-confidence GPS fixes, merges them into a per-device cache and
serves the result as map-ready data.

Configuration is read from the environment and an optional .env file.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
