package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync [device-id...]",
	Short: "Run one sync for the given or configured devices",
	Long: `Run a single sync cycle per device and print the run reports as JSON.

Without arguments every device listed in DEVICE_IDS is synced. The command
exits non-zero when any sync fails; the cache of a failed device is left
untouched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		failed := 0
		for _, d := range a.devices(args) {
			report, err := a.engine.Sync(cmd.Context(), d)
			if err != nil {
				failed++
				fmt.Fprintf(os.Stderr, "Error: sync %s: %v\n", d, err)
			}
			if err := enc.Encode(report); err != nil {
				return err
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d syncs failed", failed, len(a.devices(args)))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
