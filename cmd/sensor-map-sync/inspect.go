package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/i474232898/sensor-map-sync/internal/telemetry"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [device-id...]",
	Short: "Print a summary of the cached datasets",
	Long: `Load the cached dataset of each device without contacting the API and
print its size, time span, channels and mean position.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		for _, d := range a.devices(args) {
			ds, err := a.store.Load(cmd.Context(), d)
			switch {
			case errors.Is(err, telemetry.ErrCacheNotFound):
				fmt.Printf("%s: no cache\n", d)
				continue
			case err != nil:
				fmt.Printf("%s: %v\n", d, err)
				continue
			}
			printSummary(os.Stdout, ds)
		}
		return nil
	},
}

func printSummary(w io.Writer, ds telemetry.Dataset) {
	fmt.Fprintf(w, "%s: %d readings\n", ds.Device, ds.Len())
	if ds.Len() > 0 {
		first, last := ds.Readings[0].Timestamp, ds.Readings[ds.Len()-1].Timestamp
		fmt.Fprintf(w, "  span:     %s .. %s\n", first.Format(time.RFC3339), last.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "  channels: %s\n", strings.Join(ds.Channels(), ", "))
	if c, ok := telemetry.MeanCenter(ds); ok {
		fmt.Fprintf(w, "  center:   %.5f, %.5f (%d samples)\n", c.Lat, c.Lon, c.Samples)
	}
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
