package cmd

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/qswitch-sim/sim/network"
)

var (
	sweepConfigPath string
	sweepOut        string
)

// sweepCmd simulates every scenario of a sweep file and writes one CSV row per scenario
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run a list of scenarios and aggregate each into a CSV row",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()

		sw, err := network.LoadSweep(sweepConfigPath)
		if err != nil {
			logrus.Fatalf("Failed to load sweep: %v", err)
		}
		if len(sw.Scenarios) == 0 {
			logrus.Fatalf("Sweep %s lists no scenarios", sweepConfigPath)
		}
		for i := range sw.Scenarios {
			if err := sw.Scenarios[i].Validate(); err != nil {
				logrus.Fatalf("Invalid scenario %d (%s): %v", i, sw.Scenarios[i].Name, err)
			}
		}

		logrus.Infof("Starting sweep %s: %d scenarios", sweepConfigPath, len(sw.Scenarios))
		startTime := time.Now()
		rows, err := network.RunSweep(sw, network.Options{})
		if err != nil {
			logrus.Fatalf("Sweep failed: %v", err)
		}
		if err := writeFile(sweepOut, func(w io.Writer) error { return network.WriteCSV(w, rows) }); err != nil {
			logrus.Fatalf("Failed to write %s: %v", sweepOut, err)
		}
		logrus.Infof("Sweep complete in %s, %d rows written to %s", time.Since(startTime).Round(time.Millisecond), len(rows), sweepOut)
	},
}

func init() {
	sweepCmd.Flags().StringVar(&sweepConfigPath, "config", "", "Sweep YAML file")
	sweepCmd.Flags().StringVar(&sweepOut, "out", "data.csv", "Output CSV file")
	_ = sweepCmd.MarkFlagRequired("config")

	rootCmd.AddCommand(sweepCmd)
}
