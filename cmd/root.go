package cmd

import (
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/inference-sim/qswitch-sim/internal/observability"
	"github.com/inference-sim/qswitch-sim/sim/network"
	"github.com/inference-sim/qswitch-sim/sim/trace"
)

var (
	configPath  string  // Scenario YAML
	seed        int64   // Overrides the scenario seed
	runs        int     // Overrides the scenario run count
	runtimeSecs float64 // Overrides total_runtime_in_seconds
	logLevel    string  // Log verbosity level
	metricsOut  string  // Prometheus text dump of the run metrics
	runsOut     string  // Per-run CSV
	traceLevel  string  // Decision tracing level
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "qswitch",
	Short: "Discrete-event simulator for quantum entanglement switches",
}

// runCmd simulates one scenario, possibly several times under consecutive seeds
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a switch scenario",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()

		sc, err := network.LoadScenario(configPath)
		if err != nil {
			logrus.Fatalf("Failed to load scenario: %v", err)
		}
		applyRunOverrides(cmd.Flags(), sc)
		if err := sc.Validate(); err != nil {
			logrus.Fatalf("Invalid scenario %s: %v", configPath, err)
		}
		if !trace.IsValidTraceLevel(traceLevel) {
			logrus.Fatalf("Unknown trace level %q; valid: none, decisions", traceLevel)
		}

		opts := network.Options{Trace: trace.TraceConfig{Level: trace.TraceLevel(traceLevel)}}
		var collector *observability.SwitchCollector
		if metricsOut != "" {
			collector, err = observability.NewSwitchCollector(prometheus.NewRegistry())
			if err != nil {
				logrus.Fatalf("Failed to register metrics: %v", err)
			}
			opts.Recorder = collector
		}

		logrus.Infof("Starting %s: %d leaves, connect size %d, %g s, seed %d, %d runs",
			configPath, sc.NumLeaves(), sc.ConnectSize, sc.TotalRuntime, sc.Seed, runCount(sc.Runs))
		startTime := time.Now()

		simulation, err := network.NewSimulation(*sc, sc.Seed, opts)
		if err != nil {
			logrus.Fatalf("Failed to build network: %v", err)
		}
		multi := network.NewSimulationMultiple(simulation, runCount(sc.Runs))
		if err := multi.Run(); err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
		results := multi.Results()

		printResults(os.Stdout, *sc, results, time.Since(startTime))
		if opts.Trace.Enabled() {
			printTraceSummaries(os.Stdout, results)
		}
		if collector != nil {
			for _, r := range results {
				collector.ObserveRun(r.Fidelities, r.Capacity())
			}
			if err := writeFile(metricsOut, collector.WriteText); err != nil {
				logrus.Fatalf("Failed to write metrics: %v", err)
			}
			logrus.Infof("Metrics written to %s", metricsOut)
		}
		if runsOut != "" {
			err := writeFile(runsOut, func(w io.Writer) error { return network.WriteRunsCSV(w, *sc, results) })
			if err != nil {
				logrus.Fatalf("Failed to write runs: %v", err)
			}
			logrus.Infof("Runs written to %s", runsOut)
		}

		logrus.Info("Simulation complete.")
	},
}

// setLogLevel applies --log, exiting on an unknown level.
func setLogLevel() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
}

// applyRunOverrides copies the flags the user set explicitly into sc.
// Unset flags leave the scenario's own values alone.
func applyRunOverrides(flags *pflag.FlagSet, sc *network.Scenario) {
	if flags.Changed("seed") {
		sc.Seed = seed
	}
	if flags.Changed("runs") {
		sc.Runs = runs
	}
	if flags.Changed("runtime") {
		sc.TotalRuntime = runtimeSecs
	}
}

func runCount(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")

	runCmd.Flags().StringVar(&configPath, "config", "", "Scenario YAML file")
	runCmd.Flags().Int64Var(&seed, "seed", 42, "Seed of the first run, overriding the scenario's")
	runCmd.Flags().IntVar(&runs, "runs", 1, "Number of runs, overriding the scenario's")
	runCmd.Flags().Float64Var(&runtimeSecs, "runtime", 0, "Simulated time per run in seconds, overriding the scenario's")
	runCmd.Flags().StringVar(&metricsOut, "metrics-out", "", "Write Prometheus metrics in text format to this file")
	runCmd.Flags().StringVar(&runsOut, "runs-out", "", "Write one CSV line per run to this file")
	runCmd.Flags().StringVar(&traceLevel, "trace", "none", "Decision tracing (none, decisions)")
	_ = runCmd.MarkFlagRequired("config")

	rootCmd.AddCommand(runCmd)
}
