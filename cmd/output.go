package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/inference-sim/qswitch-sim/sim/network"
	"github.com/inference-sim/qswitch-sim/sim/trace"
)

// printResults writes the per-run outcomes of sc followed by their aggregate.
func printResults(w io.Writer, sc network.Scenario, results []*network.Result, elapsed time.Duration) {
	row := network.Aggregate(sc, results)

	fmt.Fprintln(w, "=== Simulation Results ===")
	fmt.Fprintf(w, "Scenario             : %s\n", sc.Name)
	fmt.Fprintf(w, "Leaves               : %d\n", sc.NumLeaves())
	fmt.Fprintf(w, "Connect Size         : %d\n", sc.ConnectSize)
	fmt.Fprintf(w, "Runtime per Run      : %g s\n", sc.TotalRuntime)
	fmt.Fprintf(w, "Runs                 : %d\n", row.Runs)
	for i, r := range results {
		fmt.Fprintf(w, "Run %-3d (seed %d)    : %d groups, mean fidelity %.4f, capacity %.4g/s, %d lost, %d pending\n",
			i, r.Seed, r.NumberOfLinksProduced(), r.MeanFidelity(), r.Capacity(), r.Lost, r.Pending)
	}
	fmt.Fprintf(w, "Mean Fidelity        : %.4f ± %.4f\n", row.MeanFidelity, row.StdFidelity)
	fmt.Fprintf(w, "Mean Capacity        : %.4g ± %.4g /s\n", row.MeanCapacity, row.StdCapacity)
	for i := 0; i < sc.NumLeaves(); i++ {
		name := network.LeafNodeName(i)
		fmt.Fprintf(w, "States at %-11s: %.4g /s\n", name, row.StatesPerNode[name])
	}
	fmt.Fprintf(w, "Wall Time            : %s\n", elapsed.Round(time.Millisecond))
}

// printTraceSummaries writes the decision trace summary of every traced run.
func printTraceSummaries(w io.Writer, results []*network.Result) {
	fmt.Fprintln(w, "=== Decision Trace ===")
	for i, r := range results {
		s := trace.Summarize(r.Trace)
		fmt.Fprintf(w, "Run %-3d: %d connects, %d evictions, %d expiries, mean age at connect %.0f ticks, max %d ticks\n",
			i, s.TotalConnects, s.TotalEvictions, s.TotalExpiries, s.MeanAgeAtConnect, s.MaxAgeAtConnect)
		nodes := make([]string, 0, len(s.EvictionsPerNode))
		for node := range s.EvictionsPerNode {
			nodes = append(nodes, node)
		}
		sort.Strings(nodes)
		for _, node := range nodes {
			fmt.Fprintf(w, "  evictions at %s: %d\n", node, s.EvictionsPerNode[node])
		}
	}
}

// writeFile creates path and hands it to write.
func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return write(f)
}
