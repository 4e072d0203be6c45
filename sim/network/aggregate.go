package network

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

// Row summarizes the runs of one scenario: means over runs and their standard
// errors (population standard deviation over sqrt(runs)).
type Row struct {
	Scenario      Scenario
	Runs          int
	MeanFidelity  float64
	StdFidelity   float64
	MeanCapacity  float64
	StdCapacity   float64
	StatesPerNode map[string]float64 // mean over runs
}

// Aggregate summarizes results, the runs of sc.
func Aggregate(sc Scenario, results []*Result) Row {
	row := Row{Scenario: sc, Runs: len(results), StatesPerNode: make(map[string]float64)}
	if len(results) == 0 {
		row.MeanFidelity, row.StdFidelity = math.NaN(), math.NaN()
		row.MeanCapacity, row.StdCapacity = math.NaN(), math.NaN()
		return row
	}
	fidelities := make([]float64, len(results))
	capacities := make([]float64, len(results))
	for i, r := range results {
		fidelities[i] = r.MeanFidelity()
		capacities[i] = r.Capacity()
		for node, v := range r.StatesPerNode() {
			row.StatesPerNode[node] += v / float64(len(results))
		}
	}
	n := float64(len(results))
	var std float64
	row.MeanFidelity, std = stat.PopMeanStdDev(fidelities, nil)
	row.StdFidelity = stat.StdErr(std, n)
	row.MeanCapacity, std = stat.PopMeanStdDev(capacities, nil)
	row.StdCapacity = stat.StdErr(std, n)
	return row
}

// RunSweep simulates every scenario of sw over its runs and aggregates each.
// Scenarios without a run count run once.
func RunSweep(sw *Sweep, opts Options) ([]Row, error) {
	rows := make([]Row, 0, len(sw.Scenarios))
	for i, sc := range sw.Scenarios {
		sim, err := NewSimulation(sc, sc.Seed, opts)
		if err != nil {
			return rows, fmt.Errorf("scenario %d (%s): %w", i, sc.Name, err)
		}
		runs := sc.Runs
		if runs == 0 {
			runs = 1
		}
		multi := NewSimulationMultiple(sim, runs)
		if err := multi.Run(); err != nil {
			return rows, fmt.Errorf("scenario %d (%s): %w", i, sc.Name, err)
		}
		rows = append(rows, Aggregate(sc, multi.Results()))
		logrus.Infof("scenario %d/%d done", i+1, len(sw.Scenarios))
	}
	return rows, nil
}

var scenarioColumns = []string{
	"name", "total_runtime_in_seconds", "connect_size", "num_positions", "buffer_size",
	"T2", "decoherence_rate", "include_classical_comm",
}

func scenarioRecord(sc Scenario) []string {
	buffers := make([]string, len(sc.BufferSize))
	for i, b := range sc.BufferSize {
		buffers[i] = b.String()
	}
	buffer := strings.Join(buffers, ";")
	if buffer == "" {
		buffer = "unbounded"
	}
	return []string{
		sc.Name,
		formatFloat(sc.TotalRuntime),
		strconv.Itoa(sc.ConnectSize),
		strconv.Itoa(sc.NumPositions),
		buffer,
		formatFloat(sc.T2),
		formatFloat(sc.DecoherenceRate),
		strconv.FormatBool(sc.IncludeClassicalComm),
	}
}

// WriteCSV writes one line per row, followed by one column per leaf with the
// leaf's mean states per second.
func WriteCSV(w io.Writer, rows []Row) error {
	nodeSet := make(map[string]float64)
	for _, row := range rows {
		for node := range row.StatesPerNode {
			nodeSet[node] = 0
		}
	}
	nodes := sortedNodes(nodeSet)

	cw := csv.NewWriter(w)
	header := append(append([]string(nil), scenarioColumns...),
		"runs", "mean_fidelity", "std_fidelity", "mean_capacity", "std_capacity")
	header = append(header, nodes...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		record := scenarioRecord(row.Scenario)
		record = append(record,
			strconv.Itoa(row.Runs),
			formatFloat(row.MeanFidelity),
			formatFloat(row.StdFidelity),
			formatFloat(row.MeanCapacity),
			formatFloat(row.StdCapacity))
		for _, node := range nodes {
			record = append(record, formatFloat(row.StatesPerNode[node]))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteRunsCSV writes one line per run of sc.
func WriteRunsCSV(w io.Writer, sc Scenario, results []*Result) error {
	cw := csv.NewWriter(w)
	header := append(append([]string(nil), scenarioColumns...),
		"run_id", "seed", "number_of_links_produced", "mean_fidelity", "capacity", "lost")
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range results {
		record := append(scenarioRecord(sc),
			r.RunID.String(),
			strconv.FormatInt(r.Seed, 10),
			strconv.Itoa(r.NumberOfLinksProduced()),
			formatFloat(r.MeanFidelity()),
			formatFloat(r.Capacity()),
			strconv.Itoa(r.Lost))
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// sortedNodes returns the keys of counts ordered by leaf index.
func sortedNodes(counts map[string]float64) []string {
	nodes := make([]string, 0, len(counts))
	for node := range counts {
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool {
		if len(nodes[i]) != len(nodes[j]) {
			return len(nodes[i]) < len(nodes[j])
		}
		return nodes[i] < nodes[j]
	})
	return nodes
}
