package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/qswitch-sim/sim/analytic"
	"github.com/inference-sim/qswitch-sim/sim/memory"
)

var analyticCmd = &cobra.Command{
	Use:   "analytic",
	Short: "Closed-form switch capacities and fibre rates",
}

// --- qswitch analytic capacity ---

var (
	capacityRates  []float64
	capacityBuffer string
	capacityAlpha  float64
	capacityQ      float64
)

var analyticCapacityCmd = &cobra.Command{
	Use:   "capacity",
	Short: "Capacity of a Bell-pair switch with finite buffers and decoherence",
	Run: func(cmd *cobra.Command, args []string) {
		capacity, err := bellCapacity(capacityRates, capacityBuffer, capacityAlpha, capacityQ)
		if err != nil {
			logrus.Fatalf("Capacity: %v", err)
		}
		fmt.Printf("%g\n", capacity)
	},
}

// bellCapacity parses the buffer size and evaluates the Bell-pair capacity.
// An unbounded buffer is refused: the closed form needs a finite state space.
func bellCapacity(rates []float64, buffer string, alpha, q float64) (float64, error) {
	b, err := memory.ParseBufferCapacity(buffer)
	if err != nil {
		return 0, err
	}
	if b.IsUnbounded() {
		return 0, fmt.Errorf("buffer must be finite")
	}
	return analytic.CapacityGHZ2(rates, int(b), alpha, q)
}

// --- qswitch analytic homogeneous ---

var (
	homogeneousQ  float64
	homogeneousMu float64
	homogeneousK  int
	homogeneousN  int
)

var analyticHomogeneousCmd = &cobra.Command{
	Use:   "homogeneous",
	Short: "Capacity of a noiseless switch with equal rates and unbounded buffers",
	Run: func(cmd *cobra.Command, args []string) {
		capacity, err := analytic.CapacityHomogeneousNoiseless(homogeneousQ, homogeneousMu, homogeneousK, homogeneousN)
		if err != nil {
			logrus.Fatalf("Capacity: %v", err)
		}
		fmt.Printf("%g\n", capacity)
	},
}

// --- qswitch analytic rate ---

var rateDistances []float64

var analyticRateCmd = &cobra.Command{
	Use:   "rate",
	Short: "Generation rate over each fibre distance with the Vardoyan et al. parameters",
	Run: func(cmd *cobra.Command, args []string) {
		printRates(os.Stdout, rateDistances)
	},
}

func printRates(w io.Writer, distances []float64) {
	for _, d := range distances {
		fmt.Fprintf(w, "%g km: %.6g Hz\n", d, analytic.VardoyanDistanceToRate(d))
	}
}

func init() {
	analyticCapacityCmd.Flags().Float64SliceVar(&capacityRates, "rates", nil, "Comma-separated generation rate of every leaf, Hz")
	analyticCapacityCmd.Flags().StringVar(&capacityBuffer, "buffer", "1", "Buffer size per leaf")
	analyticCapacityCmd.Flags().Float64Var(&capacityAlpha, "alpha", 0, "Decoherence rate, Hz")
	analyticCapacityCmd.Flags().Float64Var(&capacityQ, "q", 1, "Connect success probability")
	_ = analyticCapacityCmd.MarkFlagRequired("rates")

	analyticHomogeneousCmd.Flags().Float64Var(&homogeneousQ, "q", 1, "Connect success probability")
	analyticHomogeneousCmd.Flags().Float64Var(&homogeneousMu, "mu", 0, "Generation rate of every leaf, Hz")
	analyticHomogeneousCmd.Flags().IntVar(&homogeneousK, "k", 3, "Number of leaves")
	analyticHomogeneousCmd.Flags().IntVar(&homogeneousN, "n", 3, "Leaves per GHZ state")

	analyticRateCmd.Flags().Float64SliceVar(&rateDistances, "distances", nil, "Comma-separated fibre distances, km")
	_ = analyticRateCmd.MarkFlagRequired("distances")

	analyticCmd.AddCommand(analyticCapacityCmd, analyticHomogeneousCmd, analyticRateCmd)
	rootCmd.AddCommand(analyticCmd)
}
