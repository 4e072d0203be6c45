// Package analytic provides the closed-form results the simulator is checked
// against: the fibre rate model used to derive arrival rates and the switch
// capacities of Vardoyan, Guha, Nain and Towsley, "On the stochastic analysis
// of a quantum entanglement switch" (arXiv:1903.04420).
package analytic

import (
	"fmt"
	"math"
)

// Parameters of the numerical section of Vardoyan et al.
const (
	VardoyanLossCoefficient = 0.2  // beta, dB/km
	VardoyanAttemptDuration = 1e-9 // tau, s
	VardoyanLossParameter   = 0.1  // c
)

// DistanceToRate returns the entanglement generation rate in Hz over distanceKm
// of fibre with a heralding station at the midpoint:
//
//	2 · loss · 10^(-0.1 · beta · d/2) / attemptDuration
func DistanceToRate(distanceKm, lossParameter, lossCoefficient, attemptDuration float64) float64 {
	transmissivity := math.Pow(10, -0.1*lossCoefficient*distanceKm/2)
	return 2 * lossParameter * transmissivity / attemptDuration
}

// RateToDistance inverts DistanceToRate.
func RateToDistance(rateHz, lossParameter, lossCoefficient, attemptDuration float64) float64 {
	return -10 * math.Log(attemptDuration*rateHz/lossParameter/2) / (math.Ln10 * lossCoefficient / 2)
}

// VardoyanDistanceToRate is DistanceToRate with the parameters of Vardoyan et al.
func VardoyanDistanceToRate(distanceKm float64) float64 {
	return DistanceToRate(distanceKm, VardoyanLossParameter, VardoyanLossCoefficient, VardoyanAttemptDuration)
}

// VardoyanRateToDistance is RateToDistance with the parameters of Vardoyan et al.
func VardoyanRateToDistance(rateHz float64) float64 {
	return RateToDistance(rateHz, VardoyanLossParameter, VardoyanLossCoefficient, VardoyanAttemptDuration)
}

// CapacityGHZ2 returns the capacity of a switch producing Bell pairs, with
// per-leaf generation rates mus, buffer size b, decoherence rate alpha and
// connect success probability q.
func CapacityGHZ2(mus []float64, b int, alpha, q float64) (float64, error) {
	if len(mus) < 2 {
		return 0, fmt.Errorf("capacity needs at least 2 leaves, got %d", len(mus))
	}
	if b < 0 {
		return 0, fmt.Errorf("buffer size must be >= 0, got %d", b)
	}
	gamma := 0.0
	for _, mu := range mus {
		if mu <= 0 {
			return 0, fmt.Errorf("rates must be > 0, got %v", mus)
		}
		gamma += mu
	}

	// prod is the unnormalized probability that the leaf with rate mu holds j links
	var norm, served float64
	for _, mu := range mus {
		prod := 1.0
		for j := 1; j <= b; j++ {
			prod *= mu / (gamma - mu + float64(j)*alpha)
			norm += prod
			served += prod * (gamma - mu)
		}
	}
	pi0 := 1 / (1 + norm)
	return q * pi0 * served, nil
}

// CapacityHomogeneousNoiseless returns q·mu·k/n, the capacity of a switch
// serving k leaves at the same rate mu with unbounded buffers and no
// decoherence, producing GHZ states on n leaves.
func CapacityHomogeneousNoiseless(q, mu float64, k, n int) (float64, error) {
	if n < 2 || k < n {
		return 0, fmt.Errorf("need 2 <= n <= k, got n=%d k=%d", n, k)
	}
	return q * mu * float64(k) / float64(n), nil
}
