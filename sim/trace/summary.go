package trace

import "gonum.org/v1/gonum/stat"

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalConnects     int
	TotalEvictions    int
	TotalExpiries     int
	MeanAgeAtConnect  float64 // ticks, over every participating link
	MaxAgeAtConnect   int64
	UniquePeers       int
	PeerParticipation map[string]int // remote node → number of connects it took part in
	EvictionsPerNode  map[string]int
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		PeerParticipation: make(map[string]int),
		EvictionsPerNode:  make(map[string]int),
	}
	if st == nil {
		return summary
	}

	summary.TotalConnects = len(st.Connects)
	summary.TotalEvictions = len(st.Evictions)
	summary.TotalExpiries = len(st.Expiries)

	var ages []float64
	for _, c := range st.Connects {
		for _, peer := range c.Peers {
			summary.PeerParticipation[peer]++
		}
		for _, age := range c.Ages {
			ages = append(ages, float64(age))
			if age > summary.MaxAgeAtConnect {
				summary.MaxAgeAtConnect = age
			}
		}
	}
	if len(ages) > 0 {
		summary.MeanAgeAtConnect = stat.Mean(ages, nil)
	}
	for _, e := range st.Evictions {
		summary.EvictionsPerNode[e.Node]++
	}

	summary.UniquePeers = len(summary.PeerParticipation)

	return summary
}
