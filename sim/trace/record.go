// Package trace provides decision-trace recording for switch scheduling analysis.
// It stores plain data types and imports nothing from sim/.
package trace

// ConnectRecord captures a single connect: which links the switch matched and
// what the measurement produced.
type ConnectRecord struct {
	Clock       int64
	Positions   []int    // switch memory slots, oldest link first
	Peers       []string // remote node of each link
	LinkIDs     []int
	Ages        []int64 // now - creation time of each link, in ticks
	Outcomes    []int
	Corrections []string // correction operator per participant
}

// EvictionRecord captures a link discarded by the per-peer buffer policy.
type EvictionRecord struct {
	Clock  int64
	Node   string // node whose memory held the link
	Peer   string // remote node of the link
	LinkID int
	Slot   int
	Age    int64
}

// ExpiryRecord captures a link discarded by the decoherence cutoff.
type ExpiryRecord struct {
	Clock  int64
	Peer   string
	LinkID int
	Slot   int
	Age    int64
}
