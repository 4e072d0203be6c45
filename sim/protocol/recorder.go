package protocol

// Recorder receives counts of scheduling decisions, typically for export as metrics.
type Recorder interface {
	LinkRegistered(node string)
	LinksExpired(n int)
	LinksEvicted(node string, n int)
	Connected(size int)
	ArrivalBlocked(leaf string)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) LinkRegistered(string)    {}
func (NopRecorder) LinksExpired(int)         {}
func (NopRecorder) LinksEvicted(string, int) {}
func (NopRecorder) Connected(int)            {}
func (NopRecorder) ArrivalBlocked(string)    {}
