package broadcast

import "sync"

// ScanDataPoint is one point-data event from the acquisition engine.
type ScanDataPoint struct {
	// Index is the zero-based point number within the run.
	Index int
	// FirstPoint marks the first point of a run; the column header line
	// is delivered ahead of the data line for these.
	FirstPoint bool
	// Header is the column header line. Valid only when FirstPoint.
	Header string
	// Formatted is the rendered data line for this point.
	Formatted string
}

// ScanFeed is the subscription registry for scan-point events. It is
// independent of the output Registry: a session subscribes to both on init
// and leaves both on close.
type ScanFeed struct {
	subscribers sync.Map // int64 -> Writer
}

// NewScanFeed creates an empty feed.
func NewScanFeed() *ScanFeed {
	return &ScanFeed{}
}

// Subscribe adds a session writer to the feed.
func (f *ScanFeed) Subscribe(id int64, w Writer) {
	f.subscribers.Store(id, w)
}

// Unsubscribe removes a session writer. Idempotent.
func (f *ScanFeed) Unsubscribe(id int64) {
	f.subscribers.Delete(id)
}

// Broadcast delivers p to every subscriber: the header line first when this
// is the first point of a run, then the data line. The two writes arrive in
// that order at each destination; ordering across destinations is
// unspecified.
func (f *ScanFeed) Broadcast(p ScanDataPoint) {
	f.subscribers.Range(func(_, value any) bool {
		w := value.(Writer)
		if p.FirstPoint {
			_ = w.WriteOutput(p.Header + "\n")
		}
		_ = w.WriteOutput(p.Formatted + "\n")
		return true
	})
}
