package interfaces

// AbortCause describes why a multi-block transfer stopped early.
type AbortCause string

const (
	AbortStall AbortCause = "stall"
	AbortReset AbortCause = "reset"
	AbortIO    AbortCause = "io"
)

// Observer allows pluggable metrics collection
type Observer interface {
	// ObserveRead is called once per completed or aborted host read command
	ObserveRead(blocks uint64, latencyNs uint64, success bool)

	// ObserveWrite is called once per completed or aborted host write command
	ObserveWrite(blocks uint64, latencyNs uint64, success bool)

	// ObserveAbort is called when a transfer stops before its requested count
	ObserveAbort(cause AbortCause)

	// ObserveRecord is called for each attempted log record
	ObserveRecord(bytes uint64, latencyNs uint64, success bool)

	// ObserveSkippedTick is called when a due tick could not touch storage
	ObserveSkippedTick()

	// ObserveTransition is called when the log file is opened or closed
	ObserveTransition(opened bool)

	// ObserveMount is called after each mount attempt; formatted reports
	// whether the medium had to be formatted first
	ObserveMount(formatted bool, success bool)
}

// NoOpObserver is a no-op implementation of Observer
type NoOpObserver struct{}

func (NoOpObserver) ObserveRead(uint64, uint64, bool)   {}
func (NoOpObserver) ObserveWrite(uint64, uint64, bool)  {}
func (NoOpObserver) ObserveAbort(AbortCause)            {}
func (NoOpObserver) ObserveRecord(uint64, uint64, bool) {}
func (NoOpObserver) ObserveSkippedTick()                {}
func (NoOpObserver) ObserveTransition(bool)             {}
func (NoOpObserver) ObserveMount(bool, bool)            {}

var _ Observer = NoOpObserver{}
