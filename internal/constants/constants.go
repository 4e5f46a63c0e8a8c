package constants

import "time"

// Storage geometry
const (
	// BlockSize is the logical block size in bytes exposed to the host
	BlockSize = 512

	// DefaultChunkSize is the number of bytes moved per transfer adapter call
	DefaultChunkSize = 16

	// DefaultBankSize is the endpoint packet size (full-speed bulk)
	DefaultBankSize = 64

	// MinMediumSize is the smallest medium formatted as FAT32
	MinMediumSize = 64 << 20
)

// Logging defaults
const (
	// DefaultLogInterval is the default logging interval in ticks
	DefaultLogInterval = 2

	// DefaultMaxConsecutiveFailures bounds back-to-back record failures
	// before the writer suppresses itself until the next mode transition
	DefaultMaxConsecutiveFailures = 3

	// LogFileNameFormat produces names like F00001.csv
	LogFileNameFormat = "F%05d.csv"

	// DefaultVolumeLabel is used when formatting the medium
	DefaultVolumeLabel = "DATALOGGER"
)

// Timing constants
const (
	// DefaultTickPeriod is the fixed period of the sampling timer
	DefaultTickPeriod = 500 * time.Millisecond

	// DefaultPollInterval paces the cooperative main loop between passes
	DefaultPollInterval = 5 * time.Millisecond

	// DefaultStreamTimeout bounds an endpoint ready wait
	DefaultStreamTimeout = 100 * time.Millisecond

	// DefaultPowerOnDelay lets the medium stabilize after power is applied
	DefaultPowerOnDelay = 1 * time.Second

	// BlinkPeriod is the on/off half period of the diagnostic indicator
	BlinkPeriod = 500 * time.Millisecond
)

// USB identity, shared with the host configuration tool
const (
	VendorID     = 0x03EB
	ProductID    = 0x2063
	HIDUsagePage = 0xFF00
)
