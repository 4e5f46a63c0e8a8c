package msclog

import "github.com/ehrlich-b/go-msclog/internal/constants"

// Re-export constants for public API
const (
	BlockSize                     = constants.BlockSize
	DefaultChunkSize              = constants.DefaultChunkSize
	DefaultBankSize               = constants.DefaultBankSize
	DefaultLogInterval            = constants.DefaultLogInterval
	DefaultMaxConsecutiveFailures = constants.DefaultMaxConsecutiveFailures
	DefaultVolumeLabel            = constants.DefaultVolumeLabel
	DefaultTickPeriod             = constants.DefaultTickPeriod
	DefaultPollInterval           = constants.DefaultPollInterval
	DefaultStreamTimeout          = constants.DefaultStreamTimeout
)
