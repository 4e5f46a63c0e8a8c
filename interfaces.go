package msclog

import (
	"github.com/ehrlich-b/go-msclog/internal/arbiter"
	"github.com/ehrlich-b/go-msclog/internal/interfaces"
	"github.com/ehrlich-b/go-msclog/internal/logwriter"
	"github.com/ehrlich-b/go-msclog/internal/msc"
	"github.com/ehrlich-b/go-msclog/internal/settings"
)

// Storage medium interfaces
type (
	Medium      = interfaces.Medium
	InitMedium  = interfaces.InitMedium
	CheckMedium = interfaces.CheckMedium
	StatMedium  = interfaces.StatMedium
)

// Observer receives metrics events
type (
	Observer     = interfaces.Observer
	NoOpObserver = interfaces.NoOpObserver
	AbortCause   = interfaces.AbortCause
)

// Collaborators supplied by the board or the host environment
type (
	Link      = arbiter.Link
	Indicator = arbiter.Indicator
	Sampler   = logwriter.Sampler
	NVStore   = settings.NVStore
)

// Arbitration
type (
	Mode       = arbiter.Mode
	HaltPolicy = arbiter.Policy
)

const (
	ModeStandalone   = arbiter.Standalone
	ModeHostAttached = arbiter.HostAttached
	FailStop         = arbiter.FailStop
	WaitForHost      = arbiter.WaitForHost
)

// Host-side mass storage commands
type (
	Command  = msc.Command
	Result   = msc.Result
	Capacity = msc.Capacity
)

const (
	OpRead  = msc.OpRead
	OpWrite = msc.OpWrite
)

// HIDReport is the configuration report exchanged with the host tool
type HIDReport = settings.Report

// Logger is the minimal logging interface accepted in Options
type Logger interface {
	Printf(format string, args ...interface{})
}
