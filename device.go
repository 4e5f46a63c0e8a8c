// Package msclog implements a USB temperature data logger: a mass-storage
// block bridge to a storage medium, arbitrated against a periodic local
// log writer that appends readings to a file on the same medium.
package msclog

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/ehrlich-b/go-msclog/internal/arbiter"
	"github.com/ehrlich-b/go-msclog/internal/blockstore"
	"github.com/ehrlich-b/go-msclog/internal/constants"
	"github.com/ehrlich-b/go-msclog/internal/endpoint"
	"github.com/ehrlich-b/go-msclog/internal/fatfs"
	"github.com/ehrlich-b/go-msclog/internal/logging"
	"github.com/ehrlich-b/go-msclog/internal/logwriter"
	"github.com/ehrlich-b/go-msclog/internal/msc"
	"github.com/ehrlich-b/go-msclog/internal/settings"
	"github.com/ehrlich-b/go-msclog/internal/transfer"
)

// Params contains parameters for creating a logger device
type Params struct {
	// Medium provides the storage implementation
	Medium Medium

	// Collaborators. Nil values get in-process defaults.
	Link      Link      // default: never configured
	Sampler   Sampler   // default: constant zero reading
	NVStore   NVStore   // default: in-memory
	Indicator Indicator // default: log only

	// Logging
	DefaultInterval        uint8         // ticks between records when NV is empty
	TickPeriod             time.Duration // sampling timer period
	MaxConsecutiveFailures int           // record failures before suppression
	HaltPolicy             HaltPolicy
	VolumeLabel            string
	FileNumber             int // number of the last log file; the next is FileNumber+1

	// Transport
	ChunkSize     int           // bytes per transfer adapter call
	BankSize      int           // endpoint packet size
	Banks         int           // packets buffered per direction
	StreamTimeout time.Duration // endpoint ready wait bound
	QueueDepth    int           // queued host commands

	// PollInterval paces the main loop when nothing is pending
	PollInterval time.Duration
}

// DefaultParams returns default device parameters
func DefaultParams(medium Medium) Params {
	return Params{
		Medium:                 medium,
		DefaultInterval:        constants.DefaultLogInterval,
		TickPeriod:             constants.DefaultTickPeriod,
		MaxConsecutiveFailures: constants.DefaultMaxConsecutiveFailures,
		HaltPolicy:             FailStop,
		VolumeLabel:            constants.DefaultVolumeLabel,
		ChunkSize:              constants.DefaultChunkSize,
		BankSize:               constants.DefaultBankSize,
		Banks:                  2,
		StreamTimeout:          constants.DefaultStreamTimeout,
		QueueDepth:             4,
		PollInterval:           constants.DefaultPollInterval,
	}
}

func (p *Params) validate() error {
	if p.Medium == nil {
		return NewError("NEW", ErrCodeInvalidParameters, "medium is required")
	}
	if p.TickPeriod <= 0 || p.PollInterval <= 0 {
		return NewError("NEW", ErrCodeInvalidParameters, "tick and poll periods must be positive")
	}
	if p.BankSize <= 0 || BlockSize%p.BankSize != 0 {
		return NewError("NEW", ErrCodeInvalidParameters,
			fmt.Sprintf("bank size %d must divide block size %d", p.BankSize, BlockSize))
	}
	if p.ChunkSize <= 0 || BlockSize%p.ChunkSize != 0 || p.BankSize%p.ChunkSize != 0 {
		return NewError("NEW", ErrCodeInvalidParameters,
			fmt.Sprintf("chunk size %d must divide block size %d and bank size %d", p.ChunkSize, BlockSize, p.BankSize))
	}
	return nil
}

// Options contains additional options for device creation
type Options struct {
	// Logger for lifecycle messages (if nil, none are printed)
	Logger Logger

	// Observer for metrics collection (if nil, the built-in metrics are used)
	Observer Observer
}

// DeviceState represents the lifecycle state of a device
type DeviceState string

const (
	DeviceStateCreated DeviceState = "created"
	DeviceStateRunning DeviceState = "running"
	DeviceStateHalted  DeviceState = "halted"
	DeviceStateStopped DeviceState = "stopped"
)

type hidRequest struct {
	report HIDReport
	done   chan error
}

// Device is the storage context: the medium and every component that
// shares it, constructed once and owned by Run.
type Device struct {
	// Medium is the storage implementation
	Medium Medium

	params   Params
	fifo     *endpoint.FIFO
	store    *blockstore.Store
	fs       *fatfs.FS
	arb      *arbiter.Arbiter
	writer   *logwriter.Writer
	settings *settings.Settings
	task     *msc.Task
	hid      chan hidRequest

	metrics  *Metrics
	observer Observer
	logger   *logging.Logger
	printer  Logger

	running atomic.Bool
	halted  atomic.Bool
	stopped atomic.Bool
}

// New powers up the medium and builds the storage context. The medium's
// power-on sequence and self-check run here; a failing check aborts.
func New(ctx context.Context, params Params, options *Options) (*Device, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	if options == nil {
		options = &Options{}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	logger := logging.Default().WithComponent("device")

	if im, ok := params.Medium.(InitMedium); ok {
		if err := im.Init(ctx); err != nil {
			return nil, WrapError("INIT", err)
		}
	}
	if cm, ok := params.Medium.(CheckMedium); ok {
		if err := cm.Check(); err != nil {
			return nil, WrapError("CHECK", err)
		}
	}

	metrics := NewMetrics()
	var observer Observer = NewMetricsObserver(metrics)
	if options.Observer != nil {
		observer = options.Observer
	}

	link := params.Link
	if link == nil {
		link = staticLink(false)
	}
	sampler := params.Sampler
	if sampler == nil {
		sampler = logwriter.Constant(0)
	}
	nv := params.NVStore
	if nv == nil {
		nv = &settings.MemStore{}
	}

	fifo := endpoint.New(endpoint.Config{
		BankSize: params.BankSize,
		Banks:    params.Banks,
		Timeout:  params.StreamTimeout,
	})
	adapter, err := transfer.NewAdapter(fifo, params.ChunkSize)
	if err != nil {
		return nil, WrapError("NEW", err)
	}

	d := &Device{
		Medium:   params.Medium,
		params:   params,
		fifo:     fifo,
		hid:      make(chan hidRequest),
		metrics:  metrics,
		observer: observer,
		logger:   logger,
		printer:  options.Logger,
	}

	d.store = blockstore.New(params.Medium, adapter, &blockstore.Options{Observer: observer})
	d.fs = fatfs.New(params.Medium, params.VolumeLabel, nil)
	d.arb = arbiter.New(link, d.fs, &arbiter.Options{
		Policy:     params.HaltPolicy,
		Indicator:  params.Indicator,
		Observer:   observer,
		FileNumber: params.FileNumber,
	})
	d.settings = settings.Load(nv, params.DefaultInterval, nil)
	d.writer = logwriter.New(d.arb, d.settings, sampler, &logwriter.Options{
		MaxConsecutiveFailures: params.MaxConsecutiveFailures,
		Observer:               observer,
	})
	d.task = msc.New(d.arb, d.store, fifo, params.QueueDepth, nil)

	logger.Info("device created", "blocks", d.store.BlockCount(), "interval", d.settings.Interval())
	if d.printer != nil {
		d.printer.Printf("Logger device created: %d blocks, interval %d ticks", d.store.BlockCount(), d.settings.Interval())
	}
	return d, nil
}

// Run drives the device until ctx is done or storage halts. The main loop
// services host block commands, HID reports and arbitration; the sampling
// timer runs alongside it. A clean shutdown returns nil.
func (d *Device) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return NewError("RUN", ErrCodeInvalidParameters, "device already running")
	}
	defer d.running.Store(false)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.mainLoop(gctx) })
	g.Go(func() error { return d.tickLoop(gctx) })

	err := g.Wait()
	d.metrics.Stop()
	if errors.Is(err, arbiter.ErrHalted) {
		d.halted.Store(true)
		return WrapError("RUN", err)
	}
	if err != nil && ctx.Err() == nil {
		return WrapError("RUN", err)
	}
	return nil
}

func (d *Device) mainLoop(ctx context.Context) error {
	ticker := time.NewTicker(d.params.PollInterval)
	defer ticker.Stop()

	for {
		served, err := d.task.Poll()
		if err != nil {
			return err
		}
		d.pollHID()
		if err := d.arb.Pass(); errors.Is(err, arbiter.ErrHalted) {
			return err
		}

		if served {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (d *Device) pollHID() {
	select {
	case req := <-d.hid:
		req.done <- d.settings.ProcessReport(req.report)
	default:
	}
}

func (d *Device) tickLoop(ctx context.Context) error {
	ticker := time.NewTicker(d.params.TickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := d.writer.Tick(); errors.Is(err, arbiter.ErrHalted) {
				return err
			}
		}
	}
}

// Submit queues a host block command.
func (d *Device) Submit(ctx context.Context, cmd Command) (<-chan Result, error) {
	return d.task.Submit(ctx, cmd)
}

// ResetTransport raises the host mass-storage reset signal.
func (d *Device) ResetTransport() {
	d.task.Reset()
}

// Capacity answers a READ CAPACITY query.
func (d *Device) Capacity() (Capacity, error) {
	c, err := d.task.Capacity()
	if err != nil {
		return c, WrapError("CAPACITY", err)
	}
	return c, nil
}

// HostSend queues data for an in-flight host write.
func (d *Device) HostSend(ctx context.Context, data []byte) error {
	return d.fifo.HostSend(ctx, data)
}

// HostReceive collects n bytes of an in-flight host read.
func (d *Device) HostReceive(ctx context.Context, n int) ([]byte, error) {
	return d.fifo.HostReceive(ctx, n)
}

// HIDReport returns the current configuration report.
func (d *Device) HIDReport() HIDReport {
	return d.settings.CreateReport()
}

// SetHIDReport hands a report received from the host to the main loop.
func (d *Device) SetHIDReport(ctx context.Context, r HIDReport) error {
	req := hidRequest{report: r, done: make(chan error, 1)}
	select {
	case d.hid <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current state of the device
func (d *Device) State() DeviceState {
	switch {
	case d == nil || d.stopped.Load():
		return DeviceStateStopped
	case d.halted.Load() || d.arb.Snapshot().Halted:
		return DeviceStateHalted
	case d.running.Load():
		return DeviceStateRunning
	}
	return DeviceStateCreated
}

// DeviceInfo contains comprehensive information about a device
type DeviceInfo struct {
	State           DeviceState `json:"state"`
	Mode            string      `json:"mode"`
	FileOpen        bool        `json:"file_open"`
	FileName        string      `json:"file_name,omitempty"`
	Fault           string      `json:"fault,omitempty"`
	Generation      uint64      `json:"generation"`
	Blocks          uint32      `json:"blocks"`
	BlockSize       int         `json:"block_size"`
	Size            int64       `json:"size"`
	LoggingInterval uint8       `json:"logging_interval"`
	Records         uint64      `json:"records"`
	Suppressed      bool        `json:"suppressed"`
}

// Info returns comprehensive information about the device
func (d *Device) Info() DeviceInfo {
	if d == nil {
		return DeviceInfo{}
	}
	snap := d.arb.Snapshot()
	ws := d.writer.Stats()
	info := DeviceInfo{
		State:           d.State(),
		Mode:            snap.Mode.String(),
		FileOpen:        snap.FileOpen,
		FileName:        snap.FileName,
		Generation:      snap.Generation,
		BlockSize:       BlockSize,
		Size:            d.Medium.Size(),
		LoggingInterval: d.settings.Interval(),
		Records:         ws.Records,
		Suppressed:      ws.Suppressed,
	}
	info.Blocks = uint32(info.Size / BlockSize)
	if snap.Fault != arbiter.FaultNone {
		info.Fault = snap.Fault.String()
	}
	return info
}

// Metrics returns the live metrics for the device
func (d *Device) Metrics() *Metrics {
	if d == nil {
		return nil
	}
	return d.metrics
}

// MetricsSnapshot returns a point-in-time snapshot of device metrics
func (d *Device) MetricsSnapshot() MetricsSnapshot {
	if d == nil || d.metrics == nil {
		return MetricsSnapshot{}
	}
	return d.metrics.Snapshot()
}

// Close flushes and closes the log file and releases the medium. Run
// must have returned first.
func (d *Device) Close() error {
	if d == nil {
		return ErrInvalidParameters
	}
	if !d.stopped.CompareAndSwap(false, true) {
		return nil
	}
	d.metrics.Stop()

	var err error
	err = multierr.Append(err, d.arb.Close())
	err = multierr.Append(err, d.Medium.Flush())
	err = multierr.Append(err, d.Medium.Close())
	if err != nil {
		return WrapError("CLOSE", err)
	}
	if d.printer != nil {
		d.printer.Printf("Logger device closed")
	}
	return nil
}

// staticLink is a link that never changes state
type staticLink bool

func (s staticLink) Configured() bool { return bool(s) }
