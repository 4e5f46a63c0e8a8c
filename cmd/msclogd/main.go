package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/dustin/go-humanize"
	flag "github.com/spf13/pflag"

	"github.com/ehrlich-b/go-msclog"
	"github.com/ehrlich-b/go-msclog/backend"
	"github.com/ehrlich-b/go-msclog/internal/arbiter"
	"github.com/ehrlich-b/go-msclog/internal/config"
	"github.com/ehrlich-b/go-msclog/internal/link"
	"github.com/ehrlich-b/go-msclog/internal/logging"
	"github.com/ehrlich-b/go-msclog/internal/logwriter"
	"github.com/ehrlich-b/go-msclog/internal/settings"
	"github.com/ehrlich-b/go-msclog/internal/version"
)

func main() {
	var (
		configPath  = flag.StringP("config", "c", "msclogd.yaml", "Configuration file")
		image       = flag.String("image", "", "Disk image backing the medium")
		size        = flag.String("size", "", "Size of a newly created image (e.g., 64MiB)")
		sensor      = flag.String("sensor", "", "Thermal zone file to sample")
		sentinel    = flag.String("link", "", "Sentinel file present while a host has the device configured")
		policy      = flag.String("policy", "", "Storage failure policy: fail-stop or wait-for-host")
		verbose     = flag.BoolP("verbose", "v", false, "Verbose output")
		showVersion = flag.Bool("version", false, "Print the version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Current())
		return
	}

	cfg, err := config.Load(*configPath, !flag.CommandLine.Changed("config"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	if *image != "" {
		cfg.Image = *image
	}
	if *size != "" {
		cfg.Size = *size
	}
	if *sensor != "" {
		cfg.Sensor = *sensor
	}
	if *sentinel != "" {
		cfg.LinkSentinel = *sentinel
	}
	if *policy != "" {
		cfg.HaltPolicy = *policy
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	// Set up logging
	logConfig := logging.DefaultConfig()
	logConfig.Level = logging.ParseLevel(cfg.Log.Level)
	logConfig.Format = cfg.Log.Format
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	haltPolicy, err := arbiter.ParsePolicy(cfg.HaltPolicy)
	if err != nil {
		logger.Error("invalid halt policy", "error", err)
		os.Exit(2)
	}

	if err := ensureImage(cfg, logger); err != nil {
		logger.Error("failed to prepare image", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var hostLink msclog.Link = link.NewStatic(false)
	if cfg.LinkSentinel != "" {
		w, err := link.NewWatcher(cfg.LinkSentinel, logger)
		if err != nil {
			logger.Error("failed to watch link sentinel", "path", cfg.LinkSentinel, "error", err)
			os.Exit(1)
		}
		defer w.Close()
		go func() {
			if err := w.Run(ctx); err != nil {
				logger.Error("link watcher stopped", "error", err)
			}
		}()
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case configured := <-w.Changes():
					logger.Info("host link changed", "configured", configured)
				}
			}
		}()
		hostLink = w
	}

	params := msclog.DefaultParams(backend.NewFile(cfg.Image, &backend.FileOptions{PowerOnDelay: cfg.PowerOnDelay}))
	params.Link = hostLink
	params.Sampler = logwriter.ThermalZone{Path: cfg.Sensor}
	params.NVStore = settings.NewFileStore(cfg.SettingsFile)
	params.DefaultInterval = cfg.LogInterval
	params.TickPeriod = cfg.TickPeriod
	params.MaxConsecutiveFailures = cfg.MaxFailures
	params.HaltPolicy = haltPolicy
	params.ChunkSize = cfg.Endpoint.ChunkSize
	params.BankSize = cfg.Endpoint.BankSize
	params.StreamTimeout = cfg.Endpoint.Timeout
	if cfg.LED != "" {
		params.Indicator = arbiter.NewLED(ctx, sysfsLED(cfg.LED, logger), true)
	}

	logger.Info("starting logger", "version", version.Version, "image", cfg.Image, "policy", haltPolicy.String())

	device, err := msclog.New(ctx, params, &msclog.Options{Logger: logger})
	if err != nil {
		logger.Error("failed to create device", "error", err)
		os.Exit(1)
	}
	defer func() {
		logger.Info("stopping device")
		if err := device.Close(); err != nil {
			logger.Error("error closing device", "error", err)
		} else {
			logger.Info("device stopped successfully")
		}
	}()

	info := device.Info()
	fmt.Printf("Medium: %s (%s, %d blocks)\n", cfg.Image, humanize.IBytes(uint64(info.Size)), info.Blocks)
	fmt.Printf("Logging every %d ticks of %s\n", info.LoggingInterval, cfg.TickPeriod)
	fmt.Printf("Send SIGUSR1 (kill -USR1 %d) to dump device state\n", os.Getpid())

	// SIGUSR1 dumps the device state and counters
	dumpCh := make(chan os.Signal, 1)
	signal.Notify(dumpCh, syscall.SIGUSR1)
	go func() {
		for range dumpCh {
			info := device.Info()
			snap := device.MetricsSnapshot()
			logger.Info("device state",
				"state", info.State,
				"mode", info.Mode,
				"file", info.FileName,
				"fault", info.Fault,
				"generation", info.Generation,
				"records", snap.Records,
				"record_failures", snap.RecordFailures,
				"skipped_ticks", snap.SkippedTicks,
				"read_blocks", snap.ReadBlocks,
				"write_blocks", snap.WriteBlocks)
		}
	}()

	runErr := make(chan error, 1)
	go func() { runErr <- device.Run(ctx) }()

	// Wait for signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("received shutdown signal")
	case err := <-runErr:
		if err != nil {
			logger.Error("device stopped", "error", err)
		}
		if errors.Is(err, msclog.ErrHalted) {
			// The indicator keeps blinking the fault code until the
			// operator stops the daemon.
			<-sigCh
		}
		cancel()
		return
	}

	cancel()
	select {
	case <-runErr:
	case <-time.After(1 * time.Second):
		logger.Info("shutdown timeout, closing anyway")
	}
}

// ensureImage creates the image when it does not exist yet.
func ensureImage(cfg *config.Config, logger *logging.Logger) error {
	if _, err := os.Stat(cfg.Image); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	size, err := cfg.SizeBytes()
	if err != nil {
		return err
	}
	logger.Info("creating image", "path", cfg.Image, "size", humanize.IBytes(uint64(size)))

	bar := pb.Full.Start64(size)
	bar.Set(pb.Bytes, true)
	defer bar.Finish()

	return backend.CreateImage(cfg.Image, size, func(w io.Writer) io.Writer {
		return bar.NewProxyWriter(w)
	})
}

// sysfsLED drives a /sys/class/leds brightness file.
func sysfsLED(path string, logger *logging.Logger) func(on bool) {
	return func(on bool) {
		v := []byte("0")
		if on {
			v = []byte("1")
		}
		if err := os.WriteFile(path, v, 0); err != nil {
			logger.Debug("led write failed", "path", path, "error", err)
		}
	}
}
