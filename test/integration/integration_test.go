//go:build integration

package integration

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/go-msclog"
	"github.com/ehrlich-b/go-msclog/backend"
	"github.com/ehrlich-b/go-msclog/internal/fatfs"
	"github.com/ehrlich-b/go-msclog/internal/link"
	"github.com/ehrlich-b/go-msclog/internal/logging"
	"github.com/ehrlich-b/go-msclog/internal/logwriter"
	"github.com/ehrlich-b/go-msclog/internal/settings"
)

const imageSize = 64 << 20

func newImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "logger.img")
	require.NoError(t, backend.CreateImage(path, imageSize, nil))
	return path
}

func startDevice(t *testing.T, params msclog.Params) (*msclog.Device, func()) {
	t.Helper()
	device, err := msclog.New(context.Background(), params, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- device.Run(ctx) }()

	return device, func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("device did not stop")
		}
		assert.NoError(t, device.Close())
	}
}

// TestIntegrationLogSurvivesRestart logs to an image, restarts on the same
// image and checks that the second session appends to the next file while
// the persisted interval is kept.
func TestIntegrationLogSurvivesRestart(t *testing.T) {
	logging.SetDefault(logging.Nop())
	image := newImage(t)
	nv := settings.NewFileStore(filepath.Join(t.TempDir(), "nv"))

	params := func(fileNumber int) msclog.Params {
		p := msclog.DefaultParams(backend.NewFile(image, &backend.FileOptions{}))
		p.Link = link.NewStatic(false)
		p.Sampler = logwriter.Constant(18.25)
		p.NVStore = nv
		p.DefaultInterval = 1
		p.TickPeriod = 5 * time.Millisecond
		p.FileNumber = fileNumber
		return p
	}

	device, stop := startDevice(t, params(0))
	require.NoError(t, device.SetHIDReport(context.Background(), msclog.HIDReport{LoggingInterval: 2}))
	require.Eventually(t, func() bool { return device.Info().Records >= 3 },
		10*time.Second, 10*time.Millisecond)
	stop()

	device, stop = startDevice(t, params(1))
	assert.Equal(t, uint8(2), device.Info().LoggingInterval)
	require.Eventually(t, func() bool { return device.Info().Records >= 1 },
		10*time.Second, 10*time.Millisecond)
	assert.Equal(t, "F00002.csv", device.Info().FileName)
	stop()

	medium := backend.NewFile(image, &backend.FileOptions{})
	require.NoError(t, medium.Init(context.Background()))
	defer medium.Close()

	host := fatfs.New(medium, "", nil)
	require.NoError(t, host.Mount())
	for _, name := range []string{"F00001.csv", "F00002.csv"} {
		data, err := host.ReadFile(name)
		require.NoError(t, err, name)
		lines := strings.Split(strings.TrimSuffix(string(data), "\r\n"), "\r\n")
		require.NotEmpty(t, lines, name)
		for _, line := range lines {
			assert.True(t, strings.HasSuffix(line, ",18.25"), line)
		}
	}
}

// TestIntegrationHostWriteThenLog writes a block over the transport while
// attached, detaches and checks that logging resumes on the host-modified
// volume.
func TestIntegrationHostWriteThenLog(t *testing.T) {
	logging.SetDefault(logging.Nop())
	usb := link.NewStatic(false)

	p := msclog.DefaultParams(backend.NewFile(newImage(t), &backend.FileOptions{}))
	p.Link = usb
	p.DefaultInterval = 1
	p.TickPeriod = 5 * time.Millisecond
	p.Banks = 8

	device, stop := startDevice(t, p)
	defer stop()

	require.Eventually(t, func() bool { return device.Info().FileOpen }, 10*time.Second, 5*time.Millisecond)
	usb.Set(true)
	require.Eventually(t, func() bool { return !device.Info().FileOpen }, 5*time.Second, time.Millisecond)

	capacity, err := device.Capacity()
	require.NoError(t, err)
	last := capacity.Blocks - 1

	ctx := context.Background()
	block := make([]byte, msclog.BlockSize)
	copy(block, "written by the host")
	res, err := device.Submit(ctx, msclog.Command{Op: msclog.OpWrite, LBA: last, Blocks: 1})
	require.NoError(t, err)
	require.NoError(t, device.HostSend(ctx, block))
	r := <-res
	require.NoError(t, r.Err)
	assert.Equal(t, 1, r.Done)

	res, err = device.Submit(ctx, msclog.Command{Op: msclog.OpRead, LBA: last, Blocks: 1})
	require.NoError(t, err)
	got, err := device.HostReceive(ctx, msclog.BlockSize)
	require.NoError(t, err)
	require.NoError(t, (<-res).Err)
	assert.Equal(t, block, got)

	before := device.Info().Generation
	usb.Set(false)
	require.Eventually(t, func() bool {
		i := device.Info()
		return i.FileOpen && i.Generation > before
	}, 5*time.Second, time.Millisecond)
}
