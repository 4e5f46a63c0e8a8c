package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/flynn/hid"

	"github.com/ehrlich-b/go-msclog/internal/constants"
	"github.com/ehrlich-b/go-msclog/internal/settings"
)

var errNoDevice = errors.New("no temperature logger attached")

// device is an opened logger configuration interface.
type device struct {
	info *hid.DeviceInfo
	dev  hid.Device
}

// matches reports whether d is a logger configuration interface.
func matches(d *hid.DeviceInfo) bool {
	return d.VendorID == constants.VendorID &&
		d.ProductID == constants.ProductID &&
		d.UsagePage == constants.HIDUsagePage
}

func detect() (*device, error) {
	devices, err := hid.Devices()
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		if !matches(d) {
			continue
		}
		dev, err := d.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", d.Path, err)
		}
		return &device{info: d, dev: dev}, nil
	}
	return nil, errNoDevice
}

func (d *device) Close() {
	d.dev.Close()
}

// Get waits for the next input report.
func (d *device) Get(ctx context.Context, timeout time.Duration) (settings.Report, error) {
	var r settings.Report

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case data, ok := <-d.dev.ReadCh():
		if !ok {
			if err := d.dev.ReadError(); err != nil {
				return r, err
			}
			return r, errNoDevice
		}
		return r, r.UnmarshalBinary(data)
	case <-ctx.Done():
		return r, fmt.Errorf("waiting for report: %w", ctx.Err())
	}
}

// Set sends an output report. The interface has no numbered reports, so
// the payload is prefixed with report ID 0.
func (d *device) Set(r settings.Report) error {
	payload, err := r.MarshalBinary()
	if err != nil {
		return err
	}
	return d.dev.Write(append([]byte{0}, payload...))
}
