package logwriter

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Sampler reads the current temperature in degrees Celsius.
type Sampler interface {
	Sample() (float64, error)
}

// SamplerFunc adapts a function to Sampler.
type SamplerFunc func() (float64, error)

// Sample implements Sampler
func (f SamplerFunc) Sample() (float64, error) { return f() }

// Constant always reports the same reading.
type Constant float64

// Sample implements Sampler
func (c Constant) Sample() (float64, error) { return float64(c), nil }

// ThermalZone reads a Linux thermal zone, which reports millidegrees.
type ThermalZone struct {
	Path string
}

// DefaultThermalZone is the first thermal zone of the host.
const DefaultThermalZone = "/sys/class/thermal/thermal_zone0/temp"

// Sample implements Sampler
func (z ThermalZone) Sample() (float64, error) {
	path := z.Path
	if path == "" {
		path = DefaultThermalZone
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	milli, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	return float64(milli) / 1000, nil
}
