package settings

import "fmt"

// ReportSize is the length of the HID report payload.
const ReportSize = 1

// Report is the HID report exchanged with the configuration utility.
type Report struct {
	LoggingInterval uint8
}

// MarshalBinary implements encoding.BinaryMarshaler
func (r Report) MarshalBinary() ([]byte, error) {
	return []byte{r.LoggingInterval}, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler
func (r *Report) UnmarshalBinary(data []byte) error {
	if len(data) < ReportSize {
		return fmt.Errorf("report too short: %d bytes", len(data))
	}
	r.LoggingInterval = data[0]
	return nil
}

// CreateReport fills a report from the runtime setting.
func (s *Settings) CreateReport() Report {
	return Report{LoggingInterval: s.Interval()}
}

// ProcessReport applies a report received from the host. The setting is
// persisted only when the value differs.
func (s *Settings) ProcessReport(r Report) error {
	return s.SetInterval(r.LoggingInterval)
}
