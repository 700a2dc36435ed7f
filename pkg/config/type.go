package config

import (
	"strconv"
	"time"
)

type DashboardAPIConfig struct {
	// Serial port of the D-LOGG, e.g. /dev/ttyUSB0 (Linux) or COM4
	// (Windows). Overridable at runtime via the DLOGG_PORT env var.
	SerialDevice string `toml:"serial_device"`
	Baudrate     uint   `toml:"baudrate"`

	ListenAddress string `toml:"listen_address"`
	ListenPort    int    `toml:"listen_port"`

	PollIntervalMs int `toml:"poll_interval_ms"`
	ReadTimeoutMs  int `toml:"read_timeout_ms"`

	// Display label per controller input number (1..16). Inputs without
	// an entry show up as T<n>.
	SensorLabels map[string]string `toml:"sensor_labels"`
}

type CollectorConfig struct {
	DashboardAPIHost string `toml:"dashboard_api_host"`
	TLSEnabled       bool   `toml:"tls_enabled"`
}

func (c *DashboardAPIConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

func (c *DashboardAPIConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutMs) * time.Millisecond
}

// SensorLabelTable converts the TOML string-keyed label table to the
// integer-keyed mapping the snapshot builder expects. Unparseable keys are
// dropped.
func (c *DashboardAPIConfig) SensorLabelTable() map[int]string {
	table := make(map[int]string, len(c.SensorLabels))
	for key, label := range c.SensorLabels {
		index, err := strconv.Atoi(key)
		if err != nil || index < 1 {
			continue
		}
		table[index] = label
	}
	return table
}
