package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/RubenSchlonsak/D-LOGG-Dashboard-Solarthermie/pkg/pathing"
)

var (
	ActiveDashboardAPIConfig *DashboardAPIConfig
	ActiveCollectorConfig    *CollectorConfig
)

// defaultSensorLabels is the wiring of this installation's UVR1611 inputs.
// Kept as config defaults so a different plant just edits the TOML file.
func defaultSensorLabels() map[string]string {
	return map[string]string{
		"1":  "Temperature Sonnenkollektor",
		"2":  "Puffer oben 1",
		"3":  "Puffer unten 1",
		"4":  "Warmwasser",
		"8":  "Puffer oben 2",
		"9":  "Puffer mitte",
		"10": "Kessel Rücklauf",
		"13": "Holzkessel",
		"14": "Kessel Vorlauf",
		"16": "Puffer unten 2",
	}
}

func LoadDashboardAPIConfig() error {
	configPath := filepath.Join(pathing.GetConfigDir(), "dashboard_api.toml")

	cfg, err := loadDashboardAPIConfig(configPath)
	if err != nil {
		return err
	}

	// DLOGG_PORT wins over the config file, matching the original setup
	// scripts on the Pi.
	if port := os.Getenv("DLOGG_PORT"); port != "" {
		cfg.SerialDevice = port
	}

	ActiveDashboardAPIConfig = cfg
	return nil
}

func loadDashboardAPIConfig(configPath string) (*DashboardAPIConfig, error) {
	// Create default if not exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := &DashboardAPIConfig{
			SerialDevice:   "/dev/ttyUSB0",
			Baudrate:       115200,
			ListenAddress:  "0.0.0.0",
			ListenPort:     5000,
			PollIntervalMs: 2000,
			ReadTimeoutMs:  2000,
			SensorLabels:   defaultSensorLabels(),
		}
		if err := writeConfig(configPath, cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	var cfg DashboardAPIConfig
	if _, err := toml.DecodeFile(configPath, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func LoadCollectorConfig() error {
	configPath := filepath.Join(pathing.GetConfigDir(), "dlogg_collector.toml")

	cfg, err := loadCollectorConfig(configPath)
	if err != nil {
		return err
	}
	ActiveCollectorConfig = cfg
	return nil
}

func loadCollectorConfig(configPath string) (*CollectorConfig, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := &CollectorConfig{
			DashboardAPIHost: "localhost:5000",
			TLSEnabled:       false,
		}
		if err := writeConfig(configPath, cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	var cfg CollectorConfig
	if _, err := toml.DecodeFile(configPath, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func writeConfig(configPath string, cfg any) error {
	cfgFile, err := os.Create(configPath)
	if err != nil {
		return err
	}
	defer cfgFile.Close()
	return toml.NewEncoder(cfgFile).Encode(cfg)
}
