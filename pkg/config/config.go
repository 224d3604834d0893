// Package config loads the driveboard backend's INI configuration with
// gopkg.in/ini.v1, mapping each section onto a plain struct with `ini`
// struct tags, the library's documented MapTo idiom.
package config

import (
	"fmt"

	"gopkg.in/ini.v1"
)

// Driveboard holds the serial connection parameters of the [driveboard]
// section.
type Driveboard struct {
	Port              string `ini:"port"`
	Baudrate          int    `ini:"baudrate"`
	OpenTimeoutMs     int    `ini:"open_timeout_ms"`
	GreetingTimeoutMs int    `ini:"greeting_timeout_ms"`
}

// Backend holds the process-level settings of the [backend] section: the
// transport surfaces to bring up and where to bind them.
type Backend struct {
	ListenAddress string `ini:"listen_address"`
	HTTPPort      int    `ini:"http_port"`
	WSPort        int    `ini:"ws_port"`
	TCPPort       int    `ini:"tcp_port"`
}

// Original carries settings inherited from the upstream project's own
// [original] section (working directory for job files, default job
// name). They are parsed and defaulted but not read by any other package.
type Original struct {
	WorkDir    string `ini:"workdir"`
	DefaultJob string `ini:"default_job"`
}

// Config is the fully-parsed configuration document.
type Config struct {
	Driveboard Driveboard `ini:"driveboard"`
	Backend    Backend    `ini:"backend"`
	Original   Original   `ini:"original"`
}

// Default returns the configuration a fresh install ships with.
func Default() Config {
	return Config{
		Driveboard: Driveboard{
			Port:              "/dev/ttyUSB0",
			Baudrate:          57600,
			OpenTimeoutMs:     3000,
			GreetingTimeoutMs: 2000,
		},
		Backend: Backend{
			ListenAddress: "0.0.0.0",
			HTTPPort:      4444,
			WSPort:        4445,
			TCPPort:       4446,
		},
		Original: Original{
			WorkDir:    ".",
			DefaultJob: "untitled",
		},
	}
}

// Load reads and parses an INI file at path, starting from Default and
// overriding whatever sections and keys the file provides.
func Load(path string) (Config, error) {
	cfg := Default()

	f, err := ini.Load(path)
	if err != nil {
		return cfg, fmt.Errorf("loading config %s: %w", path, err)
	}

	if err := f.Section("driveboard").MapTo(&cfg.Driveboard); err != nil {
		return cfg, fmt.Errorf("parsing [driveboard]: %w", err)
	}
	if err := f.Section("backend").MapTo(&cfg.Backend); err != nil {
		return cfg, fmt.Errorf("parsing [backend]: %w", err)
	}
	if err := f.Section("original").MapTo(&cfg.Original); err != nil {
		return cfg, fmt.Errorf("parsing [original]: %w", err)
	}
	return cfg, nil
}
