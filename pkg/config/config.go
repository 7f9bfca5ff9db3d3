// Package config loads server configuration from an optional YAML file with
// environment variable overrides. Every field has a working default so the
// server starts with no file at all.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full server configuration.
type Config struct {
	// ListenAddr is the HTTP listen address, e.g. ":5000".
	ListenAddr string `yaml:"listen_addr"`

	// DataDir holds the run ledger files.
	DataDir string `yaml:"data_dir"`

	// LoginURL is the target application's login page.
	LoginURL string `yaml:"login_url"`

	// OrdersURL is the manufacturing orders list view.
	OrdersURL string `yaml:"orders_url"`

	// DashboardURL is the compliance dashboard labels link to.
	DashboardURL string `yaml:"dashboard_url"`

	// ComplianceAPIURL is the serial verification endpoint.
	ComplianceAPIURL string `yaml:"compliance_api_url"`

	// Headless controls whether the browser runs without a display.
	Headless bool `yaml:"headless"`
}

// Default returns the configuration used when no file or overrides are
// present.
func Default() Config {
	return Config{
		ListenAddr:       ":5000",
		DataDir:          "data",
		LoginURL:         "https://hexmodal.odoo.com/web/login",
		OrdersURL:        "https://hexmodal.odoo.com/web#action=510&model=mrp.production&view_type=list&cids=1&menu_id=324",
		DashboardURL:     "https://dashboard.hexmodal.com",
		ComplianceAPIURL: "https://dashboard.hexmodal.com/api/lights/dt/elights-list/",
		Headless:         true,
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (skipped when path is empty or the file does not exist), then environment
// overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// No file: defaults plus environment.
		case err != nil:
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString(&c.ListenAddr, "MARATHON_LISTEN_ADDR")
	setString(&c.DataDir, "MARATHON_DATA_DIR")
	setString(&c.LoginURL, "MARATHON_LOGIN_URL")
	setString(&c.OrdersURL, "MARATHON_ORDERS_URL")
	setString(&c.DashboardURL, "MARATHON_DASHBOARD_URL")
	setString(&c.ComplianceAPIURL, "MARATHON_COMPLIANCE_API_URL")

	// PORT is honored for platform deployments that inject it.
	if v := os.Getenv("PORT"); v != "" {
		c.ListenAddr = ":" + v
	}
	if v := os.Getenv("MARATHON_HEADLESS"); v != "" {
		c.Headless = v != "0" && v != "false"
	}
}

// Validate rejects configurations that cannot serve.
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("config: listen_addr is required")
	}
	if c.DataDir == "" {
		return fmt.Errorf("config: data_dir is required")
	}
	if c.LoginURL == "" || c.OrdersURL == "" {
		return fmt.Errorf("config: login_url and orders_url are required")
	}
	if c.DashboardURL == "" {
		return fmt.Errorf("config: dashboard_url is required")
	}
	return nil
}
