package config

import (
	"io/ioutil"
	"os"
	"time"

	"github.com/omnect/twin-agent/pkg/adu"
	"github.com/omnect/twin-agent/pkg/twin"
	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
)

const (
	// DefaultPath is where the agent looks for its configuration file.
	DefaultPath = "/etc/twin-agent/agent.toml"

	defaultSASTokenLifetime    = "1h"
	defaultIdentitydSocket     = "/run/aziot/identityd.sock"
	defaultKeydSocket          = "/run/aziot/keyd.sock"
	defaultInventoryStorageDir = "/"
)

// ClientType selects the identity of the hub client when it is provisioned
// by the identity service.
type ClientType = string

const (
	ClientTypeDevice ClientType = "device"
	ClientTypeModule ClientType = "module"
)

// Config is the agent configuration.
type Config struct {
	ADU       ADU       `toml:"adu"`
	Twin      Twin      `toml:"twin"`
	IoTHub    IoTHub    `toml:"iothub"`
	Inventory Inventory `toml:"inventory"`
	Metrics   Metrics   `toml:"metrics"`
}

// ADU locates the files describing the device to the device update service.
type ADU struct {
	ConfigPath     string `toml:"config_path"`
	SWVersionsPath string `toml:"sw_versions_path"`
}

// Twin tunes the twin synchronization loop.
type Twin struct {
	QueueCapacity int `toml:"queue_capacity"`
}

// IoTHub configures the hub client.
type IoTHub struct {
	ClientType       ClientType `toml:"client_type"`
	SASTokenLifetime string     `toml:"sas_token_lifetime"`
	IdentitydSocket  string     `toml:"identityd_socket"`
	KeydSocket       string     `toml:"keyd_socket"`
}

// Inventory controls how the device inventory is collected.
type Inventory struct {
	// Probe enables querying the running system. A nil value means enabled.
	Probe       *bool  `toml:"probe"`
	StoragePath string `toml:"storage_path"`
}

// Metrics configures the Prometheus scrape endpoint.
type Metrics struct {
	Listen string `toml:"listen"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads the configuration file at path. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	raw, err := ioutil.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read %s", path)
	}
	return Parse(raw)
}

// Parse decodes a TOML configuration document, applies defaults to unset
// values and validates the result.
func Parse(raw []byte) (*Config, error) {
	c := &Config{}
	if err := toml.Unmarshal(raw, c); err != nil {
		return nil, errors.Wrap(err, "cannot parse configuration")
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.ADU.ConfigPath == "" {
		c.ADU.ConfigPath = adu.DefaultConfigPath
	}
	if c.ADU.SWVersionsPath == "" {
		c.ADU.SWVersionsPath = adu.DefaultSWVersionsPath
	}
	if c.Twin.QueueCapacity == 0 {
		c.Twin.QueueCapacity = twin.DefaultQueueCapacity
	}
	if c.IoTHub.ClientType == "" {
		c.IoTHub.ClientType = ClientTypeDevice
	}
	if c.IoTHub.SASTokenLifetime == "" {
		c.IoTHub.SASTokenLifetime = defaultSASTokenLifetime
	}
	if c.IoTHub.IdentitydSocket == "" {
		c.IoTHub.IdentitydSocket = defaultIdentitydSocket
	}
	if c.IoTHub.KeydSocket == "" {
		c.IoTHub.KeydSocket = defaultKeydSocket
	}
	if c.Inventory.Probe == nil {
		probe := true
		c.Inventory.Probe = &probe
	}
	if c.Inventory.StoragePath == "" {
		c.Inventory.StoragePath = defaultInventoryStorageDir
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Twin.QueueCapacity < 1 {
		return errors.Errorf("twin.queue_capacity must be positive, got %d", c.Twin.QueueCapacity)
	}
	switch c.IoTHub.ClientType {
	case ClientTypeDevice, ClientTypeModule:
	default:
		return errors.Errorf("iothub.client_type %q is neither %q nor %q",
			c.IoTHub.ClientType, ClientTypeDevice, ClientTypeModule)
	}
	lifetime, err := time.ParseDuration(c.IoTHub.SASTokenLifetime)
	if err != nil {
		return errors.Wrap(err, "iothub.sas_token_lifetime")
	}
	if lifetime < time.Minute {
		return errors.Errorf("iothub.sas_token_lifetime must be at least a minute, got %s", lifetime)
	}
	return nil
}

// TokenLifetime returns the validated SAS token lifetime.
func (c *Config) TokenLifetime() time.Duration {
	d, err := time.ParseDuration(c.IoTHub.SASTokenLifetime)
	if err != nil {
		return time.Hour
	}
	return d
}

// ProbeInventory reports whether the running system should be probed for the
// device inventory.
func (c *Config) ProbeInventory() bool {
	return c.Inventory.Probe == nil || *c.Inventory.Probe
}
