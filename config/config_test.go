package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "000102030405060708090a0b0c0d0e0f"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("METER2CAR_CONFIG", "")
	t.Setenv("METER2CAR_KEY", testKey)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, testKey, cfg.Key)
	assert.Equal(t, "/dev/serial0", cfg.Meter.Device)
	assert.Equal(t, 115200, cfg.Meter.Baud)
	assert.Equal(t, 10*time.Second, cfg.Meter.ReadTimeout)
	assert.Equal(t, 2, cfg.Meter.Pin)
	assert.Equal(t, 8, cfg.Meter.MaxFrames)
	assert.Equal(t, 6, cfg.Charger.MinAmpere)
	assert.Equal(t, 14, cfg.Charger.MaxAmpere)
	assert.Equal(t, time.Minute, cfg.Control.Period)
	assert.Equal(t, 5*time.Second, cfg.Control.SettleDelay)
	assert.Equal(t, 1500, cfg.Control.TurnOn)
	assert.Equal(t, 1200, cfg.Control.TurnOff)
	assert.Equal(t, 4, cfg.Control.OffPolls)
	assert.Equal(t, 5, cfg.Control.Window)
	assert.Equal(t, 230, cfg.Control.Voltage)

	// The charger url has no default
	assert.Error(t, cfg.Validate())
	cfg.Charger.URL = "http://192.168.1.50"
	assert.NoError(t, cfg.Validate())
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meter2car.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
charger:
  url: http://go-e.local
  max_ampere: 16
control:
  period: 30s
  turn_on: 2000
meter:
  device: /dev/ttyUSB0
  pin: 17
`), 0o600))

	t.Setenv("METER2CAR_KEY", testKey)
	t.Setenv("METER2CAR_CONTROL_TURN_ON", "1800")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "http://go-e.local", cfg.Charger.URL)
	assert.Equal(t, 16, cfg.Charger.MaxAmpere)
	assert.Equal(t, 30*time.Second, cfg.Control.Period)
	assert.Equal(t, 1800, cfg.Control.TurnOn)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Meter.Device)
	assert.Equal(t, 17, cfg.Meter.Pin)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Key:     testKey,
			Meter:   MeterConfig{Device: "/dev/serial0", Baud: 115200, Pin: 2, MaxFrames: 8},
			Charger: ChargerConfig{URL: "http://charger", MinAmpere: 6, MaxAmpere: 14},
			Control: ControlConfig{Period: time.Minute, TurnOn: 1500, TurnOff: 1200, OffPolls: 4, Window: 5, Voltage: 230},
		}
	}
	require.NoError(t, valid().Validate())

	for name, mod := range map[string]func(*Config){
		"no key":       func(c *Config) { c.Key = "" },
		"short key":    func(c *Config) { c.Key = "0001" },
		"bad auth key": func(c *Config) { c.AuthKey = "xyz" },
		"no url":       func(c *Config) { c.Charger.URL = "" },
		"bad scheme":   func(c *Config) { c.Charger.URL = "ftp://charger" },
		"ampere range": func(c *Config) { c.Charger.MinAmpere = 15 },
		"no device":    func(c *Config) { c.Meter.Device = "" },
		"max frames":   func(c *Config) { c.Meter.MaxFrames = 0 },
		"period":       func(c *Config) { c.Control.Period = 0 },
		"thresholds":   func(c *Config) { c.Control.TurnOff = 2000 },
		"window":       func(c *Config) { c.Control.Window = 0 },
		"voltage":      func(c *Config) { c.Control.Voltage = 0 },
		"off polls":    func(c *Config) { c.Control.OffPolls = 0 },
		"negative pin": func(c *Config) { c.Meter.Pin = -1 },
		"baud rate":    func(c *Config) { c.Meter.Baud = 0 },
	} {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mod(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestKeys(t *testing.T) {
	c := &Config{Key: testKey, AuthKey: "D0D1D2D3D4D5D6D7D8D9DADBDCDDDEDF"}
	key, auth, err := c.Keys()
	require.NoError(t, err)
	assert.Equal(t, byte(0x0f), key[15])
	assert.Len(t, auth, 16)
	assert.Equal(t, byte(0xd0), auth[0])

	c.AuthKey = ""
	_, auth, err = c.Keys()
	require.NoError(t, err)
	assert.Nil(t, auth)
}
