package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/viper"

	"hemtjan.st/meter2car/dlms"
)

const envPrefix = "METER2CAR"

// Config is the full process configuration.
type Config struct {
	// Key is the hex encoded global unicast encryption key of the meter
	Key string `mapstructure:"key"`
	// AuthKey is only needed if the meter authenticates its messages
	AuthKey string `mapstructure:"auth_key"`

	Meter   MeterConfig   `mapstructure:"meter"`
	Charger ChargerConfig `mapstructure:"charger"`
	Control ControlConfig `mapstructure:"control"`
	Publish PublishConfig `mapstructure:"publish"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type MeterConfig struct {
	Device      string        `mapstructure:"device"`
	Baud        int           `mapstructure:"baud"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// Pin is the BCM number of the wake pin
	Pin       int  `mapstructure:"pin"`
	LLC       bool `mapstructure:"llc"`
	MaxFrames int  `mapstructure:"max_frames"`
}

type ChargerConfig struct {
	URL       string        `mapstructure:"url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	MinAmpere int           `mapstructure:"min_ampere"`
	MaxAmpere int           `mapstructure:"max_ampere"`
}

type ControlConfig struct {
	Period      time.Duration `mapstructure:"period"`
	SettleDelay time.Duration `mapstructure:"settle_delay"`
	// Thresholds are in watts per phase
	TurnOn   int `mapstructure:"turn_on"`
	TurnOff  int `mapstructure:"turn_off"`
	OffPolls int `mapstructure:"off_polls"`
	Window   int `mapstructure:"window"`
	Voltage  int `mapstructure:"voltage"`
}

type PublishConfig struct {
	Enable bool   `mapstructure:"enable"`
	Topic  string `mapstructure:"topic"`
	Name   string `mapstructure:"name"`
}

type HTTPConfig struct {
	Enable bool   `mapstructure:"enable"`
	Addr   string `mapstructure:"addr"`
	Log    bool   `mapstructure:"log"`
}

// LumberjackConfig configures the rolling log file. No file is written
// without a filename.
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// Load reads the configuration from defaults, an optional file and the
// environment. If path is empty, METER2CAR_CONFIG is used, and failing that
// meter2car.yaml is looked up in the working directory and /etc/meter2car.
// The result is not validated.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = os.Getenv(envPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/meter2car")
		v.SetConfigName("meter2car")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("key", "")
	v.SetDefault("auth_key", "")

	v.SetDefault("meter.device", "/dev/serial0")
	v.SetDefault("meter.baud", 115200)
	v.SetDefault("meter.read_timeout", "10s")
	v.SetDefault("meter.pin", 2)
	v.SetDefault("meter.llc", false)
	v.SetDefault("meter.max_frames", 8)

	v.SetDefault("charger.url", "")
	v.SetDefault("charger.timeout", "10s")
	v.SetDefault("charger.min_ampere", 6)
	v.SetDefault("charger.max_ampere", 14)

	v.SetDefault("control.period", "60s")
	v.SetDefault("control.settle_delay", "5s")
	v.SetDefault("control.turn_on", 1500)
	v.SetDefault("control.turn_off", 1200)
	v.SetDefault("control.off_polls", 4)
	v.SetDefault("control.window", 5)
	v.SetDefault("control.voltage", 230)

	v.SetDefault("publish.enable", false)
	v.SetDefault("publish.topic", "sensor/electricity/meter2car")
	v.SetDefault("publish.name", "meter2car")

	v.SetDefault("http.enable", true)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.log", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.filename", "")
	v.SetDefault("logging.file.max_size", 10)
	v.SetDefault("logging.file.max_backups", 3)
	v.SetDefault("logging.file.max_age", 28)
	v.SetDefault("logging.file.compress", true)
}

// Validate checks the configuration for values the program cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if _, _, err := c.Keys(); err != nil {
		errs = append(errs, err)
	}

	if c.Charger.URL == "" {
		errs = append(errs, errors.New("charger url is required"))
	} else if u, err := url.Parse(c.Charger.URL); err != nil {
		errs = append(errs, fmt.Errorf("charger url: %w", err))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs = append(errs, fmt.Errorf("charger url: unsupported scheme %q", u.Scheme))
	}
	if c.Charger.MinAmpere < 1 || c.Charger.MinAmpere > c.Charger.MaxAmpere {
		errs = append(errs, fmt.Errorf("charger ampere range [%d, %d] is invalid", c.Charger.MinAmpere, c.Charger.MaxAmpere))
	}

	if c.Meter.Device == "" {
		errs = append(errs, errors.New("meter device is required"))
	}
	if c.Meter.Baud <= 0 {
		errs = append(errs, fmt.Errorf("meter baud rate %d is invalid", c.Meter.Baud))
	}
	if c.Meter.Pin < 0 {
		errs = append(errs, fmt.Errorf("meter pin %d is invalid", c.Meter.Pin))
	}
	if c.Meter.MaxFrames < 1 {
		errs = append(errs, errors.New("meter max_frames must be at least 1"))
	}

	if c.Control.Period <= 0 {
		errs = append(errs, errors.New("control period must be positive"))
	}
	if c.Control.TurnOff > c.Control.TurnOn {
		errs = append(errs, fmt.Errorf("turn off threshold %d is above turn on threshold %d", c.Control.TurnOff, c.Control.TurnOn))
	}
	if c.Control.OffPolls < 1 {
		errs = append(errs, errors.New("control off_polls must be at least 1"))
	}
	if c.Control.Window < 1 {
		errs = append(errs, errors.New("control window must be at least 1"))
	}
	if c.Control.Voltage <= 0 {
		errs = append(errs, errors.New("control voltage must be positive"))
	}

	return errors.Join(errs...)
}

// Keys parses the encryption and authentication keys.
func (c *Config) Keys() (dlms.Key, []byte, error) {
	if c.Key == "" {
		return dlms.Key{}, nil, fmt.Errorf("%s_KEY is required", envPrefix)
	}
	key, err := dlms.ParseKey(c.Key)
	if err != nil {
		return key, nil, fmt.Errorf("key: %w", err)
	}
	if c.AuthKey == "" {
		return key, nil, nil
	}
	auth, err := dlms.ParseKey(c.AuthKey)
	if err != nil {
		return key, nil, fmt.Errorf("auth key: %w", err)
	}
	return key, auth[:], nil
}
