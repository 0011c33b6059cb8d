package config

import (
	"fmt"
	"net"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/dti-core/internal/capability"
	"github.com/nerrad567/dti-core/internal/device"
)

// Hardware driver modes.
const (
	HardwareModeTCP = "tcp"
	HardwareModeSim = "sim"
)

// Config is the root configuration of the DTI service.
// It is loaded from YAML and can be overridden by DTI_* environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Hardware  HardwareConfig  `yaml:"hardware"`
	Timing    TimingConfig    `yaml:"timing"`
	Limits    LimitsConfig    `yaml:"limits"`

	// CapabilitiesFile is the TOML instrument table. Empty keeps the defaults.
	CapabilitiesFile string `yaml:"capabilities_file"`
}

// SiteConfig describes the observatory.
type SiteConfig struct {
	ID        string  `yaml:"id"`
	Name      string  `yaml:"name"`
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
	Altitude  float64 `yaml:"altitude"`
}

// DatabaseConfig contains the journal database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"` // seconds

	// RetentionDays prunes journal rows older than this. 0 keeps everything.
	RetentionDays int `yaml:"retention_days"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings, in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"` // seconds
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains rotating file settings. Sizes are megabytes,
// ages are days.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// SchedulerConfig locates the scheduler process.
type SchedulerConfig struct {
	Host                 string        `yaml:"host"`
	Port                 int           `yaml:"port"`
	ConnectTimeout       time.Duration `yaml:"connect_timeout"`
	ReconnectInterval    time.Duration `yaml:"reconnect_interval"`
	MaxReconnectInterval time.Duration `yaml:"max_reconnect_interval"`
	QueueSize            int           `yaml:"queue_size"`
}

// Address returns host:port.
func (s SchedulerConfig) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// HardwareConfig selects the hardware drivers.
type HardwareConfig struct {
	// Mode is "tcp" for the real controllers or "sim" for the in-process model.
	Mode string `yaml:"mode"`

	Dome      EndpointConfig `yaml:"dome"`
	Telescope EndpointConfig `yaml:"telescope"`

	// PollInterval is the status request period of the TCP drivers.
	PollInterval time.Duration `yaml:"poll_interval"`

	// SimMotionDelay is how long simulated motion takes.
	SimMotionDelay time.Duration `yaml:"sim_motion_delay"`
}

// EndpointConfig is one hardware controller.
type EndpointConfig struct {
	Address        string        `yaml:"address"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// TimingConfig holds per-device fail-timeouts and instrument delays.
type TimingConfig struct {
	ShutterTimeout     time.Duration `yaml:"shutter_timeout"`
	DropoutTimeout     time.Duration `yaml:"dropout_timeout"`
	RotationTimeout    time.Duration `yaml:"rotation_timeout"`
	MirrorTimeout      time.Duration `yaml:"mirror_timeout"`
	WheelTimeout       time.Duration `yaml:"wheel_timeout"`
	InstShutterTimeout time.Duration `yaml:"instrument_shutter_timeout"`
	FocusTimeout       time.Duration `yaml:"focus_timeout"`
	TelescopeTimeout   time.Duration `yaml:"telescope_timeout"`
	EHTStabilize       time.Duration `yaml:"eht_stabilize"`
	InstPowerUp        time.Duration `yaml:"instrument_power_up"`
	FocusStallTimeout  time.Duration `yaml:"focus_stall_timeout"`
}

// LimitsConfig holds the telescope soft limits and park positions.
type LimitsConfig struct {
	HAMin             float64 `yaml:"ha_min"`
	HAMax             float64 `yaml:"ha_max"`
	DecMin            float64 `yaml:"dec_min"`
	DecMax            float64 `yaml:"dec_max"`
	AltitudeMin       float64 `yaml:"altitude_min"`
	PointingTolerance float64 `yaml:"pointing_tolerance"`
	DomeTolerance     float64 `yaml:"dome_tolerance"`
	DomeParkAzimuth   float64 `yaml:"dome_park_azimuth"`
	ParkHourAngle     float64 `yaml:"park_hour_angle"`
	ParkDec           float64 `yaml:"park_dec"`
	DomeAutoTrack     bool    `yaml:"dome_auto_track"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values
//  2. YAML file values
//  3. DTI_* environment variables
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If the file cannot be read or parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// defaultConfig returns the values used for anything the file leaves out.
func defaultConfig() *Config {
	d := device.DefaultConfig()
	t, l := d.Timing, d.Limits

	return &Config{
		Site: SiteConfig{
			ID:   "dti-001",
			Name: "Observatory",
		},
		Database: DatabaseConfig{
			Path:          "./data/dti.db",
			WALMode:       true,
			BusyTimeout:   5,
			RetentionDays: 90,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "dti-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			Bucket:        "dti",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				Path:       "./logs/dti.log",
				MaxSize:    50,
				MaxBackups: 5,
				MaxAge:     30,
				Compress:   true,
			},
		},
		Scheduler: SchedulerConfig{
			Host:                 "localhost",
			Port:                 7300,
			ConnectTimeout:       10 * time.Second,
			ReconnectInterval:    2 * time.Second,
			MaxReconnectInterval: time.Minute,
			QueueSize:            32,
		},
		Hardware: HardwareConfig{
			Mode:           HardwareModeTCP,
			Dome:           EndpointConfig{Address: "localhost:7310"},
			Telescope:      EndpointConfig{Address: "localhost:7311"},
			PollInterval:   time.Second,
			SimMotionDelay: 5 * time.Second,
		},
		Timing: TimingConfig{
			ShutterTimeout:     t.ShutterTimeout,
			DropoutTimeout:     t.DropoutTimeout,
			RotationTimeout:    t.RotationTimeout,
			MirrorTimeout:      t.MirrorTimeout,
			WheelTimeout:       t.WheelTimeout,
			InstShutterTimeout: t.InstShutterTimeout,
			FocusTimeout:       t.FocusTimeout,
			TelescopeTimeout:   t.TelescopeTimeout,
			EHTStabilize:       t.EHTStabilize,
			InstPowerUp:        t.InstPowerUp,
			FocusStallTimeout:  t.FocusStallTimeout,
		},
		Limits: LimitsConfig{
			HAMin:             l.HAMin,
			HAMax:             l.HAMax,
			DecMin:            l.DecMin,
			DecMax:            l.DecMax,
			AltitudeMin:       l.AltitudeMin,
			PointingTolerance: l.PointingTolerance,
			DomeTolerance:     l.DomeTolerance,
			DomeParkAzimuth:   l.DomeParkAzimuth,
			ParkHourAngle:     l.ParkHourAngle,
			ParkDec:           l.ParkDec,
			DomeAutoTrack:     d.AutoTrack,
		},
	}
}

// applyEnvOverrides applies DTI_SECTION_KEY environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DTI_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("DTI_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("DTI_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("DTI_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("DTI_INFLUXDB_URL"); v != "" {
		cfg.InfluxDB.URL = v
	}
	if v := os.Getenv("DTI_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("DTI_SCHEDULER_HOST"); v != "" {
		cfg.Scheduler.Host = v
	}
	if v := os.Getenv("DTI_SCHEDULER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Scheduler.Port = port
		}
	}

	if v := os.Getenv("DTI_HARDWARE_MODE"); v != "" {
		cfg.Hardware.Mode = v
	}
	if v := os.Getenv("DTI_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration and reports every problem at once.
//
// Returns:
//   - error: Description of all validation failures, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}
	if c.Site.Latitude < -90 || c.Site.Latitude > 90 {
		errs = append(errs, "site.latitude must be between -90 and 90")
	}
	if c.Site.Longitude < -180 || c.Site.Longitude > 180 {
		errs = append(errs, "site.longitude must be between -180 and 180")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	if c.Scheduler.Host == "" {
		errs = append(errs, "scheduler.host is required")
	}
	if c.Scheduler.Port < 1 || c.Scheduler.Port > 65535 {
		errs = append(errs, "scheduler.port must be between 1 and 65535")
	}

	switch c.Hardware.Mode {
	case HardwareModeTCP:
		if c.Hardware.Dome.Address == "" || c.Hardware.Telescope.Address == "" {
			errs = append(errs, "hardware.dome.address and hardware.telescope.address are required in tcp mode")
		}
	case HardwareModeSim:
	default:
		errs = append(errs, fmt.Sprintf("hardware.mode must be %q or %q", HardwareModeTCP, HardwareModeSim))
	}

	for name, d := range map[string]time.Duration{
		"shutter_timeout":            c.Timing.ShutterTimeout,
		"dropout_timeout":            c.Timing.DropoutTimeout,
		"rotation_timeout":           c.Timing.RotationTimeout,
		"mirror_timeout":             c.Timing.MirrorTimeout,
		"wheel_timeout":              c.Timing.WheelTimeout,
		"instrument_shutter_timeout": c.Timing.InstShutterTimeout,
		"focus_timeout":              c.Timing.FocusTimeout,
		"telescope_timeout":          c.Timing.TelescopeTimeout,
	} {
		if d <= 0 {
			errs = append(errs, "timing."+name+" must be positive")
		}
	}

	l := c.Limits
	if l.HAMin >= l.HAMax {
		errs = append(errs, "limits.ha_min must be below limits.ha_max")
	}
	if l.DecMin >= l.DecMax || l.DecMin < -90 || l.DecMax > 90 {
		errs = append(errs, "limits.dec_min and limits.dec_max must be ordered within [-90, 90]")
	}
	if l.DomeTolerance <= 0 || l.DomeTolerance >= 180 {
		errs = append(errs, "limits.dome_tolerance must be between 0 and 180")
	}

	if len(errs) > 0 {
		slices.Sort(errs)
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// DeviceConfig builds the controller configuration from this file and the
// instrument capability tables.
func (c *Config) DeviceConfig(caps capability.Tables) device.Config {
	t, l := c.Timing, c.Limits
	return device.Config{
		Timing: device.Timing{
			ShutterTimeout:     t.ShutterTimeout,
			DropoutTimeout:     t.DropoutTimeout,
			RotationTimeout:    t.RotationTimeout,
			MirrorTimeout:      t.MirrorTimeout,
			WheelTimeout:       t.WheelTimeout,
			InstShutterTimeout: t.InstShutterTimeout,
			FocusTimeout:       t.FocusTimeout,
			TelescopeTimeout:   t.TelescopeTimeout,
			EHTStabilize:       t.EHTStabilize,
			InstPowerUp:        t.InstPowerUp,
			FocusStallTimeout:  t.FocusStallTimeout,
		},
		Limits: device.Limits{
			HAMin:             l.HAMin,
			HAMax:             l.HAMax,
			DecMin:            l.DecMin,
			DecMax:            l.DecMax,
			AltitudeMin:       l.AltitudeMin,
			PointingTolerance: l.PointingTolerance,
			DomeTolerance:     l.DomeTolerance,
			DomeParkAzimuth:   l.DomeParkAzimuth,
			ParkHourAngle:     l.ParkHourAngle,
			ParkDec:           l.ParkDec,
		},
		Site: device.Site{
			Name:      c.Site.Name,
			Latitude:  c.Site.Latitude,
			Longitude: c.Site.Longitude,
			Altitude:  c.Site.Altitude,
		},
		Filters:   caps.Filters,
		Apertures: caps.Apertures,
		EHTVolts:  caps.EHTVolts,
		CCD: device.CCD{
			Width:      caps.CCD.Width,
			Height:     caps.CCD.Height,
			PixelScale: caps.CCD.PixelScale,
		},
		AutoTrack: l.DomeAutoTrack,
	}
}
