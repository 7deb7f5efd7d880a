package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment variables that override file keys.
const EnvPrefix = "TRACKER"

// MaxSensors is the number of sensor slots on one tracker board.
const MaxSensors = 2

// SensorConfig describes one IMU on the shared I2C bus.
type SensorConfig struct {
	Address     uint16
	IntPin      string // empty: polled
	Type        string // BNO080, BNO085, BNO086
	RotationDeg float64
}

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker   string
	MQTTClientID string
	TopicPrefix  string

	// Transport: "mqtt" or "serial"
	Transport  string
	SerialPort string
	SerialBaud int

	// IMU Hardware
	I2CBus  string
	Sensors []SensorConfig

	// Forwarding policy
	MagnetometerAllTheTime bool
	MagnetometerCorrection bool
	ARVRStabilization      bool
	OptimizeUpdates        bool
	DedupEpsilon           float64

	// LEDs
	LEDPin            string
	CalibratingLEDPin string

	// Timing
	PollInterval int // milliseconds

	// Web Server
	WebServerPort int

	MockSensors bool
}

var keys = []string{
	"mqtt_broker", "mqtt_client_id", "mqtt_topic_prefix",
	"transport", "serial_port", "serial_baud",
	"i2c_bus",
	"sensor0_addr", "sensor0_int_pin", "sensor0_type", "sensor0_rotation_deg",
	"sensor1_addr", "sensor1_int_pin", "sensor1_type", "sensor1_rotation_deg",
	"use_magnetometer_all_the_time", "use_magnetometer_correction",
	"use_arvr_stabilization", "optimize_updates", "dedup_epsilon",
	"led_pin", "calibrating_led_pin",
	"poll_interval",
	"web_server_port",
	"mock_sensors",
}

// Package-level state for the process-wide configuration. InitGlobal sets
// it once, Get reads it.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// NewViper returns a viper instance with defaults and environment
// overrides set up. Callers may bind flags before Load.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("mqtt_client_id", "inertial-tracker")
	v.SetDefault("mqtt_topic_prefix", "tracker")
	v.SetDefault("transport", "mqtt")
	v.SetDefault("serial_baud", 115200)
	v.SetDefault("sensor0_addr", "0x4A")
	v.SetDefault("sensor0_type", "BNO085")
	v.SetDefault("sensor1_type", "BNO085")
	v.SetDefault("use_magnetometer_all_the_time", false)
	v.SetDefault("use_magnetometer_correction", false)
	v.SetDefault("use_arvr_stabilization", true)
	v.SetDefault("optimize_updates", true)
	v.SetDefault("dedup_epsilon", 1e-6)
	v.SetDefault("poll_interval", 10)
	v.SetDefault("web_server_port", 8080)
	v.SetDefault("mock_sensors", false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads a KEY=VALUE configuration file into v and returns the
// validated Config. An empty path loads only defaults and environment.
func Load(v *viper.Viper, configPath string) (*Config, error) {
	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	known := make(map[string]bool, len(keys))
	for _, k := range keys {
		known[k] = true
	}
	var unknown []string
	for _, k := range v.AllKeys() {
		if !known[k] {
			unknown = append(unknown, strings.ToUpper(k))
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("unknown config keys: %s", strings.Join(unknown, ", "))
	}

	cfg := &Config{
		MQTTBroker:        v.GetString("mqtt_broker"),
		MQTTClientID:      v.GetString("mqtt_client_id"),
		TopicPrefix:       v.GetString("mqtt_topic_prefix"),
		Transport:         strings.ToLower(v.GetString("transport")),
		SerialPort:        v.GetString("serial_port"),
		I2CBus:            v.GetString("i2c_bus"),
		LEDPin:            v.GetString("led_pin"),
		CalibratingLEDPin: v.GetString("calibrating_led_pin"),
	}
	if cfg.CalibratingLEDPin == "" {
		cfg.CalibratingLEDPin = cfg.LEDPin
	}

	var err error
	if cfg.SerialBaud, err = getInt(v, "serial_baud"); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = getInt(v, "poll_interval"); err != nil {
		return nil, err
	}
	if cfg.WebServerPort, err = getInt(v, "web_server_port"); err != nil {
		return nil, err
	}
	if cfg.DedupEpsilon, err = getFloat(v, "dedup_epsilon"); err != nil {
		return nil, err
	}
	for key, dst := range map[string]*bool{
		"use_magnetometer_all_the_time": &cfg.MagnetometerAllTheTime,
		"use_magnetometer_correction":   &cfg.MagnetometerCorrection,
		"use_arvr_stabilization":        &cfg.ARVRStabilization,
		"optimize_updates":              &cfg.OptimizeUpdates,
		"mock_sensors":                  &cfg.MockSensors,
	} {
		if *dst, err = getBool(v, key); err != nil {
			return nil, err
		}
	}

	for i := 0; i < MaxSensors; i++ {
		sc, ok, err := sensorConfig(v, i)
		if err != nil {
			return nil, err
		}
		if ok {
			cfg.Sensors = append(cfg.Sensors, sc)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func sensorConfig(v *viper.Viper, i int) (SensorConfig, bool, error) {
	prefix := fmt.Sprintf("sensor%d_", i)
	addrStr := v.GetString(prefix + "addr")
	if addrStr == "" {
		return SensorConfig{}, false, nil
	}
	addr, err := strconv.ParseUint(addrStr, 0, 7)
	if err != nil {
		return SensorConfig{}, false, fmt.Errorf("invalid %sADDR %q: %w", strings.ToUpper(prefix), addrStr, err)
	}
	rot, err := getFloat(v, prefix+"rotation_deg")
	if err != nil {
		return SensorConfig{}, false, err
	}
	return SensorConfig{
		Address:     uint16(addr),
		IntPin:      v.GetString(prefix + "int_pin"),
		Type:        strings.ToUpper(v.GetString(prefix + "type")),
		RotationDeg: rot,
	}, true, nil
}

func getInt(v *viper.Viper, key string) (int, error) {
	s := v.GetString(key)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", strings.ToUpper(key), s, err)
	}
	return n, nil
}

func getFloat(v *viper.Viper, key string) (float64, error) {
	s := v.GetString(key)
	if s == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", strings.ToUpper(key), s, err)
	}
	return f, nil
}

func getBool(v *viper.Viper, key string) (bool, error) {
	s := v.GetString(key)
	if s == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", strings.ToUpper(key), s, err)
	}
	return b, nil
}

// validate checks that required fields are set and values are in range.
func (c *Config) validate() error {
	switch c.Transport {
	case "mqtt":
		if c.MQTTBroker == "" {
			return fmt.Errorf("MQTT_BROKER is required")
		}
	case "serial":
		if c.SerialPort == "" {
			return fmt.Errorf("SERIAL_PORT is required")
		}
		if c.SerialBaud <= 0 {
			return fmt.Errorf("SERIAL_BAUD must be positive, got %d", c.SerialBaud)
		}
	default:
		return fmt.Errorf("TRANSPORT must be mqtt or serial, got %q", c.Transport)
	}
	if len(c.Sensors) == 0 {
		return fmt.Errorf("SENSOR0_ADDR is required")
	}
	for i, s := range c.Sensors {
		switch s.Type {
		case "BNO080", "BNO085", "BNO086":
		default:
			return fmt.Errorf("SENSOR%d_TYPE must be BNO080, BNO085 or BNO086, got %q", i, s.Type)
		}
	}
	if len(c.Sensors) == 2 && c.Sensors[0].Address == c.Sensors[1].Address {
		return fmt.Errorf("SENSOR0_ADDR and SENSOR1_ADDR must differ, both 0x%02X", c.Sensors[0].Address)
	}
	if c.DedupEpsilon <= 0 {
		return fmt.Errorf("DEDUP_EPSILON must be positive, got %g", c.DedupEpsilon)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive, got %d", c.PollInterval)
	}
	if c.WebServerPort < 0 || c.WebServerPort > 65535 {
		return fmt.Errorf("WEB_SERVER_PORT must be 0-65535, got %d", c.WebServerPort)
	}
	return nil
}

// InitGlobal loads the global configuration once.
func InitGlobal(v *viper.Viper, configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(v, configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
