package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var Version = "-"

// init reads the VERSION file from the project root so the version is a
// single source of truth, and ensures Config is populated with defaults
// for tests and library embedders that never call Load.
func init() {
	_, currentFile, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(currentFile))
	if version, err := os.ReadFile(filepath.Join(projectRoot, "VERSION")); err == nil {
		Version = strings.TrimSpace(string(version))
	}
	if Config == nil {
		Config = initDefaultConfig()
	}
}

var Config *DriverConfig

// DriverConfig carries the tuning for the media driver. Defaults and
// descriptions live in the struct tags; cmd registers one flag per
// field from them.
type DriverConfig struct {
	LogLevel string `mapstructure:"log-level" default:"info" description:"the log level, values: debug, info, warn, error"`

	TermBufferLength int `mapstructure:"term-buffer-length" default:"65536" description:"length in bytes of each term buffer, a power of two >= 4096"`
	FlowWindowLength int `mapstructure:"flow-window-length" default:"0" description:"flow control window in bytes past the slowest subscriber; 0 selects half a term"`

	ImageLivenessTimeoutMillis int `mapstructure:"image-liveness-timeout-ms" default:"10000" description:"remove an image that stops consuming available data for this long"`
	ConductorDutyCycleMillis   int `mapstructure:"conductor-duty-cycle-ms" default:"1" description:"conductor tick interval in milliseconds"`

	MetricsEnabled bool `mapstructure:"metrics-enabled" default:"true" description:"serve driver counters on the metrics endpoint"`
	MetricsPort    int  `mapstructure:"metrics-port" default:"7979" description:"port for the /metrics endpoint"`
}

// Validate rejects values the driver cannot run with.
func (c *DriverConfig) Validate() error {
	if c.TermBufferLength < 4096 || c.TermBufferLength&(c.TermBufferLength-1) != 0 {
		return fmt.Errorf("term-buffer-length %d must be a power of two >= 4096", c.TermBufferLength)
	}
	if c.FlowWindowLength < 0 {
		return fmt.Errorf("flow-window-length must not be negative")
	}
	if c.ImageLivenessTimeoutMillis <= 0 {
		return fmt.Errorf("image-liveness-timeout-ms must be positive")
	}
	if c.ConductorDutyCycleMillis <= 0 {
		return fmt.Errorf("conductor-duty-cycle-ms must be positive")
	}
	return nil
}

// Load merges an optional aeron.yaml (working directory) with flags.
// Flags the user set win over the file; file values win over defaults.
func Load(flags *pflag.FlagSet) {
	viper.SetConfigType("yaml")
	viper.SetConfigName("aeron")
	viper.AddConfigPath(".")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic(err)
		}
	}

	flags.VisitAll(func(flag *pflag.Flag) {
		if flag.Name == "help" {
			return
		}
		if flag.Changed || !viper.IsSet(flag.Name) {
			viper.Set(flag.Name, flag.Value.String())
		}
	})

	if err := viper.Unmarshal(&Config); err != nil {
		panic(err)
	}
}

func initDefaultConfig() *DriverConfig {
	defaultConfig := &DriverConfig{}
	configType := reflect.TypeOf(*defaultConfig)
	configValue := reflect.ValueOf(defaultConfig).Elem()

	for i := 0; i < configType.NumField(); i++ {
		field := configType.Field(i)
		value := configValue.Field(i)

		tag := field.Tag.Get("default")
		if tag == "" {
			continue
		}
		switch value.Kind() {
		case reflect.String:
			value.SetString(tag)
		case reflect.Int:
			intVal := 0
			if _, err := fmt.Sscanf(tag, "%d", &intVal); err == nil {
				value.SetInt(int64(intVal))
			}
		case reflect.Bool:
			boolVal := false
			if _, err := fmt.Sscanf(tag, "%t", &boolVal); err == nil {
				value.SetBool(boolVal)
			}
		}
	}
	return defaultConfig
}

// ForceInit replaces the global config, filling zero fields from
// defaults. Intended for tests.
func ForceInit(config *DriverConfig) {
	defaultConfig := initDefaultConfig()

	configValue := reflect.ValueOf(config).Elem()
	defaultConfigValue := reflect.ValueOf(defaultConfig).Elem()

	for i := 0; i < configValue.NumField(); i++ {
		value := configValue.Field(i)
		if value.IsZero() {
			value.Set(defaultConfigValue.Field(i))
		}
	}
	Config = config
}
