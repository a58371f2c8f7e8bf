package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Topology selects the deployment mode of the execution backend.
const (
	TopologyKubernetes = "kubernetes"
	TopologyLocal      = "local"
)

// UFConfig holds the application configuration
type UFConfig struct {
	Database struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"database"`

	Server struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
	} `mapstructure:"server"`

	Queue struct {
		Host     string `mapstructure:"host"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"queue"`

	Compute struct {
		Topology        string `mapstructure:"topology"`
		Namespace       string `mapstructure:"namespace"`
		Image           string `mapstructure:"image"`
		LargeNodePool   string `mapstructure:"large_node_pool"`
		PollIntervalMS  int    `mapstructure:"poll_interval_ms"`
		RealtimePort    int    `mapstructure:"realtime_port"`
		HousekeepPeriod string `mapstructure:"housekeep_period"`
	} `mapstructure:"compute"`

	Storage struct {
		Endpoint  string `mapstructure:"endpoint"`
		AccessKey string `mapstructure:"access_key"`
		SecretKey string `mapstructure:"secret_key"`
		Bucket    string `mapstructure:"bucket"`
		UseSSL    bool   `mapstructure:"use_ssl"`
	} `mapstructure:"storage"`

	LogLevel string `mapstructure:"log_level"`
}

// LoadConfig reads the configuration from a file or environment variables
func LoadConfig(configPaths ...string) (*UFConfig, error) {
	// can specify config path from environment
	if path, exists := os.LookupEnv("UF_CONFIG_PATH"); exists {
		configPaths = append(configPaths, path)
	}
	for _, path := range configPaths {
		fi, err := os.Stat(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		} else if err != nil {
			return nil, err
		}
		mode := fi.Mode()
		switch {
		case mode.IsRegular():
			v := newViper()
			v.SetConfigFile(path)
			config, err := readConfig(v, path)
			if err != nil {
				continue
			}
			return config, nil

		case mode.IsDir():
			v := newViper()
			v.AddConfigPath(path)
			v.SetConfigName("config")
			v.SetConfigType("yaml")
			config, err := readConfig(v, path)
			if err != nil {
				continue
			}
			return config, nil
		}
	}

	v := newViper()
	// finally read from current working directory
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	cwd, _ := os.Getwd()

	config, err := readConfig(v, cwd)
	if err != nil {
		return nil, err
	}
	return config, nil
}

// newViper sets default values for configuration
func newViper() *viper.Viper {
	v := viper.New()

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.name", "uniframe")
	v.SetDefault("database.sslmode", "disable")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	v.SetDefault("queue.host", "localhost:6379")
	v.SetDefault("queue.password", "redis")
	v.SetDefault("queue.db", 0)

	// Compute defaults
	v.SetDefault("compute.topology", TopologyLocal)
	v.SetDefault("compute.namespace", "nm")
	v.SetDefault("compute.image", "uniframe/backend:latest")
	v.SetDefault("compute.large_node_pool", "nm-task-large")
	v.SetDefault("compute.poll_interval_ms", 50)
	v.SetDefault("compute.realtime_port", 8001)
	v.SetDefault("compute.housekeep_period", "10s")

	// Storage defaults
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.access_key", "minioadmin")
	v.SetDefault("storage.secret_key", "minioadmin")
	v.SetDefault("storage.bucket", "nm-results")
	v.SetDefault("storage.use_ssl", false)

	// Log level default
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix("UF")                               // Prefix for environment variables
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // Replace dots with underscores in env vars
	v.AutomaticEnv()                                   // Read environment variables

	return v
}

func readConfig(v *viper.Viper, path string) (*UFConfig, error) {
	var config UFConfig

	if err := v.ReadInConfig(); err != nil {
		log.Warn().
			Str("path", path).
			Msg("Could not read config file")
		return nil, err
	}
	if err := v.Unmarshal(&config); err != nil {
		log.Warn().
			Str("path", path).
			Msg("Could not unmarshall config")
		return nil, err
	}

	return &config, nil
}

// GetDatabaseURL returns a formatted database connection string
func (c *UFConfig) GetDatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// InKubernetes reports whether the container topology is configured.
func (c *UFConfig) InKubernetes() bool {
	return c.Compute.Topology == TopologyKubernetes
}

// ApplyLogLevel sets the global zerolog level from the configured name.
// Unknown names fall back to info.
func (c *UFConfig) ApplyLogLevel() {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		log.Warn().Str("log_level", c.LogLevel).Msg("Unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
