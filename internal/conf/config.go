// Package conf loads and validates the board module configuration.
package conf

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Settings contains all runtime configuration for the board module.
type Settings struct {
	Debug bool `yaml:"debug"` // true to enable debug logging

	Main struct {
		Name string    `yaml:"name"` // name of this node, can be used to identify the source of mutations
		Log  LogConfig `yaml:"log"`  // logging configuration
	} `yaml:"main"`

	Output struct {
		SQLite SQLiteSettings `yaml:"sqlite"`
		MySQL  MySQLSettings  `yaml:"mysql"`
	} `yaml:"output"`

	Cache struct {
		TTL             time.Duration `yaml:"ttl"`             // lifetime of cached list results
		CleanupInterval time.Duration `yaml:"cleanupinterval"` // expired entry sweep interval
	} `yaml:"cache"`

	Realtime struct {
		BufferSize int `yaml:"buffersize"` // event channel capacity
		Workers    int `yaml:"workers"`    // event dispatch workers
	} `yaml:"realtime"`

	Jobs JobsSettings `yaml:"jobs"`

	Geocoder struct {
		BaseURL string        `yaml:"baseurl"` // geocoding provider endpoint
		APIKey  string        `yaml:"apikey"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"geocoder"`

	Mail struct {
		SMTPURL    string `yaml:"smtpurl"`    // shoutrrr smtp:// service URL for the default transactional sender
		SenderName string `yaml:"sendername"` // display name used by the default sender
		From       string `yaml:"from"`       // default From address
	} `yaml:"mail"`

	Web struct {
		Enabled bool   `yaml:"enabled"`
		Port    string `yaml:"port"`
	} `yaml:"web"`
}

// JobsSettings configures the bulk operation job queue.
type JobsSettings struct {
	MaxRetries   int           `yaml:"maxretries"`   // whole-job retry attempts after the first failure
	InitialDelay time.Duration `yaml:"initialdelay"` // delay before the first retry
	MaxDelay     time.Duration `yaml:"maxdelay"`     // backoff ceiling
	Multiplier   float64       `yaml:"multiplier"`   // exponential backoff multiplier
	MaxJobs      int           `yaml:"maxjobs"`      // maximum queued jobs
}

// SQLiteSettings contains settings for the SQLite database
type SQLiteSettings struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// MySQLSettings contains settings for the MySQL database
type MySQLSettings struct {
	Enabled  bool   `yaml:"enabled"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
}

// LogConfig defines the configuration for file logging
type LogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// settingsInstance is the current settings instance
var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into a Settings struct.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.config/leadboard")
	viper.AddConfigPath("/etc/leadboard")

	viper.SetEnvPrefix("leadboard")
	viper.AutomaticEnv()

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// No config file is fine, defaults and env vars apply
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// Setting returns the current settings instance, initializing it if necessary
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			if _, err := Load(); err != nil {
				panic(fmt.Sprintf("error loading settings: %v", err))
			}
		}
	})
	return GetSettings()
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// ValidateSettings rejects configurations the module cannot run with.
func ValidateSettings(settings *Settings) error {
	if settings.Output.SQLite.Enabled && settings.Output.MySQL.Enabled {
		return errors.New("only one database output can be enabled at a time")
	}
	if settings.Output.SQLite.Enabled && settings.Output.SQLite.Path == "" {
		return errors.New("sqlite output enabled but no path configured")
	}
	if settings.Output.MySQL.Enabled {
		if settings.Output.MySQL.Database == "" || settings.Output.MySQL.Host == "" {
			return errors.New("mysql output enabled but database or host missing")
		}
	}
	if settings.Jobs.Multiplier <= 1.0 {
		return fmt.Errorf("jobs.multiplier must be greater than 1.0, got %v", settings.Jobs.Multiplier)
	}
	return nil
}
