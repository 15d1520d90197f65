// Package conf loads and validates the daemon configuration from
// config file, environment variables and command line flags.
package conf

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

// Settings is the root configuration for the notification daemon.
type Settings struct {
	Debug bool `yaml:"debug"` // true to enable debug level logging

	Main struct {
		Name    string `yaml:"name"`    // client identifier reported to the backend
		LogFile string `yaml:"logfile"` // rotated JSON log file, empty to log to stdout
	} `yaml:"main"`

	Backend BackendSettings `yaml:"backend"`
	Sound   SoundSettings   `yaml:"sound"`
	Signals SignalSettings  `yaml:"signals"`
	Output  OutputSettings  `yaml:"output"`
}

// BackendSettings describes how to reach the Beypro backend.
type BackendSettings struct {
	BaseURL           string `yaml:"baseurl"`           // REST base URL, e.g. https://api.beypro.com
	SocketURL         string `yaml:"socketurl"`         // websocket endpoint, derived from baseurl when empty
	Token             string `yaml:"token"`             // bearer token for the tenant
	RestaurantID      string `yaml:"restaurantid"`      // tenant identity; empty until login
	ReconnectAttempts int    `yaml:"reconnectattempts"` // bounded websocket retries before poll fallback
	ReconnectDelayMS  int    `yaml:"reconnectdelayms"`  // fixed delay between retries
}

// SoundSettings describes the local playback environment.
type SoundSettings struct {
	AssetsDir string `yaml:"assetsdir"` // directory holding the bundled wav files
	Disabled  bool   `yaml:"disabled"`  // true to resolve events without opening an audio device
}

// SignalSettings configures the local broadcast surface other processes use
// to push settings updates and app state transitions into the daemon.
type SignalSettings struct {
	IPCSocket string `yaml:"ipcsocket"` // unix socket path, empty to disable the listener
	OSSignals bool   `yaml:"ossignals"` // map SIGUSR1/SIGUSR2 to foreground/background
}

// OutputSettings groups local persistence and the diagnostics endpoint.
type OutputSettings struct {
	DBPath string `yaml:"dbpath"` // sqlite file for settings snapshots and sound history
	Listen string `yaml:"listen"` // diagnostics listen address, empty to disable
}

var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into a new
// Settings instance and stores it as the process-wide instance.
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

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	viper.SetEnvPrefix("BEYPRO")
	viper.AutomaticEnv()

	setDefaultConfig()

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// Missing config file is fine, defaults plus env cover everything
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// GetDefaultConfigPaths returns the config search paths in priority order:
// working directory first, then the user config directory.
func GetDefaultConfigPaths() ([]string, error) {
	paths := []string{"."}
	configDir, err := os.UserConfigDir()
	if err != nil {
		// Headless environments may lack HOME, the working directory still works
		return paths, nil
	}
	return append(paths, filepath.Join(configDir, "beypro-notify")), nil
}

// Setting returns the current settings instance, initializing it if necessary.
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			if _, err := Load(); err != nil {
				log.Fatalf("Error loading settings: %v", err)
			}
		}
	})
	return GetSettings()
}

// GetSettings returns the current settings instance without triggering a load.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}
