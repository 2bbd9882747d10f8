// Package config loads caddie settings through viper.
//
// Precedence, highest first: command flags, CADDIE_* environment
// variables, the config file, built-in defaults. The file lives at
// ~/.config/caddie/config.yaml unless the caller points elsewhere; a
// missing file is not an error. Zero or empty values mean "use the
// owning component's default" so this package never duplicates them.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the environment variable prefix: remote.auth_token is
// overridden by CADDIE_REMOTE_AUTH_TOKEN.
const EnvPrefix = "CADDIE"

// Viper keys. SaveAuthToken and the flag bindings share them.
const (
	keyStorePath       = "store.path"
	keyRemoteURL       = "remote.url"
	keyAuthToken       = "remote.auth_token"
	keyRelayURL        = "relay.url"
	keyCatalogDir      = "catalog.dir"
	keyDrainInterval   = "daemon.drain_interval"
	keySweepInterval   = "daemon.retry_sweep_interval"
	keyStatusInterval  = "daemon.status_interval"
	keyCatalogDebounce = "daemon.catalog_debounce"
	keyDaemonLogFile   = "daemon.log_file"
	keyDashboardPort   = "dashboard.port"
	keyRecapModel      = "recap.model"
)

// flagKeys maps command flag names to config keys. Flags registered
// under these names take precedence over everything else.
var flagKeys = map[string]string{
	"db":          keyStorePath,
	"remote-url":  keyRemoteURL,
	"relay-url":   keyRelayURL,
	"catalog-dir": keyCatalogDir,
}

// Config is the resolved configuration for one command invocation.
type Config struct {
	// Path is the config file the values were resolved against. The
	// file need not exist.
	Path string

	// StorePath is the local SQLite database file.
	StorePath string

	// RemoteURL and AuthToken connect the remote libSQL store. An
	// empty URL keeps caddie fully local.
	RemoteURL string
	AuthToken string

	// RelayURL is the websocket relay carrying other devices' changes.
	RelayURL string

	// CatalogDir holds course TOML files for import and watching.
	CatalogDir string

	// Daemon intervals; zero values use the daemon's defaults.
	DrainInterval      time.Duration
	RetrySweepInterval time.Duration
	StatusInterval     time.Duration
	CatalogDebounce    time.Duration

	// DaemonLogFile is the rotated daemon log; empty logs to stderr.
	DaemonLogFile string

	// DashboardPort is the local dashboard's listen port; 0 picks a
	// free port.
	DashboardPort int

	// RecapModel overrides the recap generator's model; empty uses its
	// default.
	RecapModel string
}

// DataDir is where the daemon keeps its lock, journal, and rotated
// log: beside the database.
func (c *Config) DataDir() string {
	return filepath.Dir(c.StorePath)
}

// DefaultPath returns ~/.config/caddie/config.yaml (or the platform
// equivalent).
func DefaultPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve config directory: %w", err)
	}
	return filepath.Join(base, "caddie", "config.yaml"), nil
}

// Load resolves configuration against the file at path, or the default
// location when path is empty. flags may be nil; when given, flags
// named in flagKeys override file and environment values.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	if path == "" {
		def, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = def
	}

	v := viper.New()
	setDefaults(v, filepath.Dir(path))

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	return &Config{
		Path:               path,
		StorePath:          v.GetString(keyStorePath),
		RemoteURL:          v.GetString(keyRemoteURL),
		AuthToken:          v.GetString(keyAuthToken),
		RelayURL:           v.GetString(keyRelayURL),
		CatalogDir:         v.GetString(keyCatalogDir),
		DrainInterval:      v.GetDuration(keyDrainInterval),
		RetrySweepInterval: v.GetDuration(keySweepInterval),
		StatusInterval:     v.GetDuration(keyStatusInterval),
		CatalogDebounce:    v.GetDuration(keyCatalogDebounce),
		DaemonLogFile:      v.GetString(keyDaemonLogFile),
		DashboardPort:      v.GetInt(keyDashboardPort),
		RecapModel:         v.GetString(keyRecapModel),
	}, nil
}

// setDefaults registers every key so environment lookups and
// AllSettings see the full surface. The database defaults to the
// directory holding the config file.
func setDefaults(v *viper.Viper, dir string) {
	v.SetDefault(keyStorePath, filepath.Join(dir, "caddie.db"))
	v.SetDefault(keyRemoteURL, "")
	v.SetDefault(keyAuthToken, "")
	v.SetDefault(keyRelayURL, "")
	v.SetDefault(keyCatalogDir, "")
	v.SetDefault(keyDrainInterval, time.Duration(0))
	v.SetDefault(keySweepInterval, time.Duration(0))
	v.SetDefault(keyStatusInterval, time.Duration(0))
	v.SetDefault(keyCatalogDebounce, time.Duration(0))
	v.SetDefault(keyDaemonLogFile, "")
	v.SetDefault(keyDashboardPort, 8080)
	v.SetDefault(keyRecapModel, "")
}
