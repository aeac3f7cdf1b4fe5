package config

import (
	"encoding/json"
	"errors"
	"flag"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
)

// common command line arguments for both the daemon and the cli.
var (
	confPath    string
	showVersion bool
)

func init() {
	flag.StringVar(&confPath, "config", "", "path to config file")
	flag.BoolVar(&showVersion, "version", false, "show version information")
}

// ShowVersion returns true if the version information should be shown.
func ShowVersion() bool {
	return showVersion
}

// cfg contains all of the configurations.
var cfg = &Config{}

// Telegram returns the telegram bot configuration.
func Telegram() *TelegramConfig {
	return cfg.Telegram
}

// Backup returns the backup configuration.
func Backup() *BackupConfig {
	return cfg.Backup
}

// Logger returns the logger configuration.
func Logger() *LoggerConfig {
	return cfg.Logger
}

// HTTP returns the status API server configuration.
func HTTP() *HTTPConfig {
	return cfg.HTTP
}

// All returns all of the configurations.
func All() *Config {
	return cfg
}

// getConfigPath returns the path of the configuration file.
func getConfigPath() string {
	// 1st, try command line argument.
	if confPath != "" {
		return confPath
	}

	// 2nd, try environment variable.
	path := os.Getenv("CLOUDBOT_CONFIG_PATH")
	if path != "" {
		return path
	}

	// 3rd, try current working directory.
	path = "settings.conf"
	fi, err := os.Stat(path)
	if err == nil && !fi.IsDir() {
		return path
	}

	// 4th, try executable directory.
	exe, err := os.Executable()
	if err == nil {
		path = filepath.Join(filepath.Dir(exe), path)
		fi, err = os.Stat(path)
		if err == nil && !fi.IsDir() {
			return path
		}
	}

	// finally, try O/S specific configuration directory.
	switch runtime.GOOS {
	case "linux", "darwin", "freebsd", "openbsd":
		path = "/etc/cloudbot/settings.conf"
	default:
		return ""
	}
	fi, err = os.Stat(path)
	if err == nil && !fi.IsDir() {
		return path
	}

	return ""
}

// Load loads configurations from file, sets missing items with default
// values, and makes necessary normalization and validation.
func Load() error {
	path := getConfigPath()
	if path == "" {
		return errors.New("no available configuration file")
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	c, err := parse(f)
	if err != nil {
		return err
	}

	cfg = c
	return nil
}

// parse decodes a TOML document into a Config and tidies it.
func parse(r io.Reader) (*Config, error) {
	c := &Config{}
	md, err := toml.NewDecoder(r).Decode(c)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(md.Keys()))
	for _, k := range md.Keys() {
		keys = append(keys, k.String())
	}

	if err := c.tidy(keys); err != nil {
		return nil, err
	}
	return c, nil
}

// HandleList is an http handler to expose configurations. The telegram token
// is excluded from the output.
func HandleList(w http.ResponseWriter, r *http.Request) {
	redacted := *cfg
	tc := *redacted.Telegram
	tc.Token = ""
	redacted.Telegram = &tc

	if strings.EqualFold(r.Header.Get("Accept"), "application/json") {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(&redacted)
	} else {
		w.Header().Set("Content-Type", "application/toml")
		toml.NewEncoder(w).Encode(&redacted)
	}
}
