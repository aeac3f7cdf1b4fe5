package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lennartalff/cloudbot/pkg/utils"
)

// hasKeyFunc checks if a key is defined in the configuration file.
type hasKeyFunc func(string) bool

// TelegramConfig contains configuration for the telegram bot.
type TelegramConfig struct {
	Token       string         `toml:"token" json:"-"`
	UsersFile   string         `toml:"users-file" json:"usersFile"`
	PollTimeout utils.Duration `toml:"poll-timeout" json:"pollTimeout"`
}

// dfltTelegramCfg contains the default values for TelegramConfig.
var dfltTelegramCfg = &TelegramConfig{
	UsersFile:   "known_telegram_ids.yaml",
	PollTimeout: utils.Duration(30 * time.Second),
}

// tidy fills missing configuration items with default values, normalizes all
// values and validates the configuration.
func (tc *TelegramConfig) tidy(hasKey hasKeyFunc) error {
	dflt := dfltTelegramCfg

	if tc.Token == "" {
		return errors.New("'telegram.token' is required")
	}

	if tc.UsersFile == "" {
		tc.UsersFile = dflt.UsersFile
	}

	if !hasKey("poll-timeout") {
		tc.PollTimeout = dflt.PollTimeout
	}
	if tc.PollTimeout <= 0 {
		return errors.New("'telegram.poll-timeout' must be positive")
	}

	return nil
}

// BackupConfig contains configuration for the backup runner and its schedule.
type BackupConfig struct {
	BackupDir      string         `toml:"backup-dir" json:"backupDir"`
	Database       string         `toml:"database" json:"database"`
	DefaultsFile   string         `toml:"defaults-file" json:"defaultsFile"`
	DataDir        string         `toml:"data-dir" json:"dataDir"`
	OccUser        string         `toml:"occ-user" json:"occUser"`
	OccPath        string         `toml:"occ-path" json:"occPath"`
	Schedule       string         `toml:"schedule" json:"schedule"`
	UpdateInterval utils.Duration `toml:"update-interval" json:"updateInterval"`
	HistoryDB      string         `toml:"history-db" json:"historyDB"`
}

// dfltBackupCfg contains the default values for BackupConfig.
var dfltBackupCfg = &BackupConfig{
	DefaultsFile:   "user.cnf",
	OccUser:        "www-data",
	OccPath:        "/var/www/nextcloud/occ",
	UpdateInterval: utils.Duration(time.Minute),
}

// tidy fills missing configuration items with default values, normalizes all
// values and validates the configuration.
func (bc *BackupConfig) tidy(hasKey hasKeyFunc) error {
	dflt := dfltBackupCfg

	if bc.BackupDir == "" {
		return errors.New("'backup.backup-dir' is required")
	}

	if bc.Database == "" {
		return errors.New("'backup.database' is required")
	}

	if bc.DefaultsFile == "" {
		bc.DefaultsFile = dflt.DefaultsFile
	}

	if bc.DataDir == "" {
		return errors.New("'backup.data-dir' is required")
	}

	if bc.OccUser == "" {
		bc.OccUser = dflt.OccUser
	}
	if bc.OccPath == "" {
		bc.OccPath = dflt.OccPath
	}

	if bc.Schedule == "" {
		return errors.New("'backup.schedule' is required")
	}
	if _, err := cron.ParseStandard(bc.Schedule); err != nil {
		return fmt.Errorf("invalid 'backup.schedule': %w", err)
	}

	if !hasKey("update-interval") {
		bc.UpdateInterval = dflt.UpdateInterval
	}
	if bc.UpdateInterval <= 0 {
		return errors.New("'backup.update-interval' must be positive")
	}

	if bc.HistoryDB == "" {
		bc.HistoryDB = filepath.Join(bc.BackupDir, "cloudbot.db")
	}

	return nil
}

// LoggerConfig contains logger configuration.
type LoggerConfig struct {
	Format    string     `toml:"format" json:"format"`
	Level     slog.Level `toml:"level" json:"level"`
	AddSource bool       `toml:"add-source" json:"addSource"`
	OutputTo  string     `toml:"output-to" json:"outputTo"`
}

// dfltLoggerCfg contains the default values for LoggerConfig.
var dfltLoggerCfg = &LoggerConfig{
	Format:    "json",
	Level:     slog.LevelInfo,
	AddSource: true,
	OutputTo:  "stderr",
}

// tidy fills missing configuration items with default values, normalizes all
// values and validates the configuration.
func (lc *LoggerConfig) tidy(hasKey hasKeyFunc) error {
	dflt := dfltLoggerCfg

	switch v := strings.ToLower(lc.Format); v {
	case "json", "text":
		lc.Format = v
	case "":
		lc.Format = dflt.Format
	default:
		return fmt.Errorf("unknown log format: %s", lc.Format)
	}

	if !hasKey("level") {
		lc.Level = dflt.Level
	}

	if !hasKey("add-source") {
		lc.AddSource = dflt.AddSource
	}

	if lc.OutputTo == "" {
		lc.OutputTo = dflt.OutputTo
	}

	return nil
}

// HTTPConfig contains configuration for the status API server. The server is
// disabled when 'addr' is empty.
type HTTPConfig struct {
	Addr        string `toml:"addr" json:"addr"`
	EnablePprof bool   `toml:"enable-pprof" json:"enablePprof"`
}

// tidy fills missing configuration items with default values, normalizes all
// values and validates the configuration.
func (hc *HTTPConfig) tidy(hasKey hasKeyFunc) error {
	if hc.Addr == "" {
		return nil
	}

	ap, err := netip.ParseAddrPort(hc.Addr)
	if err != nil {
		return fmt.Errorf("invalid 'http.addr': %w", err)
	}
	if ap.Port() == 0 {
		return errors.New("port of 'http.addr' cannot be 0")
	}

	return nil
}

// Config contains all configurations.
type Config struct {
	Telegram *TelegramConfig `toml:"telegram" json:"telegram"`
	Backup   *BackupConfig   `toml:"backup" json:"backup"`
	Logger   *LoggerConfig   `toml:"logger,omitempty" json:"logger,omitempty"`
	HTTP     *HTTPConfig     `toml:"http,omitempty" json:"http,omitempty"`
}

// tidy fills missing configuration items with default values, normalizes all
// values and validates the configuration. definedKeys tracks the keys which
// are present in the configuration file, so that an explicitly written zero
// value can be told apart from an omitted key.
func (c *Config) tidy(definedKeys []string) error {
	hasKeyIn := func(section string) hasKeyFunc {
		return func(key string) bool {
			for _, k := range definedKeys {
				if k == section+"."+key {
					return true
				}
			}
			return false
		}
	}

	if c.Telegram == nil {
		return errors.New("'telegram' section is required")
	}
	if err := c.Telegram.tidy(hasKeyIn("telegram")); err != nil {
		return err
	}

	if c.Backup == nil {
		return errors.New("'backup' section is required")
	}
	if err := c.Backup.tidy(hasKeyIn("backup")); err != nil {
		return err
	}

	if c.Logger == nil {
		c.Logger = &LoggerConfig{}
	}
	if err := c.Logger.tidy(hasKeyIn("logger")); err != nil {
		return err
	}

	if c.HTTP == nil {
		c.HTTP = &HTTPConfig{}
	}
	return c.HTTP.tidy(hasKeyIn("http"))
}
