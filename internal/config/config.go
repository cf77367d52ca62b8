package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	appLog "evcal/internal/log"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions.

const (
	defaultListen      = "127.0.0.1:8080"
	defaultTimezone    = "Europe/Moscow"
	defaultRefreshCron = "*/30 * * * *"
	defaultPruneCron   = "@every 24h"
	defaultCookieName  = "evcal_session"
	defaultSessionTTL  = 24 * time.Hour
	defaultHorizonDays = 365
	defaultCacheDir    = "./var/ics-cache"
)

// StoreConfig selects the event store backend.
type StoreConfig struct {
	// Driver is "memory" or "sqlite".
	Driver string `yaml:"driver" json:"driver"`
	// DSN is the database location (a file path for sqlite).
	DSN string `yaml:"dsn" json:"dsn"`
}

// SessionConfig controls login sessions.
type SessionConfig struct {
	CookieName string        `yaml:"cookie_name" json:"cookie_name"`
	TTL        time.Duration `yaml:"ttl" json:"ttl"`
	// Secure marks the cookie Secure; enable behind TLS.
	Secure bool `yaml:"secure" json:"secure"`
	// PruneCron is the schedule on which expired sessions are dropped.
	PruneCron string `yaml:"prune_cron" json:"prune_cron"`
}

// UserConfig is one account allowed to log in. Either Password (plaintext)
// or PasswordHash (bcrypt) must be set; the hash wins when both are.
type UserConfig struct {
	Username     string `yaml:"username" json:"username"`
	Password     string `yaml:"password,omitempty" json:"-"`
	PasswordHash string `yaml:"password_hash,omitempty" json:"-"`
	Admin        bool   `yaml:"admin" json:"admin"`
}

// ICSConfig describes a single ICS subscription source. Imported events get
// the category, industry and country configured here.
type ICSConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for ownership and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name     string `yaml:"name" json:"name"`
	Category string `yaml:"category" json:"category"`
	Industry string `yaml:"industry,omitempty" json:"industry,omitempty"`
	Country  string `yaml:"country,omitempty" json:"country,omitempty"`
}

// LayoutConfig tunes the month grid.
type LayoutConfig struct {
	// ConsistentLayers keeps every segment of an event on one layer.
	ConsistentLayers bool `yaml:"consistent_layers" json:"consistent_layers"`
	// WeekendWeight is the relative width of Saturday and Sunday columns.
	WeekendWeight float64 `yaml:"weekend_weight" json:"weekend_weight"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the Web UI and API.
	Listen string `yaml:"listen" json:"listen"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// Timezone is the IANA timezone that decides what "today" is and which
	// calendar days timed feed events fall on.
	Timezone string `yaml:"timezone" json:"timezone"`

	Store   StoreConfig   `yaml:"store" json:"store"`
	Session SessionConfig `yaml:"session" json:"session"`

	// CSRFKey, if set, enables CSRF protection on state-changing requests.
	// It must be 32 bytes, base64 encoded.
	CSRFKey string `yaml:"csrf_key,omitempty" json:"-"`

	Users []UserConfig `yaml:"users" json:"users"`

	// ICS is the list of subscribed ICS sources.
	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// RefreshCron is the cron schedule (e.g. "*/30 * * * *") for ICS imports.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// ImportHorizonDays limits how far ahead recurring feed events are
	// flattened.
	ImportHorizonDays int `yaml:"import_horizon_days" json:"import_horizon_days"`

	// CacheDir holds ETag/Last-Modified metadata and bodies of ICS feeds.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	Layout LayoutConfig `yaml:"layout" json:"layout"`
}

// DefaultConfig returns an in-memory default configuration. It has no
// users; Load adds a generated admin account on first run.
func DefaultConfig() *Config {
	return &Config{
		Listen:   defaultListen,
		LogLevel: "info",
		Timezone: defaultTimezone,
		Store: StoreConfig{
			Driver: "sqlite",
			DSN:    "./var/evcal.db",
		},
		Session: SessionConfig{
			CookieName: defaultCookieName,
			TTL:        defaultSessionTTL,
			PruneCron:  defaultPruneCron,
		},
		Users:             []UserConfig{},
		ICS:               []ICSConfig{},
		RefreshCron:       defaultRefreshCron,
		ImportHorizonDays: defaultHorizonDays,
		CacheDir:          defaultCacheDir,
		Layout:            LayoutConfig{WeekendWeight: 0.6},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "memory"
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = defaultCookieName
	}
	if c.Session.TTL <= 0 {
		c.Session.TTL = defaultSessionTTL
	}
	if c.Session.PruneCron == "" {
		c.Session.PruneCron = defaultPruneCron
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.ImportHorizonDays <= 0 {
		c.ImportHorizonDays = defaultHorizonDays
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	if c.Layout.WeekendWeight <= 0 || c.Layout.WeekendWeight > 1 {
		c.Layout.WeekendWeight = 0.6
	}
	if c.Users == nil {
		c.Users = []UserConfig{}
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
	for i := range c.ICS {
		src := &c.ICS[i]
		if src.ID == "" {
			if src.Name != "" {
				src.ID = src.Name
			} else {
				src.ID = src.URL
			}
		}
		if src.Category == "" {
			src.Category = "external"
		}
	}
}

// Location resolves Timezone, falling back to time.Local when it is unknown.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", c.Timezone)
		return time.Local
	}
	return loc
}

// CSRFKeyBytes decodes CSRFKey. It returns nil when CSRF is disabled.
func (c *Config) CSRFKeyBytes() ([]byte, error) {
	if c.CSRFKey == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(c.CSRFKey))
	if err != nil {
		return nil, errors.New("csrf_key is not valid base64")
	}
	if len(key) != 32 {
		return nil, errors.New("csrf_key must decode to 32 bytes")
	}
	return key, nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - add an "admin" account with a random password (logged once)
//   - write the config with 0600 perms and return it
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			password, err := addDefaultAdmin(cfg)
			if err != nil {
				return nil, err
			}
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			appLog.Info("created default config; log in as admin", "path", path, "username", "admin", "password", password)
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

func addDefaultAdmin(cfg *Config) (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	password := base64.RawURLEncoding.EncodeToString(buf)
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	cfg.Users = append(cfg.Users, UserConfig{
		Username:     "admin",
		PasswordHash: string(hash),
		Admin:        true,
	})
	return password, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".evcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
