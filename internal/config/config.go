// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap/zapcore"

	"github.com/jeranaias/channelchat/internal/router"
	"github.com/jeranaias/channelchat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete channelchat configuration.
type Config struct {
	Server  ServerConfig  `toml:"server" json:"server"`
	Gemini  GeminiConfig  `toml:"gemini" json:"gemini"`
	YouTube YouTubeConfig `toml:"youtube" json:"youtube"`
	Storage StorageConfig `toml:"storage" json:"storage"`
	Session SessionConfig `toml:"session" json:"session"`
	// Routing holds the classification vocabulary. Empty tables use the built-in patterns.
	Routing router.Spec `toml:"routing" json:"routing"`
	Log     LogConfig   `toml:"log" json:"log"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr string `toml:"addr" json:"addr"`
	// RateLimitRPS is the per-client request rate. 0 disables limiting.
	RateLimitRPS   float64  `toml:"rate_limit_rps" json:"rate_limit_rps"`
	RateLimitBurst int      `toml:"rate_limit_burst" json:"rate_limit_burst"`
	CORSOrigins    []string `toml:"cors_origins" json:"cors_origins"`
	// TurnTimeoutSecs bounds one chat turn. 0 means no timeout.
	TurnTimeoutSecs int `toml:"turn_timeout_secs" json:"turn_timeout_secs"`
}

// GeminiConfig configures the generation and image-generation collaborators.
type GeminiConfig struct {
	APIKey        string `toml:"api_key" json:"-"`
	Model         string `toml:"model" json:"model"`
	ImageModel    string `toml:"image_model" json:"image_model"`
	MaxToolRounds int    `toml:"max_tool_rounds" json:"max_tool_rounds"`
	Grounding     bool   `toml:"grounding" json:"grounding"`
}

// YouTubeConfig configures the collection source.
type YouTubeConfig struct {
	APIKey         string `toml:"api_key" json:"-"`
	TranscriptLang string `toml:"transcript_lang" json:"transcript_lang"`
	PageSize       int    `toml:"page_size" json:"page_size"`
	DetailBatch    int    `toml:"detail_batch" json:"detail_batch"`
}

// StorageConfig configures the turn store.
type StorageConfig struct {
	Path string `toml:"path" json:"path"`
}

// SessionConfig configures in-memory chat sessions.
type SessionConfig struct {
	IdleTimeoutMins int `toml:"idle_timeout_mins" json:"idle_timeout_mins"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string `toml:"level" json:"level"`
	Development bool   `toml:"development" json:"development"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default values.
const (
	DefaultAddr            = "127.0.0.1:8080"
	DefaultRateLimitRPS    = 10
	DefaultRateLimitBurst  = 20
	DefaultTurnTimeoutSecs = 300
	DefaultGeminiModel     = "gemini-2.5-flash"
	DefaultImageModel      = "gemini-2.5-flash-image"
	DefaultMaxToolRounds   = 8
	DefaultTranscriptLang  = "en"
	DefaultPageSize        = 50
	DefaultDetailBatch     = 50
	DefaultIdleTimeoutMins = 60
	DefaultLogLevel        = "info"

	maxToolRounds = 32
	maxPageSize   = 50
)

// Default returns a configuration with every field set to its default.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            DefaultAddr,
			RateLimitRPS:    DefaultRateLimitRPS,
			RateLimitBurst:  DefaultRateLimitBurst,
			TurnTimeoutSecs: DefaultTurnTimeoutSecs,
		},
		Gemini: GeminiConfig{
			Model:         DefaultGeminiModel,
			ImageModel:    DefaultImageModel,
			MaxToolRounds: DefaultMaxToolRounds,
		},
		YouTube: YouTubeConfig{
			TranscriptLang: DefaultTranscriptLang,
			PageSize:       DefaultPageSize,
			DetailBatch:    DefaultDetailBatch,
		},
		Storage: StorageConfig{Path: defaultDBPath()},
		Session: SessionConfig{IdleTimeoutMins: DefaultIdleTimeoutMins},
		Log:     LogConfig{Level: DefaultLogLevel},
	}
}

func defaultDBPath() string {
	dir, err := ConfigDir()
	if err != nil {
		return filepath.Join(".channelchat", "channelchat.db")
	}
	return filepath.Join(dir, "channelchat.db")
}

// TurnTimeout returns the chat turn bound, or 0 for none.
func (c *Config) TurnTimeout() time.Duration {
	return time.Duration(c.Server.TurnTimeoutSecs) * time.Second
}

// IdleTimeout returns how long an untouched session survives.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Session.IdleTimeoutMins) * time.Minute
}

// Vocabulary compiles the routing tables.
func (c *Config) Vocabulary() (*router.Vocabulary, error) {
	return router.Compile(c.Routing)
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the channelchat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".channelchat"), nil
}

// ConfigPathTOML returns the path to the default TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ensureSecurePermissions narrows a config file to 0600.
// SECURITY: the file carries API keys.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load reads the config file at path (the default path when empty), applies
// environment overrides, fills defaults and validates. A missing file is not
// an error: the defaults are used.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := ConfigPathTOML()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()
	if _, err := os.Stat(path); err == nil {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("stat config %s: %w", path, err)
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes the TOML file at path over cfg. Keys the file does not
// set keep their current values.
// SECURITY: Checks and fixes file permissions on load.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		fmt.Fprintf(os.Stderr, "Warning: unknown config keys in %s: %s\n", path, strings.Join(keys, ", "))
	}
	return nil
}

// SetDefaults fills zero values that must not stay zero.
func (c *Config) SetDefaults() {
	d := Default()

	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Server.RateLimitRPS > 0 && c.Server.RateLimitBurst == 0 {
		c.Server.RateLimitBurst = max(1, int(c.Server.RateLimitRPS))
	}
	if c.Gemini.Model == "" {
		c.Gemini.Model = d.Gemini.Model
	}
	if c.Gemini.ImageModel == "" {
		c.Gemini.ImageModel = d.Gemini.ImageModel
	}
	if c.Gemini.MaxToolRounds == 0 {
		c.Gemini.MaxToolRounds = d.Gemini.MaxToolRounds
	}
	if c.YouTube.TranscriptLang == "" {
		c.YouTube.TranscriptLang = d.YouTube.TranscriptLang
	}
	if c.YouTube.PageSize == 0 {
		c.YouTube.PageSize = d.YouTube.PageSize
	}
	if c.YouTube.DetailBatch == 0 {
		c.YouTube.DetailBatch = d.YouTube.DetailBatch
	}
	if c.Storage.Path == "" {
		c.Storage.Path = d.Storage.Path
	}
	if c.Session.IdleTimeoutMins == 0 {
		c.Session.IdleTimeoutMins = d.Session.IdleTimeoutMins
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// SaveTOML writes cfg to path atomically with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("# channelchat configuration file\n")
	buf.WriteString("# API keys may also come from GEMINI_API_KEY and YOUTUBE_API_KEY.\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	// RELIABILITY: Atomic write with fsync prevents data loss on crash
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate reports every problem with the configuration at once. The
// returned error is a ValidateErrors, or nil.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// Server
	if strings.TrimSpace(c.Server.Addr) == "" {
		add("server.addr", "must not be empty")
	}
	if c.Server.RateLimitRPS < 0 {
		add("server.rate_limit_rps", "must not be negative, got %g", c.Server.RateLimitRPS)
	}
	if c.Server.RateLimitRPS > 0 && c.Server.RateLimitBurst < 1 {
		add("server.rate_limit_burst", "must be at least 1 when rate limiting is enabled, got %d", c.Server.RateLimitBurst)
	}
	if c.Server.TurnTimeoutSecs < 0 {
		add("server.turn_timeout_secs", "must not be negative, got %d", c.Server.TurnTimeoutSecs)
	}

	// Gemini
	if strings.TrimSpace(c.Gemini.Model) == "" {
		add("gemini.model", "must not be empty")
	}
	if c.Gemini.MaxToolRounds < 1 || c.Gemini.MaxToolRounds > maxToolRounds {
		add("gemini.max_tool_rounds", "must be between 1 and %d, got %d", maxToolRounds, c.Gemini.MaxToolRounds)
	}

	// YouTube
	if c.YouTube.PageSize < 1 || c.YouTube.PageSize > maxPageSize {
		add("youtube.page_size", "must be between 1 and %d, got %d", maxPageSize, c.YouTube.PageSize)
	}
	if c.YouTube.DetailBatch < 1 || c.YouTube.DetailBatch > maxPageSize {
		add("youtube.detail_batch", "must be between 1 and %d, got %d", maxPageSize, c.YouTube.DetailBatch)
	}

	// Storage and session
	if strings.TrimSpace(c.Storage.Path) == "" {
		add("storage.path", "must not be empty")
	}
	if c.Session.IdleTimeoutMins < 1 {
		add("session.idle_timeout_mins", "must be at least 1, got %d", c.Session.IdleTimeoutMins)
	}

	// Routing
	if _, err := router.Compile(c.Routing); err != nil {
		add("routing", "%v", err)
	}

	// Log
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		add("log.level", "invalid level %q", c.Log.Level)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - GEMINI_API_KEY: overrides gemini.api_key
//   - YOUTUBE_API_KEY: overrides youtube.api_key
//   - CHANNELCHAT_ADDR: overrides server.addr
//   - CHANNELCHAT_DB: overrides storage.path
//   - CHANNELCHAT_LOG_LEVEL: overrides log.level
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Gemini.APIKey = v
	}
	if v := os.Getenv("YOUTUBE_API_KEY"); v != "" {
		c.YouTube.APIKey = v
	}
	if v := os.Getenv("CHANNELCHAT_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("CHANNELCHAT_DB"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("CHANNELCHAT_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// =============================================================================
// HOT RELOAD
// =============================================================================

// WatchDebounce coalesces the burst of events an editor save produces.
var WatchDebounce = 200 * time.Millisecond

// Watch reloads the file at path whenever it is written and passes the
// result to fn. The parent directory is watched so that editors replacing
// the file by rename are seen. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, fn func(*Config, error)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("config: resolve %s: %w", path, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("config: watch %s: %w", filepath.Dir(abs), err)
	}

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(WatchDebounce)
			} else {
				timer.Reset(WatchDebounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			fn(Load(abs))

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			fn(nil, fmt.Errorf("config: watch: %w", err))
		}
	}
}
