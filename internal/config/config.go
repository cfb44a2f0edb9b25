// Package config assembles the bot configuration from defaults, an optional
// YAML file and LINKBOT_* environment variables. Command-line flags are
// applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"linkbot/internal/history"
	"linkbot/pkg/state"
)

const envPrefix = "LINKBOT_"

const (
	DefaultNick             = "geecxx"
	DefaultTitleTimeout     = 10 * time.Second
	DefaultAutosaveInterval = 5 * time.Minute
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Server  string `yaml:"server"`
	Port    int    `yaml:"port"`
	Channel string `yaml:"channel"`
	Key     string `yaml:"key"`
	Nick    string `yaml:"nick"`

	// HistoryFile defaults to a per server/channel file under the user cache dir.
	HistoryFile string `yaml:"history_file"`
	HistorySize int    `yaml:"history_size"`

	TitleTimeout time.Duration `yaml:"title_timeout"`
	// HTTPProxy is "", "direct", "env" or a proxy URL.
	HTTPProxy string `yaml:"http_proxy"`
	// IRCProxy is a SOCKS5 proxy for the chat connection.
	IRCProxy string `yaml:"irc_proxy"`

	// AutosaveInterval of 0 disables periodic saving.
	AutosaveInterval time.Duration `yaml:"autosave_interval"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func Default() Config {
	return Config{
		Nick:             DefaultNick,
		HistorySize:      history.DefaultMaxSize,
		TitleTimeout:     DefaultTitleTimeout,
		AutosaveInterval: DefaultAutosaveInterval,
		LogLevel:         "info",
		LogFormat:        "console",
	}
}

// Load returns defaults overlaid with the YAML file at path (skipped when
// path is empty) and then with the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		if err := cfg.LoadFile(path); err != nil {
			return cfg, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from LINKBOT_* variables that are set.
func (c *Config) ApplyEnv() error {
	strs := map[string]*string{
		"SERVER":       &c.Server,
		"CHANNEL":      &c.Channel,
		"KEY":          &c.Key,
		"NICK":         &c.Nick,
		"HISTORY_FILE": &c.HistoryFile,
		"HTTP_PROXY":   &c.HTTPProxy,
		"IRC_PROXY":    &c.IRCProxy,
		"LOG_LEVEL":    &c.LogLevel,
		"LOG_FORMAT":   &c.LogFormat,
	}
	for name, dst := range strs {
		if v, ok := lookupEnv(name); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"PORT":         &c.Port,
		"HISTORY_SIZE": &c.HistorySize,
	}
	for name, dst := range ints {
		v, ok := lookupEnv(name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s%s=%q: %v", ErrInvalid, envPrefix, name, v, err)
		}
		*dst = n
	}

	durations := map[string]*time.Duration{
		"TITLE_TIMEOUT":     &c.TitleTimeout,
		"AUTOSAVE_INTERVAL": &c.AutosaveInterval,
	}
	for name, dst := range durations {
		v, ok := lookupEnv(name)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s%s=%q: %v", ErrInvalid, envPrefix, name, v, err)
		}
		*dst = d
	}
	return nil
}

func lookupEnv(name string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + name)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// HistoryPath is HistoryFile, or the default state file when unset.
func (c Config) HistoryPath() string {
	if p := strings.TrimSpace(c.HistoryFile); p != "" {
		return p
	}
	return state.HistoryFile(c.Server, c.Channel)
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server) == "" {
		errs = append(errs, errors.New("server is required"))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if strings.TrimSpace(c.Channel) == "" {
		errs = append(errs, errors.New("channel is required"))
	}
	if n := strings.TrimSpace(c.Nick); n == "" || strings.ContainsAny(n, " \r\n") {
		errs = append(errs, fmt.Errorf("nick %q is not valid", c.Nick))
	}
	if c.HistorySize < 0 {
		errs = append(errs, fmt.Errorf("history size %d is negative", c.HistorySize))
	}
	if c.TitleTimeout < 0 {
		errs = append(errs, errors.New("title timeout is negative"))
	}
	if c.AutosaveInterval < 0 {
		errs = append(errs, errors.New("autosave interval is negative"))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}
