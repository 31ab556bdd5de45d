// Package config loads pacer's runtime configuration.
//
// A YAML file supplies values, PACER_* environment variables override
// them, and the result is unified with the embedded CUE definition
// #Config, which fills defaults and rejects unknown or out-of-range
// fields.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"

	"github.com/roach88/pacer/internal/domain"
)

// DefaultPath is read when no --config flag is given. It may be absent.
const DefaultPath = "pacer.yaml"

//go:embed schema.cue
var schemaSource string

// Config is the resolved configuration.
type Config struct {
	// Path is the file the values came from, or "" if none was read.
	Path string

	Database     string
	UserID       string
	LogLevel     slog.Level
	MetricsAddr  string
	Remote       Remote
	Sync         Sync
	Connectivity Connectivity

	// Defaults seed the user's settings until they save their own.
	Defaults domain.UserSettings
}

// Remote configures the remote store. An empty PostgresURL disables sync.
type Remote struct {
	PostgresURL string
}

// Sync configures retry pacing after a failed pass.
type Sync struct {
	RetryInitial time.Duration
	RetryMax     time.Duration
}

// Connectivity configures the reachability probe used by the daemon.
// An empty ProbeAddress falls back to the remote store's host.
type Connectivity struct {
	ProbeAddress  string
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
}

// Error reports an invalid configuration value.
type Error struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Field, e.Message)
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// envOverrides maps environment variables onto config paths.
var envOverrides = []struct {
	env  string
	path []string
}{
	{"PACER_DB", []string{"database"}},
	{"PACER_USER_ID", []string{"user_id"}},
	{"PACER_REMOTE_URL", []string{"remote", "postgres_url"}},
	{"PACER_LOG_LEVEL", []string{"log_level"}},
	{"PACER_METRICS_ADDR", []string{"metrics_addr"}},
}

// Load reads the file at path and resolves it. A missing file is an error
// only when required is set.
func Load(path string, required bool) (*Config, error) {
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist) && !required:
		data, path = nil, ""
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data, os.LookupEnv)
	if err != nil {
		return nil, err
	}
	cfg.Path = path
	return cfg, nil
}

// Default returns the configuration with every value defaulted.
func Default() *Config {
	cfg, err := Parse(nil, func(string) (string, bool) { return "", false })
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults invalid: %v", err))
	}
	return cfg
}

// Parse resolves YAML data, applying overrides found through lookupEnv.
func Parse(data []byte, lookupEnv func(string) (string, bool)) (*Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &Error{Field: "yaml", Message: err.Error()}
	}
	if raw == nil {
		raw = make(map[string]any)
	}
	for _, o := range envOverrides {
		if v, ok := lookupEnv(o.env); ok && v != "" {
			setPath(raw, o.path, v)
		}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	v := schema.LookupPath(cue.ParsePath("#Config")).Unify(ctx.Encode(raw))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var f file
	if err := v.Decode(&f); err != nil {
		return nil, formatCUEError(err)
	}
	return f.resolve()
}

// file mirrors #Config field for field.
type file struct {
	Database    string `json:"database"`
	UserID      string `json:"user_id"`
	LogLevel    string `json:"log_level"`
	MetricsAddr string `json:"metrics_addr"`
	Remote      struct {
		PostgresURL string `json:"postgres_url"`
	} `json:"remote"`
	Sync struct {
		RetryInitial string `json:"retry_initial"`
		RetryMax     string `json:"retry_max"`
	} `json:"sync"`
	Connectivity struct {
		ProbeAddress  string `json:"probe_address"`
		ProbeInterval string `json:"probe_interval"`
		ProbeTimeout  string `json:"probe_timeout"`
	} `json:"connectivity"`
	Defaults struct {
		DueEveryN             int     `json:"due_every_n"`
		ReminderInterval      string  `json:"reminder_interval"`
		WarningThreshold      float64 `json:"warning_threshold"`
		DefaultNegativeVolume float64 `json:"default_negative_volume"`
		Units                 string  `json:"units"`
	} `json:"defaults"`
}

func (f file) resolve() (*Config, error) {
	cfg := &Config{
		Database:    f.Database,
		UserID:      f.UserID,
		MetricsAddr: f.MetricsAddr,
		Remote:      Remote{PostgresURL: f.Remote.PostgresURL},
		Connectivity: Connectivity{
			ProbeAddress: f.Connectivity.ProbeAddress,
		},
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(f.LogLevel)); err != nil {
		return nil, &Error{Field: "log_level", Message: err.Error()}
	}

	durations := []struct {
		field string
		value string
		dst   *time.Duration
	}{
		{"sync.retry_initial", f.Sync.RetryInitial, &cfg.Sync.RetryInitial},
		{"sync.retry_max", f.Sync.RetryMax, &cfg.Sync.RetryMax},
		{"connectivity.probe_interval", f.Connectivity.ProbeInterval, &cfg.Connectivity.ProbeInterval},
		{"connectivity.probe_timeout", f.Connectivity.ProbeTimeout, &cfg.Connectivity.ProbeTimeout},
		{"defaults.reminder_interval", f.Defaults.ReminderInterval, &cfg.Defaults.ReminderInterval},
	}
	for _, d := range durations {
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return nil, &Error{Field: d.field, Message: err.Error()}
		}
		*d.dst = parsed
	}
	if cfg.Sync.RetryMax < cfg.Sync.RetryInitial {
		return nil, &Error{Field: "sync.retry_max", Message: "must not be shorter than sync.retry_initial"}
	}

	cfg.Defaults.UserID = cfg.UserID
	cfg.Defaults.DueEveryN = f.Defaults.DueEveryN
	cfg.Defaults.WarningThreshold = f.Defaults.WarningThreshold
	cfg.Defaults.DefaultNegativeVolume = f.Defaults.DefaultNegativeVolume
	cfg.Defaults.Units = domain.Units(f.Defaults.Units)
	if err := cfg.Defaults.Validate(); err != nil {
		return nil, &Error{Field: "defaults", Message: err.Error()}
	}
	return cfg, nil
}

func setPath(m map[string]any, path []string, value string) {
	for _, key := range path[:len(path)-1] {
		next, ok := m[key].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[key] = next
		}
		m = next
	}
	m[path[len(path)-1]] = value
}

// formatCUEError keeps the first error and its source position.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &Error{Field: "cue", Message: err.Error()}
	}
	first := errs[0]
	field := "config"
	if path := first.Path(); len(path) > 0 {
		field = joinPath(path)
	}
	e := &Error{Field: field, Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		e.Pos = positions[0]
	}
	return e
}

func joinPath(path []string) string {
	out := path[0]
	for _, p := range path[1:] {
		out += "." + p
	}
	return out
}
