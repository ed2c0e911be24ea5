// Package config resolves client settings from defaults, a YAML file,
// environment variables and command-line flags, in increasing priority.
//
// The merged result is validated against the CUE schema embedded from
// schema.cue before any command uses it.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Defaults applied before the file, env and flags.
const (
	DefaultTimeoutSeconds = 30
	DefaultFormat         = "table"
	DefaultRoles          = "admin"
)

// Config holds every setting the client understands. json tags drive the
// CUE encoding; yaml tags drive the config file.
type Config struct {
	Endpoint       string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Token          string `json:"token,omitempty" yaml:"token,omitempty"`
	UserID         string `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	ProjectID      string `json:"project_id,omitempty" yaml:"project_id,omitempty"`
	Roles          string `json:"roles,omitempty" yaml:"roles,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
	Database       string `json:"database,omitempty" yaml:"database,omitempty"`
	Format         string `json:"format,omitempty" yaml:"format,omitempty"`
}

// Timeout returns the HTTP timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Environment variables read by Load, keyed by the field they set.
var envVars = []struct {
	name string
	set  func(*Config, string)
}{
	{"AODH_ENDPOINT", func(c *Config, v string) { c.Endpoint = v }},
	{"OS_AUTH_TOKEN", func(c *Config, v string) { c.Token = v }},
	{"AODH_USER_ID", func(c *Config, v string) { c.UserID = v }},
	{"AODH_PROJECT_ID", func(c *Config, v string) { c.ProjectID = v }},
	{"AODH_ROLES", func(c *Config, v string) { c.Roles = v }},
	{"AODH_DB", func(c *Config, v string) { c.Database = v }},
}

// LoadOptions controls where Load looks for settings.
type LoadOptions struct {
	// Path is an explicit config file. A missing explicit file is an error;
	// a missing default file is not.
	Path string

	// Getenv looks up environment variables. Defaults to os.Getenv.
	Getenv func(string) string

	// Overrides are applied last. Only non-zero fields override.
	Overrides Config
}

// Error reports an invalid configuration.
type Error struct {
	Field   string // config key, empty when the problem is not field specific
	Message string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config %s: %s", e.Field, e.Message)
	}
	return "config: " + e.Message
}

// Load merges defaults, the config file, env vars and overrides, then
// validates the result.
func Load(opts LoadOptions) (*Config, error) {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	cfg := &Config{
		TimeoutSeconds: DefaultTimeoutSeconds,
		Format:         DefaultFormat,
		Roles:          DefaultRoles,
	}

	path, explicit := opts.Path, opts.Path != ""
	if !explicit {
		path = getenv("AODH_CONFIG")
		explicit = path != ""
	}
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		if err := mergeFile(cfg, path, explicit); err != nil {
			return nil, err
		}
	}

	for _, ev := range envVars {
		if v := getenv(ev.name); v != "" {
			ev.set(cfg, v)
		}
	}

	cfg.merge(opts.Overrides)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultPath returns $XDG_CONFIG_HOME/aodh/config.yaml (or the platform
// equivalent), or "" when no config directory is known.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "aodh", "config.yaml")
}

// DefaultDatabasePath returns the saved-query database location next to the
// default config file.
func DefaultDatabasePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "aodh-queries.db"
	}
	return filepath.Join(dir, "aodh", "queries.db")
}

func mergeFile(cfg *Config, path string, explicit bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return &Error{Message: fmt.Sprintf("reading %s: %v", path, err)}
	}

	var fileCfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fileCfg); err != nil && !errors.Is(err, io.EOF) {
		return &Error{Message: fmt.Sprintf("parsing %s: %v", path, err)}
	}

	cfg.merge(fileCfg)
	return nil
}

// merge copies every non-zero field of other into c.
func (c *Config) merge(other Config) {
	if other.Endpoint != "" {
		c.Endpoint = other.Endpoint
	}
	if other.Token != "" {
		c.Token = other.Token
	}
	if other.UserID != "" {
		c.UserID = other.UserID
	}
	if other.ProjectID != "" {
		c.ProjectID = other.ProjectID
	}
	if other.Roles != "" {
		c.Roles = other.Roles
	}
	if other.TimeoutSeconds != 0 {
		c.TimeoutSeconds = other.TimeoutSeconds
	}
	if other.Database != "" {
		c.Database = other.Database
	}
	if other.Format != "" {
		c.Format = other.Format
	}
}

// Validate checks cfg against the embedded CUE schema.
func Validate(cfg *Config) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compiling config schema: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Config"))
	value := ctx.Encode(cfg)
	if err := value.Err(); err != nil {
		return &Error{Message: err.Error()}
	}

	if err := def.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return formatCUEError(err)
	}
	return nil
}

// formatCUEError turns the first CUE validation error into an *Error naming
// the offending key.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &Error{Message: err.Error()}
	}

	first := errs[0]
	path := first.Path()
	field := ""
	if len(path) > 0 {
		field = path[len(path)-1]
	}
	format, args := first.Msg()
	return &Error{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}
}
