package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"mac-bootstrap/internal/logger"
	"mac-bootstrap/internal/power"
	"mac-bootstrap/internal/prefs"
	"mac-bootstrap/internal/provision"
)

//go:embed default.yaml
var defaultYAML []byte

const (
	defaultReportFile  = "~/.mac-bootstrap/last-run.json"
	defaultInterpreter = "/bin/bash"
)

// Default returns the built-in configuration.
func Default() (*Config, error) {
	return Parse(defaultYAML)
}

// Load reads the configuration at path. An empty path selects the built-in default.
func Load(path string) (*Config, error) {
	if path == "" {
		logger.Debug("Using built-in configuration")
		return Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	logger.Debug("Loaded configuration from %s", path)
	cfg, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes, expands and validates a configuration document.
// Unknown fields are rejected so typos do not silently disable a step.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("configuration is empty")
		}
		return nil, fmt.Errorf("parse config: %w", err)
	}

	env, err := currentEnv()
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	cfg.expand(env)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ReportFile == "" {
		c.ReportFile = defaultReportFile
	}
	if c.KeepAwake.Enabled && len(c.KeepAwake.Settings) == 0 {
		c.KeepAwake.Settings = append([]string(nil), power.DefaultSettings...)
	}
	for i := range c.Steps {
		s := &c.Steps[i]
		if s.Kind == KindScript && s.Interpreter == "" {
			s.Interpreter = defaultInterpreter
		}
		for j := range s.Preferences {
			if s.Preferences[j].Store == "" {
				s.Preferences[j].Store = StoreDefaults
			}
			if s.Preferences[j].Type == "" {
				s.Preferences[j].Type = prefs.TypeString
			}
		}
	}
}

// expand resolves ~, $HOME and $USER in path-like fields. Profile lines are
// left alone: they are written verbatim for the shell to expand.
func (c *Config) expand(env map[string]string) {
	x := func(s string) string { return ExpandPath(s, env) }
	xs := func(in []string) {
		for i := range in {
			in[i] = x(in[i])
		}
	}

	xs(c.Path)
	c.ReportFile = x(c.ReportFile)
	for i := range c.Steps {
		s := &c.Steps[i]
		s.Creates = x(s.Creates)
		s.File = x(s.File)
		s.Dest = x(s.Dest)
		xs(s.Paths)
		xs(s.Args)
		xs(s.Check)
		xs(s.Run)
		for j := range s.Preferences {
			p := &s.Preferences[j]
			p.Domain = x(p.Domain)
			if p.Type == prefs.TypeString {
				p.Value = x(p.Value)
			}
		}
	}
}

// ExpandPath replaces a leading ~ and the $HOME and $USER variables.
// Other variables are kept as written.
func ExpandPath(s string, env map[string]string) string {
	if s == "~" {
		s = "$HOME"
	} else if strings.HasPrefix(s, "~/") {
		s = "$HOME" + s[1:]
	}
	if !strings.Contains(s, "$") {
		return s
	}
	return os.Expand(s, func(name string) string {
		if v, ok := env[name]; ok {
			return v
		}
		return "${" + name + "}"
	})
}

func currentEnv() (map[string]string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	env := map[string]string{"HOME": home, "USER": os.Getenv("USER")}
	if env["USER"] == "" {
		if u, err := user.Current(); err == nil {
			env["USER"] = u.Username
		}
	}
	return env, nil
}

// Validate reports every problem in the configuration at once.
func (c *Config) Validate() error {
	var errs []error
	if c.KeepAwake.Enabled {
		if _, err := power.ParseScope(c.KeepAwake.Scope); err != nil {
			errs = append(errs, fmt.Errorf("keep_awake: %w", err))
		}
	}

	seen := make(map[string]bool, len(c.Steps))
	for i, s := range c.Steps {
		label := s.Name
		if label == "" {
			label = fmt.Sprintf("steps[%d]", i)
			errs = append(errs, fmt.Errorf("%s: name is required", label))
		} else if seen[s.Name] {
			errs = append(errs, fmt.Errorf("%s: duplicate step name", label))
		}
		seen[s.Name] = true

		if _, err := provision.ParsePolicy(s.OnFailure, provision.Continue); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", label, err))
		}
		for _, err := range s.validate() {
			errs = append(errs, fmt.Errorf("%s: %w", label, err))
		}
	}
	return errors.Join(errs...)
}

func (s Step) validate() []error {
	var errs []error
	require := func(ok bool, field string) {
		if !ok {
			errs = append(errs, fmt.Errorf("%s is required for kind %s", field, s.Kind))
		}
	}

	switch s.Kind {
	case KindScript:
		require(s.URL != "", "url")
		require(s.Creates != "" || s.Command != "", "creates or command")
	case KindBrew:
		require(len(s.Formulae)+len(s.Casks) > 0, "formulae or casks")
	case KindArchive:
		require(s.URL != "", "url")
		require(s.Dest != "", "dest")
		require(s.Creates != "", "creates")
		if _, err := filepath.Match(s.Include, ""); err != nil {
			errs = append(errs, fmt.Errorf("include %q: %w", s.Include, err))
		}
	case KindDirectories:
		require(len(s.Paths) > 0, "paths")
	case KindProfile:
		require(s.File != "", "file")
		require(len(s.Lines) > 0, "lines")
	case KindPreferences:
		require(len(s.Preferences) > 0, "preferences")
		for _, p := range s.Preferences {
			if err := p.validate(); err != nil {
				errs = append(errs, err)
			}
		}
	case KindIdentity, KindSSHKey:
		require(s.File != "", "file")
	case KindCommand:
		require(len(s.Check) > 0, "check")
		require(len(s.Run) > 0, "run")
	case "":
		errs = append(errs, errors.New("kind is required"))
	default:
		errs = append(errs, fmt.Errorf("unknown kind %q (want one of %s)", s.Kind, strings.Join(Kinds, ", ")))
	}
	return errs
}

func (p Preference) validate() error {
	id := p.Domain + " " + p.Key
	if p.Domain == "" || p.Key == "" {
		return fmt.Errorf("preference %q: domain and key are required", strings.TrimSpace(id))
	}
	if !slices.Contains([]string{StoreDefaults, StoreDirectory}, p.Store) {
		return fmt.Errorf("preference %s: unknown store %q", id, p.Store)
	}
	if err := (prefs.Value{Type: p.Type, Data: p.Value}).Validate(); err != nil {
		return fmt.Errorf("preference %s: %w", id, err)
	}
	return nil
}
