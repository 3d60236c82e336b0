package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// OutputConfig names a MIDI output port. Its position in Config.Outputs is
// the PortID instruments refer to.
type OutputConfig struct {
	Name string `yaml:"name"`
}

// TransportConfig holds the clock settings a new project starts with
type TransportConfig struct {
	PPQN  int     `yaml:"ppqn"`
	Tempo float64 `yaml:"tempo"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file,omitempty"` // empty disables the log file
}

// RemoteConfig configures the HTTP API started by `serve`
type RemoteConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

type ProjectConfig struct {
	Name          string        `yaml:"name"`
	Dir           string        `yaml:"dir,omitempty"` // defaults to ~/.config/midiseq/projects
	AutosaveDelay time.Duration `yaml:"autosaveDelay"` // zero disables autosave
}

// UIConfig stores UI preferences
type UIConfig struct {
	Palette string `yaml:"palette,omitempty"` // GIMP .gpl file; built-in colors when empty
}

// Config is the main configuration structure
type Config struct {
	Outputs   []OutputConfig  `yaml:"outputs,omitempty"`
	Transport TransportConfig `yaml:"transport"`
	Log       LogConfig       `yaml:"log"`
	Remote    RemoteConfig    `yaml:"remote"`
	Project   ProjectConfig   `yaml:"project"`
	UI        UIConfig        `yaml:"ui,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Transport: TransportConfig{
			PPQN:  480,
			Tempo: 120,
		},
		Log: LogConfig{
			Level: "info",
		},
		Remote: RemoteConfig{
			Addr: "127.0.0.1:7410",
		},
		Project: ProjectConfig{
			Name:          "untitled",
			AutosaveDelay: 2 * time.Second,
		},
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "midiseq"), nil
}

// ConfigPath returns the full path to config.yaml
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the config at path (ConfigPath when empty), or returns
// defaults if the file does not exist. Keys missing from the file keep
// their default values.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return DefaultConfig(), nil
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values the engine cannot start with
func (c *Config) Validate() error {
	if c.Transport.PPQN <= 0 {
		return fmt.Errorf("transport.ppqn must be positive, got %d", c.Transport.PPQN)
	}
	if c.Transport.Tempo < 20 || c.Transport.Tempo > 300 {
		return fmt.Errorf("transport.tempo must be within 20-300, got %v", c.Transport.Tempo)
	}
	if c.Project.AutosaveDelay < 0 {
		return fmt.Errorf("project.autosaveDelay must not be negative")
	}
	for i, o := range c.Outputs {
		if o.Name == "" {
			return fmt.Errorf("outputs[%d] has no name", i)
		}
	}
	return nil
}

// Save writes the config to path (ConfigPath when empty)
func (c *Config) Save(path string) error {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return err
		}
		path = p
	}

	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// FindOutput returns the PortID of the named output, or -1
func (c *Config) FindOutput(name string) int {
	for i := range c.Outputs {
		if c.Outputs[i].Name == name {
			return i
		}
	}
	return -1
}

// AddOutput appends an output unless one with the same name exists, and
// returns its PortID
func (c *Config) AddOutput(name string) int {
	if i := c.FindOutput(name); i >= 0 {
		return i
	}
	c.Outputs = append(c.Outputs, OutputConfig{Name: name})
	return len(c.Outputs) - 1
}

// PortNames lists output names in PortID order
func (c *Config) PortNames() []string {
	names := make([]string, len(c.Outputs))
	for i, o := range c.Outputs {
		names[i] = o.Name
	}
	return names
}

// ProjectsDir resolves the project directory
func (c *Config) ProjectsDir() (string, error) {
	if c.Project.Dir != "" {
		return c.Project.Dir, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "projects"), nil
}
