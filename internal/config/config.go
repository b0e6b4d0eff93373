// Package config loads and validates mirage.json, the per-project
// configuration file. Missing values fall back to defaults, so an empty
// file (or none at all, via New) is a working configuration.
package config

import (
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/mirageui/mirage/internal/errors"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "mirage.json"

	// DefaultPort is the default development server port.
	DefaultPort = 4400

	// DefaultHost is the default development server host.
	DefaultHost = "localhost"

	// DefaultUnitsDir is the default directory holding *.ui.hcl files.
	DefaultUnitsDir = "units"

	// DefaultOutputDir is the default artifact output directory.
	DefaultOutputDir = "dist"

	// DefaultArtifactPrefix qualifies generated module filenames.
	DefaultArtifactPrefix = "unit"

	// DefaultArtifactExt is the generated module extension.
	DefaultArtifactExt = ".mjs"

	// DefaultPhaseDurationMs is used when an animated declaration omits
	// its duration.
	DefaultPhaseDurationMs = 200
)

// Config represents the complete mirage.json configuration.
type Config struct {
	// Name is the project name.
	Name string `json:"name,omitempty"`

	// Units is the directory holding unit declaration files.
	Units string `json:"units,omitempty"`

	// Artifacts contains artifact output configuration.
	Artifacts ArtifactsConfig `json:"artifacts,omitempty"`

	// Dev contains development server configuration.
	Dev DevConfig `json:"dev,omitempty"`

	// S3 contains the optional artifact publish sink.
	S3 S3Config `json:"s3,omitempty"`

	// PhaseDurationMs is the default animated phase duration.
	PhaseDurationMs int `json:"phaseDurationMs,omitempty"`

	configPath string
}

// ArtifactsConfig contains artifact writer settings.
type ArtifactsConfig struct {
	// Output is the artifact output directory.
	Output string `json:"output,omitempty"`

	// Prefix qualifies generated module filenames.
	Prefix string `json:"prefix,omitempty"`

	// Ext is the generated module extension, dot included.
	Ext string `json:"ext,omitempty"`
}

// DevConfig contains development server settings.
type DevConfig struct {
	// Port is the port to run the dev server on.
	Port int `json:"port,omitempty"`

	// Host is the host to bind to.
	Host string `json:"host,omitempty"`
}

// S3Config configures the optional S3 publish sink. Publishing is
// enabled when Bucket is non-empty.
type S3Config struct {
	Bucket string `json:"bucket,omitempty"`
	Prefix string `json:"prefix,omitempty"`
	Region string `json:"region,omitempty"`
}

// New returns a configuration with all defaults applied.
func New() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads mirage.json from dir.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads a configuration file from an explicit path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("E141").
				WithDetail("no " + ConfigFileName + " found in " + filepath.Dir(path)).
				WithSuggestion("create " + ConfigFileName + " in the project root, an empty object is enough")
		}
		return nil, errors.New("E140").Wrap(err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.New("E140").
			WithDetail("failed to parse " + ConfigFileName + ": " + err.Error()).
			WithSuggestion("check that " + ConfigFileName + " is valid JSON")
	}

	cfg.configPath = path
	cfg.applyDefaults()
	return cfg, nil
}

// Save writes the configuration back to the path it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.New("E140").WithDetail("configuration has no file path")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to an explicit path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New("E140").Wrap(err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("E140").Wrap(err)
	}
	c.configPath = path
	return nil
}

// Path returns where the configuration was loaded from.
func (c *Config) Path() string { return c.configPath }

// Dir returns the project root, the directory holding mirage.json.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return "."
	}
	return filepath.Dir(c.configPath)
}

func (c *Config) applyDefaults() {
	if c.Units == "" {
		c.Units = DefaultUnitsDir
	}
	if c.Artifacts.Output == "" {
		c.Artifacts.Output = DefaultOutputDir
	}
	if c.Artifacts.Prefix == "" {
		c.Artifacts.Prefix = DefaultArtifactPrefix
	}
	if c.Artifacts.Ext == "" {
		c.Artifacts.Ext = DefaultArtifactExt
	}
	if c.Dev.Port == 0 {
		c.Dev.Port = DefaultPort
	}
	if c.Dev.Host == "" {
		c.Dev.Host = DefaultHost
	}
	if c.PhaseDurationMs == 0 {
		c.PhaseDurationMs = DefaultPhaseDurationMs
	}
}

// UnitsPath returns the absolute units directory.
func (c *Config) UnitsPath() string {
	return c.resolve(c.Units)
}

// OutputPath returns the absolute artifact output directory.
func (c *Config) OutputPath() string {
	return c.resolve(c.Artifacts.Output)
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Dir(), p)
}

// DevAddress returns "host:port" for the dev server listener.
func (c *Config) DevAddress() string {
	return net.JoinHostPort(c.Dev.Host, strconv.Itoa(c.Dev.Port))
}

// DevURL returns the dev server base URL.
func (c *Config) DevURL() string {
	return "http://" + c.DevAddress()
}

// PhaseDuration returns the default animated phase duration.
func (c *Config) PhaseDuration() time.Duration {
	return time.Duration(c.PhaseDurationMs) * time.Millisecond
}

// HasS3 reports whether the S3 publish sink is configured.
func (c *Config) HasS3() bool { return c.S3.Bucket != "" }

// Exists reports whether dir contains a mirage.json.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}

// FindProjectRoot walks up from startDir looking for mirage.json.
func FindProjectRoot(startDir string) (string, error) {
	dir := startDir
	for {
		if Exists(dir) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("E141").
				WithDetail("no " + ConfigFileName + " found in " + startDir + " or any parent directory")
		}
		dir = parent
	}
}

// LoadFromWorkingDir locates the project root from the current working
// directory and loads its configuration.
func LoadFromWorkingDir() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	root, err := FindProjectRoot(wd)
	if err != nil {
		return nil, err
	}
	return Load(root)
}
