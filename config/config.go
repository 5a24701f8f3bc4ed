// Package config holds the plugin's operator-facing options.
//
// The two recognized options are enabled (default true) and screenshotPaths
// (none by default). They can come from an optional yaml file, from
// SCREENSWEEP_* environment variables, and from --screensweep-* flags, with
// later sources winning in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/alecthomas/kong"

	"gopkg.in/yaml.v3"
)

// DefaultFile is the config file Resolve looks for when no path is given.
const DefaultFile = ".screensweep.yml"

var errPathsKind = errors.New("screenshotPaths must be a string or a list of strings")

// Config is the effective plugin configuration.
type Config struct {
	// Enabled toggles the whole plugin.
	Enabled bool
	// ScreenshotPaths are static glob patterns scanned in addition to the
	// patterns derived from browser configuration.
	ScreenshotPaths []string
}

func Default() Config {
	return Config{Enabled: true}
}

// Flags is the kong grammar for the plugin's options under its fixed
// namespace. ParseArgs parses a plugin-scoped argv slice with it. Hosts with
// a kong-based CLI can mount it via kong.Plugins instead; they must provide
// the screensweep_enabled_default variable, normally "true".
type Flags struct {
	Enabled         bool     `name:"screensweep-enabled" env:"SCREENSWEEP_ENABLED" default:"${screensweep_enabled_default}" help:"Enable the unused-screenshots plugin."`
	ScreenshotPaths []string `name:"screensweep-screenshot-path" env:"SCREENSWEEP_SCREENSHOT_PATHS" sep:"," help:"Static glob pattern to scan for reference images. Repeatable."`
}

// fileSpec is the on-disk yaml structure.
type fileSpec struct {
	Enabled         *bool      `yaml:"enabled"`
	ScreenshotPaths stringList `yaml:"screenshotPaths"`
}

// stringList decodes a yaml scalar or a sequence of scalars.
type stringList []string

func (l *stringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return fmt.Errorf("decode screenshot path: %w", err)
		}
		*l = stringList{s}
		return nil
	case yaml.SequenceNode:
		var ss []string
		if err := node.Decode(&ss); err != nil {
			return fmt.Errorf("decode screenshot paths: %w", err)
		}
		*l = stringList(ss)
		return nil
	default:
		return errPathsKind
	}
}

// LoadFile reads, schema-validates and decodes a yaml config file. Values
// omitted in the file keep their base values. A validation failure here is
// fatal to plugin activation; nothing catches it downstream.
func LoadFile(path string, base Config) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if err := validateRaw(raw); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}

	var spec fileSpec
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg := base
	if spec.Enabled != nil {
		cfg.Enabled = *spec.Enabled
	}
	if len(spec.ScreenshotPaths) > 0 {
		cfg.ScreenshotPaths = []string(spec.ScreenshotPaths)
	}
	return cfg, nil
}

// ParseArgs applies environment variables and flags on top of base. args must
// contain only the plugin's own namespaced flags.
func ParseArgs(base Config, args []string) (Config, error) {
	var f Flags
	k, err := kong.New(
		&f,
		kong.Name("screensweep"),
		kong.Description("Detect and remove unused screenshot reference images."),
		kong.UsageOnError(),
		kong.Vars{"screensweep_enabled_default": strconv.FormatBool(base.Enabled)},
	)
	if err != nil {
		return Config{}, fmt.Errorf("init option parser: %w", err)
	}
	if _, err := k.Parse(args); err != nil {
		return Config{}, fmt.Errorf("parse options: %w", err)
	}

	cfg := base
	cfg.Enabled = f.Enabled
	if len(f.ScreenshotPaths) > 0 {
		cfg.ScreenshotPaths = f.ScreenshotPaths
	}
	return cfg, nil
}

// Resolve builds the effective config: defaults, then the optional yaml file,
// then environment variables and flags. The file is optional only when path
// is empty and the default location is used.
func Resolve(path string, args []string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	fileCfg, err := LoadFile(path, cfg)
	switch {
	case err == nil:
		cfg = fileCfg
	case !explicit && errors.Is(err, fs.ErrNotExist):
		// No config file, defaults apply.
	default:
		return Config{}, err
	}

	return ParseArgs(cfg, args)
}
