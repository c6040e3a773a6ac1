// config.go: Platform options
//
// Options come from code, from a JSON/YAML/TOML file (LoadPlatformOptions)
// or both. Every string option supports ${VAR} and ${VAR:-default}
// expansion, see env_config.go.
//
//	plugin_dirs: ["${GO_BUNDLES_HOME:-/opt/app}/plugins", "./plugins"]
//	clean_cache: true
//	lua_call_timeout: 2s
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gobundles

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agilira/argus"
	"gopkg.in/yaml.v3"
)

// PlatformOptions configures InternalPlatform.Initialize.
type PlatformOptions struct {
	// Plugin base directories. Each entry may itself be a colon or
	// semicolon separated list.
	PluginDirs []string `json:"plugin_dirs" yaml:"plugin_dirs"`

	// Wipe the code cache before loading bundles
	CleanCache bool `json:"clean_cache" yaml:"clean_cache"`

	ConfigurationDir string `json:"configuration_dir,omitempty" yaml:"configuration_dir,omitempty"`
	InstallDir       string `json:"install_dir,omitempty" yaml:"install_dir,omitempty"`
	InstanceDir      string `json:"instance_dir,omitempty" yaml:"instance_dir,omitempty"`
	UserDir          string `json:"user_dir,omitempty" yaml:"user_dir,omitempty"`
	CacheDir         string `json:"cache_dir,omitempty" yaml:"cache_dir,omitempty"`

	// File extensions recognised as bundle archives, e.g. ".zip"
	ArchiveExtensions []string `json:"archive_extensions,omitempty" yaml:"archive_extensions,omitempty"`

	// Upper bound for one Lua activator hook, as a Go duration string
	LuaCallTimeout string `json:"lua_call_timeout,omitempty" yaml:"lua_call_timeout,omitempty"`

	// Prometheus namespace used when the host asks for Prometheus metrics
	MetricsNamespace string `json:"metrics_namespace,omitempty" yaml:"metrics_namespace,omitempty"`
}

// DefaultPlatformOptions derives directories from the user's config and
// cache directories, falling back to the temp directory.
func DefaultPlatformOptions() PlatformOptions {
	userDir := filepath.Join(os.TempDir(), "gobundles")
	if dir, err := os.UserConfigDir(); err == nil {
		userDir = filepath.Join(dir, "gobundles")
	}
	cacheDir := filepath.Join(userDir, "cache")
	if dir, err := os.UserCacheDir(); err == nil {
		cacheDir = filepath.Join(dir, "gobundles")
	}
	installDir := "."
	if exe, err := os.Executable(); err == nil {
		installDir = filepath.Dir(exe)
	}

	return PlatformOptions{
		ConfigurationDir:  filepath.Join(userDir, "configuration"),
		InstallDir:        installDir,
		InstanceDir:       filepath.Join(userDir, "instance"),
		UserDir:           userDir,
		CacheDir:          cacheDir,
		ArchiveExtensions: append([]string(nil), DefaultArchiveExtensions...),
		LuaCallTimeout:    DefaultLuaCallTimeout.String(),
		MetricsNamespace:  "gobundles",
	}
}

// ApplyDefaults fills every empty field from DefaultPlatformOptions.
func (o *PlatformOptions) ApplyDefaults() {
	d := DefaultPlatformOptions()
	setDefault := func(field *string, value string) {
		if *field == "" {
			*field = value
		}
	}
	setDefault(&o.ConfigurationDir, d.ConfigurationDir)
	setDefault(&o.InstallDir, d.InstallDir)
	setDefault(&o.InstanceDir, d.InstanceDir)
	setDefault(&o.UserDir, d.UserDir)
	setDefault(&o.CacheDir, d.CacheDir)
	setDefault(&o.LuaCallTimeout, d.LuaCallTimeout)
	setDefault(&o.MetricsNamespace, d.MetricsNamespace)
	if len(o.ArchiveExtensions) == 0 {
		o.ArchiveExtensions = d.ArchiveExtensions
	}
}

// Validate checks option values. It does not touch the filesystem.
func (o *PlatformOptions) Validate() error {
	if o.LuaCallTimeout != "" {
		d, err := time.ParseDuration(o.LuaCallTimeout)
		if err != nil {
			return NewConfigError("lua_call_timeout", "invalid duration "+o.LuaCallTimeout, err)
		}
		if d <= 0 {
			return NewConfigError("lua_call_timeout", "duration must be positive", nil)
		}
	}
	for _, ext := range o.ArchiveExtensions {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			return NewConfigError("archive_extensions", "archive extension must look like .zip, got "+ext, nil)
		}
	}
	return nil
}

// LuaTimeout returns the parsed Lua call timeout, or the default.
func (o *PlatformOptions) LuaTimeout() time.Duration {
	if d, err := time.ParseDuration(o.LuaCallTimeout); err == nil && d > 0 {
		return d
	}
	return DefaultLuaCallTimeout
}

// SearchPaths returns the cleaned, de-duplicated plugin directories.
func (o *PlatformOptions) SearchPaths() []string {
	return ParseSearchPaths(strings.Join(o.PluginDirs, ";"))
}

// ParseSearchPaths splits a colon or semicolon separated directory list.
// Windows drive letters ("C:\plugins") are not treated as separators.
// Empty entries and duplicates are dropped.
func ParseSearchPaths(list string) []string {
	var tokens []string
	var current strings.Builder
	runes := []rune(list)
	for i, r := range runes {
		switch {
		case r == ';':
			tokens = append(tokens, current.String())
			current.Reset()
		case r == ':' && !isDriveLetterColon(current.String(), runes, i):
			tokens = append(tokens, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	tokens = append(tokens, current.String())

	seen := make(map[string]struct{}, len(tokens))
	paths := make([]string, 0, len(tokens))
	for _, token := range tokens {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		cleaned := filepath.Clean(token)
		if _, dup := seen[cleaned]; dup {
			continue
		}
		seen[cleaned] = struct{}{}
		paths = append(paths, cleaned)
	}
	return paths
}

func isDriveLetterColon(token string, runes []rune, i int) bool {
	token = strings.TrimSpace(token)
	if len(token) != 1 {
		return false
	}
	c := token[0]
	if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')) {
		return false
	}
	return i+1 < len(runes) && (runes[i+1] == '\\' || runes[i+1] == '/')
}

// LoadPlatformOptions reads options from a JSON, YAML or TOML file, expands
// environment references and applies defaults.
func LoadPlatformOptions(path string) (PlatformOptions, error) {
	var opts PlatformOptions

	data, err := os.ReadFile(path) // #nosec G304 -- path comes from the host
	if err != nil {
		return opts, NewConfigError(path, "failed to read options file", err)
	}
	if err := parsePlatformOptions(data, argus.DetectFormat(path), &opts); err != nil {
		return opts, NewConfigError(path, "failed to parse options file", err)
	}
	if err := expandPlatformOptions(&opts, DefaultEnvConfigOptions()); err != nil {
		return opts, err
	}
	opts.ApplyDefaults()
	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

// parsePlatformOptions uses yaml.v3 for YAML and argus for the other formats.
func parsePlatformOptions(data []byte, format argus.ConfigFormat, opts *PlatformOptions) error {
	if format == argus.FormatYAML {
		return yaml.Unmarshal(data, opts)
	}

	configMap, err := argus.ParseConfig(data, format)
	if err != nil {
		return err
	}
	jsonBytes, err := json.Marshal(configMap)
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonBytes, opts)
}
