// env_config.go: Environment variable expansion for platform options
//
// String options may reference the environment with ${VAR} or
// ${VAR:-default}. A variable is looked up with the configured prefix first
// (GO_BUNDLES_VAR), then unprefixed.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gobundles

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// EnvPrefix is the default prefix for environment overrides.
const EnvPrefix = "GO_BUNDLES_"

const maxEnvValueLength = 4096

var variablePattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// EnvConfigOptions configures environment variable processing behavior.
type EnvConfigOptions struct {
	// Prefix for environment variables (e.g., "GO_BUNDLES_")
	Prefix string `json:"prefix" yaml:"prefix"`

	// Whether to fail when a referenced variable has no value
	FailOnMissing bool `json:"fail_on_missing" yaml:"fail_on_missing"`

	// Whether to reject values with NUL bytes, control characters or
	// excessive length
	ValidateValues bool `json:"validate_values" yaml:"validate_values"`

	// Default values for undefined environment variables
	Defaults map[string]string `json:"defaults,omitempty" yaml:"defaults,omitempty"`
}

// DefaultEnvConfigOptions returns the options used by LoadPlatformOptions.
func DefaultEnvConfigOptions() EnvConfigOptions {
	return EnvConfigOptions{
		Prefix:         EnvPrefix,
		FailOnMissing:  false,
		ValidateValues: true,
		Defaults:       make(map[string]string),
	}
}

// ExpandEnvironmentVariables expands ${VAR} and ${VAR:-default} in input.
//
// Resolution order for each variable:
//  1. prefixed environment variable
//  2. unprefixed environment variable
//  3. inline default
//  4. options.Defaults
//  5. empty string, or an error when FailOnMissing is set
func ExpandEnvironmentVariables(input string, options EnvConfigOptions) (string, error) {
	if !strings.Contains(input, "${") {
		return input, nil
	}

	var b strings.Builder
	last := 0
	for _, loc := range variablePattern.FindAllStringSubmatchIndex(input, -1) {
		b.WriteString(input[last:loc[0]])
		last = loc[1]

		name := input[loc[2]:loc[3]]
		fallback := ""
		if loc[6] >= 0 {
			fallback = input[loc[6]:loc[7]]
		}
		value, err := lookupVariable(name, fallback, options)
		if err != nil {
			return input, err
		}
		b.WriteString(value)
	}
	b.WriteString(input[last:])
	return b.String(), nil
}

func lookupVariable(name, fallback string, options EnvConfigOptions) (string, error) {
	candidates := []string{
		os.Getenv(options.Prefix + name),
		os.Getenv(name),
		fallback,
		options.Defaults[name],
	}
	for _, value := range candidates {
		if value != "" {
			return validateAndSanitizeValue(name, value, options)
		}
	}
	if options.FailOnMissing {
		return "", NewConfigError(name,
			fmt.Sprintf("required environment variable not found: %s (also tried %s%s)", name, options.Prefix, name), nil)
	}
	return "", nil
}

func validateAndSanitizeValue(varName, value string, options EnvConfigOptions) (string, error) {
	switch {
	case !options.ValidateValues:
		return value, nil
	case strings.IndexByte(value, 0) >= 0:
		return "", NewConfigError(varName, "environment variable value contains null byte", nil)
	case len(value) > maxEnvValueLength:
		return "", NewConfigError(varName,
			fmt.Sprintf("environment variable value too long: %d bytes (max %d)", len(value), maxEnvValueLength), nil)
	}
	for pos, r := range value {
		if r < 32 && r != '\t' {
			return "", NewConfigError(varName,
				fmt.Sprintf("environment variable contains control character at position %d", pos), nil)
		}
	}
	return value, nil
}

// expandPlatformOptions expands every string field of opts in place.
func expandPlatformOptions(opts *PlatformOptions, env EnvConfigOptions) error {
	fields := []*string{
		&opts.ConfigurationDir,
		&opts.InstallDir,
		&opts.InstanceDir,
		&opts.UserDir,
		&opts.CacheDir,
		&opts.MetricsNamespace,
	}
	for _, field := range fields {
		expanded, err := ExpandEnvironmentVariables(*field, env)
		if err != nil {
			return err
		}
		*field = expanded
	}
	for i, dir := range opts.PluginDirs {
		expanded, err := ExpandEnvironmentVariables(dir, env)
		if err != nil {
			return err
		}
		opts.PluginDirs[i] = expanded
	}
	return nil
}
