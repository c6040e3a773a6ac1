// manifest.go: Bundle descriptor parsing
//
// A bundle declares its identity in one of two descriptor formats:
//
//   - META-INF/MANIFEST.MF, the OSGi header format ("Key: value" lines,
//     continuation lines start with a single space)
//   - plugin.yaml, plugin.yml or plugin.json, the structured format that can
//     also carry the bundle's extension points and extensions inline
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gobundles

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/agilira/argus"
	"gopkg.in/yaml.v3"
)

// Descriptor file names, in lookup order.
const (
	ManifestMFPath   = "META-INF/MANIFEST.MF"
	PluginXMLPath    = "plugin.xml"
	defaultVersion   = "0.0.0"
	headerContinuing = " "
)

var structuredDescriptorNames = []string{"plugin.yaml", "plugin.yml", "plugin.json"}

// Manifest header names.
const (
	HeaderBundleName       = "Bundle-Name"
	HeaderSymbolicName     = "Bundle-SymbolicName"
	HeaderVersion          = "Bundle-Version"
	HeaderVendor           = "Bundle-Vendor"
	HeaderCopyright        = "Bundle-Copyright"
	HeaderDescription      = "Bundle-Description"
	HeaderActivator        = "Bundle-Activator"
	HeaderActivatorLibrary = "Bundle-Activator-Library"
	HeaderActivationPolicy = "Bundle-ActivationPolicy"
	HeaderRequireBundle    = "Require-Bundle"
)

// Manifest is the immutable, parsed identity of a bundle.
type Manifest struct {
	name             string
	symbolicName     string
	version          string
	vendor           string
	copyright        string
	description      string
	activator        string
	activatorLibrary string
	policy           ActivationPolicy
	requires         []string
	headers          map[string]string
	source           string
}

func (m *Manifest) Name() string                       { return m.name }
func (m *Manifest) SymbolicName() string               { return m.symbolicName }
func (m *Manifest) Version() string                    { return m.version }
func (m *Manifest) Vendor() string                     { return m.vendor }
func (m *Manifest) Copyright() string                  { return m.copyright }
func (m *Manifest) Description() string                { return m.description }
func (m *Manifest) ActivatorClass() string             { return m.activator }
func (m *Manifest) ActivatorLibrary() string           { return m.activatorLibrary }
func (m *Manifest) ActivationPolicy() ActivationPolicy { return m.policy }

// Source returns the descriptor file the manifest was read from.
func (m *Manifest) Source() string { return m.source }

// RequiredBundles returns the symbolic names this bundle depends on, in
// declaration order.
func (m *Manifest) RequiredBundles() []string {
	out := make([]string, len(m.requires))
	copy(out, m.requires)
	return out
}

// Header returns a raw header value. Structured descriptors expose their
// fields under the MANIFEST.MF header names too.
func (m *Manifest) Header(key string) (string, bool) {
	v, ok := m.headers[key]
	return v, ok
}

// HeaderKeys returns all header names, sorted.
func (m *Manifest) HeaderKeys() []string {
	keys := make([]string, 0, len(m.headers))
	for k := range m.headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// structuredDescriptor is the wire shape of plugin.yaml / plugin.json.
type structuredDescriptor struct {
	Name             string               `json:"name" yaml:"name"`
	SymbolicName     string               `json:"symbolic_name" yaml:"symbolic_name"`
	Version          string               `json:"version" yaml:"version"`
	Vendor           string               `json:"vendor,omitempty" yaml:"vendor,omitempty"`
	Copyright        string               `json:"copyright,omitempty" yaml:"copyright,omitempty"`
	Description      string               `json:"description,omitempty" yaml:"description,omitempty"`
	Activator        string               `json:"activator,omitempty" yaml:"activator,omitempty"`
	ActivatorLibrary string               `json:"activator_library,omitempty" yaml:"activator_library,omitempty"`
	ActivationPolicy string               `json:"activation_policy,omitempty" yaml:"activation_policy,omitempty"`
	RequireBundle    []string             `json:"require_bundle,omitempty" yaml:"require_bundle,omitempty"`
	Headers          map[string]string    `json:"headers,omitempty" yaml:"headers,omitempty"`
	ExtensionPoints  []extensionPointSpec `json:"extension_points,omitempty" yaml:"extension_points,omitempty"`
	Extensions       []extensionSpec      `json:"extensions,omitempty" yaml:"extensions,omitempty"`
}

type extensionPointSpec struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

type extensionSpec struct {
	Point    string        `json:"point" yaml:"point"`
	ID       string        `json:"id,omitempty" yaml:"id,omitempty"`
	Name     string        `json:"name,omitempty" yaml:"name,omitempty"`
	Elements []elementSpec `json:"elements,omitempty" yaml:"elements,omitempty"`
}

type elementSpec struct {
	Name       string            `json:"name" yaml:"name"`
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	Value      string            `json:"value,omitempty" yaml:"value,omitempty"`
	Children   []elementSpec     `json:"children,omitempty" yaml:"children,omitempty"`
}

// ParseManifest reads the bundle descriptor from storage. A storage without
// any descriptor fails with ErrCodeManifestNotFound; a malformed descriptor
// fails with ErrCodeManifest.
func ParseManifest(storage BundleStorage) (*Manifest, error) {
	found, err := HasResource(storage, ManifestMFPath)
	if err != nil {
		return nil, err
	}
	if found {
		data, err := ReadResource(storage, ManifestMFPath)
		if err != nil {
			return nil, err
		}
		return ParseManifestMF(data, storage.GetPath())
	}

	for _, name := range structuredDescriptorNames {
		found, err := HasResource(storage, name)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		desc, err := readStructuredDescriptor(storage, name)
		if err != nil {
			return nil, err
		}
		return manifestFromDescriptor(desc, storage.GetPath()+"/"+name)
	}

	return nil, NewManifestNotFoundError(storage.GetPath())
}

// ParseManifestMF parses MANIFEST.MF content. Only the main section (up to
// the first blank line) is read.
func ParseManifestMF(data []byte, source string) (*Manifest, error) {
	headers := make(map[string]string)
	var lastKey string

	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if lineNo == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		if strings.TrimSpace(line) == "" {
			if len(headers) > 0 {
				break
			}
			continue
		}
		if strings.HasPrefix(line, headerContinuing) {
			if lastKey == "" {
				return nil, NewManifestError(source, fmt.Sprintf("continuation line %d without header", lineNo), nil)
			}
			headers[lastKey] += line[1:]
			continue
		}

		idx := strings.Index(line, ":")
		if idx <= 0 {
			return nil, NewManifestError(source, fmt.Sprintf("line %d is not a 'Key: value' header", lineNo), nil)
		}
		key := strings.TrimSpace(line[:idx])
		if key == "" || strings.ContainsAny(key, " \t") {
			return nil, NewManifestError(source, fmt.Sprintf("invalid header name on line %d", lineNo), nil)
		}
		headers[key] = strings.TrimSpace(line[idx+1:])
		lastKey = key
	}
	if err := scanner.Err(); err != nil {
		return nil, NewManifestError(source, "failed to scan manifest", err)
	}

	m := &Manifest{
		name:             headers[HeaderBundleName],
		symbolicName:     strings.TrimSpace(strings.SplitN(headers[HeaderSymbolicName], ";", 2)[0]),
		version:          headers[HeaderVersion],
		vendor:           headers[HeaderVendor],
		copyright:        headers[HeaderCopyright],
		description:      headers[HeaderDescription],
		activator:        headers[HeaderActivator],
		activatorLibrary: headers[HeaderActivatorLibrary],
		policy:           ParseActivationPolicy(strings.SplitN(headers[HeaderActivationPolicy], ";", 2)[0]),
		requires:         parseRequireBundle(headers[HeaderRequireBundle]),
		headers:          headers,
		source:           source,
	}
	return finishManifest(m)
}

// parseRequireBundle splits a Require-Bundle header. Attributes and
// directives after ';' are dropped; quoted commas do not split.
func parseRequireBundle(value string) []string {
	var clauses []string
	var current strings.Builder
	inQuotes := false
	for _, r := range value {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			current.WriteRune(r)
		case r == ',' && !inQuotes:
			clauses = append(clauses, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	clauses = append(clauses, current.String())

	var names []string
	seen := make(map[string]struct{})
	for _, clause := range clauses {
		name := strings.TrimSpace(strings.SplitN(clause, ";", 2)[0])
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

func readStructuredDescriptor(storage BundleStorage, name string) (*structuredDescriptor, error) {
	data, err := ReadResource(storage, name)
	if err != nil {
		return nil, err
	}
	source := storage.GetPath() + "/" + name

	var desc structuredDescriptor
	switch argus.DetectFormat(name) {
	case argus.FormatJSON:
		if err := json.Unmarshal(data, &desc); err != nil {
			return nil, NewManifestError(source, "invalid JSON descriptor", err)
		}
	default:
		if err := yaml.Unmarshal(data, &desc); err != nil {
			return nil, NewManifestError(source, "invalid YAML descriptor", err)
		}
	}
	return &desc, nil
}

func manifestFromDescriptor(desc *structuredDescriptor, source string) (*Manifest, error) {
	headers := make(map[string]string, len(desc.Headers)+8)
	for k, v := range desc.Headers {
		headers[k] = v
	}
	setHeader := func(key, value string) {
		if value != "" {
			headers[key] = value
		}
	}
	setHeader(HeaderBundleName, desc.Name)
	setHeader(HeaderSymbolicName, desc.SymbolicName)
	setHeader(HeaderVersion, desc.Version)
	setHeader(HeaderVendor, desc.Vendor)
	setHeader(HeaderCopyright, desc.Copyright)
	setHeader(HeaderDescription, desc.Description)
	setHeader(HeaderActivator, desc.Activator)
	setHeader(HeaderActivatorLibrary, desc.ActivatorLibrary)
	setHeader(HeaderActivationPolicy, desc.ActivationPolicy)
	setHeader(HeaderRequireBundle, strings.Join(desc.RequireBundle, ","))

	m := &Manifest{
		name:             desc.Name,
		symbolicName:     strings.TrimSpace(desc.SymbolicName),
		version:          strings.TrimSpace(desc.Version),
		vendor:           desc.Vendor,
		copyright:        desc.Copyright,
		description:      desc.Description,
		activator:        strings.TrimSpace(desc.Activator),
		activatorLibrary: strings.TrimSpace(desc.ActivatorLibrary),
		policy:           ParseActivationPolicy(desc.ActivationPolicy),
		requires:         parseRequireBundle(strings.Join(desc.RequireBundle, ",")),
		headers:          headers,
		source:           source,
	}
	return finishManifest(m)
}

// finishManifest applies defaults and validates identity fields.
func finishManifest(m *Manifest) (*Manifest, error) {
	if m.symbolicName == "" {
		return nil, NewManifestError(m.source, "missing "+HeaderSymbolicName, nil)
	}
	if err := validateSymbolicName(m.symbolicName); err != nil {
		return nil, NewManifestError(m.source, "invalid symbolic name", err)
	}
	if m.version == "" {
		m.version = defaultVersion
	}
	if m.name == "" {
		m.name = m.symbolicName
	}
	if strings.Contains(m.activatorLibrary, "..") {
		return nil, NewManifestError(m.source, "activator library escapes the bundle root", nil)
	}
	return m, nil
}

// validateSymbolicName rejects names that cannot serve as a directory name
// in the state and cache areas.
func validateSymbolicName(name string) error {
	if strings.Contains(name, "..") {
		return NewManifestError(name, "symbolic name contains '..'", nil)
	}
	for _, r := range name {
		if r <= 32 || r == 127 || strings.ContainsRune(`/\:*?"<>|`, r) {
			return NewManifestError(name, fmt.Sprintf("symbolic name contains invalid character %q", r), nil)
		}
	}
	return nil
}
