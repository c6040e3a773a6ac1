// manifest_test.go: Bundle descriptor parsing tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gobundles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseManifestMF_Headers(t *testing.T) {
	data := "\ufeffManifest-Version: 1.0\r\n" +
		"Bundle-Name: Example Bundle\r\n" +
		"Bundle-SymbolicName: org.example.core;singleton:=true\r\n" +
		"Bundle-Version: 2.1.0\r\n" +
		"Bundle-Vendor: AGILira\r\n" +
		"Bundle-Activator: org.example.core.Activator\r\n" +
		"Bundle-ActivationPolicy: lazy\r\n" +
		"Require-Bundle: org.example.base;bundle-version=\"[1.0,2.0)\",\r\n" +
		" org.example.util, org.example.base\r\n" +
		"X-Custom: kept\r\n" +
		"\r\n" +
		"Name: ignored/section\r\n"

	m, err := ParseManifestMF([]byte(data), "test")
	require.NoError(t, err)

	assert.Equal(t, "Example Bundle", m.Name())
	assert.Equal(t, "org.example.core", m.SymbolicName())
	assert.Equal(t, "2.1.0", m.Version())
	assert.Equal(t, "AGILira", m.Vendor())
	assert.Equal(t, "org.example.core.Activator", m.ActivatorClass())
	assert.Equal(t, ActivationLazy, m.ActivationPolicy())
	assert.Equal(t, []string{"org.example.base", "org.example.util"}, m.RequiredBundles())
	assert.Equal(t, "test", m.Source())

	custom, ok := m.Header("X-Custom")
	assert.True(t, ok)
	assert.Equal(t, "kept", custom)
	_, ok = m.Header("Name")
	assert.False(t, ok, "sections after the main block are not headers")
	assert.Contains(t, m.HeaderKeys(), HeaderRequireBundle)
}

func TestParseManifestMF_Defaults(t *testing.T) {
	m, err := ParseManifestMF([]byte(manifestMF("org.example.min")), "test")
	require.NoError(t, err)

	assert.Equal(t, "org.example.min", m.Name(), "name defaults to the symbolic name")
	assert.Equal(t, "0.0.0", m.Version())
	assert.Equal(t, ActivationEager, m.ActivationPolicy())
	assert.Empty(t, m.RequiredBundles())
	assert.Empty(t, m.ActivatorClass())
}

func TestParseManifestMF_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"missing symbolic name", "Manifest-Version: 1.0\nBundle-Name: x\n"},
		{"continuation without header", " dangling\n"},
		{"line without colon", "Bundle-SymbolicName: a\nnot a header\n"},
		{"path separator in name", manifestMF("org/example")},
		{"parent reference in name", manifestMF("org..example")},
		{"library outside root", manifestMF("org.example.lib", "Bundle-Activator-Library: ../evil.so")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifestMF([]byte(tt.data), "test")
			require.Error(t, err)
			assert.True(t, HasErrorCode(err, ErrCodeManifest))
		})
	}
}

func TestParseRequireBundle_QuotedCommas(t *testing.T) {
	got := parseRequireBundle(`a.b;bundle-version="[1.0,2.0)", c.d;resolution:=optional ,, a.b`)
	assert.Equal(t, []string{"a.b", "c.d"}, got)
}

func TestParseManifest_StructuredDescriptors(t *testing.T) {
	yamlDescriptor := `name: YAML Bundle
symbolic_name: org.example.yaml
version: 1.0.0
activation_policy: lazy
activator_library: scripts/activator.lua
require_bundle:
  - org.example.base
headers:
  X-Team: platform
`
	jsonDescriptor := `{"symbolic_name": "org.example.json", "version": "3.0.0", "require_bundle": ["org.example.base"]}`

	t.Run("yaml", func(t *testing.T) {
		s := newMemoryStorage("mem:yaml", map[string][]byte{"plugin.yaml": []byte(yamlDescriptor)})
		m, err := ParseManifest(s)
		require.NoError(t, err)
		assert.Equal(t, "org.example.yaml", m.SymbolicName())
		assert.Equal(t, "YAML Bundle", m.Name())
		assert.Equal(t, ActivationLazy, m.ActivationPolicy())
		assert.Equal(t, "scripts/activator.lua", m.ActivatorLibrary())
		assert.Equal(t, []string{"org.example.base"}, m.RequiredBundles())
		team, _ := m.Header("X-Team")
		assert.Equal(t, "platform", team)
		assert.Equal(t, "mem:yaml/plugin.yaml", m.Source())
	})

	t.Run("json", func(t *testing.T) {
		s := newMemoryStorage("mem:json", map[string][]byte{"plugin.json": []byte(jsonDescriptor)})
		m, err := ParseManifest(s)
		require.NoError(t, err)
		assert.Equal(t, "org.example.json", m.SymbolicName())
		assert.Equal(t, "3.0.0", m.Version())
	})

	t.Run("manifest wins", func(t *testing.T) {
		s := newMemoryStorage("mem:both", map[string][]byte{
			ManifestMFPath: []byte(manifestMF("org.example.mf")),
			"plugin.yaml":  []byte(yamlDescriptor),
		})
		m, err := ParseManifest(s)
		require.NoError(t, err)
		assert.Equal(t, "org.example.mf", m.SymbolicName())
	})

	t.Run("invalid json", func(t *testing.T) {
		s := newMemoryStorage("mem:bad", map[string][]byte{"plugin.json": []byte("{")})
		_, err := ParseManifest(s)
		assert.True(t, HasErrorCode(err, ErrCodeManifest))
	})

	t.Run("no descriptor", func(t *testing.T) {
		_, err := ParseManifest(newMemoryStorage("mem:empty", nil))
		assert.True(t, HasErrorCode(err, ErrCodeManifestNotFound))
	})
}
