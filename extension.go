// extension.go: Extension points, extensions and configuration elements
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gobundles

import (
	"sort"
	"strings"
	"sync"
)

// DefaultClassAttribute is the attribute CreateExecutableExtension reads when
// called with an empty attribute name.
const DefaultClassAttribute = "class"

// qualifyID prefixes a simple id with the contributor's symbolic name. Ids
// that already contain a dot are taken as fully qualified.
func qualifyID(contributor, id string) string {
	if id == "" || strings.Contains(id, ".") {
		return id
	}
	return contributor + "." + id
}

// ConfigurationElement is one node of the attribute tree an extension
// carries. Only what the contributing bundle declared is visible.
type ConfigurationElement struct {
	name       string
	value      string
	attributes map[string]string
	children   []*ConfigurationElement
	parent     *ConfigurationElement

	// Set when the owning extension is attached to a registry.
	contributor string
	pointID     string
	registry    *ExtensionRegistry
}

// NewConfigurationElement creates a detached element.
func NewConfigurationElement(name string) *ConfigurationElement {
	return &ConfigurationElement{name: name, attributes: make(map[string]string)}
}

// SetAttribute sets an attribute and returns the element for chaining.
func (e *ConfigurationElement) SetAttribute(key, value string) *ConfigurationElement {
	e.attributes[key] = value
	return e
}

// SetValue sets the element's text value.
func (e *ConfigurationElement) SetValue(value string) *ConfigurationElement {
	e.value = value
	return e
}

// AddChild appends a child element.
func (e *ConfigurationElement) AddChild(child *ConfigurationElement) *ConfigurationElement {
	child.parent = e
	e.children = append(e.children, child)
	return e
}

func (e *ConfigurationElement) Name() string  { return e.name }
func (e *ConfigurationElement) Value() string { return e.value }

// Parent returns the enclosing element, or nil for a top-level element.
func (e *ConfigurationElement) Parent() *ConfigurationElement { return e.parent }

// Attribute returns an attribute value.
func (e *ConfigurationElement) Attribute(key string) (string, bool) {
	v, ok := e.attributes[key]
	return v, ok
}

// AttributeNames returns the attribute names in sorted order.
func (e *ConfigurationElement) AttributeNames() []string {
	names := make([]string, 0, len(e.attributes))
	for k := range e.attributes {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Children returns the child elements in declaration order.
func (e *ConfigurationElement) Children() []*ConfigurationElement {
	out := make([]*ConfigurationElement, len(e.children))
	copy(out, e.children)
	return out
}

// ChildrenNamed returns the children with the given element name.
func (e *ConfigurationElement) ChildrenNamed(name string) []*ConfigurationElement {
	var out []*ConfigurationElement
	for _, c := range e.children {
		if c.name == name {
			out = append(out, c)
		}
	}
	return out
}

// Contributor returns the symbolic name of the bundle that declared the element.
func (e *ConfigurationElement) Contributor() string { return e.contributor }

// ExtensionPointID returns the id of the extension point the element was
// contributed to.
func (e *ConfigurationElement) ExtensionPointID() string { return e.pointID }

// CreateExecutableExtension instantiates the class named by the given
// attribute (DefaultClassAttribute when empty). If the contributing bundle is
// lazy and not active yet, it is started first.
func (e *ConfigurationElement) CreateExecutableExtension(attribute string) (any, error) {
	if attribute == "" {
		attribute = DefaultClassAttribute
	}
	className, ok := e.attributes[attribute]
	if !ok || className == "" {
		return nil, NewExecutableExtensionError(attribute, "attribute not set on element "+e.name, nil)
	}

	factory, ok := lookupExecutableExtension(className)
	if !ok {
		return nil, NewExecutableExtensionError(className, "no executable extension registered for class", nil)
	}

	if e.registry != nil && e.contributor != "" {
		if err := e.registry.activateContributor(e.contributor); err != nil {
			return nil, NewExecutableExtensionError(className, "failed to activate contributing bundle", err)
		}
	}

	obj, err := factory(e)
	if err != nil {
		return nil, NewExecutableExtensionError(className, "factory failed", err)
	}
	return obj, nil
}

// bind attaches the element subtree to a contributor, extension point and
// registry.
func (e *ConfigurationElement) bind(contributor, pointID string, registry *ExtensionRegistry) {
	e.contributor = contributor
	e.pointID = pointID
	e.registry = registry
	for _, c := range e.children {
		c.bind(contributor, pointID, registry)
	}
}

// Extension is a contribution from one bundle into an extension point.
type Extension struct {
	uniqueID    string
	simpleID    string
	label       string
	pointID     string
	contributor string
	elements    []*ConfigurationElement
}

// NewExtension creates an extension. An empty id makes it anonymous; an id
// without a dot is qualified with the contributor's symbolic name, an id
// containing a dot is used as given.
func NewExtension(contributor, pointID, id, label string, elements ...*ConfigurationElement) *Extension {
	ext := &Extension{
		uniqueID:    qualifyID(contributor, id),
		simpleID:    id,
		label:       label,
		pointID:     pointID,
		contributor: contributor,
		elements:    elements,
	}
	for _, el := range elements {
		el.bind(contributor, pointID, nil)
	}
	return ext
}

// UniqueID returns the qualified id, or "" for an anonymous extension.
func (x *Extension) UniqueID() string         { return x.uniqueID }
func (x *Extension) SimpleID() string         { return x.simpleID }
func (x *Extension) Label() string            { return x.label }
func (x *Extension) ExtensionPointID() string { return x.pointID }
func (x *Extension) Contributor() string      { return x.contributor }

// ConfigurationElements returns the top-level elements in declaration order.
func (x *Extension) ConfigurationElements() []*ConfigurationElement {
	out := make([]*ConfigurationElement, len(x.elements))
	copy(out, x.elements)
	return out
}

// ExtensionPoint is a named slot declared by a bundle. Named extensions are
// kept in a map and returned in key order; anonymous extensions follow in
// insertion order.
type ExtensionPoint struct {
	uniqueID    string
	simpleID    string
	label       string
	contributor string

	mu       sync.RWMutex
	named    map[string]*Extension
	unnamed  []*Extension
	registry *ExtensionRegistry
}

// NewExtensionPoint creates an extension point with id
// <contributor>.<simpleID>. A simpleID that already contains a dot is
// taken as fully qualified and kept unchanged, so "org.other.views"
// declared by org.example stays "org.other.views".
func NewExtensionPoint(contributor, simpleID, label string) *ExtensionPoint {
	return &ExtensionPoint{
		uniqueID:    qualifyID(contributor, simpleID),
		simpleID:    simpleID,
		label:       label,
		contributor: contributor,
		named:       make(map[string]*Extension),
	}
}

func (p *ExtensionPoint) UniqueID() string    { return p.uniqueID }
func (p *ExtensionPoint) SimpleID() string    { return p.simpleID }
func (p *ExtensionPoint) Label() string       { return p.label }
func (p *ExtensionPoint) Contributor() string { return p.contributor }

// AddExtension adds an extension. A non-empty id already present fails with
// ErrCodeDuplicateExtension and leaves the existing extension in place.
func (p *ExtensionPoint) AddExtension(ext *Extension) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ext.uniqueID == "" {
		p.unnamed = append(p.unnamed, ext)
	} else {
		if _, exists := p.named[ext.uniqueID]; exists {
			return NewDuplicateExtensionError(ext.uniqueID, p.uniqueID, ext.contributor)
		}
		p.named[ext.uniqueID] = ext
	}

	for _, el := range ext.elements {
		el.bind(ext.contributor, p.uniqueID, p.registry)
	}
	return nil
}

// GetExtensions returns named extensions sorted by id, then anonymous ones.
func (p *ExtensionPoint) GetExtensions() []*Extension {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids := make([]string, 0, len(p.named))
	for id := range p.named {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]*Extension, 0, len(p.named)+len(p.unnamed))
	for _, id := range ids {
		out = append(out, p.named[id])
	}
	return append(out, p.unnamed...)
}

// GetExtension returns a named extension.
func (p *ExtensionPoint) GetExtension(uniqueID string) (*Extension, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ext, ok := p.named[uniqueID]
	return ext, ok
}

// GetConfigurationElements flattens the top-level elements of all
// extensions, in GetExtensions order.
func (p *ExtensionPoint) GetConfigurationElements() []*ConfigurationElement {
	var out []*ConfigurationElement
	for _, ext := range p.GetExtensions() {
		out = append(out, ext.elements...)
	}
	return out
}

// HasContributionFrom reports whether the given bundle contributed an
// extension to this point.
func (p *ExtensionPoint) HasContributionFrom(contributor string) bool {
	for _, ext := range p.GetExtensions() {
		if ext.contributor == contributor {
			return true
		}
	}
	return false
}

// removeContributor drops all extensions contributed by a bundle.
func (p *ExtensionPoint) removeContributor(contributor string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, ext := range p.named {
		if ext.contributor == contributor {
			delete(p.named, id)
		}
	}
	kept := p.unnamed[:0]
	for _, ext := range p.unnamed {
		if ext.contributor != contributor {
			kept = append(kept, ext)
		}
	}
	p.unnamed = kept
}
