// contributions.go: Reading extension points and extensions from a bundle
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gobundles

import (
	"bytes"
	"encoding/xml"
	"strings"
)

// Contributions is what a bundle declares into the extension registry.
type Contributions struct {
	ExtensionPoints []*ExtensionPoint
	Extensions      []*Extension
}

// Empty reports whether the bundle declares nothing.
func (c *Contributions) Empty() bool {
	return len(c.ExtensionPoints) == 0 && len(c.Extensions) == 0
}

// ReadContributions reads plugin.xml when present, otherwise the inline
// sections of a structured descriptor. A bundle without either has no
// contributions.
func ReadContributions(storage BundleStorage, contributor string) (*Contributions, error) {
	found, err := HasResource(storage, PluginXMLPath)
	if err != nil {
		return nil, err
	}
	if found {
		data, err := ReadResource(storage, PluginXMLPath)
		if err != nil {
			return nil, err
		}
		return ParsePluginXML(data, contributor, storage.GetPath()+"/"+PluginXMLPath)
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
		return contributionsFromDescriptor(desc, contributor), nil
	}
	return &Contributions{}, nil
}

type xmlNode struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Content  string     `xml:",chardata"`
	Children []xmlNode  `xml:",any"`
}

func (n *xmlNode) attr(name string) string {
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// ParsePluginXML parses a <plugin> document with <extension-point> and
// <extension> children.
func ParsePluginXML(data []byte, contributor, source string) (*Contributions, error) {
	var root xmlNode
	decoder := xml.NewDecoder(bytes.NewReader(data))
	if err := decoder.Decode(&root); err != nil {
		return nil, NewManifestError(source, "invalid plugin.xml", err)
	}
	if root.XMLName.Local != "plugin" {
		return nil, NewManifestError(source, "plugin.xml root element must be <plugin>, got <"+root.XMLName.Local+">", nil)
	}

	out := &Contributions{}
	for i := range root.Children {
		child := &root.Children[i]
		switch child.XMLName.Local {
		case "extension-point":
			id := child.attr("id")
			if id == "" {
				return nil, NewManifestError(source, "extension-point without id", nil)
			}
			out.ExtensionPoints = append(out.ExtensionPoints, NewExtensionPoint(contributor, id, child.attr("name")))
		case "extension":
			point := child.attr("point")
			if point == "" {
				return nil, NewManifestError(source, "extension without point", nil)
			}
			elements := make([]*ConfigurationElement, 0, len(child.Children))
			for j := range child.Children {
				elements = append(elements, elementFromXML(&child.Children[j]))
			}
			out.Extensions = append(out.Extensions,
				NewExtension(contributor, point, child.attr("id"), child.attr("name"), elements...))
		}
	}
	return out, nil
}

func elementFromXML(node *xmlNode) *ConfigurationElement {
	el := NewConfigurationElement(node.XMLName.Local)
	for _, a := range node.Attrs {
		el.SetAttribute(a.Name.Local, a.Value)
	}
	el.SetValue(strings.TrimSpace(node.Content))
	for i := range node.Children {
		el.AddChild(elementFromXML(&node.Children[i]))
	}
	return el
}

func contributionsFromDescriptor(desc *structuredDescriptor, contributor string) *Contributions {
	out := &Contributions{}
	for _, p := range desc.ExtensionPoints {
		if p.ID == "" {
			continue
		}
		out.ExtensionPoints = append(out.ExtensionPoints, NewExtensionPoint(contributor, p.ID, p.Name))
	}
	for _, x := range desc.Extensions {
		if x.Point == "" {
			continue
		}
		elements := make([]*ConfigurationElement, 0, len(x.Elements))
		for i := range x.Elements {
			elements = append(elements, elementFromSpec(&x.Elements[i]))
		}
		out.Extensions = append(out.Extensions, NewExtension(contributor, x.Point, x.ID, x.Name, elements...))
	}
	return out
}

func elementFromSpec(spec *elementSpec) *ConfigurationElement {
	el := NewConfigurationElement(spec.Name)
	for k, v := range spec.Attributes {
		el.SetAttribute(k, v)
	}
	el.SetValue(spec.Value)
	for i := range spec.Children {
		el.AddChild(elementFromSpec(&spec.Children[i]))
	}
	return el
}
