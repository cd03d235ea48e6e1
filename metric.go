// metric.go: Metric descriptors exchanged with plugin implementations
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package snapplugin

import (
	"fmt"
	"strings"
	"time"
)

// NamespaceElement is one segment of a metric namespace. Dynamic elements
// carry a Name and stand for a value filled in at collection time.
type NamespaceElement struct {
	Value       string
	Name        string
	Description string
}

// IsDynamic reports whether the element is a dynamic placeholder.
func (e NamespaceElement) IsDynamic() bool {
	return e.Name != ""
}

// Namespace is the ordered list of segments identifying a metric.
type Namespace []NamespaceElement

// NewNamespace builds a namespace of static elements.
func NewNamespace(values ...string) Namespace {
	ns := make(Namespace, 0, len(values))
	for _, v := range values {
		ns = append(ns, NamespaceElement{Value: v})
	}
	return ns
}

// AddStaticElement returns a copy of n extended with a literal segment.
func (n Namespace) AddStaticElement(value string) Namespace {
	return n.append(NamespaceElement{Value: value})
}

// AddDynamicElement returns a copy of n extended with a "*" segment named name.
func (n Namespace) AddDynamicElement(name, description string) Namespace {
	return n.append(NamespaceElement{Value: "*", Name: name, Description: description})
}

func (n Namespace) append(e NamespaceElement) Namespace {
	out := make(Namespace, len(n), len(n)+1)
	copy(out, n)
	return append(out, e)
}

// Strings returns the literal segment values.
func (n Namespace) Strings() []string {
	out := make([]string, len(n))
	for i, e := range n {
		out[i] = e.Value
	}
	return out
}

// IsDynamic reports whether any segment is dynamic.
func (n Namespace) IsDynamic() bool {
	for _, e := range n {
		if e.IsDynamic() {
			return true
		}
	}
	return false
}

// String renders the namespace as "/a/b/c".
func (n Namespace) String() string {
	return "/" + strings.Join(n.Strings(), "/")
}

// MatchesValues reports whether path equals n segment by segment, with the
// same length. Only literal values are compared.
func (n Namespace) MatchesValues(path []string) bool {
	if len(path) != len(n) {
		return false
	}
	for i, v := range path {
		if n[i].Value != v {
			return false
		}
	}
	return true
}

// Metric describes one metric handled by a plugin.
type Metric struct {
	Namespace   Namespace
	Version     int
	Data        any
	Config      Config
	Tags        map[string]string
	Unit        string
	Description string
	Timestamp   time.Time
}

// DataType returns the type tag of Data.
func (m Metric) DataType() string {
	switch m.Data.(type) {
	case nil:
		return "nil"
	case int, int64:
		return "int64"
	case int32:
		return "int32"
	case uint, uint64:
		return "uint64"
	case uint32:
		return "uint32"
	case float32:
		return "float32"
	case float64:
		return "float64"
	case string:
		return "string"
	case bool:
		return "bool"
	case []byte:
		return "bytes"
	default:
		return fmt.Sprintf("%T", m.Data)
	}
}
