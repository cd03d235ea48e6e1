// policy.go: Config policy declared by plugins
//
// A config policy lists, per value type and per namespace, the configuration
// keys a plugin understands together with their rules: whether the key is
// required, its default and its bounds.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package snapplugin

import (
	"fmt"
	"strings"
)

// KeyType is the value type of a policy rule.
type KeyType string

const (
	IntegerKey KeyType = "integer"
	FloatKey   KeyType = "float"
	StringKey  KeyType = "string"
	BoolKey    KeyType = "bool"
)

// keyTypeOrder is the order in which policy roots are reported.
var keyTypeOrder = []KeyType{IntegerKey, FloatKey, StringKey, BoolKey}

// Rule is the constraint attached to one configuration key.
type Rule struct {
	Required   bool
	HasDefault bool
	Default    any
	HasMin     bool
	Min        any
	HasMax     bool
	Max        any
}

// RuleOption customizes a Rule.
type RuleOption func(*Rule)

// WithDefault sets the rule's default value.
func WithDefault(value any) RuleOption {
	return func(r *Rule) {
		r.HasDefault = true
		r.Default = value
	}
}

// WithMinimum sets the rule's lower bound. Integer and float rules only.
func WithMinimum(value any) RuleOption {
	return func(r *Rule) {
		r.HasMin = true
		r.Min = value
	}
}

// WithMaximum sets the rule's upper bound. Integer and float rules only.
func WithMaximum(value any) RuleOption {
	return func(r *Rule) {
		r.HasMax = true
		r.Max = value
	}
}

// PolicyNode holds the rules declared under one namespace.
type PolicyNode struct {
	Key   []string
	Rules map[string]Rule

	order []string
}

// RuleKeys returns the rule keys in declaration order.
func (n *PolicyNode) RuleKeys() []string {
	out := make([]string, len(n.order))
	copy(out, n.order)
	return out
}

type policyRoot struct {
	order []string
	nodes map[string]*PolicyNode
}

// ConfigPolicy is the set of rules a plugin declares. The zero value is an
// empty policy ready to use.
type ConfigPolicy struct {
	roots map[KeyType]*policyRoot
}

// NewConfigPolicy returns an empty policy.
func NewConfigPolicy() *ConfigPolicy {
	return &ConfigPolicy{}
}

// AddNewIntRule declares an integer key under namespace ns.
func (p *ConfigPolicy) AddNewIntRule(ns []string, key string, required bool, opts ...RuleOption) error {
	return p.addRule(IntegerKey, ns, key, required, opts)
}

// AddNewFloatRule declares a float key under namespace ns.
func (p *ConfigPolicy) AddNewFloatRule(ns []string, key string, required bool, opts ...RuleOption) error {
	return p.addRule(FloatKey, ns, key, required, opts)
}

// AddNewStringRule declares a string key under namespace ns.
func (p *ConfigPolicy) AddNewStringRule(ns []string, key string, required bool, opts ...RuleOption) error {
	return p.addRule(StringKey, ns, key, required, opts)
}

// AddNewBoolRule declares a bool key under namespace ns.
func (p *ConfigPolicy) AddNewBoolRule(ns []string, key string, required bool, opts ...RuleOption) error {
	return p.addRule(BoolKey, ns, key, required, opts)
}

func (p *ConfigPolicy) addRule(kt KeyType, ns []string, key string, required bool, opts []RuleOption) error {
	if key == "" {
		return NewInvalidPolicyRuleError(key, "key is required")
	}

	rule := Rule{Required: required}
	for _, opt := range opts {
		opt(&rule)
	}
	if err := validateRule(kt, key, &rule); err != nil {
		return err
	}

	if p.roots == nil {
		p.roots = make(map[KeyType]*policyRoot)
	}
	root, ok := p.roots[kt]
	if !ok {
		root = &policyRoot{nodes: make(map[string]*PolicyNode)}
		p.roots[kt] = root
	}

	nsKey := strings.Join(ns, ".")
	node, ok := root.nodes[nsKey]
	if !ok {
		nsCopy := make([]string, len(ns))
		copy(nsCopy, ns)
		node = &PolicyNode{Key: nsCopy, Rules: make(map[string]Rule)}
		root.nodes[nsKey] = node
		root.order = append(root.order, nsKey)
	}
	if _, exists := node.Rules[key]; !exists {
		node.order = append(node.order, key)
	}
	node.Rules[key] = rule
	return nil
}

// validateRule normalizes numeric values and rejects values of the wrong type.
func validateRule(kt KeyType, key string, r *Rule) error {
	if (r.HasMin || r.HasMax) && kt != IntegerKey && kt != FloatKey {
		return NewInvalidPolicyRuleError(key, fmt.Sprintf("%s rules cannot declare bounds", kt))
	}

	check := func(what string, v any) (any, error) {
		switch kt {
		case IntegerKey:
			if n, ok := asInt64(v); ok {
				return n, nil
			}
		case FloatKey:
			if f, ok := asFloat64(v); ok {
				return f, nil
			}
		case StringKey:
			if s, ok := v.(string); ok {
				return s, nil
			}
		case BoolKey:
			if b, ok := v.(bool); ok {
				return b, nil
			}
		}
		return nil, NewInvalidPolicyRuleError(key, fmt.Sprintf("%s %v is not a valid %s", what, v, kt))
	}

	var err error
	if r.HasDefault {
		if r.Default, err = check("default", r.Default); err != nil {
			return err
		}
	}
	if r.HasMin {
		if r.Min, err = check("minimum", r.Min); err != nil {
			return err
		}
	}
	if r.HasMax {
		if r.Max, err = check("maximum", r.Max); err != nil {
			return err
		}
	}
	return nil
}

// PolicyRow is one flattened (namespace, key) rule.
type PolicyRow struct {
	Namespace []string
	Key       string
	Type      KeyType
	Rule      Rule
}

// NamespaceString renders the row namespace the way it was keyed.
func (r PolicyRow) NamespaceString() string {
	return strings.Join(r.Namespace, ".")
}

// Rows flattens the policy across every key type and namespace, in
// declaration order within each key type.
func (p *ConfigPolicy) Rows() []PolicyRow {
	if p == nil {
		return nil
	}
	var rows []PolicyRow
	for _, kt := range keyTypeOrder {
		root, ok := p.roots[kt]
		if !ok {
			continue
		}
		for _, nsKey := range root.order {
			node := root.nodes[nsKey]
			for _, key := range node.order {
				rows = append(rows, PolicyRow{
					Namespace: node.Key,
					Key:       key,
					Type:      kt,
					Rule:      node.Rules[key],
				})
			}
		}
	}
	return rows
}

// Node returns the node declared for ns under key type kt.
func (p *ConfigPolicy) Node(kt KeyType, ns []string) (*PolicyNode, bool) {
	if p == nil || p.roots == nil {
		return nil, false
	}
	root, ok := p.roots[kt]
	if !ok {
		return nil, false
	}
	node, ok := root.nodes[strings.Join(ns, ".")]
	return node, ok
}

// AsMap renders the policy as nested maps of JSON-compatible values:
// key type -> namespace -> {"key": [...], "rules": {key -> rule}}.
func (p *ConfigPolicy) AsMap() map[string]any {
	out := make(map[string]any)
	if p == nil {
		return out
	}
	for _, kt := range keyTypeOrder {
		root, ok := p.roots[kt]
		if !ok {
			continue
		}
		namespaces := make(map[string]any, len(root.order))
		for _, nsKey := range root.order {
			node := root.nodes[nsKey]
			ns := make([]any, len(node.Key))
			for i, s := range node.Key {
				ns[i] = s
			}
			rules := make(map[string]any, len(node.order))
			for _, key := range node.order {
				rules[key] = ruleAsMap(node.Rules[key])
			}
			namespaces[nsKey] = map[string]any{
				"key":   ns,
				"rules": rules,
			}
		}
		out[string(kt)] = namespaces
	}
	return out
}

func ruleAsMap(r Rule) map[string]any {
	m := map[string]any{"required": r.Required}
	if r.HasDefault {
		m["default"] = r.Default
	}
	if r.HasMin {
		m["minimum"] = r.Min
	}
	if r.HasMax {
		m["maximum"] = r.Max
	}
	return m
}
