// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

// Package datatree holds schema-aware data trees: node identifiers, the
// DataNode variants and their RFC 7951 JSON form.
package datatree

import (
	"fmt"
	"strings"

	"github.com/netascode/go-gnmi-southbound/schema"
)

// QName is a module-qualified node name.
type QName struct {
	Module string
	Name   string
}

// String returns module:name, or the bare name when no module is set.
func (q QName) String() string {
	if q.Module == "" {
		return q.Name
	}
	return q.Module + ":" + q.Name
}

// StepKind distinguishes the kinds of path steps.
type StepKind int

const (
	// StepNode addresses a container, leaf, leaf-list or a whole list.
	StepNode StepKind = iota
	// StepKeyed addresses one list entry by its keys.
	StepKeyed
	// StepValue addresses one leaf-list entry by its value.
	StepValue
)

// KeyValue is one typed key of a list entry.
type KeyValue struct {
	Name  string
	Value any
}

// PathStep is one step of a NodeIdentifier.
type PathStep struct {
	Kind StepKind
	QName
	// Keys are set for StepKeyed in the list's key order.
	Keys []KeyValue
	// Value is set for StepValue.
	Value any
}

// Step returns a plain step.
func Step(module, name string) PathStep {
	return PathStep{Kind: StepNode, QName: QName{Module: module, Name: name}}
}

// KeyedStep returns a list entry step.
func KeyedStep(module, name string, keys ...KeyValue) PathStep {
	return PathStep{Kind: StepKeyed, QName: QName{Module: module, Name: name}, Keys: keys}
}

// ValueStep returns a leaf-list entry step.
func ValueStep(module, name string, value any) PathStep {
	return PathStep{Kind: StepValue, QName: QName{Module: module, Name: name}, Value: value}
}

// Equal reports whether two steps address the same node.
func (s PathStep) Equal(o PathStep) bool {
	if s.Kind != o.Kind || s.QName != o.QName {
		return false
	}
	switch s.Kind {
	case StepKeyed:
		return keysEqual(s.Keys, o.Keys)
	case StepValue:
		return s.Value == o.Value
	}
	return true
}

func (s PathStep) String() string {
	switch s.Kind {
	case StepKeyed:
		var b strings.Builder
		b.WriteString(s.QName.String())
		for _, k := range s.Keys {
			fmt.Fprintf(&b, "[%s=%s]", k.Name, FormatScalar(k.Value))
		}
		return b.String()
	case StepValue:
		return s.QName.String() + "[.=" + FormatScalar(s.Value) + "]"
	}
	return s.QName.String()
}

func keysEqual(a, b []KeyValue) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || a[i].Value != b[i].Value {
			return false
		}
	}
	return true
}

// NodeIdentifier addresses a node in a data tree. The empty identifier is the root.
type NodeIdentifier []PathStep

// Last returns the final step.
func (id NodeIdentifier) Last() (PathStep, bool) {
	if len(id) == 0 {
		return PathStep{}, false
	}
	return id[len(id)-1], true
}

// Append returns a new identifier extended by steps.
func (id NodeIdentifier) Append(steps ...PathStep) NodeIdentifier {
	out := make(NodeIdentifier, 0, len(id)+len(steps))
	out = append(out, id...)
	return append(out, steps...)
}

// Parent returns the identifier of the enclosing node. A keyed or value
// step is removed together with the plain step that precedes it.
func (id NodeIdentifier) Parent() NodeIdentifier {
	if len(id) == 0 {
		return nil
	}
	n := len(id) - 1
	if (id[n].Kind == StepKeyed || id[n].Kind == StepValue) && n > 0 &&
		id[n-1].Kind == StepNode && id[n-1].QName == id[n].QName {
		n--
	}
	return id[:n:n]
}

// Equal reports whether both identifiers address the same node.
func (id NodeIdentifier) Equal(o NodeIdentifier) bool {
	if len(id) != len(o) {
		return false
	}
	for i := range id {
		if !id[i].Equal(o[i]) {
			return false
		}
	}
	return true
}

func (id NodeIdentifier) String() string {
	if len(id) == 0 {
		return "/"
	}
	var b strings.Builder
	for _, s := range id {
		b.WriteByte('/')
		b.WriteString(s.String())
	}
	return b.String()
}

// SchemaNode resolves the schema node addressed by id. Keyed and value
// steps address the same schema node as the step before them.
func SchemaNode(ctx *schema.Context, id NodeIdentifier) (*schema.Node, error) {
	var cur *schema.Node
	for i, s := range id {
		if s.Kind != StepNode && cur != nil && cur.Name == s.Name && cur.Module.Name == s.Module {
			continue
		}
		var err error
		if i == 0 {
			cur, err = ctx.ResolveTopLevel(s.Module, s.Name)
		} else {
			cur, err = ctx.ResolveChild(cur, s.Module, s.Name)
		}
		if err != nil {
			return nil, err
		}
	}
	if cur == nil {
		return nil, fmt.Errorf("datatree: identifier %s has no schema node", id)
	}
	return cur, nil
}
