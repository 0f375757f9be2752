// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package datatree

import "github.com/netascode/go-gnmi-southbound/schema"

// DataNode is one node of a data tree: *Container, *ListEntry, *Leaf or
// *LeafList. *Augmentation only appears while decoding.
type DataNode interface {
	NodeName() QName
	isDataNode()
}

// Container is a container or the root of a tree (zero QName). List
// entries are stored as ListEntry children.
type Container struct {
	QName
	Children []DataNode
}

// ListEntry is one entry of a list. Children include the key leaves.
type ListEntry struct {
	QName
	Keys     []KeyValue
	Children []DataNode
}

// Leaf holds one typed scalar.
type Leaf struct {
	QName
	Value any
}

// LeafList holds the ordered values of a leaf-list.
type LeafList struct {
	QName
	Values []any
}

// Augmentation groups the nodes contributed by one augmentation.
type Augmentation struct {
	Augment  *schema.Augment
	Children []DataNode
}

func (n *Container) NodeName() QName { return n.QName }
func (n *ListEntry) NodeName() QName { return n.QName }
func (n *Leaf) NodeName() QName      { return n.QName }
func (n *LeafList) NodeName() QName  { return n.QName }

// NodeName returns the augmenting module with an empty name.
func (n *Augmentation) NodeName() QName {
	if n.Augment == nil {
		return QName{}
	}
	return QName{Module: n.Augment.Module.Name}
}

func (*Container) isDataNode()    {}
func (*ListEntry) isDataNode()    {}
func (*Leaf) isDataNode()         {}
func (*LeafList) isDataNode()     {}
func (*Augmentation) isDataNode() {}

// Children returns the child slice of a Container, ListEntry or Augmentation.
func Children(n DataNode) []DataNode {
	switch v := n.(type) {
	case *Container:
		return v.Children
	case *ListEntry:
		return v.Children
	case *Augmentation:
		return v.Children
	}
	return nil
}

// Find returns the child matching step, or nil. A plain step matching a
// list returns the first entry.
func Find(children []DataNode, step PathStep) DataNode {
	for _, c := range children {
		if Matches(c, step) {
			return c
		}
	}
	return nil
}

// Matches reports whether n is addressed by step.
func Matches(n DataNode, step PathStep) bool {
	if n.NodeName() != step.QName {
		return false
	}
	if step.Kind == StepKeyed {
		e, ok := n.(*ListEntry)
		return ok && keysEqual(e.Keys, step.Keys)
	}
	return true
}

// Clone returns a deep copy of n. Scalar values are immutable and shared.
func Clone(n DataNode) DataNode {
	switch v := n.(type) {
	case *Container:
		return &Container{QName: v.QName, Children: cloneAll(v.Children)}
	case *ListEntry:
		return &ListEntry{QName: v.QName, Keys: append([]KeyValue(nil), v.Keys...), Children: cloneAll(v.Children)}
	case *Leaf:
		return &Leaf{QName: v.QName, Value: v.Value}
	case *LeafList:
		return &LeafList{QName: v.QName, Values: append([]any(nil), v.Values...)}
	case *Augmentation:
		return &Augmentation{Augment: v.Augment, Children: cloneAll(v.Children)}
	}
	return nil
}

func cloneAll(in []DataNode) []DataNode {
	if in == nil {
		return nil
	}
	out := make([]DataNode, len(in))
	for i, c := range in {
		out[i] = Clone(c)
	}
	return out
}

// Equal reports whether two trees hold the same data. Sibling order is
// irrelevant except for leaf-list values.
func Equal(a, b DataNode) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch x := a.(type) {
	case *Container:
		y, ok := b.(*Container)
		return ok && x.QName == y.QName && childrenEqual(x.Children, y.Children)
	case *ListEntry:
		y, ok := b.(*ListEntry)
		return ok && x.QName == y.QName && keysEqual(x.Keys, y.Keys) && childrenEqual(x.Children, y.Children)
	case *Leaf:
		y, ok := b.(*Leaf)
		return ok && x.QName == y.QName && x.Value == y.Value
	case *LeafList:
		y, ok := b.(*LeafList)
		if !ok || x.QName != y.QName || len(x.Values) != len(y.Values) {
			return false
		}
		for i := range x.Values {
			if x.Values[i] != y.Values[i] {
				return false
			}
		}
		return true
	case *Augmentation:
		y, ok := b.(*Augmentation)
		return ok && x.Augment == y.Augment && childrenEqual(x.Children, y.Children)
	}
	return false
}

func childrenEqual(a, b []DataNode) bool {
	if len(a) != len(b) {
		return false
	}
	used := make([]bool, len(b))
outer:
	for _, x := range a {
		for j, y := range b {
			if !used[j] && Equal(x, y) {
				used[j] = true
				continue outer
			}
		}
		return false
	}
	return true
}

// Flatten replaces Augmentation wrappers among children by their content.
func Flatten(children []DataNode) []DataNode {
	var out []DataNode
	for _, c := range children {
		if a, ok := c.(*Augmentation); ok {
			out = append(out, Flatten(a.Children)...)
			continue
		}
		out = append(out, c)
	}
	return out
}
