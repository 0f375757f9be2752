// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package crud

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/netascode/go-gnmi-southbound/datatree"
)

// MemoryStore keeps one data tree per datastore in memory.
//
// Identifiers are applied to the tree directly: a keyed step selects a list
// entry, a value step a leaf-list value and a plain step the first child
// with that name. Write and Merge create missing containers and list
// entries on the way down.
type MemoryStore struct {
	mu    sync.RWMutex
	roots map[datatree.Datastore]*datatree.Container
}

var _ datatree.Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{roots: map[datatree.Datastore]*datatree.Container{
		datatree.Config: {},
		datatree.State:  {},
	}}
}

// Read returns a copy of the node at id.
func (s *MemoryStore) Read(_ context.Context, ds datatree.Datastore, id datatree.NodeIdentifier) (datatree.DataNode, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	root, err := s.root(ds)
	if err != nil {
		return nil, false, err
	}
	steps := treeSteps(id)
	if len(steps) == 0 {
		return datatree.Clone(root), true, nil
	}
	parent := lookup(root, steps[:len(steps)-1])
	if parent == nil {
		return nil, false, nil
	}
	last := steps[len(steps)-1]
	if last.Kind == datatree.StepValue {
		ll, ok := datatree.Find(datatree.Children(parent), plain(last)).(*datatree.LeafList)
		if !ok || indexOf(ll.Values, last.Value) < 0 {
			return nil, false, nil
		}
		return &datatree.LeafList{QName: ll.QName, Values: []any{last.Value}}, true, nil
	}
	n := datatree.Find(datatree.Children(parent), last)
	if n == nil {
		return nil, false, nil
	}
	return datatree.Clone(n), true, nil
}

// Write replaces the node at id with node.
func (s *MemoryStore) Write(_ context.Context, ds datatree.Datastore, id datatree.NodeIdentifier, node datatree.DataNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	root, err := s.root(ds)
	if err != nil {
		return err
	}
	node = flatten(node)
	steps := treeSteps(id)
	if len(steps) == 0 {
		c, ok := node.(*datatree.Container)
		if !ok {
			return fmt.Errorf("crud: root must be a container, got %T", node)
		}
		s.roots[ds] = &datatree.Container{Children: c.Children}
		return nil
	}
	parent, err := ensure(root, steps[:len(steps)-1])
	if err != nil {
		return err
	}
	last := steps[len(steps)-1]
	if last.Kind == datatree.StepValue {
		return addLeafListValue(parent, last)
	}
	if !datatree.Matches(node, last) {
		return fmt.Errorf("crud: node %s does not match %s", node.NodeName(), last)
	}
	setChild(parent, last, node)
	return nil
}

// Merge combines node with the data stored at id. Leaves and leaf-lists in
// node replace the stored ones; containers and list entries are merged
// recursively.
func (s *MemoryStore) Merge(_ context.Context, ds datatree.Datastore, id datatree.NodeIdentifier, node datatree.DataNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	root, err := s.root(ds)
	if err != nil {
		return err
	}
	node = flatten(node)
	steps := treeSteps(id)
	if len(steps) == 0 {
		c, ok := node.(*datatree.Container)
		if !ok {
			return fmt.Errorf("crud: root must be a container, got %T", node)
		}
		mergeChildren(root, c.Children)
		return nil
	}
	parent, err := ensure(root, steps[:len(steps)-1])
	if err != nil {
		return err
	}
	last := steps[len(steps)-1]
	if last.Kind == datatree.StepValue {
		return addLeafListValue(parent, last)
	}
	if !datatree.Matches(node, last) {
		return fmt.Errorf("crud: node %s does not match %s", node.NodeName(), last)
	}
	if existing := datatree.Find(datatree.Children(parent), last); existing != nil {
		mergeNode(existing, node)
		return nil
	}
	setChild(parent, last, node)
	return nil
}

// Delete removes the node at id. Removing an absent node is not an error.
func (s *MemoryStore) Delete(_ context.Context, ds datatree.Datastore, id datatree.NodeIdentifier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.root(ds); err != nil {
		return err
	}
	steps := treeSteps(id)
	if len(steps) == 0 {
		s.roots[ds] = &datatree.Container{}
		return nil
	}
	parent := lookup(s.roots[ds], steps[:len(steps)-1])
	if parent == nil {
		return nil
	}
	last := steps[len(steps)-1]
	if last.Kind == datatree.StepValue {
		if ll, ok := datatree.Find(datatree.Children(parent), plain(last)).(*datatree.LeafList); ok {
			if i := indexOf(ll.Values, last.Value); i >= 0 {
				ll.Values = append(ll.Values[:i:i], ll.Values[i+1:]...)
			}
		}
		return nil
	}
	removeChild(parent, last)
	return nil
}

// Snapshot captures both datastores and returns a function restoring them.
func (s *MemoryStore) Snapshot() (restore func()) {
	s.mu.RLock()
	saved := make(map[datatree.Datastore]*datatree.Container, len(s.roots))
	for ds, root := range s.roots {
		saved[ds] = datatree.Clone(root).(*datatree.Container)
	}
	s.mu.RUnlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.roots = saved
	}
}

func (s *MemoryStore) root(ds datatree.Datastore) (*datatree.Container, error) {
	root, ok := s.roots[ds]
	if !ok {
		return nil, fmt.Errorf("crud: unknown datastore %d", int(ds))
	}
	return root, nil
}

// treeSteps drops plain list and leaf-list steps that are followed by
// their keyed or value step, leaving one step per tree level.
func treeSteps(id datatree.NodeIdentifier) datatree.NodeIdentifier {
	out := make(datatree.NodeIdentifier, 0, len(id))
	for i, s := range id {
		if s.Kind == datatree.StepNode && i+1 < len(id) &&
			id[i+1].Kind != datatree.StepNode && id[i+1].QName == s.QName {
			continue
		}
		out = append(out, s)
	}
	return out
}

func plain(s datatree.PathStep) datatree.PathStep {
	return datatree.Step(s.Module, s.Name)
}

func lookup(n datatree.DataNode, steps datatree.NodeIdentifier) datatree.DataNode {
	for _, s := range steps {
		if n = datatree.Find(datatree.Children(n), s); n == nil {
			return nil
		}
	}
	return n
}

// ensure walks steps from n, creating missing containers and list entries.
func ensure(n datatree.DataNode, steps datatree.NodeIdentifier) (datatree.DataNode, error) {
	for _, s := range steps {
		next := datatree.Find(datatree.Children(n), s)
		if next == nil {
			switch s.Kind {
			case datatree.StepKeyed:
				e := &datatree.ListEntry{QName: s.QName, Keys: append([]datatree.KeyValue(nil), s.Keys...)}
				for _, k := range s.Keys {
					e.Children = append(e.Children, &datatree.Leaf{QName: datatree.QName{Module: s.Module, Name: k.Name}, Value: k.Value})
				}
				next = e
			case datatree.StepNode:
				next = &datatree.Container{QName: s.QName}
			default:
				return nil, fmt.Errorf("crud: cannot descend through %s", s)
			}
			appendChild(n, next)
		}
		switch next.(type) {
		case *datatree.Container, *datatree.ListEntry:
		default:
			return nil, fmt.Errorf("crud: %s is not a container or list entry", s)
		}
		n = next
	}
	return n, nil
}

func appendChild(parent, child datatree.DataNode) {
	switch p := parent.(type) {
	case *datatree.Container:
		p.Children = append(p.Children, child)
	case *datatree.ListEntry:
		p.Children = append(p.Children, child)
	}
}

func setChild(parent datatree.DataNode, step datatree.PathStep, child datatree.DataNode) {
	children := datatree.Children(parent)
	for i, c := range children {
		if datatree.Matches(c, step) {
			children[i] = child
			return
		}
	}
	appendChild(parent, child)
}

func removeChild(parent datatree.DataNode, step datatree.PathStep) {
	keep := func(children []datatree.DataNode) []datatree.DataNode {
		out := children[:0]
		for _, c := range children {
			if !datatree.Matches(c, step) {
				out = append(out, c)
			}
		}
		return out
	}
	switch p := parent.(type) {
	case *datatree.Container:
		p.Children = keep(p.Children)
	case *datatree.ListEntry:
		p.Children = keep(p.Children)
	}
}

func addLeafListValue(parent datatree.DataNode, step datatree.PathStep) error {
	n := datatree.Find(datatree.Children(parent), plain(step))
	if n == nil {
		appendChild(parent, &datatree.LeafList{QName: step.QName, Values: []any{step.Value}})
		return nil
	}
	ll, ok := n.(*datatree.LeafList)
	if !ok {
		return fmt.Errorf("crud: %s is not a leaf-list", step.QName)
	}
	if indexOf(ll.Values, step.Value) < 0 {
		ll.Values = append(ll.Values, step.Value)
	}
	return nil
}

func mergeNode(dst, src datatree.DataNode) {
	switch d := dst.(type) {
	case *datatree.Container:
		mergeChildren(d, datatree.Children(src))
	case *datatree.ListEntry:
		mergeChildren(d, datatree.Children(src))
	case *datatree.Leaf:
		d.Value = src.(*datatree.Leaf).Value
	case *datatree.LeafList:
		d.Values = append([]any(nil), src.(*datatree.LeafList).Values...)
	}
}

func mergeChildren(dst datatree.DataNode, children []datatree.DataNode) {
	for _, c := range children {
		step := stepOf(c)
		existing := datatree.Find(datatree.Children(dst), step)
		if existing == nil || reflect.TypeOf(existing) != reflect.TypeOf(c) {
			setChild(dst, step, c)
			continue
		}
		mergeNode(existing, c)
	}
}

// stepOf returns the step addressing n among its siblings.
func stepOf(n datatree.DataNode) datatree.PathStep {
	if e, ok := n.(*datatree.ListEntry); ok {
		return datatree.KeyedStep(e.Module, e.Name, e.Keys...)
	}
	q := n.NodeName()
	return datatree.Step(q.Module, q.Name)
}

// flatten removes augmentation wrappers anywhere in n.
func flatten(n datatree.DataNode) datatree.DataNode {
	switch v := n.(type) {
	case *datatree.Container:
		return &datatree.Container{QName: v.QName, Children: flattenAll(v.Children)}
	case *datatree.ListEntry:
		return &datatree.ListEntry{QName: v.QName, Keys: v.Keys, Children: flattenAll(v.Children)}
	}
	return datatree.Clone(n)
}

func flattenAll(children []datatree.DataNode) []datatree.DataNode {
	flat := datatree.Flatten(children)
	out := make([]datatree.DataNode, len(flat))
	for i, c := range flat {
		out[i] = flatten(c)
	}
	return out
}

func indexOf(values []any, v any) int {
	for i, x := range values {
		if x == v {
			return i
		}
	}
	return -1
}
