// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package schema

import (
	"fmt"
	"sort"
	"strings"
)

// Kind is the statement kind of a schema node.
type Kind int

const (
	KindContainer Kind = iota
	KindList
	KindLeaf
	KindLeafList
)

// String returns the YANG statement name of the kind.
func (k Kind) String() string {
	switch k {
	case KindContainer:
		return "container"
	case KindList:
		return "list"
	case KindLeaf:
		return "leaf"
	case KindLeafList:
		return "leaf-list"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Module is one data model as advertised by a device.
type Module struct {
	Name         string
	Prefix       string
	Namespace    string
	Organization string
	Revision     string
	// SemVer is the semantic version from the openconfig-version extension,
	// empty when the module carries none.
	SemVer string

	Imports    []string
	Children   []*Node
	Identities []*Identity
	Augments   []*Augment
}

// Version returns the semantic version when present and the revision date otherwise.
func (m *Module) Version() string {
	if m.SemVer != "" {
		return m.SemVer
	}
	return m.Revision
}

// Child returns the top-level node with the given local name.
func (m *Module) Child(name string) *Node {
	for _, n := range m.Children {
		if n.Name == name {
			return n
		}
	}
	return nil
}

// Identity returns the identity with the given name defined by this module.
func (m *Module) Identity(name string) *Identity {
	for _, id := range m.Identities {
		if id.Name == name {
			return id
		}
	}
	return nil
}

// Node is a data node of the schema tree.
type Node struct {
	Name   string
	Kind   Kind
	Module *Module
	// Parent is nil for top-level nodes.
	Parent   *Node
	Children []*Node
	// Keys holds the key leaf names of a list in declaration order.
	Keys []string
	// Type is set for leaves and leaf-lists.
	Type *Type
	// Augment is the augmentation that contributed this node, or nil.
	Augment *Augment
	Config  bool
}

// IsList reports whether the node is a list.
func (n *Node) IsList() bool { return n.Kind == KindList }

// IsScalar reports whether the node is a leaf.
func (n *Node) IsScalar() bool { return n.Kind == KindLeaf }

// ChildIn returns the child defined by module with the given local name.
func (n *Node) ChildIn(module, name string) *Node {
	for _, c := range n.Children {
		if c.Name == name && c.Module.Name == module {
			return c
		}
	}
	return nil
}

// ChildrenNamed returns every child with the given local name regardless of
// the defining module. More than one result means the name is contributed by
// several augmentations.
func (n *Node) ChildrenNamed(name string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// KeyNode returns the key leaf with the given name of a list node.
func (n *Node) KeyNode(name string) *Node {
	if n.Kind != KindList {
		return nil
	}
	for _, k := range n.Keys {
		if k == name {
			return n.ChildIn(n.Module.Name, name)
		}
	}
	return nil
}

// Path returns the schema path of the node in prefix:name form.
func (n *Node) Path() string {
	var parts []string
	for cur := n; cur != nil; cur = cur.Parent {
		parts = append(parts, cur.Module.Prefix+":"+cur.Name)
	}
	var b strings.Builder
	for i := len(parts) - 1; i >= 0; i-- {
		b.WriteByte('/')
		b.WriteString(parts[i])
	}
	return b.String()
}

// Identity is a YANG identity.
type Identity struct {
	Name   string
	Module *Module
	// Base is the raw qualified reference to the base identity, if any.
	Base string

	base *Identity
}

// QualifiedName returns module:name.
func (i *Identity) QualifiedName() string {
	return i.Module.Name + ":" + i.Name
}

// DerivesFrom reports whether the identity is derived, directly or
// transitively, from base.
func (i *Identity) DerivesFrom(base *Identity) bool {
	seen := 0
	for cur := i.base; cur != nil && seen < maxIdentityDepth; cur = cur.base {
		if cur == base {
			return true
		}
		seen++
	}
	return false
}

const maxIdentityDepth = 64

// Augment adds children to a node of another (or the same) module.
type Augment struct {
	Module *Module
	// Target is the absolute schema path of the augmented node.
	Target   string
	Children []*Node

	target *Node
}

// TargetNode returns the resolved augmented node.
func (a *Augment) TargetNode() *Node { return a.target }

// Context is a resolved set of modules.
type Context struct {
	modules  []*Module
	byName   map[string]*Module
	byPrefix map[string]*Module
	byNS     map[string]*Module
}

// NewContext indexes the modules, resolves identity bases and identityref
// types, and attaches augmentations to their targets. The modules must not
// be shared with another Context.
func NewContext(modules ...*Module) (*Context, error) {
	c := &Context{
		byName:   make(map[string]*Module, len(modules)),
		byPrefix: make(map[string]*Module, len(modules)),
		byNS:     make(map[string]*Module, len(modules)),
	}
	for _, m := range modules {
		if m == nil || m.Name == "" {
			return nil, fmt.Errorf("schema: module without name")
		}
		if _, dup := c.byName[m.Name]; dup {
			return nil, fmt.Errorf("schema: duplicate module %q", m.Name)
		}
		c.modules = append(c.modules, m)
		c.byName[m.Name] = m
		if m.Prefix != "" {
			if _, dup := c.byPrefix[m.Prefix]; !dup {
				c.byPrefix[m.Prefix] = m
			}
		}
		if m.Namespace != "" {
			c.byNS[m.Namespace] = m
		}
	}
	sort.Slice(c.modules, func(i, j int) bool { return c.modules[i].Name < c.modules[j].Name })

	for _, m := range c.modules {
		for _, id := range m.Identities {
			if id.Base == "" {
				continue
			}
			base, err := c.lookupIdentity(m, id.Base)
			if err != nil {
				return nil, fmt.Errorf("schema: identity %s: %w", id.QualifiedName(), err)
			}
			id.base = base
		}
	}
	for _, m := range c.modules {
		for _, a := range m.Augments {
			if err := c.attach(a); err != nil {
				return nil, err
			}
		}
	}
	var err error
	c.walk(func(n *Node) bool {
		if n.Type == nil || n.Type.Base != IdentityRef {
			return true
		}
		if err = c.resolveIdentityRef(n); err != nil {
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Modules returns the modules sorted by name.
func (c *Context) Modules() []*Module {
	out := make([]*Module, len(c.modules))
	copy(out, c.modules)
	return out
}

// Module returns the module with the given name.
func (c *Context) Module(name string) *Module { return c.byName[name] }

// ModuleByNamespace returns the module with the given XML namespace.
func (c *Context) ModuleByNamespace(ns string) *Module { return c.byNS[ns] }

// FindModule resolves a module name or a module prefix, preferring names.
func (c *Context) FindModule(nameOrPrefix string) *Module {
	if m := c.byName[nameOrPrefix]; m != nil {
		return m
	}
	return c.byPrefix[nameOrPrefix]
}

// TopLevel returns the top-level nodes with the given local name across all modules.
func (c *Context) TopLevel(name string) []*Node {
	var out []*Node
	for _, m := range c.modules {
		if n := m.Child(name); n != nil {
			out = append(out, n)
		}
	}
	return out
}

// ResolveTopLevel returns the single top-level node named name. A prefix
// restricts the search to one module. An unknown name and a name defined
// by more than one module both yield a *LookupError.
func (c *Context) ResolveTopLevel(prefix, name string) (*Node, error) {
	if prefix != "" {
		m := c.FindModule(prefix)
		if m == nil {
			return nil, &LookupError{Name: prefix + ":" + name, Reason: "unknown module " + prefix}
		}
		n := m.Child(name)
		if n == nil {
			return nil, &LookupError{Name: prefix + ":" + name, Reason: "no top-level node in module " + m.Name}
		}
		return n, nil
	}
	candidates := c.TopLevel(name)
	switch len(candidates) {
	case 0:
		return nil, &LookupError{Name: name, Reason: "no module defines a top-level node with this name"}
	case 1:
		return candidates[0], nil
	default:
		mods := make([]string, len(candidates))
		for i, n := range candidates {
			mods[i] = n.Module.Name
		}
		return nil, &LookupError{Name: name, Reason: "ambiguous", Candidates: mods}
	}
}

// ResolveChild resolves a child of parent by local name. A prefix selects
// the defining module. Without prefix a child of the parent's own module
// wins, then a unique child contributed by an augmentation.
func (c *Context) ResolveChild(parent *Node, prefix, name string) (*Node, error) {
	if prefix != "" {
		m := c.FindModule(prefix)
		if m == nil {
			return nil, &LookupError{Name: prefix + ":" + name, Parent: parent.Path(), Reason: "unknown module " + prefix}
		}
		if n := parent.ChildIn(m.Name, name); n != nil {
			return n, nil
		}
		return nil, &LookupError{Name: prefix + ":" + name, Parent: parent.Path(), Reason: "no such child"}
	}
	matches := parent.ChildrenNamed(name)
	switch len(matches) {
	case 0:
		return nil, &LookupError{Name: name, Parent: parent.Path(), Reason: "no such child"}
	case 1:
		return matches[0], nil
	}
	for _, n := range matches {
		if n.Module == parent.Module {
			return n, nil
		}
	}
	mods := make([]string, len(matches))
	for i, n := range matches {
		mods[i] = n.Module.Name
	}
	return nil, &LookupError{Name: name, Parent: parent.Path(), Reason: "ambiguous", Candidates: mods}
}

// Identity resolves module:name or prefix:name to an identity.
func (c *Context) Identity(qualified string) *Identity {
	mod, name, ok := strings.Cut(qualified, ":")
	if !ok {
		return nil
	}
	m := c.FindModule(mod)
	if m == nil {
		return nil
	}
	return m.Identity(name)
}

func (c *Context) lookupIdentity(from *Module, ref string) (*Identity, error) {
	mod, name, ok := strings.Cut(ref, ":")
	if !ok {
		name = ref
		mod = from.Name
	}
	m := c.FindModule(mod)
	if m == nil {
		return nil, fmt.Errorf("unknown module %q in identity reference %q", mod, ref)
	}
	id := m.Identity(name)
	if id == nil {
		return nil, fmt.Errorf("unknown identity %q", ref)
	}
	return id, nil
}

func (c *Context) resolveIdentityRef(n *Node) error {
	t := n.Type
	if t.IdentityBase == "" {
		return fmt.Errorf("schema: %s: identityref without base", n.Path())
	}
	base, err := c.lookupIdentity(n.Module, t.IdentityBase)
	if err != nil {
		return fmt.Errorf("schema: %s: %w", n.Path(), err)
	}
	t.Identities = t.Identities[:0]
	for _, m := range c.modules {
		for _, id := range m.Identities {
			if id.DerivesFrom(base) {
				t.Identities = append(t.Identities, id)
			}
		}
	}
	return nil
}

func (c *Context) attach(a *Augment) error {
	segs := splitSchemaPath(a.Target)
	if len(segs) == 0 {
		return fmt.Errorf("schema: augment in %s: empty target", a.Module.Name)
	}
	var cur *Node
	for i, seg := range segs {
		prefix, name := splitQName(seg)
		if prefix == "" {
			prefix = a.Module.Name
		}
		var err error
		if i == 0 {
			cur, err = c.ResolveTopLevel(prefix, name)
		} else {
			cur, err = c.ResolveChild(cur, prefix, name)
		}
		if err != nil {
			return fmt.Errorf("schema: augment %s in %s: %w", a.Target, a.Module.Name, err)
		}
	}
	if cur.Kind != KindContainer && cur.Kind != KindList {
		return fmt.Errorf("schema: augment %s in %s: target is a %s", a.Target, a.Module.Name, cur.Kind)
	}
	a.target = cur
	for _, ch := range a.Children {
		setParent(ch, cur, a)
		cur.Children = append(cur.Children, ch)
	}
	return nil
}

func setParent(n, parent *Node, a *Augment) {
	n.Parent = parent
	n.Augment = a
}

// walk visits every node of every module depth first until fn returns false.
func (c *Context) walk(fn func(*Node) bool) {
	var visit func(nodes []*Node) bool
	visit = func(nodes []*Node) bool {
		for _, n := range nodes {
			if !fn(n) {
				return false
			}
			if !visit(n.Children) {
				return false
			}
		}
		return true
	}
	for _, m := range c.modules {
		if !visit(m.Children) {
			return
		}
	}
}

// LookupError reports a path element that cannot be resolved to exactly one
// schema node.
type LookupError struct {
	Name       string
	Parent     string
	Reason     string
	Candidates []string
}

func (e *LookupError) Error() string {
	var b strings.Builder
	b.WriteString("schema lookup of ")
	b.WriteString(e.Name)
	if e.Parent != "" {
		b.WriteString(" under ")
		b.WriteString(e.Parent)
	}
	b.WriteString(" failed: ")
	b.WriteString(e.Reason)
	if len(e.Candidates) > 0 {
		b.WriteString(" (candidates: ")
		b.WriteString(strings.Join(e.Candidates, ", "))
		b.WriteString(")")
	}
	return b.String()
}

// Ambiguous reports whether several modules matched.
func (e *LookupError) Ambiguous() bool { return len(e.Candidates) > 1 }

func splitSchemaPath(p string) []string {
	var out []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func splitQName(s string) (prefix, name string) {
	if i := strings.LastIndexByte(s, ':'); i >= 0 {
		return s[:i], s[i+1:]
	}
	return "", s
}
