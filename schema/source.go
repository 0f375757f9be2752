// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package schema

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

// ErrModuleNotFound is returned by a Source that has no model for the requested module.
var ErrModuleNotFound = errors.New("schema: module not found")

// Source loads model modules by name and version.
//
// An empty version selects the newest available model. Every call must return
// a freshly built Module, because NewContext attaches augmentations in place.
type Source interface {
	Load(name, version string) (*Module, error)
}

// moduleDoc is the YAML form of a module.
type moduleDoc struct {
	Module       string        `yaml:"module"`
	Prefix       string        `yaml:"prefix"`
	Namespace    string        `yaml:"namespace"`
	Organization string        `yaml:"organization"`
	Revision     string        `yaml:"revision"`
	SemVer       string        `yaml:"semver"`
	Imports      []string      `yaml:"imports"`
	Identities   []identityDoc `yaml:"identities"`
	Nodes        []nodeDoc     `yaml:"nodes"`
	Augments     []augmentDoc  `yaml:"augments"`
}

type identityDoc struct {
	Name string `yaml:"name"`
	Base string `yaml:"base"`
}

type augmentDoc struct {
	Target   string    `yaml:"target"`
	Children []nodeDoc `yaml:"children"`
}

type nodeDoc struct {
	Container      string    `yaml:"container"`
	List           string    `yaml:"list"`
	Leaf           string    `yaml:"leaf"`
	LeafList       string    `yaml:"leaf-list"`
	Key            []string  `yaml:"key"`
	Type           string    `yaml:"type"`
	FractionDigits uint8     `yaml:"fraction-digits"`
	Path           string    `yaml:"path"`
	Base           string    `yaml:"base"`
	Enum           []string  `yaml:"enum"`
	Config         *bool     `yaml:"config"`
	Children       []nodeDoc `yaml:"children"`
}

// ParseModule builds a module from its YAML description.
func ParseModule(data []byte) (*Module, error) {
	var doc moduleDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("schema: parsing module: %w", err)
	}
	return doc.build()
}

func (d *moduleDoc) build() (*Module, error) {
	if d.Module == "" {
		return nil, errors.New("schema: module name is required")
	}
	m := &Module{
		Name:         d.Module,
		Prefix:       d.Prefix,
		Namespace:    d.Namespace,
		Organization: d.Organization,
		Revision:     d.Revision,
		SemVer:       strings.TrimPrefix(d.SemVer, "v"),
		Imports:      append([]string(nil), d.Imports...),
	}
	if m.Prefix == "" {
		m.Prefix = m.Name
	}
	for _, id := range d.Identities {
		if id.Name == "" {
			return nil, fmt.Errorf("schema: module %s: identity without name", m.Name)
		}
		m.Identities = append(m.Identities, &Identity{Name: id.Name, Module: m, Base: id.Base})
	}
	for _, nd := range d.Nodes {
		n, err := nd.build(m, nil, true)
		if err != nil {
			return nil, fmt.Errorf("schema: module %s: %w", m.Name, err)
		}
		m.Children = append(m.Children, n)
	}
	for _, ad := range d.Augments {
		a := &Augment{Module: m, Target: ad.Target}
		for _, nd := range ad.Children {
			n, err := nd.build(m, nil, true)
			if err != nil {
				return nil, fmt.Errorf("schema: module %s: augment %s: %w", m.Name, ad.Target, err)
			}
			a.Children = append(a.Children, n)
		}
		m.Augments = append(m.Augments, a)
	}
	return m, nil
}

func (d *nodeDoc) build(m *Module, parent *Node, config bool) (*Node, error) {
	n := &Node{Module: m, Parent: parent, Config: config}
	if d.Config != nil {
		n.Config = *d.Config
	}
	switch {
	case d.Container != "":
		n.Name, n.Kind = d.Container, KindContainer
	case d.List != "":
		n.Name, n.Kind = d.List, KindList
		n.Keys = append([]string(nil), d.Key...)
	case d.Leaf != "":
		n.Name, n.Kind = d.Leaf, KindLeaf
	case d.LeafList != "":
		n.Name, n.Kind = d.LeafList, KindLeafList
	default:
		return nil, errors.New("node without container, list, leaf or leaf-list name")
	}

	if n.Kind == KindLeaf || n.Kind == KindLeafList {
		if len(d.Children) > 0 {
			return nil, fmt.Errorf("%s %s: children not allowed", n.Kind, n.Name)
		}
		base, err := ParseBaseType(d.Type)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", n.Kind, n.Name, err)
		}
		n.Type = &Type{
			Base:           base,
			FractionDigits: d.FractionDigits,
			Path:           d.Path,
			IdentityBase:   d.Base,
			Enum:           append([]string(nil), d.Enum...),
		}
		if base == Decimal64 && (d.FractionDigits < 1 || d.FractionDigits > 18) {
			return nil, fmt.Errorf("%s %s: fraction-digits must be 1..18", n.Kind, n.Name)
		}
		return n, nil
	}

	for _, cd := range d.Children {
		c, err := cd.build(m, n, n.Config)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", n.Kind, n.Name, err)
		}
		n.Children = append(n.Children, c)
	}
	for _, k := range n.Keys {
		if n.ChildIn(m.Name, k) == nil {
			return nil, fmt.Errorf("list %s: key leaf %q not defined", n.Name, k)
		}
	}
	if n.Kind == KindList && len(n.Keys) == 0 && n.Config {
		return nil, fmt.Errorf("list %s: config list without key", n.Name)
	}
	return n, nil
}

// DirSource loads YAML model descriptions from a directory. Files are named
// <module>.yaml or <module>@<revision>.yaml; .yml is accepted as well.
type DirSource struct {
	dir string

	mu   sync.Mutex
	docs map[string]*moduleDoc
}

// NewDirSource returns a source reading from dir.
func NewDirSource(dir string) (*DirSource, error) {
	fi, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("schema: model directory: %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("schema: model directory %s is not a directory", filepath.Base(dir))
	}
	return &DirSource{dir: dir, docs: make(map[string]*moduleDoc)}, nil
}

// Load implements Source.
func (s *DirSource) Load(name, version string) (*Module, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("schema: reading model directory: %w", err)
	}
	var candidates []*moduleDoc
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		base, ok := modelFileBase(e.Name())
		if !ok {
			continue
		}
		modName, _, _ := strings.Cut(base, "@")
		if modName != name {
			continue
		}
		doc, err := s.doc(e.Name())
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, doc)
	}
	doc := selectVersion(candidates, version)
	if doc == nil {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, moduleRef(name, version))
	}
	return doc.build()
}

// Names returns the names of all modules in the directory.
func (s *DirSource) Names() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("schema: reading model directory: %w", err)
	}
	seen := make(map[string]bool)
	var out []string
	for _, e := range entries {
		base, ok := modelFileBase(e.Name())
		if e.IsDir() || !ok {
			continue
		}
		name, _, _ := strings.Cut(base, "@")
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *DirSource) doc(file string) (*moduleDoc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.docs[file]; ok {
		return d, nil
	}
	data, err := os.ReadFile(filepath.Join(s.dir, file))
	if err != nil {
		return nil, fmt.Errorf("schema: reading %s: %w", file, err)
	}
	d := &moduleDoc{}
	if err := yaml.Unmarshal(data, d); err != nil {
		return nil, fmt.Errorf("schema: parsing %s: %w", file, err)
	}
	s.docs[file] = d
	return d, nil
}

func modelFileBase(file string) (string, bool) {
	for _, ext := range []string{".yaml", ".yml"} {
		if strings.HasSuffix(file, ext) {
			return strings.TrimSuffix(file, ext), true
		}
	}
	return "", false
}

// MemorySource serves modules from YAML documents held in memory.
type MemorySource struct {
	docs []*moduleDoc
}

// NewMemorySource parses the given YAML module descriptions.
func NewMemorySource(docs ...string) (*MemorySource, error) {
	s := &MemorySource{}
	for i, raw := range docs {
		d := &moduleDoc{}
		if err := yaml.Unmarshal([]byte(raw), d); err != nil {
			return nil, fmt.Errorf("schema: parsing document %d: %w", i, err)
		}
		if d.Module == "" {
			return nil, fmt.Errorf("schema: document %d: module name is required", i)
		}
		s.docs = append(s.docs, d)
	}
	return s, nil
}

// Load implements Source.
func (s *MemorySource) Load(name, version string) (*Module, error) {
	var candidates []*moduleDoc
	for _, d := range s.docs {
		if d.Module == name {
			candidates = append(candidates, d)
		}
	}
	doc := selectVersion(candidates, version)
	if doc == nil {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, moduleRef(name, version))
	}
	return doc.build()
}

// Names returns the names of all modules held by the source.
func (s *MemorySource) Names() []string {
	seen := make(map[string]bool)
	var out []string
	for _, d := range s.docs {
		if !seen[d.Module] {
			seen[d.Module] = true
			out = append(out, d.Module)
		}
	}
	sort.Strings(out)
	return out
}

// selectVersion picks the document matching version by semantic version or
// revision. An empty version picks the newest document.
func selectVersion(docs []*moduleDoc, version string) *moduleDoc {
	if len(docs) == 0 {
		return nil
	}
	if version != "" {
		v := strings.TrimPrefix(version, "v")
		for _, d := range docs {
			if strings.TrimPrefix(d.SemVer, "v") == v || d.Revision == version {
				return d
			}
		}
		return nil
	}
	best := docs[0]
	for _, d := range docs[1:] {
		if newer(d, best) {
			best = d
		}
	}
	return best
}

func newer(a, b *moduleDoc) bool {
	va, vb := "v"+strings.TrimPrefix(a.SemVer, "v"), "v"+strings.TrimPrefix(b.SemVer, "v")
	if semver.IsValid(va) && semver.IsValid(vb) {
		if c := semver.Compare(va, vb); c != 0 {
			return c > 0
		}
	}
	// revision dates compare lexically
	return a.Revision > b.Revision
}

func moduleRef(name, version string) string {
	if version == "" {
		return name
	}
	return name + "@" + version
}

// LoadAll loads the named modules and, transitively, every module they
// import. Imports are loaded in their newest version.
func LoadAll(src Source, refs map[string]string) ([]*Module, error) {
	loaded := make(map[string]*Module)
	var missing []string
	var order []string
	for name := range refs {
		order = append(order, name)
	}
	sort.Strings(order)

	queue := make([]string, 0, len(order))
	queue = append(queue, order...)
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if _, ok := loaded[name]; ok {
			continue
		}
		m, err := src.Load(name, refs[name])
		if err != nil {
			if errors.Is(err, ErrModuleNotFound) {
				missing = append(missing, moduleRef(name, refs[name]))
				loaded[name] = nil
				continue
			}
			return nil, err
		}
		loaded[name] = m
		for _, imp := range m.Imports {
			if _, ok := loaded[imp]; !ok {
				queue = append(queue, imp)
			}
		}
	}
	if len(missing) > 0 {
		return nil, &MissingModulesError{Modules: missing}
	}
	out := make([]*Module, 0, len(loaded))
	for _, m := range loaded {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// MissingModulesError lists every module a Source could not provide.
type MissingModulesError struct {
	Modules []string
}

func (e *MissingModulesError) Error() string {
	return "schema: missing modules: " + strings.Join(e.Modules, ", ")
}

func (e *MissingModulesError) Unwrap() error { return ErrModuleNotFound }
