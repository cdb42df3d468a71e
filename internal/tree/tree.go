// Package tree projects a flat mapping of slash-separated paths onto a
// navigable hierarchy.
//
// An Indexer holds no state of its own: every call re-reads the current
// mapping from its Source, which may change between calls.
package tree

import (
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Source provides the tracked paths, mapping relative paths to identifiers.
// The Indexer never mutates the returned map.
type Source interface {
	TrackedPaths() map[string]string
}

// SourceFunc adapts a function to Source.
type SourceFunc func() map[string]string

// TrackedPaths implements Source.
func (f SourceFunc) TrackedPaths() map[string]string {
	return f()
}

// Node is the display form of a path.
type Node struct {
	Name       string `json:"name"`
	Path       string `json:"path"`
	Expandable bool   `json:"expandable"`
}

// Indexer answers hierarchy queries over a Source.
type Indexer struct {
	src Source
}

// New returns an Indexer over src.
func New(src Source) *Indexer {
	return &Indexer{src: src}
}

// Children returns the names of the immediate children of path. Children
// that have children of their own come first; names are then ordered with a
// locale-aware comparison. The empty path is the root.
func (ix *Indexer) Children(path string) []string {
	nodes := ix.ChildNodes(path)
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Name
	}
	return out
}

// ChildNodes is like Children but returns nodes.
func (ix *Indexer) ChildNodes(path string) []Node {
	paths := ix.src.TrackedPaths()
	path = strings.Trim(path, "/")
	prefix := ""
	if path != "" {
		prefix = path + "/"
	}
	seen := map[string]struct{}{}
	var nodes []Node
	for key := range paths {
		key = strings.TrimPrefix(key, "/")
		rel, ok := strings.CutPrefix(key, prefix)
		if !ok || rel == "" {
			continue
		}
		name, _, _ := strings.Cut(rel, "/")
		if _, dup := seen[name]; dup || name == "" {
			continue
		}
		seen[name] = struct{}{}
		// Test below the "/" boundary: a sibling that merely shares the name as a
		// prefix ("a/x" and "a/xy") is not a child.
		nodes = append(nodes, Node{Name: name, Path: prefix + name, Expandable: hasChildren(paths, prefix+name+"/")})
	}
	c := collate.New(language.Und)
	slices.SortFunc(nodes, func(a, b Node) int {
		if a.Expandable != b.Expandable {
			if a.Expandable {
				return -1
			}
			return 1
		}
		return c.CompareString(a.Name, b.Name)
	})
	return nodes
}

// HasChildren reports whether some tracked path is strictly longer than path
// and starts with it. A leading slash on path is ignored.
func (ix *Indexer) HasChildren(path string) bool {
	return hasChildren(ix.src.TrackedPaths(), strings.TrimPrefix(path, "/"))
}

// BaseNode returns the display node of path.
func (ix *Indexer) BaseNode(path string) Node {
	p := strings.TrimPrefix(path, "/")
	return Node{
		Name:       p[strings.LastIndexByte(p, '/')+1:],
		Path:       p,
		Expandable: ix.HasChildren(p),
	}
}

// Parent returns the part of path before its last slash, or the empty string
// for a top-level path. A leading slash is ignored.
func Parent(path string) string {
	p := strings.TrimPrefix(path, "/")
	i := strings.LastIndexByte(p, '/')
	if i < 0 {
		return ""
	}
	return p[:i]
}

func hasChildren(paths map[string]string, path string) bool {
	for key := range paths {
		key = strings.TrimPrefix(key, "/")
		if len(key) > len(path) && strings.HasPrefix(key, path) {
			return true
		}
	}
	return false
}
