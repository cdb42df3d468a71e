package tree

import (
	"slices"
	"strings"
	"testing"
)

func indexer(keys ...string) *Indexer {
	m := make(map[string]string, len(keys))
	for i, k := range keys {
		m[k] = string(rune('A' + i))
	}
	return New(SourceFunc(func() map[string]string { return m }))
}

func TestChildren(t *testing.T) {
	ix := indexer("a/b/c", "a/b/d", "a/e")
	tests := []struct {
		path string
		want []string
	}{
		{"a", []string{"b", "e"}},
		{"/a", []string{"b", "e"}},
		{"a/b", []string{"c", "d"}},
		{"", []string{"a"}},
		{"a/e", nil},
		{"zzz", nil},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := ix.Children(tt.path); !slices.Equal(got, tt.want) {
				t.Errorf("Children(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestChildrenOrdering(t *testing.T) {
	ix := indexer("r/zeta", "r/Beta/x", "r/alpha", "r/Gamma/y", "r/éclair", "r/delta")
	want := []string{"Beta", "Gamma", "alpha", "delta", "éclair", "zeta"}
	if got := ix.Children("r"); !slices.Equal(got, want) {
		t.Errorf("Children() = %v, want %v", got, want)
	}
	nodes := ix.ChildNodes("r")
	if n := nodes[0]; n.Path != "r/Beta" || !n.Expandable {
		t.Errorf("first node = %+v", n)
	}
	if n := nodes[len(nodes)-1]; n.Path != "r/zeta" || n.Expandable {
		t.Errorf("last node = %+v", n)
	}
}

func TestChildrenProperties(t *testing.T) {
	sets := [][]string{
		{"a/b/c", "a/b/d", "a/e"},
		{"x", "x/y", "x/y/z", "xy/q", "w/x"},
		{"one", "two/three/four", "two/five"},
	}
	for _, keys := range sets {
		ix := indexer(keys...)
		probes := []string{""}
		for _, k := range keys {
			for i := range len(k) {
				if k[i] == '/' {
					probes = append(probes, k[:i])
				}
			}
			probes = append(probes, k)
		}
		for _, p := range probes {
			got := ix.Children(p)
			seen := map[string]bool{}
			for _, c := range got {
				if c == p || strings.Contains(c, "/") || c == "" {
					t.Errorf("%v: Children(%q) contains %q", keys, p, c)
				}
				if seen[c] {
					t.Errorf("%v: Children(%q) repeats %q", keys, p, c)
				}
				seen[c] = true
			}
			want := false
			for _, k := range keys {
				if strings.HasPrefix(k, p) && len(k) > len(p) {
					want = true
				}
			}
			if got := ix.HasChildren(p); got != want {
				t.Errorf("%v: HasChildren(%q) = %v, want %v", keys, p, got, want)
			}
		}
	}
}

func TestSiblingPrefix(t *testing.T) {
	ix := indexer("Foundry/JournalEntry", "Foundry/JournalEntryPage", "Foundry/Document")
	nodes := ix.ChildNodes("Foundry")
	var names []string
	for _, n := range nodes {
		names = append(names, n.Name)
		if n.Expandable {
			t.Errorf("%s is expandable", n.Path)
		}
		if got := ix.Children(n.Path); len(got) != 0 {
			t.Errorf("Children(%q) = %v", n.Path, got)
		}
	}
	if want := []string{"Document", "JournalEntry", "JournalEntryPage"}; !slices.Equal(names, want) {
		t.Errorf("Children() = %v, want %v", names, want)
	}
	// HasChildren keeps the plain prefix test.
	if !ix.HasChildren("Foundry/JournalEntry") {
		t.Error(`HasChildren("Foundry/JournalEntry") = false`)
	}
}

func TestSnapshotIsReread(t *testing.T) {
	m := map[string]string{"a/b": "1"}
	ix := New(SourceFunc(func() map[string]string { return m }))
	if got := ix.Children("a"); !slices.Equal(got, []string{"b"}) {
		t.Fatalf("Children() = %v", got)
	}
	m["a/c"] = "2"
	if got := ix.Children("a"); !slices.Equal(got, []string{"b", "c"}) {
		t.Errorf("Children() after mutation = %v", got)
	}
}

func TestParentAndBaseNode(t *testing.T) {
	tests := []struct{ in, want string }{
		{"a/b/c", "a/b"},
		{"/a/b", "a"},
		{"a", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Parent(tt.in); got != tt.want {
			t.Errorf("Parent(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	ix := indexer("a/b/c", "a/e")
	if n := ix.BaseNode("a/b"); n != (Node{Name: "b", Path: "a/b", Expandable: true}) {
		t.Errorf("BaseNode(a/b) = %+v", n)
	}
	if n := ix.BaseNode("/a/e"); n != (Node{Name: "e", Path: "a/e", Expandable: false}) {
		t.Errorf("BaseNode(/a/e) = %+v", n)
	}
}
