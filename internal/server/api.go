package server

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/maruel/schemadb/internal/schema"
	"github.com/maruel/schemadb/internal/store"
	"github.com/maruel/schemadb/internal/tree"
	"github.com/maruel/schemadb/internal/vfs"
)

var schemaAll = schema.MatchAll{}

// HealthRequest is the request for /api/health.
type HealthRequest struct{}

// Validate implements Validatable.
func (*HealthRequest) Validate() error { return nil }

// HealthResponse is the response for /api/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// Health handles health check requests.
func (s *Server) Health(ctx context.Context, req *HealthRequest) (*HealthResponse, error) {
	return &HealthResponse{Status: "ok", Version: s.version}, nil
}

// ListCollectionsRequest is the request for /api/collections.
type ListCollectionsRequest struct{}

// Validate implements Validatable.
func (*ListCollectionsRequest) Validate() error { return nil }

// Collection describes one collection.
type Collection struct {
	Name   string `json:"name"`
	Native bool   `json:"native"`
	State  string `json:"state"`
	Path   string `json:"path,omitempty"`
}

// ListCollectionsResponse is the response for /api/collections.
type ListCollectionsResponse struct {
	Collections []Collection `json:"collections"`
}

// ListCollections lists loaded collections and registered workspace folders.
func (s *Server) ListCollections(ctx context.Context, req *ListCollectionsRequest) (*ListCollectionsResponse, error) {
	names, err := s.st.ListCollectionNames()
	if err != nil {
		return nil, err
	}
	out := &ListCollectionsResponse{Collections: make([]Collection, 0, len(names))}
	for _, name := range names {
		c := Collection{Name: name, Native: store.IsNativeSchemaCollection(name), State: s.st.State(name).String()}
		if f, ok := s.st.Folder(name); ok {
			c.Path = f.Path
		}
		out.Collections = append(out.Collections, c)
	}
	return out, nil
}

// TreeRequest is the request for /api/tree.
type TreeRequest struct {
	Path string `query:"path"`
}

// Validate implements Validatable.
func (*TreeRequest) Validate() error { return nil }

// TreeNode is one child in a TreeResponse. Leaves carry the record.
type TreeNode struct {
	tree.Node
	ID      string `json:"id,omitempty"`
	Summary string `json:"summary,omitempty"`
}

// TreeResponse is the response for /api/tree.
type TreeResponse struct {
	Parent string     `json:"parent"`
	Nodes  []TreeNode `json:"nodes"`
}

// Tree returns the children of a path of the "collection/label" hierarchy.
func (s *Server) Tree(ctx context.Context, req *TreeRequest) (*TreeResponse, error) {
	paths := s.trackedPaths()
	index := tree.New(tree.SourceFunc(func() map[string]string { return paths }))
	nodes := index.ChildNodes(req.Path)
	out := &TreeResponse{Parent: tree.Parent(req.Path), Nodes: make([]TreeNode, 0, len(nodes))}
	for _, n := range nodes {
		tn := TreeNode{Node: n}
		if id, ok := paths[n.Path]; ok {
			tn.ID = id
			coll, _, _ := strings.Cut(n.Path, "/")
			if r, err := s.st.GetSchema(ctx, coll, id); err == nil {
				tn.Summary = r.Summary()
			}
		}
		out.Nodes = append(out.Nodes, tn)
	}
	return out, nil
}

// EventsRequest is the request for /api/events.
type EventsRequest struct {
	Wait time.Duration `query:"wait"`
}

// Validate implements Validatable.
func (r *EventsRequest) Validate() error {
	if r.Wait < 0 {
		return errors.New("wait must be non-negative")
	}
	return nil
}

// EventsResponse is the response for /api/events. Events is empty when the
// wait expired without changes.
type EventsResponse struct {
	Events []vfs.FileChangeEvent `json:"events"`
}

// Events waits for the next batch of file changes.
func (s *Server) Events(ctx context.Context, req *EventsRequest) (*EventsResponse, error) {
	batch := s.events.wait(ctx, req.Wait)
	if batch == nil {
		batch = []vfs.FileChangeEvent{}
	}
	return &EventsResponse{Events: batch}, nil
}
