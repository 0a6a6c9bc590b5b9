package graph

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// MaxNodes caps the number of action nodes per workflow graph. The cap is
// enforced both in the editor before a creation request is issued and by the
// store when an action is created.
const MaxNodes = 50

// NodeTypeAction is the canvas node type backing a persisted action record.
const NodeTypeAction = "action"

// MarkerArrow is the default marker style applied to user-drawn connections.
const MarkerArrow = "arrow"

var (
	// ErrNodeLimit is returned when a mutation would exceed MaxNodes.
	ErrNodeLimit = errors.New("node limit exceeded")

	// ErrUnknownNode is returned when an edge references a node id that is
	// not present in the snapshot.
	ErrUnknownNode = errors.New("unknown node")

	// ErrDuplicateNode is returned when a node id is already present.
	ErrDuplicateNode = errors.New("duplicate node")
)

// Position is a point in flow coordinates.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Viewport is the pan/zoom state of the canvas, persisted alongside the
// graph so a reload restores the exact view.
type Viewport struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom"`
}

// ToFlow translates a screen position into flow coordinates under this
// viewport. A zero zoom is treated as 1 to keep the translation total.
func (v Viewport) ToFlow(screen Position) Position {
	zoom := v.Zoom
	if zoom == 0 {
		zoom = 1
	}
	return Position{
		X: (screen.X - v.X) / zoom,
		Y: (screen.Y - v.Y) / zoom,
	}
}

// ToScreen is the inverse of ToFlow.
func (v Viewport) ToScreen(flow Position) Position {
	zoom := v.Zoom
	if zoom == 0 {
		zoom = 1
	}
	return Position{
		X: flow.X*zoom + v.X,
		Y: flow.Y*zoom + v.Y,
	}
}

// EventCounts tracks how many events an action node has processed.
type EventCounts struct {
	Total    int64 `json:"total"`
	Failures int64 `json:"failures"`
}

// Node is a single action box on the canvas, backed by a persisted action
// record whose id the store assigned on creation.
type Node struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	ActionType string      `json:"action_type"`
	Title      string      `json:"title"`
	Configured bool        `json:"configured"`
	Position   Position    `json:"position"`
	Events     EventCounts `json:"events"`
}

// Edge connects two action nodes.
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	Marker string `json:"marker,omitempty"`
}

// Snapshot is the combined nodes + edges + viewport payload persisted per
// workflow. It is the unit the editor writes back after each mutation.
type Snapshot struct {
	Nodes    []Node   `json:"nodes"`
	Edges    []Edge   `json:"edges"`
	Viewport Viewport `json:"viewport"`
}

// NewSnapshot returns an empty snapshot at the default zoom.
func NewSnapshot() *Snapshot {
	return &Snapshot{Viewport: Viewport{Zoom: 1}}
}

// Node returns the node with the given id, if present.
func (s *Snapshot) Node(id string) (*Node, bool) {
	for i := range s.Nodes {
		if s.Nodes[i].ID == id {
			return &s.Nodes[i], true
		}
	}
	return nil, false
}

// HasNode reports whether a node with the given id exists.
func (s *Snapshot) HasNode(id string) bool {
	_, ok := s.Node(id)
	return ok
}

// AddNode appends a node, enforcing the node cap and id uniqueness.
func (s *Snapshot) AddNode(n Node) error {
	if len(s.Nodes) >= MaxNodes {
		return fmt.Errorf("%w: graph already holds %d nodes", ErrNodeLimit, len(s.Nodes))
	}
	if s.HasNode(n.ID) {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID)
	}
	if n.Type == "" {
		n.Type = NodeTypeAction
	}
	s.Nodes = append(s.Nodes, n)
	return nil
}

// Connect appends exactly one edge from source to target carrying the
// default arrow marker. Both endpoints must exist.
func (s *Snapshot) Connect(source, target string) (Edge, error) {
	if !s.HasNode(source) {
		return Edge{}, fmt.Errorf("%w: source %s", ErrUnknownNode, source)
	}
	if !s.HasNode(target) {
		return Edge{}, fmt.Errorf("%w: target %s", ErrUnknownNode, target)
	}
	edge := Edge{
		ID:     uuid.NewString(),
		Source: source,
		Target: target,
		Marker: MarkerArrow,
	}
	s.Edges = append(s.Edges, edge)
	return edge, nil
}

// RemoveNodes deletes the given nodes by id set difference and cascades the
// removal of every edge referencing a removed node. It returns the edges
// that were removed by the cascade.
func (s *Snapshot) RemoveNodes(ids ...string) []Edge {
	if len(ids) == 0 {
		return nil
	}
	removed := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		removed[id] = struct{}{}
	}

	nodes := s.Nodes[:0]
	for _, n := range s.Nodes {
		if _, gone := removed[n.ID]; !gone {
			nodes = append(nodes, n)
		}
	}
	s.Nodes = nodes

	var cascaded []Edge
	edges := s.Edges[:0]
	for _, e := range s.Edges {
		_, srcGone := removed[e.Source]
		_, dstGone := removed[e.Target]
		if srcGone || dstGone {
			cascaded = append(cascaded, e)
			continue
		}
		edges = append(edges, e)
	}
	s.Edges = edges
	return cascaded
}

// RemoveEdges deletes the given edges by id set difference.
func (s *Snapshot) RemoveEdges(ids ...string) {
	if len(ids) == 0 {
		return
	}
	removed := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		removed[id] = struct{}{}
	}
	edges := s.Edges[:0]
	for _, e := range s.Edges {
		if _, gone := removed[e.ID]; !gone {
			edges = append(edges, e)
		}
	}
	s.Edges = edges
}

// MoveNode updates a node's position, reporting whether the node exists.
func (s *Snapshot) MoveNode(id string, pos Position) bool {
	n, ok := s.Node(id)
	if !ok {
		return false
	}
	n.Position = pos
	return true
}

// Clone returns a deep copy. The editor hands copies to write-backs so an
// in-flight request never observes later mutations.
func (s *Snapshot) Clone() *Snapshot {
	c := &Snapshot{Viewport: s.Viewport}
	if len(s.Nodes) > 0 {
		c.Nodes = make([]Node, len(s.Nodes))
		copy(c.Nodes, s.Nodes)
	}
	if len(s.Edges) > 0 {
		c.Edges = make([]Edge, len(s.Edges))
		copy(c.Edges, s.Edges)
	}
	return c
}

// Validate checks the structural invariants: node cap, unique node ids, and
// that every edge references two existing nodes.
func (s *Snapshot) Validate() error {
	if len(s.Nodes) > MaxNodes {
		return fmt.Errorf("%w: %d nodes, cap is %d", ErrNodeLimit, len(s.Nodes), MaxNodes)
	}
	ids := make(map[string]struct{}, len(s.Nodes))
	for _, n := range s.Nodes {
		if n.ID == "" {
			return fmt.Errorf("node with empty id")
		}
		if _, dup := ids[n.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID)
		}
		ids[n.ID] = struct{}{}
	}
	for _, e := range s.Edges {
		if _, ok := ids[e.Source]; !ok {
			return fmt.Errorf("%w: edge %s references source %s", ErrUnknownNode, e.ID, e.Source)
		}
		if _, ok := ids[e.Target]; !ok {
			return fmt.Errorf("%w: edge %s references target %s", ErrUnknownNode, e.ID, e.Target)
		}
	}
	return nil
}

// Encode serializes the snapshot to JSON.
func (s *Snapshot) Encode() ([]byte, error) {
	return json.Marshal(s)
}

// Decode parses a persisted snapshot.
func Decode(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode graph snapshot: %w", err)
	}
	return &s, nil
}
