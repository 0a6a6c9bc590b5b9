package graph

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// MutationSpec is one random editor operation applied to a snapshot.
// Op: 0 add node, 1 connect, 2 remove node, 3 remove edge.
type MutationSpec struct {
	Op     int
	A      int
	B      int
	EdgeIx int
}

func genMutations() gopter.Gen {
	genOne := gen.Struct(reflect.TypeOf(MutationSpec{}), map[string]gopter.Gen{
		"Op":     gen.IntRange(0, 3),
		"A":      gen.IntRange(0, 59),
		"B":      gen.IntRange(0, 59),
		"EdgeIx": gen.IntRange(0, 59),
	})
	return gen.SliceOf(genOne)
}

func applyMutation(s *Snapshot, m MutationSpec) {
	switch m.Op {
	case 0:
		_ = s.AddNode(Node{ID: fmt.Sprintf("n%d", m.A)})
	case 1:
		if len(s.Nodes) >= 2 {
			src := s.Nodes[m.A%len(s.Nodes)].ID
			dst := s.Nodes[m.B%len(s.Nodes)].ID
			_, _ = s.Connect(src, dst)
		}
	case 2:
		if len(s.Nodes) > 0 {
			s.RemoveNodes(s.Nodes[m.A%len(s.Nodes)].ID)
		}
	case 3:
		if len(s.Edges) > 0 {
			s.RemoveEdges(s.Edges[m.EdgeIx%len(s.Edges)].ID)
		}
	}
}

// No sequence of editor operations may leave a dangling edge or exceed the
// node cap: the snapshot must validate after every step.
func TestProperty_MutationsPreserveInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("snapshot validates after any mutation sequence", prop.ForAll(
		func(muts []MutationSpec) bool {
			s := NewSnapshot()
			for _, m := range muts {
				applyMutation(s, m)
				if err := s.Validate(); err != nil {
					t.Logf("invariant broken after op %d: %v", m.Op, err)
					return false
				}
				if len(s.Nodes) > MaxNodes {
					t.Logf("node cap exceeded: %d", len(s.Nodes))
					return false
				}
			}
			return true
		},
		genMutations(),
	))

	properties.Property("removing a node never leaves edges referencing it", prop.ForAll(
		func(muts []MutationSpec, victim int) bool {
			s := NewSnapshot()
			for _, m := range muts {
				applyMutation(s, m)
			}
			if len(s.Nodes) == 0 {
				return true
			}
			id := s.Nodes[victim%len(s.Nodes)].ID
			s.RemoveNodes(id)
			for _, e := range s.Edges {
				if e.Source == id || e.Target == id {
					t.Logf("dangling edge %s survives removal of %s", e.ID, id)
					return false
				}
			}
			return true
		},
		genMutations(),
		gen.IntRange(0, 59),
	))

	properties.TestingRun(t)
}

// Encode/Decode must round-trip any snapshot a mutation sequence can build.
func TestProperty_EncodeDecodeRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("decode(encode(s)) == s", prop.ForAll(
		func(muts []MutationSpec) bool {
			s := NewSnapshot()
			for _, m := range muts {
				applyMutation(s, m)
			}
			data, err := s.Encode()
			if err != nil {
				t.Logf("encode failed: %v", err)
				return false
			}
			got, err := Decode(data)
			if err != nil {
				t.Logf("decode failed: %v", err)
				return false
			}
			if len(got.Nodes) != len(s.Nodes) || len(got.Edges) != len(s.Edges) {
				return false
			}
			return got.Viewport == s.Viewport
		},
		genMutations(),
	))

	properties.TestingRun(t)
}
