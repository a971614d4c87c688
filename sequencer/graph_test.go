package sequencer

import (
	"testing"

	"mailsequence/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func labelNode(id, label string) models.SequenceNode {
	return models.SequenceNode{ID: id, Data: models.SequenceNodeData{Label: label}}
}

// chain links the nodes in the order given
func chain(nodes ...models.SequenceNode) []models.SequenceEdge {
	var edges []models.SequenceEdge
	for i := 1; i < len(nodes); i++ {
		edges = append(edges, models.SequenceEdge{
			ID:     "e" + nodes[i-1].ID + "-" + nodes[i].ID,
			Source: nodes[i-1].ID,
			Target: nodes[i].ID,
		})
	}
	return edges
}

func exampleNodes() []models.SequenceNode {
	return []models.SequenceNode{
		labelNode("1", "Lead-Source\n- (a@x.com)"),
		labelNode("2", "Cold-Email\n- (Hi) body1"),
		labelNode("3", "Wait/Delay\n- (2 min)"),
		labelNode("4", "Cold-Email\n- (Bye) body2"),
	}
}

func kinds(plan *Plan) []NodeKind {
	out := make([]NodeKind, len(plan.Nodes))
	for i, n := range plan.Nodes {
		out[i] = n.Kind
	}
	return out
}

func ids(plan *Plan) []string {
	out := make([]string, len(plan.Nodes))
	for i, n := range plan.Nodes {
		out[i] = n.Node.ID
	}
	return out
}

func TestParseGraph(t *testing.T) {
	t.Run("resolves recipient and classifies nodes", func(t *testing.T) {
		nodes := exampleNodes()
		plan, err := ParseGraph(nodes, chain(nodes...), DefaultOptions())
		require.NoError(t, err)

		assert.Equal(t, "a@x.com", plan.Recipient)
		assert.Equal(t, "1", plan.LeadNodeID)
		assert.Equal(t, []NodeKind{KindLeadSource, KindColdEmail, KindWaitDelay, KindColdEmail}, kinds(plan))
	})

	t.Run("unrecognized nodes are kept but ignored", func(t *testing.T) {
		nodes := []models.SequenceNode{
			labelNode("1", "Lead-Source\n- (a@x.com)"),
			labelNode("2", "Goal\n- (conversion)"),
			labelNode("3", "Cold-Email\n- (Hi) there"),
		}
		plan, err := ParseGraph(nodes, chain(nodes...), DefaultOptions())
		require.NoError(t, err)
		assert.Equal(t, []NodeKind{KindLeadSource, KindUnknown, KindColdEmail}, kinds(plan))
	})

	t.Run("first lead source wins", func(t *testing.T) {
		nodes := []models.SequenceNode{
			labelNode("1", "Cold-Email\n- (Hi) there"),
			labelNode("2", "Lead-Source\n- (first@x.com)"),
			labelNode("3", "Lead-Source\n- (second@x.com)"),
		}
		plan, err := ParseGraph(nodes, chain(nodes...), DefaultOptions())
		require.NoError(t, err)
		assert.Equal(t, "first@x.com", plan.Recipient)
		assert.Equal(t, "2", plan.LeadNodeID)
	})

	t.Run("explicit payload overrides the label", func(t *testing.T) {
		nodes := []models.SequenceNode{
			{ID: "1", Data: models.SequenceNodeData{Label: "Recipient", Kind: models.NodeKindLeadSource, Email: " b@y.org "}},
			labelNode("2", "Cold-Email\n- (Hi) there"),
		}
		plan, err := ParseGraph(nodes, chain(nodes...), DefaultOptions())
		require.NoError(t, err)
		assert.Equal(t, "b@y.org", plan.Recipient)
	})
}

func TestParseGraphErrors(t *testing.T) {
	valid := exampleNodes()

	cases := []struct {
		name    string
		nodes   []models.SequenceNode
		edges   []models.SequenceEdge
		wantErr error
		msg     string
	}{
		{
			name:    "empty nodes",
			nodes:   nil,
			edges:   chain(valid...),
			wantErr: ErrValidation,
			msg:     "nodes are required",
		},
		{
			name:    "empty edges",
			nodes:   valid,
			edges:   nil,
			wantErr: ErrValidation,
			msg:     "edges are required",
		},
		{
			name:    "node without id",
			nodes:   []models.SequenceNode{labelNode("", "Lead-Source\n- (a@x.com)"), labelNode("2", "Cold-Email\n- (Hi) x")},
			edges:   []models.SequenceEdge{{ID: "e1", Source: "2", Target: "2"}},
			wantErr: ErrValidation,
			msg:     "nodes[0].id is required",
		},
		{
			name:    "edge without target",
			nodes:   valid,
			edges:   []models.SequenceEdge{{ID: "e1", Source: "1"}},
			wantErr: ErrValidation,
			msg:     "target is required",
		},
		{
			name:    "duplicate node id",
			nodes:   []models.SequenceNode{labelNode("1", "Lead-Source\n- (a@x.com)"), labelNode("1", "Cold-Email\n- (Hi) x")},
			edges:   []models.SequenceEdge{{ID: "e1", Source: "1", Target: "1"}},
			wantErr: ErrValidation,
			msg:     "duplicate node id",
		},
		{
			name:    "dangling edge",
			nodes:   valid,
			edges:   []models.SequenceEdge{{ID: "e1", Source: "1", Target: "99"}},
			wantErr: ErrValidation,
			msg:     "unknown target node",
		},
		{
			name: "unknown explicit kind",
			nodes: []models.SequenceNode{
				{ID: "1", Data: models.SequenceNodeData{Kind: "branch"}},
				labelNode("2", "Lead-Source\n- (a@x.com)"),
			},
			edges:   []models.SequenceEdge{{ID: "e1", Source: "1", Target: "2"}},
			wantErr: ErrValidation,
			msg:     "kind must be one of",
		},
		{
			name:    "no lead source",
			nodes:   []models.SequenceNode{labelNode("1", "Cold-Email\n- (Hi) x"), labelNode("2", "Wait/Delay\n- (1 min)")},
			edges:   []models.SequenceEdge{{ID: "e1", Source: "1", Target: "2"}},
			wantErr: ErrMissingLeadSource,
		},
		{
			name:    "lead source without address",
			nodes:   []models.SequenceNode{labelNode("1", "Lead-Source"), labelNode("2", "Cold-Email\n- (Hi) x")},
			edges:   []models.SequenceEdge{{ID: "e1", Source: "1", Target: "2"}},
			wantErr: ErrMalformedLabel,
		},
		{
			name:    "lead source with invalid address",
			nodes:   []models.SequenceNode{labelNode("1", "Lead-Source\n- (not-an-email)"), labelNode("2", "Cold-Email\n- (Hi) x")},
			edges:   []models.SequenceEdge{{ID: "e1", Source: "1", Target: "2"}},
			wantErr: ErrMalformedLabel,
			msg:     "invalid recipient",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			plan, err := ParseGraph(tc.nodes, tc.edges, DefaultOptions())
			require.Error(t, err)
			assert.Nil(t, plan)
			assert.ErrorIs(t, err, tc.wantErr)
			if tc.msg != "" {
				assert.ErrorContains(t, err, tc.msg)
			}
		})
	}
}

func TestParseGraphEdgeOrder(t *testing.T) {
	opts := DefaultOptions()
	opts.Order = OrderEdges

	t.Run("follows edges instead of submission order", func(t *testing.T) {
		lead := labelNode("lead", "Lead-Source\n- (a@x.com)")
		first := labelNode("first", "Cold-Email\n- (One) 1")
		second := labelNode("second", "Cold-Email\n- (Two) 2")

		nodes := []models.SequenceNode{second, lead, first}
		plan, err := ParseGraph(nodes, chain(lead, first, second), opts)
		require.NoError(t, err)
		assert.Equal(t, []string{"lead", "first", "second"}, ids(plan))

		listPlan, err := ParseGraph(nodes, chain(lead, first, second), DefaultOptions())
		require.NoError(t, err)
		assert.Equal(t, []string{"second", "lead", "first"}, ids(listPlan))
	})

	t.Run("ties break by submission position", func(t *testing.T) {
		nodes := []models.SequenceNode{
			labelNode("b", "Cold-Email\n- (B) b"),
			labelNode("lead", "Lead-Source\n- (a@x.com)"),
			labelNode("a", "Cold-Email\n- (A) a"),
		}
		edges := []models.SequenceEdge{
			{ID: "e1", Source: "lead", Target: "a"},
			{ID: "e2", Source: "lead", Target: "b"},
		}
		plan, err := ParseGraph(nodes, edges, opts)
		require.NoError(t, err)
		assert.Equal(t, []string{"lead", "b", "a"}, ids(plan))
	})

	t.Run("cycle is rejected", func(t *testing.T) {
		nodes := []models.SequenceNode{
			labelNode("1", "Lead-Source\n- (a@x.com)"),
			labelNode("2", "Cold-Email\n- (Hi) x"),
			labelNode("3", "Cold-Email\n- (Bye) y"),
		}
		edges := append(chain(nodes...), models.SequenceEdge{ID: "back", Source: "3", Target: "2"})
		_, err := ParseGraph(nodes, edges, opts)
		assert.ErrorIs(t, err, ErrValidation)
		assert.ErrorContains(t, err, "cycle detected")
	})
}

func TestBetween(t *testing.T) {
	got, ok := between("Lead-Source\n- (a@x.com)", "- (", ")")
	assert.True(t, ok)
	assert.Equal(t, "a@x.com", got)

	_, ok = between("Lead-Source\n- (a@x.com", "- (", ")")
	assert.False(t, ok)

	_, ok = between("Lead-Source", "- (", ")")
	assert.False(t, ok)
}
