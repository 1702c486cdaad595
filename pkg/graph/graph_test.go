package graph

import (
	"encoding/json"
	"testing"

	"github.com/dukex/journeys/pkg/models"
	"github.com/dukex/journeys/pkg/testutil"
	"github.com/dukex/journeys/pkg/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func splitJourney() *models.Journey {
	return testutil.CreateTestJourney(
		testutil.TriggerNode("trigger", "split"),
		testutil.SplitNode("split", models.SplitTypeABTest,
			models.SplitBranch{ID: "a", Name: "A", Weight: 50, NextNodeID: "email-a"},
			models.SplitBranch{ID: "b", Name: "B", Weight: 50, NextNodeID: "email-b"},
		),
		testutil.ActionNode("email-a", models.ChannelEmail, "Variant A", "end"),
		testutil.ActionNode("email-b", models.ChannelEmail, "Variant B", "end"),
		testutil.EndNode("end"),
	)
}

func TestToGraph_EdgeLabels(t *testing.T) {
	graph, err := ToGraph(testutil.OnboardingJourney())
	require.NoError(t, err)

	require.Len(t, graph.Nodes, 6)

	labels := map[string]string{}
	for _, edge := range graph.Edges {
		labels[edge.Source+"->"+edge.Target] = edge.Label
	}

	assert.Equal(t, map[string]string{
		"trigger->wait":   "",
		"wait->condition": "",
		"condition->push": models.EdgeLabelYes,
		"condition->sms":  models.EdgeLabelNo,
		"push->end":       "",
		"sms->end":        "",
	}, labels)

	node, ok := graph.NodeByID("wait")
	require.True(t, ok)
	assert.Equal(t, models.Position{X: 250, Y: 120}, node.Position)

	split, err := ToGraph(splitJourney())
	require.NoError(t, err)

	var branchLabels []string
	for _, edge := range split.Edges {
		if edge.Source == "split" {
			branchLabels = append(branchLabels, edge.Label)
		}
	}

	assert.Equal(t, []string{"branch-0", "branch-1"}, branchLabels)
}

func TestRoundTrip_Idempotent(t *testing.T) {
	for name, journey := range map[string]*models.Journey{
		"onboarding": testutil.OnboardingJourney(),
		"split":      splitJourney(),
	} {
		t.Run(name, func(t *testing.T) {
			graph, err := ToGraph(journey)
			require.NoError(t, err)

			nodes, err := FromGraph(graph)
			require.NoError(t, err)
			assert.Equal(t, journey.Nodes, nodes)

			again, err := NodesToGraph(nodes)
			require.NoError(t, err)
			assert.Equal(t, graph, again)

			nodesAgain, err := FromGraph(again)
			require.NoError(t, err)
			assert.Equal(t, nodes, nodesAgain)
		})
	}
}

func TestRoundTrip_ConditionDecodedWithoutNext(t *testing.T) {
	source := testutil.OnboardingJourney()
	source.Nodes[2].Next = nil

	data, err := json.Marshal(source)
	require.NoError(t, err)

	var journey models.Journey
	require.NoError(t, json.Unmarshal(data, &journey))

	condition, ok := journey.NodeByID("condition")
	require.True(t, ok)
	assert.Equal(t, []string{"push", "sms"}, condition.Next, "next follows the configured paths")
	require.True(t, validation.Validate(&journey).OK())

	graph, err := ToGraph(&journey)
	require.NoError(t, err)

	nodes, err := FromGraph(graph)
	require.NoError(t, err)
	assert.Equal(t, journey.Nodes, nodes)
}

func TestRoundTrip_StaleNextIsRejectedBeforeConversion(t *testing.T) {
	journey := testutil.OnboardingJourney()
	journey.Nodes[2].Next = nil

	assert.True(t, validation.Validate(journey).HasCode(validation.CodeNextMismatch))
}

func TestFromGraph_IgnoresEdgeOrderForBranches(t *testing.T) {
	graph, err := ToGraph(testutil.OnboardingJourney())
	require.NoError(t, err)

	// Swap the yes/no edges; routing follows the labels.
	for i, edge := range graph.Edges {
		if edge.Label == models.EdgeLabelYes {
			graph.Edges[i], graph.Edges[i+1] = graph.Edges[i+1], graph.Edges[i]

			break
		}
	}

	nodes, err := FromGraph(graph)
	require.NoError(t, err)

	condition := nodes[2].Config.(*models.ConditionConfig)
	assert.Equal(t, "push", condition.TruePath)
	assert.Equal(t, "sms", condition.FalsePath)
	assert.Equal(t, []string{"push", "sms"}, nodes[2].Next)
}

func TestFromGraph_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(g *models.Graph)
		err    error
	}{
		{
			name: "dangling target",
			mutate: func(g *models.Graph) {
				g.Edges = append(g.Edges, &models.GraphEdge{ID: "x", Source: "wait", Target: "ghost"})
			},
			err: ErrDanglingEdge,
		},
		{
			name: "dangling source",
			mutate: func(g *models.Graph) {
				g.Edges = append(g.Edges, &models.GraphEdge{ID: "x", Source: "ghost", Target: "end"})
			},
			err: ErrDanglingEdge,
		},
		{
			name: "bad condition label",
			mutate: func(g *models.Graph) {
				g.Edges = append(g.Edges, &models.GraphEdge{ID: "x", Source: "condition", Target: "end", Label: "maybe"})
			},
			err: ErrInvalidEdgeLabel,
		},
		{
			name: "two yes edges",
			mutate: func(g *models.Graph) {
				g.Edges = append(g.Edges, &models.GraphEdge{ID: "x", Source: "condition", Target: "end", Label: models.EdgeLabelYes})
			},
			err: ErrDuplicateEdge,
		},
		{
			name: "duplicate node",
			mutate: func(g *models.Graph) {
				g.Nodes = append(g.Nodes, &models.GraphNode{ID: "end", Type: models.NodeTypeEnd})
			},
			err: ErrDuplicateNode,
		},
		{
			name: "config mismatch",
			mutate: func(g *models.Graph) {
				g.Nodes[1].Config = &models.EndConfig{}
			},
			err: ErrConfigMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			graph, err := ToGraph(testutil.OnboardingJourney())
			require.NoError(t, err)

			tt.mutate(graph)

			_, err = FromGraph(graph)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestFromGraph_DanglingEdgeIsStructured(t *testing.T) {
	graph := &models.Graph{
		Nodes: []*models.GraphNode{{ID: "a", Type: models.NodeTypeTrigger}},
		Edges: []*models.GraphEdge{{ID: "e1", Source: "a", Target: "b"}},
	}

	_, err := FromGraph(graph)

	var edgeErr *EdgeError
	require.ErrorAs(t, err, &edgeErr)
	assert.Equal(t, "e1", edgeErr.EdgeID)
	assert.Equal(t, "b", edgeErr.Target)
}

func TestDeleteNode_Cascades(t *testing.T) {
	graph, err := ToGraph(testutil.OnboardingJourney())
	require.NoError(t, err)

	require.NoError(t, DeleteNode(graph, "push"))

	for _, edge := range graph.Edges {
		assert.NotEqual(t, "push", edge.Source)
		assert.NotEqual(t, "push", edge.Target)
	}

	nodes, err := FromGraph(graph)
	require.NoError(t, err)
	require.Len(t, nodes, 5)

	for _, node := range nodes {
		assert.NotEqual(t, "push", node.ID)
		assert.NotContains(t, node.Next, "push")
		assert.NotContains(t, node.Successors(), "push")
	}

	assert.ErrorIs(t, DeleteNode(graph, "push"), ErrNodeNotFound)
}

func TestDeleteNode_PrunesSplitBranch(t *testing.T) {
	graph, err := ToGraph(splitJourney())
	require.NoError(t, err)

	require.NoError(t, DeleteNode(graph, "email-b"))

	split, ok := graph.NodeByID("split")
	require.True(t, ok)

	config := split.Config.(*models.SplitConfig)
	assert.Equal(t, "email-a", config.Branches[0].NextNodeID)
	assert.Empty(t, config.Branches[1].NextNodeID)
}

func TestInsertNode(t *testing.T) {
	graph, err := ToGraph(testutil.OnboardingJourney())
	require.NoError(t, err)

	node, err := InsertNode(graph, &models.GraphNode{Type: models.NodeTypeWait, Name: "Pause"}, nil)
	require.NoError(t, err)

	assert.NotEmpty(t, node.ID)
	assert.IsType(t, &models.WaitConfig{}, node.Config)
	assert.Equal(t, models.Position{X: LayoutColumnX, Y: 600 + LayoutSpacing}, node.Position)

	other, err := InsertNode(graph, &models.GraphNode{Type: models.NodeTypeEnd}, &models.Position{X: 1, Y: 2})
	require.NoError(t, err)
	assert.NotEqual(t, node.ID, other.ID)
	assert.Equal(t, models.Position{X: 1, Y: 2}, other.Position)

	_, err = InsertNode(graph, &models.GraphNode{ID: "end", Type: models.NodeTypeEnd}, nil)
	assert.ErrorIs(t, err, ErrDuplicateNode)
}

func TestConnectNodes(t *testing.T) {
	graph, err := ToGraph(splitJourney())
	require.NoError(t, err)

	require.NoError(t, DeleteEdge(graph, "split:branch-1->email-b"))

	config := graph.Nodes[1].Config.(*models.SplitConfig)
	assert.Empty(t, config.Branches[1].NextNodeID)

	_, err = ConnectNodes(graph, &models.GraphEdge{Source: "split", Target: "end", Label: "branch-1"})
	require.NoError(t, err)
	assert.Equal(t, "end", config.Branches[1].NextNodeID)

	_, err = ConnectNodes(graph, &models.GraphEdge{Source: "split", Target: "end", Label: "branch-1"})
	require.ErrorIs(t, err, ErrDuplicateEdge)

	_, err = ConnectNodes(graph, &models.GraphEdge{Source: "split", Target: "end", Label: "branch-7"})
	require.ErrorIs(t, err, ErrInvalidEdgeLabel)

	_, err = ConnectNodes(graph, &models.GraphEdge{Source: "end", Target: "trigger"})
	require.ErrorIs(t, err, ErrInvalidEdgeLabel)

	_, err = ConnectNodes(graph, &models.GraphEdge{Source: "trigger", Target: "email-a", Label: "yes"})
	require.ErrorIs(t, err, ErrInvalidEdgeLabel)

	_, err = ConnectNodes(graph, &models.GraphEdge{Source: "trigger", Target: "ghost"})
	require.ErrorIs(t, err, ErrDanglingEdge)

	assert.ErrorIs(t, DeleteEdge(graph, "missing"), ErrEdgeNotFound)
}

func TestLayout(t *testing.T) {
	graph := &models.Graph{
		Nodes: []*models.GraphNode{
			{ID: "c", Type: models.NodeTypeEnd, Position: models.Position{X: 10, Y: 900}},
			{ID: "a", Type: models.NodeTypeTrigger, Position: models.Position{X: 700, Y: -20}},
			{ID: "b", Type: models.NodeTypeWait, Position: models.Position{X: 30, Y: 300}},
		},
	}

	Layout(graph)

	ids := []string{graph.Nodes[0].ID, graph.Nodes[1].ID, graph.Nodes[2].ID}
	assert.Equal(t, []string{"a", "b", "c"}, ids)

	for i, node := range graph.Nodes {
		assert.Equal(t, models.Position{X: LayoutColumnX, Y: LayoutTopY + float64(i)*LayoutSpacing}, node.Position)
	}
}

func TestStore_Apply(t *testing.T) {
	journey := testutil.OnboardingJourney()

	store, err := NewStoreFromJourney(journey)
	require.NoError(t, err)
	assert.Equal(t, 1, store.Version())

	version, err := store.Apply(MoveNode{NodeID: "wait", Position: models.Position{X: 5, Y: 6}})
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	version, err = store.Apply(RemoveNode{NodeID: "sms"})
	require.NoError(t, err)
	assert.Equal(t, 3, version)

	snapshot, version, err := store.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 3, version)
	assert.Len(t, snapshot.Nodes, 5)

	wait, ok := snapshot.NodeByID("wait")
	require.True(t, ok)
	assert.Equal(t, models.Position{X: 5, Y: 6}, wait.Position)

	// Mutating the snapshot must not leak into the store.
	wait.Position = models.Position{}
	again, _, err := store.Snapshot()
	require.NoError(t, err)

	waitAgain, _ := again.NodeByID("wait")
	assert.Equal(t, models.Position{X: 5, Y: 6}, waitAgain.Position)
}

func TestStore_FailedEditLeavesStateUntouched(t *testing.T) {
	store, err := NewStoreFromJourney(testutil.OnboardingJourney())
	require.NoError(t, err)

	before, _, err := store.Snapshot()
	require.NoError(t, err)

	version, err := store.Apply(AddEdge{Edge: &models.GraphEdge{Source: "wait", Target: "ghost"}})
	require.ErrorIs(t, err, ErrDanglingEdge)
	assert.Equal(t, 1, version)

	after, afterVersion, err := store.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 1, afterVersion)
	assert.Equal(t, before, after)
}

func TestDecodeEdit(t *testing.T) {
	edit, err := DecodeEdit([]byte(`{"op":"add_node","node":{"type":"action","config":{"channel":"sms","content":{"body":"hi"}}}}`))
	require.NoError(t, err)

	addNode, ok := edit.(AddNode)
	require.True(t, ok)
	assert.Equal(t, models.NodeTypeAction, addNode.Node.Type)
	assert.IsType(t, &models.ActionConfig{}, addNode.Node.Config)

	edit, err = DecodeEdit([]byte(`{"op":"move_node","node_id":"wait","position":{"x":1,"y":2}}`))
	require.NoError(t, err)
	assert.Equal(t, MoveNode{NodeID: "wait", Position: models.Position{X: 1, Y: 2}}, edit)

	_, err = DecodeEdit([]byte(`{"op":"move_node","node_id":"wait"}`))
	require.ErrorIs(t, err, ErrInvalidEdit)

	_, err = DecodeEdit([]byte(`{"op":"explode"}`))
	require.ErrorIs(t, err, ErrInvalidEdit)
}
