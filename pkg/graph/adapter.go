package graph

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/dukex/journeys/pkg/models"
)

// ToGraph converts a journey into the editor graph. Condition nodes emit "yes"/"no" edges,
// split nodes one "branch-N" edge per branch and every other node one edge per successor.
func ToGraph(journey *models.Journey) (*models.Graph, error) {
	return NodesToGraph(journey.Nodes)
}

// NodesToGraph converts an ordered node list into the editor graph.
func NodesToGraph(nodes []*models.JourneyNode) (*models.Graph, error) {
	graph := &models.Graph{
		Nodes: make([]*models.GraphNode, 0, len(nodes)),
		Edges: []*models.GraphEdge{},
	}

	for _, node := range nodes {
		config, err := cloneConfig(node.Type, node.Config)
		if err != nil {
			return nil, &NodeError{Op: "ToGraph", NodeID: node.ID, Err: err}
		}

		graph.Nodes = append(graph.Nodes, &models.GraphNode{
			ID:       node.ID,
			Type:     node.Type,
			Name:     node.Name,
			Position: node.Position,
			Config:   config,
		})

		graph.Edges = append(graph.Edges, nodeEdges(node)...)
	}

	return graph, nil
}

func nodeEdges(node *models.JourneyNode) []*models.GraphEdge {
	var edges []*models.GraphEdge

	switch config := node.Config.(type) {
	case *models.ConditionConfig:
		if config.TruePath != "" {
			edges = append(edges, newEdge(node.ID, config.TruePath, models.EdgeLabelYes))
		}

		if config.FalsePath != "" {
			edges = append(edges, newEdge(node.ID, config.FalsePath, models.EdgeLabelNo))
		}
	case *models.SplitConfig:
		for i, branch := range config.Branches {
			if branch.NextNodeID != "" {
				edges = append(edges, newEdge(node.ID, branch.NextNodeID, BranchLabel(i)))
			}
		}
	default:
		for _, next := range node.Next {
			edges = append(edges, newEdge(node.ID, next, ""))
		}
	}

	return edges
}

func newEdge(source, target, label string) *models.GraphEdge {
	id := source + "->" + target
	if label != "" {
		id = source + ":" + label + "->" + target
	}

	return &models.GraphEdge{ID: id, Source: source, Target: target, Label: label}
}

// BranchLabel returns the edge label of the i-th split branch.
func BranchLabel(i int) string {
	return models.BranchLabelPrefix + strconv.Itoa(i)
}

// BranchIndex parses a "branch-N" label.
func BranchIndex(label string) (int, bool) {
	raw, ok := strings.CutPrefix(label, models.BranchLabelPrefix)
	if !ok {
		return 0, false
	}

	index, err := strconv.Atoi(raw)
	if err != nil || index < 0 {
		return 0, false
	}

	return index, true
}

// FromGraph rebuilds the ordered journey node list from the editor graph. Successor order
// follows edge order for plain nodes, the yes/no labels for conditions and the branch index for
// splits. Edges whose source or target is unknown are rejected with an *EdgeError.
func FromGraph(graph *models.Graph) ([]*models.JourneyNode, error) {
	index := make(map[string]*models.GraphNode, len(graph.Nodes))

	for _, node := range graph.Nodes {
		if _, exists := index[node.ID]; exists {
			return nil, &NodeError{Op: "FromGraph", NodeID: node.ID, Err: ErrDuplicateNode}
		}

		index[node.ID] = node
	}

	outgoing := make(map[string][]*models.GraphEdge, len(graph.Nodes))

	for _, edge := range graph.Edges {
		_, sourceOK := index[edge.Source]
		_, targetOK := index[edge.Target]

		if !sourceOK || !targetOK {
			return nil, &EdgeError{Op: "FromGraph", EdgeID: edge.ID, Source: edge.Source, Target: edge.Target, Err: ErrDanglingEdge}
		}

		outgoing[edge.Source] = append(outgoing[edge.Source], edge)
	}

	nodes := make([]*models.JourneyNode, 0, len(graph.Nodes))

	for _, graphNode := range graph.Nodes {
		node, err := journeyNode(graphNode, outgoing[graphNode.ID])
		if err != nil {
			return nil, err
		}

		nodes = append(nodes, node)
	}

	return nodes, nil
}

func journeyNode(graphNode *models.GraphNode, edges []*models.GraphEdge) (*models.JourneyNode, error) {
	config, err := cloneConfig(graphNode.Type, graphNode.Config)
	if err != nil {
		return nil, &NodeError{Op: "FromGraph", NodeID: graphNode.ID, Err: err}
	}

	node := &models.JourneyNode{
		ID:       graphNode.ID,
		Type:     graphNode.Type,
		Name:     graphNode.Name,
		Config:   config,
		Position: graphNode.Position,
	}

	switch config := config.(type) {
	case *models.ConditionConfig:
		err = routeCondition(node, config, edges)
	case *models.SplitConfig:
		err = routeSplit(node, config, edges)
	default:
		for _, edge := range edges {
			node.Next = append(node.Next, edge.Target)
		}
	}

	if err != nil {
		return nil, err
	}

	return node, nil
}

func routeCondition(node *models.JourneyNode, config *models.ConditionConfig, edges []*models.GraphEdge) error {
	config.TruePath, config.FalsePath = "", ""

	for _, edge := range edges {
		var slot *string

		switch edge.Label {
		case models.EdgeLabelYes:
			slot = &config.TruePath
		case models.EdgeLabelNo:
			slot = &config.FalsePath
		default:
			return &EdgeError{Op: "FromGraph", EdgeID: edge.ID, Source: edge.Source, Target: edge.Target, Err: ErrInvalidEdgeLabel}
		}

		if *slot != "" {
			return &EdgeError{Op: "FromGraph", EdgeID: edge.ID, Source: edge.Source, Target: edge.Target, Err: ErrDuplicateEdge}
		}

		*slot = edge.Target
	}

	for _, path := range []string{config.TruePath, config.FalsePath} {
		if path != "" {
			node.Next = append(node.Next, path)
		}
	}

	return nil
}

func routeSplit(node *models.JourneyNode, config *models.SplitConfig, edges []*models.GraphEdge) error {
	targets := make([]string, len(config.Branches))

	for _, edge := range edges {
		i, ok := BranchIndex(edge.Label)
		if !ok || i >= len(config.Branches) {
			return &EdgeError{Op: "FromGraph", EdgeID: edge.ID, Source: edge.Source, Target: edge.Target, Err: ErrInvalidEdgeLabel}
		}

		if targets[i] != "" {
			return &EdgeError{Op: "FromGraph", EdgeID: edge.ID, Source: edge.Source, Target: edge.Target, Err: ErrDuplicateEdge}
		}

		targets[i] = edge.Target
	}

	for i := range config.Branches {
		config.Branches[i].NextNodeID = targets[i]

		if targets[i] != "" {
			node.Next = append(node.Next, targets[i])
		}
	}

	return nil
}

// cloneConfig deep copies a config, creating the type's default when it is nil.
func cloneConfig(nodeType models.NodeType, config models.NodeConfig) (models.NodeConfig, error) {
	if config == nil {
		return models.NewNodeConfig(nodeType)
	}

	if config.NodeType() != nodeType {
		return nil, fmt.Errorf("%w: %s config on %s node", ErrConfigMismatch, config.NodeType(), nodeType)
	}

	data, err := json.Marshal(config)
	if err != nil {
		return nil, err
	}

	return models.DecodeNodeConfig(nodeType, data)
}
