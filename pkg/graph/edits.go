package graph

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/dukex/journeys/pkg/models"
	"github.com/google/uuid"
)

// Layout constants used for new nodes and automatic tidy-up.
const (
	LayoutColumnX = 250.0
	LayoutTopY    = 50.0
	LayoutSpacing = 150.0
)

// Edit is one transactional change to the editor graph.
type Edit interface {
	// Name identifies the edit kind in logs and API payloads.
	Name() string

	apply(graph *models.Graph) error
}

// AddNode inserts a node. A missing id is replaced by a fresh one and a nil position places
// the node below the lowest existing node.
type AddNode struct {
	Node     *models.GraphNode
	Position *models.Position
}

// RemoveNode deletes a node and cascades to its edges and branch references.
type RemoveNode struct {
	NodeID string
}

// AddEdge connects two nodes.
type AddEdge struct {
	Edge *models.GraphEdge
}

// RemoveEdge deletes one edge.
type RemoveEdge struct {
	EdgeID string
}

// MoveNode changes a node position.
type MoveNode struct {
	NodeID   string
	Position models.Position
}

// AutoLayout re-assigns evenly spaced positions along a single column.
type AutoLayout struct{}

func (AddNode) Name() string    { return "add_node" }
func (RemoveNode) Name() string { return "remove_node" }
func (AddEdge) Name() string    { return "add_edge" }
func (RemoveEdge) Name() string { return "remove_edge" }
func (MoveNode) Name() string   { return "move_node" }
func (AutoLayout) Name() string { return "auto_layout" }

func (e AddNode) apply(graph *models.Graph) error {
	_, err := InsertNode(graph, e.Node, e.Position)

	return err
}

func (e RemoveNode) apply(graph *models.Graph) error {
	return DeleteNode(graph, e.NodeID)
}

func (e AddEdge) apply(graph *models.Graph) error {
	_, err := ConnectNodes(graph, e.Edge)

	return err
}

func (e RemoveEdge) apply(graph *models.Graph) error {
	return DeleteEdge(graph, e.EdgeID)
}

func (e MoveNode) apply(graph *models.Graph) error {
	node, ok := graph.NodeByID(e.NodeID)
	if !ok {
		return &NodeError{Op: "MoveNode", NodeID: e.NodeID, Err: ErrNodeNotFound}
	}

	node.Position = e.Position

	return nil
}

func (AutoLayout) apply(graph *models.Graph) error {
	Layout(graph)

	return nil
}

// InsertNode adds a node to the graph and returns it.
func InsertNode(graph *models.Graph, node *models.GraphNode, position *models.Position) (*models.GraphNode, error) {
	if node == nil {
		return nil, fmt.Errorf("%w: node is required", ErrInvalidEdit)
	}

	if node.ID == "" {
		node.ID = uuid.New().String()
	}

	if _, exists := graph.NodeByID(node.ID); exists {
		return nil, &NodeError{Op: "AddNode", NodeID: node.ID, Err: ErrDuplicateNode}
	}

	config, err := cloneConfig(node.Type, node.Config)
	if err != nil {
		return nil, &NodeError{Op: "AddNode", NodeID: node.ID, Err: err}
	}

	node.Config = config

	if position != nil {
		node.Position = *position
	} else {
		node.Position = nextPosition(graph)
	}

	graph.Nodes = append(graph.Nodes, node)

	return node, nil
}

func nextPosition(graph *models.Graph) models.Position {
	if len(graph.Nodes) == 0 {
		return models.Position{X: LayoutColumnX, Y: LayoutTopY}
	}

	lowest := slices.MaxFunc(graph.Nodes, func(a, b *models.GraphNode) int {
		return cmp.Compare(a.Position.Y, b.Position.Y)
	})

	return models.Position{X: LayoutColumnX, Y: lowest.Position.Y + LayoutSpacing}
}

// DeleteNode removes a node, every edge touching it and every branch reference to it.
func DeleteNode(graph *models.Graph, id string) error {
	if _, ok := graph.NodeByID(id); !ok {
		return &NodeError{Op: "RemoveNode", NodeID: id, Err: ErrNodeNotFound}
	}

	graph.Nodes = slices.DeleteFunc(graph.Nodes, func(node *models.GraphNode) bool {
		return node.ID == id
	})

	graph.Edges = slices.DeleteFunc(graph.Edges, func(edge *models.GraphEdge) bool {
		return edge.Source == id || edge.Target == id
	})

	for _, node := range graph.Nodes {
		clearReference(node.Config, id)
	}

	return nil
}

func clearReference(config models.NodeConfig, id string) {
	switch config := config.(type) {
	case *models.ConditionConfig:
		if config.TruePath == id {
			config.TruePath = ""
		}

		if config.FalsePath == id {
			config.FalsePath = ""
		}
	case *models.SplitConfig:
		for i := range config.Branches {
			if config.Branches[i].NextNodeID == id {
				config.Branches[i].NextNodeID = ""
			}
		}
	}
}

// ConnectNodes adds an edge after checking its endpoints and label against the source node.
func ConnectNodes(graph *models.Graph, edge *models.GraphEdge) (*models.GraphEdge, error) {
	if edge == nil {
		return nil, fmt.Errorf("%w: edge is required", ErrInvalidEdit)
	}

	source, sourceOK := graph.NodeByID(edge.Source)
	_, targetOK := graph.NodeByID(edge.Target)

	if !sourceOK || !targetOK {
		return nil, &EdgeError{Op: "AddEdge", EdgeID: edge.ID, Source: edge.Source, Target: edge.Target, Err: ErrDanglingEdge}
	}

	if edge.ID == "" {
		edge.ID = uuid.New().String()
	}

	for _, existing := range graph.Edges {
		sameSlot := existing.Source == edge.Source && existing.Label == edge.Label && edge.Label != ""
		if existing.ID == edge.ID || sameSlot {
			return nil, &EdgeError{Op: "AddEdge", EdgeID: edge.ID, Source: edge.Source, Target: edge.Target, Err: ErrDuplicateEdge}
		}
	}

	err := bindEdge(source, edge)
	if err != nil {
		return nil, &EdgeError{Op: "AddEdge", EdgeID: edge.ID, Source: edge.Source, Target: edge.Target, Err: err}
	}

	graph.Edges = append(graph.Edges, edge)

	return edge, nil
}

// bindEdge checks the edge label for the source type and mirrors it into the source config.
func bindEdge(source *models.GraphNode, edge *models.GraphEdge) error {
	switch config := source.Config.(type) {
	case *models.ConditionConfig:
		switch edge.Label {
		case models.EdgeLabelYes:
			config.TruePath = edge.Target
		case models.EdgeLabelNo:
			config.FalsePath = edge.Target
		default:
			return fmt.Errorf("%w: condition edges must be labeled %q or %q", ErrInvalidEdgeLabel, models.EdgeLabelYes, models.EdgeLabelNo)
		}
	case *models.SplitConfig:
		i, ok := BranchIndex(edge.Label)
		if !ok || i >= len(config.Branches) {
			return fmt.Errorf("%w: split edges must be labeled %sN for an existing branch", ErrInvalidEdgeLabel, models.BranchLabelPrefix)
		}

		config.Branches[i].NextNodeID = edge.Target
	case *models.EndConfig:
		return fmt.Errorf("%w: end nodes have no successors", ErrInvalidEdgeLabel)
	default:
		if edge.Label != "" {
			return fmt.Errorf("%w: %s edges are unlabeled", ErrInvalidEdgeLabel, source.Type)
		}
	}

	return nil
}

// DeleteEdge removes an edge and the branch reference it represents.
func DeleteEdge(graph *models.Graph, id string) error {
	position := slices.IndexFunc(graph.Edges, func(edge *models.GraphEdge) bool {
		return edge.ID == id
	})
	if position < 0 {
		return &EdgeError{Op: "RemoveEdge", EdgeID: id, Err: ErrEdgeNotFound}
	}

	edge := graph.Edges[position]
	graph.Edges = slices.Delete(graph.Edges, position, position+1)

	source, ok := graph.NodeByID(edge.Source)
	if !ok {
		return nil
	}

	switch config := source.Config.(type) {
	case *models.ConditionConfig:
		if edge.Label == models.EdgeLabelYes {
			config.TruePath = ""
		} else if edge.Label == models.EdgeLabelNo {
			config.FalsePath = ""
		}
	case *models.SplitConfig:
		if i, ok := BranchIndex(edge.Label); ok && i < len(config.Branches) {
			config.Branches[i].NextNodeID = ""
		}
	}

	return nil
}

// Layout sorts nodes by vertical position and re-assigns evenly spaced positions along a
// single column.
func Layout(graph *models.Graph) {
	slices.SortStableFunc(graph.Nodes, func(a, b *models.GraphNode) int {
		return cmp.Or(cmp.Compare(a.Position.Y, b.Position.Y), cmp.Compare(a.Position.X, b.Position.X))
	})

	for i, node := range graph.Nodes {
		node.Position = models.Position{X: LayoutColumnX, Y: LayoutTopY + float64(i)*LayoutSpacing}
	}
}

// EditRequest is the wire form of an Edit.
type EditRequest struct {
	Op       string            `json:"op"                 validate:"required,oneof=add_node remove_node add_edge remove_edge move_node auto_layout"`
	Node     *models.GraphNode `json:"node,omitempty"`
	Edge     *models.GraphEdge `json:"edge,omitempty"`
	NodeID   string            `json:"node_id,omitempty"`
	EdgeID   string            `json:"edge_id,omitempty"`
	Position *models.Position  `json:"position,omitempty"`
}

// Edit converts the request into the typed edit it names.
func (r *EditRequest) Edit() (Edit, error) {
	switch r.Op {
	case AddNode{}.Name():
		return AddNode{Node: r.Node, Position: r.Position}, nil
	case RemoveNode{}.Name():
		return RemoveNode{NodeID: r.NodeID}, nil
	case AddEdge{}.Name():
		return AddEdge{Edge: r.Edge}, nil
	case RemoveEdge{}.Name():
		return RemoveEdge{EdgeID: r.EdgeID}, nil
	case MoveNode{}.Name():
		if r.Position == nil {
			return nil, fmt.Errorf("%w: move_node requires a position", ErrInvalidEdit)
		}

		return MoveNode{NodeID: r.NodeID, Position: *r.Position}, nil
	case AutoLayout{}.Name():
		return AutoLayout{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown op %q", ErrInvalidEdit, r.Op)
	}
}

// DecodeEdit parses a JSON edit request.
func DecodeEdit(data []byte) (Edit, error) {
	var request EditRequest

	err := json.Unmarshal(data, &request)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEdit, err)
	}

	return request.Edit()
}
