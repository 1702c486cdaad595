package models

import "encoding/json"

// Edge labels emitted for branching nodes.
const (
	EdgeLabelYes = "yes"
	EdgeLabelNo  = "no"

	BranchLabelPrefix = "branch-"
)

// GraphNode is a positioned node of the visual editor graph.
type GraphNode struct {
	ID       string     `json:"id"       validate:"required"`
	Type     NodeType   `json:"type"     validate:"required,oneof=trigger wait condition action split end"`
	Name     string     `json:"name"`
	Position Position   `json:"position"`
	Config   NodeConfig `json:"config"`
}

// GraphEdge connects two editor nodes, optionally labeled for branching nodes.
type GraphEdge struct {
	ID     string `json:"id"`
	Source string `json:"source"          validate:"required"`
	Target string `json:"target"          validate:"required"`
	Label  string `json:"label,omitempty"`
}

// Graph is the editor representation of a journey.
type Graph struct {
	Nodes []*GraphNode `json:"nodes"`
	Edges []*GraphEdge `json:"edges"`
}

// NodeByID returns the editor node with the given id.
func (g *Graph) NodeByID(id string) (*GraphNode, bool) {
	for _, node := range g.Nodes {
		if node.ID == id {
			return node, true
		}
	}

	return nil, false
}

type rawGraphNode struct {
	ID       string   `json:"id"`
	Type     NodeType `json:"type"`
	Name     string   `json:"name"`
	Position Position `json:"position"`
}

// UnmarshalJSON decodes the config according to the node type.
func (n *GraphNode) UnmarshalJSON(data []byte) error {
	var raw struct {
		rawGraphNode

		Config json.RawMessage `json:"config,omitempty"`
	}

	err := json.Unmarshal(data, &raw)
	if err != nil {
		return err
	}

	config, err := DecodeNodeConfig(raw.Type, raw.Config)
	if err != nil {
		return err
	}

	*n = GraphNode{
		ID:       raw.ID,
		Type:     raw.Type,
		Name:     raw.Name,
		Position: raw.Position,
		Config:   config,
	}

	return nil
}

// Variable is one entry of the personalization catalog.
type Variable struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}
