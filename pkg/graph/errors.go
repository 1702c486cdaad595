// Package graph converts journeys to and from the visual editor graph and keeps a versioned,
// transactionally edited copy of that graph.
package graph

import (
	"errors"
	"fmt"
)

var (
	// ErrDanglingEdge indicates an edge whose source or target is not a node of the graph.
	ErrDanglingEdge = errors.New("edge references unknown node")

	// ErrInvalidEdgeLabel indicates a label that does not fit the source node type.
	ErrInvalidEdgeLabel = errors.New("invalid edge label")

	// ErrDuplicateEdge indicates an edge id or branch slot that is already used.
	ErrDuplicateEdge = errors.New("edge already exists")

	// ErrEdgeNotFound indicates an edge was not found by the given identifier.
	ErrEdgeNotFound = errors.New("edge not found")

	// ErrDuplicateNode indicates a node id that is already used.
	ErrDuplicateNode = errors.New("node already exists")

	// ErrNodeNotFound indicates a node was not found by the given identifier.
	ErrNodeNotFound = errors.New("node not found")

	// ErrConfigMismatch indicates a node whose config does not belong to its type.
	ErrConfigMismatch = errors.New("node config does not match node type")

	// ErrInvalidEdit indicates an edit that is missing required data.
	ErrInvalidEdit = errors.New("invalid edit")
)

// EdgeError wraps edge-related errors with the offending edge.
type EdgeError struct {
	Op     string // Operation being performed (e.g., "FromGraph", "AddEdge")
	EdgeID string
	Source string
	Target string
	Err    error
}

func (e *EdgeError) Error() string {
	return fmt.Sprintf("%s failed for edge %s (%s -> %s): %v", e.Op, e.EdgeID, e.Source, e.Target, e.Err)
}

func (e *EdgeError) Unwrap() error {
	return e.Err
}

func (e *EdgeError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NodeError wraps node-related errors with the offending node.
type NodeError struct {
	Op     string
	NodeID string
	Err    error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("%s failed for node %s: %v", e.Op, e.NodeID, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

func (e *NodeError) Is(target error) bool {
	return errors.Is(e.Err, target)
}
