package graph

import (
	"sync"

	"github.com/dukex/journeys/pkg/models"
)

// Store holds a versioned editor graph. Every successful Apply produces a new version; a failed
// edit leaves both the graph and the version untouched.
type Store struct {
	mu      sync.RWMutex
	graph   *models.Graph
	version int
}

// NewStore creates a store at version 1 holding a copy of graph.
func NewStore(graph *models.Graph) (*Store, error) {
	if graph == nil {
		graph = &models.Graph{}
	}

	copied, err := Clone(graph)
	if err != nil {
		return nil, err
	}

	return &Store{graph: copied, version: 1}, nil
}

// NewStoreFromJourney creates a store from a journey's nodes.
func NewStoreFromJourney(journey *models.Journey) (*Store, error) {
	graph, err := ToGraph(journey)
	if err != nil {
		return nil, err
	}

	store := &Store{graph: graph, version: journey.Version}
	if store.version < 1 {
		store.version = 1
	}

	return store, nil
}

// Apply runs an edit against a working copy and commits it on success.
func (s *Store) Apply(edit Edit) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	working, err := Clone(s.graph)
	if err != nil {
		return s.version, err
	}

	err = edit.apply(working)
	if err != nil {
		return s.version, err
	}

	s.graph = working
	s.version++

	return s.version, nil
}

// Snapshot returns a deep copy of the current graph and its version.
func (s *Store) Snapshot() (*models.Graph, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	copied, err := Clone(s.graph)
	if err != nil {
		return nil, 0, err
	}

	return copied, s.version, nil
}

// Version returns the current version.
func (s *Store) Version() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.version
}

// Nodes converts the current graph into journey nodes.
func (s *Store) Nodes() ([]*models.JourneyNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return FromGraph(s.graph)
}

// Clone deep copies an editor graph.
func Clone(graph *models.Graph) (*models.Graph, error) {
	copied := &models.Graph{
		Nodes: make([]*models.GraphNode, 0, len(graph.Nodes)),
		Edges: make([]*models.GraphEdge, 0, len(graph.Edges)),
	}

	for _, node := range graph.Nodes {
		config, err := cloneConfig(node.Type, node.Config)
		if err != nil {
			return nil, &NodeError{Op: "Clone", NodeID: node.ID, Err: err}
		}

		nodeCopy := *node
		nodeCopy.Config = config
		copied.Nodes = append(copied.Nodes, &nodeCopy)
	}

	for _, edge := range graph.Edges {
		edgeCopy := *edge
		copied.Edges = append(copied.Edges, &edgeCopy)
	}

	return copied, nil
}
