// Package customers provides the customer attributes and audience segments journeys run against.
package customers

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
)

var ErrCustomerNotFound = errors.New("customer not found")

// Provider returns the attribute map materialized into an execution context.
type Provider interface {
	Attributes(ctx context.Context, customerID string) (map[string]any, error)
}

// SegmentSource lists the customers of an audience segment.
type SegmentSource interface {
	SegmentMembers(ctx context.Context, segmentID string) ([]string, error)
}

// StaticProvider serves customers and segments from memory.
type StaticProvider struct {
	mu        sync.RWMutex
	customers map[string]map[string]any
	segments  map[string][]string
}

func NewStaticProvider() *StaticProvider {
	return &StaticProvider{
		customers: make(map[string]map[string]any),
		segments:  make(map[string][]string),
	}
}

// Put stores a customer's attributes.
func (p *StaticProvider) Put(customerID string, attributes map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.customers[customerID] = maps.Clone(attributes)
}

// AddToSegment adds customers to a segment.
func (p *StaticProvider) AddToSegment(segmentID string, customerIDs ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, id := range customerIDs {
		if !slices.Contains(p.segments[segmentID], id) {
			p.segments[segmentID] = append(p.segments[segmentID], id)
		}
	}
}

func (p *StaticProvider) Attributes(_ context.Context, customerID string) (map[string]any, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	attributes, ok := p.customers[customerID]
	if !ok {
		return nil, ErrCustomerNotFound
	}

	return maps.Clone(attributes), nil
}

func (p *StaticProvider) SegmentMembers(_ context.Context, segmentID string) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return slices.Clone(p.segments[segmentID]), nil
}
