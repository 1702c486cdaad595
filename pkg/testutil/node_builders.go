// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"time"

	"github.com/dukex/journeys/pkg/models"
	"github.com/google/uuid"
)

// CreateTestNode creates a test JourneyNode with default values that can be overridden.
func CreateTestNode(overrides ...func(*models.JourneyNode)) *models.JourneyNode {
	node := &models.JourneyNode{
		ID:   uuid.New().String(),
		Type: models.NodeTypeWait,
		Name: "Test Node",
		Config: &models.WaitConfig{
			Duration: "1h",
		},
		Position: models.Position{X: 100, Y: 200},
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithID sets the node id.
func WithID(id string) func(*models.JourneyNode) {
	return func(n *models.JourneyNode) {
		n.ID = id
	}
}

// WithName sets the node name.
func WithName(name string) func(*models.JourneyNode) {
	return func(n *models.JourneyNode) {
		n.Name = name
	}
}

// WithPosition sets the node position.
func WithPosition(x, y float64) func(*models.JourneyNode) {
	return func(n *models.JourneyNode) {
		n.Position = models.Position{X: x, Y: y}
	}
}

// WithNext sets the node successors.
func WithNext(next ...string) func(*models.JourneyNode) {
	return func(n *models.JourneyNode) {
		n.Next = next
	}
}

// WithConfig sets the node configuration and type.
func WithConfig(config models.NodeConfig) func(*models.JourneyNode) {
	return func(n *models.JourneyNode) {
		n.Type = config.NodeType()
		n.Config = config
	}
}

// TriggerNode builds a trigger node.
func TriggerNode(id string, next ...string) *models.JourneyNode {
	return CreateTestNode(WithID(id), WithName("Trigger"), WithConfig(&models.TriggerNodeConfig{}), WithNext(next...))
}

// WaitNode builds a duration wait node.
func WaitNode(id, duration string, next ...string) *models.JourneyNode {
	return CreateTestNode(WithID(id), WithName("Wait "+duration), WithConfig(&models.WaitConfig{Duration: duration}), WithNext(next...))
}

// EventWaitNode builds a wait-for-event node with an optional ceiling.
func EventWaitNode(id, event, maxWait string, next ...string) *models.JourneyNode {
	return CreateTestNode(
		WithID(id),
		WithName("Wait for "+event),
		WithConfig(&models.WaitConfig{WaitForEvent: event, MaxWaitTime: maxWait}),
		WithNext(next...),
	)
}

// ConditionNode builds a single-clause condition node.
func ConditionNode(id string, clause models.Condition, yes, no string) *models.JourneyNode {
	return CreateTestNode(
		WithID(id),
		WithName("Condition"),
		WithConfig(&models.ConditionConfig{
			Conditions: []models.Condition{clause},
			Logic:      models.LogicAnd,
			TruePath:   yes,
			FalsePath:  no,
		}),
		WithNext(yes, no),
	)
}

// ActionNode builds an action node.
func ActionNode(id string, channel models.Channel, body string, next ...string) *models.JourneyNode {
	return CreateTestNode(
		WithID(id),
		WithName(string(channel)+" action"),
		WithConfig(&models.ActionConfig{
			Channel: channel,
			Content: models.MessageContent{Body: body},
		}),
		WithNext(next...),
	)
}

// SplitNode builds a split node from branches.
func SplitNode(id string, splitType models.SplitType, branches ...models.SplitBranch) *models.JourneyNode {
	next := make([]string, 0, len(branches))
	for _, branch := range branches {
		next = append(next, branch.NextNodeID)
	}

	return CreateTestNode(
		WithID(id),
		WithName("Split"),
		WithConfig(&models.SplitConfig{SplitType: splitType, Branches: branches}),
		WithNext(next...),
	)
}

// EndNode builds an end node.
func EndNode(id string) *models.JourneyNode {
	return CreateTestNode(WithID(id), WithName("End"), WithConfig(&models.EndConfig{}))
}

// CreateTestJourney creates an active manual journey with the given nodes.
func CreateTestJourney(nodes ...*models.JourneyNode) *models.Journey {
	now := time.Now().UTC()

	return &models.Journey{
		ID:        uuid.New().String(),
		Name:      "Test Journey",
		Status:    models.JourneyStatusActive,
		Version:   1,
		Trigger:   models.JourneyTrigger{Type: models.TriggerTypeManual},
		Nodes:     nodes,
		CreatedBy: "tester",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// OnboardingJourney builds trigger -> wait(24h) -> condition(balance > 0) ->
// yes: push "Explore investments" / no: sms "Fund your account" -> end.
func OnboardingJourney() *models.Journey {
	journey := CreateTestJourney(
		TriggerNode("trigger", "wait"),
		WaitNode("wait", "24h", "condition"),
		ConditionNode("condition", models.Condition{
			Field:    "customer.balance",
			Operator: models.OperatorGreaterThan,
			Value:    0.0,
		}, "push", "sms"),
		ActionNode("push", models.ChannelPush, "Explore investments, {{first_name}}", "end"),
		ActionNode("sms", models.ChannelSMS, "Fund your account", "end"),
		EndNode("end"),
	)
	journey.Name = "Onboarding"
	journey.Trigger = models.JourneyTrigger{
		Type:   models.TriggerTypeEvent,
		Config: models.TriggerConfig{EventName: "account_opened"},
	}

	for i, node := range journey.Nodes {
		node.Position = models.Position{X: 250, Y: float64(i * 120)}
	}

	return journey
}
